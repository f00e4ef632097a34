// fingerprint.go generates stable hashes for grouping similar errors.

package vigil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// fingerprintFrames is how many application frames contribute to a fingerprint.
const fingerprintFrames = 5

// Fingerprint generates a 16 hex character key for grouping similar errors.
// The fingerprint is based on:
//   - the error type
//   - the first 5 non-native frames, as "method:line" (0 when the line is unknown)
//
// It ignores the message, timestamps, and frames inside the Go runtime or
// standard library, so the same failure at the same call site always groups
// together regardless of how the runtime reached it.
func Fingerprint(errorType string, frames []StackFrame) string {
	parts := make([]string, 0, fingerprintFrames+1)
	parts = append(parts, errorType)

	for _, f := range frames {
		if f.IsNative {
			continue
		}
		line := 0
		if f.LineNumber != nil {
			line = *f.LineNumber
		}
		parts = append(parts, f.MethodName+":"+strconv.Itoa(line))
		if len(parts) > fingerprintFrames {
			break
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(hash[:])[:16]
}
