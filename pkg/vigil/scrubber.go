// scrubber.go implements fail-closed sensitive data redaction for capture records.

package vigil

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Redacted replaces any value judged sensitive.
const Redacted = "[REDACTED]"

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys adds key substrings (case-insensitive) whose values are redacted.
	SensitiveKeys []string

	// MaxMessageSize is the maximum length for error messages (default: 4096).
	MaxMessageSize int

	// ScrubMessages enables scrubbing of error messages for secrets/PII (default: true).
	ScrubMessages bool

	// NormalizePaths replaces user-specific directories in frame paths (default: true).
	NormalizePaths bool

	// FailClosed enables fail-closed behavior: on any scrub error, fully redact (default: true).
	FailClosed bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize: 4096,
		ScrubMessages:  true,
		NormalizePaths: true,
		FailClosed:     true,
	}
}

// Compiled regex patterns for message scrubbing (compiled once at package init)
var messageScrubPatterns = []*regexp.Regexp{
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`), // Authorization: Bearer <token>
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),                                // OpenAI-style keys (including sk-proj-)
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),                               // GitHub tokens
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),                         // GitHub PAT
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),                        // Slack tokens
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), // JWT tokens

	// Credentials
	regexp.MustCompile(`(?i)password[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)secret[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)passwd[=:\s]+['"]?[^\s'"",]+['"]?`),
	regexp.MustCompile(`(?i)credential[=:\s]+['"]?[^\s'"",]+['"]?`),

	// PII
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), // Email
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                              // SSN
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),         // Credit card
}

// Sensitive key patterns (case-insensitive substring match)
var sensitiveKeyPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"credential",
	"auth",
	"passwd",
}

// Path patterns to normalize in frame paths
var pathNormalizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/home/[^/]+/`),
	regexp.MustCompile(`/Users/[^/]+/`),
	regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
	regexp.MustCompile(`/tmp/[^/]+/`),
}

// Scrubber redacts sensitive data from capture records.
type Scrubber struct {
	cfg  ScrubberConfig
	keys []string
}

// NewScrubber creates a new scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	keys := append([]string{}, sensitiveKeyPatterns...)
	for _, k := range cfg.SensitiveKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Scrubber{cfg: cfg, keys: keys}
}

// ScrubRecord applies every scrubbing pass to a record in place.
func (s *Scrubber) ScrubRecord(r *CaptureRecord) {
	r.Message = s.ScrubMessage(r.Message)
	r.StackTrace = s.ScrubFrames(r.StackTrace)
	r.Context = s.ScrubContext(r.Context)
	r.LocalVariables = s.ScrubVariables(r.LocalVariables)
}

// ScrubMessage scrubs sensitive patterns from an error message.
func (s *Scrubber) ScrubMessage(msg string) string {
	if !s.cfg.ScrubMessages {
		return msg
	}

	// Truncate if too large first
	if s.cfg.MaxMessageSize > 0 && len(msg) > s.cfg.MaxMessageSize {
		msg = truncateWithMarker(msg, s.cfg.MaxMessageSize)
	}

	result := msg
	for _, pattern := range messageScrubPatterns {
		result = pattern.ReplaceAllString(result, Redacted)
	}
	return result
}

// ScrubFrames normalizes user-specific directories in frame paths.
// The input slice is not modified.
func (s *Scrubber) ScrubFrames(frames []StackFrame) []StackFrame {
	if !s.cfg.NormalizePaths || len(frames) == 0 {
		return frames
	}

	result := make([]StackFrame, len(frames))
	for i, f := range frames {
		if f.FilePath != nil {
			p := normalizePath(*f.FilePath)
			f.FilePath = &p
		}
		result[i] = f
	}
	return result
}

// ScrubContext redacts sensitive keys and scrubs string values, recursively.
// Values must already be JSON-safe; anything that cannot be round-tripped is
// fully redacted when FailClosed is set.
func (s *Scrubber) ScrubContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}

	data, err := json.Marshal(ctx)
	if err != nil {
		return s.failContext(ctx)
	}
	// UseNumber keeps 64-bit identifiers exact.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return s.failContext(ctx)
	}
	return s.scrubJSONMap(generic)
}

func (s *Scrubber) failContext(ctx map[string]any) map[string]any {
	if !s.cfg.FailClosed {
		return ctx
	}
	result := make(map[string]any, len(ctx))
	for key := range ctx {
		result[key] = "[REDACTED:SCRUB_ERROR]"
	}
	return result
}

// ScrubVariables redacts captured variables whose name looks sensitive and
// scrubs text values. Redacted nodes lose their children.
func (s *Scrubber) ScrubVariables(vars map[string]CapturedVariable) map[string]CapturedVariable {
	if vars == nil {
		return nil
	}
	result := make(map[string]CapturedVariable, len(vars))
	for key, v := range vars {
		result[key] = s.scrubVariable(key, v)
	}
	return result
}

func (s *Scrubber) scrubVariable(key string, v CapturedVariable) CapturedVariable {
	if s.isSensitiveKey(key) {
		return CapturedVariable{Name: v.Name, Type: v.Type, Value: Redacted}
	}
	if v.Value != "" {
		v.Value = s.ScrubMessage(v.Value)
	}
	if v.Children != nil {
		v.Children = s.ScrubVariables(v.Children)
	}
	if v.ArrayElements != nil {
		elems := make([]CapturedVariable, len(v.ArrayElements))
		for i, e := range v.ArrayElements {
			elems[i] = s.scrubVariable(e.Name, e)
		}
		v.ArrayElements = elems
	}
	return v
}

// isSensitiveKey checks if a key matches sensitive patterns.
func (s *Scrubber) isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range s.keys {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// scrubJSONValue recursively scrubs a JSON value (map, array, or primitive).
func (s *Scrubber) scrubJSONValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return s.scrubJSONMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = s.scrubJSONValue(item)
		}
		return result
	case string:
		return s.ScrubMessage(v)
	default:
		return v // Numbers, booleans, null pass through
	}
}

func (s *Scrubber) scrubJSONMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for key, value := range m {
		if s.isSensitiveKey(key) {
			result[key] = Redacted
		} else {
			result[key] = s.scrubJSONValue(value)
		}
	}
	return result
}

func normalizePath(p string) string {
	for _, pattern := range pathNormalizationPatterns {
		p = pattern.ReplaceAllString(p, "/[PATH]/")
	}
	return p
}

// truncateWithMarker truncates a string and adds a truncation marker.
func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	marker := "...[TRUNCATED]"
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	return s[:maxLen-len(marker)] + marker
}
