// record.go defines the capture record and the tree nodes it carries.

package vigil

import (
	"encoding/json"
	"time"
)

// CapturedTimeFormat is the wire format of CaptureRecord.CapturedAt:
// ISO-8601, UTC, millisecond precision.
const CapturedTimeFormat = "2006-01-02T15:04:05.000Z"

// CapturedVariable is one node of a bounded, JSON-safe value tree.
//
// A node is exactly one of: a scalar (Value only), a keyed container or record
// (Children), or a sequence (ArrayElements). A nil Children/ArrayElements means
// "not expanded", which is distinct from an empty container.
type CapturedVariable struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	IsNull      bool   `json:"isNull"`
	IsTruncated bool   `json:"isTruncated"`

	// Children is present only for record-like or keyed-container values.
	Children map[string]CapturedVariable `json:"children,omitempty"`

	// ArrayElements is present only for expanded sequences; an expanded empty
	// sequence encodes as [].
	ArrayElements []CapturedVariable `json:"arrayElements,omitzero"`

	// ArrayLength is the original length of a sequence before any truncation.
	// Uses pointer to distinguish "not a sequence" from "empty sequence".
	ArrayLength *int `json:"arrayLength,omitempty"`
}

// StackFrame is a single frame of the call stack at capture time.
type StackFrame struct {
	// MethodName is the fully qualified Go function name.
	MethodName string `json:"methodName"`

	// FileName is the base name of the source file, absent when unknown.
	FileName *string `json:"fileName,omitempty"`

	// FilePath is the full source path, absent when unknown.
	FilePath *string `json:"filePath,omitempty"`

	// LineNumber is absent when unknown.
	LineNumber *int `json:"lineNumber,omitempty"`

	// IsNative marks frames inside the Go runtime or standard library.
	IsNative bool `json:"isNative"`
}

// CaptureRecord is one complete snapshot of an error plus context.
// It is created once per capture and never mutated after assembly.
type CaptureRecord struct {
	// ID is a unique identifier for this capture (UUID).
	ID string

	// ExceptionType is the concrete Go type name of the error.
	ExceptionType string

	// Message is the rendered error message.
	Message string

	// Fingerprint is the 16 hex character grouping key.
	Fingerprint string

	// StackTrace is ordered most recent call first.
	StackTrace []StackFrame

	// LocalVariables holds captured caller-supplied locals. Never nil.
	LocalVariables map[string]CapturedVariable

	// Context is the merge of scope context, per-call context and user.
	Context map[string]any

	// CapturedAt is when the capture was assembled (UTC).
	CapturedAt time.Time
}

// recordJSON is the wire shape of a CaptureRecord.
type recordJSON struct {
	ID             string                      `json:"id"`
	ExceptionType  string                      `json:"exceptionType"`
	Message        string                      `json:"message"`
	Fingerprint    string                      `json:"fingerprint"`
	StackTrace     []StackFrame                `json:"stackTrace"`
	LocalVariables map[string]CapturedVariable `json:"localVariables"`
	Context        map[string]any              `json:"context"`
	CapturedAt     string                      `json:"capturedAt"`
}

// MarshalJSON encodes the record with the collector's field names and a
// millisecond-precision UTC timestamp.
func (r CaptureRecord) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:             r.ID,
		ExceptionType:  r.ExceptionType,
		Message:        r.Message,
		Fingerprint:    r.Fingerprint,
		StackTrace:     r.StackTrace,
		LocalVariables: r.LocalVariables,
		Context:        r.Context,
		CapturedAt:     r.CapturedAt.UTC().Format(CapturedTimeFormat),
	}
	if out.StackTrace == nil {
		out.StackTrace = []StackFrame{}
	}
	if out.LocalVariables == nil {
		out.LocalVariables = map[string]CapturedVariable{}
	}
	if out.Context == nil {
		out.Context = map[string]any{}
	}
	return json.Marshal(out)
}

// Fields returns the record as a generic JSON object, as it appears on the wire.
func (r CaptureRecord) Fields() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
