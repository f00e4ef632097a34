package vigil

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCaptureRecord_MarshalJSON_WireShape(t *testing.T) {
	line := 42
	file := "main.go"
	path := "/app/main.go"
	record := CaptureRecord{
		ID:            "0b8f5c2e-7f5e-4a55-9d89-8e6f2c1f9d10",
		ExceptionType: "*fs.PathError",
		Message:       "open /nope: no such file or directory",
		Fingerprint:   "0123456789abcdef",
		StackTrace: []StackFrame{
			{MethodName: "main.load", FileName: &file, FilePath: &path, LineNumber: &line},
		},
		CapturedAt: time.Date(2026, 3, 4, 5, 6, 7, 891_234_567, time.FixedZone("x", 3600)),
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if got["capturedAt"] != "2026-03-04T04:06:07.891Z" {
		t.Errorf("capturedAt = %v, want UTC millisecond timestamp", got["capturedAt"])
	}
	if got["exceptionType"] != "*fs.PathError" {
		t.Errorf("exceptionType = %v", got["exceptionType"])
	}

	locals, ok := got["localVariables"].(map[string]any)
	if !ok || len(locals) != 0 {
		t.Errorf("localVariables = %v, want empty object", got["localVariables"])
	}
	if _, ok := got["context"].(map[string]any); !ok {
		t.Errorf("context = %v, want object", got["context"])
	}

	frames := got["stackTrace"].([]any)
	frame := frames[0].(map[string]any)
	if frame["lineNumber"] != float64(42) {
		t.Errorf("lineNumber = %v, want 42", frame["lineNumber"])
	}
	if frame["isNative"] != false {
		t.Errorf("isNative = %v, want false", frame["isNative"])
	}
}

func TestStackFrame_MarshalJSON_OmitsUnknownLocation(t *testing.T) {
	data, err := json.Marshal(StackFrame{MethodName: "*errors.errorString"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	for _, key := range []string{"fileName", "filePath", "lineNumber"} {
		if strings.Contains(s, key) {
			t.Errorf("synthetic frame JSON %s should omit %q", s, key)
		}
	}
}

func TestCapturedVariable_MarshalJSON_UnexpandedSequence(t *testing.T) {
	n := 500
	v := CapturedVariable{Name: "big", Type: "Array", Value: "[]int(500)", ArrayLength: &n}

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "arrayElements") {
		t.Errorf("unexpanded sequence should omit arrayElements: %s", s)
	}
	if !strings.Contains(s, `"arrayLength":500`) {
		t.Errorf("arrayLength missing: %s", s)
	}
}

func TestCaptureRecord_Fields(t *testing.T) {
	record := CaptureRecord{
		ID:         "id-1",
		Context:    map[string]any{"tenant": "acme"},
		CapturedAt: time.Now(),
	}

	fields, err := record.Fields()
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	if fields["id"] != "id-1" {
		t.Errorf("id = %v, want id-1", fields["id"])
	}
	ctx := fields["context"].(map[string]any)
	if ctx["tenant"] != "acme" {
		t.Errorf("context.tenant = %v, want acme", ctx["tenant"])
	}
}
