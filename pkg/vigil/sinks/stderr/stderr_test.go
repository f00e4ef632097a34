package stderr

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/vigil/pkg/vigil"
)

func sampleRecord() vigil.CaptureRecord {
	path := "/app/orders/handler.go"
	name := "handler.go"
	line := 42
	length := 3
	return vigil.CaptureRecord{
		ID:            "cap-123",
		ExceptionType: "runtime.boundsError",
		Message:       "index out of range [5] with length 3",
		Fingerprint:   "abc123def4567890",
		StackTrace: []vigil.StackFrame{
			{MethodName: "main.processOrder", FileName: &name, FilePath: &path, LineNumber: &line},
			{MethodName: "runtime.goexit", IsNative: true},
		},
		LocalVariables: map[string]vigil.CapturedVariable{
			"items": {Name: "items", Type: vigil.ArrayType, Value: "[]int", ArrayLength: &length},
			"index": {Name: "index", Type: "int", Value: "5"},
		},
		Context: map[string]any{
			vigil.ContextKeyRunID:     "run-7",
			vigil.ContextKeyContextID: uint64(12345),
		},
		CapturedAt: time.Date(2025, 1, 26, 15, 4, 5, 0, time.UTC),
	}
}

func TestStderrSink_ImplementsSinkInterface(t *testing.T) {
	var _ vigil.Sink = NewStderrSink()
}

func TestStderrSink_Write_FormatsOutput(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStderrSink(WithWriter(&buf))

	require.NoError(t, sink.Write(context.Background(), sampleRecord()))

	output := buf.String()
	assert.Contains(t, output, "[VIGIL] 2025-01-26T15:04:05.000Z runtime.boundsError (fingerprint abc123def4567890)")
	assert.Contains(t, output, "Message: index out of range [5] with length 3")
	assert.Contains(t, output, "Run: run-7")
	assert.Contains(t, output, "Context: 12345")
	assert.NotContains(t, output, "Stack trace:")
	assert.NotContains(t, output, "Locals:")
}

func TestStderrSink_WithVerbose_IncludesFramesAndLocals(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStderrSink(WithWriter(&buf), WithVerbose())

	require.NoError(t, sink.Write(context.Background(), sampleRecord()))

	output := buf.String()
	assert.Contains(t, output, "at main.processOrder (/app/orders/handler.go:42)")
	assert.Contains(t, output, "at runtime.goexit\n")
	assert.Contains(t, output, "index (int) = 5")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("index (int)")), bytes.Index(buf.Bytes(), []byte("items (Array)")), "locals are sorted")
}

func TestStderrSink_Write_MinimalRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStderrSink(WithWriter(&buf), WithVerbose())

	require.NoError(t, sink.Write(context.Background(), vigil.CaptureRecord{ExceptionType: "*errors.errorString"}))

	assert.Contains(t, buf.String(), "*errors.errorString")
	assert.NotContains(t, buf.String(), "fingerprint")
	assert.NotContains(t, buf.String(), "Message:")
}

func TestStderrSink_FlushAndClose(t *testing.T) {
	sink := NewStderrSink()

	assert.NoError(t, sink.Flush(context.Background()))
	assert.NoError(t, sink.Close())
}
