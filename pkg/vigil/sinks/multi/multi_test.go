package multi

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/vigil/pkg/vigil"
)

// mockSink is a test sink that tracks calls and can return errors.
type mockSink struct {
	mu       sync.Mutex
	records  []vigil.CaptureRecord
	writeErr error
	flushErr error
	closeErr error
	closed   bool
}

func (s *mockSink) Write(ctx context.Context, record vigil.CaptureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *mockSink) Flush(ctx context.Context) error {
	return s.flushErr
}

func (s *mockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestMultiSink_ImplementsSinkInterface(t *testing.T) {
	var _ vigil.Sink = NewMultiSink()
}

func TestMultiSink_Write_CallsAllSinks(t *testing.T) {
	sinks := []*mockSink{{}, {}, {}}
	multi := NewMultiSink(sinks[0], sinks[1], sinks[2])

	require.NoError(t, multi.Write(context.Background(), vigil.CaptureRecord{ID: "cap-123"}))

	for i, sink := range sinks {
		require.Equal(t, 1, sink.count(), "sink %d", i)
		assert.Equal(t, "cap-123", sink.records[0].ID)
	}
}

func TestMultiSink_Write_AggregatesErrors(t *testing.T) {
	err1 := errors.New("sink1 error")
	err2 := errors.New("sink2 error")
	third := &mockSink{}
	multi := NewMultiSink(&mockSink{writeErr: err1}, &mockSink{writeErr: err2}, third)

	err := multi.Write(context.Background(), vigil.CaptureRecord{})

	require.Error(t, err)
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
	assert.Contains(t, err.Error(), "sink 0: sink1 error")
	assert.Contains(t, err.Error(), "sink 1: sink2 error")
	assert.Equal(t, 1, third.count(), "healthy sink still receives the record")
}

func TestMultiSink_SkipsNilSinks(t *testing.T) {
	sink := &mockSink{}
	multi := NewMultiSink(nil, sink, nil)

	require.NoError(t, multi.Write(context.Background(), vigil.CaptureRecord{}))
	assert.Equal(t, 1, sink.count())
}

func TestMultiSink_Flush_AggregatesErrors(t *testing.T) {
	err1 := errors.New("flush error 1")
	err2 := errors.New("flush error 2")
	multi := NewMultiSink(&mockSink{flushErr: err1}, &mockSink{flushErr: err2})

	err := multi.Flush(context.Background())

	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
}

func TestMultiSink_Close_CallsAllSinks(t *testing.T) {
	closeErr := errors.New("close error")
	sink1 := &mockSink{closeErr: closeErr}
	sink2 := &mockSink{}
	multi := NewMultiSink(sink1, sink2)

	assert.ErrorIs(t, multi.Close(), closeErr)
	assert.True(t, sink1.isClosed())
	assert.True(t, sink2.isClosed())
}

func TestMultiSink_EmptySinks(t *testing.T) {
	multi := NewMultiSink()

	assert.NoError(t, multi.Write(context.Background(), vigil.CaptureRecord{}))
	assert.NoError(t, multi.Flush(context.Background()))
	assert.NoError(t, multi.Close())
}
