package async

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/strongdm/vigil/pkg/vigil"
)

// slowSink is a test sink that can be slow and tracks records.
type slowSink struct {
	mu       sync.Mutex
	records  []vigil.CaptureRecord
	delay    time.Duration
	writeErr error
	flushed  atomic.Bool
	closed   atomic.Bool
}

func (s *slowSink) Write(ctx context.Context, record vigil.CaptureRecord) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *slowSink) Flush(ctx context.Context) error {
	s.flushed.Store(true)
	return nil
}

func (s *slowSink) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *slowSink) getRecords() []vigil.CaptureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]vigil.CaptureRecord, len(s.records))
	copy(result, s.records)
	return result
}

func record(i int) vigil.CaptureRecord {
	return vigil.CaptureRecord{ID: "cap-" + strconv.Itoa(i)}
}

func TestAsyncSink_ImplementsSinkInterface(t *testing.T) {
	var _ vigil.Sink = NewAsyncSink(&slowSink{})
}

func TestAsyncSink_Write_ReturnsImmediately(t *testing.T) {
	inner := &slowSink{delay: 200 * time.Millisecond}
	sink := NewAsyncSink(inner, WithQueueSize(100))
	defer sink.Close()

	start := time.Now()
	err := sink.Write(context.Background(), record(1))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 100*time.Millisecond, "Write should not wait on the inner sink")
}

func TestAsyncSink_PreservesOrder(t *testing.T) {
	inner := &slowSink{}
	sink := NewAsyncSink(inner)

	for i := range 20 {
		require.NoError(t, sink.Write(context.Background(), record(i)))
	}
	require.NoError(t, sink.Close())

	records := inner.getRecords()
	require.Len(t, records, 20)
	for i, r := range records {
		assert.Equal(t, "cap-"+strconv.Itoa(i), r.ID)
	}
}

func TestAsyncSink_DropsOldest_WhenQueueFull(t *testing.T) {
	inner := &slowSink{delay: 50 * time.Millisecond}
	var droppedCount atomic.Int32
	sink := NewAsyncSink(inner,
		WithQueueSize(2),
		WithOnDropped(func(count int) {
			droppedCount.Add(int32(count))
		}),
	)

	for i := range 10 {
		require.NoError(t, sink.Write(context.Background(), record(i)))
	}
	require.NoError(t, sink.Close())

	dropped := int(droppedCount.Load())
	assert.Positive(t, dropped)
	records := inner.getRecords()
	assert.Equal(t, 10, len(records)+dropped, "every record is either delivered or counted as dropped")
	require.NotEmpty(t, records)
	assert.Equal(t, "cap-9", records[len(records)-1].ID, "the newest record survives")
}

func TestAsyncSink_Flush_DrainsQueue(t *testing.T) {
	inner := &slowSink{delay: time.Millisecond}
	sink := NewAsyncSink(inner, WithQueueSize(100))
	defer sink.Close()

	for i := range 10 {
		require.NoError(t, sink.Write(context.Background(), record(i)))
	}

	require.NoError(t, sink.Flush(context.Background()))
	assert.Len(t, inner.getRecords(), 10)
	assert.True(t, inner.flushed.Load())
}

func TestAsyncSink_Flush_RespectsContext(t *testing.T) {
	inner := &slowSink{delay: 200 * time.Millisecond}
	sink := NewAsyncSink(inner)
	defer sink.Close()

	require.NoError(t, sink.Write(context.Background(), record(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Flush(ctx), context.DeadlineExceeded)
}

func TestAsyncSink_Close_DrainsAndClosesInner(t *testing.T) {
	inner := &slowSink{}
	sink := NewAsyncSink(inner, WithQueueSize(100))

	for i := range 5 {
		require.NoError(t, sink.Write(context.Background(), record(i)))
	}

	require.NoError(t, sink.Close())
	assert.Len(t, inner.getRecords(), 5)
	assert.True(t, inner.closed.Load())
}

func TestAsyncSink_WriteAfterClose_ReturnsError(t *testing.T) {
	sink := NewAsyncSink(&slowSink{})
	require.NoError(t, sink.Close())

	assert.ErrorIs(t, sink.Write(context.Background(), record(1)), ErrClosed)
}

func TestAsyncSink_InnerErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	inner := &slowSink{writeErr: errors.New("backend down")}
	sink := NewAsyncSink(inner, WithLogger(zap.New(core)))

	require.NoError(t, sink.Write(context.Background(), record(1)))
	require.NoError(t, sink.Close())

	entries := logs.FilterMessage("vigil: async delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cap-1", entries[0].ContextMap()["capture_id"])
}
