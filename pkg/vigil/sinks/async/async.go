// Package async provides a sink wrapper with a bounded queue so captures never
// wait on delivery. When the queue is full the oldest record is dropped.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/strongdm/vigil/pkg/vigil"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink is closed")

// AsyncSinkOption configures the async sink.
type AsyncSinkOption func(*asyncSinkConfig)

type asyncSinkConfig struct {
	queueSize    int
	pollInterval time.Duration
	onDropped    func(count int)
	logger       *zap.Logger
}

// WithQueueSize sets the maximum number of queued records (default: 1000).
func WithQueueSize(size int) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithFlushInterval sets how often Flush checks for an empty queue (default: 10ms).
func WithFlushInterval(d time.Duration) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithOnDropped sets a callback invoked when records are dropped due to queue overflow.
func WithOnDropped(fn func(count int)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onDropped = fn
	}
}

// WithLogger logs inner sink failures. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.logger = logger
	}
}

// asyncSink wraps a sink with a bounded queue.
type asyncSink struct {
	inner        vigil.Sink
	queue        chan vigil.CaptureRecord
	done         chan struct{}
	pending      atomic.Int64 // queued or being written
	closeOnce    sync.Once
	closeMu      sync.RWMutex
	closed       bool
	wg           sync.WaitGroup
	onDropped    func(count int)
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewAsyncSink wraps a sink with a bounded queue for async writes.
// Write returns immediately; records are delivered by a background goroutine
// in the order they were written.
func NewAsyncSink(inner vigil.Sink, opts ...AsyncSinkOption) vigil.Sink {
	cfg := &asyncSinkConfig{
		queueSize:    1000,
		pollInterval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	s := &asyncSink{
		inner:        inner,
		queue:        make(chan vigil.CaptureRecord, cfg.queueSize),
		done:         make(chan struct{}),
		onDropped:    cfg.onDropped,
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
	}

	s.wg.Add(1)
	go s.processLoop()

	return s
}

// processLoop drains the queue and writes to the inner sink.
func (s *asyncSink) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case record := <-s.queue:
			s.deliver(record)
		case <-s.done:
			// Drain remaining records
			for {
				select {
				case record := <-s.queue:
					s.deliver(record)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) deliver(record vigil.CaptureRecord) {
	defer s.pending.Add(-1)
	if err := s.inner.Write(context.Background(), record); err != nil {
		s.logger.Warn("vigil: async delivery failed", zap.String("capture_id", record.ID), zap.Error(err))
	}
}

// Write enqueues a record for async processing.
// Returns immediately. If the queue is full, drops the oldest record.
func (s *asyncSink) Write(ctx context.Context, record vigil.CaptureRecord) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	s.pending.Add(1)
	select {
	case s.queue <- record:
		return nil
	default:
		s.dropOldestAndEnqueue(record)
		return nil
	}
}

// dropOldestAndEnqueue drops the oldest record and enqueues the new one.
func (s *asyncSink) dropOldestAndEnqueue(record vigil.CaptureRecord) {
	select {
	case <-s.queue:
		s.pending.Add(-1)
		s.dropped(1)
	default:
		// Queue was emptied by processor, try again
	}

	select {
	case s.queue <- record:
	default:
		// Still full, drop the new record
		s.pending.Add(-1)
		s.dropped(1)
	}
}

func (s *asyncSink) dropped(n int) {
	if s.onDropped != nil {
		s.onDropped(n)
	}
}

// Flush blocks until every accepted record has been handed to the inner
// sink, then flushes it.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close stops the async processor after draining and closes the inner sink.
func (s *asyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()

		close(s.done)
		s.wg.Wait()
	})

	return s.inner.Close()
}
