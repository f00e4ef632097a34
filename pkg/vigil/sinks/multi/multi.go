// Package multi provides a sink that fans out to multiple sinks.
// All sinks receive all records; errors are aggregated.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/strongdm/vigil/pkg/vigil"
)

// multiSink fans out to multiple sinks.
type multiSink struct {
	sinks []vigil.Sink
}

// NewMultiSink creates a sink that writes to multiple sinks in order.
// Nil sinks are skipped. Errors are aggregated via errors.Join and carry the
// index of the failing sink.
func NewMultiSink(sinks ...vigil.Sink) vigil.Sink {
	kept := make([]vigil.Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &multiSink{sinks: kept}
}

// Write sends the record to all sinks. A failing sink does not stop the rest.
func (s *multiSink) Write(ctx context.Context, record vigil.CaptureRecord) error {
	return s.each(func(sink vigil.Sink) error {
		return sink.Write(ctx, record)
	})
}

// Flush calls Flush on all sinks, collecting any errors.
func (s *multiSink) Flush(ctx context.Context) error {
	return s.each(func(sink vigil.Sink) error {
		return sink.Flush(ctx)
	})
}

// Close calls Close on all sinks, collecting any errors.
func (s *multiSink) Close() error {
	return s.each(vigil.Sink.Close)
}

func (s *multiSink) each(fn func(vigil.Sink) error) error {
	var errs []error
	for i, sink := range s.sinks {
		if err := fn(sink); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
