// Package noop provides a sink that discards every capture record.
// A disabled agent uses it so capture calls stay cheap and harmless.
package noop

import (
	"context"

	"github.com/strongdm/vigil/pkg/vigil"
)

type noopSink struct{}

// NewNoopSink creates a sink that discards all records.
func NewNoopSink() vigil.Sink {
	return noopSink{}
}

func (noopSink) Write(context.Context, vigil.CaptureRecord) error { return nil }

func (noopSink) Flush(context.Context) error { return nil }

func (noopSink) Close() error { return nil }
