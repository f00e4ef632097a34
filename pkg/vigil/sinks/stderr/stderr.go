// Package stderr provides a sink that prints captures in human-readable form.
// Useful for development and debugging; the agent adds it in debug mode.
package stderr

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/strongdm/vigil/pkg/vigil"
)

// StderrSinkOption configures the stderr sink.
type StderrSinkOption func(*stderrSinkConfig)

type stderrSinkConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose adds stack frames and captured locals to the output.
func WithVerbose() StderrSinkOption {
	return func(c *stderrSinkConfig) {
		c.verbose = true
	}
}

// WithWriter redirects output. Defaults to os.Stderr.
func WithWriter(w io.Writer) StderrSinkOption {
	return func(c *stderrSinkConfig) {
		c.out = w
	}
}

type stderrSink struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewStderrSink creates a sink that writes to stderr.
func NewStderrSink(opts ...StderrSinkOption) vigil.Sink {
	cfg := &stderrSinkConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSink{
		out:     cfg.out,
		verbose: cfg.verbose,
	}
}

// Write formats the record and prints it as one block.
//
// Format: [VIGIL] <capturedAt> <exceptionType> (fingerprint <fp>)
func (s *stderrSink) Write(ctx context.Context, record vigil.CaptureRecord) error {
	var b strings.Builder

	fmt.Fprintf(&b, "[VIGIL] %s %s", record.CapturedAt.UTC().Format(vigil.CapturedTimeFormat), record.ExceptionType)
	if record.Fingerprint != "" {
		fmt.Fprintf(&b, " (fingerprint %s)", record.Fingerprint)
	}
	b.WriteByte('\n')

	if record.Message != "" {
		fmt.Fprintf(&b, "        Message: %s\n", record.Message)
	}
	if runID, ok := record.Context[vigil.ContextKeyRunID]; ok {
		fmt.Fprintf(&b, "        Run: %v\n", runID)
	}
	if contextID, ok := record.Context[vigil.ContextKeyContextID]; ok {
		fmt.Fprintf(&b, "        Context: %v\n", contextID)
	}

	if s.verbose {
		writeFrames(&b, record.StackTrace)
		writeLocals(&b, record.LocalVariables)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.out, b.String())
	return err
}

func writeFrames(b *strings.Builder, frames []vigil.StackFrame) {
	if len(frames) == 0 {
		return
	}
	b.WriteString("        Stack trace:\n")
	for _, f := range frames {
		fmt.Fprintf(b, "          at %s", f.MethodName)
		if f.FilePath != nil {
			fmt.Fprintf(b, " (%s", *f.FilePath)
			if f.LineNumber != nil {
				fmt.Fprintf(b, ":%d", *f.LineNumber)
			}
			b.WriteByte(')')
		}
		b.WriteByte('\n')
	}
}

func writeLocals(b *strings.Builder, locals map[string]vigil.CapturedVariable) {
	if len(locals) == 0 {
		return
	}
	b.WriteString("        Locals:\n")
	for _, name := range slices.Sorted(maps.Keys(locals)) {
		v := locals[name]
		fmt.Fprintf(b, "          %s (%s) = %s\n", name, v.Type, v.Value)
	}
}

// Flush is a no-op for stderr sink.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for stderr sink.
func (s *stderrSink) Close() error {
	return nil
}
