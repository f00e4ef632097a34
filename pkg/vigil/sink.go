// sink.go defines the Sink interface for capture record destinations.

package vigil

import "context"

// Sink is the destination for capture records.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write delivers a capture record. Called after scrubbing.
	// Implementations should be idempotent when possible.
	Write(ctx context.Context, record CaptureRecord) error

	// Flush ensures any buffered records are delivered.
	// For synchronous sinks, this may be a no-op.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	// After Close is called, Write and Flush should return errors.
	Close() error
}
