// Package vigil captures runtime errors with the variable state around them
// and ships them to a remote collector.
//
// A capture turns an error into a CaptureRecord: a bounded, JSON-safe snapshot
// holding the error type and message, the call stack, a stable fingerprint for
// grouping, caller-supplied local variables, and merged context. Records are
// delivered through a Sink; the transport package provides a WebSocket sink
// that survives network interruption.
//
// # Core Components
//
//   - Capturer: renders arbitrary Go values into CapturedVariable trees bounded
//     by depth, string length and collection size
//   - ExtractFrames / Fingerprint: stack extraction and grouping keys
//   - Collector: samples, assembles, scrubs and delivers records
//   - Scope: context and user merged into every capture
//   - Sink: destination for records (transport, async, multi, stderr, cxdb, noop)
//   - Scrubber: redacts sensitive data with fail-closed behavior
//
// # Quick Start
//
// Most programs use the agent package, which wires all of this together:
//
//	a, err := agent.New(cfg)
//	defer a.Shutdown(ctx)
//	a.CaptureException(err, map[string]any{"order": id}, nil)
//
// Lower level, with any Sink:
//
//	collector := vigil.NewCollector(vigil.WithSink(stderr.NewStderrSink()))
//	defer vigil.Recover(ctx, collector)
//
// # Design Principles
//
//   - Capture never fails the host: reads that panic are skipped, sink errors
//     are logged
//   - Every captured value is bounded; cycles terminate at the depth limit
//   - Fail-closed scrubbing: on any error, fields are fully redacted
package vigil
