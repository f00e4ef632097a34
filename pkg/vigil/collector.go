// collector.go provides the central Collector interface and default implementation.

package vigil

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Capture outcomes reported to an Observer.
const (
	OutcomeCaptured   = "captured"
	OutcomeSampledOut = "sampled_out"
	OutcomeSinkError  = "sink_error"
)

// Context keys the collector fills in.
const (
	ContextKeyUser      = "user"
	ContextKeyRunID     = "run_id"
	ContextKeyContextID = "cxdb_context_id"
	ContextKeyProcess   = "process"
)

// Collector turns errors into capture records and hands them to a sink.
type Collector interface {
	// Capture assembles a record for err and delivers it to the sink.
	// Returns nil when err is nil or the capture was sampled out. Sink
	// failures are logged, never returned.
	Capture(ctx context.Context, err error, opts ...CaptureOption) *CaptureRecord

	// Flush ensures any buffered records are delivered.
	Flush(ctx context.Context) error

	// Close releases resources held by the collector.
	Close() error
}

// Observer receives capture outcomes. metrics.Metrics satisfies it.
type Observer interface {
	ObserveCapture(outcome string)
}

// CaptureOption configures a single Capture call.
type CaptureOption func(*captureOptions)

type captureOptions struct {
	extra  map[string]any
	locals map[string]any
	skip   int
}

// WithExtra merges per-call context over the scope context.
func WithExtra(extra map[string]any) CaptureOption {
	return func(o *captureOptions) {
		o.extra = extra
	}
}

// WithLocals attaches caller-supplied variables, captured at depth 0.
func WithLocals(locals map[string]any) CaptureOption {
	return func(o *captureOptions) {
		o.locals = locals
	}
}

// WithSkip drops n additional caller frames from the top of the stack.
// Wrappers around Capture use it to hide themselves.
func WithSkip(n int) CaptureOption {
	return func(o *captureOptions) {
		o.skip += n
	}
}

// CollectorOption configures a Collector.
type CollectorOption func(*collectorConfig)

type collectorConfig struct {
	sink     Sink
	scope    *Scope
	scrubber *Scrubber
	sampler  *Sampler
	capturer *Capturer
	logger   *zap.Logger
	observer Observer
	started  time.Time
}

// WithSink sets the sink for the collector.
func WithSink(sink Sink) CollectorOption {
	return func(c *collectorConfig) {
		c.sink = sink
	}
}

// WithScope shares a Scope between the collector and its owner.
func WithScope(scope *Scope) CollectorOption {
	return func(c *collectorConfig) {
		c.scope = scope
	}
}

// WithScrubber configures the collector with a custom scrubber configuration.
func WithScrubber(cfg ScrubberConfig) CollectorOption {
	return func(c *collectorConfig) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() CollectorOption {
	return func(c *collectorConfig) {
		c.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// WithSampler sets the sampler. Defaults to keeping every capture.
func WithSampler(s *Sampler) CollectorOption {
	return func(c *collectorConfig) {
		c.sampler = s
	}
}

// WithCapturer sets the variable capturer and therefore its bounds.
func WithCapturer(capturer *Capturer) CollectorOption {
	return func(c *collectorConfig) {
		c.capturer = capturer
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) CollectorOption {
	return func(c *collectorConfig) {
		c.logger = logger
	}
}

// WithObserver reports capture outcomes to o.
func WithObserver(o Observer) CollectorOption {
	return func(c *collectorConfig) {
		c.observer = o
	}
}

// WithProcessState attaches memory, goroutine count and uptime since started
// to every capture under the "process" context key.
func WithProcessState(started time.Time) CollectorOption {
	return func(c *collectorConfig) {
		c.started = started
	}
}

// defaultCollector is the standard Collector implementation.
type defaultCollector struct {
	sink     Sink
	scope    *Scope
	scrubber *Scrubber
	sampler  *Sampler
	capturer *Capturer
	logger   *zap.Logger
	observer Observer
	started  time.Time
}

// NewCollector creates a new Collector with the given options.
func NewCollector(opts ...CollectorOption) Collector {
	cfg := &collectorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Default to a noop sink if none provided
	if cfg.sink == nil {
		cfg.sink = &noopSinkInternal{}
	}
	if cfg.scope == nil {
		cfg.scope = NewScope()
	}
	if cfg.sampler == nil {
		cfg.sampler = NewSampler(DefaultSamplingRate)
	}
	if cfg.capturer == nil {
		cfg.capturer = NewCapturer(DefaultMaxCaptureDepth, DefaultMaxStringLength, DefaultMaxCollectionSize)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.observer == nil {
		cfg.observer = noopObserver{}
	}

	return &defaultCollector{
		sink:     cfg.sink,
		scope:    cfg.scope,
		scrubber: cfg.scrubber,
		sampler:  cfg.sampler,
		capturer: cfg.capturer,
		logger:   cfg.logger,
		observer: cfg.observer,
		started:  cfg.started,
	}
}

// Capture samples, extracts frames, fingerprints, merges context, captures
// locals, scrubs, and writes the record to the sink.
func (c *defaultCollector) Capture(ctx context.Context, err error, opts ...CaptureOption) *CaptureRecord {
	if err == nil {
		return nil
	}

	var o captureOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !c.sampler.Sample() {
		c.observer.ObserveCapture(OutcomeSampledOut)
		return nil
	}

	exceptionType := ErrorTypeName(err)
	frames := ExtractFrames(err, o.skip+1)

	record := CaptureRecord{
		ID:             uuid.NewString(),
		ExceptionType:  exceptionType,
		Message:        errorMessage(err),
		Fingerprint:    Fingerprint(exceptionType, frames),
		StackTrace:     frames,
		LocalVariables: c.capturer.CaptureAll(o.locals),
		Context:        c.mergeContext(ctx, o.extra),
		CapturedAt:     time.Now().UTC(),
	}

	if c.scrubber != nil {
		c.scrubber.ScrubRecord(&record)
	}

	if werr := c.sink.Write(ctx, record); werr != nil {
		c.logger.Warn("vigil: sink write failed",
			zap.String("capture_id", record.ID),
			zap.String("exception_type", record.ExceptionType),
			zap.Error(werr),
		)
		c.observer.ObserveCapture(OutcomeSinkError)
	} else {
		c.observer.ObserveCapture(OutcomeCaptured)
	}

	c.logger.Debug("vigil: captured exception",
		zap.String("capture_id", record.ID),
		zap.String("exception_type", record.ExceptionType),
		zap.String("fingerprint", record.Fingerprint),
	)
	return &record
}

// mergeContext layers, lowest precedence first: process state (if enabled),
// scope context, run and cxdb identifiers from ctx, per-call extra, then the
// user when one is set.
func (c *defaultCollector) mergeContext(ctx context.Context, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(extra)+1)
	if !c.started.IsZero() {
		merged[ContextKeyProcess] = CaptureProcessState(c.started)
	}
	maps.Copy(merged, c.scope.Context())
	if ctx != nil {
		if runID, ok := RunIDFromContext(ctx); ok {
			merged[ContextKeyRunID] = runID
		}
		if contextID, ok := ContextIDFromContext(ctx); ok {
			merged[ContextKeyContextID] = contextID
		}
	}
	maps.Copy(merged, extra)
	if user, ok := c.scope.User(); ok {
		merged[ContextKeyUser] = user
	}

	for k, v := range merged {
		merged[k] = c.jsonSafe(k, v)
	}
	return merged
}

// jsonSafe keeps values that encode as JSON and replaces the rest with the
// capturer's bounded text rendering.
func (c *defaultCollector) jsonSafe(key string, v any) any {
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	return c.capturer.Capture(key, v, 0).Value
}

// Flush delegates to the sink.
func (c *defaultCollector) Flush(ctx context.Context) error {
	return c.sink.Flush(ctx)
}

// Close delegates to the sink.
func (c *defaultCollector) Close() error {
	return c.sink.Close()
}

type noopObserver struct{}

func (noopObserver) ObserveCapture(string) {}

// noopSinkInternal is an internal noop sink to avoid import cycles.
type noopSinkInternal struct{}

func (s *noopSinkInternal) Write(ctx context.Context, record CaptureRecord) error {
	return nil
}

func (s *noopSinkInternal) Flush(ctx context.Context) error {
	return nil
}

func (s *noopSinkInternal) Close() error {
	return nil
}
