// Package agent wires the capture engine, the resilient transport and the
// sinks into a single object an application holds for its lifetime.
//
//	a, err := agent.New(cfg)
//	if err != nil {
//	    log.Printf("vigil disabled: %v", err)
//	}
//	defer a.Shutdown(context.Background())
//	a.Connect(ctx)
//
//	a.CaptureException(err, map[string]any{"order": id}, map[string]any{"items": items})
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/strongdm/vigil/pkg/vigil"
	"github.com/strongdm/vigil/pkg/vigil/metrics"
	"github.com/strongdm/vigil/pkg/vigil/sinks/async"
	"github.com/strongdm/vigil/pkg/vigil/sinks/multi"
	"github.com/strongdm/vigil/pkg/vigil/sinks/noop"
	"github.com/strongdm/vigil/pkg/vigil/sinks/stderr"
	"github.com/strongdm/vigil/pkg/vigil/transport"
)

// ErrMissingAPIKey is returned by New when Config.APIKey is empty. The agent
// returned alongside it is usable but disabled.
var ErrMissingAPIKey = errors.New("vigil: api key is required")

// Option configures an Agent.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	registerer    prometheus.Registerer
	mirrors       []vigil.Sink
	async         bool
	asyncOpts     []async.AsyncSinkOption
	dialer        transport.DialFunc
	backoffUnit   time.Duration
	onServerError func(transport.ServerError)
	scrubber      *vigil.ScrubberConfig
	processState  bool
}

// WithLogger sets the logger. Without it the agent logs nothing unless
// Config.Debug is set, in which case it builds a development logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers the agent's self-telemetry with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithMirror delivers every capture to sink as well as the collector.
func WithMirror(sink vigil.Sink) Option {
	return func(o *options) {
		o.mirrors = append(o.mirrors, sink)
	}
}

// WithAsync moves delivery onto a background goroutine with a bounded queue.
func WithAsync(opts ...async.AsyncSinkOption) Option {
	return func(o *options) {
		o.async = true
		o.asyncOpts = opts
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(dial transport.DialFunc) Option {
	return func(o *options) {
		o.dialer = dial
	}
}

// WithBackoffUnit scales the reconnect schedule.
func WithBackoffUnit(unit time.Duration) Option {
	return func(o *options) {
		o.backoffUnit = unit
	}
}

// WithOnServerError is called for every error message from the collector.
func WithOnServerError(fn func(transport.ServerError)) Option {
	return func(o *options) {
		o.onServerError = fn
	}
}

// WithScrubbing redacts secrets from every capture before delivery.
func WithScrubbing(cfg vigil.ScrubberConfig) Option {
	return func(o *options) {
		o.scrubber = &cfg
	}
}

// WithProcessState attaches memory, goroutine count and uptime to captures.
func WithProcessState() Option {
	return func(o *options) {
		o.processState = true
	}
}

// Agent captures errors and ships them to the collector.
type Agent struct {
	cfg       vigil.Config
	scope     *vigil.Scope
	collector vigil.Collector
	channel   *transport.Channel
	metrics   *metrics.Metrics
	logger    *zap.Logger
	ownLogger bool

	// err is non-nil for a disabled agent.
	err error
}

// New builds an agent from cfg. cfg is normalized first; an empty AgentID is
// replaced by a random UUID.
//
// When the API key is missing or the backend URL is invalid, New returns the
// error together with a disabled agent: every method is safe to call, captures
// return nil and nothing is sent.
func New(cfg vigil.Config, opts ...Option) (*Agent, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg = cfg.Normalize()
	if cfg.AgentID == "" {
		cfg.AgentID = uuid.NewString()
	}

	a := &Agent{
		cfg:     cfg,
		scope:   vigil.NewScope(),
		metrics: metrics.New(o.registerer),
		logger:  o.logger,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
		if cfg.Debug {
			if dev, err := zap.NewDevelopment(); err == nil {
				a.logger = dev
				a.ownLogger = true
			}
		}
	}

	switch {
	case cfg.APIKey == "":
		a.err = ErrMissingAPIKey
	default:
		if err := cfg.Validate(); err != nil {
			a.err = fmt.Errorf("vigil: %w", err)
		}
	}
	if a.err != nil {
		a.logger.Warn("vigil: agent disabled", zap.Error(a.err))
		a.collector = vigil.NewCollector(vigil.WithSink(noop.NewNoopSink()), vigil.WithScope(a.scope))
		return a, a.err
	}

	a.channel = transport.NewChannel(cfg.BackendURL, a.identity(), a.channelOptions(o)...)

	var sink vigil.Sink = a.channel
	if o.async {
		asyncOpts := append([]async.AsyncSinkOption{
			async.WithLogger(a.logger),
			async.WithOnDropped(func(n int) {
				for range n {
					a.metrics.ObserveAsyncDrop()
				}
			}),
		}, o.asyncOpts...)
		sink = async.NewAsyncSink(sink, asyncOpts...)
	}
	extra := o.mirrors
	if cfg.Debug {
		extra = append(extra, stderr.NewStderrSink(stderr.WithVerbose()))
	}
	if len(extra) > 0 {
		sink = multi.NewMultiSink(append([]vigil.Sink{sink}, extra...)...)
	}

	collectorOpts := []vigil.CollectorOption{
		vigil.WithSink(sink),
		vigil.WithScope(a.scope),
		vigil.WithSampler(vigil.NewSampler(cfg.SamplingRate)),
		vigil.WithCapturer(vigil.NewCapturer(cfg.MaxCaptureDepth, cfg.MaxStringLength, cfg.MaxCollectionSize)),
		vigil.WithLogger(a.logger),
		vigil.WithObserver(a.metrics),
	}
	if o.scrubber != nil {
		collectorOpts = append(collectorOpts, vigil.WithScrubber(*o.scrubber))
	}
	if o.processState {
		collectorOpts = append(collectorOpts, vigil.WithProcessState(time.Now()))
	}
	a.collector = vigil.NewCollector(collectorOpts...)

	a.logger.Debug("vigil: agent initialized",
		zap.String("agent_id", cfg.AgentID),
		zap.String("backend_url", cfg.BackendURL),
		zap.String("environment", cfg.Environment),
		zap.Float64("sampling_rate", cfg.SamplingRate),
	)
	return a, nil
}

func (a *Agent) identity() transport.Identity {
	return transport.Identity{
		APIKey:       a.cfg.APIKey,
		AgentID:      a.cfg.AgentID,
		AgentVersion: a.cfg.AgentVersion,
		Environment:  a.cfg.Environment,
		Hostname:     vigil.Hostname(),
	}
}

func (a *Agent) channelOptions(o *options) []transport.Option {
	opts := []transport.Option{
		transport.WithLogger(a.logger.Named("transport")),
		transport.WithObserver(a.metrics),
	}
	if o.dialer != nil {
		opts = append(opts, transport.WithDialer(o.dialer))
	}
	if o.backoffUnit > 0 {
		opts = append(opts, transport.WithBackoffUnit(o.backoffUnit))
	}
	if o.onServerError != nil {
		opts = append(opts, transport.WithOnServerError(o.onServerError))
	}
	return opts
}

// Err reports why the agent is disabled, or nil.
func (a *Agent) Err() error {
	return a.err
}

// Config returns the normalized configuration.
func (a *Agent) Config() vigil.Config {
	return a.cfg
}

// Collector exposes the capture pipeline for integrations such as
// adapters/agentssdk. A disabled agent's collector delivers nowhere.
func (a *Agent) Collector() vigil.Collector {
	return a.collector
}

// Metrics returns the agent's self-telemetry.
func (a *Agent) Metrics() *metrics.Metrics {
	return a.metrics
}

// CaptureException captures err with per-call context and caller-supplied
// locals. Returns the record as sent, or nil when err is nil, the capture was
// sampled out, or the agent is disabled.
func (a *Agent) CaptureException(err error, extra, locals map[string]any) *vigil.CaptureRecord {
	return a.capture(context.Background(), err, extra, locals, 2)
}

// CaptureExceptionContext is CaptureException with identifiers (run ID, cxdb
// context ID) taken from ctx.
func (a *Agent) CaptureExceptionContext(ctx context.Context, err error, extra, locals map[string]any) *vigil.CaptureRecord {
	return a.capture(ctx, err, extra, locals, 2)
}

// capture hides skip frames above Collector.Capture so the stack starts at
// the application.
func (a *Agent) capture(ctx context.Context, err error, extra, locals map[string]any, skip int) *vigil.CaptureRecord {
	if a.err != nil {
		return nil
	}
	return a.collector.Capture(ctx, err,
		vigil.WithExtra(extra),
		vigil.WithLocals(locals),
		vigil.WithSkip(skip),
	)
}

// Recover captures a panic and swallows it. It must be deferred directly:
//
//	defer a.Recover(ctx)
func (a *Agent) Recover(ctx context.Context) any {
	r := recover()
	if r == nil || a.err != nil {
		return r
	}
	return vigil.RecoverValue(ctx, a.collector, r, vigil.WithSkip(1))
}

// SetContext replaces the context merged into every capture.
func (a *Agent) SetContext(ctx map[string]any) {
	a.scope.SetContext(ctx)
}

// SetUser attaches a user to every capture.
func (a *Agent) SetUser(id, email, username string) {
	a.scope.SetUser(vigil.User{ID: id, Email: email, Username: username})
}

// ClearUser stops attaching a user.
func (a *Agent) ClearUser() {
	a.scope.ClearUser()
}

// Connect dials the collector and registers. Failures schedule reconnects in
// the background; the returned error is informational. Calling it again after
// the reconnect budget ran out starts a fresh budget.
func (a *Agent) Connect(ctx context.Context) error {
	if a.err != nil {
		return a.err
	}
	return a.channel.Connect(ctx)
}

// Disconnect closes the connection and stops reconnecting. Captures made
// afterwards are queued, not sent.
func (a *Agent) Disconnect() {
	if a.channel != nil {
		a.channel.Disconnect()
	}
}

// IsAuthenticated reports whether the collector acknowledged registration.
func (a *Agent) IsAuthenticated() bool {
	return a.channel != nil && a.channel.IsAuthenticated()
}

// State reports the connection state.
func (a *Agent) State() transport.State {
	if a.channel == nil {
		return transport.StateDisconnected
	}
	return a.channel.State()
}

// Flush waits until queued captures have been sent or ctx is done.
func (a *Agent) Flush(ctx context.Context) error {
	return a.collector.Flush(ctx)
}

// Shutdown flushes what it can within ctx, then disconnects and releases
// every sink. The agent must not be used afterwards.
func (a *Agent) Shutdown(ctx context.Context) error {
	var flushErr error
	if a.IsAuthenticated() {
		flushErr = a.Flush(ctx)
	}
	closeErr := a.collector.Close()
	if a.ownLogger {
		_ = a.logger.Sync()
	}
	return errors.Join(flushErr, closeErr)
}
