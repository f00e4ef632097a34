// wrapper.go implements WrappedRunner, which captures the errors and panics of
// an agents.Runner. Hooks only enrich what it captures.

package agentssdk

import (
	"context"

	"github.com/google/uuid"
	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	"go.uber.org/zap"

	"github.com/strongdm/vigil/pkg/vigil"
)

// WrappedRunner wraps an agents.Runner. Every run gets a run ID in its
// context; errors returned by the runner are captured, and panics are
// captured and re-raised.
type WrappedRunner struct {
	inner       *agents.Runner
	collector   vigil.Collector
	enrichments EnrichmentStore
	logger      *zap.Logger
}

// Run executes the agent with the given input and session.
func (w *WrappedRunner) Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error) {
	ctx, runID := w.begin(ctx, session)
	defer w.enrichments.Delete(runID)
	defer w.capturePanic(ctx, runID)

	result, err := w.inner.Run(ctx, agent, input, session, w.wrapRunConfig(cfg))
	if err != nil {
		w.captureError(ctx, runID, err)
	}
	return result, err
}

// RunOnce executes a single turn of the agent.
func (w *WrappedRunner) RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error) {
	ctx, runID := w.begin(ctx, nil)
	defer w.enrichments.Delete(runID)
	defer w.capturePanic(ctx, runID)

	result, err := w.inner.RunOnce(ctx, agent, input, w.wrapRunConfig(cfg))
	if err != nil {
		w.captureError(ctx, runID, err)
	}
	return result, err
}

// RunStream starts a streaming run. Only errors returned while starting the
// stream are captured. The run's enrichment is released when ctx is done.
func (w *WrappedRunner) RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error) {
	ctx, runID := w.begin(ctx, session)
	defer w.capturePanic(ctx, runID)

	stream, err := w.inner.RunStream(ctx, agent, input, session, w.wrapRunConfig(cfg))
	if err != nil {
		w.captureError(ctx, runID, err)
		w.enrichments.Delete(runID)
		return stream, err
	}
	context.AfterFunc(ctx, func() { w.enrichments.Delete(runID) })
	return stream, nil
}

// Inner returns the underlying Runner.
func (w *WrappedRunner) Inner() *agents.Runner {
	return w.inner
}

// begin tags ctx with a fresh run ID and, when the session knows it, the
// cxdb context ID. An ID already on ctx is kept when the session has none.
func (w *WrappedRunner) begin(ctx context.Context, session any) (context.Context, string) {
	runID := uuid.NewString()
	ctx = vigil.WithRunID(ctx, runID)
	if provider, ok := session.(vigil.ContextIDProvider); ok {
		if id, err := provider.ContextID(ctx); err == nil {
			ctx = vigil.WithContextID(ctx, id)
		}
	}
	return ctx, runID
}

// wrapRunConfig clones cfg and installs the enrichment hooks around the
// caller's own hooks.
func (w *WrappedRunner) wrapRunConfig(cfg *agents.RunConfig) *agents.RunConfig {
	var cloned agents.RunConfig
	if cfg != nil {
		cloned = *cfg
	}
	cloned.Hooks = NewHookAdapter(w.enrichments, cloned.Hooks, w.logger)
	return &cloned
}

func (w *WrappedRunner) captureError(ctx context.Context, runID string, err error) {
	enrichment, _ := w.enrichments.Get(runID)
	record := w.collector.Capture(ctx, err,
		vigil.WithExtra(enrichmentContext(enrichment, classifyError(err))),
		vigil.WithSkip(1),
	)
	if record != nil {
		w.logger.Debug("vigil: captured run error",
			zap.String("run_id", runID),
			zap.String("capture_id", record.ID),
		)
	}
}

// capturePanic must be deferred directly so recover stops the panic. The
// panic is re-raised after capture.
func (w *WrappedRunner) capturePanic(ctx context.Context, runID string) {
	r := recover()
	if r == nil {
		return
	}
	enrichment, _ := w.enrichments.Get(runID)
	vigil.RecoverValue(ctx, w.collector, r,
		vigil.WithExtra(enrichmentContext(enrichment, ClassPanic)),
		vigil.WithSkip(1),
	)
	w.logger.Debug("vigil: captured run panic", zap.String("run_id", runID))
	panic(r)
}
