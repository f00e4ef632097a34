// instrument.go provides Instrument, the entry point for ai-agents-sdk runners.

package agentssdk

import (
	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	"go.uber.org/zap"

	"github.com/strongdm/vigil/pkg/vigil"
)

// WrapOption configures a WrappedRunner.
type WrapOption func(*WrappedRunner)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) WrapOption {
	return func(w *WrappedRunner) {
		w.logger = logger
	}
}

// WithEnrichmentStore replaces the in-memory enrichment store.
func WithEnrichmentStore(store EnrichmentStore) WrapOption {
	return func(w *WrappedRunner) {
		w.enrichments = store
	}
}

// Instrument wraps a Runner with error and panic capture.
//
//	a, _ := agent.New(cfg)
//	runner := agentssdk.Instrument(agents.NewRunner(client), a.Collector())
//	result, err := runner.Run(ctx, myAgent, input, session, nil)
func Instrument(baseRunner *agents.Runner, collector vigil.Collector, opts ...WrapOption) *WrappedRunner {
	w := &WrappedRunner{
		inner:       baseRunner,
		collector:   collector,
		enrichments: NewEnrichmentStore(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.collector == nil {
		w.collector = vigil.NewCollector()
	}
	if w.enrichments == nil {
		w.enrichments = NewEnrichmentStore()
	}
	return w
}
