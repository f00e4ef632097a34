// hooks.go implements RunHooks that record what a run is doing. The hooks only
// enrich; failures are detected by WrappedRunner.

package agentssdk

import (
	"context"
	"time"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
	"go.uber.org/zap"

	"github.com/strongdm/vigil/pkg/vigil"
)

// HookAdapter implements agents.RunHooks. It updates the enrichment of the run
// found in ctx and delegates to an inner RunHooks.
type HookAdapter struct {
	store  EnrichmentStore
	inner  agents.RunHooks
	logger *zap.Logger
	now    func() time.Time
}

// NewHookAdapter wraps inner (may be nil). Only inner's errors are returned.
func NewHookAdapter(store EnrichmentStore, inner agents.RunHooks, logger *zap.Logger) agents.RunHooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookAdapter{
		store:  store,
		inner:  inner,
		logger: logger,
		now:    time.Now,
	}
}

// OnAgentStart records the agent name.
func (h *HookAdapter) OnAgentStart(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent) error {
	if agent != nil {
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = agent.Name()
		})
	}

	if h.inner != nil {
		return h.inner.OnAgentStart(ctx, runCtx, agent)
	}
	return nil
}

func (h *HookAdapter) OnAgentEnd(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent, result agents.RunResult) error {
	if h.inner != nil {
		return h.inner.OnAgentEnd(ctx, runCtx, agent, result)
	}
	return nil
}

// OnHandoff records the receiving agent.
func (h *HookAdapter) OnHandoff(ctx context.Context, runCtx *agents.RunContext, from *agents.Agent, to *agents.Agent) error {
	if to != nil {
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = to.Name()
		})
	}

	if h.inner != nil {
		return h.inner.OnHandoff(ctx, runCtx, from, to)
	}
	return nil
}

// OnToolStart marks a tool call as the current operation.
func (h *HookAdapter) OnToolStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, call llmsdk.ToolCall) error {
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = KindTool
		e.ToolName = tool.Name
		e.ToolCallID = call.ID
		e.OperationID = call.ID
		e.AddOperation(OperationRecord{
			Kind:      KindTool,
			StartedAt: h.now(),
			AgentName: e.AgentName,
			Tool: &ToolOperation{
				Name:      tool.Name,
				CallID:    call.ID,
				InputSize: len(call.Arguments),
			},
		})
	})

	if h.inner != nil {
		return h.inner.OnToolStart(ctx, runCtx, agent, tool, call)
	}
	return nil
}

// OnToolEnd completes the tool operation with its output size and duration.
func (h *HookAdapter) OnToolEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, output string) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		e.UpdateLastOperation(KindTool, func(op *OperationRecord) {
			op.Duration = now.Sub(op.StartedAt).Milliseconds()
			op.Tool.OutputSize = len(output)
		})
	})

	if h.inner != nil {
		return h.inner.OnToolEnd(ctx, runCtx, agent, tool, output)
	}
	return nil
}

// OnLLMStart marks an LLM call as the current operation.
func (h *HookAdapter) OnLLMStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, req llmsdk.Request) error {
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = KindLLM
		e.Model = req.Model
		e.AddOperation(OperationRecord{
			Kind:      KindLLM,
			StartedAt: h.now(),
			AgentName: e.AgentName,
			LLM:       newLLMOperation(req),
		})
	})

	if h.inner != nil {
		return h.inner.OnLLMStart(ctx, runCtx, agent, req)
	}
	return nil
}

// OnLLMEnd completes the LLM operation with response metadata.
func (h *HookAdapter) OnLLMEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, resp llmsdk.Response) error {
	now := h.now()
	h.update(ctx, func(e *Enrichment) {
		e.UpdateLastOperation(KindLLM, func(op *OperationRecord) {
			op.Duration = now.Sub(op.StartedAt).Milliseconds()
			op.LLM.complete(resp)
		})
	})

	if h.inner != nil {
		return h.inner.OnLLMEnd(ctx, runCtx, agent, resp)
	}
	return nil
}

func (h *HookAdapter) update(ctx context.Context, fn func(e *Enrichment)) {
	runID, ok := vigil.RunIDFromContext(ctx)
	if !ok {
		h.logger.Debug("vigil: hook called outside an instrumented run")
		return
	}
	h.store.Update(runID, fn)
}
