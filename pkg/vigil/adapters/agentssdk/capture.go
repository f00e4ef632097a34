// capture.go turns enrichment into capture context.

package agentssdk

import (
	"context"
	"errors"
	"strings"
)

// Context keys added to captures from instrumented runs.
const (
	KeyAgentName   = "agent_name"
	KeyModel       = "model"
	KeyToolName    = "tool_name"
	KeyToolCallID  = "tool_call_id"
	KeyOperation   = "operation"
	KeyOperationID = "operation_id"
	KeyErrorClass  = "error_class"
	KeyOperations  = "operations"
)

// Error classes.
const (
	ClassError     = "error"
	ClassTimeout   = "timeout"
	ClassCanceled  = "canceled"
	ClassGuardrail = "guardrail"
	ClassPanic     = "panic"
)

var guardrailPatterns = []string{
	"guardrail",
	"content policy",
	"safety filter",
	"blocked by policy",
}

// classifyError buckets err for triage.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ClassError
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}
	msg := strings.ToLower(err.Error())
	for _, p := range guardrailPatterns {
		if strings.Contains(msg, p) {
			return ClassGuardrail
		}
	}
	return ClassError
}

// enrichmentContext renders e as capture context. Empty fields are omitted.
func enrichmentContext(e Enrichment, class string) map[string]any {
	out := map[string]any{KeyErrorClass: class}
	for key, value := range map[string]string{
		KeyAgentName:   e.AgentName,
		KeyModel:       e.Model,
		KeyToolName:    e.ToolName,
		KeyToolCallID:  e.ToolCallID,
		KeyOperation:   e.Operation,
		KeyOperationID: e.OperationID,
	} {
		if value != "" {
			out[key] = value
		}
	}
	if ops := e.Operations(); len(ops) > 0 {
		out[KeyOperations] = ops
	}
	return out
}
