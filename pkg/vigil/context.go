// context.go carries run and cxdb correlation identifiers through
// context.Context so captures can be linked to the work that produced them.

package vigil

import "context"

type correlationKey struct{}

// correlation holds both identifiers under one key; hasContextID tells a zero
// context ID apart from an unset one.
type correlation struct {
	runID        string
	contextID    uint64
	hasContextID bool
}

func correlationFrom(ctx context.Context) correlation {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

// WithRunID returns a context carrying runID. Captures made under it get a
// "run_id" context entry.
func WithRunID(ctx context.Context, runID string) context.Context {
	c := correlationFrom(ctx)
	c.runID = runID
	return context.WithValue(ctx, correlationKey{}, c)
}

// RunIDFromContext reports the run ID, false when unset or empty.
func RunIDFromContext(ctx context.Context) (string, bool) {
	c := correlationFrom(ctx)
	return c.runID, c.runID != ""
}

// WithContextID returns a context carrying a cxdb context ID. Captures made
// under it get a "cxdb_context_id" context entry.
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	c := correlationFrom(ctx)
	c.contextID = contextID
	c.hasContextID = true
	return context.WithValue(ctx, correlationKey{}, c)
}

// ContextIDFromContext reports the cxdb context ID, false when unset.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	c := correlationFrom(ctx)
	return c.contextID, c.hasContextID
}

// ContextIDProvider is satisfied by sessions that know their cxdb context,
// such as the ai-agents-sdk CXDBSession.
type ContextIDProvider interface {
	ContextID(ctx context.Context) (uint64, error)
}
