package agent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/strongdm/vigil/pkg/vigil"
)

var (
	initMu sync.Mutex
	active atomic.Pointer[Agent]
)

// Init builds an agent and makes it the process-wide default. A previous
// default is shut down without flushing. The new agent is installed even when
// New reports an error, so Default never returns a stale agent.
func Init(cfg vigil.Config, opts ...Option) (*Agent, error) {
	initMu.Lock()
	defer initMu.Unlock()

	a, err := New(cfg, opts...)
	if prev := active.Swap(a); prev != nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = prev.Shutdown(ctx)
	}
	return a, err
}

// Default returns the agent installed by Init, or nil.
func Default() *Agent {
	return active.Load()
}

// CaptureException reports err through the default agent. It is a no-op
// before Init.
func CaptureException(err error, extra, locals map[string]any) *vigil.CaptureRecord {
	a := active.Load()
	if a == nil {
		return nil
	}
	return a.capture(context.Background(), err, extra, locals, 2)
}

// reset clears the default agent. Tests only.
func reset() {
	initMu.Lock()
	defer initMu.Unlock()
	if prev := active.Swap(nil); prev != nil {
		_ = prev.collector.Close()
	}
}
