// enrichment.go stores per-run data gathered by hooks so the runner wrapper
// can attach it to a capture.

package agentssdk

import "sync"

// Enrichment is what the hooks know about a run at the moment it fails.
type Enrichment struct {
	AgentName string
	Model     string
	ToolName  string

	// ToolCallID is the ID of the current tool call.
	ToolCallID string

	// Operation is "tool", "llm", or empty before the first call.
	Operation   string
	OperationID string

	ops *operationLog
}

// AddOperation appends to the run's operation trail.
func (e *Enrichment) AddOperation(op OperationRecord) {
	if e.ops == nil {
		e.ops = newOperationLog(MaxOperations)
	}
	e.ops.add(op)
}

// UpdateLastOperation applies fn to the newest operation if it has the given kind.
func (e *Enrichment) UpdateLastOperation(kind string, fn func(*OperationRecord)) bool {
	if e.ops == nil {
		return false
	}
	return e.ops.updateLast(kind, fn)
}

// Operations returns the trail, oldest first.
func (e Enrichment) Operations() []OperationRecord {
	if e.ops == nil {
		return nil
	}
	return e.ops.all()
}

// EnrichmentStore provides thread-safe storage for per-run enrichment data.
type EnrichmentStore interface {
	// Update applies fn to the enrichment for runID, creating it if needed.
	// fn runs under the store lock: it must be fast and must not call back
	// into the store.
	Update(runID string, fn func(e *Enrichment))

	// Get returns a snapshot of the enrichment for runID.
	Get(runID string) (Enrichment, bool)

	// Delete removes the enrichment for runID.
	Delete(runID string)
}

type inMemoryEnrichmentStore struct {
	mu   sync.RWMutex
	data map[string]*Enrichment
}

// NewEnrichmentStore creates a new in-memory enrichment store.
func NewEnrichmentStore() EnrichmentStore {
	return &inMemoryEnrichmentStore{
		data: make(map[string]*Enrichment),
	}
}

func (s *inMemoryEnrichmentStore) Update(runID string, fn func(e *Enrichment)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[runID]
	if !ok {
		e = &Enrichment{}
		s.data[runID] = e
	}
	fn(e)
}

func (s *inMemoryEnrichmentStore) Get(runID string) (Enrichment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[runID]
	if !ok {
		return Enrichment{}, false
	}
	snapshot := *e
	snapshot.ops = e.ops.clone()
	return snapshot, true
}

func (s *inMemoryEnrichmentStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
}

// Len reports how many runs are tracked.
func (s *inMemoryEnrichmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
