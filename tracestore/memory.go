package tracestore

import (
	"context"
	"sync"

	"github.com/mpst-tools/dmst/obs"
)

// MemoryStore is an in-memory Store, designed for tests and short-lived
// runs where persistence across process restarts isn't required.
type MemoryStore struct {
	mu       sync.RWMutex
	traces   map[string][]obs.Event
	runOrder []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: make(map[string][]obs.Event)}
}

// AppendEvents implements Store.
func (m *MemoryStore) AppendEvents(_ context.Context, runID string, evs []obs.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.traces[runID]; !ok {
		m.runOrder = append(m.runOrder, runID)
	}
	m.traces[runID] = append(m.traces[runID], evs...)
	return nil
}

// LoadTrace implements Store.
func (m *MemoryStore) LoadTrace(_ context.Context, runID string) ([]obs.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trace, ok := m.traces[runID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]obs.Event, len(trace))
	copy(out, trace)
	return out, nil
}

// ListRuns implements Store.
func (m *MemoryStore) ListRuns(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.runOrder))
	copy(out, m.runOrder)
	return out, nil
}

// Close implements Store; a no-op, there is nothing to release.
func (m *MemoryStore) Close() error { return nil }
