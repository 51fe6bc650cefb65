package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process runs where the journal only needs to outlive the run
//
// MemStore is thread-safe. Data is lost when the process terminates.
type MemStore struct {
	mu    sync.RWMutex
	steps map[string][]StepRecord // runID -> steps, ascending
}

// NewMemStore creates a new in-memory store.
//
// Example:
//
//	journal := store.NewMemStore()
//	exec, _ := graph.NewExecutor(g, graph.WithStore(journal))
func NewMemStore() *MemStore {
	return &MemStore{
		steps: make(map[string][]StepRecord),
	}
}

// SaveStep stores a copy of rec, keeping the run's steps sorted.
func (m *MemStore) SaveStep(_ context.Context, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec = copyRecord(rec)
	records := m.steps[rec.RunID]
	i := sort.Search(len(records), func(i int) bool { return records[i].Step >= rec.Step })
	switch {
	case i < len(records) && records[i].Step == rec.Step:
		records[i] = rec
	default:
		records = append(records, StepRecord{})
		copy(records[i+1:], records[i:])
		records[i] = rec
	}
	m.steps[rec.RunID] = records
	return nil
}

// LoadLatest returns the highest-numbered step of runID.
func (m *MemStore) LoadLatest(_ context.Context, runID string) (StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		return StepRecord{}, ErrNotFound
	}
	return copyRecord(records[len(records)-1]), nil
}

// History returns every step of runID in ascending order.
func (m *MemStore) History(_ context.Context, runID string) ([]StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]StepRecord, len(records))
	for i, r := range records {
		out[i] = copyRecord(r)
	}
	return out, nil
}

// Runs returns the run IDs with at least one journaled step, sorted.
func (m *MemStore) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]string, 0, len(m.steps))
	for runID := range m.steps {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs
}

func copyRecord(r StepRecord) StepRecord {
	out := r
	out.Nodes = append([]string(nil), r.Nodes...)
	out.State = append([]byte(nil), r.State...)
	return out
}
