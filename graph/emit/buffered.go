package emit

import "sync"

// BufferedEmitter keeps emitted events in memory, grouped by run, and answers
// history queries over them. It backs the run inspection endpoint of the
// research server and most executor tests.
//
// Without KeepRuns every run is kept until Clear is called.
//
//	events := emit.NewBufferedEmitter(emit.KeepRuns(100))
//	exec, _ := graph.NewExecutor(g, graph.WithEmitter(events))
//	_, _ = exec.Run(ctx, "run-001", nil)
//
//	joins := events.GetHistoryWithFilter("run-001", emit.HistoryFilter{Msg: emit.MsgJoin})
type BufferedEmitter struct {
	mu      sync.RWMutex
	maxRuns int
	order   []string // run ids, oldest first
	events  map[string][]Event
}

// BufferOption configures a BufferedEmitter.
type BufferOption func(*BufferedEmitter)

// KeepRuns bounds the buffer to the n most recently started runs. When a new
// run arrives at capacity, the oldest run is dropped. n <= 0 means unbounded.
func KeepRuns(n int) BufferOption {
	return func(b *BufferedEmitter) { b.maxRuns = n }
}

// HistoryFilter selects events of one run. Zero fields match everything;
// set fields are combined with AND.
//
//	two, three := 2, 3
//	ends := events.GetHistoryWithFilter("run-001", emit.HistoryFilter{
//		NodeID:  "researcher",
//		Msg:     emit.MsgNodeEnd,
//		MinStep: &two,
//		MaxStep: &three,
//	})
type HistoryFilter struct {
	NodeID   string
	BranchID string
	Msg      string
	MinStep  *int
	MaxStep  *int
}

// Match reports whether e satisfies f.
func (f HistoryFilter) Match(e Event) bool {
	switch {
	case f.NodeID != "" && e.NodeID != f.NodeID:
		return false
	case f.BranchID != "" && e.BranchID != f.BranchID:
		return false
	case f.Msg != "" && e.Msg != f.Msg:
		return false
	case f.MinStep != nil && e.Step < *f.MinStep:
		return false
	case f.MaxStep != nil && e.Step > *f.MaxStep:
		return false
	}
	return true
}

// NewBufferedEmitter creates an empty buffer. Safe for concurrent use.
func NewBufferedEmitter(opts ...BufferOption) *BufferedEmitter {
	b := &BufferedEmitter{events: make(map[string][]Event)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit appends event to its run's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, known := b.events[event.RunID]; !known {
		if b.maxRuns > 0 && len(b.order) >= b.maxRuns {
			oldest := b.order[0]
			b.order = b.order[1:]
			delete(b.events, oldest)
		}
		b.order = append(b.order, event.RunID)
	}
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory returns a copy of every event of runID in emission order.
// An unknown run yields an empty, non-nil slice.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns a copy of the events of runID that match
// filter, in emission order. No match yields an empty, non-nil slice.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, e := range b.events[runID] {
		if filter.Match(e) {
			result = append(result, e)
		}
	}
	return result
}

// Clear drops the events of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		b.order = nil
		return
	}
	delete(b.events, runID)
	for i, id := range b.order {
		if id == runID {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

// Runs returns the buffered run ids, oldest first.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]string(nil), b.order...)
}
