package graph

import (
	"encoding/json"
	"sort"
)

// Update is a partial state: a mapping from a subset of schema fields to the
// values that will be merged into them through each field's reducer.
type Update map[string]any

// State is an immutable snapshot of the shared workflow state.
//
// The Executor owns the only mutable copy of the state during a run. Each
// state node receives its own deep copy and returns an Update; changes made
// to the copy in place are discarded.
//
// The zero State is empty and safe to use.
type State struct {
	values map[string]any
}

func newState(values map[string]any) State {
	return State{values: values}
}

// Get returns the value stored for key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of fields in the snapshot.
func (s State) Len() int {
	return len(s.values)
}

// Keys returns the field names in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a shallow copy of the snapshot's fields.
func (s State) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the snapshot as a JSON object keyed by field name.
func (s State) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// Value returns the field key of s converted to T.
//
// The second result is false when the field is absent or holds a value of a
// different type.
//
// Example:
//
//	analyses, _ := graph.Value[[]string](state, "analyses")
func Value[T any](s State, key string) (T, bool) {
	var zero T
	raw, ok := s.values[key]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// clone copies the field map so that a step can be merged without touching
// the committed snapshot.
func (s State) clone() map[string]any {
	out := make(map[string]any, len(s.values)+1)
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
