package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// Reducer merges an incoming value into the current value of one state field.
//
// Reducers must be pure and total over well-typed inputs. A reducer that
// observes a malformed item returns a *ReducerError instead of guessing.
// current is nil when the field has no value yet.
type Reducer func(current, incoming any) (any, error)

// Field declares one state field: its initial value and the reducer that is
// the only way the field may change during a run.
type Field struct {
	Name    string
	Initial any
	Reduce  Reducer

	// Clone returns an independent copy of a field value. State nodes read
	// copies, so changing a snapshot in place never reaches the committed
	// state. When nil, values are copied through a JSON round trip into a
	// value of the same Go type; fields holding values JSON cannot represent
	// (unexported struct fields, funcs, channels) must set Clone.
	Clone func(v any) (any, error)
}

// Schema maps field names to their Field declaration.
//
// A Schema is constructed once at graph-build time and passed by value to
// the Builder; it is never modified afterwards.
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema builds a Schema from field declarations.
//
// Returns an *EngineError (code INVALID_SCHEMA) if a field has an empty name,
// a nil reducer, or is declared twice.
//
// Example:
//
//	schema, err := graph.NewSchema(
//	    graph.Field{Name: "analyses", Initial: []string{}, Reduce: graph.TypedReducer(graph.Concat[string])},
//	)
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema{
		fields: make(map[string]Field, len(fields)),
		order:  make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return Schema{}, &EngineError{Message: "schema field name cannot be empty", Code: "INVALID_SCHEMA"}
		}
		if f.Reduce == nil {
			return Schema{}, &EngineError{Message: "schema field " + f.Name + " has no reducer", Code: "INVALID_SCHEMA"}
		}
		if _, dup := s.fields[f.Name]; dup {
			return Schema{}, &EngineError{Message: "duplicate schema field: " + f.Name, Code: "INVALID_SCHEMA"}
		}
		s.fields[f.Name] = f
		s.order = append(s.order, f.Name)
	}
	return s, nil
}

// Fields returns the declared field names in declaration order.
func (s Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether name is a declared field.
func (s Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// initial returns a fresh field map holding every declared initial value.
func (s Schema) initial() map[string]any {
	values := make(map[string]any, len(s.fields))
	for name, f := range s.fields {
		values[name] = f.Initial
	}
	return values
}

// snapshot returns a copy of st whose field values share no memory with st.
func (s Schema) snapshot(st State) (State, error) {
	out := make(map[string]any, len(st.values))
	for name, v := range st.values {
		clone := deepCopy
		if f, ok := s.fields[name]; ok && f.Clone != nil {
			clone = f.Clone
		}
		c, err := clone(v)
		if err != nil {
			return State{}, fmt.Errorf("snapshot field %s: %w", name, err)
		}
		out[name] = c
	}
	return newState(out), nil
}

// deepCopy copies v through JSON into a fresh value of the same type.
func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(reflect.TypeOf(v))
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// apply merges update into values in place, one field at a time, in sorted
// field order. node and branch are only used to decorate errors.
func (s Schema) apply(values map[string]any, update Update, node, branch string) error {
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f, ok := s.fields[key]
		if !ok {
			return &SchemaError{Field: key, Node: node, Branch: branch}
		}
		merged, err := f.Reduce(values[key], update[key])
		if err != nil {
			return decorateReducerError(err, key, node, branch)
		}
		values[key] = merged
	}
	return nil
}

func decorateReducerError(err error, field, node, branch string) error {
	var re *ReducerError
	if errors.As(err, &re) {
		out := *re
		out.Field = field
		out.Node = node
		out.Branch = branch
		return &out
	}
	return &ReducerError{Field: field, Node: node, Branch: branch, Reason: err.Error()}
}

// TypedReducer adapts a typed merge function to the untyped Reducer contract.
//
// A nil current value is treated as the zero value of T. A value of any other
// type on either side yields a *ReducerError.
func TypedReducer[T any](fn func(current, incoming T) (T, error)) Reducer {
	return func(current, incoming any) (any, error) {
		var cur T
		if current != nil {
			c, ok := current.(T)
			if !ok {
				return nil, &ReducerError{Reason: fmt.Sprintf("current value has type %T, want %T", current, cur)}
			}
			cur = c
		}
		in, ok := incoming.(T)
		if !ok {
			return nil, &ReducerError{Reason: fmt.Sprintf("incoming value has type %T, want %T", incoming, cur)}
		}
		return fn(cur, in)
	}
}
