// Package graph provides the core graph execution engine for stategraph.
package graph

import (
	"errors"
	"fmt"
)

// ErrMaxStepsExceeded indicates that the graph execution reached the maximum
// allowed step count without every branch reaching a terminal route.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNodeTimeout indicates that a node invocation exceeded its configured timeout.
var ErrNodeTimeout = errors.New("node exceeded timeout")

// ErrRunExists indicates that a run ID is already in use, either by a run in
// progress on the same Executor or by a run recorded in the journal.
var ErrRunExists = errors.New("run ID already in use")

// EngineError represents a configuration or lifecycle error from the Builder or Executor.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// SchemaError is returned when an update touches a field that has no reducer.
// It is a programming error and aborts the run.
type SchemaError struct {
	Field  string
	Node   string
	Branch string
}

func (e *SchemaError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("schema: field %q has no reducer", e.Field)
	}
	return fmt.Sprintf("schema: field %q has no reducer (node %s, branch %s)", e.Field, e.Node, e.Branch)
}

// ReducerError is returned when a reducer observes a malformed item.
type ReducerError struct {
	Field  string
	Node   string
	Branch string
	Reason string
}

func (e *ReducerError) Error() string {
	msg := "reducer"
	if e.Field != "" {
		msg += " for field " + e.Field
	}
	msg += ": " + e.Reason
	if e.Node != "" {
		msg += fmt.Sprintf(" (node %s, branch %s)", e.Node, e.Branch)
	}
	return msg
}

// DuplicateNodeError is returned by Builder.AddNode when the name is already registered.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return "duplicate node: " + e.Name
}

// UnknownNodeError is returned at build time when a name refers to a node that
// has not been registered.
type UnknownNodeError struct {
	Name string
	// Context says where the name was referenced, e.g. "entry point" or "edge from a".
	Context string
}

func (e *UnknownNodeError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("unknown node %q (%s)", e.Name, e.Context)
	}
	return fmt.Sprintf("unknown node %q", e.Name)
}

// MalformedDecisionError is returned when an upstream collaborator produced a
// structurally invalid decision, such as an in-scope decision with no tasks.
type MalformedDecisionError struct {
	Reason string
	// Raw holds the offending payload when one is available.
	Raw string
}

func (e *MalformedDecisionError) Error() string {
	return "malformed decision: " + e.Reason
}

// NodeExecutionError wraps a failure raised by a node instead of a usable Command.
// Nodes are never retried by the Executor.
type NodeExecutionError struct {
	Node   string
	Branch string
	Step   int
	Cause  error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed (branch %s, step %d): %v", e.Node, e.Branch, e.Step, e.Cause)
}

// Unwrap returns the cause so callers can match the original error.
func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// RoutingError is returned when a Command routes to a destination that cannot
// be resolved at run time.
type RoutingError struct {
	Node   string
	Branch string
	Target string
	Reason string
}

func (e *RoutingError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("routing from %s (branch %s) to %q: %s", e.Node, e.Branch, e.Target, e.Reason)
	}
	return fmt.Sprintf("routing from %s (branch %s): %s", e.Node, e.Branch, e.Reason)
}

// PanicError is the cause recorded when a node panics instead of returning a Command.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node panicked: %v", e.Value)
}
