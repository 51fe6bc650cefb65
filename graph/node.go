package graph

import (
	"context"
	"fmt"
)

// END is the terminal destination name. Goto(END) and edges pointing at END
// close the branch exactly like Stop().
const END = "__end__"

// Input is the single input a node is invoked with.
//
// A state node receives the full merged State. A task node receives the
// payload handed to it by a fan-out dispatch and never sees the shared State.
type Input struct {
	// State is the committed snapshot for state nodes. Empty for task nodes.
	State State

	// Payload is the task-scoped value for task nodes. Nil for state nodes.
	Payload any

	// Task is true when the node was reached through a fan-out Send.
	Task bool

	// Branch identifies the branch being executed (e.g. "b3").
	Branch string

	// Step is the executor step number (1-indexed).
	Step int
}

// Node represents a processing unit in the workflow graph.
//
// A node must be a function of its input alone and must return exactly one
// Command. A Command with a non-nil Err, or a panic, is a fatal node failure;
// the Executor never retries nodes.
type Node interface {
	Run(ctx context.Context, in Input) Command
}

// Command is the result of one node invocation: a partial state update plus a
// routing directive. It is consumed immediately by the Executor.
type Command struct {
	// Update is merged into the shared State through the schema reducers.
	Update Update

	// Route says where the branch goes next. The zero Route follows the
	// node's static edges.
	Route Route

	// Err reports a node failure. Update and Route are ignored when set.
	Err error
}

// RouteKind tags the routing variant carried by a Route.
type RouteKind int

const (
	// RouteEdges follows the statically declared edges of the node.
	RouteEdges RouteKind = iota
	// RouteTerminal closes the branch.
	RouteTerminal
	// RouteSingle schedules one state branch at Route.To.
	RouteSingle
	// RouteFanOut schedules one task branch per Send.
	RouteFanOut
)

func (k RouteKind) String() string {
	switch k {
	case RouteEdges:
		return "edges"
	case RouteTerminal:
		return "terminal"
	case RouteSingle:
		return "single"
	case RouteFanOut:
		return "fanout"
	default:
		return fmt.Sprintf("RouteKind(%d)", int(k))
	}
}

// Route is a tagged routing directive. The Executor matches on Kind only.
type Route struct {
	Kind  RouteKind
	To    string
	Sends []Send
}

// Send is one fan-out dispatch: a destination node and the payload it receives.
type Send struct {
	Node    string
	Payload any
}

// Stop returns a Route that closes the branch.
func Stop() Route {
	return Route{Kind: RouteTerminal}
}

// Goto returns a Route to a single destination that will receive the merged State.
func Goto(node string) Route {
	if node == END {
		return Stop()
	}
	return Route{Kind: RouteSingle, To: node}
}

// FanOut returns a Route that spawns one parallel task branch per Send.
// A FanOut with no sends is equivalent to Stop().
func FanOut(sends ...Send) Route {
	return Route{Kind: RouteFanOut, Sends: sends}
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, in Input) Command

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, in Input) Command {
	return f(ctx, in)
}

// StateNode adapts a function of the full State to the Node interface.
//
// Example:
//
//	synth := graph.StateNode(func(ctx context.Context, s graph.State) graph.Command {
//	    return graph.Command{Update: graph.Update{"analyses": []string{"done"}}, Route: graph.Stop()}
//	})
type StateNode func(ctx context.Context, state State) Command

// Run implements Node. A state node reached through a fan-out Send fails.
func (f StateNode) Run(ctx context.Context, in Input) Command {
	if in.Task {
		return Command{Err: fmt.Errorf("state node received a task payload of type %T", in.Payload)}
	}
	return f(ctx, in.State)
}

// TaskNode adapts a function of a typed fan-out payload to the Node interface.
type TaskNode[P any] func(ctx context.Context, payload P) Command

// Run implements Node. A payload of the wrong type, or an invocation without
// a payload, is a node failure.
func (f TaskNode[P]) Run(ctx context.Context, in Input) Command {
	if !in.Task {
		return Command{Err: fmt.Errorf("task node invoked without a payload")}
	}
	p, ok := in.Payload.(P)
	if !ok {
		var want P
		return Command{Err: fmt.Errorf("task payload has type %T, want %T", in.Payload, want)}
	}
	return f(ctx, p)
}
