// Package emit provides event emission and observability for graph execution.
package emit

// Event names emitted by the graph Executor.
const (
	MsgRunStart   = "run_start"
	MsgStepStart  = "step_start"
	MsgNodeStart  = "node_start"
	MsgNodeEnd    = "node_end"
	MsgNodeError  = "node_error"
	MsgFanOut     = "fanout"
	MsgJoin       = "join"
	MsgStepCommit = "step_commit"
	MsgRunEnd     = "run_end"
	MsgRunError   = "run_error"
)

// Event represents an observability event emitted during workflow execution.
//
// Events provide insight into workflow behavior:
//   - Run and step boundaries
//   - Node invocations per branch, with their duration
//   - Fan-out dispatches and the joins that close them
//   - Failures that abort the run
//
// Events are emitted to an Emitter which can log them, buffer them for
// inspection, or turn them into OpenTelemetry spans.
type Event struct {
	// RunID identifies the workflow execution that emitted this event.
	RunID string

	// Step is the executor step number (1-indexed).
	// Zero for run-level events (run_start, run_end, run_error).
	Step int

	// NodeID identifies which node the event is about.
	// Empty string for run-level and step-level events.
	NodeID string

	// BranchID identifies the branch that invoked NodeID (e.g. "b4").
	// Empty string when the event is not tied to one branch.
	BranchID string

	// Msg is the event name, one of the Msg* constants for executor events.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "route": Routing kind chosen by the node
	//   - "width": Number of sends in a fan-out
	//   - "branches": Number of branches merged in a step
	Meta map[string]interface{}
}
