package graph

// Edge represents a statically declared connection between two nodes.
//
// Edges are consulted only when a node returns a Command whose Route is the
// zero value (RouteEdges). Explicit routes always take precedence.
//   - Unconditional: always traverse (When = nil).
//   - Conditional: traverse only if When returns true for the merged State.
//
// Edges are evaluated in declaration order; the first match wins.
type Edge struct {
	// From is the source node name.
	From string

	// To is the destination node name, or END.
	To string

	// When is an optional predicate on the merged State.
	When Predicate
}

// Predicate evaluates the merged State to decide whether an edge is taken.
// Predicates should be pure functions.
type Predicate func(state State) bool
