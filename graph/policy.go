package graph

import "time"

// NodePolicy configures the execution behavior of a specific node.
//
// Nodes opt in by implementing PolicyProvider, or are wrapped with WithPolicy.
// Fields left at zero fall back to the Executor options.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for one invocation.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration
}

// PolicyProvider is implemented by nodes that carry their own NodePolicy.
type PolicyProvider interface {
	Policy() NodePolicy
}

type policyNode struct {
	Node
	policy NodePolicy
}

func (p policyNode) Policy() NodePolicy {
	return p.policy
}

// WithPolicy attaches policy to node.
//
// Example:
//
//	b.AddNode("research", graph.WithPolicy(researcher, graph.NodePolicy{Timeout: 30 * time.Second}))
func WithPolicy(node Node, policy NodePolicy) Node {
	return policyNode{Node: node, policy: policy}
}

func policyOf(node Node) *NodePolicy {
	if pp, ok := node.(PolicyProvider); ok {
		p := pp.Policy()
		return &p
	}
	return nil
}

