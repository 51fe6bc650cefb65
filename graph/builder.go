package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Builder registers nodes, edges and the entry point of a workflow graph and
// compiles them into an immutable Graph.
//
// Construction errors are returned immediately by each method and are also
// remembered: Compile returns the first one, so a chain of calls can be
// checked once.
//
// Example:
//
//	b := graph.NewBuilder(schema)
//	b.AddNode("orchestrator", orchestrator)
//	b.AddNode("researcher", researcher)
//	b.AddNode("synthesizer", synthesizer)
//	b.SetEntryPoint("orchestrator")
//	g, err := b.Compile()
type Builder struct {
	mu sync.Mutex

	schema       Schema
	nodes        map[string]Node
	order        []string
	edges        []Edge
	destinations map[string][]string
	entry        string
	err          error
}

// NewBuilder creates a Builder for graphs over schema.
func NewBuilder(schema Schema) *Builder {
	return &Builder{
		schema:       schema,
		nodes:        make(map[string]Node),
		destinations: make(map[string][]string),
	}
}

func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return err
}

// AddNode registers a node under name.
//
// Returns a *DuplicateNodeError if name is already registered, or an
// *EngineError if name is empty, reserved, or node is nil.
func (b *Builder) AddNode(name string, node Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		return b.fail(&EngineError{Message: "node name cannot be empty", Code: "INVALID_NODE"})
	}
	if name == END {
		return b.fail(&EngineError{Message: "node name " + END + " is reserved", Code: "INVALID_NODE"})
	}
	if node == nil {
		return b.fail(&EngineError{Message: "node cannot be nil: " + name, Code: "INVALID_NODE"})
	}
	if _, exists := b.nodes[name]; exists {
		return b.fail(&DuplicateNodeError{Name: name})
	}

	b.nodes[name] = node
	b.order = append(b.order, name)
	return nil
}

// SetEntryPoint sets the node the Executor starts every run at.
// The node must already be registered.
func (b *Builder) SetEntryPoint(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.nodes[name]; !exists {
		return b.fail(&UnknownNodeError{Name: name, Context: "entry point"})
	}
	b.entry = name
	return nil
}

// AddEdge declares an unconditional static edge. to may be END.
func (b *Builder) AddEdge(from, to string) error {
	return b.AddConditionalEdge(from, to, nil)
}

// AddConditionalEdge declares a static edge taken only when when(state) is true.
//
// Node existence is checked by Compile, so edges may be declared before the
// nodes they connect.
func (b *Builder) AddConditionalEdge(from, to string, when Predicate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from == "" || to == "" {
		return b.fail(&EngineError{Message: "edge endpoints cannot be empty", Code: "INVALID_EDGE"})
	}
	b.edges = append(b.edges, Edge{From: from, To: to, When: when})
	return nil
}

// DeclareDestinations lists the nodes that from may route to through Goto or
// FanOut. Declared names are validated by Compile, and at run time a route
// from this node to any other name is rejected with a *RoutingError.
// Nodes without a declaration may route anywhere.
func (b *Builder) DeclareDestinations(from string, to ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from == "" {
		return b.fail(&EngineError{Message: "destination source cannot be empty", Code: "INVALID_EDGE"})
	}
	b.destinations[from] = append(b.destinations[from], to...)
	return nil
}

// Compile validates the registered topology and returns an immutable Graph.
//
// Compile fails if any earlier Builder call failed, if no entry point is set,
// or if an edge or declared destination names an unregistered node.
func (b *Builder) Compile() (*Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return nil, b.err
	}
	if b.entry == "" {
		return nil, &EngineError{Message: "entry point not set (call SetEntryPoint before Compile)", Code: "NO_ENTRY_POINT"}
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, &UnknownNodeError{Name: b.entry, Context: "entry point"}
	}

	for _, e := range b.edges {
		if _, ok := b.nodes[e.From]; !ok {
			return nil, &UnknownNodeError{Name: e.From, Context: "edge source"}
		}
		if e.To == END {
			continue
		}
		if _, ok := b.nodes[e.To]; !ok {
			return nil, &UnknownNodeError{Name: e.To, Context: "edge from " + e.From}
		}
	}

	destinations := make(map[string]map[string]bool, len(b.destinations))
	for from, targets := range b.destinations {
		if _, ok := b.nodes[from]; !ok {
			return nil, &UnknownNodeError{Name: from, Context: "destination source"}
		}
		set := make(map[string]bool, len(targets))
		for _, to := range targets {
			if to != END {
				if _, ok := b.nodes[to]; !ok {
					return nil, &UnknownNodeError{Name: to, Context: "destination of " + from}
				}
			}
			set[to] = true
		}
		destinations[from] = set
	}

	nodes := make(map[string]Node, len(b.nodes))
	for name, n := range b.nodes {
		nodes[name] = n
	}
	order := make([]string, len(b.order))
	copy(order, b.order)
	edges := make([]Edge, len(b.edges))
	copy(edges, b.edges)

	return &Graph{
		schema:       b.schema,
		nodes:        nodes,
		order:        order,
		edges:        edges,
		destinations: destinations,
		entry:        b.entry,
	}, nil
}

// Graph is a compiled, immutable workflow definition. An Executor may run a
// Graph any number of times; each run starts from a fresh State.
type Graph struct {
	schema       Schema
	nodes        map[string]Node
	order        []string
	edges        []Edge
	destinations map[string]map[string]bool
	entry        string
}

// Entry returns the entry point name.
func (g *Graph) Entry() string {
	return g.entry
}

// Nodes returns the registered node names in registration order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Schema returns the state schema the graph was built with.
func (g *Graph) Schema() Schema {
	return g.schema
}

// Has reports whether name is a registered node.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// allows reports whether from may route to target under its declared destinations.
func (g *Graph) allows(from, target string) bool {
	set, declared := g.destinations[from]
	if !declared {
		return true
	}
	return set[target]
}

// next evaluates the static edges of from against state and returns the
// first matching destination.
func (g *Graph) next(from string, state State) (string, bool) {
	for _, e := range g.edges {
		if e.From != from {
			continue
		}
		if e.When == nil || e.When(state) {
			return e.To, true
		}
	}
	return "", false
}

// Mermaid renders the graph as a Mermaid flowchart.
//
// Static edges are drawn as solid arrows (labelled "when" if conditional),
// declared destinations as dotted arrows, and the entry point as a circle.
func (g *Graph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString(fmt.Sprintf("    %s((\"start\"))\n", mermaidID("__start__")))
	sb.WriteString(fmt.Sprintf("    %s((\"end\"))\n", mermaidID(END)))

	for _, name := range g.order {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", mermaidID(name), name))
	}
	sb.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID("__start__"), mermaidID(g.entry)))

	for _, e := range g.edges {
		arrow := "-->"
		if e.When != nil {
			arrow = "-- \"when\" -->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", mermaidID(e.From), arrow, mermaidID(e.To)))
	}

	froms := make([]string, 0, len(g.destinations))
	for from := range g.destinations {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		targets := make([]string, 0, len(g.destinations[from]))
		for to := range g.destinations[from] {
			targets = append(targets, to)
		}
		sort.Strings(targets)
		for _, to := range targets {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", mermaidID(from), mermaidID(to)))
		}
	}
	return sb.String()
}

func mermaidID(name string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_", " ", "_", ":", "_")
	return r.Replace(name)
}
