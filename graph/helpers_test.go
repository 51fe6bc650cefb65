package graph

import (
	"context"
	"testing"
)

// testMsg is a minimal identifiable message used across the package tests.
type testMsg struct {
	ID   string
	Text string
}

func (m testMsg) ItemID() string { return m.ID }

func testSchema(t *testing.T) Schema {
	t.Helper()
	schema, err := NewSchema(
		Field{Name: "messages", Initial: []testMsg{}, Reduce: TypedReducer(AppendOrReplaceByID[testMsg])},
		Field{Name: "analyses", Initial: []string{}, Reduce: TypedReducer(Concat[string])},
	)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

// stop returns a state node that applies update and ends its branch.
func stop(update Update) Node {
	return StateNode(func(ctx context.Context, s State) Command {
		return Command{Update: update, Route: Stop()}
	})
}

func mustCompile(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return g
}

func mustExecutor(t *testing.T, g *Graph, opts ...Option) *Executor {
	t.Helper()
	exec, err := NewExecutor(g, opts...)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func analysesOf(t *testing.T, s State) []string {
	t.Helper()
	v, ok := Value[[]string](s, "analyses")
	if !ok {
		t.Fatalf("analyses missing or mistyped in %v", s.Map())
	}
	return v
}

func messagesOf(t *testing.T, s State) []testMsg {
	t.Helper()
	v, ok := Value[[]testMsg](s, "messages")
	if !ok {
		t.Fatalf("messages missing or mistyped in %v", s.Map())
	}
	return v
}
