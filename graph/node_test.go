package graph

import (
	"context"
	"testing"
)

func TestRouteConstructors(t *testing.T) {
	tests := []struct {
		name  string
		route Route
		kind  RouteKind
	}{
		{"zero route follows edges", Route{}, RouteEdges},
		{"stop", Stop(), RouteTerminal},
		{"goto", Goto("next"), RouteSingle},
		{"goto END is terminal", Goto(END), RouteTerminal},
		{"fanout", FanOut(Send{Node: "w", Payload: 1}), RouteFanOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.route.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", tt.route.Kind, tt.kind)
			}
		})
	}

	if Goto("next").To != "next" {
		t.Error("Goto lost its destination")
	}
	if got := RouteKind(99).String(); got != "RouteKind(99)" {
		t.Errorf("String() = %q", got)
	}
}

func TestStateNode(t *testing.T) {
	node := StateNode(func(ctx context.Context, s State) Command {
		v, _ := s.Get("k")
		return Command{Update: Update{"seen": v}, Route: Stop()}
	})

	cmd := node.Run(context.Background(), Input{State: newState(map[string]any{"k": "v"})})
	if cmd.Err != nil || cmd.Update["seen"] != "v" {
		t.Errorf("cmd = %+v", cmd)
	}

	cmd = node.Run(context.Background(), Input{Task: true, Payload: "p"})
	if cmd.Err == nil {
		t.Error("expected error when a state node receives a task payload")
	}
}

func TestTaskNode(t *testing.T) {
	type task struct{ Topic string }
	node := TaskNode[task](func(ctx context.Context, p task) Command {
		return Command{Update: Update{"analyses": []string{p.Topic}}, Route: Stop()}
	})

	cmd := node.Run(context.Background(), Input{Task: true, Payload: task{Topic: "go"}})
	if cmd.Err != nil {
		t.Fatalf("unexpected error: %v", cmd.Err)
	}
	if got := cmd.Update["analyses"].([]string); got[0] != "go" {
		t.Errorf("update = %v", cmd.Update)
	}

	if cmd := node.Run(context.Background(), Input{Task: true, Payload: "wrong"}); cmd.Err == nil {
		t.Error("expected error for mistyped payload")
	}
	if cmd := node.Run(context.Background(), Input{State: newState(nil)}); cmd.Err == nil {
		t.Error("expected error for invocation without payload")
	}
}

func TestPolicy(t *testing.T) {
	plain := stop(nil)
	if policyOf(plain) != nil {
		t.Error("plain node reported a policy")
	}

	wrapped := WithPolicy(plain, NodePolicy{Timeout: 5})
	p := policyOf(wrapped)
	if p == nil || p.Timeout != 5 {
		t.Fatalf("policy = %+v", p)
	}
	if getNodeTimeout(p, 10) != 5 {
		t.Error("policy timeout should win over default")
	}
	if getNodeTimeout(nil, 10) != 10 {
		t.Error("default timeout should apply without policy")
	}
	if getNodeTimeout(&NodePolicy{}, 0) != 0 {
		t.Error("expected unbounded timeout")
	}
}
