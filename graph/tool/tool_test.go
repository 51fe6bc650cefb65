package tool

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/stategraph/graph/model"
)

func TestRegistry(t *testing.T) {
	search := &MockTool{ToolName: "search_articles"}
	fetch := &MockTool{ToolName: "fetch_article"}

	reg, err := NewRegistry(search, nil, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := reg.Get("fetch_article"); !ok || got != Tool(fetch) {
		t.Error("Get did not return the registered tool")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get returned an unregistered tool")
	}

	specs := reg.Specs()
	if len(specs) != 2 || specs[0].Name != "search_articles" || specs[1].Name != "fetch_article" {
		t.Errorf("Specs = %+v", specs)
	}

	if _, err := NewRegistry(search, &MockTool{ToolName: "search_articles"}); err == nil {
		t.Error("expected duplicate tool error")
	}

	var nilReg *Registry
	if _, ok := nilReg.Get("x"); ok || nilReg.Specs() != nil {
		t.Error("nil registry must be empty")
	}
}

func TestInvoke(t *testing.T) {
	search := &MockTool{ToolName: "search_articles", Responses: []map[string]interface{}{{"ids": []string{"a1"}}}}
	broken := &MockTool{ToolName: "broken", Err: errors.New("backend down")}
	reg, _ := NewRegistry(search, broken)

	calls := []model.ToolCall{
		{ID: "call_1", Name: "search_articles", Input: map[string]interface{}{"query": "budget"}},
		{ID: "call_2", Name: "broken"},
		{ID: "call_3", Name: "unknown"},
	}
	results, err := Invoke(context.Background(), reg, calls)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Role != model.RoleTool || r.ToolCallID != calls[i].ID || r.ID == "" {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if results[0].Content != `{"ids":["a1"]}` {
		t.Errorf("search result = %s", results[0].Content)
	}

	var failure map[string]string
	if err := json.Unmarshal([]byte(results[1].Content), &failure); err != nil || failure["error"] != "backend down" {
		t.Errorf("error result = %s", results[1].Content)
	}
	if err := json.Unmarshal([]byte(results[2].Content), &failure); err != nil || failure["error"] != `unknown tool "unknown"` {
		t.Errorf("unknown tool result = %s", results[2].Content)
	}

	if err := Correlate(calls, results); err != nil {
		t.Errorf("Invoke output must correlate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Invoke(ctx, reg, calls); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCorrelate(t *testing.T) {
	calls := []model.ToolCall{{ID: "a"}, {ID: "b"}}
	result := func(id string) model.Message {
		return model.Message{Role: model.RoleTool, ToolCallID: id}
	}

	tests := []struct {
		name    string
		results []model.Message
		unknown []string
		missing []string
	}{
		{name: "matched out of order", results: []model.Message{result("b"), result("a")}},
		{name: "unknown id", results: []model.Message{result("a"), result("b"), result("zzz")}, unknown: []string{"zzz"}},
		{name: "duplicate result", results: []model.Message{result("a"), result("a"), result("b")}, unknown: []string{"a"}},
		{name: "missing result", results: []model.Message{result("a")}, missing: []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Correlate(calls, tt.results)
			if tt.unknown == nil && tt.missing == nil {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ProtocolError, got %v", err)
			}
			if !reflect.DeepEqual(perr.Unknown, tt.unknown) || !reflect.DeepEqual(perr.Missing, tt.missing) {
				t.Errorf("got unknown=%v missing=%v", perr.Unknown, perr.Missing)
			}
		})
	}
}
