package tool

import (
	"context"
	"errors"
	"testing"
)

func TestMockTool_Responses(t *testing.T) {
	mock := &MockTool{
		ToolName:    "calculator",
		Description: "Adds numbers",
		Responses:   []map[string]interface{}{{"result": 1}, {"result": 2}},
	}

	if mock.Name() != "calculator" || mock.Spec().Description != "Adds numbers" {
		t.Errorf("unexpected identity %q / %+v", mock.Name(), mock.Spec())
	}

	for i, want := range []int{1, 2, 2} {
		out, err := mock.Call(context.Background(), map[string]interface{}{"n": i})
		if err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
		if out["result"] != want {
			t.Errorf("call %d: result = %v, want %d", i+1, out["result"], want)
		}
	}
	if mock.CallCount() != 3 || mock.Calls[2].Input["n"] != 2 {
		t.Errorf("calls not recorded: %+v", mock.Calls)
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Error("Reset did not clear calls")
	}
	if out, _ := mock.Call(context.Background(), nil); out["result"] != 1 {
		t.Error("Reset did not rewind responses")
	}
}

func TestMockTool_Errors(t *testing.T) {
	toolErr := errors.New("tool failed")
	mock := &MockTool{ToolName: "broken", Err: toolErr}
	if _, err := mock.Call(context.Background(), nil); !errors.Is(err, toolErr) {
		t.Errorf("expected tool error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&MockTool{}).Call(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	out, err := (&MockTool{}).Call(context.Background(), nil)
	if err != nil || out == nil || len(out) != 0 {
		t.Errorf("expected empty output, got %v, %v", out, err)
	}
}

func TestMockTool_Handler(t *testing.T) {
	mock := &MockTool{
		ToolName: "search_articles",
		Schema:   map[string]interface{}{"type": "object"},
		Handler: func(input map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"query": input["query"]}, nil
		},
	}
	out, err := mock.Call(context.Background(), map[string]interface{}{"query": "tram"})
	if err != nil {
		t.Fatal(err)
	}
	if out["query"] != "tram" {
		t.Errorf("handler output = %v", out)
	}
	if mock.Spec().Schema["type"] != "object" {
		t.Errorf("schema not reported: %+v", mock.Spec())
	}
}
