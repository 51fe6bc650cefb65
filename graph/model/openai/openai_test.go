package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/stategraph/graph/model"
	"github.com/openai/openai-go/option"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "Searching the archive.",
      "tool_calls": [{
        "id": "call_abc",
        "type": "function",
        "function": {"name": "search_articles", "arguments": "{\"query\": \"budget\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
}`

// newTestModel points a ChatModel at handler.
func newTestModel(t *testing.T, handler http.HandlerFunc) *ChatModel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := NewChatModel("test-key", "", option.WithBaseURL(srv.URL+"/"))
	m.retryDelay = time.Millisecond
	return m
}

func TestChatModel_Chat(t *testing.T) {
	var request map[string]interface{}
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallCompletion)
	})

	messages := []model.Message{
		{ID: "m1", Role: model.RoleSystem, Content: "You are a researcher."},
		{ID: "m2", Role: model.RoleUser, Content: "What happened to the budget?"},
		{ID: "m3", Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_0", Name: "search_articles", Input: map[string]interface{}{"query": "budget"}}}},
		{ID: "m4", Role: model.RoleTool, ToolCallID: "call_0", Content: "no results"},
	}
	tools := []model.ToolSpec{{
		Name:        "search_articles",
		Description: "Search the article archive",
		Schema:      map[string]interface{}{"type": "object", "properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}}},
	}}

	out, err := m.Chat(context.Background(), messages, tools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if out.Text != "Searching the archive." {
		t.Errorf("Text = %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].ID != "call_abc" || out.ToolCalls[0].Input["query"] != "budget" {
		t.Errorf("ToolCalls = %+v", out.ToolCalls)
	}
	if out.Usage != (model.Usage{InputTokens: 42, OutputTokens: 7}) {
		t.Errorf("Usage = %+v", out.Usage)
	}

	if request["model"] != DefaultModel {
		t.Errorf("model = %v", request["model"])
	}
	sent, _ := request["messages"].([]interface{})
	if len(sent) != 4 {
		t.Fatalf("sent %d messages, want 4", len(sent))
	}
	roles := make([]string, len(sent))
	for i, raw := range sent {
		roles[i], _ = raw.(map[string]interface{})["role"].(string)
	}
	if roles[0] != "system" || roles[1] != "user" || roles[2] != "assistant" || roles[3] != "tool" {
		t.Errorf("roles = %v", roles)
	}
	if id := sent[3].(map[string]interface{})["tool_call_id"]; id != "call_0" {
		t.Errorf("tool_call_id = %v", id)
	}
	if sentTools, _ := request["tools"].([]interface{}); len(sentTools) != 1 {
		t.Errorf("tools = %v", request["tools"])
	}
}

func TestChatModel_RetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error": {"message": "rate limited", "type": "rate_limit_error"}}`)
			return
		}
		_, _ = io.WriteString(w, toolCallCompletion)
	})

	if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestChatModel_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`)
	})

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestChatModel_Preconditions(t *testing.T) {
	if _, err := NewChatModel("", "").Chat(context.Background(), nil, nil); err == nil {
		t.Error("expected error for missing API key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewChatModel("key", "").Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if m := NewChatModel("key", "gpt-4o"); m.Name() != "gpt-4o" {
		t.Errorf("Name() = %q", m.Name())
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{errors.New("connection reset by peer"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("invalid request"), false},
	}
	for _, tt := range tests {
		if got := isTransientError(tt.err); got != tt.want {
			t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
