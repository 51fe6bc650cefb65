package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dshills/stategraph/graph/model"
)

const toolUseMessage = `{
  "id": "msg_01",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-haiku-latest",
  "content": [
    {"type": "text", "text": "Let me look that up."},
    {"type": "tool_use", "id": "toolu_01", "name": "search_articles", "input": {"query": "budget"}}
  ],
  "stop_reason": "tool_use",
  "usage": {"input_tokens": 30, "output_tokens": 9}
}`

func newTestModel(t *testing.T, handler http.HandlerFunc) *ChatModel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChatModel("test-key", "", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
}

func TestChatModel_Chat(t *testing.T) {
	var request map[string]interface{}
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("X-Api-Key = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &request); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolUseMessage)
	})

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "You are a researcher."},
		{Role: model.RoleUser, Content: "What happened to the budget?"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "toolu_a", Name: "search_articles", Input: map[string]interface{}{"query": "budget"}},
			{ID: "toolu_b", Name: "fetch_article"},
		}},
		{Role: model.RoleTool, ToolCallID: "toolu_a", Content: "[]"},
		{Role: model.RoleTool, ToolCallID: "toolu_b", Content: "not found"},
	}
	tools := []model.ToolSpec{{
		Name:        "search_articles",
		Description: "Search the article archive",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"query"},
		},
	}}

	out, err := m.Chat(context.Background(), messages, tools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.Text != "Let me look that up." {
		t.Errorf("Text = %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].ID != "toolu_01" || out.ToolCalls[0].Input["query"] != "budget" {
		t.Errorf("ToolCalls = %+v", out.ToolCalls)
	}
	if out.Usage != (model.Usage{InputTokens: 30, OutputTokens: 9}) {
		t.Errorf("Usage = %+v", out.Usage)
	}

	if request["model"] != DefaultModel {
		t.Errorf("model = %v", request["model"])
	}
	system, _ := request["system"].([]interface{})
	if len(system) != 1 || system[0].(map[string]interface{})["text"] != "You are a researcher." {
		t.Errorf("system = %v", request["system"])
	}
	sent, _ := request["messages"].([]interface{})
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3 (tool results grouped)", len(sent))
	}
	last := sent[2].(map[string]interface{})
	if last["role"] != "user" {
		t.Errorf("tool results must be sent as a user turn, got %v", last["role"])
	}
	if blocks, _ := last["content"].([]interface{}); len(blocks) != 2 {
		t.Errorf("expected 2 tool_result blocks, got %v", last["content"])
	}
	sentTools, _ := request["tools"].([]interface{})
	if len(sentTools) != 1 || sentTools[0].(map[string]interface{})["name"] != "search_articles" {
		t.Errorf("tools = %v", request["tools"])
	}
}

func TestChatModel_APIError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`)
	})

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !apiErr.RateLimited() {
		t.Errorf("unexpected APIError %+v", apiErr)
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
}

func TestExtractSystemPrompt(t *testing.T) {
	system, rest := extractSystemPrompt([]model.Message{
		{Role: model.RoleSystem, Content: "one"},
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleSystem, Content: "two"},
	})
	if system != "one\n\ntwo" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "q" {
		t.Errorf("rest = %+v", rest)
	}
}

func TestRequiredFields(t *testing.T) {
	if got := requiredFields([]string{"a"}); len(got) != 1 {
		t.Errorf("[]string: %v", got)
	}
	if got := requiredFields([]interface{}{"a", 1, "b"}); len(got) != 2 {
		t.Errorf("[]interface{}: %v", got)
	}
	if got := requiredFields(nil); got != nil {
		t.Errorf("nil: %v", got)
	}
}
