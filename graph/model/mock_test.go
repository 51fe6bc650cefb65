package model

import (
	"context"
	"errors"
	"testing"
)

func TestMockChatModel_Responses(t *testing.T) {
	mock := &MockChatModel{
		Responses: []ChatOut{{Text: "First"}, {Text: "Second"}},
	}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	for i, want := range []string{"First", "Second", "Second"} {
		out, err := mock.Chat(context.Background(), messages, nil)
		if err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
		if out.Text != want {
			t.Errorf("call %d: expected %q, got %q", i+1, want, out.Text)
		}
	}

	t.Run("returns empty response when no responses configured", func(t *testing.T) {
		out, err := (&MockChatModel{}).Chat(context.Background(), messages, nil)
		if err != nil || out.Text != "" || len(out.ToolCalls) != 0 {
			t.Errorf("expected empty response, got %+v, %v", out, err)
		}
	})
}

func TestMockChatModel_ErrorInjection(t *testing.T) {
	apiErr := errors.New("API error")
	mock := &MockChatModel{Responses: []ChatOut{{Text: "unused"}}, Err: apiErr}

	if _, err := mock.Chat(context.Background(), nil, nil); !errors.Is(err, apiErr) {
		t.Errorf("expected API error, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("failed calls must be recorded, got %d", mock.CallCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mock.Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMockChatModel_Handler(t *testing.T) {
	mock := &MockChatModel{
		Responses: []ChatOut{{Text: "ignored"}},
		Handler: func(msgs []Message, tools []ToolSpec) (ChatOut, error) {
			return ChatOut{Text: "echo: " + msgs[len(msgs)-1].Content}, nil
		},
	}
	out, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "echo: ping" {
		t.Errorf("expected handler response, got %q", out.Text)
	}
}

func TestMockChatModel_CallHistory(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "OK"}}}
	tools := []ToolSpec{{Name: "search_articles"}}
	messages := []Message{{Role: RoleUser, Content: "first"}}

	_, _ = mock.Chat(context.Background(), messages, tools)
	messages[0].Content = "mutated"

	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.Calls))
	}
	if mock.Calls[0].Messages[0].Content != "first" {
		t.Error("recorded messages must not alias the caller's slice")
	}
	if mock.Calls[0].Tools[0].Name != "search_articles" {
		t.Errorf("tools not recorded: %+v", mock.Calls[0].Tools)
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Errorf("expected 0 calls after Reset, got %d", mock.CallCount())
	}
	if out, _ := mock.Chat(context.Background(), nil, nil); out.Text != "OK" {
		t.Errorf("Reset must rewind responses, got %q", out.Text)
	}
}

func TestMockChatModel_Concurrency(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "OK"}}}
	messages := []Message{{Role: RoleUser, Content: "Test"}}

	const goroutines = 10
	done := make(chan bool, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			_, _ = mock.Chat(context.Background(), messages, nil)
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	if mock.CallCount() != goroutines {
		t.Errorf("expected %d calls, got %d", goroutines, mock.CallCount())
	}
}

func TestMockChatModel_StampsToolCallIDs(t *testing.T) {
	scripted := []ChatOut{{ToolCalls: []ToolCall{{Name: "search_articles"}, {ID: "keep", Name: "fetch_article"}}}}
	mock := &MockChatModel{Responses: scripted}
	messages := []Message{
		{Role: RoleSystem, Content: "You are a researcher."},
		{Role: RoleUser, Content: "budget"},
	}

	out, err := mock.Chat(context.Background(), messages, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.ToolCalls[0].ID != "call_1" || out.ToolCalls[1].ID != "keep" {
		t.Errorf("ids = %q, %q", out.ToolCalls[0].ID, out.ToolCalls[1].ID)
	}
	if scripted[0].ToolCalls[0].ID != "" {
		t.Error("scripted response was modified")
	}
	if mock.Calls[0].System != "You are a researcher." {
		t.Errorf("System = %q", mock.Calls[0].System)
	}
}
