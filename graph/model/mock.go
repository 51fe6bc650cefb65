package model

import (
	"context"
	"strconv"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Handler, when set, computes every response; it runs under the mock's lock,
// so it may keep its own counters. Otherwise Responses are returned in order
// and the last one repeats. Err overrides both.
//
// Tool calls returned without an ID get a deterministic one ("call_1",
// "call_2", ...) so their results can be correlated.
//
//	mock := &model.MockChatModel{
//	    Responses: []model.ChatOut{
//	        {ToolCalls: []model.ToolCall{{Name: "search_articles", Input: map[string]interface{}{"query": "budget"}}}},
//	        {Text: "The council approved the budget."},
//	    },
//	}
type MockChatModel struct {
	Responses []ChatOut
	Handler   func(messages []Message, tools []ToolSpec) (ChatOut, error)
	Err       error

	// Calls records every Chat invocation, including failed ones.
	Calls []MockChatCall

	mu      sync.Mutex
	next    int
	callIDs int
}

// MockChatCall is one recorded Chat invocation.
type MockChatCall struct {
	// System is the content of the first system message, if any.
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	call := MockChatCall{Messages: append([]Message(nil), messages...), Tools: tools}
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			call.System = msg.Content
			break
		}
	}
	m.Calls = append(m.Calls, call)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	var (
		out ChatOut
		err error
	)
	switch {
	case m.Handler != nil:
		out, err = m.Handler(messages, tools)
	case len(m.Responses) > 0:
		out = m.Responses[m.next]
		if m.next < len(m.Responses)-1 {
			m.next++
		}
	}
	if err != nil {
		return ChatOut{}, err
	}
	return m.stampToolCalls(out), nil
}

// stampToolCalls fills in missing tool call ids on a copy of out.
func (m *MockChatModel) stampToolCalls(out ChatOut) ChatOut {
	if len(out.ToolCalls) == 0 {
		return out
	}
	calls := make([]ToolCall, len(out.ToolCalls))
	copy(calls, out.ToolCalls)
	for i := range calls {
		if calls[i].ID == "" {
			m.callIDs++
			calls[i].ID = "call_" + strconv.Itoa(m.callIDs)
		}
	}
	out.ToolCalls = calls
	return out
}

// Reset forgets recorded calls and restarts Responses from the first one.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.next = 0
	m.callIDs = 0
}

// CallCount returns the number of Chat calls so far.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
