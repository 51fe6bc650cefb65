package tool

import (
	"context"
	"sync"

	"github.com/dshills/stategraph/graph/model"
)

// MockTool is a scripted Tool for tests.
//
// Handler, when set, computes every result. Otherwise Responses are returned
// in order and the last one repeats; with neither, Call returns an empty map.
// Err overrides all of them.
//
//	search := &tool.MockTool{
//	    ToolName:  "search_articles",
//	    Responses: []map[string]interface{}{{"articles": []string{"a1"}}},
//	}
type MockTool struct {
	ToolName    string
	Description string
	Schema      map[string]interface{}

	Responses []map[string]interface{}
	Handler   func(input map[string]interface{}) (map[string]interface{}, error)
	Err       error

	// Calls records every invocation, including failed ones.
	Calls []MockToolCall

	mu   sync.Mutex
	next int
}

// MockToolCall is one recorded Call invocation.
type MockToolCall struct {
	Input map[string]interface{}
}

// Name implements Tool.
func (m *MockTool) Name() string { return m.ToolName }

// Spec implements Tool.
func (m *MockTool) Spec() model.ToolSpec {
	return model.ToolSpec{Name: m.ToolName, Description: m.Description, Schema: m.Schema}
}

// Call implements Tool.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockToolCall{Input: input})
	switch {
	case m.Err != nil:
		return nil, m.Err
	case m.Handler != nil:
		return m.Handler(input)
	case len(m.Responses) == 0:
		return map[string]interface{}{}, nil
	}

	out := m.Responses[m.next]
	if m.next < len(m.Responses)-1 {
		m.next++
	}
	return out, nil
}

// Reset forgets recorded calls and restarts Responses from the first one.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.next = 0
}

// CallCount returns the number of Call invocations so far.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
