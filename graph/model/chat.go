// Package model provides the chat model abstraction used by workflow nodes
// and the message type stored in the shared conversation.
package model

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// ChatModel defines the interface for LLM chat providers.
//
// Implementations convert Messages and ToolSpecs to the provider format,
// respect context cancellation, and report token usage in ChatOut.Usage.
//
// Example:
//
//	out, err := m.Chat(ctx, []model.Message{
//	    model.NewMessage(model.RoleSystem, "You are a research assistant."),
//	    model.NewMessage(model.RoleUser, "What changed in the 2024 budget?"),
//	}, nil)
type ChatModel interface {
	// Chat sends messages to the LLM and returns its reply.
	// tools may be nil. The reply may contain text, tool calls, or both.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool marks the result of a tool call. ToolCallID names the call.
	RoleTool = "tool"
)

// Message is a single entry of a conversation.
//
// ID identifies the message in the shared state: merging a message whose ID
// is already present replaces it in place.
type Message struct {
	ID         string     `json:"id"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ItemID returns the message ID.
func (m Message) ItemID() string {
	return m.ID
}

// NewMessage returns a message with a fresh random ID.
func NewMessage(role, content string) Message {
	return Message{ID: NewID("msg"), Role: role, Content: content}
}

// NewID returns prefix followed by 12 random hex characters, e.g. "msg_3f9a0c...".
func NewID(prefix string) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}

// ToolSpec describes a tool that an LLM can call.
//
// Schema is a JSON Schema object describing the tool input. It may be nil
// for tools without parameters.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a request from the LLM to invoke a tool.
//
// ID correlates the call with its result message (Message.ToolCallID).
// Providers that do not issue ids get one assigned by the adapter.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// Usage reports the tokens consumed by one Chat call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut is the output of an LLM chat completion.
type ChatOut struct {
	// Text is the generated reply. It may be empty when the LLM only calls tools.
	Text string

	// ToolCalls lists the tools the LLM wants to invoke.
	ToolCalls []ToolCall

	// Usage is zero when the provider does not report it.
	Usage Usage
}

// Message converts the reply into an assistant message with a fresh ID.
func (o ChatOut) Message() Message {
	msg := NewMessage(RoleAssistant, o.Text)
	if len(o.ToolCalls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), o.ToolCalls...)
	}
	return msg
}
