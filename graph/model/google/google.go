// Package google provides a model.ChatModel backed by the Google Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/stategraph/graph/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// Gemini does not issue tool call ids; the adapter assigns them and maps tool
// results back to function names through the assistant messages that
// requested them. Blocked prompts and responses are reported as
// *SafetyFilterError.
//
// Example usage:
//
//	m := google.NewChatModel(os.Getenv("GOOGLE_API_KEY"), "gemini-2.5-flash")
//	out, err := m.Chat(ctx, messages, nil)
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type ChatModel struct {
	apiKey    string
	modelName string
	client    generator
}

// request is one Gemini call, already converted from model types.
type request struct {
	system  *genai.Content
	tools   []*genai.Tool
	history []*genai.Content
	parts   []genai.Part
}

// generator is the seam between ChatModel and the SDK.
type generator interface {
	generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
}

type sdkClient struct {
	apiKey    string
	modelName string
	opts      []option.ClientOption
}

func (c *sdkClient) generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	genModel := client.GenerativeModel(c.modelName)
	genModel.SystemInstruction = req.system
	genModel.Tools = req.tools

	session := genModel.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}

// NewChatModel creates a Google ChatModel. opts are passed to genai.NewClient
// after the API key.
func NewChatModel(apiKey, modelName string, opts ...option.ClientOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName, opts: opts},
	}
}

// Name returns the model name sent with each request.
func (m *ChatModel) Name() string {
	return m.modelName
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if m.apiKey == "" {
		return model.ChatOut{}, errors.New("google API key is required")
	}

	req, err := buildRequest(messages)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(tools) > 0 {
		req.tools = convertTools(tools)
	}

	resp, err := m.client.generate(ctx, req)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, safetyErrorFromBlocked(blocked)
		}
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}
	return convertResponse(resp)
}

// buildRequest splits messages into a system instruction, the chat history
// and the parts of the final turn.
func buildRequest(messages []model.Message) (request, error) {
	var req request
	var systemParts []genai.Part
	callNames := make(map[string]string)

	var contents []*genai.Content
	appendParts := func(role string, parts ...genai.Part) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			systemParts = append(systemParts, genai.Text(msg.Content))
		case model.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				callNames[call.ID] = call.Name
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Input})
			}
			if len(parts) > 0 {
				appendParts("model", parts...)
			}
		case model.RoleTool:
			name, ok := callNames[msg.ToolCallID]
			if !ok {
				return request{}, fmt.Errorf("google: tool result for unknown call %q", msg.ToolCallID)
			}
			appendParts("user", genai.FunctionResponse{
				Name:     name,
				Response: map[string]any{"content": msg.Content},
			})
		default:
			appendParts("user", genai.Text(msg.Content))
		}
	}

	if len(systemParts) > 0 {
		req.system = &genai.Content{Parts: systemParts}
	}
	if len(contents) == 0 {
		return request{}, errors.New("google: no user content to send")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return request{}, errors.New("google: conversation must end with a user turn")
	}
	req.history = contents[:len(contents)-1]
	req.parts = last.Parts
	return req, nil
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema converts a JSON Schema map to genai.Schema, recursing into
// object properties and array items.
func convertSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}
	if typeStr, ok := schema["type"].(string); ok {
		result.Type = convertTypeString(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]interface{}); ok {
				result.Properties[key] = convertSchema(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		result.Items = convertSchema(items)
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []interface{}:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	out := model.ChatOut{}
	if resp == nil {
		return out, errors.New("google: empty response")
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return out, &SafetyFilterError{
			reason:   resp.PromptFeedback.BlockReason.String(),
			category: blockedCategory(resp.PromptFeedback.SafetyRatings),
		}
	}
	if len(resp.Candidates) == 0 {
		return out, nil
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return out, &SafetyFilterError{
			reason:   candidate.FinishReason.String(),
			category: blockedCategory(candidate.SafetyRatings),
		}
	}
	if candidate.Content == nil {
		return out, nil
	}

	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			args := p.Args
			if args == nil {
				args = map[string]interface{}{}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:    model.NewID("call"),
				Name:  p.Name,
				Input: args,
			})
		}
	}
	return out, nil
}

func safetyErrorFromBlocked(err *genai.BlockedError) *SafetyFilterError {
	if err.PromptFeedback != nil {
		return &SafetyFilterError{
			reason:   err.PromptFeedback.BlockReason.String(),
			category: blockedCategory(err.PromptFeedback.SafetyRatings),
		}
	}
	if err.Candidate != nil {
		return &SafetyFilterError{
			reason:   err.Candidate.FinishReason.String(),
			category: blockedCategory(err.Candidate.SafetyRatings),
		}
	}
	return &SafetyFilterError{reason: "blocked", category: "unknown"}
}

func blockedCategory(ratings []*genai.SafetyRating) string {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return r.Category.String()
		}
	}
	return "unknown"
}

// convertTypeString converts a JSON Schema type string to genai.Type constant.
func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// SafetyFilterError reports a prompt or response blocked by Gemini's safety filters.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
