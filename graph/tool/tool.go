// Package tool provides the tool abstraction used by model-driven nodes and
// the helpers that execute model tool calls and correlate their results.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dshills/stategraph/graph/model"
)

// Tool is an external capability a model can call.
//
// Implementations must be safe for concurrent use: parallel branches share
// the same tools.
//
// Example:
//
//	type Calculator struct{}
//
//	func (Calculator) Name() string { return "calculate" }
//
//	func (Calculator) Spec() model.ToolSpec {
//	    return model.ToolSpec{Name: "calculate", Description: "Evaluate an arithmetic expression"}
//	}
//
//	func (Calculator) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
//	    expr, _ := input["expression"].(string)
//	    return map[string]interface{}{"result": eval(expr)}, nil
//	}
type Tool interface {
	// Name returns the identifier the model uses to call the tool.
	Name() string

	// Spec describes the tool to the model.
	Spec() model.ToolSpec

	// Call executes the tool. The output is JSON-encoded into the tool
	// result message.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Registry is a fixed set of tools indexed by name.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry returns a registry of tools. Tool names must be unique.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the specs of all tools in registration order.
func (r *Registry) Specs() []model.ToolSpec {
	if r == nil {
		return nil
	}
	specs := make([]model.ToolSpec, len(r.order))
	for i, name := range r.order {
		specs[i] = r.tools[name].Spec()
	}
	return specs
}

// Invoke executes calls in order and returns one tool result message per
// call, carrying the call's ID in ToolCallID.
//
// A failing or unknown tool does not abort the round: its result message
// reports the error to the model. Invoke returns an error only when ctx ends.
func Invoke(ctx context.Context, registry *Registry, calls []model.ToolCall) ([]model.Message, error) {
	results := make([]model.Message, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content := invokeOne(ctx, registry, call)
		results = append(results, model.Message{
			ID:         model.NewID("msg"),
			Role:       model.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
		})
	}
	return results, nil
}

func invokeOne(ctx context.Context, registry *Registry, call model.ToolCall) string {
	t, ok := registry.Get(call.Name)
	if !ok {
		return errorContent(fmt.Errorf("unknown tool %q", call.Name))
	}
	out, err := t.Call(ctx, call.Input)
	if err != nil {
		return errorContent(err)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return errorContent(fmt.Errorf("encode %s output: %w", call.Name, err))
	}
	return string(data)
}

func errorContent(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

// ProtocolError reports tool results that do not match the tool calls of
// the assistant message they answer.
type ProtocolError struct {
	// Unknown lists result ToolCallIDs that name no call.
	Unknown []string
	// Missing lists call IDs without a result.
	Missing []string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tool protocol violation: unknown result ids %v, missing results for %v", e.Unknown, e.Missing)
}

// Correlate checks that results answer exactly calls: every result names a
// call ID and every call has a result.
func Correlate(calls []model.ToolCall, results []model.Message) error {
	pending := make(map[string]bool, len(calls))
	for _, c := range calls {
		pending[c.ID] = true
	}

	var perr ProtocolError
	for _, r := range results {
		if !pending[r.ToolCallID] {
			perr.Unknown = append(perr.Unknown, r.ToolCallID)
			continue
		}
		delete(pending, r.ToolCallID)
	}
	for id := range pending {
		perr.Missing = append(perr.Missing, id)
	}

	if len(perr.Unknown) == 0 && len(perr.Missing) == 0 {
		return nil
	}
	sort.Strings(perr.Missing)
	return &perr
}
