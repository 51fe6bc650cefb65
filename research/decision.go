package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/stategraph/graph"
	"github.com/kaptinlin/jsonrepair"
)

// ResearchTask is one unit of work handed to a researcher branch.
type ResearchTask struct {
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// Decision is the orchestrator's structured output.
type Decision struct {
	// Response is shown to the user: the full answer when the question is
	// out of scope, an acknowledgement otherwise.
	Response string `json:"response"`

	// InScope reports whether the question needs research.
	InScope bool `json:"in_scope"`

	// ResearchTasks lists one task per researcher. Required when InScope.
	ResearchTasks []ResearchTask `json:"research_tasks"`
}

// Validate reports a *graph.MalformedDecisionError when d breaks the
// decision contract.
func (d Decision) Validate() error {
	if d.InScope && len(d.ResearchTasks) == 0 {
		return &graph.MalformedDecisionError{Reason: "in_scope is true but research_tasks is empty"}
	}
	if !d.InScope && strings.TrimSpace(d.Response) == "" {
		return &graph.MalformedDecisionError{Reason: "out-of-scope decision has no response"}
	}
	for i, task := range d.ResearchTasks {
		if strings.TrimSpace(task.Topic) == "" {
			return &graph.MalformedDecisionError{Reason: fmt.Sprintf("research_tasks[%d] has no topic", i)}
		}
	}
	return nil
}

// ParseDecision decodes and validates an orchestrator reply.
//
// Markdown code fences around the JSON object are ignored, and slightly
// malformed JSON is repaired before decoding. Any failure is returned as a
// *graph.MalformedDecisionError carrying the raw text.
func ParseDecision(text string) (Decision, error) {
	raw := stripFences(text)
	if raw == "" {
		return Decision{}, &graph.MalformedDecisionError{Reason: "empty decision", Raw: text}
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return Decision{}, &graph.MalformedDecisionError{Reason: "decision is not JSON: " + err.Error(), Raw: text}
		}
		d = Decision{}
		if err := json.Unmarshal([]byte(repaired), &d); err != nil {
			return Decision{}, &graph.MalformedDecisionError{Reason: "decision does not match schema: " + err.Error(), Raw: text}
		}
	}

	if err := d.Validate(); err != nil {
		err.(*graph.MalformedDecisionError).Raw = text
		return Decision{}, err
	}
	return d, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
