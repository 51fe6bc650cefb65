// Package research assembles the orchestrator → researchers → synthesizer
// workflow on top of the graph engine.
//
// The orchestrator decides whether a question is in scope and, if so, fans
// out one research task per topic. Each researcher answers its task with one
// round of tool calls against the article archive. The synthesizer runs once
// all researchers of the dispatch have finished and writes the final answer.
package research

import (
	"github.com/dshills/stategraph/graph"
	"github.com/dshills/stategraph/graph/model"
)

// State field names.
const (
	FieldMessages = "messages"
	FieldAnalyses = "analyses"
)

// Schema returns the workflow state schema.
//
//   - messages: []model.Message, upsert by message ID else append
//   - analyses: []string, concatenated in merge order
func Schema() (graph.Schema, error) {
	return graph.NewSchema(
		graph.Field{
			Name:    FieldMessages,
			Initial: []model.Message{},
			Reduce:  graph.TypedReducer(graph.AppendOrReplaceByID[model.Message]),
		},
		graph.Field{
			Name:    FieldAnalyses,
			Initial: []string{},
			Reduce:  graph.TypedReducer(graph.Concat[string]),
		},
	)
}

// Ask returns the seed update for a run answering question.
func Ask(question string) graph.Update {
	return graph.Update{FieldMessages: []model.Message{model.NewMessage(model.RoleUser, question)}}
}

// Messages returns the conversation stored in s.
func Messages(s graph.State) []model.Message {
	msgs, _ := graph.Value[[]model.Message](s, FieldMessages)
	return msgs
}

// Analyses returns the researcher analyses stored in s.
func Analyses(s graph.State) []string {
	a, _ := graph.Value[[]string](s, FieldAnalyses)
	return a
}

// Answer returns the content of the last assistant message in s.
func Answer(s graph.State) string {
	msgs := Messages(s)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}
