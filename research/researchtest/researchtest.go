// Package researchtest provides a scripted model and a small article archive
// for testing code built on the research workflow without a provider.
package researchtest

import (
	"fmt"
	"strings"

	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/research"
)

// Archive returns three short articles about a city council budget, a tram
// line and a flood.
func Archive() []research.Document {
	return []research.Document{
		{ID: "a1", Headline: "Council approves budget", Body: "The city council approved the annual budget after a long debate.", SourceLink: "https://news.example/a1"},
		{ID: "a2", Headline: "New tram line opens", Body: "Transit officials opened the tram line. The budget overran.", SourceLink: "https://news.example/a2"},
		{ID: "a3", Headline: "River floods farmland", Body: "Heavy rain flooded farms along the river.", SourceLink: "https://news.example/a3"},
	}
}

// Model returns a mock that plays every workflow role.
//
// The orchestrator receives decision verbatim. Each researcher first calls
// search_articles with its topic, then answers "analysis of <topic>". The
// synthesizer answers "final answer from <n> analyses".
func Model(decision string) *model.MockChatModel {
	return &model.MockChatModel{Handler: func(msgs []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
		if len(msgs) == 0 {
			return model.ChatOut{}, fmt.Errorf("empty conversation")
		}
		system := msgs[0].Content
		switch {
		case strings.HasPrefix(system, "You coordinate"):
			return model.ChatOut{Text: decision, Usage: model.Usage{InputTokens: 100, OutputTokens: 20}}, nil

		case strings.HasPrefix(system, "You are a researcher"):
			topic := strings.TrimPrefix(strings.SplitN(msgs[1].Content, "\n", 2)[0], "Research topic: ")
			if len(tools) > 0 {
				return model.ChatOut{
					ToolCalls: []model.ToolCall{{ID: "call_" + topic, Name: "search_articles", Input: map[string]interface{}{"query": topic}}},
				}, nil
			}
			return model.ChatOut{Text: "analysis of " + topic, Usage: model.Usage{InputTokens: 80, OutputTokens: 30}}, nil

		case strings.HasPrefix(system, "You write the final answer"):
			return model.ChatOut{Text: fmt.Sprintf("final answer from %d analyses", strings.Count(system, "\n["))}, nil
		}
		return model.ChatOut{}, fmt.Errorf("unexpected system prompt %q", system)
	}}
}

// InScope is a decision that fans out to the budget and transit topics.
const InScope = `{"response":"Let me look into that.","in_scope":true,"research_tasks":[{"topic":"budget"},{"topic":"transit"}]}`

// OutOfScope is a decision answered directly by the orchestrator.
const OutOfScope = `{"response":"Hi! I answer questions about the news.","in_scope":false,"research_tasks":[]}`

// Malformed is an in-scope decision without research tasks.
const Malformed = `{"response":"On it.","in_scope":true,"research_tasks":null}`
