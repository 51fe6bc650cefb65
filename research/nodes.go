package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/stategraph/graph"
	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/graph/tool"
)

// Node names of the research workflow.
const (
	NodeOrchestrator = "orchestrator"
	NodeResearcher   = "researcher"
	NodeSynthesizer  = "synthesizer"
)

const orchestratorPrompt = `You coordinate research over a news article archive.

Decide whether the user's latest question can be answered from news articles.
Reply with a single JSON object and nothing else:

{"response": string, "in_scope": bool, "research_tasks": [{"topic": string, "description": string}]}

- If the question is out of scope, set in_scope to false, answer it directly in
  "response" and leave research_tasks empty.
- If it is in scope, set in_scope to true, acknowledge the question in
  "response" and list between one and five independent research tasks.`

const researcherPrompt = `You are a researcher with access to a news article archive.

Investigate the task you are given. You may call the available tools once to
find relevant articles. Then write a concise analysis of what the articles say
about the task, citing source links where possible.`

const synthesizerPrompt = `You write the final answer for the user.

Combine the research analyses below into one clear, well-structured answer to
the user's latest question. Do not invent facts that are not in the analyses.`

// Orchestrator is the entry node. It classifies the latest question and
// either answers it directly or fans out one research task per topic.
type Orchestrator struct {
	model model.ChatModel
}

// NewOrchestrator returns an orchestrator backed by m.
func NewOrchestrator(m model.ChatModel) *Orchestrator {
	return &Orchestrator{model: m}
}

// Run implements graph.Node.
func (o *Orchestrator) Run(ctx context.Context, in graph.Input) graph.Command {
	return graph.StateNode(o.decide).Run(ctx, in)
}

func (o *Orchestrator) decide(ctx context.Context, state graph.State) graph.Command {
	conversation := append([]model.Message{model.NewMessage(model.RoleSystem, orchestratorPrompt)}, Messages(state)...)

	out, err := o.model.Chat(ctx, conversation, nil)
	if err != nil {
		return graph.Command{Err: fmt.Errorf("orchestrator model: %w", err)}
	}

	decision, err := ParseDecision(out.Text)
	if err != nil {
		return graph.Command{Err: err}
	}

	update := graph.Update{
		FieldMessages: []model.Message{model.NewMessage(model.RoleAssistant, decision.Response)},
	}
	if !decision.InScope {
		return graph.Command{Update: update, Route: graph.Stop()}
	}

	sends := make([]graph.Send, len(decision.ResearchTasks))
	for i, task := range decision.ResearchTasks {
		sends[i] = graph.Send{Node: NodeResearcher, Payload: task}
	}
	return graph.Command{Update: update, Route: graph.FanOut(sends...)}
}

// Researcher is the task node run once per ResearchTask. It performs at most
// one round of tool calls and contributes one analysis.
type Researcher struct {
	model model.ChatModel
	tools *tool.Registry
}

// NewResearcher returns a researcher backed by m that may call tools.
// A nil registry disables tool calls.
func NewResearcher(m model.ChatModel, tools *tool.Registry) *Researcher {
	return &Researcher{model: m, tools: tools}
}

// Run implements graph.Node.
func (r *Researcher) Run(ctx context.Context, in graph.Input) graph.Command {
	return graph.TaskNode[ResearchTask](r.research).Run(ctx, in)
}

func (r *Researcher) research(ctx context.Context, task ResearchTask) graph.Command {
	analysis, err := r.analyse(ctx, task)
	if err != nil {
		return graph.Command{Err: fmt.Errorf("research %q: %w", task.Topic, err)}
	}
	return graph.Command{
		Update: graph.Update{FieldAnalyses: []string{analysis}},
		Route:  graph.Goto(NodeSynthesizer),
	}
}

func (r *Researcher) analyse(ctx context.Context, task ResearchTask) (string, error) {
	conversation := []model.Message{
		model.NewMessage(model.RoleSystem, researcherPrompt),
		model.NewMessage(model.RoleUser, taskPrompt(task)),
	}

	first, err := r.model.Chat(ctx, conversation, r.tools.Specs())
	if err != nil {
		return "", err
	}
	if len(first.ToolCalls) == 0 {
		return strings.TrimSpace(first.Text), nil
	}

	results, err := tool.Invoke(ctx, r.tools, first.ToolCalls)
	if err != nil {
		return "", err
	}
	if err := tool.Correlate(first.ToolCalls, results); err != nil {
		return "", err
	}

	conversation = append(conversation, first.Message())
	conversation = append(conversation, results...)

	// No tools on the second call: one retrieval round per task.
	second, err := r.model.Chat(ctx, conversation, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(second.Text), nil
}

func taskPrompt(task ResearchTask) string {
	if task.Description == "" {
		return "Research topic: " + task.Topic
	}
	return fmt.Sprintf("Research topic: %s\n\n%s", task.Topic, task.Description)
}

// Synthesizer is the join node. It turns the accumulated analyses into the
// final answer and ends the run.
type Synthesizer struct {
	model model.ChatModel
}

// NewSynthesizer returns a synthesizer backed by m.
func NewSynthesizer(m model.ChatModel) *Synthesizer {
	return &Synthesizer{model: m}
}

// Run implements graph.Node.
func (s *Synthesizer) Run(ctx context.Context, in graph.Input) graph.Command {
	return graph.StateNode(s.synthesize).Run(ctx, in)
}

func (s *Synthesizer) synthesize(ctx context.Context, state graph.State) graph.Command {
	var prompt strings.Builder
	prompt.WriteString(synthesizerPrompt)
	prompt.WriteString("\n\nAnalyses:\n")
	for i, a := range Analyses(state) {
		fmt.Fprintf(&prompt, "\n[%d]\n%s\n", i+1, a)
	}

	conversation := append([]model.Message{model.NewMessage(model.RoleSystem, prompt.String())}, Messages(state)...)
	out, err := s.model.Chat(ctx, conversation, nil)
	if err != nil {
		return graph.Command{Err: fmt.Errorf("synthesizer model: %w", err)}
	}

	return graph.Command{
		Update: graph.Update{FieldMessages: []model.Message{model.NewMessage(model.RoleAssistant, out.Text)}},
		Route:  graph.Stop(),
	}
}
