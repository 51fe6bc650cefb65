package research

import (
	"errors"
	"net/http"

	"github.com/dshills/stategraph/graph"
	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/graph/tool"
)

// Deps are the collaborators the workflow nodes are constructed with.
type Deps struct {
	// Model serves every node unless a node-specific model is set.
	Model model.ChatModel

	// Optional per-node models.
	OrchestratorModel model.ChatModel
	ResearcherModel   model.ChatModel
	SynthesizerModel  model.ChatModel

	// ModelName labels usage recorded in Costs.
	ModelName string

	// Costs, if set, records the token usage of every model call per node.
	Costs *model.CostTracker

	// Retriever backs the search_articles tool. Required.
	Retriever Retriever

	// SearchBodyChars caps article bodies returned by search_articles.
	SearchBodyChars int

	// FetchClient, if set, enables the fetch_article tool.
	FetchClient *http.Client

	// Policies are applied to the nodes they name.
	Policies map[string]graph.NodePolicy
}

func (d Deps) modelFor(node string, specific model.ChatModel) model.ChatModel {
	m := specific
	if m == nil {
		m = d.Model
	}
	return model.Metered(m, d.ModelName, node, d.Costs)
}

// NewGraph compiles the orchestrator → researcher* → synthesizer workflow.
//
// Example:
//
//	g, err := research.NewGraph(research.Deps{Model: chat, Retriever: archive})
//	exec, err := graph.NewExecutor(g, graph.WithMaxSteps(10))
//	final, err := exec.Run(ctx, "run-1", research.Ask("What did the council decide?"))
//	fmt.Println(research.Answer(final))
func NewGraph(deps Deps) (*graph.Graph, error) {
	for _, m := range []model.ChatModel{deps.OrchestratorModel, deps.ResearcherModel, deps.SynthesizerModel} {
		if m == nil && deps.Model == nil {
			return nil, errors.New("research: a model is required for every node")
		}
	}
	if deps.Retriever == nil {
		return nil, errors.New("research: retriever is required")
	}

	tools := []tool.Tool{NewSearchTool(deps.Retriever, deps.SearchBodyChars)}
	if deps.FetchClient != nil {
		tools = append(tools, tool.NewFetchTool(deps.FetchClient, 0))
	}
	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, err
	}

	schema, err := Schema()
	if err != nil {
		return nil, err
	}

	nodes := []struct {
		name string
		node graph.Node
	}{
		{NodeOrchestrator, NewOrchestrator(deps.modelFor(NodeOrchestrator, deps.OrchestratorModel))},
		{NodeResearcher, NewResearcher(deps.modelFor(NodeResearcher, deps.ResearcherModel), registry)},
		{NodeSynthesizer, NewSynthesizer(deps.modelFor(NodeSynthesizer, deps.SynthesizerModel))},
	}

	b := graph.NewBuilder(schema)
	for _, n := range nodes {
		node := n.node
		if policy, ok := deps.Policies[n.name]; ok {
			node = graph.WithPolicy(node, policy)
		}
		_ = b.AddNode(n.name, node)
	}
	_ = b.SetEntryPoint(NodeOrchestrator)
	_ = b.DeclareDestinations(NodeOrchestrator, NodeResearcher)
	_ = b.DeclareDestinations(NodeResearcher, NodeSynthesizer)
	return b.Compile()
}
