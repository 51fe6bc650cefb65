package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/research"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the workflow as a Mermaid diagram",
		Long: `Outputs a Mermaid flowchart (graph TD) of the research workflow. Dotted arrows
are the declared dynamic destinations of each node.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The topology does not depend on the model or the corpus.
			g, err := research.NewGraph(research.Deps{
				Model:     &model.MockChatModel{},
				Retriever: research.NewMemoryRetriever(nil, 0),
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), g.Mermaid())
			return nil
		},
	}
}
