package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/internal/app"
	"github.com/dshills/stategraph/research"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [question]",
		Short: "Answer one question",
		Long: `Runs a single question through the research workflow and prints the answer.
Provider API keys are read from OPENAI_API_KEY, ANTHROPIC_API_KEY or
GOOGLE_API_KEY, which may be set in a .env file.`,
		Example: `  researchgraph run --corpus articles.yaml "What did the council decide about the budget?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			if runID == "" {
				runID = model.NewID("run")
			}
			jsonMode, _ := cmd.Flags().GetBool("json")
			showCosts, _ := cmd.Flags().GetBool("costs")

			a, err := app.New(cfg, logger, appOptions...)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					logger.Warn("shutdown", "error", err)
				}
			}()

			final, err := a.Ask(cmd.Context(), runID, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("run %s: %w", runID, err)
			}

			out := cmd.OutOrStdout()
			if jsonMode {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"run_id":   runID,
					"answer":   research.Answer(final),
					"analyses": research.Analyses(final),
					"messages": research.Messages(final),
				})
			}

			fmt.Fprintln(out, research.Answer(final))
			if showCosts {
				fmt.Fprintln(out)
				fmt.Fprintln(out, a.Costs.String())
			}
			return nil
		},
	}

	addProviderFlags(cmd)
	cmd.Flags().String("run-id", "", "Run identifier (default: generated)")
	cmd.Flags().Bool("json", false, "Print the final state as JSON")
	cmd.Flags().Bool("costs", false, "Print token usage and cost after the answer")
	return cmd
}
