package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/stategraph/internal/app"
	"github.com/dshills/stategraph/internal/config"
)

// appOptions are passed to every app.New call. Tests use it to replace the
// model provider and the corpus.
var appOptions []app.Option

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "researchgraph",
		Short: "Answer questions from a news archive with a parallel research workflow",
		Long: `researchgraph runs an orchestrator → researchers → synthesizer workflow on the
stategraph engine. The orchestrator splits a question into research tasks, one
researcher per task searches the article archive in parallel, and the
synthesizer writes the final answer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	root.PersistentFlags().String("env-file", "", "Environment file to load (default .env)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "", "Log format: text or json")

	root.AddCommand(newRunCmd(), newServeCmd(), newGraphCmd(), newVersionCmd())
	return root
}

// loadConfig resolves the configuration for cmd: .env file, YAML file, then
// flags. It returns the validated config and a logger writing to stderr.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return config.Config{}, nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}

	overrides := map[string]*string{
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
		"provider":   &cfg.Provider,
		"model":      &cfg.Model,
		"corpus":     &cfg.Corpus,
	}
	for name, field := range overrides {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*field = f.Value.String()
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.Log.NewLogger(cmd.ErrOrStderr()), nil
}

// addProviderFlags registers the flags that override the model and corpus settings.
func addProviderFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("provider", "p", "", "Model provider: openai, anthropic or google")
	cmd.Flags().StringP("model", "m", "", "Model name (default depends on the provider)")
	cmd.Flags().String("corpus", "", "Article archive (YAML or JSON)")
}
