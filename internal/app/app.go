// Package app wires a Config into a ready-to-run research workflow: model
// provider, article retriever, step journal, event emitters and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/stategraph/graph"
	"github.com/dshills/stategraph/graph/emit"
	"github.com/dshills/stategraph/graph/model"
	"github.com/dshills/stategraph/graph/model/anthropic"
	"github.com/dshills/stategraph/graph/model/google"
	"github.com/dshills/stategraph/graph/model/openai"
	"github.com/dshills/stategraph/graph/store"
	"github.com/dshills/stategraph/graph/store/redisstore"
	"github.com/dshills/stategraph/internal/config"
	"github.com/dshills/stategraph/research"
)

// recentRuns is how many runs the event buffer keeps for inspection.
const recentRuns = 256

// App is a wired research workflow.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Graph    *graph.Graph
	Executor *graph.Executor
	Store    store.Store
	Costs    *model.CostTracker
	Registry *prometheus.Registry

	// Events keeps the emitted events of recent runs for inspection.
	Events *emit.BufferedEmitter

	closers []func(context.Context) error
}

// Option customizes New.
type Option func(*options)

type options struct {
	chat      model.ChatModel
	modelName string
	docs      []research.Document
	store     store.Store
}

// WithChatModel replaces the configured provider with m.
func WithChatModel(m model.ChatModel, name string) Option {
	return func(o *options) {
		o.chat = m
		o.modelName = name
	}
}

// WithDocuments replaces the configured corpus with docs.
func WithDocuments(docs []research.Document) Option {
	return func(o *options) { o.docs = docs }
}

// WithStore replaces the configured step journal with s.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// New builds an App from cfg. Close must be called to release the journal
// and tracer resources.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Costs:    model.NewCostTracker("researchgraph"),
		Registry: prometheus.NewRegistry(),
		Events:   emit.NewBufferedEmitter(emit.KeepRuns(recentRuns)),
	}

	chat, modelName := o.chat, o.modelName
	if chat == nil {
		var err error
		if chat, modelName, err = newChatModel(cfg); err != nil {
			return nil, err
		}
	}

	docs := o.docs
	if docs == nil {
		if cfg.Corpus == "" {
			return nil, errors.New("no corpus configured")
		}
		var err error
		if docs, err = research.LoadDocuments(cfg.Corpus); err != nil {
			return nil, err
		}
	}

	a.Store = o.store
	if a.Store == nil {
		s, closer, err := newStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		a.Store = s
		if closer != nil {
			a.closers = append(a.closers, func(context.Context) error { return closer() })
		}
	}

	deps := research.Deps{
		Model:           chat,
		ModelName:       modelName,
		Costs:           a.Costs,
		Retriever:       research.NewMemoryRetriever(docs, cfg.Search.Limit),
		SearchBodyChars: cfg.Search.BodyChars,
	}
	if cfg.Search.Fetch {
		deps.FetchClient = &http.Client{Timeout: cfg.Executor.NodeTimeout}
	}
	g, err := research.NewGraph(deps)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	a.Graph = g

	emitters := []emit.Emitter{emit.NewLogEmitter(logger), a.Events}
	if cfg.Tracing {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
		otel.SetTracerProvider(tp)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("github.com/dshills/stategraph")))
		a.closers = append(a.closers, tp.Shutdown)
	}

	a.Executor, err = graph.NewExecutor(g,
		graph.WithMaxSteps(cfg.Executor.MaxSteps),
		graph.WithMaxConcurrent(cfg.Executor.MaxConcurrent),
		graph.WithDefaultNodeTimeout(cfg.Executor.NodeTimeout),
		graph.WithRunWallClockBudget(cfg.Executor.RunBudget),
		graph.WithEmitter(emit.NewMultiEmitter(emitters...)),
		graph.WithStore(a.Store),
		graph.WithMetrics(graph.NewPrometheusMetrics(a.Registry)),
	)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	logger.Debug("workflow ready", "provider", cfg.Provider, "model", modelName, "documents", len(docs), "store", cfg.Store.Driver)
	return a, nil
}

// Ask runs question through the workflow under runID.
func (a *App) Ask(ctx context.Context, runID, question string) (graph.State, error) {
	return a.Executor.Run(ctx, runID, research.Ask(question))
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newChatModel(cfg config.Config) (model.ChatModel, string, error) {
	key := cfg.ResolveAPIKey()
	if key == "" {
		return nil, "", fmt.Errorf("no API key for provider %s", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		m := openai.NewChatModel(key, cfg.Model)
		return m, m.Name(), nil
	case "anthropic":
		m := anthropic.NewChatModel(key, cfg.Model)
		return m, m.Name(), nil
	case "google":
		m := google.NewChatModel(key, cfg.Model)
		return m, m.Name(), nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newStore(cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return store.NewMemStore(), nil, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mysql":
		s, err := store.NewMySQLStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "redis":
		var opts []redisstore.Option
		if cfg.TTL > 0 {
			opts = append(opts, redisstore.WithTTL(cfg.TTL))
		}
		s := redisstore.New(cfg.Addr, cfg.Password, cfg.DB, opts...)
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
