package graph

import (
	"time"

	"github.com/dshills/stategraph/graph/emit"
	"github.com/dshills/stategraph/graph/store"
)

// Options configures Executor behavior.
//
// Zero values are valid: no step limit, unbounded parallelism within a step,
// no per-node timeout, no run budget, events discarded and no journal.
type Options struct {
	// MaxSteps limits the number of Step → Merge → Route cycles of a run.
	// If 0, no limit is enforced.
	MaxSteps int

	// MaxConcurrentNodes caps how many branches of one step run at the same
	// time. If 0, every branch of a step starts immediately.
	MaxConcurrentNodes int

	// DefaultNodeTimeout bounds one node invocation unless the node carries
	// its own NodePolicy.Timeout. If 0, invocations are not bounded.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds a whole Run. If 0, runs are not bounded.
	RunWallClockBudget time.Duration

	// Emitter receives executor events. Nil discards them.
	Emitter emit.Emitter

	// Store journals every committed step. Nil disables the journal.
	Store store.Store

	// Metrics records Prometheus metrics. Nil disables metrics.
	Metrics *PrometheusMetrics
}

// Option is a functional option for configuring an Executor.
//
// Example:
//
//	exec, err := graph.NewExecutor(g,
//	    graph.WithMaxSteps(50),
//	    graph.WithMaxConcurrent(8),
//	    graph.WithDefaultNodeTimeout(30*time.Second),
//	)
type Option func(*executorConfig) error

// executorConfig collects options before they are applied to an Executor,
// so that each option can validate its input.
type executorConfig struct {
	opts Options
}

// WithOptions replaces the whole configuration with opts. Options listed
// after it still override individual fields.
func WithOptions(opts Options) Option {
	return func(cfg *executorConfig) error {
		cfg.opts = opts
		return nil
	}
}

// WithMaxSteps limits workflow execution to prevent infinite loops.
//
// Default: 0 (no limit). Loops such as a node routing back to itself are
// allowed; MaxSteps is the guard against a missing exit condition. When
// exceeded, Run returns an *EngineError with code MAX_STEPS_EXCEEDED that
// wraps ErrMaxStepsExceeded.
func WithMaxSteps(n int) Option {
	return func(cfg *executorConfig) error {
		if n < 0 {
			return &EngineError{Message: "MaxSteps cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithMaxConcurrent sets the maximum number of branches executing concurrently
// within one step.
//
// Default: 0 (unbounded). I/O-bound research branches usually want 10-50
// depending on the limits of the model provider.
func WithMaxConcurrent(n int) Option {
	return func(cfg *executorConfig) error {
		if n < 0 {
			return &EngineError{Message: "MaxConcurrentNodes cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.opts.MaxConcurrentNodes = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the maximum execution time for nodes without an
// explicit NodePolicy.Timeout.
//
// When exceeded the node's context is cancelled and the run fails with a
// *NodeExecutionError wrapping ErrNodeTimeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return &EngineError{Message: "DefaultNodeTimeout cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget sets the maximum total execution time for Run.
//
// If exceeded, Run returns context.DeadlineExceeded along with the last
// committed State.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return &EngineError{Message: "RunWallClockBudget cannot be negative", Code: "INVALID_OPTION"}
		}
		cfg.opts.RunWallClockBudget = d
		return nil
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *executorConfig) error {
		cfg.opts.Emitter = e
		return nil
	}
}

// WithStore enables the step journal.
//
// A journal write failure aborts the run with an *EngineError of code STORE_ERROR.
func WithStore(s store.Store) Option {
	return func(cfg *executorConfig) error {
		cfg.opts.Store = s
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	exec, _ := graph.NewExecutor(g, graph.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *executorConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}
