package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus metrics for graph execution.
//
// Metrics exposed (all namespaced with "stategraph_"):
//
// 1. inflight_branches (gauge): branches of the current step still running.
//
// 2. step_latency_ms (histogram): node invocation duration in milliseconds.
// Labels: node_id, status (success/error/timeout).
//
// 3. fanout_width (histogram): number of sends per fan-out dispatch.
//
// 4. merge_errors_total (counter): merges aborted by the schema or a reducer.
// Labels: kind (schema/reducer).
//
// 5. runs_total (counter): finished runs.
// Labels: status (success/error).
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	exec, _ := graph.NewExecutor(g, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use and on a nil receiver.
type PrometheusMetrics struct {
	inflightBranches prometheus.Gauge

	stepLatency *prometheus.HistogramVec
	fanoutWidth prometheus.Histogram

	mergeErrors *prometheus.CounterVec
	runs        *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all graph execution metrics with
// registry. A nil registry uses prometheus.DefaultRegisterer.
//
// Registering twice on the same registry panics, like any promauto metric.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		inflightBranches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stategraph",
			Name:      "inflight_branches",
			Help:      "Branches of the current step that are still executing",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stategraph",
			Name:      "step_latency_ms",
			Help:      "Node invocation duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000}, // 1ms to 60s
		}, []string{"node_id", "status"}),
		fanoutWidth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stategraph",
			Name:      "fanout_width",
			Help:      "Number of parallel sends per fan-out dispatch",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		mergeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "merge_errors_total",
			Help:      "Step merges aborted by a schema or reducer error",
		}, []string{"kind"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stategraph",
			Name:      "runs_total",
			Help:      "Finished runs by outcome",
		}, []string{"status"}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency records one node invocation.
// status is "success", "error" or "timeout".
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.on() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// UpdateInflightBranches sets the number of branches currently executing.
func (pm *PrometheusMetrics) UpdateInflightBranches(count int) {
	if !pm.on() {
		return
	}
	pm.inflightBranches.Set(float64(count))
}

// ObserveFanOut records the width of one fan-out dispatch.
func (pm *PrometheusMetrics) ObserveFanOut(width int) {
	if !pm.on() {
		return
	}
	pm.fanoutWidth.Observe(float64(width))
}

// IncrementMergeErrors counts an aborted merge. kind is "schema" or "reducer".
func (pm *PrometheusMetrics) IncrementMergeErrors(kind string) {
	if !pm.on() {
		return
	}
	pm.mergeErrors.WithLabelValues(kind).Inc()
}

// IncrementRuns counts a finished run. status is "success" or "error".
func (pm *PrometheusMetrics) IncrementRuns(status string) {
	if !pm.on() {
		return
	}
	pm.runs.WithLabelValues(status).Inc()
}

// Disable temporarily disables metric recording.
func (pm *PrometheusMetrics) Disable() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears gauge values. Counters and histograms are cumulative and keep
// their observations.
func (pm *PrometheusMetrics) Reset() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightBranches.Set(0)
}
