package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(registry)

	pm.RecordStepLatency("worker", 12*time.Millisecond, "success")
	pm.RecordStepLatency("worker", 30*time.Millisecond, "timeout")
	pm.UpdateInflightBranches(3)
	pm.ObserveFanOut(4)
	pm.IncrementMergeErrors("schema")
	pm.IncrementMergeErrors("schema")
	pm.IncrementRuns("error")

	if got := testutil.CollectAndCount(pm.stepLatency); got != 2 {
		t.Errorf("step_latency_ms series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(pm.inflightBranches); got != 3 {
		t.Errorf("inflight_branches = %v", got)
	}
	if got := testutil.ToFloat64(pm.mergeErrors.WithLabelValues("schema")); got != 2 {
		t.Errorf("merge_errors_total{schema} = %v", got)
	}

	expected := `
# HELP stategraph_runs_total Finished runs by outcome
# TYPE stategraph_runs_total counter
stategraph_runs_total{status="error"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "stategraph_runs_total"); err != nil {
		t.Error(err)
	}

	pm.Reset()
	if got := testutil.ToFloat64(pm.inflightBranches); got != 0 {
		t.Errorf("inflight_branches after Reset = %v", got)
	}

	pm.Disable()
	pm.IncrementRuns("error")
	pm.Enable()
	pm.IncrementRuns("error")
	if got := testutil.ToFloat64(pm.runs.WithLabelValues("error")); got != 2 {
		t.Errorf("runs_total{error} = %v, want 2", got)
	}
}

func TestPrometheusMetrics_NilSafe(t *testing.T) {
	var pm *PrometheusMetrics
	pm.RecordStepLatency("n", time.Millisecond, "success")
	pm.UpdateInflightBranches(1)
	pm.ObserveFanOut(1)
	pm.IncrementMergeErrors("reducer")
	pm.IncrementRuns("success")
	pm.Disable()
	pm.Enable()
	pm.Reset()
}
