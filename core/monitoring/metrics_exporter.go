package monitoring

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"experiment-runner/core/models"
	"experiment-runner/core/repository"
)

// RunSummarizer aggregates the run ledger
type RunSummarizer interface {
	Summarize(ctx context.Context) (*repository.RunSummary, error)
}

// MetricsExporter exports run metrics in the Prometheus text format
type MetricsExporter struct {
	summarizer  RunSummarizer
	costTracker *CostTracker
}

// NewMetricsExporter creates a new metrics exporter. summarizer may be nil
// when no ledger is configured.
func NewMetricsExporter(summarizer RunSummarizer, costTracker *CostTracker) *MetricsExporter {
	return &MetricsExporter{
		summarizer:  summarizer,
		costTracker: costTracker,
	}
}

// GetPrometheusMetrics returns metrics in Prometheus format
func (me *MetricsExporter) GetPrometheusMetrics(ctx context.Context) (string, error) {
	var b strings.Builder

	if me.costTracker != nil {
		b.WriteString("# HELP experiment_runs_active Runs currently executing\n")
		b.WriteString("# TYPE experiment_runs_active gauge\n")
		fmt.Fprintf(&b, "experiment_runs_active %d\n", me.costTracker.ActiveRuns())

		b.WriteString("# HELP experiment_running_cost_usd Cost accrued by executing runs\n")
		b.WriteString("# TYPE experiment_running_cost_usd gauge\n")
		fmt.Fprintf(&b, "experiment_running_cost_usd %.4f\n", me.costTracker.GetRunningCost())
	}

	if me.summarizer == nil {
		return b.String(), nil
	}
	summary, err := me.summarizer.Summarize(ctx)
	if err != nil {
		return b.String(), fmt.Errorf("failed to summarize runs: %w", err)
	}

	states := make([]string, 0, len(summary.ByState))
	for state := range summary.ByState {
		states = append(states, string(state))
	}
	sort.Strings(states)

	b.WriteString("# HELP experiment_runs_total Runs recorded in the ledger by state\n")
	b.WriteString("# TYPE experiment_runs_total counter\n")
	for _, state := range states {
		fmt.Fprintf(&b, "experiment_runs_total{state=%q} %d\n", state, summary.ByState[models.RunState(state)])
	}

	b.WriteString("# HELP experiment_runs_done_total Runs whose artifacts marked the experiment complete\n")
	b.WriteString("# TYPE experiment_runs_done_total counter\n")
	fmt.Fprintf(&b, "experiment_runs_done_total %d\n", summary.Done)

	b.WriteString("# HELP experiment_cost_usd_total Estimated cost of finished runs\n")
	b.WriteString("# TYPE experiment_cost_usd_total counter\n")
	fmt.Fprintf(&b, "experiment_cost_usd_total %.4f\n", summary.EstimatedCostUSD)

	b.WriteString("# HELP experiment_run_seconds_total Elapsed time of finished runs\n")
	b.WriteString("# TYPE experiment_run_seconds_total counter\n")
	fmt.Fprintf(&b, "experiment_run_seconds_total %d\n", summary.ElapsedSeconds)

	return b.String(), nil
}
