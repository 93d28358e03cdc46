package monitoring

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
	"experiment-runner/core/repository"
)

type fakeCatalog struct {
	described []string
	priced    []string
	price     float64
	priceErr  error
}

func (c *fakeCatalog) DescribeInstanceType(_ context.Context, instanceType string) (*models.InstanceShape, error) {
	c.described = append(c.described, instanceType)
	if instanceType == "unknown" {
		return nil, errors.New("not found")
	}
	return &models.InstanceShape{InstanceType: instanceType, VCPUs: 4, MemoryMiB: 16384, GPUs: 1}, nil
}

func (c *fakeCatalog) FetchOnDemandPrice(_ context.Context, instanceType, region string) (float64, error) {
	c.priced = append(c.priced, instanceType+"@"+region)
	return c.price, c.priceErr
}

func TestNormalizeInstanceType(t *testing.T) {
	tests := map[string]string{
		"ml.g5.xlarge":   "g5.xlarge",
		"m5.large":       "m5.large",
		" ml.t3.medium ": "t3.medium",
		"":               "",
	}
	for in, want := range tests {
		if got := NormalizeInstanceType(in); got != want {
			t.Errorf("NormalizeInstanceType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDescribeHost(t *testing.T) {
	catalog := &fakeCatalog{price: 1.006}
	ct := NewCostTracker(catalog, "ap-northeast-2", logger.Nop())

	shape, err := ct.DescribeHost(context.Background(), "ml.g5.xlarge")
	if err != nil {
		t.Fatalf("DescribeHost: %v", err)
	}
	if shape.InstanceType != "ml.g5.xlarge" || shape.PricePerHour != 1.006 || shape.GPUs != 1 {
		t.Errorf("shape = %+v", shape)
	}
	if catalog.described[0] != "g5.xlarge" || catalog.priced[0] != "g5.xlarge@ap-northeast-2" {
		t.Errorf("lookups = %v %v", catalog.described, catalog.priced)
	}
}

func TestDescribeHostPriceFailure(t *testing.T) {
	ct := NewCostTracker(&fakeCatalog{priceErr: errors.New("throttled")}, "us-east-1", logger.Nop())

	shape, err := ct.DescribeHost(context.Background(), "m5.large")
	if err == nil {
		t.Fatal("expected error")
	}
	if shape == nil || shape.VCPUs != 4 || shape.PricePerHour != 0 {
		t.Errorf("shape = %+v", shape)
	}

	if _, err := ct.DescribeHost(context.Background(), ""); err == nil {
		t.Error("expected error for empty instance type")
	}
	if shape, err := ct.DescribeHost(context.Background(), "unknown"); err == nil || shape != nil {
		t.Errorf("unknown type = %+v, %v", shape, err)
	}
}

func TestTrackRun(t *testing.T) {
	ct := NewCostTracker(&fakeCatalog{}, "us-east-1", logger.Nop())
	start := time.Unix(1700000000, 0)
	now := start
	ct.now = func() time.Time { return now }

	ct.TrackRun("priced", &models.InstanceShape{PricePerHour: 2})
	ct.TrackRun("unpriced", nil)
	if ct.ActiveRuns() != 2 {
		t.Fatalf("ActiveRuns = %d", ct.ActiveRuns())
	}

	now = start.Add(30 * time.Minute)
	if got := ct.GetRunningCost(); math.Abs(got-1) > 1e-9 {
		t.Errorf("GetRunningCost = %v, want 1", got)
	}

	cost := ct.StopTracking("priced")
	if cost == nil || math.Abs(*cost-1) > 1e-9 {
		t.Errorf("StopTracking(priced) = %v", cost)
	}
	if cost := ct.StopTracking("unpriced"); cost != nil {
		t.Errorf("StopTracking(unpriced) = %v, want nil", *cost)
	}
	if cost := ct.StopTracking("missing"); cost != nil {
		t.Error("untracked run should have no cost")
	}
	if ct.ActiveRuns() != 0 {
		t.Errorf("ActiveRuns = %d", ct.ActiveRuns())
	}
}

type fakeSummarizer struct {
	summary *repository.RunSummary
	err     error
}

func (s fakeSummarizer) Summarize(context.Context) (*repository.RunSummary, error) {
	return s.summary, s.err
}

func TestGetPrometheusMetrics(t *testing.T) {
	summary := &repository.RunSummary{
		ByState: map[models.RunState]int{
			models.RunStateCompleted: 3,
			models.RunStateFailed:    1,
		},
		Done:             3,
		EstimatedCostUSD: 1.5,
		ElapsedSeconds:   600,
	}
	ct := NewCostTracker(&fakeCatalog{}, "us-east-1", logger.Nop())
	me := NewMetricsExporter(fakeSummarizer{summary: summary}, ct)

	out, err := me.GetPrometheusMetrics(context.Background())
	if err != nil {
		t.Fatalf("GetPrometheusMetrics: %v", err)
	}
	for _, want := range []string{
		"experiment_runs_active 0\n",
		`experiment_runs_total{state="completed"} 3` + "\n",
		`experiment_runs_total{state="failed"} 1` + "\n",
		"experiment_runs_done_total 3\n",
		"experiment_cost_usd_total 1.5000\n",
		"experiment_run_seconds_total 600\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, `state="completed"`) > strings.Index(out, `state="failed"`) {
		t.Error("states should be sorted")
	}
}

func TestGetPrometheusMetricsWithoutLedger(t *testing.T) {
	me := NewMetricsExporter(nil, NewCostTracker(&fakeCatalog{}, "us-east-1", logger.Nop()))
	out, err := me.GetPrometheusMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "experiment_runs_total") {
		t.Error("ledger metrics without a ledger")
	}

	me = NewMetricsExporter(fakeSummarizer{err: errors.New("down")}, nil)
	if _, err := me.GetPrometheusMetrics(context.Background()); err == nil {
		t.Error("expected summarize error")
	}
}
