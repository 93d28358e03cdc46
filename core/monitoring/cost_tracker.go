package monitoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

// InstanceCatalog describes and prices compute instance types
type InstanceCatalog interface {
	DescribeInstanceType(ctx context.Context, instanceType string) (*models.InstanceShape, error)
	FetchOnDemandPrice(ctx context.Context, instanceType, region string) (float64, error)
}

// CostTracker estimates what runs cost on the host they execute on
type CostTracker struct {
	catalog InstanceCatalog
	region  string
	log     *logger.Logger

	mu       sync.RWMutex
	runCosts map[string]*RunCost
	now      func() time.Time
}

// RunCost tracks cost for a single run
type RunCost struct {
	RunID        string
	StartTime    time.Time
	PricePerHour float64
}

// NewCostTracker creates a new cost tracker pricing instances in region
func NewCostTracker(catalog InstanceCatalog, region string, log *logger.Logger) *CostTracker {
	return &CostTracker{
		catalog:  catalog,
		region:   region,
		log:      log,
		runCosts: make(map[string]*RunCost),
		now:      time.Now,
	}
}

// NormalizeInstanceType maps a SageMaker instance type (ml.g5.xlarge) to its
// EC2 name (g5.xlarge)
func NormalizeInstanceType(instanceType string) string {
	return strings.TrimPrefix(strings.TrimSpace(instanceType), "ml.")
}

// DescribeHost returns the shape and hourly price of instanceType. When only
// the price lookup fails, the shape is returned along with the error.
func (ct *CostTracker) DescribeHost(ctx context.Context, instanceType string) (*models.InstanceShape, error) {
	ec2Type := NormalizeInstanceType(instanceType)
	if ec2Type == "" {
		return nil, fmt.Errorf("no instance type given")
	}

	shape, err := ct.catalog.DescribeInstanceType(ctx, ec2Type)
	if err != nil {
		return nil, err
	}
	shape.InstanceType = instanceType

	price, err := ct.catalog.FetchOnDemandPrice(ctx, ec2Type, ct.region)
	if err != nil {
		return shape, fmt.Errorf("failed to price %s: %w", ec2Type, err)
	}
	shape.PricePerHour = price
	return shape, nil
}

// TrackRun starts tracking cost for a run
func (ct *CostTracker) TrackRun(runID string, host *models.InstanceShape) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	rc := &RunCost{RunID: runID, StartTime: ct.now()}
	if host != nil {
		rc.PricePerHour = host.PricePerHour
	}
	ct.runCosts[runID] = rc
}

// StopTracking stops tracking a run and returns its final cost, nil when the
// price is unknown
func (ct *CostTracker) StopTracking(runID string) *float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	rc, ok := ct.runCosts[runID]
	if !ok {
		return nil
	}
	delete(ct.runCosts, runID)
	return EstimateCost(rc.PricePerHour, ct.now().Sub(rc.StartTime))
}

// GetRunningCost returns the cost accrued so far by tracked runs
func (ct *CostTracker) GetRunningCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	total := 0.0
	now := ct.now()
	for _, rc := range ct.runCosts {
		total += rc.PricePerHour * now.Sub(rc.StartTime).Hours()
	}
	return total
}

// ActiveRuns returns the number of tracked runs
func (ct *CostTracker) ActiveRuns() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.runCosts)
}

// EstimateCost returns hourly * elapsed, or nil when the price is unknown
func EstimateCost(pricePerHour float64, elapsed time.Duration) *float64 {
	if pricePerHour <= 0 {
		return nil
	}
	cost := pricePerHour * elapsed.Hours()
	return &cost
}
