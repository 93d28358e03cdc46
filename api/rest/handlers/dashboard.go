package handlers

import (
	"net/http"
	"time"

	"experiment-runner/core/models"
)

// RunningCost reports the accrued cost of runs still executing
type RunningCost interface {
	GetRunningCost() float64
}

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	store RunStore
	costs RunningCost
	now   func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(store RunStore, costs RunningCost) *DashboardHandler {
	return &DashboardHandler{
		store: store,
		costs: costs,
		now:   time.Now,
	}
}

// GetCostMetrics handles GET /v1/dashboard/costs
func (h *DashboardHandler) GetCostMetrics(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Run ledger is not configured", http.StatusServiceUnavailable)
		return
	}

	// Default to the last 30 days
	end := h.now()
	start := end.AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid start_date format", http.StatusBadRequest)
			return
		}
		start = t
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid end_date format", http.StatusBadRequest)
			return
		}
		end = t
	}
	username := r.URL.Query().Get("username")

	runs, err := h.store.ListRuns(r.Context(), nil, maxListLimit)
	if err != nil {
		http.Error(w, "Failed to fetch runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	totalCost := 0.0
	counts := map[models.RunState]int{}
	for _, run := range runs {
		if run.StartedAt.Before(start) || run.StartedAt.After(end) {
			continue
		}
		if username != "" && run.Username != username {
			continue
		}
		counts[run.State]++
		if run.EstimatedCostUSD != nil {
			totalCost += *run.EstimatedCostUSD
		}
	}

	runningCost := 0.0
	if h.costs != nil {
		runningCost = h.costs.GetRunningCost()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"costs": map[string]interface{}{
			"total_usd":     totalCost,
			"running_usd":   runningCost,
			"estimated_usd": totalCost + runningCost,
		},
		"runs": map[string]interface{}{
			"completed": counts[models.RunStateCompleted],
			"degraded":  counts[models.RunStateDegraded],
			"failed":    counts[models.RunStateFailed],
			"running":   counts[models.RunStateRunning],
		},
	})
}

// GetRunCosts handles GET /v1/dashboard/runs
func (h *DashboardHandler) GetRunCosts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "Run ledger is not configured", http.StatusServiceUnavailable)
		return
	}

	runs, err := h.store.ListRuns(r.Context(), nil, queryLimit(r))
	if err != nil {
		http.Error(w, "Failed to fetch runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		cost := 0.0
		if run.EstimatedCostUSD != nil {
			cost = *run.EstimatedCostUSD
		}
		items = append(items, map[string]interface{}{
			"run_id":          run.ID,
			"experiment":      run.ExperimentHashkey,
			"job_type":        run.JobType,
			"state":           run.State,
			"cost_usd":        cost,
			"elapsed_seconds": run.ElapsedSeconds,
			"started_at":      run.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
