package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
	"experiment-runner/core/repository"
	"experiment-runner/core/scheduler"

	"github.com/gorilla/mux"
)

// RunStore reads the run ledger
type RunStore interface {
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, state *models.RunState, limit int) ([]*models.Run, error)
	GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)
	GetRunArtifacts(ctx context.Context, runID string) ([]models.RunArtifact, error)
}

// RunQueue accepts runs for serial execution
type RunQueue interface {
	Enqueue(params models.RunParams) (*scheduler.QueuedRun, int)
	Current() *scheduler.QueuedRun
	Pending() []scheduler.QueuedRun
}

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	store RunStore
	queue RunQueue
	log   *logger.Logger
}

// NewRunHandler creates a new run handler. store may be nil when no run
// ledger is configured; the read endpoints then answer 503.
func NewRunHandler(store RunStore, queue RunQueue, log *logger.Logger) *RunHandler {
	return &RunHandler{
		store: store,
		queue: queue,
		log:   log,
	}
}

// SubmitRunResponse is returned for an accepted run
type SubmitRunResponse struct {
	ID         string    `json:"id"`
	Position   int       `json:"position"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// SubmitRun handles POST /v1/runs
func (h *RunHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var params models.RunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, position := h.queue.Enqueue(params)
	h.log.Info("Run accepted", "run_id", run.ID, "position", position, "experiment", params.ExperimentHashkey)

	writeJSON(w, http.StatusAccepted, SubmitRunResponse{
		ID:         run.ID,
		Position:   position,
		EnqueuedAt: run.EnqueuedAt,
	})
}

// GetQueue handles GET /v1/queue
func (h *RunHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"current": nil,
		"pending": queueItems(h.queue.Pending()),
	}
	if current := h.queue.Current(); current != nil {
		response["current"] = queueItem(*current)
	}
	writeJSON(w, http.StatusOK, response)
}

func queueItems(runs []scheduler.QueuedRun) []map[string]interface{} {
	items := make([]map[string]interface{}, len(runs))
	for i, run := range runs {
		items[i] = queueItem(run)
	}
	return items
}

func queueItem(run scheduler.QueuedRun) map[string]interface{} {
	return map[string]interface{}{
		"id":                 run.ID,
		"project_hashkey":    run.Params.ProjectHashkey,
		"experiment_hashkey": run.Params.ExperimentHashkey,
		"job_type":           run.Params.JobType,
		"enqueued_at":        run.EnqueuedAt,
	}
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	var state *models.RunState
	if raw := r.URL.Query().Get("state"); raw != "" {
		s := models.RunState(raw)
		state = &s
	}

	runs, err := h.store.ListRuns(r.Context(), state, queryLimit(r))
	if err != nil {
		http.Error(w, "Failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(runs))
	for i, run := range runs {
		items[i] = runResponse(run)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	events, err := h.store.GetRunEvents(r.Context(), run.ID, queryLimit(r))
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":   event.At,
			"step": event.Step,
			"ok":   event.OK,
		}
		if event.Message != "" {
			item["message"] = event.Message
		}
		if len(event.MetaJSON) > 0 {
			item["meta"] = event.MetaJSON
		}
		items[i] = item
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// GetRunArtifacts handles GET /v1/runs/{id}/artifacts
func (h *RunHandler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	artifacts, err := h.store.GetRunArtifacts(r.Context(), run.ID)
	if err != nil {
		http.Error(w, "Failed to fetch artifacts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Optional folder filter
	prefix := r.URL.Query().Get("prefix")
	items := make([]map[string]interface{}, 0, len(artifacts))
	for _, artifact := range artifacts {
		if prefix != "" && artifact.Prefix != prefix {
			continue
		}
		items = append(items, map[string]interface{}{
			"prefix":     artifact.Prefix,
			"filename":   artifact.Filename,
			"uri":        artifact.URI,
			"created_at": artifact.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *RunHandler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		http.Error(w, "Run ledger is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *RunHandler) lookupRun(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	run, err := h.store.GetRun(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, repository.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to fetch run: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func runResponse(run *models.Run) map[string]interface{} {
	return map[string]interface{}{
		"id":                 run.ID,
		"project_hashkey":    run.ProjectHashkey,
		"experiment_hashkey": run.ExperimentHashkey,
		"job_type":           run.JobType,
		"username":           run.Username,
		"dryrun":             run.DryRun,
		"state":              run.State,
		"status":             run.Status,
		"experiment_done":    run.ExperimentDone,
		"elapsed_seconds":    run.ElapsedSeconds,
		"estimated_cost_usd": run.EstimatedCostUSD,
		"timestamps": map[string]interface{}{
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
		},
	}
}
