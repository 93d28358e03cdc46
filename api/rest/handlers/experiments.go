package handlers

import (
	"context"
	"net/http"

	"experiment-runner/core/models"

	"github.com/gorilla/mux"
)

// ItemReader reads key-value records
type ItemReader interface {
	GetItem(ctx context.Context, table string, key map[string]string, out interface{}) (bool, error)
}

// ExperimentHandler serves experiment records from an allowed set of tables
type ExperimentHandler struct {
	items  ItemReader
	tables []string
}

// NewExperimentHandler creates a new experiment handler that reads only from tables
func NewExperimentHandler(items ItemReader, tables []string) *ExperimentHandler {
	return &ExperimentHandler{items: items, tables: tables}
}

// GetExperiment handles GET /v1/experiments/{project}/{experiment}?table=
// The table may be omitted when exactly one is allowed.
func (h *ExperimentHandler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	table := r.URL.Query().Get("table")
	if table == "" && len(h.tables) == 1 {
		table = h.tables[0]
	}
	if table == "" {
		http.Error(w, "table query parameter is required", http.StatusBadRequest)
		return
	}
	if !h.allowed(table) {
		http.Error(w, "Table is not an experiment table: "+table, http.StatusForbidden)
		return
	}

	var exp models.Experiment
	found, err := h.items.GetItem(r.Context(), table, map[string]string{
		"project_hashkey":    vars["project"],
		"experiment_hashkey": vars["experiment"],
	}, &exp)
	if err != nil {
		http.Error(w, "Failed to fetch experiment: "+err.Error(), http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *ExperimentHandler) allowed(table string) bool {
	for _, t := range h.tables {
		if t == table {
			return true
		}
	}
	return false
}
