package routes

import (
	"experiment-runner/api/rest/handlers"
	"experiment-runner/core/logger"

	"github.com/gorilla/mux"
)

// Dependencies are the components the API serves. Runs may be nil when no
// run ledger is configured.
type Dependencies struct {
	Runs        handlers.RunStore
	Queue       handlers.RunQueue
	Items       handlers.ItemReader
	Metrics     handlers.MetricsSource
	RunningCost handlers.RunningCost
	Log         *logger.Logger

	// ExperimentTables limits experiment lookups to these tables
	ExperimentTables []string
}

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, deps Dependencies) {
	runHandler := handlers.NewRunHandler(deps.Runs, deps.Queue, deps.Log)
	experimentHandler := handlers.NewExperimentHandler(deps.Items, deps.ExperimentTables)
	dashboardHandler := handlers.NewDashboardHandler(deps.Runs, deps.RunningCost)

	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.HandleFunc("/metrics", handlers.Metrics(deps.Metrics)).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.SubmitRun).Methods("POST")
	api.HandleFunc("/runs", runHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/events", runHandler.GetRunEvents).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts", runHandler.GetRunArtifacts).Methods("GET")
	api.HandleFunc("/queue", runHandler.GetQueue).Methods("GET")

	api.HandleFunc("/experiments/{project}/{experiment}", experimentHandler.GetExperiment).Methods("GET")

	// Dashboard endpoints
	api.HandleFunc("/dashboard/costs", dashboardHandler.GetCostMetrics).Methods("GET")
	api.HandleFunc("/dashboard/runs", dashboardHandler.GetRunCosts).Methods("GET")
}
