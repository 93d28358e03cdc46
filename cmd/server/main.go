package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"experiment-runner/api/rest/routes"
	"experiment-runner/config"
	"experiment-runner/core/app"
	"experiment-runner/core/logger"
	"experiment-runner/core/monitoring"
	"experiment-runner/core/scheduler"

	"github.com/gorilla/mux"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadFile(os.Getenv("RUNNER_CONFIG"))
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", "error", err)
	}
	defer a.Close()

	// Runs share the work root, so they execute one at a time
	sched := scheduler.NewScheduler(a.Pipeline, log)
	go sched.Start(ctx)
	defer sched.Stop()

	deps := routes.Dependencies{
		Queue:            sched,
		Items:            a.Client,
		RunningCost:      a.Costs,
		Log:              log,
		ExperimentTables: cfg.ExperimentTables,
	}
	var summarizer monitoring.RunSummarizer
	if a.Ledger != nil {
		deps.Runs = a.Ledger
		summarizer = a.Ledger
	}
	deps.Metrics = monitoring.NewMetricsExporter(summarizer, a.Costs)

	r := mux.NewRouter()
	routes.SetupRoutes(r, deps)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", "port", cfg.ServerPort, "ledger", a.Ledger != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	log.Info("Server exited", "pending_runs", len(sched.Pending()))
}
