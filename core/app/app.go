// Package app assembles the pipeline and its AWS, ledger and cost
// dependencies from configuration.
package app

import (
	"context"

	"experiment-runner/config"
	"experiment-runner/core/executor"
	"experiment-runner/core/logger"
	"experiment-runner/core/metadata"
	"experiment-runner/core/monitoring"
	"experiment-runner/core/pipeline"
	"experiment-runner/core/reporter"
	"experiment-runner/core/repository"
	"experiment-runner/providers/aws"
	"experiment-runner/storage"
)

// Field of the database secret holding the connection URL
const databaseURLField = "database_url"

// App holds the wired components of the runner
type App struct {
	Config   *config.Config
	Client   *aws.Client
	Pipeline *pipeline.Pipeline
	Costs    *monitoring.CostTracker
	// DB and Ledger are nil when no database is configured or reachable
	DB     *repository.DB
	Ledger *repository.Ledger
}

// New connects to AWS and, when configured, the run ledger database, then
// wires the pipeline. Only the AWS client is required; a ledger that cannot
// be opened is logged and skipped.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	client, err := aws.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config: cfg,
		Client: client,
		Costs:  monitoring.NewCostTracker(client, client.Region(), log),
	}

	if db := openLedger(ctx, cfg, client, log); db != nil {
		a.DB = db
		a.Ledger = repository.NewLedger(db)
	}

	deps := pipeline.Deps{
		Fetcher:    metadata.NewFetcher(client, cfg, log),
		Downloader: storage.NewDownloader(client, log),
		Runner:     executor.NewNotebookExecutor(cfg.PapermillBin, log),
		Uploader:   storage.NewUploader(client, log),
		Reporter:   reporter.NewReporter(client, client, log),
		Costs:      a.Costs,
	}
	if a.Ledger != nil {
		deps.Ledger = a.Ledger
	}
	a.Pipeline = pipeline.New(cfg, deps, log)
	return a, nil
}

// Close releases the database connection
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func openLedger(ctx context.Context, cfg *config.Config, client *aws.Client, log *logger.Logger) *repository.DB {
	url := cfg.DatabaseURL
	if url == "" && cfg.DatabaseURLSecret != "" {
		var err error
		url, err = client.GetSecretField(ctx, cfg.DatabaseURLSecret, databaseURLField)
		if err != nil {
			log.Warn("Failed to read database secret, run ledger disabled", "secret", cfg.DatabaseURLSecret, "error", err)
			return nil
		}
	}
	if url == "" {
		return nil
	}

	db, err := repository.NewDB(ctx, url)
	if err != nil {
		log.Warn("Run ledger disabled", "error", err)
		return nil
	}
	log.Info("Run ledger connected")
	return db
}
