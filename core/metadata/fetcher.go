package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"experiment-runner/config"
	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

// ErrExperimentNotFound is returned when the primary experiment record is missing
var ErrExperimentNotFound = errors.New("experiment not found")

// ItemStore reads and writes key-value records
type ItemStore interface {
	GetItem(ctx context.Context, table string, key map[string]string, out interface{}) (bool, error)
	PutItem(ctx context.Context, table string, item interface{}) error
}

// Fetcher resolves the records a run needs from the key-value store
type Fetcher struct {
	store ItemStore
	cfg   *config.Config
	log   *logger.Logger
	now   func() time.Time
}

// NewFetcher creates a new metadata fetcher
func NewFetcher(store ItemStore, cfg *config.Config, log *logger.Logger) *Fetcher {
	return &Fetcher{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// Fetch looks up the experiment and everything it references, then writes a
// provenance entry to the log table. Only a failed experiment lookup is
// returned as an error; missing related records are left nil and noted in runLog.
func (f *Fetcher) Fetch(
	ctx context.Context,
	runID string,
	params models.RunParams,
	host *models.InstanceShape,
	runLog *models.RunLog,
) (*models.Metadata, error) {
	exp, err := f.getExperiment(ctx, params.ExperimentTableName, params.ProjectHashkey, params.ExperimentHashkey)
	if err != nil {
		return nil, err
	}
	meta := &models.Metadata{Experiment: exp}

	if exp.FileHashkey != "" && params.DatasetTableName != "" {
		meta.Dataset = f.getDataset(ctx, params.DatasetTableName, params.ProjectHashkey, exp.FileHashkey, "dataset", runLog)
	}

	if params.ProfileHashkey != "" && params.DatasetProfileTableName != "" {
		meta.Profile = f.getDataset(ctx, params.DatasetProfileTableName, params.ProjectHashkey, params.ProfileHashkey, "profile", runLog)
	}

	if exp.ModelArtifactHashkey != "" && exp.ModelType != "" {
		meta.ModelArtifact = f.getModelArtifact(ctx, f.cfg.ModelArtifactTable(exp.ModelType), params.ProjectHashkey, exp.ModelArtifactHashkey, runLog)
	}

	if exp.ModelHashkey != "" && params.ModelRepoTableName != "" {
		meta.Model = f.getModelRepo(ctx, params.ModelRepoTableName, exp.ModelHashkey, runLog)
	}

	ts := f.now().Unix()
	meta.LogItem = &models.LogItem{
		RunID:             runID,
		Target:            params.ExperimentTableName,
		JobType:           params.JobType,
		CreatedTS:         ts,
		CreatedDT:         models.FormatTimestamp(ts),
		ProjectHashkey:    params.ProjectHashkey,
		ExperimentHashkey: params.ExperimentHashkey,
		FileHashkey:       exp.FileHashkey,
		Experiment:        exp,
		Dataset:           meta.Dataset,
		Model:             meta.Model,
		Username:          params.Username,
		Host:              host,
	}
	if err := f.store.PutItem(ctx, f.cfg.LogTableName, meta.LogItem); err != nil {
		f.log.Warn("Failed to write provenance entry", "table", f.cfg.LogTableName, "error", err)
		runLog.AddError("provenance", err)
	}

	return meta, nil
}

func (f *Fetcher) getExperiment(ctx context.Context, table, projectHashkey, experimentHashkey string) (*models.Experiment, error) {
	var exp models.Experiment
	found, err := f.store.GetItem(ctx, table, map[string]string{
		"project_hashkey":    projectHashkey,
		"experiment_hashkey": experimentHashkey,
	}, &exp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch experiment %s/%s: %w", projectHashkey, experimentHashkey, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s in %s", ErrExperimentNotFound, projectHashkey, experimentHashkey, table)
	}
	return &exp, nil
}

func (f *Fetcher) getDataset(ctx context.Context, table, projectHashkey, fileHashkey, kind string, runLog *models.RunLog) *models.Dataset {
	var ds models.Dataset
	found, err := f.store.GetItem(ctx, table, map[string]string{
		"project_hashkey": projectHashkey,
		"file_hashkey":    fileHashkey,
	}, &ds)
	if err != nil {
		f.log.Warn("Failed to fetch "+kind, "table", table, "file_hashkey", fileHashkey, "error", err)
		runLog.AddError(kind, err)
		return nil
	}
	if !found {
		f.log.Info("No "+kind+" record", "table", table, "file_hashkey", fileHashkey)
		return nil
	}
	return &ds
}

func (f *Fetcher) getModelArtifact(ctx context.Context, table, projectHashkey, artifactHashkey string, runLog *models.RunLog) *models.Result {
	var res models.Result
	found, err := f.store.GetItem(ctx, table, map[string]string{
		"project_hashkey":    projectHashkey,
		"experiment_hashkey": artifactHashkey,
	}, &res)
	if err != nil {
		f.log.Warn("Failed to fetch model artifact", "table", table, "experiment_hashkey", artifactHashkey, "error", err)
		runLog.AddError("model_artifact", err)
		return nil
	}
	if !found {
		f.log.Info("No model artifact record", "table", table, "experiment_hashkey", artifactHashkey)
		return nil
	}
	return &res
}

func (f *Fetcher) getModelRepo(ctx context.Context, table, modelHashkey string, runLog *models.RunLog) *models.ModelRepo {
	raw := map[string]interface{}{}
	found, err := f.store.GetItem(ctx, table, map[string]string{"model_hashkey": modelHashkey}, &raw)
	if err != nil {
		f.log.Warn("Failed to fetch model repo", "table", table, "model_hashkey", modelHashkey, "error", err)
		runLog.AddError("model", err)
		return nil
	}
	if !found {
		f.log.Info("No model repo record", "table", table, "model_hashkey", modelHashkey)
		return nil
	}
	return models.ModelRepoFromItem(raw)
}
