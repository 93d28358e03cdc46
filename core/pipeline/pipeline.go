package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"experiment-runner/config"
	"experiment-runner/core/executor"
	"experiment-runner/core/logger"
	"experiment-runner/core/models"
	"experiment-runner/core/monitoring"
	"experiment-runner/core/reporter"
	"experiment-runner/core/spec"
	"experiment-runner/storage"

	"github.com/google/uuid"
)

// MetadataFetcher resolves the records a run needs
type MetadataFetcher interface {
	Fetch(ctx context.Context, runID string, params models.RunParams, host *models.InstanceShape, runLog *models.RunLog) (*models.Metadata, error)
}

// ResourceDownloader stages inputs into the workspace
type ResourceDownloader interface {
	Download(ctx context.Context, meta *models.Metadata, ws *storage.Workspace, runLog *models.RunLog) (int, error)
}

// NotebookRunner executes a notebook
type NotebookRunner interface {
	Execute(ctx context.Context, run executor.NotebookRun) (*executor.Execution, error)
}

// ResultUploader publishes the artifacts directory
type ResultUploader interface {
	UploadDirectory(ctx context.Context, localDir, bucket, prefix string, runLog *models.RunLog) (models.Manifest, error)
}

// StatusReporter persists the outcome and signals the workflow
type StatusReporter interface {
	Report(ctx context.Context, out reporter.Outcome, runLog *models.RunLog) (*models.Result, error)
	Fail(ctx context.Context, token string, err error, stack []byte) error
}

// Ledger records runs for later inspection
type Ledger interface {
	StartRun(ctx context.Context, run *models.Run) error
	RecordEvent(ctx context.Context, event *models.RunEvent) error
	RecordArtifacts(ctx context.Context, runID, bucket string, manifest models.Manifest) error
	FinishRun(ctx context.Context, run *models.Run) error
}

// Deps are the steps of a pipeline. Costs and Ledger are optional.
type Deps struct {
	Fetcher    MetadataFetcher
	Downloader ResourceDownloader
	Runner     NotebookRunner
	Uploader   ResultUploader
	Reporter   StatusReporter
	Costs      *monitoring.CostTracker
	Ledger     Ledger
}

// Pipeline runs fetch, download, execute, upload and report for one
// experiment at a time
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  *logger.Logger

	treeOut io.Writer
	now     func() time.Time
	newID   func() string
}

// New creates a new pipeline
func New(cfg *config.Config, deps Deps, log *logger.Logger) *Pipeline {
	if deps.Ledger == nil {
		deps.Ledger = NopLedger{}
	}
	return &Pipeline{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		treeOut: os.Stdout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Summary describes a finished run
type Summary struct {
	RunID      string
	State      models.RunState
	Downloaded int
	Executed   bool
	Result     *models.Result
	// FailureReported is set when an aborted run was signalled to the workflow
	FailureReported bool
}

// run is the state carried between steps
type run struct {
	params models.RunParams
	record *models.Run
	runLog *models.RunLog
	log    *logger.Logger
	host   *models.InstanceShape
	ws     *storage.Workspace
	meta   *models.Metadata

	// cost is the estimate taken when cost tracking stopped
	cost        *float64
	costStopped bool
}

// Run executes one run under a new run ID. The returned error is the cause
// of an aborted run; a run that reached the reporter returns nil even when
// the experiment itself did not complete.
func (p *Pipeline) Run(ctx context.Context, params models.RunParams) (*Summary, error) {
	return p.RunWithID(ctx, p.newID(), params)
}

// RunWithID is Run with a caller-chosen run ID
func (p *Pipeline) RunWithID(ctx context.Context, runID string, params models.RunParams) (summary *Summary, err error) {
	r := &run{
		params: params,
		runLog: models.NewRunLog(),
		record: &models.Run{
			ID:                runID,
			ProjectHashkey:    params.ProjectHashkey,
			ExperimentHashkey: params.ExperimentHashkey,
			JobType:           params.JobType,
			Username:          params.Username,
			DryRun:            params.DryRun,
			State:             models.RunStateRunning,
			StartedAt:         p.now(),
		},
	}
	r.log = p.log.With(
		"run_id", r.record.ID,
		"project", params.ProjectHashkey,
		"experiment", params.ExperimentHashkey,
		"job_type", params.JobType,
	)
	summary = &Summary{RunID: r.record.ID, State: models.RunStateRunning}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			p.abort(ctx, r, summary, err, debug.Stack())
		}
	}()

	if err := p.deps.Ledger.StartRun(ctx, r.record); err != nil {
		r.log.Warn("Failed to record run start", "error", err)
	}
	if err := params.Validate(); err != nil {
		return p.abort(ctx, r, summary, err, nil)
	}

	r.log.Info("Starting run", "dryrun", params.DryRun)
	p.describeHost(ctx, r)

	// Step 1: workspace and metadata
	ws, err := storage.PrepareWorkspace(p.cfg.WorkRoot, params.JobType)
	if err != nil {
		return p.abort(ctx, r, summary, err, nil)
	}
	r.ws = ws

	meta, err := p.deps.Fetcher.Fetch(ctx, r.record.ID, params, r.host, r.runLog)
	p.event(ctx, r, models.StepFetch, err, nil)
	if err != nil {
		return p.abort(ctx, r, summary, err, nil)
	}
	r.meta = meta
	p.writeLogItem(r)

	// Step 2: inputs
	n, err := p.deps.Downloader.Download(ctx, meta, ws, r.runLog)
	summary.Downloaded = n
	p.event(ctx, r, models.StepDownload, err, map[string]interface{}{"files": n})
	p.printTree(r)

	// Step 3: notebook
	summary.Executed = p.execute(ctx, r)
	p.printTree(r)

	// Step 4: artifacts and report
	exp := meta.Experiment
	prefix := exp.ArtifactsPrefix()
	manifest, err := p.deps.Uploader.UploadDirectory(ctx, ws.ArtifactsDir, exp.BucketName, prefix, r.runLog)
	if err != nil {
		r.log.Warn("Upload failed", "error", err)
		r.runLog.AddError("upload", err)
	}
	p.event(ctx, r, models.StepUpload, err, map[string]interface{}{"files": manifest.Count()})
	if manifest.Count() > 0 {
		if err := p.deps.Ledger.RecordArtifacts(ctx, r.record.ID, exp.BucketName, manifest); err != nil {
			r.log.Warn("Failed to record artifacts", "error", err)
		}
	}
	done := storage.ExperimentDone(manifest, prefix, p.cfg.CompletionMarkers)

	result, err := p.deps.Reporter.Report(ctx, reporter.Outcome{
		RunID:            r.record.ID,
		Params:           params,
		Experiment:       exp,
		Manifest:         manifest,
		ExperimentDone:   done,
		StartedAt:        r.record.StartedAt,
		EstimatedCostUSD: p.stopCost(r),
	}, r.runLog)
	p.event(ctx, r, models.StepReport, err, nil)
	if err != nil {
		return p.abort(ctx, r, summary, err, nil)
	}
	summary.Result = result

	r.record.State = models.RunStateCompleted
	if !done || r.runLog.Len() > 0 {
		r.record.State = models.RunStateDegraded
	}
	r.record.Status = result.Status()
	r.record.ExperimentDone = done
	r.record.EstimatedCostUSD = result.EstimatedCostUSD
	p.finish(ctx, r, summary)

	r.log.Info("Run finished",
		"status", result.Status(),
		"experiment_done", done,
		"elapsed", result.Elapsed,
		"logs", r.runLog.Len(),
	)
	return summary, nil
}

// execute runs the notebook for the job type unless this is a dry run. It
// reports whether the notebook ran without error.
func (p *Pipeline) execute(ctx context.Context, r *run) bool {
	if r.params.DryRun {
		r.log.Info("dryrun mode: skipping notebook execution")
		p.event(ctx, r, models.StepExecute, nil, map[string]interface{}{"skipped": "dryrun"})
		return false
	}

	notebook, ok := r.meta.Model.Notebook(r.params.JobType)
	if !ok {
		notebook, ok = p.cfg.DefaultNotebook(r.params.JobType)
	}
	if !ok {
		err := fmt.Errorf("no notebook for job type %s", r.params.JobType)
		r.log.Warn("Skipping notebook execution", "error", err)
		r.runLog.AddError("execute", err)
		p.event(ctx, r, models.StepExecute, err, nil)
		return false
	}

	nbRun := executor.NotebookRun{
		Notebook: notebook,
		Dir:      r.ws.JobDir,
		Kernel:   p.cfg.KernelName,
	}
	expCfg, err := spec.LoadExperimentConfig(filepath.Join(r.ws.Input(storage.InputConf), "config.yml"))
	if err != nil {
		r.log.Warn("Ignoring experiment config", "error", err)
		r.runLog.AddError("config", err)
	} else {
		if expCfg.Kernel != "" {
			nbRun.Kernel = expCfg.Kernel
		}
		if nbRun.Parameters, err = expCfg.ParametersYAML(); err != nil {
			r.runLog.AddError("config", err)
		}
	}

	execution, err := p.deps.Runner.Execute(ctx, nbRun)
	meta := map[string]interface{}{"notebook": notebook}
	if execution != nil {
		meta["exit_code"] = execution.ExitCode
		meta["seconds"] = int64(execution.Duration.Seconds())
	}
	p.event(ctx, r, models.StepExecute, err, meta)
	if err != nil {
		if errors.Is(err, executor.ErrCellExecution) {
			r.log.Warn("Notebook cell failed", "error", err)
		} else {
			r.log.Error("Notebook execution failed", "error", err)
		}
		r.runLog.AddError("execute", err)
		return false
	}
	return true
}

// abort signals the workflow that the run failed and closes its ledger entry
func (p *Pipeline) abort(ctx context.Context, r *run, summary *Summary, cause error, stack []byte) (*Summary, error) {
	r.record.EstimatedCostUSD = p.stopCost(r)
	if err := p.deps.Reporter.Fail(ctx, r.params.TaskToken, cause, stack); err != nil {
		r.log.Error("Failed to report run failure", "error", err)
	} else {
		summary.FailureReported = true
	}

	r.record.State = models.RunStateFailed
	r.record.Status = models.StatusFailed
	p.finish(ctx, r, summary)
	return summary, cause
}

func (p *Pipeline) finish(ctx context.Context, r *run, summary *Summary) {
	finishedAt := p.now()
	r.record.FinishedAt = &finishedAt
	r.record.ElapsedSeconds = finishedAt.Unix() - r.record.StartedAt.Unix()
	summary.State = r.record.State
	if err := p.deps.Ledger.FinishRun(ctx, r.record); err != nil {
		r.log.Warn("Failed to record run finish", "error", err)
	}
}

func (p *Pipeline) event(ctx context.Context, r *run, step string, err error, meta map[string]interface{}) {
	event := &models.RunEvent{
		RunID:    r.record.ID,
		Step:     step,
		OK:       err == nil,
		MetaJSON: meta,
	}
	if err != nil {
		event.Message = err.Error()
	}
	if err := p.deps.Ledger.RecordEvent(ctx, event); err != nil {
		r.log.Debug("Failed to record event", "step", step, "error", err)
	}
}

// describeHost looks up the configured instance type and starts cost tracking
func (p *Pipeline) describeHost(ctx context.Context, r *run) {
	if p.deps.Costs == nil || p.cfg.InstanceType == "" {
		return
	}
	host, err := p.deps.Costs.DescribeHost(ctx, p.cfg.InstanceType)
	if err != nil {
		r.log.Warn("Failed to describe host", "instance_type", p.cfg.InstanceType, "error", err)
		r.runLog.AddError("cost", err)
	}
	r.host = host
	p.deps.Costs.TrackRun(r.record.ID, host)
}

// stopCost ends cost tracking on the first call; later calls return the same estimate
func (p *Pipeline) stopCost(r *run) *float64 {
	if p.deps.Costs == nil || r.costStopped {
		return r.cost
	}
	r.costStopped = true
	r.cost = p.deps.Costs.StopTracking(r.record.ID)
	return r.cost
}

// writeLogItem keeps the provenance entry next to the inputs for the notebook
func (p *Pipeline) writeLogItem(r *run) {
	if r.meta.LogItem == nil {
		return
	}
	data, err := json.MarshalIndent(r.meta.LogItem, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(r.ws.InputDir, "log_item.json"), data, 0644)
	}
	if err != nil {
		r.log.Warn("Failed to write log item", "error", err)
		r.runLog.AddError("provenance", err)
	}
}

func (p *Pipeline) printTree(r *run) {
	if err := storage.PrintTree(p.treeOut, p.cfg.WorkRoot); err != nil {
		r.log.Debug("Failed to print workspace tree", "error", err)
	}
}

// NopLedger discards everything; used when no database is configured
type NopLedger struct{}

func (NopLedger) StartRun(context.Context, *models.Run) error {
	return nil
}

func (NopLedger) RecordEvent(context.Context, *models.RunEvent) error {
	return nil
}

func (NopLedger) RecordArtifacts(context.Context, string, string, models.Manifest) error {
	return nil
}

func (NopLedger) FinishRun(context.Context, *models.Run) error {
	return nil
}
