package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

// FailureLabel is the error name sent with a task failure
const FailureLabel = models.StatusFailed

// maxCauseLength is the Step Functions limit on a task failure cause
const maxCauseLength = 32768

// ItemWriter writes records to the key-value store
type ItemWriter interface {
	PutItem(ctx context.Context, table string, item interface{}) error
	UpdateItem(ctx context.Context, table string, key map[string]string, values map[string]interface{}) error
}

// TaskNotifier resumes the workflow step waiting on a task token
type TaskNotifier interface {
	SendTaskSuccess(ctx context.Context, token, output string) error
	SendTaskFailure(ctx context.Context, token, errorLabel, cause string) error
}

// Outcome is what the pipeline hands to the reporter once artifacts are uploaded
type Outcome struct {
	RunID            string
	Params           models.RunParams
	Experiment       *models.Experiment
	Manifest         models.Manifest
	ExperimentDone   bool
	StartedAt        time.Time
	EstimatedCostUSD *float64
}

// TaskOutput is the JSON document returned to the workflow on success
type TaskOutput struct {
	ProjectHashkey            string   `json:"project_hashkey"`
	ExperimentHashkey         string   `json:"experiment_hashkey"`
	FileHashkey               string   `json:"file_hashkey"`
	ExperimentTableName       string   `json:"experiment_table_name"`
	ExperimentResultTableName string   `json:"experiment_result_table_name"`
	DatasetTableName          string   `json:"dataset_table_name"`
	DatasetProfileTableName   string   `json:"dataset_profile_table_name"`
	ModelRepoTableName        string   `json:"model_repo_table_name"`
	Username                  string   `json:"username"`
	StatusCode                int      `json:"statusCode"`
	Body                      string   `json:"body"`
	ExperimentDone            bool     `json:"experiment_done"`
	Logs                      []string `json:"logs"`
}

// Reporter persists the run outcome and signals the workflow
type Reporter struct {
	store    ItemWriter
	notifier TaskNotifier
	log      *logger.Logger
	now      func() time.Time
}

// NewReporter creates a new status reporter
func NewReporter(store ItemWriter, notifier TaskNotifier, log *logger.Logger) *Reporter {
	return &Reporter{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Report updates the experiment status, writes the result record and sends
// task success. A completed run whose artifacts are incomplete still sends
// success, with the failed status in the body.
func (r *Reporter) Report(ctx context.Context, out Outcome, runLog *models.RunLog) (*models.Result, error) {
	exp := out.Experiment
	if exp == nil {
		return nil, fmt.Errorf("no experiment to report on")
	}

	ts := r.now().Unix()
	dt := models.FormatTimestamp(ts)
	result := &models.Result{
		RunID:             out.RunID,
		JobType:           out.Params.JobType,
		Artifacts:         out.Manifest,
		BucketName:        exp.BucketName,
		S3KeyPrefix:       exp.S3KeyPrefix,
		CreatedTS:         ts,
		CreatedDT:         dt,
		DatasetName:       exp.DatasetName,
		FileHashkey:       exp.FileHashkey,
		ModelHashkey:      exp.ModelHashkey,
		ModelName:         exp.ModelName,
		ProjectHashkey:    exp.ProjectHashkey,
		ExperimentHashkey: exp.ExperimentHashkey,
		ProjectName:       exp.ProjectName,
		Username:          exp.Username,
		Elapsed:           ts - out.StartedAt.Unix(),
		ExperimentDone:    out.ExperimentDone,
		EstimatedCostUSD:  out.EstimatedCostUSD,
	}
	if result.Artifacts == nil {
		result.Artifacts = models.Manifest{}
	}
	status := result.Status()

	key := map[string]string{
		"project_hashkey":    exp.ProjectHashkey,
		"experiment_hashkey": exp.ExperimentHashkey,
	}
	err := r.store.UpdateItem(ctx, out.Params.ExperimentTableName, key, map[string]interface{}{
		"status":     status,
		"updated_ts": ts,
		"updated_dt": dt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update experiment status: %w", err)
	}
	exp.Status, exp.UpdatedTS, exp.UpdatedDT = status, ts, dt
	r.log.Info("Experiment status updated", "experiment", exp.ExperimentHashkey, "status", status)

	if out.Params.ExperimentResultTableName == "" {
		r.log.Warn("No result table given, result record not written")
		runLog.Add("report: no result table given")
	}
	// Logs are taken last so the note above is included
	result.Logs = runLog.Messages()
	if out.Params.ExperimentResultTableName != "" {
		if err := r.store.PutItem(ctx, out.Params.ExperimentResultTableName, result); err != nil {
			return nil, fmt.Errorf("failed to write result record: %w", err)
		}
	}

	if out.Params.TaskToken == "" {
		r.log.Info("No task token, skipping workflow signal")
		return result, nil
	}

	output, err := json.Marshal(NewTaskOutput(out.Params, exp, result))
	if err != nil {
		return nil, fmt.Errorf("failed to encode task output: %w", err)
	}
	if err := r.notifier.SendTaskSuccess(ctx, out.Params.TaskToken, string(output)); err != nil {
		return nil, err
	}
	r.log.Info("Task success sent", "experiment_done", result.ExperimentDone)
	return result, nil
}

// NewTaskOutput builds the success document for a reported result
func NewTaskOutput(params models.RunParams, exp *models.Experiment, result *models.Result) TaskOutput {
	return TaskOutput{
		ProjectHashkey:            params.ProjectHashkey,
		ExperimentHashkey:         params.ExperimentHashkey,
		FileHashkey:               exp.FileHashkey,
		ExperimentTableName:       params.ExperimentTableName,
		ExperimentResultTableName: params.ExperimentResultTableName,
		DatasetTableName:          params.DatasetTableName,
		DatasetProfileTableName:   params.DatasetProfileTableName,
		ModelRepoTableName:        params.ModelRepoTableName,
		Username:                  params.Username,
		StatusCode:                200,
		Body:                      result.Status(),
		ExperimentDone:            result.ExperimentDone,
		Logs:                      result.Logs,
	}
}

// Fail sends a task failure carrying err and the stack it was raised on.
// An empty token only logs.
func (r *Reporter) Fail(ctx context.Context, token string, err error, stack []byte) error {
	r.log.Error("Run failed", "error", err)
	if token == "" {
		return nil
	}
	cause := err.Error()
	if len(stack) > 0 {
		cause += "\n" + string(stack)
	}
	return r.notifier.SendTaskFailure(ctx, token, FailureLabel, truncateCause(cause))
}

func truncateCause(cause string) string {
	if len(cause) <= maxCauseLength {
		return cause
	}
	return strings.ToValidUTF8(cause[:maxCauseLength], "")
}
