package models

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

// Experiment status strings written back to the experiment record
const (
	StatusCompleted = "실험 완료"
	StatusFailed    = "실험 실패"
)

// RunParams are the inputs of a single run, as passed by the workflow engine
type RunParams struct {
	ProjectHashkey            string `json:"project_hashkey"`
	ExperimentHashkey         string `json:"experiment_hashkey"`
	ProfileHashkey            string `json:"profile_hashkey"`
	ExperimentTableName       string `json:"experiment_table_name"`
	ExperimentResultTableName string `json:"experiment_result_table_name"`
	DatasetTableName          string `json:"dataset_table_name"`
	DatasetProfileTableName   string `json:"dataset_profile_table_name"`
	ModelRepoTableName        string `json:"model_repo_table_name"`
	Username                  string `json:"username"`
	TaskToken                 string `json:"task_token"`
	DryRun                    bool   `json:"dryrun"`
	JobType                   string `json:"job_type"`
}

// Validate checks the fields without which no run can start
func (p RunParams) Validate() error {
	var missing []string
	if p.ProjectHashkey == "" {
		missing = append(missing, "project_hashkey")
	}
	if p.ExperimentHashkey == "" {
		missing = append(missing, "experiment_hashkey")
	}
	if p.ExperimentTableName == "" {
		missing = append(missing, "experiment_table_name")
	}
	if p.JobType == "" {
		missing = append(missing, "job_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing run parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Manifest maps an uploaded folder prefix to the filenames uploaded under it
type Manifest map[string][]string

// Contains reports whether file was uploaded under prefix
func (m Manifest) Contains(prefix, file string) bool {
	for _, f := range m[prefix] {
		if f == file {
			return true
		}
	}
	return false
}

// Count returns the number of uploaded files
func (m Manifest) Count() int {
	n := 0
	for _, files := range m {
		n += len(files)
	}
	return n
}

// Prefixes returns the manifest keys in sorted order
func (m Manifest) Prefixes() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Result is the per-run summary written to the result table
type Result struct {
	RunID             string   `dynamodbav:"run_id" json:"run_id"`
	JobType           string   `dynamodbav:"job_type" json:"job_type"`
	Artifacts         Manifest `dynamodbav:"artifacts" json:"artifacts"`
	BucketName        string   `dynamodbav:"bucket_name" json:"bucket_name"`
	S3KeyPrefix       string   `dynamodbav:"s3_key_prefix" json:"s3_key_prefix"`
	CreatedTS         int64    `dynamodbav:"created_ts" json:"created_ts"`
	CreatedDT         string   `dynamodbav:"created_dt" json:"created_dt"`
	DatasetName       string   `dynamodbav:"dataset_name" json:"dataset_name"`
	FileHashkey       string   `dynamodbav:"file_hashkey" json:"file_hashkey"`
	ModelHashkey      string   `dynamodbav:"model_hashkey" json:"model_hashkey"`
	ModelName         string   `dynamodbav:"model_name" json:"model_name"`
	ProjectHashkey    string   `dynamodbav:"project_hashkey" json:"project_hashkey"`
	ExperimentHashkey string   `dynamodbav:"experiment_hashkey" json:"experiment_hashkey"`
	ProjectName       string   `dynamodbav:"project_name" json:"project_name"`
	Username          string   `dynamodbav:"username" json:"username"`
	Elapsed           int64    `dynamodbav:"elapsed" json:"elapsed"`
	ExperimentDone    bool     `dynamodbav:"experiment_done" json:"experiment_done"`
	Logs              []string `dynamodbav:"logs" json:"logs"`
	EstimatedCostUSD  *float64 `dynamodbav:"estimated_cost_usd,omitempty" json:"estimated_cost_usd,omitempty"`
}

// Status returns the experiment status string for the result
func (r *Result) Status() string {
	if r.ExperimentDone {
		return StatusCompleted
	}
	return StatusFailed
}

// RunLog accumulates diagnostic messages for one run. It is passed to every
// step and flushed into the result record at the end.
type RunLog struct {
	mu       sync.Mutex
	messages []string
}

// NewRunLog returns an empty run log
func NewRunLog() *RunLog {
	return &RunLog{messages: []string{}}
}

// Add appends a message
func (l *RunLog) Add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// AddError appends err's text prefixed with the step that produced it
func (l *RunLog) AddError(step string, err error) {
	if err == nil {
		return
	}
	l.Add(step + ": " + err.Error())
}

// Messages returns a copy of the accumulated messages in order
func (l *RunLog) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages
func (l *RunLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

var seoul = mustLoadLocation("Asia/Seoul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fixed offset; Korea has not observed DST since 1988.
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// DateTimeLayout is the layout of every *_dt attribute
const DateTimeLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders a unix timestamp in Asia/Seoul as YYYY-MM-DD HH:MM:SS
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).In(seoul).Format(DateTimeLayout)
}
