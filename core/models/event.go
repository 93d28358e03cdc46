package models

import "time"

// RunState is the lifecycle state of a run in the run ledger
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateDegraded  RunState = "degraded"
	RunStateFailed    RunState = "failed"
)

// Run is a ledger row describing one pipeline execution
type Run struct {
	ID                string
	ProjectHashkey    string
	ExperimentHashkey string
	JobType           string
	Username          string
	DryRun            bool
	State             RunState
	Status            string // experiment status string, empty until reported
	ExperimentDone    bool
	ElapsedSeconds    int64
	EstimatedCostUSD  *float64
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// Step names recorded as run events
const (
	StepFetch    = "fetch"
	StepDownload = "download"
	StepExecute  = "execute"
	StepUpload   = "upload"
	StepReport   = "report"
)

// RunEvent represents a step completion (or failure) within a run
type RunEvent struct {
	ID       int64
	RunID    string
	At       time.Time
	Step     string
	OK       bool
	Message  string
	MetaJSON map[string]interface{} // Additional metadata
}

// RunArtifact is a single uploaded file of a run
type RunArtifact struct {
	ID        int64
	RunID     string
	Prefix    string
	Filename  string
	URI       string
	CreatedAt time.Time
}
