package repository

import (
	"context"

	"experiment-runner/core/models"
)

// Ledger records runs, their step events and uploaded artifacts
type Ledger struct {
	runs      *RunRepository
	events    *EventRepository
	artifacts *ArtifactRepository
}

// NewLedger creates a ledger backed by db
func NewLedger(db *DB) *Ledger {
	return &Ledger{
		runs:      NewRunRepository(db),
		events:    NewEventRepository(db),
		artifacts: NewArtifactRepository(db),
	}
}

func (l *Ledger) StartRun(ctx context.Context, run *models.Run) error {
	return l.runs.CreateRun(ctx, run)
}

func (l *Ledger) RecordEvent(ctx context.Context, event *models.RunEvent) error {
	return l.events.CreateRunEvent(ctx, event)
}

func (l *Ledger) RecordArtifacts(ctx context.Context, runID, bucket string, manifest models.Manifest) error {
	return l.artifacts.CreateArtifacts(ctx, runID, bucket, manifest)
}

func (l *Ledger) FinishRun(ctx context.Context, run *models.Run) error {
	return l.runs.FinishRun(ctx, run)
}

func (l *Ledger) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return l.runs.GetRun(ctx, id)
}

func (l *Ledger) ListRuns(ctx context.Context, state *models.RunState, limit int) ([]*models.Run, error) {
	return l.runs.ListRuns(ctx, state, limit)
}

func (l *Ledger) Summarize(ctx context.Context) (*RunSummary, error) {
	return l.runs.Summarize(ctx)
}

func (l *Ledger) GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	return l.events.GetRunEvents(ctx, runID, limit)
}

func (l *Ledger) GetRunArtifacts(ctx context.Context, runID string) ([]models.RunArtifact, error) {
	return l.artifacts.GetRunArtifacts(ctx, runID)
}
