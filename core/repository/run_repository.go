package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"experiment-runner/core/models"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// RunRepository handles database operations for runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a run. An empty ID is filled with a new UUID.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", run.ID, err)
		}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO runs (
			id, project_hashkey, experiment_hashkey, job_type, username, dryrun, state, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		runID,
		run.ProjectHashkey,
		run.ExperimentHashkey,
		run.JobType,
		run.Username,
		run.DryRun,
		run.State,
		run.StartedAt,
	)
	if err != nil {
		return err
	}

	run.ID = runID.String()
	return nil
}

// FinishRun records the final state of a run
func (r *RunRepository) FinishRun(ctx context.Context, run *models.Run) error {
	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}

	query := `
		UPDATE runs
		SET state = $1, status = $2, experiment_done = $3, elapsed_seconds = $4,
			estimated_cost_usd = $5, finished_at = $6
		WHERE id = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		run.State,
		run.Status,
		run.ExperimentDone,
		run.ElapsedSeconds,
		nullFloat(run.EstimatedCostUSD),
		finishedAt,
		run.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	run.FinishedAt = &finishedAt
	return nil
}

const runColumns = `
	id, project_hashkey, experiment_hashkey, job_type, username, dryrun, state, status,
	experiment_done, elapsed_seconds, estimated_cost_usd, started_at, finished_at
`

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrRunNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListRuns lists the most recent runs, optionally filtered by state
func (r *RunRepository) ListRuns(ctx context.Context, state *models.RunState, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	argIndex := 1

	if state != nil {
		query += fmt.Sprintf(" WHERE state = $%d", argIndex)
		args = append(args, *state)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunSummary aggregates the ledger for the metrics endpoint
type RunSummary struct {
	ByState          map[models.RunState]int
	Done             int
	EstimatedCostUSD float64
	ElapsedSeconds   int64
}

// Summarize counts runs per state and totals their cost and duration
func (r *RunRepository) Summarize(ctx context.Context) (*RunSummary, error) {
	query := `
		SELECT state, COUNT(*),
			COALESCE(SUM(CASE WHEN experiment_done THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(estimated_cost_usd), 0),
			COALESCE(SUM(elapsed_seconds), 0)
		FROM runs
		GROUP BY state
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &RunSummary{ByState: map[models.RunState]int{}}
	for rows.Next() {
		var (
			state   models.RunState
			count   int
			done    int
			cost    float64
			elapsed int64
		)
		if err := rows.Scan(&state, &count, &done, &cost, &elapsed); err != nil {
			return nil, err
		}
		summary.ByState[state] = count
		summary.Done += done
		summary.EstimatedCostUSD += cost
		summary.ElapsedSeconds += elapsed
	}
	return summary, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		cost       sql.NullFloat64
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&run.ID,
		&run.ProjectHashkey,
		&run.ExperimentHashkey,
		&run.JobType,
		&run.Username,
		&run.DryRun,
		&run.State,
		&run.Status,
		&run.ExperimentDone,
		&run.ElapsedSeconds,
		&cost,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	if cost.Valid {
		run.EstimatedCostUSD = &cost.Float64
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
