package repository

import (
	"context"
	"encoding/json"

	"experiment-runner/core/models"
)

// EventRepository handles database operations for run events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateRunEvent records a step outcome
func (r *EventRepository) CreateRunEvent(ctx context.Context, event *models.RunEvent) error {
	metaJSON := "{}"
	if event.MetaJSON != nil {
		if b, err := json.Marshal(event.MetaJSON); err == nil {
			metaJSON = string(b)
		}
	}

	query := `
		INSERT INTO run_events (run_id, step, ok, message, meta_json)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, at
	`
	return r.db.QueryRowContext(ctx, query,
		event.RunID,
		event.Step,
		event.OK,
		event.Message,
		metaJSON,
	).Scan(&event.ID, &event.At)
}

// GetRunEvents retrieves events for a run in the order they happened
func (r *EventRepository) GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	query := `
		SELECT id, run_id, at, step, ok, message, meta_json
		FROM run_events
		WHERE run_id = $1
		ORDER BY at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.RunEvent{}
	for rows.Next() {
		var event models.RunEvent
		var metaJSON string

		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.At,
			&event.Step,
			&event.OK,
			&event.Message,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &event.MetaJSON)
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
