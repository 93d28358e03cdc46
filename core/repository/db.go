package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB is the run ledger database handle
type DB struct {
	*sql.DB
}

// NewDB opens the Postgres database at databaseURL and creates the ledger tables
func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                 UUID PRIMARY KEY,
	project_hashkey    TEXT NOT NULL,
	experiment_hashkey TEXT NOT NULL,
	job_type           TEXT NOT NULL,
	username           TEXT NOT NULL DEFAULT '',
	dryrun             BOOLEAN NOT NULL DEFAULT FALSE,
	state              TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT '',
	experiment_done    BOOLEAN NOT NULL DEFAULT FALSE,
	elapsed_seconds    BIGINT NOT NULL DEFAULT 0,
	estimated_cost_usd DOUBLE PRECISION,
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS runs_experiment_idx ON runs (project_hashkey, experiment_hashkey);

CREATE TABLE IF NOT EXISTS run_events (
	id        BIGSERIAL PRIMARY KEY,
	run_id    UUID NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	step      TEXT NOT NULL,
	ok        BOOLEAN NOT NULL,
	message   TEXT NOT NULL DEFAULT '',
	meta_json JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS run_artifacts (
	id         BIGSERIAL PRIMARY KEY,
	run_id     UUID NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	prefix     TEXT NOT NULL,
	filename   TEXT NOT NULL,
	uri        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return nil
}
