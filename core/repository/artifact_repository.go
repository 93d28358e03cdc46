package repository

import (
	"context"

	"experiment-runner/core/models"
)

// ArtifactRepository handles database operations for run artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// CreateArtifacts records every file of an upload manifest in one transaction
func (r *ArtifactRepository) CreateArtifacts(ctx context.Context, runID, bucket string, manifest models.Manifest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO run_artifacts (run_id, prefix, filename, uri, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	for _, artifact := range ManifestArtifacts(runID, bucket, manifest) {
		if _, err := tx.ExecContext(ctx, query, artifact.RunID, artifact.Prefix, artifact.Filename, artifact.URI); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRunArtifacts retrieves the artifacts uploaded by a run
func (r *ArtifactRepository) GetRunArtifacts(ctx context.Context, runID string) ([]models.RunArtifact, error) {
	query := `
		SELECT id, run_id, prefix, filename, uri, created_at
		FROM run_artifacts
		WHERE run_id = $1
		ORDER BY prefix, filename
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := []models.RunArtifact{}
	for rows.Next() {
		var artifact models.RunArtifact
		err := rows.Scan(
			&artifact.ID,
			&artifact.RunID,
			&artifact.Prefix,
			&artifact.Filename,
			&artifact.URI,
			&artifact.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// ManifestArtifacts flattens a manifest into artifact rows, ordered by prefix
func ManifestArtifacts(runID, bucket string, manifest models.Manifest) []models.RunArtifact {
	var artifacts []models.RunArtifact
	for _, prefix := range manifest.Prefixes() {
		for _, file := range manifest[prefix] {
			artifacts = append(artifacts, models.RunArtifact{
				RunID:    runID,
				Prefix:   prefix,
				Filename: file,
				URI:      "s3://" + bucket + "/" + prefix + "/" + file,
			})
		}
	}
	return artifacts
}
