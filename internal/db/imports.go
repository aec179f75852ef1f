package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ImportRun struct {
	RunID       uuid.UUID  `json:"run_id"`
	SourceID    string     `json:"source_id"`
	Status      string     `json:"status"`
	ItemsFound  int        `json:"items_found"`
	ItemsSaved  int        `json:"items_saved"`
	Errors      int        `json:"errors"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Store) StartImportRun(ctx context.Context, sourceID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, "INSERT INTO import_runs (source_id) VALUES ($1) RETURNING run_id", sourceID).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start import run: %w", err)
	}
	return id, nil
}

func (s *Store) FinishImportRun(ctx context.Context, runID uuid.UUID, status string, found, saved, errs int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_runs
		SET status = $2, items_found = $3, items_saved = $4, errors = $5, completed_at = NOW()
		WHERE run_id = $1
	`, runID, status, found, saved, errs)
	if err != nil {
		return fmt.Errorf("finish import run: %w", err)
	}
	return nil
}

func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, source_id, status, items_found, items_saved, errors, started_at, completed_at
		FROM import_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	runs := []ImportRun{}
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.RunID, &r.SourceID, &r.Status, &r.ItemsFound, &r.ItemsSaved, &r.Errors, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
