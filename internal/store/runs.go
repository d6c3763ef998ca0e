package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/datallboy/addonsync/internal/domain"
)

const runColumns = "id, status, addons, percent, changed, error, created_at, started_at, finished_at"

func (s *PersistentStore) SaveRun(ctx context.Context, run domain.RunView) error {
	var dbo runDBO
	if err := dbo.FromDomain(run); err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO runs (` + runColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		dbo.ID,
		dbo.Status,
		dbo.Addons,
		dbo.Percent,
		dbo.Changed,
		dbo.Error,
		dbo.CreatedAt,
		dbo.StartedAt,
		dbo.FinishedAt,
	)
	return err
}

// GetRun returns nil, nil when the run does not exist.
func (s *PersistentStore) GetRun(ctx context.Context, id string) (*domain.RunView, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ? LIMIT 1", id)

	var dbo runDBO
	err := row.Scan(&dbo.ID, &dbo.Status, &dbo.Addons, &dbo.Percent, &dbo.Changed,
		&dbo.Error, &dbo.CreatedAt, &dbo.StartedAt, &dbo.FinishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}

	v, err := dbo.ToDomain()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListRuns returns the newest runs first. KSUIDs sort chronologically.
func (s *PersistentStore) ListRuns(ctx context.Context, limit int) ([]domain.RunView, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunView
	for rows.Next() {
		var dbo runDBO
		err := rows.Scan(&dbo.ID, &dbo.Status, &dbo.Addons, &dbo.Percent, &dbo.Changed,
			&dbo.Error, &dbo.CreatedAt, &dbo.StartedAt, &dbo.FinishedAt)
		if err != nil {
			return nil, err
		}

		v, err := dbo.ToDomain()
		if err != nil {
			// A single broken row should not hide the rest of the history
			continue
		}
		runs = append(runs, v)
	}

	return runs, rows.Err()
}
