package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore shares the schema of PersistentStore for multi-host setups.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// golang-migrate wants a database/sql handle
	db := stdlib.OpenDBFromPool(pool)
	err = runMigrations(db, DriverPostgres)
	db.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadEntries(ctx context.Context) (map[string]domain.CacheEntry, error) {
	rows, err := s.pool.Query(ctx, "SELECT addon, download_url, file_name, changed_at FROM smartupdate")
	if err != nil {
		return nil, fmt.Errorf("failed to load smartupdate table: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]domain.CacheEntry)
	for rows.Next() {
		var e domain.CacheEntry
		if err := rows.Scan(&e.Addon, &e.DownloadURL, &e.FileName, &e.ChangedAt); err != nil {
			return nil, err
		}
		e.ChangedAt = e.ChangedAt.UTC()
		entries[e.Addon] = e
	}

	return entries, rows.Err()
}

func (s *PostgresStore) ReplaceEntries(ctx context.Context, entries map[string]domain.CacheEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM smartupdate"); err != nil {
		return fmt.Errorf("failed to clear smartupdate table: %w", err)
	}

	batch := &pgx.Batch{}
	for name, e := range entries {
		batch.Queue(`INSERT INTO smartupdate (addon, download_url, file_name, changed_at) VALUES ($1, $2, $3, $4)`,
			name, e.DownloadURL, e.FileName, e.ChangedAt.UTC())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save smartupdate table: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) SaveRun(ctx context.Context, run domain.RunView) error {
	addons, err := json.Marshal(run.Addons)
	if err != nil {
		return fmt.Errorf("failed to encode addons: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3::jsonb, $4, $5, NULLIF($6, ''), $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			addons = excluded.addons,
			percent = excluded.percent,
			changed = excluded.changed,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		run.ID, string(run.Status), string(addons), run.Percent, run.Changed, run.Error,
		run.CreatedAt.UTC(), nullTime(run.StartedAt), nullTime(run.FinishedAt),
	)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*domain.RunView, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+runColumns+" FROM runs WHERE id = $1", id)

	v, err := scanPostgresRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]domain.RunView, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, "SELECT "+runColumns+" FROM runs ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunView
	for rows.Next() {
		v, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, v)
	}
	return runs, rows.Err()
}

func scanPostgresRun(row pgx.Row) (domain.RunView, error) {
	var (
		v                     domain.RunView
		status                string
		addons                []byte
		runErr                *string
		startedAt, finishedAt *time.Time
	)

	err := row.Scan(&v.ID, &status, &addons, &v.Percent, &v.Changed, &runErr, &v.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return v, err
	}

	v.Status = domain.RunStatus(status)
	if err := json.Unmarshal(addons, &v.Addons); err != nil {
		return v, fmt.Errorf("failed to decode addons for run %s: %w", v.ID, err)
	}
	if runErr != nil {
		v.Error = *runErr
	}
	if startedAt != nil {
		v.StartedAt = startedAt.UTC()
	}
	if finishedAt != nil {
		v.FinishedAt = finishedAt.UTC()
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
