// Package store persists the SmartUpdate table and the run history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datallboy/addonsync/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is what the cache and the run queue need from persistence.
type Store interface {
	LoadEntries(ctx context.Context) (map[string]domain.CacheEntry, error)
	ReplaceEntries(ctx context.Context, entries map[string]domain.CacheEntry) error

	SaveRun(ctx context.Context, run domain.RunView) error
	GetRun(ctx context.Context, id string) (*domain.RunView, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RunView, error)

	Close() error
}

type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewPersistentStore(opts.SQLitePath)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", opts.Driver)
	}
}

// PersistentStore is the default sqlite backend.
type PersistentStore struct {
	db *sql.DB
}

func NewPersistentStore(dbPath string) (*PersistentStore, error) {
	dbDir := filepath.Dir(dbPath)

	// Ensure the database directory exists
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	if err := runMigrations(db, DriverSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return &PersistentStore{db: db}, nil
}

func (s *PersistentStore) Close() error {
	return s.db.Close()
}
