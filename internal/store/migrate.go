package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// runMigrations applies the embedded schema for dialect ("sqlite" or "postgres").
func runMigrations(db *sql.DB, dialect string) error {
	d, err := iofs.New(migrationFiles, "migrations/"+dialect)
	if err != nil {
		return err
	}

	var driver database.Driver
	switch dialect {
	case DriverSQLite:
		// This driver works with modernc.org/sqlite as well
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverPostgres:
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return fmt.Errorf("unknown migration dialect %q", dialect)
	}
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", d, dialect, driver)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
