package store

import (
	"context"
	"fmt"

	"github.com/datallboy/addonsync/internal/domain"
)

// LoadEntries returns the SmartUpdate table keyed by addon name. An empty
// table is an empty map, not an error.
func (s *PersistentStore) LoadEntries(ctx context.Context) (map[string]domain.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT addon, download_url, file_name, changed_at FROM smartupdate")
	if err != nil {
		return nil, fmt.Errorf("failed to load smartupdate table: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]domain.CacheEntry)
	for rows.Next() {
		var dbo cacheEntryDBO
		if err := rows.Scan(&dbo.Addon, &dbo.DownloadURL, &dbo.FileName, &dbo.ChangedAt); err != nil {
			return nil, err
		}

		entry, err := dbo.ToDomain()
		if err != nil {
			return nil, err
		}
		entries[entry.Addon] = entry
	}

	return entries, rows.Err()
}

// ReplaceEntries swaps the whole table in one transaction so a failed save
// leaves the previous table intact.
func (s *PersistentStore) ReplaceEntries(ctx context.Context, entries map[string]domain.CacheEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM smartupdate"); err != nil {
		return fmt.Errorf("failed to clear smartupdate table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO smartupdate (addon, download_url, file_name, changed_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	// Reuse a single DBO instance for efficiency
	var dbo cacheEntryDBO
	for name, e := range entries {
		e.Addon = name
		dbo.FromDomain(e)

		if _, err := stmt.ExecContext(ctx, dbo.Addon, dbo.DownloadURL, dbo.FileName, dbo.ChangedAt); err != nil {
			return fmt.Errorf("failed to save entry %s: %w", name, err)
		}
	}

	return tx.Commit()
}
