package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datallboy/addonsync/internal/domain"
)

// sqlite keeps timestamps as ISO-8601 UTC text
const timeLayout = time.RFC3339Nano

// cacheEntryDBO maps to the smartupdate table
type cacheEntryDBO struct {
	Addon       string `db:"addon"`
	DownloadURL string `db:"download_url"`
	FileName    string `db:"file_name"`
	ChangedAt   string `db:"changed_at"`
}

// Mapper: DBO to Domain CacheEntry
func (c *cacheEntryDBO) ToDomain() (domain.CacheEntry, error) {
	changed, err := time.Parse(timeLayout, c.ChangedAt)
	if err != nil {
		return domain.CacheEntry{}, fmt.Errorf("invalid changed_at for %s: %w", c.Addon, err)
	}
	return domain.CacheEntry{
		Addon:       c.Addon,
		DownloadURL: c.DownloadURL,
		FileName:    c.FileName,
		ChangedAt:   changed.UTC(),
	}, nil
}

// Mapper: Domain CacheEntry to DBO
func (c *cacheEntryDBO) FromDomain(e domain.CacheEntry) {
	c.Addon = e.Addon
	c.DownloadURL = e.DownloadURL
	c.FileName = e.FileName
	c.ChangedAt = e.ChangedAt.UTC().Format(timeLayout)
}

// runDBO maps to the runs table
type runDBO struct {
	ID         string         `db:"id"`
	Status     string         `db:"status"`
	Addons     string         `db:"addons"`
	Percent    int            `db:"percent"`
	Changed    int            `db:"changed"`
	Error      sql.NullString `db:"error"`
	CreatedAt  string         `db:"created_at"`
	StartedAt  sql.NullString `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
}

// Mapper: DBO to Domain RunView
func (r *runDBO) ToDomain() (domain.RunView, error) {
	v := domain.RunView{
		ID:      r.ID,
		Status:  domain.RunStatus(r.Status),
		Percent: r.Percent,
		Changed: r.Changed,
		Error:   r.Error.String,
	}

	if err := json.Unmarshal([]byte(r.Addons), &v.Addons); err != nil {
		return v, fmt.Errorf("failed to decode addons for run %s: %w", r.ID, err)
	}

	var err error
	if v.CreatedAt, err = time.Parse(timeLayout, r.CreatedAt); err != nil {
		return v, fmt.Errorf("invalid created_at for run %s: %w", r.ID, err)
	}
	v.StartedAt = parseNullTime(r.StartedAt)
	v.FinishedAt = parseNullTime(r.FinishedAt)

	return v, nil
}

// Mapper: Domain RunView to DBO
func (r *runDBO) FromDomain(v domain.RunView) error {
	addons, err := json.Marshal(v.Addons)
	if err != nil {
		return fmt.Errorf("failed to encode addons: %w", err)
	}

	r.ID = v.ID
	r.Status = string(v.Status)
	r.Addons = string(addons)
	r.Percent = v.Percent
	r.Changed = v.Changed
	r.Error = sql.NullString{String: v.Error, Valid: v.Error != ""}
	r.CreatedAt = v.CreatedAt.UTC().Format(timeLayout)
	r.StartedAt = formatNullTime(v.StartedAt)
	r.FinishedAt = formatNullTime(v.FinishedAt)
	return nil
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
