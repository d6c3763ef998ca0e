package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datallboy/addonsync/internal/domain"
)

func openSQLite(t *testing.T) *PersistentStore {
	t.Helper()
	s, err := NewPersistentStore(filepath.Join(t.TempDir(), "db", "addonsync.db"))
	if err != nil {
		t.Fatalf("NewPersistentStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{DriverSQLite: openSQLite(t)}

	if dsn := os.Getenv("ADDONSYNC_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := NewPostgresStore(context.Background(), dsn)
		if err != nil {
			t.Fatalf("NewPostgresStore: %v", err)
		}
		t.Cleanup(func() {
			pg.pool.Exec(context.Background(), "DELETE FROM smartupdate")
			pg.pool.Exec(context.Background(), "DELETE FROM runs")
			pg.Close()
		})
		stores[DriverPostgres] = pg
	}
	return stores
}

func TestEmptyTableLoadsAsEmptyMap(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			entries, err := s.LoadEntries(context.Background())
			if err != nil {
				t.Fatalf("LoadEntries: %v", err)
			}
			if entries == nil || len(entries) != 0 {
				t.Fatalf("expected empty non-nil map, got %v", entries)
			}
		})
	}
}

func TestReplaceEntriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	changed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			first := map[string]domain.CacheEntry{
				"dbm":     {Addon: "dbm", DownloadURL: "https://example.test/1", FileName: "dbm-1.zip", ChangedAt: changed},
				"details": {Addon: "details", DownloadURL: "https://example.test/2", FileName: "details-2.zip", ChangedAt: changed},
			}
			if err := s.ReplaceEntries(ctx, first); err != nil {
				t.Fatalf("ReplaceEntries: %v", err)
			}

			// The second save drops rows that are no longer present
			second := map[string]domain.CacheEntry{
				"dbm": {Addon: "dbm", DownloadURL: "https://example.test/3", FileName: "dbm-3.zip", ChangedAt: changed.Add(time.Hour)},
			}
			if err := s.ReplaceEntries(ctx, second); err != nil {
				t.Fatalf("ReplaceEntries: %v", err)
			}

			got, err := s.LoadEntries(ctx)
			if err != nil {
				t.Fatalf("LoadEntries: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 entry, got %d: %v", len(got), got)
			}
			e := got["dbm"]
			if e.FileName != "dbm-3.zip" || e.DownloadURL != "https://example.test/3" {
				t.Fatalf("unexpected entry %+v", e)
			}
			if !e.ChangedAt.Equal(changed.Add(time.Hour)) || e.ChangedAt.Location() != time.UTC {
				t.Fatalf("unexpected timestamp %v", e.ChangedAt)
			}
		})
	}
}

func TestReplaceEntriesIsAtomic(t *testing.T) {
	s := openSQLite(t)

	initial := map[string]domain.CacheEntry{
		"dbm": {Addon: "dbm", DownloadURL: "u", FileName: "f.zip", ChangedAt: time.Now().UTC()},
	}
	if err := s.ReplaceEntries(context.Background(), initial); err != nil {
		t.Fatalf("ReplaceEntries: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.ReplaceEntries(ctx, map[string]domain.CacheEntry{}); err == nil {
		t.Fatal("expected canceled save to fail")
	}

	got, err := s.LoadEntries(context.Background())
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("failed save must keep the previous table, got %v", got)
	}
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			pending := domain.RunView{
				ID:        "2A0000000000000000000000001",
				Status:    domain.StatusPending,
				Addons:    []string{"https://example.test/a", "https://example.test/b"},
				CreatedAt: created,
			}
			if err := s.SaveRun(ctx, pending); err != nil {
				t.Fatalf("SaveRun: %v", err)
			}

			done := pending
			done.Status = domain.StatusFailed
			done.Percent = 40
			done.Error = "Cancelled by user"
			done.StartedAt = created.Add(time.Second)
			done.FinishedAt = created.Add(2 * time.Second)
			if err := s.SaveRun(ctx, done); err != nil {
				t.Fatalf("SaveRun update: %v", err)
			}

			later := domain.RunView{ID: "2A0000000000000000000000002", Status: domain.StatusCompleted, Changed: 2, CreatedAt: created.Add(time.Minute)}
			if err := s.SaveRun(ctx, later); err != nil {
				t.Fatalf("SaveRun: %v", err)
			}

			got, err := s.GetRun(ctx, pending.ID)
			if err != nil || got == nil {
				t.Fatalf("GetRun: %v, %v", got, err)
			}
			if got.Status != domain.StatusFailed || got.Error != "Cancelled by user" || got.Percent != 40 {
				t.Fatalf("unexpected run %+v", got)
			}
			if len(got.Addons) != 2 || !got.FinishedAt.Equal(done.FinishedAt) {
				t.Fatalf("unexpected run %+v", got)
			}

			missing, err := s.GetRun(ctx, "nope")
			if err != nil || missing != nil {
				t.Fatalf("expected nil, nil for unknown run, got %v, %v", missing, err)
			}

			runs, err := s.ListRuns(ctx, 10)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(runs) != 2 || runs[0].ID != later.ID {
				t.Fatalf("expected newest run first, got %+v", runs)
			}
			if !runs[0].StartedAt.IsZero() {
				t.Fatalf("unset start time should load as zero, got %v", runs[0].StartedAt)
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
