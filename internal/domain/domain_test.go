package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsCanceled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "operation", err: fmt.Errorf("%w: %w", ErrOperationCanceled, context.Canceled), want: true},
		{name: "navigation", err: fmt.Errorf("wrap: %w", ErrNavigationCanceled), want: true},
		{name: "download", err: &InterruptedError{Reason: "user_canceled", Err: ErrDownloadCanceled}, want: true},
		{name: "context", err: context.Canceled, want: true},
		{name: "task wrapped", err: &TaskError{Addon: "dbm", Phase: PhaseDownload, Err: ErrDownloadCanceled}, want: true},
		{name: "timeout", err: ErrDownloadTimeout, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range tests {
		if got := IsCanceled(tc.err); got != tc.want {
			t.Errorf("%s: IsCanceled = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTaskErrorKeepsCause(t *testing.T) {
	cause := &InterruptedError{URL: "https://example.test/dl", Reason: "network_timeout", Err: ErrDownloadTimeout}
	err := fmt.Errorf("run failed: %w", &TaskError{Addon: "details", Phase: PhaseDownload, Err: cause})

	var te *TaskError
	if !errors.As(err, &te) {
		t.Fatalf("expected TaskError in chain: %v", err)
	}
	if te.Addon != "details" || te.Phase != PhaseDownload {
		t.Fatalf("unexpected task error %+v", te)
	}

	var ie *InterruptedError
	if !errors.As(err, &ie) || ie.Reason != "network_timeout" {
		t.Fatalf("interrupt reason lost: %v", err)
	}
	if !errors.Is(err, ErrDownloadTimeout) {
		t.Fatalf("expected ErrDownloadTimeout in chain")
	}
}

func TestTaskStateTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskState
		want     bool
	}{
		{TaskFetching, TaskCacheHit, true},
		{TaskFetching, TaskDownloading, true},
		{TaskFetching, TaskExtracting, false},
		{TaskCacheHit, TaskExtracting, true},
		{TaskDownloading, TaskExtracting, true},
		{TaskDownloading, TaskDone, false},
		{TaskExtracting, TaskDone, true},
		{TaskExtracting, TaskFailed, true},
		{TaskFetching, TaskFailed, true},
		{TaskDone, TaskFailed, false},
		{TaskFailed, TaskFetching, false},
	}

	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCacheEntryMatches(t *testing.T) {
	id := PackageIdentity{ProjectID: 3358, FileID: 5512345, FileName: "DBM-Core-10.2.1.zip", Size: 1024}
	entry := CacheEntry{
		Addon:       "deadly-boss-mods",
		DownloadURL: "https://www.curseforge.com/api/v1/mods/3358/files/5512345/download",
		FileName:    "DBM-Core-10.2.1.zip",
		ChangedAt:   time.Now().UTC(),
	}

	if id.DownloadURL() != entry.DownloadURL {
		t.Fatalf("unexpected download url %s", id.DownloadURL())
	}
	if !entry.Matches(id) {
		t.Fatal("expected entry to match identity")
	}

	newer := id
	newer.FileID++
	if entry.Matches(newer) {
		t.Fatal("a different file id must not match")
	}

	renamed := id
	renamed.FileName = "DBM-Core-10.2.2.zip"
	if entry.Matches(renamed) {
		t.Fatal("a different file name must not match")
	}
}

func TestRunView(t *testing.T) {
	r := &Run{ID: "r1", Status: StatusRunning, Addons: []string{"a", "b"}}
	r.Percent.Store(42)

	v := r.View()
	if v.Percent != 42 || v.Status != StatusRunning {
		t.Fatalf("unexpected view %+v", v)
	}

	v.Addons[0] = "changed"
	if r.Addons[0] != "a" {
		t.Fatal("view must not alias the run's addon list")
	}
}
