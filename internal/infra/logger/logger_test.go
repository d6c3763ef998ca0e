package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"DEBUG": LevelDebug,
		"warn":  LevelWarn,
		"error": LevelError,
		"info":  LevelInfo,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestLoggerWritesFileAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addonsync.log")

	l, err := New(path, LevelInfo, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug("hidden %d", 1)
	l.Info("visible %d", 2)
	l.With("addon", "deadly-boss-mods").Warn("tagged")
	l.Group("Batch summary", "addons: 3", "changed: 1")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)

	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level:\n%s", out)
	}
	for _, want := range []string{"visible 2", "INFO", "tagged", "deadly-boss-mods", "Batch summary", "changed: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output:\n%s", want, out)
		}
	}
}

func TestLoggerWriteTrimsNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "http.log")
	l, err := New(path, LevelDebug, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n, err := l.Write([]byte("GET /api/runs 200\n"))
	if err != nil || n != len("GET /api/runs 200\n") {
		t.Fatalf("Write returned %d, %v", n, err)
	}
	_ = l.Sync()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "GET /api/runs 200") {
		t.Fatalf("expected request line in log, got %q", data)
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Info("nothing %s", "here")
	l.Group("title", "a", "b")
}
