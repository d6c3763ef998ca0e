package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPutCopiesAtomically(t *testing.T) {
	src := filepath.Join(t.TempDir(), "addon.zip")
	if err := os.WriteFile(src, []byte("archive-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	fc := &FileCache{Dir: filepath.Join(t.TempDir(), "blobs")}
	if err := fc.Put("addon.zip", src); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if !fc.Exists("addon.zip") {
		t.Fatal("expected blob to exist")
	}
	data, err := os.ReadFile(fc.Path("addon.zip"))
	if err != nil || string(data) != "archive-bytes" {
		t.Fatalf("unexpected blob content %q, %v", data, err)
	}

	entries, _ := os.ReadDir(fc.Dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}

	// Re-putting the cached file onto itself is a no-op
	if err := fc.Put("addon.zip", fc.Path("addon.zip")); err != nil {
		t.Fatalf("Put onto itself: %v", err)
	}
	if data, _ := os.ReadFile(fc.Path("addon.zip")); string(data) != "archive-bytes" {
		t.Fatalf("self put corrupted blob: %q", data)
	}
}

func TestRemoveAndClear(t *testing.T) {
	fc := &FileCache{Dir: t.TempDir()}
	for _, name := range []string{"a.zip", "b.zip"} {
		if err := os.WriteFile(fc.Path(name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := fc.Remove("a.zip"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := fc.Remove("a.zip"); err != nil {
		t.Fatalf("Remove of missing blob should succeed: %v", err)
	}
	if fc.Exists("a.zip") || !fc.Exists("b.zip") {
		t.Fatal("unexpected blob set after Remove")
	}

	if err := fc.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if fc.Exists("b.zip") {
		t.Fatal("Clear left blobs behind")
	}
	if _, err := os.Stat(fc.Dir); err != nil {
		t.Fatalf("Clear removed the directory: %v", err)
	}
}
