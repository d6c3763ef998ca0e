package extraction

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
	"github.com/klauspost/compress/zip"
)

func writeZip(t *testing.T, path string, files map[string]string, method uint16) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestZipValidateAndExtract(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "DBM-Core.zip")
	writeZip(t, archive, map[string]string{
		"DBM-Core/DBM-Core.toc": "## Interface: 110000",
		"DBM-Core/DBM-Core.lua": "print('dbm')",
		"DBM-StatusBarTimers/x": "bars",
	}, zip.Deflate)

	m := NewManager(logger.Nop())
	if err := m.Validate(context.Background(), archive); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	dest := filepath.Join(dir, "unzip")
	files, err := m.Extract(context.Background(), archive, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %v", files)
	}

	data, err := os.ReadFile(filepath.Join(dest, "DBM-Core", "DBM-Core.lua"))
	if err != nil || string(data) != "print('dbm')" {
		t.Fatalf("unexpected extracted content %q, %v", data, err)
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(logger.Nop())

	good := filepath.Join(dir, "good.zip")
	writeZip(t, good, map[string]string{"a/file.lua": "some stored content"}, zip.Store)
	raw, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}

	flipped := bytes.Clone(raw)
	i := bytes.Index(flipped, []byte("stored"))
	if i < 0 {
		t.Fatal("stored content not found in archive")
	}
	flipped[i] ^= 0xFF

	tests := map[string][]byte{
		"checksum mismatch": flipped,
		"truncated":         raw[:len(raw)/2],
		"not an archive":    []byte("<html>rate limited</html>"),
		"empty file":        nil,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name+".zip")
			if err := os.WriteFile(p, content, 0644); err != nil {
				t.Fatal(err)
			}
			if err := m.Validate(context.Background(), p); !errors.Is(err, domain.ErrArchiveCorrupted) {
				t.Fatalf("expected ErrArchiveCorrupted, got %v", err)
			}
		})
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../evil.lua": "boom"}, zip.Deflate)

	dest := filepath.Join(dir, "unzip")
	_, err := NewManager(logger.Nop()).Extract(context.Background(), archive, dest)
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.lua")); !os.IsNotExist(err) {
		t.Fatal("archive escaped the destination directory")
	}
}

func TestExtractHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "addon.zip")
	writeZip(t, archive, map[string]string{"a.lua": "a"}, zip.Deflate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewManager(logger.Nop()).Extract(ctx, archive, filepath.Join(dir, "out"))
	if !domain.IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestSevenZipDetection(t *testing.T) {
	dir := t.TempDir()
	z := &SevenZip{}

	fake := filepath.Join(dir, "addon.7z")
	if err := os.WriteFile(fake, append(bytes.Clone(sevenZipSignature), 0, 4, 1, 2, 3), 0644); err != nil {
		t.Fatal(err)
	}
	ok, err := z.CanExtract(fake)
	if err != nil || !ok {
		t.Fatalf("expected signature match, got %v, %v", ok, err)
	}

	// A matching signature with a garbage body still fails validation
	if err := NewManager(logger.Nop()).Validate(context.Background(), fake); !errors.Is(err, domain.ErrArchiveCorrupted) {
		t.Fatalf("expected ErrArchiveCorrupted, got %v", err)
	}

	wrong := filepath.Join(dir, "renamed.7z")
	if err := os.WriteFile(wrong, []byte("PK\x03\x04"), 0644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := z.CanExtract(wrong); ok {
		t.Fatal("zip bytes must not be detected as 7z")
	}
	if ok, _ := z.CanExtract(filepath.Join(dir, "addon.zip")); ok {
		t.Fatal("extension mismatch must not be detected as 7z")
	}
}
