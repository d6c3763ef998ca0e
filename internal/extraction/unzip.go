package extraction

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ZIP file signatures (magic bytes)
var zipSignatures = [][]byte{
	{0x50, 0x4B, 0x03, 0x04}, // Standard ZIP
	{0x50, 0x4B, 0x05, 0x06}, // Empty ZIP
	{0x50, 0x4B, 0x07, 0x08}, // Spanned ZIP
}

// Zip reads archives in-process.
type Zip struct{}

// Name returns the extractor name
func (z *Zip) Name() string {
	return "ZIP"
}

// CanExtract checks if the file is a ZIP archive
func (z *Zip) CanExtract(filePath string) (bool, error) {
	lower := strings.ToLower(filepath.Base(filePath))

	// Extension check
	if !strings.HasSuffix(lower, ".zip") {
		return false, nil
	}

	// Verify ZIP signature
	return hasSignature(filePath, zipSignatures...)
}

func (z *Zip) Validate(ctx context.Context, archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := drain(ctx, f.Open); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

// Extract extracts the ZIP archive to the destination directory
func (z *Zip) Extract(ctx context.Context, archivePath string, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries := make([]entry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, entry{
			name:  f.Name,
			mode:  f.Mode(),
			isDir: f.FileInfo().IsDir(),
			size:  f.UncompressedSize64,
			open:  f.Open,
		})
	}

	return writeEntries(ctx, destDir, entries)
}

// hasSignature checks the magic bytes at the start of the file
func hasSignature(filePath string, signatures ...[]byte) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	longest := 0
	for _, sig := range signatures {
		longest = max(longest, len(sig))
	}

	header := make([]byte, longest)
	n, _ := file.Read(header)

	for _, sig := range signatures {
		if n >= len(sig) && bytes.Equal(header[:len(sig)], sig) {
			return true, nil
		}
	}

	return false, nil
}
