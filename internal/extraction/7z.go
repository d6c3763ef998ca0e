package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// 7z file signature (magic bytes)
var sevenZipSignature = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}

// SevenZip handles the occasional addon shipped as .7z.
type SevenZip struct{}

// Name returns the extractor name
func (z *SevenZip) Name() string {
	return "7-Zip"
}

// CanExtract checks if the file is a 7z archive
func (z *SevenZip) CanExtract(filePath string) (bool, error) {
	lower := strings.ToLower(filepath.Base(filePath))

	// Extension check
	if !strings.HasSuffix(lower, ".7z") {
		return false, nil
	}

	// Verify 7z signature
	return hasSignature(filePath, sevenZipSignature)
}

func (z *SevenZip) Validate(ctx context.Context, archivePath string) error {
	r, err := sevenzip.OpenReader(archivePath)
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

// Extract extracts the 7z archive to the destination directory
func (z *SevenZip) Extract(ctx context.Context, archivePath string, destDir string) ([]string, error) {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries := make([]entry, 0, len(r.File))
	for _, f := range r.File {
		info := f.FileInfo()
		entries = append(entries, entry{
			name:  f.Name,
			mode:  info.Mode(),
			isDir: info.IsDir(),
			size:  uint64(info.Size()),
			open:  f.Open,
		})
	}

	return writeEntries(ctx, destDir, entries)
}
