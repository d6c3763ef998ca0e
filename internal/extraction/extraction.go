// Package extraction validates and unpacks addon archives.
package extraction

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
	"github.com/dustin/go-humanize"
)

// Extractor defines the behavior for validating and extracting archives
type Extractor interface {
	// Extract extracts the archive at the given path to the destination directory.
	// Returns the list of extracted file paths, or an error if extraction fails.
	Extract(ctx context.Context, archivePath string, destDir string) ([]string, error)

	// Validate reads every entry and checks its checksum.
	Validate(ctx context.Context, archivePath string) error

	// CanExtract checks if this extractor can handle the given file.
	CanExtract(filename string) (bool, error)

	// Returns the human-readable name of this extractor (e.g. "ZIP", "7-Zip")
	Name() string
}

// Manager picks the extractor for a file and maps failures onto the domain
// errors.
type Manager struct {
	extractors []Extractor
	log        *logger.Logger
}

func NewManager(log *logger.Logger, extractors ...Extractor) *Manager {
	if len(extractors) == 0 {
		extractors = []Extractor{&Zip{}, &SevenZip{}}
	}
	return &Manager{extractors: extractors, log: log}
}

func (m *Manager) find(archivePath string) (Extractor, error) {
	for _, e := range m.extractors {
		ok, err := e.CanExtract(archivePath)
		if err != nil {
			return nil, err
		}
		if ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unsupported archive %s", filepath.Base(archivePath))
}

// Validate fails with domain.ErrArchiveCorrupted for anything that is not a
// readable archive.
func (m *Manager) Validate(ctx context.Context, archivePath string) error {
	e, err := m.find(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrArchiveCorrupted, err)
	}

	if err := e.Validate(ctx, archivePath); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrOperationCanceled, context.Cause(ctx))
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrArchiveCorrupted, filepath.Base(archivePath), err)
	}
	return nil
}

// Extract unpacks archivePath into destDir.
func (m *Manager) Extract(ctx context.Context, archivePath, destDir string) ([]string, error) {
	e, err := m.find(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	files, err := e.Extract(ctx, archivePath, destDir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrOperationCanceled, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtractionFailed, filepath.Base(archivePath), err)
	}

	m.log.Debug("%s: extracted %d files from %s", e.Name(), len(files), filepath.Base(archivePath))
	return files, nil
}

// entry is the common view of one archive member.
type entry struct {
	name  string
	mode  os.FileMode
	isDir bool
	size  uint64
	open  func() (io.ReadCloser, error)
}

// writeEntries materializes members under destDir, refusing names that
// would escape it.
func writeEntries(ctx context.Context, destDir string, entries []entry) ([]string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	var finalPaths []string
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return finalPaths, ctx.Err()
		default:
		}

		if !filepath.IsLocal(filepath.FromSlash(e.name)) {
			return finalPaths, fmt.Errorf("illegal path in archive: %s", e.name)
		}
		target := filepath.Join(destDir, filepath.FromSlash(e.name))

		if e.isDir {
			if err := os.MkdirAll(target, 0755); err != nil {
				return finalPaths, err
			}
			continue
		}

		if err := writeEntry(target, e); err != nil {
			return finalPaths, fmt.Errorf("failed to extract %s (%s): %w", e.name, humanize.IBytes(e.size), err)
		}
		finalPaths = append(finalPaths, target)
	}

	return finalPaths, nil
}

func writeEntry(target string, e entry) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := e.open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := e.mode.Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// drain reads a member to the end so its checksum is verified.
func drain(ctx context.Context, open func() (io.ReadCloser, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(io.Discard, rc)
	return err
}
