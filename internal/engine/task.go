package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/datallboy/addonsync/internal/browser"
	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
	"github.com/datallboy/addonsync/internal/metadata"
	"github.com/datallboy/addonsync/internal/progress"
	"github.com/dustin/go-humanize"
)

// Navigator is the slice of the navigation broker a task drives.
type Navigator interface {
	NavigateAndRunScript(ctx context.Context, url, script string) (string, error)
	NavigateAndStartDownload(ctx context.Context, url string) (browser.Download, error)
	AwaitDownload(ctx context.Context, dl browser.Download, sink func(domain.DownloadProgress)) error
}

// ContentCache is the per-addon view of the SmartUpdate cache.
type ContentCache interface {
	Lookup(name string, id domain.PackageIdentity) bool
	Record(name string, id domain.PackageIdentity, src string) error
	Materialize(name string) (string, error)
	Forget(name string) error
}

type Archives interface {
	Validate(ctx context.Context, archivePath string) error
	Extract(ctx context.Context, archivePath, destDir string) ([]string, error)
}

// AddonTask drives one addon from its page to extracted files.
type AddonTask struct {
	URL  string
	Name string

	nav      Navigator
	cache    ContentCache
	archives Archives
	log      *logger.Logger

	downloadDir string
	unzipDir    string

	// report receives the addon's band value; it only ever grows
	report func(band int)

	mu       sync.Mutex
	state    domain.TaskState
	band     int
	identity domain.PackageIdentity
	changed  bool
	files    int
}

func (t *AddonTask) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Changed reports whether the task went through the download branch.
func (t *AddonTask) Changed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

func (t *AddonTask) Run(ctx context.Context) error {
	t.transition(domain.TaskFetching)

	raw, err := t.nav.NavigateAndRunScript(ctx, t.URL, metadata.Script)
	if err != nil {
		return t.fail(domain.PhaseFetch, err)
	}

	id, err := metadata.Parse(raw)
	if err != nil {
		return t.fail(domain.PhaseParse, err)
	}
	t.mu.Lock()
	t.identity = id
	t.mu.Unlock()
	t.progress(progress.BandFetched)

	archive := filepath.Join(t.downloadDir, id.FileName)

	if t.cache.Lookup(t.Name, id) {
		t.transition(domain.TaskCacheHit)
		t.log.Debug("%s: %s unchanged, using cached archive", t.Name, id.FileName)

		cached, err := t.cache.Materialize(t.Name)
		if err != nil {
			return t.fail(domain.PhaseCache, err)
		}
		if err := copyFile(cached, archive); err != nil {
			return t.fail(domain.PhaseCache, err)
		}
	} else {
		t.transition(domain.TaskDownloading)
		if err := t.download(ctx, id, archive); err != nil {
			return err
		}
	}
	t.progress(progress.BandDownloaded)

	t.transition(domain.TaskExtracting)
	if err := t.archives.Validate(ctx, archive); err != nil {
		if !domain.IsCanceled(err) {
			// Never vouch for an archive that failed validation
			if ferr := t.cache.Forget(t.Name); ferr != nil {
				t.log.Warn("%s: failed to retract cache entry: %v", t.Name, ferr)
			}
		}
		return t.fail(domain.PhaseValidate, err)
	}
	t.progress(progress.BandValidated)

	files, err := t.archives.Extract(ctx, archive, t.unzipDir)
	if err != nil {
		return t.fail(domain.PhaseExtract, err)
	}

	t.mu.Lock()
	t.files = len(files)
	t.mu.Unlock()

	t.progress(progress.BandExtracted)
	t.transition(domain.TaskDone)
	return nil
}

func (t *AddonTask) download(ctx context.Context, id domain.PackageIdentity, archive string) error {
	if id.Size > domain.MaxDownloadBytes {
		return t.fail(domain.PhaseDownload, fmt.Errorf("%w: %s (%s)", domain.ErrDownloadTooLarge, id.FileName, humanize.IBytes(id.Size)))
	}

	dl, err := t.nav.NavigateAndStartDownload(ctx, id.DownloadURL())
	if err != nil {
		return t.fail(domain.PhaseDownload, err)
	}

	err = t.nav.AwaitDownload(ctx, dl, func(p domain.DownloadProgress) {
		t.progress(progress.Download(p.ReceivedBytes, p.TotalBytes))
	})
	if err != nil {
		t.discard(dl)
		return t.fail(domain.PhaseDownload, err)
	}

	if err := moveFile(dl.Path(), archive); err != nil {
		t.discard(dl)
		return t.fail(domain.PhaseDownload, fmt.Errorf("failed to move download: %w", err))
	}

	if err := t.cache.Record(t.Name, id, archive); err != nil {
		return t.fail(domain.PhaseCache, err)
	}

	t.mu.Lock()
	t.changed = true
	t.mu.Unlock()

	t.log.Debug("%s: downloaded %s (%s)", t.Name, id.FileName, humanize.IBytes(id.Size))
	return nil
}

// discard removes what the browser left of a download that will not be used.
func (t *AddonTask) discard(dl browser.Download) {
	if err := os.Remove(dl.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.log.Warn("%s: failed to remove partial download %s: %v", t.Name, dl.Path(), err)
	}
}

func (t *AddonTask) progress(band int) {
	t.mu.Lock()
	if band <= t.band {
		t.mu.Unlock()
		return
	}
	t.band = band
	t.mu.Unlock()

	if t.report != nil {
		t.report(band)
	}
}

func (t *AddonTask) transition(next domain.TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == "" {
		t.state = next
		return
	}
	if !t.state.CanTransition(next) {
		t.log.Warn("%s: unexpected transition %s -> %s", t.Name, t.state, next)
	}
	t.state = next
}

func (t *AddonTask) fail(phase domain.Phase, err error) error {
	t.transition(domain.TaskFailed)
	return &domain.TaskError{Addon: t.Name, Phase: phase, Err: err}
}

// summary is one line for the run's log group.
func (t *AddonTask) summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.state != domain.TaskDone:
		return fmt.Sprintf("%s: %s", t.Name, t.state)
	case t.changed:
		return fmt.Sprintf("%s: updated to %s, %d files", t.Name, t.identity.FileName, t.files)
	default:
		return fmt.Sprintf("%s: unchanged (%s)", t.Name, t.identity.FileName)
	}
}
