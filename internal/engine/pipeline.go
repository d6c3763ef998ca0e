package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
	"github.com/datallboy/addonsync/internal/metadata"
	"github.com/datallboy/addonsync/internal/progress"
	"golang.org/x/sync/errgroup"
)

// ErrNoAddons is returned by Run for an empty addon list.
var ErrNoAddons = errors.New("no addons to sync")

// Cache is the SmartUpdate cache as the pipeline uses it.
type Cache interface {
	ContentCache
	Load(ctx context.Context) error
	Save(ctx context.Context) error
}

type Options struct {
	DownloadDir string
	UnzipDir    string
	TargetDir   string
	// DurabilityMargin is waited before the extracted tree replaces the
	// target; cancellation is honoured only during this wait.
	DurabilityMargin time.Duration
}

// Pipeline runs every addon of a batch against one navigator.
type Pipeline struct {
	nav      Navigator
	cache    Cache
	archives Archives
	opts     Options
	log      *logger.Logger
}

func NewPipeline(nav Navigator, cache Cache, archives Archives, log *logger.Logger, opts Options) *Pipeline {
	return &Pipeline{
		nav:      nav,
		cache:    cache,
		archives: archives,
		opts:     opts,
		log:      log,
	}
}

type bandUpdate struct {
	index int
	band  int
}

// Run syncs urls into the target directory and returns how many addons were
// downloaded. Either the whole run is applied or nothing is: on failure the
// cache is not saved and the target directory is left alone.
func (p *Pipeline) Run(ctx context.Context, urls []string, sink func(percent int)) (int, error) {
	if len(urls) == 0 {
		return 0, ErrNoAddons
	}
	if sink == nil {
		sink = func(int) {}
	}

	names, err := addonNames(urls)
	if err != nil {
		return 0, err
	}

	if err := clearDir(p.opts.DownloadDir); err != nil {
		return 0, err
	}
	if err := clearDir(p.opts.UnzipDir); err != nil {
		return 0, err
	}

	if err := p.cache.Load(ctx); err != nil {
		return 0, err
	}

	updates := make(chan bandUpdate, len(urls)*4)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		aggregate(updates, len(urls), sink)
	}()

	tasks := make([]*AddonTask, len(urls))
	g, gctx := errgroup.WithContext(ctx)

	for i, url := range urls {
		task := &AddonTask{
			URL:         url,
			Name:        names[i],
			nav:         p.nav,
			cache:       p.cache,
			archives:    p.archives,
			log:         p.log.With("addon", names[i]),
			downloadDir: p.opts.DownloadDir,
			unzipDir:    p.opts.UnzipDir,
			report: func(band int) {
				updates <- bandUpdate{index: i, band: band}
			},
		}
		tasks[i] = task

		g.Go(func() error {
			return task.Run(gctx)
		})
	}

	runErr := g.Wait()
	close(updates)
	<-aggregated

	summary := make([]string, 0, len(tasks))
	changed := 0
	for _, t := range tasks {
		summary = append(summary, t.summary())
		if t.Changed() {
			changed++
		}
	}
	p.log.Group(fmt.Sprintf("Sync of %d addons finished", len(tasks)), summary...)

	if runErr != nil {
		return 0, runErr
	}

	// The cache is committed only once the new tree is in place
	if err := p.apply(ctx, p.cache.Save); err != nil {
		return 0, err
	}

	return changed, nil
}

// apply swaps the extracted tree in for the target directory and then runs
// commit. The tree is staged in a sibling of the target first; the old
// contents are kept aside until commit succeeds and restored otherwise.
// Cancellation is honoured only until the target is touched.
func (p *Pipeline) apply(ctx context.Context, commit func(context.Context) error) error {
	if p.opts.DurabilityMargin > 0 {
		select {
		case <-time.After(p.opts.DurabilityMargin):
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrOperationCanceled, context.Cause(ctx))
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrOperationCanceled, context.Cause(ctx))
	}

	target := filepath.Clean(p.opts.TargetDir)
	staging := target + ".addonsync-new"
	backup := target + ".addonsync-old"

	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging dir %s: %w", staging, err)
	}
	if err := moveContents(p.opts.UnzipDir, staging); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("failed to stage addons in %s: %w", staging, err)
	}
	if err := os.RemoveAll(backup); err != nil {
		os.RemoveAll(staging)
		return fmt.Errorf("failed to clear backup dir %s: %w", backup, err)
	}

	hadTarget := true
	if err := renameDir(target, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			os.RemoveAll(staging)
			return fmt.Errorf("failed to set aside %s: %w", target, err)
		}
		hadTarget = false
	}

	restore := func() {
		os.RemoveAll(target)
		if hadTarget {
			if err := renameDir(backup, target); err != nil {
				p.log.Error("Failed to restore %s from %s: %v", target, backup, err)
			}
		}
	}

	if err := renameDir(staging, target); err != nil {
		restore()
		os.RemoveAll(staging)
		return fmt.Errorf("failed to install addons into %s: %w", target, err)
	}

	// Past this point the run is finishing; a late cancel must not strand it
	if err := commit(context.WithoutCancel(ctx)); err != nil {
		restore()
		return err
	}

	if err := os.RemoveAll(backup); err != nil {
		p.log.Warn("Failed to remove previous addons at %s: %v", backup, err)
	}
	return nil
}

// aggregate owns the per-addon band values and emits the overall percentage
// whenever it grows.
func aggregate(updates <-chan bandUpdate, addons int, sink func(int)) {
	bands := make([]int, addons)
	sum := 0
	last := 0
	sink(0)

	for u := range updates {
		if u.band <= bands[u.index] {
			continue
		}
		sum += u.band - bands[u.index]
		bands[u.index] = u.band

		if pct := progress.Aggregate(sum, addons); pct > last {
			last = pct
			sink(pct)
		}
	}
}

// addonNames derives the cache keys and rejects duplicates, which would
// collide on file names in the shared directories.
func addonNames(urls []string) ([]string, error) {
	names := make([]string, len(urls))
	seen := make(map[string]string, len(urls))

	for i, url := range urls {
		name, err := metadata.AddonName(url)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: duplicate addon %q (%s and %s)", domain.ErrInvalidAddon, name, prev, url)
		}
		seen[name] = url
		names[i] = name
	}
	return names, nil
}
