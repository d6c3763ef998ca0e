// Package smartupdate remembers the last package retrieved for each addon so
// unchanged addons are not downloaded again.
package smartupdate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/datallboy/addonsync/internal/cache"
	"github.com/datallboy/addonsync/internal/domain"
	"github.com/datallboy/addonsync/internal/infra/logger"
)

// Store persists the cache table.
type Store interface {
	LoadEntries(ctx context.Context) (map[string]domain.CacheEntry, error)
	ReplaceEntries(ctx context.Context, entries map[string]domain.CacheEntry) error
}

// Cache is safe for concurrent use by the tasks of one run.
type Cache struct {
	store Store
	blobs *cache.FileCache
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	// hits holds the addons whose last Lookup was a confirmed hit
	hits map[string]struct{}
}

func New(store Store, blobDir string, log *logger.Logger) *Cache {
	return &Cache{
		store:   store,
		blobs:   &cache.FileCache{Dir: blobDir},
		log:     log,
		now:     time.Now,
		entries: make(map[string]domain.CacheEntry),
		hits:    make(map[string]struct{}),
	}
}

// Load replaces the in-memory table with the persisted one.
func (c *Cache) Load(ctx context.Context) error {
	entries, err := c.store.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load smartupdate cache: %w", err)
	}
	if entries == nil {
		entries = make(map[string]domain.CacheEntry)
	}

	c.mu.Lock()
	c.entries = entries
	c.hits = make(map[string]struct{})
	c.mu.Unlock()

	c.log.Debug("Loaded %d smartupdate entries", len(entries))
	return nil
}

// Save persists the in-memory table.
func (c *Cache) Save(ctx context.Context) error {
	c.mu.Lock()
	snapshot := make(map[string]domain.CacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if err := c.store.ReplaceEntries(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save smartupdate cache: %w", err)
	}
	return nil
}

// Lookup reports a hit when the recorded package matches id and its archive
// is still present. A missing archive is a miss.
func (c *Cache) Lookup(name string, id domain.PackageIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || !e.Matches(id) {
		delete(c.hits, name)
		return false
	}

	if !c.blobs.Exists(e.FileName) {
		c.log.Debug("Cached archive %s for %s is gone, treating as miss", e.FileName, name)
		delete(c.hits, name)
		return false
	}

	c.hits[name] = struct{}{}
	return true
}

// Record stores src as the archive for name and upserts its entry.
func (c *Cache) Record(name string, id domain.PackageIdentity, src string) error {
	if err := c.blobs.Put(id.FileName, src); err != nil {
		return fmt.Errorf("failed to cache archive for %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[name]; ok && prev.FileName != id.FileName {
		if err := c.blobs.Remove(prev.FileName); err != nil {
			c.log.Warn("Failed to remove stale archive %s: %v", prev.FileName, err)
		}
	}

	c.entries[name] = domain.CacheEntry{
		Addon:       name,
		DownloadURL: id.DownloadURL(),
		FileName:    id.FileName,
		ChangedAt:   c.now().UTC(),
	}
	c.hits[name] = struct{}{}
	return nil
}

// Materialize returns the cached archive path of a confirmed hit.
func (c *Cache) Materialize(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.hits[name]; !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrCacheEntryMissing, name)
	}

	e := c.entries[name]
	if !c.blobs.Exists(e.FileName) {
		return "", fmt.Errorf("%w: %s (archive %s removed)", domain.ErrCacheEntryMissing, name, e.FileName)
	}
	return c.blobs.Path(e.FileName), nil
}

// Forget drops the entry for name along with its archive.
func (c *Cache) Forget(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forget(name)
}

func (c *Cache) forget(name string) error {
	e, ok := c.entries[name]
	delete(c.entries, name)
	delete(c.hits, name)
	if !ok {
		return nil
	}
	return c.blobs.Remove(e.FileName)
}

// Entries returns a snapshot sorted by addon name.
func (c *Cache) Entries() []domain.CacheEntry {
	c.mu.Lock()
	out := make([]domain.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addon < out[j].Addon })
	return out
}

// Prune forgets every addon that is not in keep and returns their names.
func (c *Cache) Prune(keep []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		wanted[k] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for name := range c.entries {
		if _, ok := wanted[name]; ok {
			continue
		}
		if err := c.forget(name); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}

	sort.Strings(removed)
	return removed, nil
}

// Clear drops every entry and archive.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]domain.CacheEntry)
	c.hits = make(map[string]struct{})
	return c.blobs.Clear()
}
