// Package cache stores raw scan bytes on disk with least-recently-used
// eviction under a byte budget.
//
// Each scan is one file at <dir>/<STATION>/<YYYYMMDD>/<STATION><YYYYMMDD>_<HHMMSS>[_<VARIANT>].
// Files are published by writing a temporary file in the same directory and
// renaming it into place, so a reader never sees a partial scan. A SQLite
// index records size and recency so the cache survives restarts.
//
// The entry map, recency list, and byte total are guarded by one mutex that
// is never held across file or index I/O. Writes, evictions, and repairs of
// the same key are serialized by a per-key lock.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/observability"
)

const indexFile = "index.db"

// Options configures a Cache.
type Options struct {
	Dir      string
	MaxBytes int64
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Stats is a point-in-time view of cache occupancy.
type Stats struct {
	Entries  int   `json:"entries"`
	Bytes    int64 `json:"bytes"`
	MaxBytes int64 `json:"max_bytes"`
}

// Cache is a disk-backed LRU scan store. It is safe for concurrent use.
type Cache struct {
	dir      string
	maxBytes int64
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	index    *index
	keys     keyLocks

	mu      sync.Mutex
	entries map[string]*entry
	lru     lruList
	total   int64
	seq     int64
}

// Open creates or reopens the cache in opts.Dir, reconciling the persisted
// index with the files on disk.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	if opts.MaxBytes <= 0 {
		return nil, errors.New("cache size limit must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, cacheErr("open", opts.Dir, err)
	}
	ix, err := openIndex(filepath.Join(opts.Dir, indexFile), opts.Logger)
	if err != nil {
		return nil, cacheErr("open", opts.Dir, err)
	}

	c := &Cache{
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		index:    ix,
		entries:  make(map[string]*entry),
	}
	if err := c.reconcile(ctx); err != nil {
		ix.close()
		return nil, cacheErr("reconcile", opts.Dir, err)
	}
	return c, nil
}

// Close releases the index.
func (c *Cache) Close() error {
	return c.index.close()
}

var (
	stationPattern = regexp.MustCompile(`^[A-Z0-9]{4}$`)
	variantPattern = regexp.MustCompile(`^[A-Za-z0-9]*$`)
)

// relPath returns the file path of a key relative to the cache directory.
// Keys resolve to whole seconds, matching archive file names.
func relPath(key domain.CacheKey) (string, error) {
	if !stationPattern.MatchString(key.Station) {
		return "", fmt.Errorf("invalid station %q", key.Station)
	}
	if !variantPattern.MatchString(key.Variant) {
		return "", fmt.Errorf("invalid variant %q", key.Variant)
	}
	t := key.Time.UTC()
	name := key.Station + t.Format("20060102_150405")
	if key.Variant != "" {
		name += "_" + key.Variant
	}
	return filepath.Join(key.Station, t.Format("20060102"), name), nil
}

func cacheErr(op, key string, err error) error {
	return &domain.FetchError{Kind: domain.FetchCacheIO, Op: "cache " + op, Key: key, Err: err}
}

// Get returns the cached bytes for key and marks it most recently used. A
// missing or damaged file is reported as a miss and the entry is dropped.
func (c *Cache) Get(ctx context.Context, key domain.CacheKey) ([]byte, bool, error) {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	c.lru.moveToFront(e)
	c.seq++
	e.seq = c.seq
	e.lastAccess = c.clock.Now()
	path, size, seq, at := e.path, e.size, e.seq, e.lastAccess
	c.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(c.dir, path))
	switch {
	case errors.Is(err, fs.ErrNotExist), err == nil && int64(len(data)) != size:
		c.logger.Warn("cached scan missing or damaged, dropping entry", "key", id)
		c.discard(id, e)
		c.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	case err != nil:
		return nil, false, cacheErr("read", id, err)
	}

	if err := c.index.touch(ctx, id, at, seq); err != nil {
		c.logger.Warn("cache index touch failed", "key", id, "error", err)
	}
	c.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return data, true, nil
}

// Contains reports whether key is cached without touching its recency.
func (c *Cache) Contains(key domain.CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key.String()]
	return ok
}

// Put stores data under key, evicting least recently used entries until the
// total fits the limit. Data larger than the whole limit is not cached. A
// cancelled context before publication leaves no trace of the write.
func (c *Cache) Put(ctx context.Context, key domain.CacheKey, data []byte) error {
	id := key.String()
	rel, err := relPath(key)
	if err != nil {
		return cacheErr("put", id, err)
	}
	size := int64(len(data))
	if size > c.maxBytes {
		c.logger.Debug("scan exceeds cache limit, not caching", "key", id, "size", size, "limit", c.maxBytes)
		return nil
	}

	unlock := c.keys.lock(id)
	victims, err := c.store(ctx, key, id, rel, data)
	unlock()

	c.removeVictims(victims)
	return err
}

func (c *Cache) store(ctx context.Context, key domain.CacheKey, id, rel string, data []byte) ([]*entry, error) {
	if err := c.writeAtomic(ctx, rel, data); err != nil {
		return nil, cacheErr("write", id, err)
	}

	c.mu.Lock()
	if old, ok := c.entries[id]; ok {
		c.lru.remove(old)
		c.total -= old.size
	}
	c.seq++
	e := &entry{key: key, id: id, path: rel, size: int64(len(data)), lastAccess: c.clock.Now(), seq: c.seq}
	c.entries[id] = e
	c.lru.addToFront(e)
	c.total += e.size
	victims := c.evictLocked(e)
	c.updateGaugesLocked()
	c.mu.Unlock()

	// The file is already published; finish the index even if ctx ends now.
	if err := c.index.upsert(context.WithoutCancel(ctx), rowOf(e)); err != nil {
		return victims, cacheErr("index", id, err)
	}
	return victims, nil
}

// evictLocked unlinks least recently used entries, other than keep, until
// the total fits the limit. The caller removes the victims' files.
func (c *Cache) evictLocked(keep *entry) []*entry {
	var victims []*entry
	for c.total > c.maxBytes && c.lru.tail != nil && c.lru.tail != keep {
		v := c.lru.tail
		c.lru.remove(v)
		delete(c.entries, v.id)
		c.total -= v.size
		victims = append(victims, v)
	}
	return victims
}

func (c *Cache) removeVictims(victims []*entry) {
	for _, v := range victims {
		if c.removeIfAbsent(v, true) {
			c.metrics.CacheEvictions.Inc()
			c.logger.Debug("evicted cached scan", "key", v.id, "size", v.size)
		}
	}
}

// removeIfAbsent deletes the file of an unlinked entry, and its index row
// when dropRow is set, unless the key was stored again in the meantime.
func (c *Cache) removeIfAbsent(v *entry, dropRow bool) bool {
	unlock := c.keys.lock(v.id)
	defer unlock()

	c.mu.Lock()
	_, readded := c.entries[v.id]
	c.mu.Unlock()
	if readded {
		return false
	}
	if err := os.Remove(filepath.Join(c.dir, v.path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("remove cached scan failed", "key", v.id, "error", err)
	}
	if !dropRow {
		return true
	}
	if err := c.index.delete(context.Background(), v.id); err != nil {
		c.logger.Warn("cache index delete failed", "key", v.id, "error", err)
	}
	return true
}

// discard unlinks e if it is still the current entry for id, then removes
// its file and index row.
func (c *Cache) discard(id string, e *entry) {
	c.mu.Lock()
	if c.entries[id] == e {
		c.lru.remove(e)
		delete(c.entries, id)
		c.total -= e.size
		c.updateGaugesLocked()
	}
	c.mu.Unlock()
	c.removeIfAbsent(e, true)
}

// writeAtomic writes data to a temporary file beside its final path, syncs
// it, and renames it into place.
func (c *Cache) writeAtomic(ctx context.Context, rel string, data []byte) (err error) {
	final := filepath.Join(c.dir, rel)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Stats reports current occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Bytes: c.total, MaxBytes: c.maxBytes}
}

// Keys lists cached keys, most recently used first.
func (c *Cache) Keys() []domain.CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]domain.CacheKey, 0, len(c.entries))
	for e := c.lru.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Clear removes every cached scan.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	all := make([]*entry, 0, len(c.entries))
	for e := c.lru.head; e != nil; e = e.next {
		all = append(all, e)
	}
	if err := c.index.deleteAll(ctx); err != nil {
		c.mu.Unlock()
		return cacheErr("clear", "", err)
	}
	c.entries = make(map[string]*entry)
	c.lru = lruList{}
	c.total = 0
	c.updateGaugesLocked()
	c.mu.Unlock()

	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.removeIfAbsent(e, false)
	}
	c.logger.Info("cache cleared", "entries", len(all))
	return nil
}

func (c *Cache) updateGaugesLocked() {
	c.metrics.CacheBytes.Set(float64(c.total))
	c.metrics.CacheEntries.Set(float64(len(c.entries)))
}

func rowOf(e *entry) indexRow {
	return indexRow{key: e.key, path: e.path, size: e.size, lastAccess: e.lastAccess, seq: e.seq}
}

// reconcile loads the index, drops rows whose files are gone or resized,
// deletes leftover temporary and unindexed files, and enforces the limit.
func (c *Cache) reconcile(ctx context.Context) error {
	rows, err := c.index.all(ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	known := make(map[string]bool, len(rows))
	dropped := 0
	for _, r := range rows {
		id := r.key.String()
		rel, err := relPath(r.key)
		if err == nil && rel == r.path {
			if fi, statErr := os.Stat(filepath.Join(c.dir, rel)); statErr == nil && fi.Mode().IsRegular() && fi.Size() == r.size {
				e := &entry{key: r.key, id: id, path: rel, size: r.size, lastAccess: r.lastAccess, seq: r.seq}
				c.entries[id] = e
				c.lru.addToFront(e)
				c.total += e.size
				c.seq = max(c.seq, r.seq)
				known[rel] = true
				continue
			}
		}
		dropped++
		if err := c.index.delete(ctx, id); err != nil {
			return fmt.Errorf("drop stale row %s: %w", id, err)
		}
	}

	removed, err := c.sweepFiles(known)
	if err != nil {
		return err
	}

	c.mu.Lock()
	victims := c.evictLocked(nil)
	c.updateGaugesLocked()
	c.mu.Unlock()
	c.removeVictims(victims)

	c.logger.Info("cache opened",
		"dir", c.dir,
		"entries", len(c.entries),
		"bytes", c.total,
		"limit", c.maxBytes,
		"stale_rows", dropped,
		"stray_files", removed,
	)
	return nil
}

// sweepFiles deletes files under the cache directory that no index row
// references, including temporary files from interrupted writes, and prunes
// empty directories.
func (c *Cache) sweepFiles(known map[string]bool) (int, error) {
	removed := 0
	var dirs []string
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." {
				dirs = append(dirs, path)
			}
			return nil
		}
		if !strings.Contains(rel, string(filepath.Separator)) && strings.HasPrefix(d.Name(), indexFile) {
			return nil
		}
		if known[rel] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep cache directory: %w", err)
	}
	slices.Reverse(dirs)
	for _, d := range dirs {
		_ = os.Remove(d) // fails while non-empty
	}
	return removed, nil
}
