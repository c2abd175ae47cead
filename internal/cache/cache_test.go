package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/observability"
)

var base = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func testOptions(dir string, maxBytes int64) Options {
	return Options{
		Dir:      dir,
		MaxBytes: maxBytes,
		Clock:    clockwork.NewFakeClockAt(base),
		Metrics:  observability.NewMetricsForTesting(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func openTest(t *testing.T, dir string, maxBytes int64) *Cache {
	t.Helper()
	c, err := Open(context.Background(), testOptions(dir, maxBytes))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func key(minute int) domain.CacheKey {
	return domain.CacheKey{Station: "KTLX", Time: base.Add(time.Duration(minute) * time.Minute), Variant: "V06"}
}

func blob(n int, b byte) []byte { return bytes.Repeat([]byte{b}, n) }

func TestCache_PutGet(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir, 1000)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, key(0))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	data, ok, err := c.Get(ctx, key(0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blob(100, 'a'), data)

	_, err = os.Stat(filepath.Join(dir, "KTLX", "20240315", "KTLX20240315_120000_V06"))
	assert.NoError(t, err)
	assert.Equal(t, Stats{Entries: 1, Bytes: 100, MaxBytes: 1000}, c.Stats())

	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, float64(100), testutil.ToFloat64(c.metrics.CacheBytes))
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir, 300)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(ctx, key(i), blob(100, byte('a'+i))))
	}
	// Touch the oldest so the second entry becomes the eviction candidate.
	_, ok, err := c.Get(ctx, key(0))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, key(3), blob(100, 'd')))

	assert.True(t, c.Contains(key(0)))
	assert.False(t, c.Contains(key(1)))
	assert.True(t, c.Contains(key(2)))
	assert.True(t, c.Contains(key(3)))
	assert.Equal(t, []domain.CacheKey{key(3), key(0), key(2)}, c.Keys())

	st := c.Stats()
	assert.LessOrEqual(t, st.Bytes, st.MaxBytes)
	assert.Equal(t, int64(300), st.Bytes)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.CacheEvictions))

	_, err = os.Stat(filepath.Join(dir, "KTLX", "20240315", "KTLX20240315_120100_V06"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCache_EvictsSeveralToFitLargeInsert(t *testing.T) {
	c := openTest(t, t.TempDir(), 300)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(ctx, key(i), blob(100, 'x')))
	}
	require.NoError(t, c.Put(ctx, key(9), blob(250, 'y')))

	assert.Equal(t, []domain.CacheKey{key(9)}, c.Keys())
	assert.Equal(t, int64(250), c.Stats().Bytes)
}

func TestCache_OversizedScanIsNotCached(t *testing.T) {
	c := openTest(t, t.TempDir(), 300)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	require.NoError(t, c.Put(ctx, key(1), blob(301, 'b')))

	assert.False(t, c.Contains(key(1)))
	assert.True(t, c.Contains(key(0)))
	assert.Equal(t, int64(100), c.Stats().Bytes)
}

func TestCache_ReplaceCountsSizeOnce(t *testing.T) {
	c := openTest(t, t.TempDir(), 1000)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	require.NoError(t, c.Put(ctx, key(0), blob(40, 'b')))

	assert.Equal(t, Stats{Entries: 1, Bytes: 40, MaxBytes: 1000}, c.Stats())
	data, ok, err := c.Get(ctx, key(0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blob(40, 'b'), data)
}

func TestCache_DistinctKeysDoNotCollide(t *testing.T) {
	c := openTest(t, t.TempDir(), 1000)
	ctx := context.Background()

	keys := []domain.CacheKey{
		{Station: "KTLX", Time: base, Variant: "V06"},
		{Station: "KTLX", Time: base},
		{Station: "KINX", Time: base, Variant: "V06"},
		{Station: "KTLX", Time: base.Add(24 * time.Hour), Variant: "V06"},
	}
	for i, k := range keys {
		require.NoError(t, c.Put(ctx, k, blob(10, byte('a'+i))))
	}
	for i, k := range keys {
		data, ok, err := c.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, k.String())
		assert.Equal(t, blob(10, byte('a'+i)), data)
	}
}

func TestCache_RejectsUnsafeKeys(t *testing.T) {
	c := openTest(t, t.TempDir(), 1000)
	err := c.Put(context.Background(), domain.CacheKey{Station: "../x", Time: base}, blob(1, 'a'))
	assert.ErrorIs(t, err, domain.ErrCacheIO)
}

func TestCache_CancelledPutLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Put(ctx, key(0), blob(100, 'a'))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.False(t, c.Contains(key(0)))
	entries, err := os.ReadDir(filepath.Join(dir, "KTLX", "20240315"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCache_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(ctx, testOptions(dir, 300))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(ctx, key(i), blob(100, byte('a'+i))))
	}
	_, _, err = c.Get(ctx, key(0))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c = openTest(t, dir, 300)
	assert.Equal(t, Stats{Entries: 3, Bytes: 300, MaxBytes: 300}, c.Stats())
	assert.Equal(t, []domain.CacheKey{key(0), key(2), key(1)}, c.Keys())

	data, ok, err := c.Get(ctx, key(2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, blob(100, 'c'), data)

	// Recency survived the restart: key(1) is evicted first.
	require.NoError(t, c.Put(ctx, key(3), blob(100, 'd')))
	assert.False(t, c.Contains(key(1)))
}

func TestCache_ReconcileRepairsDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(ctx, testOptions(dir, 1000))
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	require.NoError(t, c.Put(ctx, key(1), blob(100, 'b')))
	require.NoError(t, c.Close())

	day := filepath.Join(dir, "KTLX", "20240315")
	require.NoError(t, os.Remove(filepath.Join(day, "KTLX20240315_120000_V06")))
	require.NoError(t, os.WriteFile(filepath.Join(day, ".abandoned.tmp"), blob(5, 'z'), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "KINX", "20240101"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "KINX", "20240101", "KINX20240101_000000_V06"), blob(5, 'z'), 0o644))

	c = openTest(t, dir, 1000)
	assert.Equal(t, []domain.CacheKey{key(1)}, c.Keys())
	assert.Equal(t, int64(100), c.Stats().Bytes)

	_, err = os.Stat(filepath.Join(day, ".abandoned.tmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, "KINX"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCache_ReopenWithSmallerLimitEvicts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(ctx, testOptions(dir, 1000))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Put(ctx, key(i), blob(100, 'a')))
	}
	require.NoError(t, c.Close())

	c = openTest(t, dir, 250)
	assert.Equal(t, []domain.CacheKey{key(3), key(2)}, c.Keys())
	assert.LessOrEqual(t, c.Stats().Bytes, int64(250))
}

func TestCache_MissingFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir, 1000)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	require.NoError(t, os.Remove(filepath.Join(dir, "KTLX", "20240315", "KTLX20240315_120000_V06")))

	_, ok, err := c.Get(ctx, key(0))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, c.Contains(key(0)))
	assert.Zero(t, c.Stats().Bytes)
}

func TestCache_Clear(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir, 1000)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	require.NoError(t, c.Put(ctx, key(1), blob(100, 'b')))
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, Stats{MaxBytes: 1000}, c.Stats())
	entries, err := os.ReadDir(filepath.Join(dir, "KTLX", "20240315"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	rows, err := c.index.all(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, c.Put(ctx, key(2), blob(100, 'c')))
	rows, err = c.index.all(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, key(2).String(), rows[0].key.String())
}

func TestCache_OpenLogsSummaryOnce(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(ctx, testOptions(dir, 1000))
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, key(0), blob(100, 'a')))
	require.NoError(t, c.Put(ctx, key(1), blob(100, 'b')))
	require.NoError(t, c.Close())

	var buf bytes.Buffer
	opts := testOptions(dir, 1000)
	opts.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	reopened, err := Open(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	var summaries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == "cache opened" {
			summaries = append(summaries, rec)
		}
	}
	require.Len(t, summaries, 1)
	assert.EqualValues(t, 2, summaries[0]["entries"])
	assert.EqualValues(t, 200, summaries[0]["bytes"])
}

func TestCache_ConcurrentPutsStayWithinLimit(t *testing.T) {
	c := openTest(t, t.TempDir(), 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Put(ctx, key(i%25), blob(90, byte(i))))
			_, _, err := c.Get(ctx, key((i+7)%25))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := c.Stats()
	assert.LessOrEqual(t, st.Bytes, st.MaxBytes)
	assert.Equal(t, int64(st.Entries)*90, st.Bytes)

	var onDisk int64
	for _, k := range c.Keys() {
		rel, err := relPath(k)
		require.NoError(t, err)
		fi, err := os.Stat(filepath.Join(c.dir, rel))
		require.NoError(t, err, fmt.Sprintf("file for %s", k))
		onDisk += fi.Size()
	}
	assert.Equal(t, st.Bytes, onDisk)
}
