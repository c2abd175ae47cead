// Package fetch lists and downloads scans from the remote archive, serving
// repeat requests from the local cache.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/observability"
)

// Archive is the remote scan store.
type Archive interface {
	ListScans(ctx context.Context, station string, day time.Time) ([]domain.ScanMeta, error)
	Download(ctx context.Context, meta domain.ScanMeta) ([]byte, error)
}

// Store is the local scan cache.
type Store interface {
	Get(ctx context.Context, key domain.CacheKey) ([]byte, bool, error)
	Put(ctx context.Context, key domain.CacheKey, data []byte) error
}

// Options configures a Service. Zero values take the defaults.
type Options struct {
	Retry         RetryPolicy
	MaxConcurrent int
	PollInterval  time.Duration
	Clock         clockwork.Clock
}

// Service fetches scans cache-first with retry and in-flight deduplication.
// It is safe for concurrent use.
type Service struct {
	archive      Archive
	store        Store
	policy       RetryPolicy
	pollInterval time.Duration
	maxParallel  int
	budget       *semaphore.Weighted
	clock        clockwork.Clock
	metrics      *observability.Metrics
	logger       *slog.Logger
	flights      flights
}

// New creates a Service over an archive and a cache.
func New(archive Archive, store Store, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Service{
		archive:      archive,
		store:        store,
		policy:       opts.Retry,
		pollInterval: opts.PollInterval,
		maxParallel:  opts.MaxConcurrent,
		budget:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		clock:        opts.Clock,
		metrics:      metrics,
		logger:       logger,
	}
}

// ListScans returns the scans archived for station on the UTC day of date,
// oldest first.
func (s *Service) ListScans(ctx context.Context, station string, date time.Time) ([]domain.ScanMeta, error) {
	var metas []domain.ScanMeta
	err := s.retry(ctx, "list", domain.ScanPrefix(station, date), func(ctx context.Context) error {
		var err error
		metas, err = s.archive.ListScans(ctx, station, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return metas, nil
}

// FetchScan returns the raw bytes of a scan. Cached scans are returned
// without a network request. Concurrent calls for the same scan share one
// download. The returned slice may be shared with other callers and must
// not be modified.
func (s *Service) FetchScan(ctx context.Context, meta domain.ScanMeta) ([]byte, error) {
	key := meta.Key()
	data, ok, err := s.store.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("cache read failed, fetching from archive", "key", key.String(), "error", err)
	case ok:
		return data, nil
	}

	data, joined, err := s.flights.do(ctx, key.String(), func(ctx context.Context) ([]byte, error) {
		return s.download(ctx, meta)
	})
	if joined {
		s.metrics.InflightJoins.Inc()
	}
	if err != nil {
		if !errors.As(err, new(*domain.FetchError)) {
			kind := domain.FetchNetwork
			if errors.Is(err, context.DeadlineExceeded) {
				kind = domain.FetchTimeout
			}
			err = &domain.FetchError{Kind: kind, Op: "fetch", Key: key.String(), Err: err}
		}
		return nil, err
	}
	return data, nil
}

// download runs the retried network transfer and stores the result. A
// failed store is logged and the bytes are still returned.
func (s *Service) download(ctx context.Context, meta domain.ScanMeta) ([]byte, error) {
	key := meta.Key()
	var data []byte
	err := s.retry(ctx, "download", key.String(), func(ctx context.Context) error {
		if err := s.budget.Acquire(ctx, 1); err != nil {
			return &domain.FetchError{Kind: domain.FetchNetwork, Op: "download", Key: key.String(), Err: err}
		}
		defer s.budget.Release(1)
		var err error
		data, err = s.archive.Download(ctx, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, key, data); err != nil {
		s.logger.Warn("scan served live, not cached", "key", key.String(), "error", err)
	}
	return data, nil
}

// Prefetch warms the cache for metas in the order given, with at most the
// configured number of downloads running at once. Every scan is attempted;
// the failures are joined into the returned error.
func (s *Service) Prefetch(ctx context.Context, metas []domain.ScanMeta) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.maxParallel)
	for _, meta := range metas {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.FetchScan(ctx, meta); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
