package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/storm-radar-service/internal/archive2"
	"github.com/couchcryptid/storm-radar-service/internal/colormap"
	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/observability"
)

// Fetcher discovers and downloads scans.
type Fetcher interface {
	PollLatest(ctx context.Context, station string) <-chan domain.ScanMeta
	FetchScan(ctx context.Context, meta domain.ScanMeta) ([]byte, error)
}

// Publisher delivers scan summaries downstream.
type Publisher interface {
	Publish(ctx context.Context, summary domain.ScanSummary) error
}

const maxPublishAttempts = 5

// Pipeline turns newly archived scans of one station into published
// summaries and keeps the latest processed frame.
type Pipeline struct {
	fetcher   Fetcher
	publisher Publisher
	site      domain.RadarSite
	colors    *colormap.ColorTable
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	latest    atomic.Pointer[Frame]

	publishBackoff    time.Duration
	publishMaxBackoff time.Duration
}

// New creates a Pipeline for site. colors maps reflectivity to pixels.
func New(f Fetcher, pub Publisher, site domain.RadarSite, colors *colormap.ColorTable, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:           f,
		publisher:         pub,
		site:              site,
		colors:            colors,
		logger:            logger,
		metrics:           metrics,
		publishBackoff:    200 * time.Millisecond,
		publishMaxBackoff: 5 * time.Second,
	}
}

// CheckReadiness returns nil once a scan has been processed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any scans yet")
	}
	return nil
}

// Latest returns the most recently processed frame, or nil.
func (p *Pipeline) Latest() *Frame {
	return p.latest.Load()
}

// Run polls the station and processes each new scan until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "station", p.site.ID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for meta := range p.fetcher.PollLatest(ctx, p.site.ID) {
		p.handle(ctx, meta)
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

func (p *Pipeline) handle(ctx context.Context, meta domain.ScanMeta) {
	frame, err := p.Process(ctx, meta)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("process scan failed", "scan", meta.FileName(), "error", err)
		}
		return
	}
	p.latest.Store(frame)
	p.ready.Store(true)
	p.publish(ctx, frame.Summary)
}

// Process fetches, decodes, and summarizes one scan. A scan that decodes
// only partially still yields a frame, marked Partial.
func (p *Pipeline) Process(ctx context.Context, meta domain.ScanMeta) (*Frame, error) {
	raw, err := p.fetcher.FetchScan(ctx, meta)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := archive2.Inflate(raw)
	if err != nil {
		p.metrics.DecodeErrors.WithLabelValues("gzip").Inc()
		return nil, fmt.Errorf("inflate %s: %w", meta.FileName(), err)
	}
	vol, decodeErr := archive2.Decode(data)
	p.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
	if decodeErr != nil {
		kind := "unknown"
		var de *archive2.DecodeError
		if errors.As(decodeErr, &de) {
			kind = de.Kind.String()
		}
		p.metrics.DecodeErrors.WithLabelValues(kind).Inc()
		if vol == nil {
			return nil, fmt.Errorf("decode %s: %w", meta.FileName(), decodeErr)
		}
		p.logger.Warn("scan decoded partially", "scan", meta.FileName(),
			"sweeps", len(vol.Sweeps), "error", decodeErr)
	}
	if n := len(vol.Unsupported); n > 0 {
		p.metrics.UnsupportedMessages.Add(float64(n))
	}

	frame := buildFrame(p.site, meta, len(raw), vol, decodeErr, p.colors)
	p.metrics.ScansProcessed.Inc()
	p.logger.Info("scan processed",
		"scan", meta.FileName(),
		"vcp", frame.Summary.VCP,
		"sweeps", len(frame.Summary.Sweeps),
		"partial", frame.Summary.Partial,
	)
	return frame, nil
}

// publish delivers the summary, backing off between failed attempts. The
// summary is dropped after maxPublishAttempts.
func (p *Pipeline) publish(ctx context.Context, summary domain.ScanSummary) {
	backoff := p.publishBackoff
	for attempt := 1; ; attempt++ {
		err := p.publisher.Publish(ctx, summary)
		if err == nil {
			p.metrics.ScansPublished.Inc()
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt == maxPublishAttempts {
			p.logger.Error("publish failed, dropping summary",
				"station", summary.Station, "scan_time", summary.ScanTime, "attempts", attempt, "error", err)
			return
		}
		p.logger.Warn("publish failed", "error", err, "attempt", attempt, "backoff", backoff)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return
		}
		backoff = sharedretry.NextBackoff(backoff, p.publishMaxBackoff)
	}
}

// LogPublisher writes summaries to the log. It stands in for a broker when
// publishing is disabled.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs the summary.
func (l LogPublisher) Publish(_ context.Context, s domain.ScanSummary) error {
	attrs := []any{
		"station", s.Station,
		"scan_time", s.ScanTime,
		"vcp", s.VCP,
		"sweeps", len(s.Sweeps),
		"partial", s.Partial,
	}
	if r := s.Reflectivity; r != nil {
		attrs = append(attrs, "max_dbz", r.MaxDBZ, "coverage", r.Coverage)
	}
	l.Logger.Info("scan summary", attrs...)
	return nil
}
