package fetch

import (
	"context"
	"slices"
	"time"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// poller discovers new scans for one station. Each poller owns its
// last-seen timestamp, so stations can be polled independently.
type poller struct {
	svc      *Service
	station  string
	lastSeen time.Time
}

// PollLatest lists the station's scans every poll interval and sends each
// scan newer than any sent before. The first poll sends only the newest
// available scan. The channel is closed once ctx is done.
func (s *Service) PollLatest(ctx context.Context, station string) <-chan domain.ScanMeta {
	out := make(chan domain.ScanMeta)
	p := &poller{svc: s, station: station}
	go p.run(ctx, out)
	return out
}

func (p *poller) run(ctx context.Context, out chan<- domain.ScanMeta) {
	defer close(out)
	ticker := p.svc.clock.NewTicker(p.svc.pollInterval)
	defer ticker.Stop()

	for {
		if !p.poll(ctx, out) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// poll runs one discovery round. It returns false when ctx ended.
func (p *poller) poll(ctx context.Context, out chan<- domain.ScanMeta) bool {
	found, err := p.discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.svc.metrics.PollErrors.Inc()
		p.svc.logger.Warn("poll failed", "station", p.station, "error", err)
	}
	for _, meta := range found {
		select {
		case <-ctx.Done():
			return false
		case out <- meta:
			p.lastSeen = meta.Time
			p.svc.metrics.PollNewScans.Inc()
		}
	}
	return ctx.Err() == nil
}

// discover lists the days from the last seen scan through today and returns
// the unseen scans, oldest first. Before anything has been seen it looks at
// today, falling back to yesterday, and keeps only the newest scan.
func (p *poller) discover(ctx context.Context) ([]domain.ScanMeta, error) {
	today := truncateDay(p.svc.clock.Now())
	first := p.lastSeen.IsZero()

	var days []time.Time
	if first {
		days = []time.Time{today, today.AddDate(0, 0, -1)}
	} else {
		for d := truncateDay(p.lastSeen); !d.After(today); d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	}

	var found []domain.ScanMeta
	for _, day := range days {
		metas, err := p.svc.ListScans(ctx, p.station, day)
		if err != nil {
			return found, err
		}
		for _, m := range metas {
			if m.Time.After(p.lastSeen) {
				found = append(found, m)
			}
		}
		if first && len(found) > 0 {
			break
		}
	}
	slices.SortFunc(found, func(a, b domain.ScanMeta) int { return a.Time.Compare(b.Time) })
	found = slices.CompactFunc(found, func(a, b domain.ScanMeta) bool { return a.Time.Equal(b.Time) && a.Variant == b.Variant })
	if first && len(found) > 1 {
		found = found[len(found)-1:]
	}
	return found, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
