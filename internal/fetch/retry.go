package fetch

import (
	"context"
	"errors"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// RetryPolicy bounds retries of transient archive failures. Delays start at
// BaseDelay and double up to MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times after 1s, 2s, and 4s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 4 * time.Second}

// Delays lists the wait before each retry.
func (p RetryPolicy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.MaxRetries)
	d := p.BaseDelay
	for range p.MaxRetries {
		out = append(out, d)
		d = sharedretry.NextBackoff(d, p.MaxDelay)
	}
	return out
}

// retry runs fn until it succeeds, fails permanently, or retries run out.
// Permanent failures are returned as is with the attempt count recorded.
// Exhaustion yields a Network error wrapping the last failure.
func (s *Service) retry(ctx context.Context, op, key string, fn func(context.Context) error) error {
	delays := s.policy.Delays()
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return withAttempts(err, attempt)
		}
		if attempt > len(delays) {
			return &domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Attempts: attempt, Err: err}
		}

		delay := delays[attempt-1]
		s.logger.Warn("archive request failed, retrying",
			"op", op, "key", key, "attempt", attempt, "delay", delay, "error", err)
		s.metrics.FetchRetries.Inc()
		if !s.sleep(ctx, delay) {
			return withAttempts(&domain.FetchError{Kind: domain.FetchNetwork, Op: op, Key: key, Err: ctx.Err()}, attempt)
		}
	}
}

// sleep waits on the service clock, returning false if ctx ends first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.Chan():
		return true
	}
}

func withAttempts(err error, attempts int) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		cp := *fe
		cp.Attempts = attempts
		return &cp
	}
	return err
}
