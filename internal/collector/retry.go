package collector

import (
	"context"
	"math/rand"
	"time"

	"github.com/streampulse/harvester/internal/analytics"
	"github.com/streampulse/harvester/internal/observability/metrics"
)

// RetryPolicy bounds repeated attempts against the analytics API. Delays
// double per attempt from BaseDelay up to MaxDelay, with jitter added to keep
// concurrent workers from retrying in lockstep.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter returns a random extra delay up to d. Overridable in tests.
	Jitter func(d time.Duration) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Minute,
		Jitter: func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(d)))
		},
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.Jitter == nil {
		p.Jitter = defaults.Jitter
	}
	return p
}

// delay computes the wait before attempt n (1-based). A server-provided
// Retry-After hint overrides the exponential schedule when it is longer.
func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	backoff := p.BaseDelay << (attempt - 1)
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	if hint, ok := analytics.RetryAfterHint(err); ok && hint > backoff {
		backoff = hint
	}
	return backoff + p.Jitter(p.BaseDelay)
}

// sleeper waits for d or until ctx is done. Injectable so retry tests run
// without real delays.
type sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs fn under the policy. Transient failures are retried until the
// attempt budget is spent; permanent failures and context cancellation return
// immediately.
func retry(ctx context.Context, policy RetryPolicy, sleep sleeper, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			metrics.Collector().IncFetchAttempt(metrics.FetchResultOK)
			return nil
		}
		if !analytics.IsTransient(lastErr) {
			metrics.Collector().IncFetchAttempt(metrics.FetchResultPermanent)
			return lastErr
		}
		metrics.Collector().IncFetchAttempt(metrics.FetchResultTransient)

		if attempt == policy.MaxAttempts {
			break
		}
		metrics.Collector().IncFetchRetry()
		if err := sleep(ctx, policy.delay(attempt, lastErr)); err != nil {
			return err
		}
	}
	return lastErr
}
