package collector

import (
	"context"

	"github.com/streampulse/harvester/internal/analytics"
	"github.com/streampulse/harvester/internal/ratelimit"
)

// Executor fetches exactly one window, acquiring a token from the shared API
// budget before every attempt and retrying transient failures under the
// policy. It holds no state across calls.
type Executor struct {
	fetcher analytics.Fetcher
	budget  *ratelimit.Budget
	policy  RetryPolicy
	sleep   sleeper
}

func NewExecutor(fetcher analytics.Fetcher, budget *ratelimit.Budget, policy RetryPolicy) *Executor {
	return &Executor{
		fetcher: fetcher,
		budget:  budget,
		policy:  policy.withDefaults(),
		sleep:   sleepContext,
	}
}

func (e *Executor) FetchWindow(ctx context.Context, accountID, videoID string, w Window) ([]analytics.DailyRecord, error) {
	var records []analytics.DailyRecord
	err := retry(ctx, e.policy, e.sleep, func() error {
		if err := e.budget.Wait(ctx, accountID); err != nil {
			return err
		}
		fetched, err := e.fetcher.FetchDaily(ctx, accountID, videoID, w.Start, w.End)
		if err != nil {
			return err
		}
		records = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchLastViewed runs the account-wide last-viewed sweep under the same
// budget and retry policy as window fetches.
func (e *Executor) FetchLastViewed(ctx context.Context, accountID string, w Window) ([]analytics.LastView, error) {
	var views []analytics.LastView
	err := retry(ctx, e.policy, e.sleep, func() error {
		if err := e.budget.Wait(ctx, accountID); err != nil {
			return err
		}
		fetched, err := e.fetcher.FetchLastViewed(ctx, accountID, w.Start, w.End)
		if err != nil {
			return err
		}
		views = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}
