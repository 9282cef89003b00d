package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streampulse/harvester/internal/observability/metrics"
)

const keyAnalyticsBudget = "analytics:budget:%s"

// minWait bounds the polling interval so a cold bucket does not busy-spin.
const minWait = 50 * time.Millisecond

// Budget is the shared request budget for the analytics API. Every fetch
// acquires a token before going out; callers block until one is available.
type Budget struct {
	bucket bucket
}

func NewBudget(b bucket) *Budget {
	return &Budget{bucket: b}
}

// Wait blocks until a token is granted for the account or ctx is done.
func (b *Budget) Wait(ctx context.Context, accountID string) error {
	if b == nil || b.bucket == nil {
		return nil
	}
	key := fmt.Sprintf(keyAnalyticsBudget, strings.TrimSpace(accountID))
	for {
		allowed, retryAfter, err := b.bucket.allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		metrics.Collector().IncBudgetWait()
		if retryAfter < minWait {
			retryAfter = minWait
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
