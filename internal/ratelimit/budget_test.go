package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/streampulse/harvester/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBucketBurstThenRefill(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	b := newLocalBucket(clk, 2, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := b.allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed, "burst token %d", i)
	}

	allowed, retryAfter, err := b.allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 500*time.Millisecond, retryAfter)

	// One second at 2 tokens/s refills two tokens.
	clk.Advance(time.Second)
	for i := 0; i < 2; i++ {
		allowed, _, err := b.allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _, err = b.allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestLocalBucketCapsAtBurst(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	b := newLocalBucket(clk, 10, 2)
	ctx := context.Background()

	// A long idle period must not accumulate more than burst tokens.
	clk.Advance(time.Hour)
	granted := 0
	for i := 0; i < 5; i++ {
		allowed, _, err := b.allow(ctx, "k")
		require.NoError(t, err)
		if allowed {
			granted++
		}
	}
	assert.Equal(t, 2, granted)
}

func TestBudgetWaitBlocksUntilToken(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	budget := NewBudget(newLocalBucket(clk, 1000, 1))
	ctx := context.Background()

	require.NoError(t, budget.Wait(ctx, "acct"))

	// Bucket is empty; refill happens on the fake clock, so advance it from
	// another goroutine while Wait polls.
	done := make(chan error, 1)
	go func() { done <- budget.Wait(ctx, "acct") }()

	time.Sleep(20 * time.Millisecond)
	clk.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after refill")
	}
}

func TestBudgetWaitHonorsContext(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	budget := NewBudget(newLocalBucket(clk, 1, 1))
	ctx := context.Background()

	require.NoError(t, budget.Wait(ctx, "acct"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := budget.Wait(cancelled, "acct")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilBudgetAndLocker(t *testing.T) {
	var budget *Budget
	require.NoError(t, budget.Wait(context.Background(), "acct"))

	var locker *Locker
	token, ok, err := locker.TryLock(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	require.NoError(t, locker.Release(context.Background(), "k", token))
}
