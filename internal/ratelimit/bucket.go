package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/streampulse/harvester/internal/clock"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  local refill = (delta / 1000) * rate
  tokens = math.min(burst, tokens + refill)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

// bucket grants tokens at a steady rate up to a burst capacity.
type bucket interface {
	allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type redisBucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
}

func newRedisBucket(client *redis.Client, rate float64, burst int) *redisBucket {
	return &redisBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		rate:   rate,
		burst:  burst,
	}
}

func (b *redisBucket) allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl := bucketTTL(b.rate, b.burst)
	res, err := b.script.Run(ctx, b.client, []string{key}, b.rate, b.burst, int64(ttl/time.Millisecond)).Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) < 2 {
		return false, 0, errors.New("invalid token bucket script response")
	}

	allowed := castToInt(res[0]) == 1
	if allowed {
		return true, 0, nil
	}
	return false, refillDelay(castToFloat(res[1]), b.rate), nil
}

// localBucket is the in-process fallback when no redis address is configured.
// It serializes a single harvester instance against the API budget; multiple
// instances need redis to share the budget.
type localBucket struct {
	clock clock.Clock
	rate  float64
	burst int

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func newLocalBucket(clk clock.Clock, rate float64, burst int) *localBucket {
	return &localBucket{
		clock:  clk,
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   clk.Now(),
	}
}

func (b *localBucket) allow(_ context.Context, _ string) (bool, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if delta := now.Sub(b.last); delta > 0 {
		b.tokens = math.Min(float64(b.burst), b.tokens+delta.Seconds()*b.rate)
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}
	return false, refillDelay(b.tokens, b.rate), nil
}

func refillDelay(tokens, rate float64) time.Duration {
	needed := 1.0 - tokens
	if needed <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(needed / rate * float64(time.Second))
}

func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}

func castToFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
