package ratelimit

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/streampulse/harvester/internal/clock"
	"github.com/streampulse/harvester/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideRedis),
	fx.Provide(provideBudget),
	fx.Provide(NewLocker),
)

// provideRedis returns nil when no address is configured; the budget and
// locker both degrade to single-instance behavior in that case.
func provideRedis(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		zap.L().Warn("redis not configured, using in-process rate budget")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func provideBudget(cfg config.Config, client *redis.Client, clk clock.Clock) *Budget {
	rate := cfg.AnalyticsRateLimit
	burst := cfg.AnalyticsRateBurst
	if rate <= 0 || burst <= 0 {
		return nil
	}
	if client != nil {
		return NewBudget(newRedisBucket(client, rate, burst))
	}
	return NewBudget(newLocalBucket(clk, rate, burst))
}
