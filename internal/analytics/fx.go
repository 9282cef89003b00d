package analytics

import (
	"github.com/streampulse/harvester/internal/clock"
	"github.com/streampulse/harvester/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics",
	fx.Provide(provideTokenProvider),
	fx.Provide(provideFetcher),
)

func provideTokenProvider(cfg config.Config, clk clock.Clock) TokenProvider {
	return NewClientCredentialsProvider(
		cfg.AnalyticsTokenURL,
		cfg.AnalyticsClientID,
		cfg.AnalyticsClientSecret,
		clk,
	)
}

func provideFetcher(cfg config.Config, tokens TokenProvider) Fetcher {
	return NewClient(cfg.AnalyticsBaseURL, tokens)
}
