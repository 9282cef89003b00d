package collector

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("collector",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartCollector),
)

func ProvideConfig() Config {
	return DefaultConfig()
}

func StartCollector(lc fx.Lifecycle, c *Collector) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go c.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
