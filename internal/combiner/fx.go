package combiner

import "go.uber.org/fx"

var Module = fx.Module("combiner",
	fx.Provide(New),
)
