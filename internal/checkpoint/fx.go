package checkpoint

import "go.uber.org/fx"

var Module = fx.Module("checkpoint",
	fx.Provide(New),
)
