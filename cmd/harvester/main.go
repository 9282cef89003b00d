package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/streampulse/harvester/internal/analytics"
	"github.com/streampulse/harvester/internal/catalog"
	"github.com/streampulse/harvester/internal/checkpoint"
	"github.com/streampulse/harvester/internal/clock"
	"github.com/streampulse/harvester/internal/collector"
	"github.com/streampulse/harvester/internal/combiner"
	"github.com/streampulse/harvester/internal/config"
	"github.com/streampulse/harvester/internal/migration"
	"github.com/streampulse/harvester/internal/observability"
	"github.com/streampulse/harvester/internal/ratelimit"
	"github.com/streampulse/harvester/internal/server"
	"github.com/streampulse/harvester/internal/store"
	"github.com/streampulse/harvester/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		catalog.Module,
		analytics.Module,
		ratelimit.Module,
		store.Module,
		checkpoint.Module,
		combiner.Module,
		collector.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
