package migration

import (
	"github.com/streampulse/harvester/internal/catalog/domain"
	"github.com/streampulse/harvester/internal/checkpoint"
	"github.com/streampulse/harvester/internal/collector"
	"github.com/streampulse/harvester/internal/config"
	"github.com/streampulse/harvester/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(runMigrations),
)

func runMigrations(cfg config.Config, db *gorm.DB) error {
	if cfg.DBType == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		zap.L().Info("schema migrations applied")
		return nil
	}

	// Non-postgres dialects (sqlite in tests, mysql) fall back to AutoMigrate.
	return db.AutoMigrate(
		&domain.Video{},
		&store.DailyMetric{},
		&checkpoint.Record{},
		&collector.CollectionRun{},
	)
}
