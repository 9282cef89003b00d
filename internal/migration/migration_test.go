package migration

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/streampulse/harvester/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

func TestRunMigrationsSQLiteFallback(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, runMigrations(config.Config{DBType: "sqlite"}, db))

	for _, table := range []string{"videos", "daily_metrics", "checkpoints", "collection_runs"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s should exist", table)
	}
}
