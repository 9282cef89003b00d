package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/streampulse/harvester/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}))
	return New(db, clock.NewFakeClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)))
}

func date(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestReadMissingScope(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.Read(context.Background(), "acct:v1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCommitCreatesAndAdvances(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-01"), "run-1"))

	rec, err := s.Read(ctx, "acct:v1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, date("2024-03-01"), rec.LastProcessedDate.UTC())
	assert.Equal(t, "run-1", rec.RunID)

	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-05"), "run-2"))
	rec, err = s.Read(ctx, "acct:v1")
	require.NoError(t, err)
	assert.Equal(t, date("2024-03-05"), rec.LastProcessedDate.UTC())
	assert.Equal(t, "run-2", rec.RunID)
}

func TestCommitIsMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-05"), "run-1"))

	// An overlap re-fetch may finish with an older date; it must not win.
	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-01"), "run-2"))

	rec, err := s.Read(ctx, "acct:v1")
	require.NoError(t, err)
	assert.Equal(t, date("2024-03-05"), rec.LastProcessedDate.UTC())
	assert.Equal(t, "run-1", rec.RunID)
}

func TestCommitSameDateUpdatesRunID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-05"), "run-1"))
	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-05"), "run-2"))

	rec, err := s.Read(ctx, "acct:v1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", rec.RunID)
}

func TestDeleteScope(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-05"), "run-1"))
	require.NoError(t, s.Delete(ctx, "acct:v1"))

	rec, err := s.Read(ctx, "acct:v1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteByPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "acct:v1", date("2024-03-05"), "run-1"))
	require.NoError(t, s.Commit(ctx, "acct:v2", date("2024-03-06"), "run-1"))
	require.NoError(t, s.Commit(ctx, "other:v1", date("2024-03-07"), "run-1"))

	require.NoError(t, s.DeleteByPrefix(ctx, "acct:"))

	rec, err := s.Read(ctx, "acct:v1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = s.Read(ctx, "acct:v2")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = s.Read(ctx, "other:v1")
	require.NoError(t, err)
	require.NotNil(t, rec)
}
