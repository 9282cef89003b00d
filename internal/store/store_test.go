package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/streampulse/harvester/internal/analytics"
	"github.com/streampulse/harvester/internal/catalog/domain"
	"github.com/streampulse/harvester/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Video{}, &DailyMetric{}))
	return db
}

func seedVideo(t *testing.T, db *gorm.DB, accountID, videoID string) {
	t.Helper()
	created := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&domain.Video{
		AccountID: accountID,
		VideoID:   videoID,
		Name:      "video " + videoID,
		CreatedAt: &created,
	}).Error)
}

func date(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func testStore(db *gorm.DB) Store {
	return New(db, clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))
}

func TestMergeBatchIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedVideo(t, db, "acct", "v1")
	s := testStore(db)
	ctx := context.Background()

	records := []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-03-01"), Views: 10, SecondsViewed: 300},
		{VideoID: "v1", Date: date("2024-03-02"), Views: 5, SecondsViewed: 120},
	}

	merged, err := s.MergeBatch(ctx, "acct", "v1", records)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged)

	merged, err = s.MergeBatch(ctx, "acct", "v1", records)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged)

	var count int64
	require.NoError(t, db.Model(&DailyMetric{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestMergeBatchReplacesWholeRow(t *testing.T) {
	db := openTestDB(t)
	seedVideo(t, db, "acct", "v1")
	s := testStore(db)
	ctx := context.Background()

	_, err := s.MergeBatch(ctx, "acct", "v1", []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-03-01"), Views: 10, ViewsDesktop: 8, ViewsMobile: 2},
	})
	require.NoError(t, err)

	// A later fetch of the same day carries updated figures; the row must
	// reflect only the latest fetch, including columns that went to zero.
	_, err = s.MergeBatch(ctx, "acct", "v1", []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-03-01"), Views: 12, ViewsDesktop: 12},
	})
	require.NoError(t, err)

	var row DailyMetric
	require.NoError(t, db.First(&row, "video_id = ?", "v1").Error)
	assert.Equal(t, int64(12), row.Views)
	assert.Equal(t, int64(12), row.ViewsDesktop)
	assert.Zero(t, row.ViewsMobile)
}

func TestMergeBatchAdvancesLastViewed(t *testing.T) {
	db := openTestDB(t)
	seedVideo(t, db, "acct", "v1")
	s := testStore(db)
	ctx := context.Background()

	_, err := s.MergeBatch(ctx, "acct", "v1", []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-03-01"), Views: 10},
		{VideoID: "v1", Date: date("2024-03-03"), Views: 0},
		{VideoID: "v1", Date: date("2024-03-02"), Views: 4},
	})
	require.NoError(t, err)

	var video domain.Video
	require.NoError(t, db.First(&video, "video_id = ?", "v1").Error)
	require.NotNil(t, video.LastViewedAt)
	// 03-03 has zero views, so the newest viewed day is 03-02.
	assert.Equal(t, date("2024-03-02"), video.LastViewedAt.UTC())
}

func TestMergeBatchNeverRegressesLastViewed(t *testing.T) {
	db := openTestDB(t)
	seedVideo(t, db, "acct", "v1")
	s := testStore(db)
	ctx := context.Background()

	_, err := s.MergeBatch(ctx, "acct", "v1", []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-03-10"), Views: 3},
	})
	require.NoError(t, err)

	// Re-fetching an older window must not move the watermark back.
	_, err = s.MergeBatch(ctx, "acct", "v1", []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-02-01"), Views: 7},
	})
	require.NoError(t, err)

	var video domain.Video
	require.NoError(t, db.First(&video, "video_id = ?", "v1").Error)
	require.NotNil(t, video.LastViewedAt)
	assert.Equal(t, date("2024-03-10"), video.LastViewedAt.UTC())
}

func TestApplyLastViewedSweep(t *testing.T) {
	db := openTestDB(t)
	seedVideo(t, db, "acct", "v1")
	seedVideo(t, db, "acct", "v2")
	s := testStore(db)
	ctx := context.Background()

	err := s.ApplyLastViewed(ctx, "acct", []analytics.LastView{
		{VideoID: "v1", Date: date("2024-04-01"), Views: 5},
		{VideoID: "v1", Date: date("2024-04-03"), Views: 2},
		{VideoID: "v2", Date: date("2024-04-02"), Views: 0},
	})
	require.NoError(t, err)

	var v1, v2 domain.Video
	require.NoError(t, db.First(&v1, "video_id = ?", "v1").Error)
	require.NoError(t, db.First(&v2, "video_id = ?", "v2").Error)

	require.NotNil(t, v1.LastViewedAt)
	assert.Equal(t, date("2024-04-03"), v1.LastViewedAt.UTC())
	// v2 only had a zero-view row; the watermark stays unset.
	assert.Nil(t, v2.LastViewedAt)
}

func TestMetricsInRange(t *testing.T) {
	db := openTestDB(t)
	seedVideo(t, db, "acct", "v1")
	seedVideo(t, db, "acct", "v2")
	s := testStore(db)
	ctx := context.Background()

	_, err := s.MergeBatch(ctx, "acct", "v2", []analytics.DailyRecord{
		{VideoID: "v2", Date: date("2024-03-02"), Views: 1},
	})
	require.NoError(t, err)
	_, err = s.MergeBatch(ctx, "acct", "v1", []analytics.DailyRecord{
		{VideoID: "v1", Date: date("2024-03-01"), Views: 2},
		{VideoID: "v1", Date: date("2024-05-01"), Views: 9},
	})
	require.NoError(t, err)

	rows, err := s.MetricsInRange(ctx, "acct", date("2024-03-01"), date("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "v1", rows[0].VideoID)
	assert.Equal(t, "v2", rows[1].VideoID)
}
