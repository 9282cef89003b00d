package store

import (
	"context"
	"time"

	"github.com/streampulse/harvester/internal/analytics"
	"github.com/streampulse/harvester/internal/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store merges harvested rows into daily_metrics and keeps the per-video
// last-viewed watermark.
type Store interface {
	// MergeBatch upserts the records for one video in a single transaction
	// and advances the video's last_viewed_at to the newest date with views.
	// Re-merging the same records is a no-op beyond updated_at.
	MergeBatch(ctx context.Context, accountID, videoID string, records []analytics.DailyRecord) (int64, error)

	// ApplyLastViewed advances last_viewed_at from an account-wide sweep.
	// Dates only move forward, and only rows with views count.
	ApplyLastViewed(ctx context.Context, accountID string, views []analytics.LastView) error

	// MetricsInRange returns all rows for an account with date in [from, to],
	// ordered by video and date.
	MetricsInRange(ctx context.Context, accountID string, from, to time.Time) ([]DailyMetric, error)
}

type metricStore struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(db *gorm.DB, clk clock.Clock) Store {
	return &metricStore{db: db, clock: clk}
}

func (s *metricStore) MergeBatch(ctx context.Context, accountID, videoID string, records []analytics.DailyRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	rows := make([]DailyMetric, 0, len(records))
	var lastViewed time.Time
	for _, rec := range records {
		rows = append(rows, DailyMetric{
			AccountID:         accountID,
			VideoID:           videoID,
			Date:              rec.Date,
			Views:             rec.Views,
			Impressions:       rec.Impressions,
			PlayRate:          rec.PlayRate,
			EngagementScore:   rec.EngagementScore,
			Engagement1:       rec.Engagement1,
			Engagement25:      rec.Engagement25,
			Engagement50:      rec.Engagement50,
			Engagement75:      rec.Engagement75,
			Engagement100:     rec.Engagement100,
			PercentViewed:     rec.PercentViewed,
			SecondsViewed:     rec.SecondsViewed,
			ViewsDesktop:      rec.ViewsDesktop,
			ViewsMobile:       rec.ViewsMobile,
			ViewsTablet:       rec.ViewsTablet,
			ViewsOther:        rec.ViewsOther,
			ReportGeneratedAt: rec.ReportGeneratedAt,
			UpdatedAt:         now,
		})
		if rec.Views > 0 && rec.Date.After(lastViewed) {
			lastViewed = rec.Date
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "video_id"}, {Name: "date"}},
			UpdateAll: true,
		}).Create(&rows).Error; err != nil {
			return err
		}
		if !lastViewed.IsZero() {
			return advanceLastViewed(tx, accountID, videoID, lastViewed)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (s *metricStore) ApplyLastViewed(ctx context.Context, accountID string, views []analytics.LastView) error {
	// Collapse the sweep to one candidate date per video before touching rows.
	latest := make(map[string]time.Time)
	for _, view := range views {
		if view.Views <= 0 {
			continue
		}
		if view.Date.After(latest[view.VideoID]) {
			latest[view.VideoID] = view.Date
		}
	}
	if len(latest) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for videoID, date := range latest {
			if err := advanceLastViewed(tx, accountID, videoID, date); err != nil {
				return err
			}
		}
		return nil
	})
}

// advanceLastViewed moves the watermark forward only; an older date from a
// re-fetched window never overwrites a newer one.
func advanceLastViewed(tx *gorm.DB, accountID, videoID string, date time.Time) error {
	return tx.Exec(
		`UPDATE videos
		 SET last_viewed_at = ?
		 WHERE account_id = ? AND video_id = ?
		   AND (last_viewed_at IS NULL OR last_viewed_at < ?)`,
		date, accountID, videoID, date,
	).Error
}

func (s *metricStore) MetricsInRange(ctx context.Context, accountID string, from, to time.Time) ([]DailyMetric, error) {
	var rows []DailyMetric
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND date >= ? AND date <= ?", accountID, from, to).
		Order("video_id, date").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
