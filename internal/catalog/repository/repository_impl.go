package repository

import (
	"context"

	"github.com/streampulse/harvester/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID string) ([]*domain.Video, error) {
	var videos []*domain.Video
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, video_id, name, created_at, published_at, duration_ms,
		        tags, reference_id, last_viewed_at, updated_at
		 FROM videos
		 WHERE account_id = ?
		 ORDER BY created_at, video_id`,
		accountID,
	).Scan(&videos).Error
	if err != nil {
		return nil, err
	}
	return videos, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, videoID string) (*domain.Video, error) {
	var video domain.Video
	err := db.WithContext(ctx).Raw(
		`SELECT account_id, video_id, name, created_at, published_at, duration_ms,
		        tags, reference_id, last_viewed_at, updated_at
		 FROM videos
		 WHERE account_id = ? AND video_id = ?`,
		accountID,
		videoID,
	).Scan(&video).Error
	if err != nil {
		return nil, err
	}
	if video.VideoID == "" {
		return nil, nil
	}
	return &video, nil
}

// Upsert refreshes catalog rows from the upstream CMS sync. last_viewed_at is
// deliberately left out of the update set: that column is owned by the merge
// engine's monotonic rule.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, videos []*domain.Video) error {
	if len(videos) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "created_at", "published_at", "duration_ms",
			"tags", "reference_id", "updated_at",
		}),
	}).Create(videos).Error
}
