package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository reads the video catalog for one account.
type Repository interface {
	ListByAccount(ctx context.Context, db *gorm.DB, accountID string) ([]*Video, error)
	FindByID(ctx context.Context, db *gorm.DB, accountID, videoID string) (*Video, error)
	Upsert(ctx context.Context, db *gorm.DB, videos []*Video) error
}
