package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/streampulse/harvester/internal/clock"
	"gorm.io/gorm"
)

// Record is the durable progress marker for one entity scope. The scope id is
// "accountID:videoID"; last_processed_date is the newest day known to be
// durably merged for that scope.
type Record struct {
	ScopeID           string    `gorm:"column:scope_id;primaryKey"`
	LastProcessedDate time.Time `gorm:"column:last_processed_date"`
	RunID             string    `gorm:"column:run_id"`
	RunTimestamp      time.Time `gorm:"column:run_timestamp"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "checkpoints"
}

// Store reads and advances checkpoints. Commits are monotonic: a commit with
// an older date than the stored one leaves the record untouched.
type Store interface {
	// Read returns the checkpoint for a scope, or nil when none exists.
	Read(ctx context.Context, scopeID string) (*Record, error)

	// Commit records progress through date for a scope. It must be called
	// only after every row up to date is durably merged.
	Commit(ctx context.Context, scopeID string, date time.Time, runID string) error

	// Delete drops one scope's checkpoint so the next run replans from
	// scratch.
	Delete(ctx context.Context, scopeID string) error

	// DeleteByPrefix drops every checkpoint whose scope starts with prefix.
	// Used for account-wide full refresh ("accountID:").
	DeleteByPrefix(ctx context.Context, prefix string) error
}

type gormStore struct {
	db    *gorm.DB
	clock clock.Clock
}

func New(db *gorm.DB, clk clock.Clock) Store {
	return &gormStore{db: db, clock: clk}
}

func (s *gormStore) Read(ctx context.Context, scopeID string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "scope_id = ?", scopeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) Commit(ctx context.Context, scopeID string, date time.Time, runID string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE checkpoints
			 SET last_processed_date = ?, run_id = ?, run_timestamp = ?, updated_at = ?
			 WHERE scope_id = ? AND last_processed_date <= ?`,
			date, runID, now, now, scopeID, date,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}

		// Either the scope has no checkpoint yet or the stored date is newer.
		var count int64
		if err := tx.Model(&Record{}).Where("scope_id = ?", scopeID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		return tx.Create(&Record{
			ScopeID:           scopeID,
			LastProcessedDate: date,
			RunID:             runID,
			RunTimestamp:      now,
			UpdatedAt:         now,
		}).Error
	})
}

func (s *gormStore) Delete(ctx context.Context, scopeID string) error {
	return s.db.WithContext(ctx).Delete(&Record{}, "scope_id = ?", scopeID).Error
}

func (s *gormStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	return s.db.WithContext(ctx).Delete(&Record{}, "scope_id LIKE ?", prefix+"%").Error
}
