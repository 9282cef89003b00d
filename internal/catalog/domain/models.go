package domain

import "time"

// Video is one trackable item in an upstream analytics account. Rows are
// maintained by the catalog sync collaborator; the collector only reads them,
// except for the monotonic last_viewed_at column owned by the merge engine.
type Video struct {
	AccountID    string     `gorm:"column:account_id;primaryKey"`
	VideoID      string     `gorm:"column:video_id;primaryKey"`
	Name         string     `gorm:"column:name"`
	CreatedAt    *time.Time `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	DurationMS   int64      `gorm:"column:duration_ms"`
	Tags         string     `gorm:"column:tags"`
	ReferenceID  string     `gorm:"column:reference_id"`
	LastViewedAt *time.Time `gorm:"column:last_viewed_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (Video) TableName() string {
	return "videos"
}

// Key returns the entity identity used for checkpoint scopes.
func (v Video) Key() string {
	return v.AccountID + ":" + v.VideoID
}
