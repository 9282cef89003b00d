package store

import "time"

// DailyMetric is one (account, video, date) row of harvested metrics. A merge
// replaces the whole row, so every column reflects the latest fetch that
// covered its date.
type DailyMetric struct {
	AccountID         string     `gorm:"column:account_id;primaryKey"`
	VideoID           string     `gorm:"column:video_id;primaryKey"`
	Date              time.Time  `gorm:"column:date;primaryKey"`
	Views             int64      `gorm:"column:views"`
	Impressions       int64      `gorm:"column:impressions"`
	PlayRate          float64    `gorm:"column:play_rate"`
	EngagementScore   float64    `gorm:"column:engagement_score"`
	Engagement1       float64    `gorm:"column:engagement_1"`
	Engagement25      float64    `gorm:"column:engagement_25"`
	Engagement50      float64    `gorm:"column:engagement_50"`
	Engagement75      float64    `gorm:"column:engagement_75"`
	Engagement100     float64    `gorm:"column:engagement_100"`
	PercentViewed     float64    `gorm:"column:percent_viewed"`
	SecondsViewed     int64      `gorm:"column:seconds_viewed"`
	ViewsDesktop      int64      `gorm:"column:views_desktop"`
	ViewsMobile       int64      `gorm:"column:views_mobile"`
	ViewsTablet       int64      `gorm:"column:views_tablet"`
	ViewsOther        int64      `gorm:"column:views_other"`
	ReportGeneratedAt *time.Time `gorm:"column:report_generated_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (DailyMetric) TableName() string {
	return "daily_metrics"
}
