package collector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CollectionRun is the persisted completion report for one account run.
// Skipped windows are recorded with reasons so operators can distinguish a
// clean run from one with gaps.
type CollectionRun struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	AccountID      string         `gorm:"column:account_id"`
	Mode           string         `gorm:"column:mode"`
	StartedAt      time.Time      `gorm:"column:started_at"`
	FinishedAt     *time.Time     `gorm:"column:finished_at"`
	EntitiesTotal  int            `gorm:"column:entities_total"`
	EntitiesFailed int            `gorm:"column:entities_failed"`
	WindowsFetched int            `gorm:"column:windows_fetched"`
	WindowsSkipped int            `gorm:"column:windows_skipped"`
	RowsMerged     int64          `gorm:"column:rows_merged"`
	Skips          datatypes.JSON `gorm:"column:skips"`
	LastError      string         `gorm:"column:last_error"`
}

func (CollectionRun) TableName() string {
	return "collection_runs"
}

// SkipEntry is one skipped window in the run report JSON.
type SkipEntry struct {
	Scope  string `json:"scope"`
	Window string `json:"window"`
	Reason string `json:"reason"`
}

// RunReport accumulates per-entity outcomes across concurrent workers.
type RunReport struct {
	mu sync.Mutex

	runID     int64
	accountID string
	mode      string
	startedAt time.Time

	entitiesTotal  int
	entitiesFailed int
	windowsFetched int
	windowsSkipped int
	rowsMerged     int64
	skips          []SkipEntry
	lastError      string
}

func NewRunReport(runID int64, accountID, mode string, startedAt time.Time, entities int) *RunReport {
	return &RunReport{
		runID:         runID,
		accountID:     accountID,
		mode:          mode,
		startedAt:     startedAt,
		entitiesTotal: entities,
	}
}

func (r *RunReport) AddFetched(windows int, rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowsFetched += windows
	r.rowsMerged += rows
}

func (r *RunReport) AddSkips(scope string, skips []SkippedWindow) {
	if len(skips) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowsSkipped += len(skips)
	for _, skip := range skips {
		r.skips = append(r.skips, SkipEntry{
			Scope:  scope,
			Window: skip.Window.String(),
			Reason: skip.Reason,
		})
	}
}

func (r *RunReport) EntityFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entitiesFailed++
	if err != nil {
		r.lastError = err.Error()
	}
}

// Save writes the finished report row.
func (r *RunReport) Save(ctx context.Context, db *gorm.DB, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var skipsJSON datatypes.JSON
	if len(r.skips) > 0 {
		raw, err := json.Marshal(r.skips)
		if err != nil {
			return err
		}
		skipsJSON = datatypes.JSON(raw)
	}

	return db.WithContext(ctx).Create(&CollectionRun{
		ID:             r.runID,
		AccountID:      r.accountID,
		Mode:           r.mode,
		StartedAt:      r.startedAt,
		FinishedAt:     &finishedAt,
		EntitiesTotal:  r.entitiesTotal,
		EntitiesFailed: r.entitiesFailed,
		WindowsFetched: r.windowsFetched,
		WindowsSkipped: r.windowsSkipped,
		RowsMerged:     r.rowsMerged,
		Skips:          skipsJSON,
		LastError:      r.lastError,
	}).Error
}
