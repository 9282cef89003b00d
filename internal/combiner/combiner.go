package combiner

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/streampulse/harvester/internal/store"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Period is one inclusive date range contributing to a consolidated view,
// typically a calendar year.
type Period struct {
	From time.Time
	To   time.Time
}

func Year(y int) Period {
	return Period{
		From: time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Combiner unions period-scoped slices of the store into one duplicate-free
// dataset. Periods are disjoint by construction; a key seen in two periods is
// a data-integrity fault, not something to deduplicate silently.
type Combiner struct {
	store store.Store
	log   *zap.Logger
}

func New(s store.Store, log *zap.Logger) *Combiner {
	return &Combiner{store: s, log: log.Named("combiner")}
}

// Combine returns one row per (video, date) across all periods, ordered by
// video then date. Overlapping periods that surface the same key fail the
// whole combine.
func (c *Combiner) Combine(ctx context.Context, accountID string, periods []Period) ([]store.DailyMetric, error) {
	seen := make(map[string]struct{})
	var combined []store.DailyMetric

	for _, period := range periods {
		rows, err := c.store.MetricsInRange(ctx, accountID, period.From, period.To)
		if err != nil {
			return nil, fmt.Errorf("period %s..%s: %w", period.From.Format(dateLayout), period.To.Format(dateLayout), err)
		}
		for _, row := range rows {
			key := row.VideoID + "|" + row.Date.Format(dateLayout)
			if _, dup := seen[key]; dup {
				c.log.Error("key collision across periods",
					zap.String("account_id", accountID),
					zap.String("video_id", row.VideoID),
					zap.String("date", row.Date.Format(dateLayout)),
				)
				return nil, fmt.Errorf("combiner: duplicate key %s for account %s", key, accountID)
			}
			seen[key] = struct{}{}
			combined = append(combined, row)
		}
	}

	sort.Slice(combined, func(i, j int) bool {
		if combined[i].VideoID != combined[j].VideoID {
			return combined[i].VideoID < combined[j].VideoID
		}
		return combined[i].Date.Before(combined[j].Date)
	})
	return combined, nil
}

// CombineYears combines every calendar year in [fromYear, toYear].
func (c *Combiner) CombineYears(ctx context.Context, accountID string, fromYear, toYear int) ([]store.DailyMetric, error) {
	var periods []Period
	for y := fromYear; y <= toYear; y++ {
		periods = append(periods, Year(y))
	}
	return c.Combine(ctx, accountID, periods)
}

var csvHeader = []string{
	"account_id", "video_id", "date",
	"views", "impressions", "play_rate", "engagement_score",
	"engagement_1", "engagement_25", "engagement_50", "engagement_75", "engagement_100",
	"percent_viewed", "seconds_viewed",
	"views_desktop", "views_mobile", "views_tablet", "views_other",
}

// ExportCSV writes the combined dataset for downstream reporting.
func ExportCSV(w io.Writer, rows []store.DailyMetric) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.AccountID,
			row.VideoID,
			row.Date.Format(dateLayout),
			strconv.FormatInt(row.Views, 10),
			strconv.FormatInt(row.Impressions, 10),
			formatFloat(row.PlayRate),
			formatFloat(row.EngagementScore),
			formatFloat(row.Engagement1),
			formatFloat(row.Engagement25),
			formatFloat(row.Engagement50),
			formatFloat(row.Engagement75),
			formatFloat(row.Engagement100),
			formatFloat(row.PercentViewed),
			strconv.FormatInt(row.SecondsViewed, 10),
			strconv.FormatInt(row.ViewsDesktop, 10),
			strconv.FormatInt(row.ViewsMobile, 10),
			strconv.FormatInt(row.ViewsTablet, 10),
			strconv.FormatInt(row.ViewsOther, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
