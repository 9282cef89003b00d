package collector

import (
	"time"

	"github.com/streampulse/harvester/internal/catalog/domain"
	"github.com/streampulse/harvester/internal/checkpoint"
	"github.com/streampulse/harvester/internal/config"
)

// PlanWindows computes the ordered set of windows still worth fetching for
// one video.
//
// Historical mode emits one window per calendar year across the policy range,
// clamped to today. Incremental mode emits a single trailing window
// [last_processed_date - overlapDays, today]; a video without a checkpoint
// falls back to historical planning regardless of its age, because the
// checkpoint is the only trustworthy signal of what was actually persisted.
func PlanWindows(policy config.CollectionPolicy, video *domain.Video, cp *checkpoint.Record, today time.Time) []Window {
	today = midnight(today)

	if policy.Mode == config.ModeIncremental && cp != nil {
		start := midnight(cp.LastProcessedDate).AddDate(0, 0, -policy.OverlapDays)
		if start.After(today) {
			start = today
		}
		return []Window{{Start: start, End: today}}
	}

	return historicalWindows(policy, video, today)
}

func historicalWindows(policy config.CollectionPolicy, video *domain.Video, today time.Time) []Window {
	from, err := time.ParseInLocation(dateLayout, policy.From, time.UTC)
	if err != nil {
		from = today
	}
	to := today
	if policy.To != "" {
		if parsed, err := time.ParseInLocation(dateLayout, policy.To, time.UTC); err == nil && parsed.Before(to) {
			to = parsed
		}
	}
	if to.Before(from) {
		return nil
	}

	var windows []Window
	for year := from.Year(); year <= to.Year(); year++ {
		start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		// A video created after the window closed has nothing to report yet.
		if video != nil && video.CreatedAt != nil && midnight(*video.CreatedAt).After(end) {
			continue
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows
}
