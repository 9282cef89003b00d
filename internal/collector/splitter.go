package collector

import (
	"context"
	"errors"

	"github.com/streampulse/harvester/internal/analytics"
	"github.com/streampulse/harvester/internal/observability/metrics"
	"go.uber.org/zap"
)

// SkippedWindow is a sub-range excluded from a collection after the splitter
// gave up on it. Skips are reported, not fatal.
type SkippedWindow struct {
	Window Window
	Reason string
	Err    error
}

// Splitter drives window fetches through the executor, bisecting failed
// windows until each sub-window succeeds, reaches a single day, or hits the
// depth limit. The returned batches plus skips always partition the input
// window exactly.
type Splitter struct {
	exec     *Executor
	maxDepth int
	log      *zap.Logger
}

func NewSplitter(exec *Executor, maxDepth int, log *zap.Logger) *Splitter {
	return &Splitter{exec: exec, maxDepth: maxDepth, log: log}
}

// WindowBatch is the fetched contents of one window that succeeded as a unit.
type WindowBatch struct {
	Window  Window
	Records []analytics.DailyRecord
}

type splitTask struct {
	window Window
	depth  int
}

// Collect fetches the window, splitting on failure. Only context
// cancellation aborts the walk; fetch failures at day granularity or at the
// depth limit become skips.
func (s *Splitter) Collect(ctx context.Context, accountID, videoID string, w Window) ([]WindowBatch, []SkippedWindow, error) {
	var (
		batches []WindowBatch
		skipped []SkippedWindow
	)

	// Explicit LIFO stack instead of recursion: bounds depth, keeps
	// cancellation checks in one place, and preserves left-to-right order.
	stack := []splitTask{{window: w, depth: 0}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			metrics.Collector().IncWindowSkipped(metrics.SkipReasonCancelled)
			return batches, skipped, err
		}

		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		records, err := s.exec.FetchWindow(ctx, accountID, videoID, task.window)
		if err == nil {
			batches = append(batches, WindowBatch{Window: task.window, Records: records})
			continue
		}
		if cerr := ctx.Err(); cerr != nil {
			metrics.Collector().IncWindowSkipped(metrics.SkipReasonCancelled)
			return batches, skipped, cerr
		}
		if errors.Is(err, context.Canceled) {
			metrics.Collector().IncWindowSkipped(metrics.SkipReasonCancelled)
			return batches, skipped, err
		}

		switch {
		case task.window.SingleDay():
			skipped = append(skipped, s.skip(accountID, videoID, task.window, err))
		case task.depth >= s.maxDepth:
			metrics.Collector().IncWindowSkipped(metrics.SkipReasonMaxDepth)
			s.log.Warn("window skipped at max split depth",
				zap.String("account_id", accountID),
				zap.String("video_id", videoID),
				zap.String("window", task.window.String()),
				zap.Error(err),
			)
			skipped = append(skipped, SkippedWindow{Window: task.window, Reason: metrics.SkipReasonMaxDepth, Err: err})
		default:
			metrics.Collector().IncWindowSplit()
			left, right := task.window.Split()
			// Right first so the left half pops first.
			stack = append(stack,
				splitTask{window: right, depth: task.depth + 1},
				splitTask{window: left, depth: task.depth + 1},
			)
		}
	}

	return batches, skipped, nil
}

func (s *Splitter) skip(accountID, videoID string, w Window, err error) SkippedWindow {
	reason := metrics.SkipReasonExhausted
	if !analytics.IsTransient(err) {
		reason = metrics.SkipReasonPermanent
	}
	metrics.Collector().IncWindowSkipped(reason)
	s.log.Warn("day skipped after fetch failures",
		zap.String("account_id", accountID),
		zap.String("video_id", videoID),
		zap.String("window", w.String()),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return SkippedWindow{Window: w, Reason: reason, Err: err}
}
