package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/streampulse/harvester/internal/analytics"
	catalogdomain "github.com/streampulse/harvester/internal/catalog/domain"
	"github.com/streampulse/harvester/internal/checkpoint"
	"github.com/streampulse/harvester/internal/clock"
	"github.com/streampulse/harvester/internal/config"
	"github.com/streampulse/harvester/internal/observability/logger"
	obsmetrics "github.com/streampulse/harvester/internal/observability/metrics"
	"github.com/streampulse/harvester/internal/ratelimit"
	"github.com/streampulse/harvester/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("collector: invalid configuration")

const keyCollectLock = "collect:lock:%s"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Policy      *config.PolicyHolder
	Fetcher     analytics.Fetcher
	Budget      *ratelimit.Budget `optional:"true"`
	Locker      *ratelimit.Locker `optional:"true"`
	Checkpoints checkpoint.Store
	Store       store.Store
	Catalog     catalogdomain.Repository
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      Config `optional:"true"`
}

// Collector drives the plan → fetch → split → merge → checkpoint pipeline
// for every configured account.
type Collector struct {
	db          *gorm.DB
	log         *zap.Logger
	policy      *config.PolicyHolder
	locker      *ratelimit.Locker
	checkpoints checkpoint.Store
	store       store.Store
	catalog     catalogdomain.Repository
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         Config

	exec     *Executor
	splitter *Splitter
}

func New(p Params) (*Collector, error) {
	if p.DB == nil || p.Log == nil || p.Policy == nil || p.Fetcher == nil || p.Checkpoints == nil || p.Store == nil || p.Catalog == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	log := p.Log.Named("collector").With(zap.String("component", "collector"))

	exec := NewExecutor(p.Fetcher, p.Budget, cfg.Retry)
	return &Collector{
		db:          p.DB,
		log:         log,
		policy:      p.Policy,
		locker:      p.Locker,
		checkpoints: p.Checkpoints,
		store:       p.Store,
		catalog:     p.Catalog,
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         cfg,
		exec:        exec,
		splitter:    NewSplitter(exec, cfg.MaxSplitDepth, log),
	}, nil
}

// RunOnce collects every configured account. Per-account failures are joined
// so one bad account never hides another's outcome.
func (c *Collector) RunOnce(ctx context.Context) error {
	policy := c.policy.Get()
	var err error
	for _, account := range policy.Accounts {
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		err = errors.Join(err, c.CollectAccount(ctx, policy, account))
	}
	return err
}

// CollectAccount runs the full pipeline for one account under a distributed
// lock, so two harvester instances never double-collect the same account.
func (c *Collector) CollectAccount(ctx context.Context, policy config.CollectionPolicy, account config.AccountConfig) error {
	lockKey := fmt.Sprintf(keyCollectLock, account.AccountID)
	token, ok, err := c.locker.TryLock(ctx, lockKey, c.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("account %s: lock: %w", account.AccountID, err)
	}
	if !ok {
		c.log.Info("account collection already in progress elsewhere",
			zap.String("account_id", account.AccountID))
		return nil
	}
	defer func() {
		if err := c.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			c.log.Warn("lock release failed", zap.String("account_id", account.AccountID), zap.Error(err))
		}
	}()

	start := c.clock.Now()
	runID := c.genID.Generate().Int64()
	ctx = logger.WithRunID(ctx, fmt.Sprintf("%d", runID))
	log := logger.WithContext(ctx, c.log).With(zap.String("account_id", account.AccountID))

	obsmetrics.Collector().IncRun(account.AccountID)
	log.Info("account collection started",
		zap.String("mode", policy.Mode),
		zap.String("account", account.Name),
	)

	videos, err := c.catalog.ListByAccount(ctx, c.db, account.AccountID)
	if err != nil {
		return fmt.Errorf("account %s: list videos: %w", account.AccountID, err)
	}

	report := NewRunReport(runID, account.AccountID, policy.Mode, start, len(videos))
	runErr := c.collectEntities(ctx, policy, account, videos, runID, report)

	if sweepErr := c.sweepLastViewed(ctx, policy, account); sweepErr != nil {
		log.Warn("last-viewed sweep failed", zap.Error(sweepErr))
		runErr = errors.Join(runErr, sweepErr)
	}

	finished := c.clock.Now()
	obsmetrics.Collector().ObserveRunDuration(account.AccountID, finished.Sub(start))
	if saveErr := report.Save(ctx, c.db, finished); saveErr != nil {
		log.Error("run report save failed", zap.Error(saveErr))
		runErr = errors.Join(runErr, saveErr)
	}

	log.Info("account collection finished",
		zap.Int("entities", len(videos)),
		zap.Duration("took", finished.Sub(start)),
	)
	return runErr
}

// collectEntities fans videos out to a bounded worker pool. Entities share no
// mutable state beyond the store and checkpoint table, which serialize per
// key, so ordering across entities is free.
func (c *Collector) collectEntities(
	ctx context.Context,
	policy config.CollectionPolicy,
	account config.AccountConfig,
	videos []*catalogdomain.Video,
	runID int64,
	report *RunReport,
) error {
	workers := policy.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		wg   sync.WaitGroup
		sem  = make(chan struct{}, workers)
		mu   sync.Mutex
		errs error
	)
	for _, video := range videos {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(video *catalogdomain.Video) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.collectEntity(ctx, policy, account, video, runID, report); err != nil {
				report.EntityFailed(err)
				mu.Lock()
				errs = errors.Join(errs, fmt.Errorf("entity %s: %w", video.Key(), err))
				mu.Unlock()
			}
		}(video)
	}
	wg.Wait()
	return errors.Join(errs, ctx.Err())
}

// collectEntity runs one video through the pipeline. The checkpoint only
// advances after every planned window has merged durably; skipped days are
// reported but do not hold the checkpoint back.
func (c *Collector) collectEntity(
	ctx context.Context,
	policy config.CollectionPolicy,
	account config.AccountConfig,
	video *catalogdomain.Video,
	runID int64,
	report *RunReport,
) error {
	scope := video.Key()
	ctx = logger.WithScope(ctx, scope)
	log := logger.WithContext(ctx, c.log)

	cp, err := c.checkpoints.Read(ctx, scope)
	if err != nil {
		// Unreadable checkpoints need an operator decision (full refresh),
		// not a silent historical re-fetch that could mask data loss.
		return fmt.Errorf("checkpoint read: %w", err)
	}

	today := c.clock.Now()
	windows := PlanWindows(policy, video, cp, today)
	if len(windows) == 0 {
		return nil
	}

	var maxMerged time.Time
	for _, window := range windows {
		batches, skipped, err := c.splitter.Collect(ctx, account.AccountID, video.VideoID, window)
		report.AddSkips(scope, skipped)
		if err != nil {
			return err
		}

		var rows int64
		for _, batch := range batches {
			merged, err := c.store.MergeBatch(ctx, account.AccountID, video.VideoID, batch.Records)
			if err != nil {
				return fmt.Errorf("merge %s: %w", batch.Window, err)
			}
			rows += merged
		}
		report.AddFetched(len(batches), rows)
		obsmetrics.Collector().AddRecordsMerged(account.AccountID, int(rows))

		if window.End.After(maxMerged) {
			maxMerged = window.End
		}
	}

	if !maxMerged.IsZero() {
		if err := c.checkpoints.Commit(ctx, scope, maxMerged, fmt.Sprintf("%d", runID)); err != nil {
			return fmt.Errorf("checkpoint commit: %w", err)
		}
		obsmetrics.Collector().IncCheckpointCommit()
	}

	log.Debug("entity collected",
		zap.Int("windows", len(windows)),
		zap.String("through", maxMerged.Format(dateLayout)),
	)
	return nil
}

// sweepLastViewed refreshes the per-video last-viewed watermark from one
// account-wide query instead of per-video fetches.
func (c *Collector) sweepLastViewed(ctx context.Context, policy config.CollectionPolicy, account config.AccountConfig) error {
	today := midnight(c.clock.Now())
	from := today.AddDate(0, 0, -policy.OverlapDays)
	if policy.Mode == config.ModeHistorical {
		if parsed, err := time.ParseInLocation(dateLayout, policy.From, time.UTC); err == nil {
			from = parsed
		}
	}

	views, err := c.exec.FetchLastViewed(ctx, account.AccountID, NewWindow(from, today))
	if err != nil {
		return err
	}
	return c.store.ApplyLastViewed(ctx, account.AccountID, views)
}

// FullRefresh drops every checkpoint for an account; the next run replans the
// whole history. Stored metrics stay and are idempotently replaced.
func (c *Collector) FullRefresh(ctx context.Context, accountID string) error {
	if err := c.checkpoints.DeleteByPrefix(ctx, accountID+":"); err != nil {
		return err
	}
	c.log.Info("full refresh requested", zap.String("account_id", accountID))
	return nil
}

// RunForever collects on a fixed interval until ctx is done.
func (c *Collector) RunForever(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := c.clock.Now().Add(c.cfg.RunInterval)

	for {
		if lag := time.Since(nextRun); lag > 0 {
			obsmetrics.Collector().ObserveRunLoopLag(lag)
		}
		if err := c.RunOnce(ctx); err != nil {
			c.log.Warn("collection run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(c.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
