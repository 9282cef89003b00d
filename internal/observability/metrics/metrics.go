package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	FetchResultOK        = "ok"
	FetchResultTransient = "transient"
	FetchResultPermanent = "permanent"
)

const (
	SkipReasonPermanent = "permanent_failure"
	SkipReasonExhausted = "retries_exhausted"
	SkipReasonMaxDepth  = "max_split_depth"
	SkipReasonCancelled = "cancelled"
)

// Config carries the constant labels applied to every collector metric.
type Config struct {
	ServiceName string
	Environment string
}

// CollectorMetrics captures harvest pipeline health signals.
type CollectorMetrics struct {
	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	runLoopLag        prometheus.Observer
	fetchAttempts     *prometheus.CounterVec
	fetchRetries      prometheus.Counter
	windowSplits      prometheus.Counter
	windowsSkipped    *prometheus.CounterVec
	recordsMerged     *prometheus.CounterVec
	checkpointCommits prometheus.Counter
	budgetWaits       prometheus.Counter
}

var (
	collectorMetricsOnce sync.Once
	collectorMetrics     *CollectorMetrics
)

// Collector returns the singleton collector metrics registry.
func Collector() *CollectorMetrics {
	return CollectorWithConfig(Config{})
}

// CollectorWithConfig returns the singleton collector metrics registry using config labels.
func CollectorWithConfig(cfg Config) *CollectorMetrics {
	collectorMetricsOnce.Do(func() {
		collectorMetrics = newCollectorMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return collectorMetrics
}

// ResetCollectorMetricsForTest resets the collector metrics singleton for tests.
func ResetCollectorMetricsForTest() {
	collectorMetricsOnce = sync.Once{}
	collectorMetrics = nil
}

func newCollectorMetrics(registerer prometheus.Registerer, cfg Config) *CollectorMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "harvester"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvester_collector_runs_total",
		Help:        "Collection runs by account.",
		ConstLabels: constLabels,
	}, []string{"account"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "harvester_collector_run_duration_seconds",
		Help:        "Collection run latency per account scope.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		ConstLabels: constLabels,
	}, []string{"account"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "harvester_collector_runloop_lag_seconds",
		Help:        "Collector run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	fetchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvester_fetch_attempts_total",
		Help:        "Analytics API fetch attempts by result class.",
		ConstLabels: constLabels,
	}, []string{"result"})
	fetchRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "harvester_fetch_retries_total",
		Help:        "Analytics API fetch retries after transient failures.",
		ConstLabels: constLabels,
	})
	windowSplits := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "harvester_window_splits_total",
		Help:        "Window bisections triggered by fetch failures.",
		ConstLabels: constLabels,
	})
	windowsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvester_windows_skipped_total",
		Help:        "Windows skipped terminally by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	recordsMerged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "harvester_records_merged_total",
		Help:        "Daily metric rows merged into the store.",
		ConstLabels: constLabels,
	}, []string{"account"})
	checkpointCommits := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "harvester_checkpoint_commits_total",
		Help:        "Checkpoint commits after durable merges.",
		ConstLabels: constLabels,
	})
	budgetWaits := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "harvester_rate_budget_waits_total",
		Help:        "Waits imposed by the shared API rate budget.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runDuration,
		runLoopLag,
		fetchAttempts,
		fetchRetries,
		windowSplits,
		windowsSkipped,
		recordsMerged,
		checkpointCommits,
		budgetWaits,
	)

	return &CollectorMetrics{
		runs:              runs,
		runDuration:       runDuration,
		runLoopLag:        runLoopLag,
		fetchAttempts:     fetchAttempts,
		fetchRetries:      fetchRetries,
		windowSplits:      windowSplits,
		windowsSkipped:    windowsSkipped,
		recordsMerged:     recordsMerged,
		checkpointCommits: checkpointCommits,
		budgetWaits:       budgetWaits,
	}
}

func (m *CollectorMetrics) IncRun(account string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(account).Inc()
}

func (m *CollectorMetrics) ObserveRunDuration(account string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(account).Observe(d.Seconds())
}

func (m *CollectorMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(d.Seconds())
}

func (m *CollectorMetrics) IncFetchAttempt(result string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(result).Inc()
}

func (m *CollectorMetrics) IncFetchRetry() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

func (m *CollectorMetrics) IncWindowSplit() {
	if m == nil {
		return
	}
	m.windowSplits.Inc()
}

func (m *CollectorMetrics) IncWindowSkipped(reason string) {
	if m == nil {
		return
	}
	m.windowsSkipped.WithLabelValues(reason).Inc()
}

func (m *CollectorMetrics) AddRecordsMerged(account string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsMerged.WithLabelValues(account).Add(float64(n))
}

func (m *CollectorMetrics) IncCheckpointCommit() {
	if m == nil {
		return
	}
	m.checkpointCommits.Inc()
}

func (m *CollectorMetrics) IncBudgetWait() {
	if m == nil {
		return
	}
	m.budgetWaits.Inc()
}
