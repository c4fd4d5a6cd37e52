package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduled-run metrics for the loader process: the cron-driven refresh runs
// and the recovery/cleanup sweeps. Per-feed and per-batch metrics live in
// internal/observability/metrics; these cover the scheduler itself.
var (
	// ScheduledRunsTotal counts scheduled runs by job and status.
	ScheduledRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_scheduled_runs_total",
			Help: "Total number of scheduled runs by job and status",
		},
		[]string{"job", "status"},
	)

	// ScheduledRunDuration measures scheduled run duration by job.
	ScheduledRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loader_scheduled_run_duration_seconds",
			Help:    "Duration of scheduled runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 8),
		},
		[]string{"job"},
	)

	// LastSuccessTimestamp records the Unix time of the last successful run
	// per job, for staleness alerting.
	LastSuccessTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loader_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful scheduled run per job",
		},
		[]string{"job"},
	)

	// ConfigFallbacksTotal counts configuration values that fell back to
	// defaults because the environment value failed validation.
	ConfigFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loader_config_fallbacks_total",
			Help: "Total configuration fallbacks applied by field",
		},
		[]string{"field"},
	)
)

// RecordScheduledRun records one scheduled run's outcome and duration.
func RecordScheduledRun(job string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	ScheduledRunsTotal.WithLabelValues(job, status).Inc()
	ScheduledRunDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err == nil {
		LastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
	}
}
