// Package metrics provides centralized Prometheus metrics for the feed
// acquisition engine. All metrics are registered with the default registry
// via promauto and exposed by the /metrics endpoint in cmd/loader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Proxy metrics track failover behavior and per-endpoint health
var (
	// ProxyAttemptsTotal counts proxy fetch attempts by endpoint and outcome
	ProxyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_attempts_total",
			Help: "Total number of proxy fetch attempts",
		},
		[]string{"endpoint", "outcome"},
	)

	// ProxyAttemptDuration measures proxy fetch duration in seconds
	ProxyAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_attempt_duration_seconds",
			Help:    "Proxy fetch attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// ProxyHealthScore tracks the current health score of each endpoint
	ProxyHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proxy_health_score",
			Help: "Current health score of each proxy endpoint (0-1)",
		},
		[]string{"endpoint"},
	)

	// ProxyFailoversTotal counts failover chains that exhausted all candidates
	ProxyFailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_failovers_total",
			Help: "Total number of failover chains by result",
		},
		[]string{"result"},
	)
)

// Cache metrics track hit rates and eviction pressure
var (
	// CacheLookupsTotal counts cache lookups by result (fresh, stale, miss)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_lookups_total",
			Help: "Total number of feed cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheEvictionsTotal counts evicted entries by reason (lru, expired)
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_evictions_total",
			Help: "Total number of evicted cache entries by reason",
		},
		[]string{"reason"},
	)

	// CacheEntries tracks the current number of cached feeds
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_cache_entries",
			Help: "Current number of cached feed entries",
		},
	)
)

// Loader metrics track progressive batch loading
var (
	// FeedFetchesTotal counts per-feed fetch outcomes by error type
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetches_total",
			Help: "Total number of per-feed fetch completions",
		},
		[]string{"outcome"},
	)

	// LoadRunDuration measures full progressive load duration in seconds
	LoadRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "load_run_duration_seconds",
			Help:    "Duration of a full progressive load run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// LoadBatchDuration measures per-batch duration in seconds
	LoadBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "load_batch_duration_seconds",
			Help:    "Duration of a single feed batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ArticlesLoadedTotal counts articles merged into loader state per run
	ArticlesLoadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "articles_loaded_total",
			Help: "Total number of articles merged into loader state",
		},
	)
)
