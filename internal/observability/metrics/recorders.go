package metrics

import "time"

// RecordProxyAttempt records one proxy fetch attempt against an endpoint.
func RecordProxyAttempt(endpoint string, duration time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	ProxyAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
	ProxyAttemptDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordProxyHealthScore updates the health score gauge for an endpoint.
func RecordProxyHealthScore(endpoint string, score float64) {
	ProxyHealthScore.WithLabelValues(endpoint).Set(score)
}

// RecordFailover records the result of a full failover chain.
// Result should be "success" or "exhausted".
func RecordFailover(success bool) {
	result := "success"
	if !success {
		result = "exhausted"
	}
	ProxyFailoversTotal.WithLabelValues(result).Inc()
}

// RecordCacheLookup records a cache lookup result: "fresh", "stale" or "miss".
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheEviction records an evicted entry. Reason is "lru" or "expired".
func RecordCacheEviction(reason string, count int) {
	if count <= 0 {
		return
	}
	CacheEvictionsTotal.WithLabelValues(reason).Add(float64(count))
}

// UpdateCacheEntries updates the cached-feed count gauge.
func UpdateCacheEntries(count int) {
	CacheEntries.Set(float64(count))
}

// RecordFeedFetch records one settled per-feed fetch. Outcome is "success"
// or the error-type string from the taxonomy.
func RecordFeedFetch(outcome string) {
	FeedFetchesTotal.WithLabelValues(outcome).Inc()
}

// RecordLoadRun records the duration of a full progressive load.
func RecordLoadRun(duration time.Duration, articles int) {
	LoadRunDuration.Observe(duration.Seconds())
	if articles > 0 {
		ArticlesLoadedTotal.Add(float64(articles))
	}
}

// RecordBatch records the duration of one feed batch.
func RecordBatch(duration time.Duration) {
	LoadBatchDuration.Observe(duration.Seconds())
}
