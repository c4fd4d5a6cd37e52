// Package breaker tracks per-endpoint health for proxy failover.
//
// Unlike a classic open/half-open circuit breaker, this tracker never rejects
// a call itself. It only answers two questions: is an endpoint currently
// eligible for candidacy, and how does it rank against its peers. Eligibility
// is lost after a run of consecutive failures and regained by a periodic
// recovery sweep once the endpoint has been quiet past the recovery window.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds the gating and scoring parameters.
type Config struct {
	// FailureThreshold is the consecutive-failure count at which an
	// endpoint becomes ineligible. Default: 3
	FailureThreshold int

	// RecoveryWindow is how long an endpoint must be quiet after its last
	// failure before the sweep re-admits it. Default: 5m
	RecoveryWindow time.Duration

	// LatencyBudget is the average response time above which the health
	// score is dampened. Default: 5s
	LatencyBudget time.Duration
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		RecoveryWindow:   5 * time.Minute,
		LatencyBudget:    5 * time.Second,
	}
}

// Health is a snapshot of one endpoint's running statistics.
type Health struct {
	SuccessCount        int
	FailureCount        int
	TotalRequests       int
	AvgResponseTimeMs   float64
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	ConsecutiveFailures int
	HealthScore         float64
}

// Tracker maintains health records for a set of named endpoints.
// It is safe for concurrent use: records are mutated from concurrently
// settling fetch completions.
type Tracker struct {
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	records map[string]*Health
}

// NewTracker creates a tracker with a health record for each endpoint name.
// Fresh endpoints start with a perfect score.
func NewTracker(cfg Config, logger *slog.Logger, names ...string) *Tracker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 5 * time.Minute
	}
	if cfg.LatencyBudget <= 0 {
		cfg.LatencyBudget = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		cfg:     cfg,
		logger:  logger,
		clock:   time.Now,
		records: make(map[string]*Health, len(names)),
	}
	for _, name := range names {
		t.records[name] = &Health{HealthScore: 1.0}
	}
	return t
}

// SetClock replaces the time source. Test hook.
func (t *Tracker) SetClock(clock func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
}

// ensure returns the record for name, creating one if the endpoint was not
// registered at construction time.
func (t *Tracker) ensure(name string) *Health {
	h, ok := t.records[name]
	if !ok {
		h = &Health{HealthScore: 1.0}
		t.records[name] = h
	}
	return h
}

// RecordSuccess records a successful attempt and its response time.
func (t *Tracker) RecordSuccess(name string, responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.ensure(name)
	h.SuccessCount++
	h.TotalRequests++
	h.ConsecutiveFailures = 0
	h.LastSuccessAt = t.clock()

	// Exponentially weighted average keeps the score responsive to recent
	// latency without a sample window.
	ms := float64(responseTime.Milliseconds())
	if h.AvgResponseTimeMs == 0 {
		h.AvgResponseTimeMs = ms
	} else {
		h.AvgResponseTimeMs = h.AvgResponseTimeMs*0.7 + ms*0.3
	}

	h.HealthScore = t.score(h)
}

// RecordFailure records a failed attempt. Response time is not folded into
// the latency average: failure latency is dominated by timeouts and would
// let a fast failure raise the score.
func (t *Tracker) RecordFailure(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.ensure(name)
	h.FailureCount++
	h.TotalRequests++
	h.ConsecutiveFailures++
	h.LastFailureAt = t.clock()
	h.HealthScore = t.score(h)

	if h.ConsecutiveFailures == t.cfg.FailureThreshold {
		t.logger.Warn("endpoint removed from candidacy",
			slog.String("endpoint", name),
			slog.Int("consecutive_failures", h.ConsecutiveFailures))
	}
}

// Healthy reports whether an endpoint is eligible for candidate lists.
// Unknown endpoints are healthy.
func (t *Tracker) Healthy(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.records[name]
	if !ok {
		return true
	}
	return h.ConsecutiveFailures < t.cfg.FailureThreshold
}

// Score returns the current health score of an endpoint.
// Unknown endpoints score 1.0.
func (t *Tracker) Score(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.records[name]
	if !ok {
		return 1.0
	}
	return h.HealthScore
}

// Snapshot returns a copy of an endpoint's health record.
func (t *Tracker) Snapshot(name string) (Health, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.records[name]
	if !ok {
		return Health{}, false
	}
	return *h, true
}

// Sweep re-admits endpoints whose last failure is older than the recovery
// window, resetting their failure streak. It returns the names recovered.
// Intended to run periodically (default every 5 minutes).
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	var recovered []string
	for name, h := range t.records {
		if h.ConsecutiveFailures < t.cfg.FailureThreshold {
			continue
		}
		if now.Sub(h.LastFailureAt) <= t.cfg.RecoveryWindow {
			continue
		}
		h.ConsecutiveFailures = 0
		h.HealthScore = t.score(h)
		recovered = append(recovered, name)
		t.logger.Info("endpoint re-admitted after recovery window",
			slog.String("endpoint", name),
			slog.Float64("health_score", h.HealthScore))
	}
	return recovered
}

// score recomputes the deterministic health score for a record:
// success rate, dampened by the failure streak, dampened again by average
// latency beyond the budget, clamped to [0, 1]. Callers hold t.mu.
func (t *Tracker) score(h *Health) float64 {
	successRate := 1.0
	if h.TotalRequests > 0 {
		successRate = float64(h.SuccessCount) / float64(h.TotalRequests)
	}

	streakPenalty := 1.0
	if h.ConsecutiveFailures >= t.cfg.FailureThreshold {
		streakPenalty = 0.1
	} else if h.ConsecutiveFailures > 0 {
		streakPenalty = 1.0 - 0.9*float64(h.ConsecutiveFailures)/float64(t.cfg.FailureThreshold)
	}

	latencyPenalty := 1.0
	budgetMs := float64(t.cfg.LatencyBudget.Milliseconds())
	if h.AvgResponseTimeMs > budgetMs {
		latencyPenalty = 1.0 - (h.AvgResponseTimeMs-budgetMs)/(3*budgetMs)
		if latencyPenalty < 0.2 {
			latencyPenalty = 0.2
		}
	}

	score := successRate * streakPenalty * latencyPenalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
