package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
	"feedgate/internal/observability/metrics"
	"feedgate/internal/resilience/breaker"
)

// scoreTieMargin is the health-score difference below which two endpoints
// are considered tied and ordered by static priority instead.
const scoreTieMargin = 0.1

// Attempt records one try against one endpoint during a failover chain.
type Attempt struct {
	Endpoint string
	Duration time.Duration
	Err      error
}

// FailoverResult is the outcome of a successful failover chain: the raw
// content, the endpoint that produced it, and the full audit trail.
type FailoverResult struct {
	Content      []byte
	EndpointUsed string
	Attempts     []Attempt
}

// Registry holds the configured relay endpoints with their health records
// and picks failover candidates per request. Construct once at startup and
// share; all methods are safe for concurrent use.
type Registry struct {
	cfg       RegistryConfig
	client    *http.Client
	tracker   *breaker.Tracker
	preferred *preferredHosts
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewRegistry creates a Registry over the given endpoint configuration.
// The snapshot store persists the preferred-endpoint map; nil disables that.
func NewRegistry(cfg RegistryConfig, client *http.Client, snaps *store.SnapshotStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}

	names := make([]string, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		names = append(names, ep.Name)
	}

	return &Registry{
		cfg:       cfg,
		client:    client,
		tracker:   breaker.NewTracker(breaker.DefaultConfig(), logger, names...),
		preferred: newPreferredHosts(cfg.PreferredTTL, snaps, logger),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:    logger,
	}
}

// Tracker exposes the health tracker so the recovery sweep can be scheduled
// by the caller that owns the process lifecycle.
func (r *Registry) Tracker() *breaker.Tracker {
	return r.tracker
}

// Candidates returns the endpoints eligible for a target URL, most promising
// first: enabled and currently healthy endpoints ordered by health score
// descending, near-ties broken by static priority, with the remembered
// preferred endpoint for the target's host moved to the front.
func (r *Registry) Candidates(target string) []Endpoint {
	eligible := make([]Endpoint, 0, len(r.cfg.Endpoints))
	for _, ep := range r.cfg.Endpoints {
		if !ep.Enabled {
			continue
		}
		if !r.tracker.Healthy(ep.Name) {
			continue
		}
		eligible = append(eligible, ep)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		si, sj := r.tracker.Score(eligible[i].Name), r.tracker.Score(eligible[j].Name)
		if diff := si - sj; diff > scoreTieMargin || diff < -scoreTieMargin {
			return si > sj
		}
		return eligible[i].Priority < eligible[j].Priority
	})

	if name, ok := r.preferred.get(targetHost(target)); ok {
		for i, ep := range eligible {
			if ep.Name == name && i > 0 {
				front := append([]Endpoint{ep}, eligible[:i]...)
				eligible = append(front, eligible[i+1:]...)
				break
			}
		}
	}

	return eligible
}

// Fetch performs one request for target through the given endpoint, bounded
// by the endpoint's timeout, and validates the response body before
// returning it.
func (r *Registry) Fetch(ctx context.Context, ep Endpoint, target string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.RequestURL(target), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "feedgate/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, application/json, text/xml")
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s via %s", entity.ErrNotFound, target, ep.Name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, ep.Name)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := ValidateResponse(body, r.cfg.MaxResponseBytes); err != nil {
		return nil, err
	}
	return body, nil
}

// Failover tries candidates in order until one returns validated content.
// Every attempt, success or failure, is recorded against that endpoint's
// health and returned in the audit trail. When all candidates fail the
// terminal error carries the last failure's message.
func (r *Registry) Failover(ctx context.Context, target string) (*FailoverResult, error) {
	candidates := r.Candidates(target)
	if len(candidates) == 0 {
		metrics.RecordFailover(false)
		return nil, fmt.Errorf("%w: no eligible proxy endpoints", entity.ErrAllProvidersFailed)
	}

	host := targetHost(target)
	attempts := make([]Attempt, 0, len(candidates))
	var lastErr error

	for _, ep := range candidates {
		start := time.Now()
		content, err := r.Fetch(ctx, ep, target)
		elapsed := time.Since(start)

		attempts = append(attempts, Attempt{Endpoint: ep.Name, Duration: elapsed, Err: err})
		metrics.RecordProxyAttempt(ep.Name, elapsed, err == nil)

		if err == nil {
			r.tracker.RecordSuccess(ep.Name, elapsed)
			metrics.RecordProxyHealthScore(ep.Name, r.tracker.Score(ep.Name))
			r.preferred.set(host, ep.Name)
			metrics.RecordFailover(true)
			return &FailoverResult{Content: content, EndpointUsed: ep.Name, Attempts: attempts}, nil
		}

		r.tracker.RecordFailure(ep.Name)
		metrics.RecordProxyHealthScore(ep.Name, r.tracker.Score(ep.Name))
		r.preferred.clear(host, ep.Name)
		lastErr = err

		r.logger.Warn("proxy attempt failed",
			slog.String("endpoint", ep.Name),
			slog.String("target", target),
			slog.Duration("duration", elapsed),
			slog.Any("error", err))

		// A cancelled caller context ends the chain; remaining endpoints
		// would fail the same way.
		if ctx.Err() != nil {
			break
		}
	}

	metrics.RecordFailover(false)
	return nil, fmt.Errorf("%w: last failure: %v", entity.ErrAllProvidersFailed, lastErr)
}
