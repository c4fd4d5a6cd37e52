// Package load implements the progressive batch loader: it orchestrates feed
// acquisition across all configured sources, serving cached articles
// immediately where possible and refreshing in fixed-size concurrent batches
// ordered by priority and recorded feed health.
package load

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"feedgate/internal/cache"
	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/pipeline"
	"feedgate/internal/infra/store"
	"feedgate/internal/observability/logging"
	"feedgate/internal/observability/metrics"
)

// ErrNoSources indicates a load was requested with no configured feeds.
var ErrNoSources = errors.New("no feed sources configured")

// Fetcher acquires one feed. Implemented by pipeline.Pipeline.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, opts pipeline.Options) (*pipeline.Result, error)
}

// Config holds loader pacing and batching parameters.
type Config struct {
	// BatchSize is the number of feeds fetched concurrently per batch.
	// Default: 8
	BatchSize int

	// FeedTimeout bounds one feed's acquisition across all tiers.
	// Default: 6s
	FeedTimeout time.Duration

	// InterBatchDelay is the pause between batches so shared proxies are
	// not hammered by back-to-back bursts. Default: 500ms
	InterBatchDelay time.Duration

	// ProblemWindow is how far back a recorded failure marks a feed as
	// problematic for batch ordering. Default: 7 days
	ProblemWindow time.Duration
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:       8,
		FeedTimeout:     6 * time.Second,
		InterBatchDelay: 500 * time.Millisecond,
		ProblemWindow:   7 * 24 * time.Hour,
	}
}

// feedResult is one feed's settled outcome, keyed by feed URL in the result
// map. Results are never stored by batch ordinal: a slow feed settling after
// a fast one must land in its own slot.
type feedResult struct {
	articles []entity.Article
	title    string
	err      error
}

// Loader orchestrates progressive loading across the configured sources.
// Constructed once at startup; all exported methods are safe for concurrent
// use.
type Loader struct {
	cfg     Config
	fetcher Fetcher
	cache   *cache.SmartCache
	history *history
	logger  *slog.Logger
	clock   func() time.Time

	mu       sync.Mutex
	sources  []entity.FeedSource
	state    State
	articles []entity.Article
	results  map[string]feedResult
	cancel   context.CancelFunc
}

// NewLoader creates a Loader over the given sources. The snapshot store
// persists the rolling error history; nil disables that.
func NewLoader(cfg Config, fetcher Fetcher, smartCache *cache.SmartCache, snaps *store.SnapshotStore, sources []entity.FeedSource, logger *slog.Logger) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}
	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = 6 * time.Second
	}
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = 500 * time.Millisecond
	}
	if cfg.ProblemWindow <= 0 {
		cfg.ProblemWindow = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   smartCache,
		history: newHistory(snaps, logger),
		logger:  logger,
		clock:   time.Now,
		sources: sources,
		state:   State{Status: StatusIdle},
		results: make(map[string]feedResult),
	}
}

// State returns the current loading state snapshot.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// Articles returns the current merged article list, newest first.
func (l *Loader) Articles() []entity.Article {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]entity.Article, len(l.articles))
	copy(out, l.articles)
	return out
}

// CancelLoading aborts the in-flight load, if any. In-flight fetches settle
// as failures without crossing the batch boundary.
func (l *Loader) CancelLoading() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Load runs a full progressive load: cached articles are published
// immediately when allowed, then every source is refreshed in ordered
// batches. One feed's failure never aborts its batch or the run.
func (l *Loader) Load(ctx context.Context, forceRefresh bool, priorityCategoryID string) error {
	l.mu.Lock()
	sources := l.sources
	l.mu.Unlock()
	if len(sources) == 0 {
		return ErrNoSources
	}

	runID := uuid.NewString()
	logger := logging.WithRunID(l.logger, runID)
	start := l.clock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	background := !forceRefresh && l.publishCached(sources)

	l.mu.Lock()
	l.cancel = cancel
	l.results = make(map[string]feedResult)
	l.state = State{
		Status:              StatusLoading,
		TotalCount:          len(sources),
		IsBackgroundRefresh: background,
	}
	l.mu.Unlock()

	ordered := l.partition(sources, priorityCategoryID)
	priorityTotal := 0
	for _, src := range ordered {
		if priorityCategoryID != "" && src.CategoryID == priorityCategoryID {
			priorityTotal++
		}
	}

	logger.Info("load started",
		slog.Int("sources", len(ordered)),
		slog.Bool("force_refresh", forceRefresh),
		slog.Bool("background", background),
		slog.String("priority_category", priorityCategoryID))

	l.runBatches(runCtx, logger, ordered, forceRefresh, priorityCategoryID, priorityTotal)
	l.finish(logger, start)
	return nil
}

// RetryFailedFeeds re-fetches every source that failed in the last run.
func (l *Loader) RetryFailedFeeds(ctx context.Context) error {
	l.mu.Lock()
	urls := make([]string, 0, len(l.state.Errors))
	for _, fe := range l.state.Errors {
		urls = append(urls, fe.URL)
	}
	l.mu.Unlock()
	return l.RetrySelectedFeeds(ctx, urls)
}

// RetrySelectedFeeds re-fetches a subset of sources without re-partitioning,
// merging their results into the existing article state.
func (l *Loader) RetrySelectedFeeds(ctx context.Context, urls []string) error {
	subset := l.sourcesFor(urls)
	if len(subset) == 0 {
		return nil
	}

	runID := uuid.NewString()
	logger := logging.WithRunID(l.logger, runID)
	start := l.clock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	retrying := make(map[string]struct{}, len(subset))
	for _, src := range subset {
		retrying[src.URL] = struct{}{}
	}

	l.mu.Lock()
	l.cancel = cancel
	for url := range retrying {
		delete(l.results, url)
	}
	// Errors for feeds outside the subset stand; their feeds are not being
	// retried.
	var kept []entity.FeedError
	for _, fe := range l.state.Errors {
		if _, ok := retrying[fe.URL]; !ok {
			kept = append(kept, fe)
		}
	}
	retained := l.settledCountLocked()
	l.state = State{
		Status:     StatusLoading,
		TotalCount: retained + len(subset),
		Progress:   progressPercent(retained, retained+len(subset)),
		Errors:     kept,
	}
	l.mu.Unlock()

	logger.Info("retry started", slog.Int("feeds", len(subset)))

	l.runBatches(runCtx, logger, subset, true, "", 0)
	l.finish(logger, start)
	return nil
}

// publishCached reads every source from the cache and, when at least one is
// fresh, publishes the merged cached view for immediate display.
func (l *Loader) publishCached(sources []entity.FeedSource) bool {
	if l.cache == nil {
		return false
	}

	anyFresh := false
	var cached []entity.Article
	for _, src := range sources {
		articles, _, ok := l.cache.Get(src.URL)
		if !ok {
			continue
		}
		if l.cache.IsFresh(src.URL) {
			anyFresh = true
		}
		cached = append(cached, articles...)
	}
	if !anyFresh {
		return false
	}

	entity.SortArticles(cached)
	l.mu.Lock()
	l.articles = cached
	l.mu.Unlock()
	return true
}

// partition orders sources into four groups: priority-category-and-healthy,
// other-healthy, priority-category-and-problematic, other-problematic.
// Problematic feeds go last so a run surfaces reliable content first.
func (l *Loader) partition(sources []entity.FeedSource, priorityCategoryID string) []entity.FeedSource {
	var priorityHealthy, otherHealthy, priorityProblem, otherProblem []entity.FeedSource

	for _, src := range sources {
		priority := priorityCategoryID != "" && src.CategoryID == priorityCategoryID
		problem := l.history.problematic(src.URL, l.cfg.ProblemWindow)

		switch {
		case priority && !problem:
			priorityHealthy = append(priorityHealthy, src)
		case !problem:
			otherHealthy = append(otherHealthy, src)
		case priority:
			priorityProblem = append(priorityProblem, src)
		default:
			otherProblem = append(otherProblem, src)
		}
	}

	ordered := make([]entity.FeedSource, 0, len(sources))
	ordered = append(ordered, priorityHealthy...)
	ordered = append(ordered, otherHealthy...)
	ordered = append(ordered, priorityProblem...)
	ordered = append(ordered, otherProblem...)
	return ordered
}

// runBatches processes the ordered sources in sequential fixed-size batches,
// fetching concurrently within each batch. Cancellation stops at the batch
// boundary; in-flight fetches settle as failures.
func (l *Loader) runBatches(runCtx context.Context, logger *slog.Logger, ordered []entity.FeedSource, skipCache bool, priorityCategoryID string, priorityTotal int) {
	prioritySettled := 0

	for offset := 0; offset < len(ordered); offset += l.cfg.BatchSize {
		if runCtx.Err() != nil {
			logger.Info("load cancelled at batch boundary",
				slog.Int("remaining", len(ordered)-offset))
			break
		}

		batch := ordered[offset:min(offset+l.cfg.BatchSize, len(ordered))]
		batchStart := l.clock()

		g, gctx := errgroup.WithContext(runCtx)
		for _, src := range batch {
			src := src
			g.Go(func() error {
				l.fetchOne(gctx, src, skipCache)
				return nil
			})
		}
		_ = g.Wait()

		metrics.RecordBatch(l.clock().Sub(batchStart))

		for _, src := range batch {
			if priorityCategoryID != "" && src.CategoryID == priorityCategoryID {
				prioritySettled++
			}
		}
		if priorityTotal > 0 && prioritySettled >= priorityTotal {
			l.mu.Lock()
			next := l.state.clone()
			next.PriorityComplete = true
			l.state = next
			l.mu.Unlock()
		}

		if offset+l.cfg.BatchSize < len(ordered) {
			select {
			case <-time.After(l.cfg.InterBatchDelay):
			case <-runCtx.Done():
			}
		}
	}
}

// fetchOne acquires one feed under the per-feed timeout combined with the
// run's cancellation and writes the outcome into the URL-keyed result map.
func (l *Loader) fetchOne(runCtx context.Context, src entity.FeedSource, skipCache bool) {
	feedCtx, cancel := context.WithTimeout(runCtx, l.cfg.FeedTimeout)
	defer cancel()

	result, err := l.fetcher.Fetch(feedCtx, src.URL, pipeline.Options{SkipCache: skipCache})

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.results[src.URL] = feedResult{err: err}
		l.history.failure(src.URL, entity.ClassifyError(err))

		next := l.state.clone()
		next.Errors = append(next.Errors, entity.FeedError{
			URL:       src.URL,
			Err:       err.Error(),
			Type:      entity.ClassifyError(err),
			Timestamp: l.clock(),
			FeedTitle: src.Title(""),
		})
		next.Progress = progressPercent(l.settledCountLocked(), next.TotalCount)
		l.state = next
		return
	}

	title := src.Title(result.Title)
	articles := make([]entity.Article, len(result.Articles))
	copy(articles, result.Articles)
	for i := range articles {
		articles[i].SourceTitle = title
	}

	l.results[src.URL] = feedResult{articles: articles, title: title}
	l.history.success(src.URL)

	next := l.state.clone()
	next.LoadedCount++
	next.Progress = progressPercent(l.settledCountLocked(), next.TotalCount)
	l.state = next
}

// finish merges successful results, sorts them newest first and replaces the
// article state atomically, then records the terminal status.
func (l *Loader) finish(logger *slog.Logger, start time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var merged []entity.Article
	succeeded := 0
	for _, res := range l.results {
		if res.err != nil {
			continue
		}
		succeeded++
		merged = append(merged, res.articles...)
	}
	entity.SortArticles(merged)
	l.articles = merged

	next := l.state.clone()
	if succeeded == 0 && len(next.Errors) > 0 {
		next.Status = StatusError
	} else {
		next.Status = StatusSuccess
	}
	next.IsBackgroundRefresh = false
	l.state = next
	l.cancel = nil

	duration := l.clock().Sub(start)
	metrics.RecordLoadRun(duration, len(merged))
	logger.Info("load finished",
		slog.String("status", string(next.Status)),
		slog.Int("articles", len(merged)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", len(next.Errors)),
		slog.Duration("duration", duration))
}

// sourcesFor maps URLs back to their configured sources, preserving the
// loader's source order and dropping unknown URLs.
func (l *Loader) sourcesFor(urls []string) []entity.FeedSource {
	want := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		want[u] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var subset []entity.FeedSource
	for _, src := range l.sources {
		if _, ok := want[src.URL]; ok {
			subset = append(subset, src)
		}
	}
	return subset
}

// settledCountLocked counts results recorded so far. Caller holds l.mu.
func (l *Loader) settledCountLocked() int {
	return len(l.results)
}

func progressPercent(settled, total int) int {
	if total <= 0 {
		return 0
	}
	return settled * 100 / total
}
