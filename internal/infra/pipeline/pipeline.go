// Package pipeline implements the multi-tier feed acquisition pipeline:
// cache consultation, direct fetch with autodiscovery, JSON conversion
// providers, and raw CORS relays as the last tier, with sanitization and
// write-through caching on every successful path.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"feedgate/internal/cache"
	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/fetcher"
	"feedgate/internal/infra/proxy"
	"feedgate/internal/observability/metrics"
	"feedgate/internal/resilience/circuitbreaker"
	"feedgate/internal/resilience/retry"
)

// ContentFetcher fetches the full article page when the syndicated
// description is too short. Implemented by fetcher.ReadabilityFetcher.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// Config holds pipeline-level settings.
type Config struct {
	// MaxResponseBytes caps feed response bodies. Default: 10MB
	MaxResponseBytes int64

	// DenyPrivateIPs blocks direct fetches of URLs resolving to private
	// addresses. Always true in production.
	DenyPrivateIPs bool

	// ContentFetch controls optional full-article content enhancement.
	ContentFetch fetcher.ContentFetchConfig
}

// DefaultConfig returns production pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxResponseBytes: 10 << 20,
		DenyPrivateIPs:   true,
		ContentFetch:     fetcher.DefaultConfig(),
	}
}

// Options controls a single Fetch call.
type Options struct {
	// Timeout bounds the whole acquisition across all tiers. Zero means
	// the caller's context is the only bound.
	Timeout time.Duration

	// SkipCache bypasses the cache read (forced refresh). The successful
	// result is still written through.
	SkipCache bool
}

// Pipeline acquires a feed through up to four tiers: cache, direct fetch,
// JSON conversion providers, raw CORS relays. Constructed once at startup
// and shared; safe for concurrent use.
type Pipeline struct {
	cfg       Config
	cache     *cache.SmartCache
	registry  *proxy.Registry
	providers []*Provider
	content   ContentFetcher
	sanitizer *Sanitizer
	client    *http.Client
	logger    *slog.Logger
	clock     func() time.Time

	directBreaker *circuitbreaker.CircuitBreaker
	directRetry   retry.Config
}

// New creates a Pipeline. contentFetcher may be nil to disable content
// enhancement regardless of configuration.
func New(cfg Config, smartCache *cache.SmartCache, registry *proxy.Registry, providers []*Provider, contentFetcher ContentFetcher, client *http.Client, logger *slog.Logger) *Pipeline {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 10 << 20
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	for _, p := range providers {
		p.init()
	}

	return &Pipeline{
		cfg:           cfg,
		cache:         smartCache,
		registry:      registry,
		providers:     providers,
		content:       contentFetcher,
		sanitizer:     NewSanitizer(),
		client:        client,
		logger:        logger,
		clock:         time.Now,
		directBreaker: circuitbreaker.New(circuitbreaker.DirectFetchConfig()),
		directRetry:   retry.DirectFetchConfig(),
	}
}

// SetClock overrides the time source for tests.
func (p *Pipeline) SetClock(clock func() time.Time) {
	p.clock = clock
}

// Fetch acquires the feed at feedURL. A fresh cache entry short-circuits
// the network tiers entirely; otherwise each tier is tried in order and the
// first success is sanitized, written through to the cache and returned.
// Only exhaustion of every tier surfaces an error.
func (p *Pipeline) Fetch(ctx context.Context, feedURL string, opts Options) (*Result, error) {
	if !opts.SkipCache && p.cache.IsFresh(feedURL) {
		if articles, title, ok := p.cache.Get(feedURL); ok {
			metrics.RecordFeedFetch("cache")
			return &Result{Title: title, Articles: articles}, nil
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, tier, err := p.acquire(ctx, feedURL)
	if err != nil {
		metrics.RecordFeedFetch("failure")
		return nil, err
	}

	for i := range result.Articles {
		p.sanitizer.Article(&result.Articles[i])
	}
	result.Title = p.sanitizer.Text(result.Title)

	p.enhanceArticles(ctx, result.Articles)

	p.cache.Set(feedURL, result.Articles, result.Title)
	metrics.RecordFeedFetch(tier)

	p.logger.Info("feed acquired",
		slog.String("url", feedURL),
		slog.String("tier", tier),
		slog.Int("articles", len(result.Articles)))
	return result, nil
}

// acquire walks the network tiers in order and returns the first success
// along with the tier label used for logs and metrics.
func (p *Pipeline) acquire(ctx context.Context, feedURL string) (*Result, string, error) {
	result, directErr := p.tryDirect(ctx, feedURL)
	if directErr == nil {
		return result, "direct", nil
	}
	p.logger.Debug("direct fetch failed, trying providers",
		slog.String("url", feedURL),
		slog.Any("error", directErr))

	lastErr := directErr
	for _, provider := range p.providers {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("%w: %w", entity.ErrAllProvidersFailed, ctx.Err())
		}

		result, err := provider.fetch(ctx, p.client, feedURL, p.cfg.MaxResponseBytes, p.clock)
		if err == nil {
			return result, "provider:" + provider.Name, nil
		}
		lastErr = err
		p.logger.Debug("provider failed",
			slog.String("url", feedURL),
			slog.String("provider", provider.Name),
			slog.Any("error", err))
	}

	failover, err := p.registry.Failover(ctx, feedURL)
	if err == nil {
		result, parseErr := parseFeedXML(failover.Content, p.clock)
		if parseErr == nil {
			return result, "relay:" + failover.EndpointUsed, nil
		}
		lastErr = parseErr
	} else {
		lastErr = err
	}

	return nil, "", fmt.Errorf("%w: %w", entity.ErrAllProvidersFailed, lastErr)
}

// tryDirect fetches the feed URL without any intermediary. An HTML response
// triggers one autodiscovery pass before giving up on the direct tier.
func (p *Pipeline) tryDirect(ctx context.Context, feedURL string) (*Result, error) {
	if err := fetcher.ValidateURL(feedURL, p.cfg.DenyPrivateIPs); err != nil {
		return nil, err
	}

	var result *Result
	err := retry.WithBackoff(ctx, p.directRetry, func() error {
		out, err := p.directBreaker.Execute(func() (interface{}, error) {
			return p.doDirect(ctx, feedURL, true)
		})
		if err != nil {
			return err
		}
		result = out.(*Result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// doDirect performs one direct fetch attempt. allowDiscovery limits the
// autodiscovery recursion to a single hop.
func (p *Pipeline) doDirect(ctx context.Context, feedURL string, allowDiscovery bool) (*Result, error) {
	body, err := p.getRaw(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if looksLikeHTML(body) {
		if !allowDiscovery {
			return nil, fmt.Errorf("%w: HTML page instead of feed", entity.ErrSecurityValidation)
		}
		discovered, ok := discoverFeedURL(body, feedURL)
		if !ok {
			return nil, fmt.Errorf("%w: HTML page with no feed link", entity.ErrSecurityValidation)
		}
		if err := fetcher.ValidateURL(discovered, p.cfg.DenyPrivateIPs); err != nil {
			return nil, err
		}
		p.logger.Info("feed URL discovered from HTML page",
			slog.String("page", feedURL),
			slog.String("feed", discovered))
		return p.doDirect(ctx, discovered, false)
	}

	return parseFeedXML(body, p.clock)
}

// getRaw performs a bounded GET of the URL and returns the body.
func (p *Pipeline) getRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "feedgate/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("direct fetch failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("%w: HTTP %d", entity.ErrNotFound, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > p.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", entity.ErrSecurityValidation, p.cfg.MaxResponseBytes)
	}
	return body, nil
}

// enhanceContentConcurrency caps parallel article-page fetches per feed.
const enhanceContentConcurrency = 4

// enhanceArticles fetches full article pages for items whose description is
// below the configured threshold. Best effort: enhancement failures are
// logged and the syndicated description stands.
func (p *Pipeline) enhanceArticles(ctx context.Context, articles []entity.Article) {
	if p.content == nil || !p.cfg.ContentFetch.Enabled {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enhanceContentConcurrency)

	for i := range articles {
		article := &articles[i]
		if article.Content != "" || article.Link == "" {
			continue
		}
		if len(article.Description) >= p.cfg.ContentFetch.Threshold {
			continue
		}

		g.Go(func() error {
			content, err := p.content.FetchContent(gctx, article.Link)
			if err != nil {
				p.logger.Debug("content enhancement failed",
					slog.String("link", article.Link),
					slog.Any("error", err))
				return nil
			}
			article.Content = p.sanitizer.Text(content)
			return nil
		})
	}

	_ = g.Wait()
}
