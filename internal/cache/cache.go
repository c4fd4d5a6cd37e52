// Package cache implements the time-aware feed cache with
// stale-while-revalidate semantics and bounded LRU eviction.
//
// Entries age through three buckets: fresh (age <= TTL), stale-usable
// (TTL < age <= SWR window) and expired (age > SWR window). Stale entries are
// still returned so the caller can display them while a refresh runs; expired
// entries are deleted on sight. Every mutating operation writes a snapshot
// through to the durable store, and the snapshot is reloaded at startup.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
	"feedgate/internal/observability/metrics"
)

// Config holds cache sizing and freshness parameters.
type Config struct {
	// TTL is the freshness window. Default: 15m
	TTL time.Duration

	// SWRWindow is the absolute expiry: stale entries remain usable until
	// this age. Must be >= TTL. Default: 2h
	SWRWindow time.Duration

	// MaxEntries bounds the cache; inserting beyond it evicts the least
	// recently accessed entry. Default: 100
	MaxEntries int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:        15 * time.Minute,
		SWRWindow:  2 * time.Hour,
		MaxEntries: 100,
	}
}

type cacheEntry struct {
	Articles       []entity.Article
	Title          string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int
}

// SmartCache is the feed cache, keyed by feed URL.
// At most one entry exists per key; Set fully replaces the prior entry.
// Safe for concurrent use.
type SmartCache struct {
	cfg    Config
	logger *slog.Logger
	snaps  *store.SnapshotStore
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// New creates a SmartCache backed by the given snapshot store and reloads
// any persisted snapshot, dropping entries already past the SWR window.
// A nil store disables persistence.
func New(cfg Config, snaps *store.SnapshotStore, logger *slog.Logger) *SmartCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.SWRWindow < cfg.TTL {
		cfg.SWRWindow = 2 * time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &SmartCache{
		cfg:     cfg,
		logger:  logger,
		snaps:   snaps,
		clock:   time.Now,
		entries: make(map[string]*cacheEntry),
	}
	c.restore()
	return c
}

// SetClock replaces the time source. Test hook.
func (c *SmartCache) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Get returns the cached articles and title for a feed URL when the entry is
// still within the SWR window. Entries past the window are deleted and a miss
// is reported. Access bumps the LRU position.
func (c *SmartCache) Get(feedURL string) ([]entity.Article, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[feedURL]
	if !ok {
		metrics.RecordCacheLookup("miss")
		return nil, "", false
	}

	age := c.clock().Sub(e.CreatedAt)
	if age > c.cfg.SWRWindow {
		delete(c.entries, feedURL)
		metrics.RecordCacheLookup("miss")
		metrics.RecordCacheEviction("expired", 1)
		c.persistLocked()
		return nil, "", false
	}

	e.LastAccessedAt = c.clock()
	e.AccessCount++

	if age <= c.cfg.TTL {
		metrics.RecordCacheLookup("fresh")
	} else {
		metrics.RecordCacheLookup("stale")
	}

	articles := make([]entity.Article, len(e.Articles))
	copy(articles, e.Articles)
	return articles, e.Title, true
}

// IsFresh reports whether the entry for feedURL exists and is within the TTL.
func (c *SmartCache) IsFresh(feedURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[feedURL]
	if !ok {
		return false
	}
	return c.clock().Sub(e.CreatedAt) <= c.cfg.TTL
}

// IsStale reports whether the entry for feedURL exists, is past the TTL, and
// is still within the SWR window.
func (c *SmartCache) IsStale(feedURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[feedURL]
	if !ok {
		return false
	}
	age := c.clock().Sub(e.CreatedAt)
	return age > c.cfg.TTL && age <= c.cfg.SWRWindow
}

// Set stores articles for a feed URL, replacing any existing entry.
// When the cache is at capacity and the key is new, the least recently
// accessed entry is evicted first.
func (c *SmartCache) Set(feedURL string, articles []entity.Article, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[feedURL]; !exists && len(c.entries) >= c.cfg.MaxEntries {
		c.evictLRULocked()
	}

	now := c.clock()
	stored := make([]entity.Article, len(articles))
	copy(stored, articles)

	c.entries[feedURL] = &cacheEntry{
		Articles:       stored,
		Title:          title,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	metrics.UpdateCacheEntries(len(c.entries))
	c.persistLocked()
}

// Delete removes the entry for a feed URL.
func (c *SmartCache) Delete(feedURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[feedURL]; !ok {
		return
	}
	delete(c.entries, feedURL)
	metrics.UpdateCacheEntries(len(c.entries))
	c.persistLocked()
}

// Cleanup purges every entry older than the SWR window and returns the number
// evicted. Intended to run on a periodic sweep.
func (c *SmartCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	evicted := 0
	for url, e := range c.entries {
		if now.Sub(e.CreatedAt) > c.cfg.SWRWindow {
			delete(c.entries, url)
			evicted++
		}
	}

	if evicted > 0 {
		metrics.RecordCacheEviction("expired", evicted)
		metrics.UpdateCacheEntries(len(c.entries))
		c.persistLocked()
		c.logger.Info("cache cleanup evicted expired entries",
			slog.Int("evicted", evicted),
			slog.Int("remaining", len(c.entries)))
	}
	return evicted
}

// Len returns the current entry count.
func (c *SmartCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLRULocked removes the single least-recently-accessed entry.
// Callers hold c.mu.
func (c *SmartCache) evictLRULocked() {
	var oldestURL string
	var oldestAt time.Time
	first := true
	for url, e := range c.entries {
		if first || e.LastAccessedAt.Before(oldestAt) {
			oldestURL = url
			oldestAt = e.LastAccessedAt
			first = false
		}
	}
	if oldestURL == "" {
		return
	}
	delete(c.entries, oldestURL)
	metrics.RecordCacheEviction("lru", 1)
	c.logger.Debug("evicted least recently accessed entry",
		slog.String("feed_url", oldestURL))
}
