package cache

import (
	"log/slog"
	"time"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
)

const (
	snapshotKey     = "feed-cache"
	snapshotVersion = 1
)

// snapshotEntry is the persisted form of one cache entry. Date fields use
// RFC 3339 via time.Time's JSON encoding.
type snapshotEntry struct {
	Articles     []entity.Article `json:"articles"`
	Timestamp    time.Time        `json:"timestamp"`
	Title        string           `json:"title"`
	AccessCount  int              `json:"accessCount"`
	LastAccessed time.Time        `json:"lastAccessed"`
}

// snapshotPair keeps the [feedUrl, entry] pair shape of the persisted format.
type snapshotPair struct {
	FeedURL string        `json:"0"`
	Entry   snapshotEntry `json:"1"`
}

type snapshot struct {
	Version   int            `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Entries   []snapshotPair `json:"entries"`
}

// persistLocked serializes the cache into the snapshot store. Persistence
// failures are logged and swallowed: a broken disk must not break the cache.
// Callers hold c.mu.
func (c *SmartCache) persistLocked() {
	if c.snaps == nil {
		return
	}

	snap := snapshot{
		Version:   snapshotVersion,
		Timestamp: c.clock(),
		Entries:   make([]snapshotPair, 0, len(c.entries)),
	}
	for url, e := range c.entries {
		snap.Entries = append(snap.Entries, snapshotPair{
			FeedURL: url,
			Entry: snapshotEntry{
				Articles:     e.Articles,
				Timestamp:    e.CreatedAt,
				Title:        e.Title,
				AccessCount:  e.AccessCount,
				LastAccessed: e.LastAccessedAt,
			},
		})
	}

	if err := c.snaps.Put(store.BucketCache, snapshotKey, snap); err != nil {
		c.logger.Warn("failed to persist cache snapshot", slog.Any("error", err))
	}
}

// restore reloads the persisted snapshot, dropping entries already past the
// SWR window. Corrupt or missing snapshots leave the cache empty.
func (c *SmartCache) restore() {
	if c.snaps == nil {
		return
	}

	var snap snapshot
	ok, err := c.snaps.Get(store.BucketCache, snapshotKey, &snap)
	if err != nil {
		c.logger.Warn("failed to load cache snapshot", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	if snap.Version != snapshotVersion {
		c.logger.Warn("discarding cache snapshot with unknown version",
			slog.Int("version", snap.Version))
		return
	}

	now := c.clock()
	restored := 0
	for _, pair := range snap.Entries {
		if pair.FeedURL == "" {
			continue
		}
		if now.Sub(pair.Entry.Timestamp) > c.cfg.SWRWindow {
			continue
		}
		c.entries[pair.FeedURL] = &cacheEntry{
			Articles:       pair.Entry.Articles,
			Title:          pair.Entry.Title,
			CreatedAt:      pair.Entry.Timestamp,
			LastAccessedAt: pair.Entry.LastAccessed,
			AccessCount:    pair.Entry.AccessCount,
		}
		restored++
	}

	if restored > 0 {
		c.logger.Info("restored cache snapshot",
			slog.Int("restored", restored),
			slog.Int("skipped", len(snap.Entries)-restored))
	}
}
