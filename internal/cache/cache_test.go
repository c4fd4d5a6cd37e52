package cache

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
)

func testArticles(link string) []entity.Article {
	return []entity.Article{
		{
			Title:       "Entry one",
			Link:        link,
			PublishedAt: time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC),
			Description: "first",
			SourceTitle: "Example Feed",
		},
		{
			Title:       "Entry two",
			Link:        link + "?p=2",
			PublishedAt: time.Date(2026, 7, 29, 8, 0, 0, 0, time.UTC),
			Description: "second",
			SourceTitle: "Example Feed",
		},
	}
}

func newTestCache(t *testing.T, cfg Config) (*SmartCache, *time.Time) {
	t.Helper()
	snaps, err := store.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { snaps.Close() })

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := New(cfg, snaps, nil)
	c.SetClock(func() time.Time { return now })
	return c, &now
}

func TestGet_FreshStaleExpired(t *testing.T) {
	cfg := Config{TTL: 10 * time.Minute, SWRWindow: time.Hour, MaxEntries: 10}
	c, now := newTestCache(t, cfg)

	const url = "https://a.example/rss.xml"
	c.Set(url, testArticles(url), "Example Feed")

	// Fresh.
	if _, _, ok := c.Get(url); !ok {
		t.Fatal("expected fresh hit")
	}
	if !c.IsFresh(url) || c.IsStale(url) {
		t.Error("entry should be fresh, not stale")
	}

	// Stale but usable.
	*now = now.Add(30 * time.Minute)
	articles, title, ok := c.Get(url)
	if !ok {
		t.Fatal("expected stale hit inside SWR window")
	}
	if title != "Example Feed" || len(articles) != 2 {
		t.Errorf("stale hit returned wrong data: title=%q len=%d", title, len(articles))
	}
	if c.IsFresh(url) || !c.IsStale(url) {
		t.Error("entry should be stale, not fresh")
	}

	// Expired: deleted on access.
	*now = now.Add(time.Hour)
	if _, _, ok := c.Get(url); ok {
		t.Fatal("expected miss past SWR window")
	}
	if c.Len() != 0 {
		t.Error("expired entry should have been deleted")
	}
}

func TestSet_Idempotent(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	const url = "https://a.example/rss.xml"
	in := testArticles(url)
	c.Set(url, in, "Example Feed")
	c.Set(url, in, "Example Feed")

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry after duplicate set, got %d", c.Len())
	}
	got, _, ok := c.Get(url)
	if !ok {
		t.Fatal("expected hit")
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("articles mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_EvictsLeastRecentlyAccessed(t *testing.T) {
	cfg := Config{TTL: time.Hour, SWRWindow: 2 * time.Hour, MaxEntries: 2}
	c, now := newTestCache(t, cfg)

	c.Set("k1", testArticles("k1"), "K1")
	*now = now.Add(time.Second)
	c.Set("k2", testArticles("k2"), "K2")
	*now = now.Add(time.Second)
	c.Set("k3", testArticles("k3"), "K3")

	if _, _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted as least recently accessed")
	}
	if _, _, ok := c.Get("k2"); !ok {
		t.Error("k2 should remain")
	}
	if _, _, ok := c.Get("k3"); !ok {
		t.Error("k3 should remain")
	}
}

func TestSet_AccessProtectsFromEviction(t *testing.T) {
	cfg := Config{TTL: time.Hour, SWRWindow: 2 * time.Hour, MaxEntries: 2}
	c, now := newTestCache(t, cfg)

	c.Set("k1", testArticles("k1"), "K1")
	*now = now.Add(time.Second)
	c.Set("k2", testArticles("k2"), "K2")

	// Touch k1 so k2 becomes the LRU entry.
	*now = now.Add(time.Second)
	c.Get("k1")

	*now = now.Add(time.Second)
	c.Set("k3", testArticles("k3"), "K3")

	if _, _, ok := c.Get("k1"); !ok {
		t.Error("recently accessed k1 should remain")
	}
	if _, _, ok := c.Get("k2"); ok {
		t.Error("k2 should have been evicted")
	}
}

func TestCleanup(t *testing.T) {
	cfg := Config{TTL: 10 * time.Minute, SWRWindow: time.Hour, MaxEntries: 10}
	c, now := newTestCache(t, cfg)

	c.Set("old", testArticles("old"), "Old")
	*now = now.Add(2 * time.Hour)
	c.Set("new", testArticles("new"), "New")

	evicted := c.Cleanup()

	if evicted != 1 {
		t.Errorf("expected 1 evicted entry, got %d", evicted)
	}
	if _, _, ok := c.Get("new"); !ok {
		t.Error("entry inside window should survive cleanup")
	}
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	c.Set("k1", testArticles("k1"), "K1")
	c.Delete("k1")

	if _, _, ok := c.Get("k1"); ok {
		t.Error("deleted entry should be gone")
	}

	// Deleting a missing key is a no-op.
	c.Delete("k1")
}
