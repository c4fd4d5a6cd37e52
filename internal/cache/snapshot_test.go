package cache

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/store"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	snaps, err := store.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer snaps.Close()

	cfg := Config{TTL: 10 * time.Minute, SWRWindow: time.Hour, MaxEntries: 10}
	c1 := New(cfg, snaps, nil)

	const url = "https://a.example/rss.xml"
	in := []entity.Article{
		{
			Title:       "Dated entry",
			Link:        url + "#1",
			PublishedAt: time.Date(2026, 7, 30, 8, 30, 15, 0, time.UTC),
			Description: "with second precision",
			Author:      "someone",
			Categories:  []string{"go", "feeds"},
			SourceTitle: "Example Feed",
		},
	}
	c1.Set(url, in, "Example Feed")

	// Fresh process: a new cache over the same store restores the entry.
	c2 := New(cfg, snaps, nil)

	got, title, ok := c2.Get(url)
	if !ok {
		t.Fatal("expected restored entry")
	}
	if title != "Example Feed" {
		t.Errorf("expected restored title, got %q", title)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("restored articles mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_ExpiredEntriesFilteredOnRestore(t *testing.T) {
	snaps, _ := store.Open("")
	defer snaps.Close()

	cfg := Config{TTL: 10 * time.Minute, SWRWindow: time.Hour, MaxEntries: 10}

	past := time.Now().Add(-3 * time.Hour)
	c1 := New(cfg, snaps, nil)
	c1.SetClock(func() time.Time { return past })
	c1.Set("https://old.example/rss.xml", testArticles("old"), "Old Feed")

	c2 := New(cfg, snaps, nil)

	if c2.Len() != 0 {
		t.Errorf("expected expired snapshot entry to be filtered, got %d entries", c2.Len())
	}
}

func TestSnapshot_CorruptSnapshotIgnored(t *testing.T) {
	snaps, _ := store.Open("")
	defer snaps.Close()

	if err := snaps.PutRaw(store.BucketCache, snapshotKey, []byte("][ not json")); err != nil {
		t.Fatalf("put raw: %v", err)
	}

	// Must not panic or fail; cache simply starts empty.
	c := New(DefaultConfig(), snaps, nil)
	if c.Len() != 0 {
		t.Errorf("expected empty cache after corrupt snapshot, got %d", c.Len())
	}

	// And future writes still work.
	c.Set("https://a.example/rss.xml", testArticles("a"), "A")
	if c.Len() != 1 {
		t.Error("expected cache to accept writes after corrupt snapshot")
	}
}

func TestSnapshot_NilStoreDisablesPersistence(t *testing.T) {
	c := New(DefaultConfig(), nil, nil)

	c.Set("https://a.example/rss.xml", testArticles("a"), "A")
	if c.Len() != 1 {
		t.Error("cache without store should still hold entries")
	}
}
