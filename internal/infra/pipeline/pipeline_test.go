package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"feedgate/internal/cache"
	"feedgate/internal/domain/entity"
	"feedgate/internal/infra/proxy"
	"feedgate/internal/resilience/retry"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Direct Feed</title>
<item>
<title>Alpha</title>
<link>https://direct.example/alpha</link>
<pubDate>Thu, 30 Jul 2026 09:15:00 GMT</pubDate>
<description>alpha body</description>
</item>
<item>
<title>Beta</title>
<link>https://direct.example/beta</link>
<pubDate>Wed, 29 Jul 2026 18:00:00 GMT</pubDate>
<description>beta body</description>
</item>
</channel>
</rss>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline(t *testing.T, providers []*Provider, endpoints []proxy.Endpoint) (*Pipeline, *cache.SmartCache) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DenyPrivateIPs = false // httptest listens on loopback
	cfg.ContentFetch.Enabled = false

	smartCache := cache.New(cache.DefaultConfig(), nil, testLogger())

	registryCfg := proxy.DefaultConfig()
	registryCfg.Endpoints = endpoints
	registryCfg.RequestsPerSecond = 1000
	registry := proxy.NewRegistry(registryCfg, http.DefaultClient, nil, testLogger())

	p := New(cfg, smartCache, registry, providers, nil, http.DefaultClient, testLogger())
	// Keep failing-tier tests fast.
	p.directRetry = retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return p, smartCache
}

func TestFetch_DirectSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	p, smartCache := testPipeline(t, nil, nil)

	result, err := p.Fetch(context.Background(), server.URL, Options{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Direct Feed" {
		t.Errorf("Title = %q", result.Title)
	}
	if len(result.Articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(result.Articles))
	}
	if result.Articles[0].Link != "https://direct.example/alpha" {
		t.Errorf("first article = %+v", result.Articles[0])
	}

	// Written through to the cache; a second fetch must not hit the network.
	if !smartCache.IsFresh(server.URL) {
		t.Fatal("expected write-through cache entry")
	}
	if _, err := p.Fetch(context.Background(), server.URL, Options{}); err != nil {
		t.Fatalf("cached Fetch failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1 (second fetch served from cache)", got)
	}
}

func TestFetch_SkipCacheForcesNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	p, _ := testPipeline(t, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := p.Fetch(context.Background(), server.URL, Options{SkipCache: true}); err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2 with SkipCache", got)
	}
}

func TestFetch_HTMLTriggersAutodiscovery(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<!DOCTYPE html><html><head>
<link rel="alternate" type="application/rss+xml" href="%s/feed.xml">
</head><body>blog</body></html>`, server.URL)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	})

	p, _ := testPipeline(t, nil, nil)

	result, err := p.Fetch(context.Background(), server.URL, Options{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Direct Feed" {
		t.Errorf("Title = %q, autodiscovered feed not fetched", result.Title)
	}
}

func TestFetch_FailsOverToProvider(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/convert", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rss_url") == "" {
			t.Error("provider called without rss_url parameter")
		}
		fmt.Fprint(w, `{"status":"ok","feed":{"title":"Converted"},"items":[{"title":"A","pubDate":"2026-07-30 09:15:00","link":"https://x.example/a"}]}`)
	})

	provider := &Provider{
		Name:        "test-aggregator",
		Kind:        KindJSONAggregator,
		URLTemplate: server.URL + "/convert?rss_url=",
		Timeout:     2 * time.Second,
	}

	p, _ := testPipeline(t, []*Provider{provider}, nil)

	result, err := p.Fetch(context.Background(), server.URL+"/feed", Options{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Converted" {
		t.Errorf("Title = %q, want provider result", result.Title)
	}
}

func TestFetch_FallsBackToRelays(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/relay", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	})

	endpoints := []proxy.Endpoint{{
		Name:        "test-relay",
		URLTemplate: server.URL + "/relay?url=",
		Timeout:     2 * time.Second,
		Priority:    1,
		Enabled:     true,
	}}

	p, _ := testPipeline(t, nil, endpoints)

	result, err := p.Fetch(context.Background(), server.URL+"/feed", Options{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Direct Feed" {
		t.Errorf("Title = %q, want relay-fetched feed", result.Title)
	}
}

func TestFetch_AllTiersExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	provider := &Provider{
		Name:        "failing-aggregator",
		Kind:        KindJSONAggregator,
		URLTemplate: server.URL + "/convert?rss_url=",
		Timeout:     2 * time.Second,
	}

	p, _ := testPipeline(t, []*Provider{provider}, nil)

	_, err := p.Fetch(context.Background(), server.URL+"/feed", Options{})
	if !errors.Is(err, entity.ErrAllProvidersFailed) {
		t.Errorf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestFetch_SanitizesParsedFields(t *testing.T) {
	dirty := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Safe &amp; Sound</title>
<item>
<title>&lt;b&gt;Bold&lt;/b&gt; claim</title>
<link>https://direct.example/x</link>
<description>&lt;script&gt;alert(1)&lt;/script&gt;real text</description>
<pubDate>Thu, 30 Jul 2026 09:15:00 GMT</pubDate>
</item></channel></rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dirty)
	}))
	defer server.Close()

	p, _ := testPipeline(t, nil, nil)

	result, err := p.Fetch(context.Background(), server.URL, Options{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Safe & Sound" {
		t.Errorf("Title = %q", result.Title)
	}
	a := result.Articles[0]
	if a.Title != "Bold claim" {
		t.Errorf("article title = %q", a.Title)
	}
	if a.Description != "real text" {
		t.Errorf("description = %q", a.Description)
	}
}

type stubContentFetcher struct {
	content string
	calls   atomic.Int32
}

func (s *stubContentFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	s.calls.Add(1)
	return s.content, nil
}

func TestFetch_EnhancesShortDescriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	stub := &stubContentFetcher{content: "the full extracted article text"}

	cfg := DefaultConfig()
	cfg.DenyPrivateIPs = false
	cfg.ContentFetch.Enabled = true
	cfg.ContentFetch.Threshold = 100 // both sample descriptions are shorter

	smartCache := cache.New(cache.DefaultConfig(), nil, testLogger())
	registry := proxy.NewRegistry(proxy.DefaultConfig(), http.DefaultClient, nil, testLogger())
	p := New(cfg, smartCache, registry, nil, stub, http.DefaultClient, testLogger())

	result, err := p.Fetch(context.Background(), server.URL, Options{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := stub.calls.Load(); got != 2 {
		t.Errorf("content fetcher called %d times, want 2", got)
	}
	for _, a := range result.Articles {
		if a.Content != "the full extracted article text" {
			t.Errorf("article %q content = %q", a.Title, a.Content)
		}
	}
}
