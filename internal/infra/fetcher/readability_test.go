package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() ContentFetchConfig {
	cfg := DefaultConfig()
	cfg.DenyPrivateIPs = false // httptest listens on loopback
	cfg.Timeout = 5 * time.Second
	return cfg
}

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Understanding Raft</title></head>
<body>
<article>
<h1>Understanding Raft</h1>
<p>Raft is a consensus algorithm designed to be understandable. It separates
leader election, log replication and safety, and it enforces a stronger degree
of coherency between servers than Paxos does in practice.</p>
<p>Each server is in one of three states: leader, follower, or candidate. In
normal operation there is exactly one leader and all of the other servers are
followers. Followers are passive and issue no requests of their own.</p>
</article>
</body>
</html>`

func TestReadabilityFetcher_ExtractsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "feedgate/") {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		fmt.Fprint(w, articleHTML)
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())
	content, err := f.FetchContent(context.Background(), server.URL+"/raft")
	if err != nil {
		t.Fatalf("FetchContent failed: %v", err)
	}
	if !strings.Contains(content, "consensus algorithm") {
		t.Errorf("extracted content missing article text: %q", content)
	}
	if strings.Contains(content, "<p>") {
		t.Errorf("extracted content contains raw HTML: %q", content)
	}
}

func TestReadabilityFetcher_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())
	if _, err := f.FetchContent(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestReadabilityFetcher_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		fmt.Fprint(w, strings.Repeat("x", 4096))
		fmt.Fprint(w, "</body></html>")
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodySize = 1024
	f := NewReadabilityFetcher(cfg)
	_, err := f.FetchContent(context.Background(), server.URL)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestReadabilityFetcher_TooManyRedirects(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRedirects = 2
	f := NewReadabilityFetcher(cfg)
	_, err := f.FetchContent(context.Background(), server.URL+"/a")
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestReadabilityFetcher_RejectsInvalidURLBeforeRequest(t *testing.T) {
	f := NewReadabilityFetcher(testConfig())
	_, err := f.FetchContent(context.Background(), "ftp://example.com/file")
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestLoadConfigFromEnv_FallsBackOnInvalid(t *testing.T) {
	t.Setenv("CONTENT_FETCH_THRESHOLD", "not-a-number")
	t.Setenv("CONTENT_FETCH_TIMEOUT", "15s")

	cfg := LoadConfigFromEnv(discardLogger())
	if cfg.Threshold != DefaultConfig().Threshold {
		t.Errorf("Threshold = %d, want default %d", cfg.Threshold, DefaultConfig().Threshold)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout)
	}
}
