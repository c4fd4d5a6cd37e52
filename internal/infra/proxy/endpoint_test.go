package proxy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRequestURL_AppendsEncodedTarget(t *testing.T) {
	ep := Endpoint{
		Name:        "allorigins-raw",
		URLTemplate: "https://api.allorigins.win/raw?url=",
	}

	got := ep.RequestURL("https://a.example/rss.xml?type=atom&lang=en")
	want := "https://api.allorigins.win/raw?url=https%3A%2F%2Fa.example%2Frss.xml%3Ftype%3Datom%26lang%3Den"
	if got != want {
		t.Errorf("RequestURL = %q, want %q", got, want)
	}
}

func TestRequestURL_APIKeyOnlyWhenConfigured(t *testing.T) {
	ep := Endpoint{
		Name:        "rss2json",
		URLTemplate: "https://api.rss2json.com/v1/api.json?rss_url=",
		APIKeyParam: "api_key",
		APIKeyEnv:   "FG_TEST_RSS2JSON_KEY",
	}

	// Anonymous fallback without key.
	os.Unsetenv("FG_TEST_RSS2JSON_KEY")
	got := ep.RequestURL("https://a.example/rss.xml")
	if want := "https://api.rss2json.com/v1/api.json?rss_url=https%3A%2F%2Fa.example%2Frss.xml"; got != want {
		t.Errorf("anonymous RequestURL = %q, want %q", got, want)
	}

	// Keyed access in query-parameter form.
	t.Setenv("FG_TEST_RSS2JSON_KEY", "sekret")
	got = ep.RequestURL("https://a.example/rss.xml")
	if want := "https://api.rss2json.com/v1/api.json?rss_url=https%3A%2F%2Fa.example%2Frss.xml&api_key=sekret"; got != want {
		t.Errorf("keyed RequestURL = %q, want %q", got, want)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Endpoints) == 0 {
		t.Fatal("default config should have endpoints")
	}
	if cfg.PreferredTTL != 6*time.Hour {
		t.Errorf("default preferred TTL = %v, want 6h", cfg.PreferredTTL)
	}
	if cfg.MaxResponseBytes != 10<<20 {
		t.Errorf("default max response bytes = %d, want %d", cfg.MaxResponseBytes, 10<<20)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.yaml")
	content := `
endpoints:
  - name: myrelay
    url_template: "https://relay.example/fetch?url="
    timeout: 5s
    priority: 1
    enabled: true
    headers:
      X-Relay-Client: feedgate
preferred_ttl: 2h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(cfg.Endpoints))
	}
	ep := cfg.Endpoints[0]
	if ep.Name != "myrelay" || ep.Timeout != 5*time.Second {
		t.Errorf("unexpected endpoint: %+v", ep)
	}
	if ep.Headers["X-Relay-Client"] != "feedgate" {
		t.Error("expected custom header to be loaded")
	}
	if cfg.PreferredTTL != 2*time.Hour {
		t.Errorf("preferred TTL = %v, want 2h", cfg.PreferredTTL)
	}
	// Unset registry-level values fall back to defaults.
	if cfg.RequestsPerSecond != 4 {
		t.Errorf("requests per second = %v, want default 4", cfg.RequestsPerSecond)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.yaml")
	if err := os.WriteFile(path, []byte("endpoints:\n  - name: broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for endpoint without url_template")
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
