// Package proxy implements the failover-capable proxy registry: configured
// relay endpoints with per-endpoint health statistics, candidate ordering,
// response validation, and a remembered preferred endpoint per target host.
package proxy

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Endpoint is one configured relay. Immutable after load except Enabled,
// which operators may toggle via configuration.
type Endpoint struct {
	// Name identifies the endpoint in logs, metrics and health records.
	Name string `yaml:"name"`

	// URLTemplate is the prefix the percent-encoded target URL is appended to.
	URLTemplate string `yaml:"url_template"`

	// Headers are attached to every request through this endpoint.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout bounds a single request through this endpoint.
	Timeout time.Duration `yaml:"timeout"`

	// Priority breaks health-score ties; lower is tried first.
	Priority int `yaml:"priority"`

	// Enabled excludes the endpoint from candidacy when false.
	Enabled bool `yaml:"enabled"`

	// APIKeyParam names the query parameter carrying the API key, for
	// providers that support keyed access. When the key env variable is
	// unset the endpoint still works in rate-limited anonymous mode.
	APIKeyParam string `yaml:"api_key_param,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// RequestURL builds the outbound request URL for a target feed URL:
// the template plus the percent-encoded target, plus the API key in query
// form when one is configured.
func (e Endpoint) RequestURL(target string) string {
	u := e.URLTemplate + url.QueryEscape(target)

	if e.APIKeyParam != "" && e.APIKeyEnv != "" {
		if key := os.Getenv(e.APIKeyEnv); key != "" {
			sep := "?"
			if strings.Contains(u, "?") {
				sep = "&"
			}
			u += sep + e.APIKeyParam + "=" + url.QueryEscape(key)
		}
	}
	return u
}

// RegistryConfig holds the endpoint list and registry-level settings.
type RegistryConfig struct {
	// Endpoints is the configured relay list.
	Endpoints []Endpoint `yaml:"endpoints"`

	// MaxResponseBytes caps the accepted response body size. Default: 10MB
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// PreferredTTL is how long a remembered preferred endpoint per target
	// host stays valid. Default: 6h
	PreferredTTL time.Duration `yaml:"preferred_ttl"`

	// RequestsPerSecond paces outbound requests across all endpoints so a
	// burst of batches does not hammer shared public relays. Default: 4
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig returns the built-in relay set. These are public CORS
// relays that return the raw upstream body.
func DefaultConfig() RegistryConfig {
	return RegistryConfig{
		Endpoints: []Endpoint{
			{
				Name:        "allorigins-raw",
				URLTemplate: "https://api.allorigins.win/raw?url=",
				Timeout:     8 * time.Second,
				Priority:    1,
				Enabled:     true,
			},
			{
				Name:        "corsproxy-io",
				URLTemplate: "https://corsproxy.io/?url=",
				Timeout:     8 * time.Second,
				Priority:    2,
				Enabled:     true,
			},
			{
				Name:        "codetabs",
				URLTemplate: "https://api.codetabs.com/v1/proxy?quest=",
				Timeout:     10 * time.Second,
				Priority:    3,
				Enabled:     true,
			},
		},
		MaxResponseBytes:  10 << 20,
		PreferredTTL:      6 * time.Hour,
		RequestsPerSecond: 4,
	}
}

// LoadConfig reads a RegistryConfig from a YAML file, filling defaults for
// unset registry-level settings. An empty path returns DefaultConfig.
func LoadConfig(path string) (RegistryConfig, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("read proxy config: %w", err)
	}

	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RegistryConfig{}, fmt.Errorf("parse proxy config: %w", err)
	}

	if len(cfg.Endpoints) == 0 {
		return RegistryConfig{}, fmt.Errorf("proxy config %q has no endpoints", path)
	}
	for i, ep := range cfg.Endpoints {
		if ep.Name == "" || ep.URLTemplate == "" {
			return RegistryConfig{}, fmt.Errorf("endpoint %d missing name or url_template", i)
		}
		if ep.Timeout <= 0 {
			cfg.Endpoints[i].Timeout = 8 * time.Second
		}
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = 10 << 20
	}
	if cfg.PreferredTTL <= 0 {
		cfg.PreferredTTL = 6 * time.Hour
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	return cfg, nil
}
