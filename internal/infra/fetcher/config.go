package fetcher

import (
	"log/slog"
	"time"

	pkgconfig "feedgate/internal/pkg/config"
)

// ContentFetchConfig controls the content enhancement feature.
type ContentFetchConfig struct {
	// Enabled toggles content fetching without redeployment. Default: true
	Enabled bool

	// Threshold is the minimum description length (in characters) below
	// which the full article is fetched. Default: 500
	Threshold int

	// Timeout bounds a single article page request. Default: 10s
	Timeout time.Duration

	// MaxBodySize caps the HTML response size in bytes. Default: 10MB
	MaxBodySize int64

	// MaxRedirects caps redirect chains; each hop is SSRF-validated.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs blocks URLs resolving to private, loopback or
	// link-local addresses. Always true in production.
	DenyPrivateIPs bool
}

// DefaultConfig returns the production defaults for content fetching.
func DefaultConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        true,
		Threshold:      500,
		Timeout:        10 * time.Second,
		MaxBodySize:    10 << 20,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// LoadConfigFromEnv builds a ContentFetchConfig from environment variables,
// falling back to defaults (with warnings) for invalid values.
//
// Variables: CONTENT_FETCH_ENABLED, CONTENT_FETCH_THRESHOLD,
// CONTENT_FETCH_TIMEOUT, CONTENT_FETCH_MAX_BODY_BYTES, CONTENT_FETCH_MAX_REDIRECTS.
func LoadConfigFromEnv(logger *slog.Logger) ContentFetchConfig {
	cfg := DefaultConfig()

	results := map[string]pkgconfig.ConfigLoadResult{
		"enabled":       pkgconfig.LoadEnvBool("CONTENT_FETCH_ENABLED", cfg.Enabled),
		"threshold":     pkgconfig.LoadEnvInt("CONTENT_FETCH_THRESHOLD", cfg.Threshold, pkgconfig.ValidatePositiveInt),
		"timeout":       pkgconfig.LoadEnvDuration("CONTENT_FETCH_TIMEOUT", cfg.Timeout, pkgconfig.ValidatePositiveDuration),
		"max_body":      pkgconfig.LoadEnvInt("CONTENT_FETCH_MAX_BODY_BYTES", int(cfg.MaxBodySize), pkgconfig.ValidatePositiveInt),
		"max_redirects": pkgconfig.LoadEnvInt("CONTENT_FETCH_MAX_REDIRECTS", cfg.MaxRedirects, pkgconfig.ValidatePositiveInt),
	}
	for _, result := range results {
		for _, warning := range result.Warnings {
			logger.Warn("content fetch configuration fallback", slog.String("warning", warning))
		}
	}

	cfg.Enabled = results["enabled"].Value.(bool)
	cfg.Threshold = results["threshold"].Value.(int)
	cfg.Timeout = results["timeout"].Value.(time.Duration)
	cfg.MaxBodySize = int64(results["max_body"].Value.(int))
	cfg.MaxRedirects = results["max_redirects"].Value.(int)
	return cfg
}
