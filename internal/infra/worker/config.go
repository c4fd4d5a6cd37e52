package worker

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"feedgate/internal/domain/entity"
	"feedgate/internal/pkg/config"
)

// Config holds the loader process configuration: schedules, ports and file
// paths. All fields have defaults; LoadConfigFromEnv never fails, it falls
// back to defaults with a warning and a metric.
type Config struct {
	// FeedsPath is the YAML file listing feed sources. Required for the
	// loader to do anything useful; an empty path yields zero sources.
	FeedsPath string

	// ProxyConfigPath is the optional YAML file overriding the built-in
	// relay endpoint list.
	ProxyConfigPath string

	// SnapshotPath is the BoltDB file backing cache, history and
	// preferred-proxy persistence. Empty means memory-only.
	SnapshotPath string

	// RefreshSchedule is the cron expression driving full loads.
	// Default: every 30 minutes.
	RefreshSchedule string

	// SweepSchedule is the cron expression driving the breaker recovery
	// sweep and the cache expiry sweep. Default: every 5 minutes.
	SweepSchedule string

	// LoadTimeout bounds one scheduled load run. Default: 10m
	LoadTimeout time.Duration

	// PriorityCategory is the category loaded first in every run.
	PriorityCategory string

	// HealthPort is the health probe port. Default: 9091
	HealthPort int

	// MetricsPort is the Prometheus /metrics port. Default: 9090
	MetricsPort int
}

// DefaultConfig returns the production defaults for the loader process.
func DefaultConfig() Config {
	return Config{
		FeedsPath:       "feeds.yaml",
		SnapshotPath:    "data/feedgate.db",
		RefreshSchedule: "*/30 * * * *",
		SweepSchedule:   "*/5 * * * *",
		LoadTimeout:     10 * time.Minute,
		HealthPort:      9091,
		MetricsPort:     9090,
	}
}

// Validate checks the configuration. LoadConfigFromEnv already validates
// per field; this exists for configurations built in code.
func (c *Config) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.RefreshSchedule); err != nil {
		errs = append(errs, fmt.Errorf("refresh schedule: %w", err))
	}
	if err := config.ValidateCronSchedule(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sweep schedule: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.LoadTimeout); err != nil {
		errs = append(errs, fmt.Errorf("load timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv builds the loader configuration from environment
// variables with validate-and-fallback semantics: an invalid value logs a
// warning, increments the fallback metric and keeps the default. It never
// returns an invalid configuration.
//
// Variables: FEEDS_CONFIG, PROXY_CONFIG, SNAPSHOT_PATH, REFRESH_SCHEDULE,
// SWEEP_SCHEDULE, LOAD_TIMEOUT, PRIORITY_CATEGORY, HEALTH_PORT, METRICS_PORT.
func LoadConfigFromEnv(logger *slog.Logger) Config {
	cfg := DefaultConfig()

	cfg.FeedsPath = config.LoadEnvString("FEEDS_CONFIG", cfg.FeedsPath)
	cfg.ProxyConfigPath = config.LoadEnvString("PROXY_CONFIG", cfg.ProxyConfigPath)
	cfg.SnapshotPath = config.LoadEnvString("SNAPSHOT_PATH", cfg.SnapshotPath)
	cfg.PriorityCategory = config.LoadEnvString("PRIORITY_CATEGORY", cfg.PriorityCategory)

	apply := func(field string, result config.ConfigLoadResult) config.ConfigLoadResult {
		if result.FallbackApplied {
			ConfigFallbacksTotal.WithLabelValues(field).Inc()
			for _, warning := range result.Warnings {
				logger.Warn("configuration fallback applied",
					slog.String("field", field),
					slog.String("warning", warning))
			}
		}
		return result
	}

	cfg.RefreshSchedule = apply("refresh_schedule",
		config.LoadEnvWithFallback("REFRESH_SCHEDULE", cfg.RefreshSchedule, config.ValidateCronSchedule)).Value.(string)
	cfg.SweepSchedule = apply("sweep_schedule",
		config.LoadEnvWithFallback("SWEEP_SCHEDULE", cfg.SweepSchedule, config.ValidateCronSchedule)).Value.(string)
	cfg.LoadTimeout = apply("load_timeout",
		config.LoadEnvDuration("LOAD_TIMEOUT", cfg.LoadTimeout, func(d time.Duration) error {
			return config.ValidateDuration(d, time.Minute, 4*time.Hour)
		})).Value.(time.Duration)
	cfg.HealthPort = apply("health_port",
		config.LoadEnvInt("HEALTH_PORT", cfg.HealthPort, func(v int) error {
			return config.ValidateIntRange(v, 1024, 65535)
		})).Value.(int)
	cfg.MetricsPort = apply("metrics_port",
		config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, func(v int) error {
			return config.ValidateIntRange(v, 1024, 65535)
		})).Value.(int)

	return cfg
}

// feedsFile is the on-disk shape of the feed source list.
type feedsFile struct {
	Feeds []entity.FeedSource `yaml:"feeds"`
}

// LoadSources reads the feed source list from a YAML file. Sources without
// a URL are dropped with a warning rather than failing the whole file.
func LoadSources(path string, logger *slog.Logger) ([]entity.FeedSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds config: %w", err)
	}

	var file feedsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse feeds config: %w", err)
	}

	sources := make([]entity.FeedSource, 0, len(file.Feeds))
	for i, src := range file.Feeds {
		if src.URL == "" {
			logger.Warn("feed source missing url, skipping", slog.Int("index", i))
			continue
		}
		sources = append(sources, src)
	}
	return sources, nil
}
