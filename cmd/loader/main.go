// Command loader runs the feed acquisition engine as a long-lived process:
// scheduled progressive loads, recovery and cache sweeps, health probes and
// a Prometheus metrics endpoint. Everything is constructed here and injected;
// there is no ambient global state.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"feedgate/internal/cache"
	"feedgate/internal/infra/fetcher"
	"feedgate/internal/infra/pipeline"
	"feedgate/internal/infra/proxy"
	"feedgate/internal/infra/store"
	"feedgate/internal/infra/worker"
	"feedgate/internal/observability/logging"
	pkgconfig "feedgate/internal/pkg/config"
	"feedgate/internal/usecase/load"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfg := worker.LoadConfigFromEnv(logger)
	logger.Info("loader configuration loaded",
		slog.String("feeds", cfg.FeedsPath),
		slog.String("snapshot", cfg.SnapshotPath),
		slog.String("refresh_schedule", cfg.RefreshSchedule),
		slog.String("sweep_schedule", cfg.SweepSchedule),
		slog.Int("health_port", cfg.HealthPort),
		slog.Int("metrics_port", cfg.MetricsPort))

	sources, err := worker.LoadSources(cfg.FeedsPath, logger)
	if err != nil {
		logger.Error("failed to load feed sources", slog.Any("error", err))
		os.Exit(1)
	}
	if len(sources) == 0 {
		logger.Error("no feed sources configured", slog.String("path", cfg.FeedsPath))
		os.Exit(1)
	}

	// A snapshot store that cannot be opened must not block startup; the
	// engine runs memory-only and logs the degradation.
	snaps, err := store.Open(cfg.SnapshotPath)
	if err != nil {
		logger.Warn("snapshot store unavailable, running without persistence",
			slog.String("path", cfg.SnapshotPath),
			slog.Any("error", err))
		snaps, _ = store.Open("")
	}
	defer func() {
		if err := snaps.Close(); err != nil {
			logger.Error("failed to close snapshot store", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proxyCfg, err := proxy.LoadConfig(cfg.ProxyConfigPath)
	if err != nil {
		logger.Warn("proxy config unreadable, using built-in endpoints", slog.Any("error", err))
		proxyCfg = proxy.DefaultConfig()
	}

	httpClient := createHTTPClient()
	registry := proxy.NewRegistry(proxyCfg, httpClient, snaps, logger)
	smartCache := cache.New(loadCacheConfig(logger), snaps, logger)

	contentCfg := fetcher.LoadConfigFromEnv(logger)
	var contentFetcher pipeline.ContentFetcher
	if contentCfg.Enabled {
		contentFetcher = fetcher.NewReadabilityFetcher(contentCfg)
		logger.Info("content enhancement enabled",
			slog.Int("threshold", contentCfg.Threshold),
			slog.Duration("timeout", contentCfg.Timeout))
	} else {
		logger.Info("content enhancement disabled")
	}

	pipeCfg := pipeline.DefaultConfig()
	pipeCfg.MaxResponseBytes = proxyCfg.MaxResponseBytes
	pipeCfg.ContentFetch = contentCfg
	pipe := pipeline.New(pipeCfg, smartCache, registry, pipeline.DefaultProviders(), contentFetcher, httpClient, logger)

	loader := load.NewLoader(loadLoaderConfig(logger), pipe, smartCache, snaps, sources, logger)

	startMetricsServer(ctx, logger, cfg.MetricsPort)

	healthServer := worker.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	scheduler := startScheduler(ctx, logger, cfg, loader, registry, smartCache)
	healthServer.SetReady(true)

	// Prime the cache without waiting for the first cron tick.
	go runRefresh(ctx, logger, cfg, loader)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	healthServer.SetReady(false)
	loader.CancelLoading()

	// Let an in-flight scheduled job settle before the store closes.
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("scheduler jobs did not finish before shutdown deadline")
	}
	logger.Info("loader stopped")
}

// startScheduler wires the refresh and sweep jobs into a cron scheduler.
func startScheduler(ctx context.Context, logger *slog.Logger, cfg worker.Config, loader *load.Loader, registry *proxy.Registry, smartCache *cache.SmartCache) *cron.Cron {
	c := cron.New()

	if _, err := c.AddFunc(cfg.RefreshSchedule, func() {
		runRefresh(ctx, logger, cfg, loader)
	}); err != nil {
		logger.Error("failed to schedule refresh job", slog.Any("error", err))
		os.Exit(1)
	}

	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		runSweep(logger, registry, smartCache)
	}); err != nil {
		logger.Error("failed to schedule sweep job", slog.Any("error", err))
		os.Exit(1)
	}

	c.Start()
	logger.Info("scheduler started",
		slog.String("refresh", cfg.RefreshSchedule),
		slog.String("sweep", cfg.SweepSchedule))
	return c
}

// runRefresh executes one scheduled progressive load.
func runRefresh(ctx context.Context, logger *slog.Logger, cfg worker.Config, loader *load.Loader) {
	start := time.Now()

	loadCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
	defer cancel()

	err := loader.Load(loadCtx, false, cfg.PriorityCategory)
	worker.RecordScheduledRun("refresh", time.Since(start), err)
	if err != nil {
		logger.Error("scheduled refresh failed", slog.Any("error", err))
		return
	}

	state := loader.State()
	logger.Info("scheduled refresh finished",
		slog.String("status", string(state.Status)),
		slog.Int("loaded", state.LoadedCount),
		slog.Int("total", state.TotalCount),
		slog.Int("failed", len(state.Errors)),
		slog.Duration("duration", time.Since(start)))
}

// runSweep re-admits recovered proxy endpoints and purges expired cache
// entries.
func runSweep(logger *slog.Logger, registry *proxy.Registry, smartCache *cache.SmartCache) {
	start := time.Now()

	readmitted := registry.Tracker().Sweep()
	evicted := smartCache.Cleanup()

	worker.RecordScheduledRun("sweep", time.Since(start), nil)
	logger.Info("sweep finished",
		slog.Int("endpoints_readmitted", len(readmitted)),
		slog.Int("cache_evicted", evicted))
}

// loadCacheConfig reads cache sizing from the environment with fallback.
// Variables: CACHE_TTL, CACHE_SWR_WINDOW, CACHE_MAX_ENTRIES.
func loadCacheConfig(logger *slog.Logger) cache.Config {
	cfg := cache.DefaultConfig()

	results := map[string]pkgconfig.ConfigLoadResult{
		"ttl":         pkgconfig.LoadEnvDuration("CACHE_TTL", cfg.TTL, pkgconfig.ValidatePositiveDuration),
		"swr_window":  pkgconfig.LoadEnvDuration("CACHE_SWR_WINDOW", cfg.SWRWindow, pkgconfig.ValidatePositiveDuration),
		"max_entries": pkgconfig.LoadEnvInt("CACHE_MAX_ENTRIES", cfg.MaxEntries, pkgconfig.ValidatePositiveInt),
	}
	for field, result := range results {
		for _, warning := range result.Warnings {
			logger.Warn("cache configuration fallback",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	cfg.TTL = results["ttl"].Value.(time.Duration)
	cfg.SWRWindow = results["swr_window"].Value.(time.Duration)
	cfg.MaxEntries = results["max_entries"].Value.(int)
	return cfg
}

// loadLoaderConfig reads batching parameters from the environment with
// fallback. Variables: BATCH_SIZE, FEED_TIMEOUT, INTER_BATCH_DELAY.
func loadLoaderConfig(logger *slog.Logger) load.Config {
	cfg := load.DefaultConfig()

	results := map[string]pkgconfig.ConfigLoadResult{
		"batch_size":   pkgconfig.LoadEnvInt("BATCH_SIZE", cfg.BatchSize, pkgconfig.ValidatePositiveInt),
		"feed_timeout": pkgconfig.LoadEnvDuration("FEED_TIMEOUT", cfg.FeedTimeout, pkgconfig.ValidatePositiveDuration),
		"batch_delay":  pkgconfig.LoadEnvDuration("INTER_BATCH_DELAY", cfg.InterBatchDelay, pkgconfig.ValidatePositiveDuration),
	}
	for field, result := range results {
		for _, warning := range result.Warnings {
			logger.Warn("loader configuration fallback",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	cfg.BatchSize = results["batch_size"].Value.(int)
	cfg.FeedTimeout = results["feed_timeout"].Value.(time.Duration)
	cfg.InterBatchDelay = results["batch_delay"].Value.(time.Duration)
	return cfg
}

// createHTTPClient creates the shared outbound HTTP client with connection
// pooling and TLS 1.2+ enforced.
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
