package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dmarkov/weather-notify/internal/cache"
	"github.com/dmarkov/weather-notify/internal/client"
	"github.com/dmarkov/weather-notify/internal/collector"
	"github.com/dmarkov/weather-notify/internal/config"
	"github.com/dmarkov/weather-notify/internal/detect"
	"github.com/dmarkov/weather-notify/internal/notify"
	"github.com/dmarkov/weather-notify/internal/observability"
	"github.com/dmarkov/weather-notify/internal/ops"
	"github.com/dmarkov/weather-notify/internal/scheduler"
	"github.com/dmarkov/weather-notify/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.BreakerEnabled {
		weatherClient.SetCircuitBreaker(client.BreakerSettings{
			MaxFailures: cfg.BreakerMaxFailures,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
		})
		logger.Info("circuit breaker enabled",
			zap.Uint32("max_failures", cfg.BreakerMaxFailures),
			zap.Duration("timeout", cfg.BreakerTimeout),
		)
	}
	if err := weatherClient.ValidateAPIKey(ctx); err != nil {
		logger.Fatal("API key validation", zap.Error(err))
	}

	var cacheStore cache.Store
	var cachePing func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		defer mc.Close()
		cacheStore = mc
		cachePing = mc.Ping
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheStore = cache.NewInMemoryStore()
		logger.Info("cache backend: in_memory")
	}

	var history *store.SQLiteStore
	if cfg.StorePath != "" {
		history, err = store.Open(cfg.StorePath)
		if err != nil {
			// History is optional; run without it rather than abort.
			logger.Warn("history store unavailable", zap.String("path", cfg.StorePath), zap.Error(err))
			history = nil
		} else {
			defer history.Close()
			logger.Info("history store: sqlite", zap.String("path", cfg.StorePath))
		}
	}

	if history != nil {
		seedCacheFromHistory(ctx, history, cacheStore, cfg, logger)
	}

	detector := &detect.Detector{
		TempJumpDelta: cfg.TempJumpDelta,
		HighWindSpeed: cfg.HighWindSpeed,
	}

	collectorOpts := []collector.Option{}
	if history != nil {
		collectorOpts = append(collectorOpts, collector.WithHistory(history))
	}
	if cfg.UpstreamRateLimitRPS > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.UpstreamRateLimitRPS), cfg.UpstreamRateLimitBurst)
		collectorOpts = append(collectorOpts, collector.WithRateLimiter(limiter))
	}
	cycles := collector.New(
		cfg.Locations,
		weatherClient,
		cacheStore,
		detector,
		cfg.CacheTTL,
		client.Units(cfg.Units),
		logger.Named("collector"),
		collectorOpts...,
	)

	var sender notify.Sender
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.SendTimeout)
		if err != nil {
			logger.Fatal("telegram sender", zap.Error(err))
		}
		sender = tg
	}
	dispatcher := notify.NewDispatcher(sender, cfg.Subscribers, cfg.Timezone, logger.Named("notify"))

	schedOpts := []scheduler.Option{
		scheduler.WithTickInterval(cfg.TickInterval),
		scheduler.WithGrace(cfg.MissedGrace),
	}
	if history != nil {
		schedOpts = append(schedOpts, scheduler.WithFulfillmentStore(history))
	}
	sched, err := scheduler.New(cfg.Slots, cfg.Timezone, cycles, dispatcher, logger.Named("scheduler"), schedOpts...)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	opsServer := ops.NewServer(cfg.OpsPort, logger.Named("ops"), cachePing)
	opsServer.Start()

	logger.Info("weather notifier started",
		zap.Int("locations", len(cfg.Locations)),
		zap.Int("slots", len(cfg.Slots)),
		zap.Int("subscribers", len(cfg.Subscribers)),
	)

	err = sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler exited", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// seedCacheFromHistory pre-populates the cache with each location's most
// recent stored observation. Entries keep their original fetch time, so
// anything older than the TTL only serves the degraded-fallback path.
func seedCacheFromHistory(ctx context.Context, history *store.SQLiteStore, cacheStore cache.Store, cfg *config.Config, logger *zap.Logger) {
	seeded := 0
	for _, loc := range cfg.Locations {
		obs, ok, err := history.LatestObservation(ctx, loc.ID)
		if err != nil {
			logger.Warn("history read failed", zap.String("location", loc.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if err := cacheStore.Put(ctx, loc.ID, obs, obs.FetchedAt); err != nil {
			logger.Warn("cache seed failed", zap.String("location", loc.ID), zap.Error(err))
			continue
		}
		seeded++
	}
	if seeded > 0 {
		logger.Info("cache seeded from history", zap.Int("locations", seeded))
	}
}
