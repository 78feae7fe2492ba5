// Package collector runs one collection cycle: for every monitored
// location it consults the cache, fetches on miss or force, detects
// significant changes, and degrades to stale data when the upstream
// fails. A cycle never fails as a whole; it always yields one result
// per location.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dmarkov/weather-notify/internal/cache"
	"github.com/dmarkov/weather-notify/internal/client"
	"github.com/dmarkov/weather-notify/internal/detect"
	"github.com/dmarkov/weather-notify/internal/models"
	"github.com/dmarkov/weather-notify/internal/observability"
)

// History is the optional persistence collaborator. Implemented by
// store.SQLiteStore; nil disables history without affecting collection.
type History interface {
	SaveObservation(ctx context.Context, locationID string, obs models.Observation) error
}

// Collector owns one collection cycle's logic. Safe for use by a single
// scheduling loop; per-location work inside a cycle runs concurrently.
type Collector struct {
	locations []models.Location
	fetcher   client.Fetcher
	cache     cache.Store
	detector  *detect.Detector
	history   History
	ttl       time.Duration
	units     client.Units
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Option configures optional Collector collaborators.
type Option func(*Collector)

// WithHistory enables write-through observation history.
func WithHistory(h History) Option {
	return func(c *Collector) { c.history = h }
}

// WithRateLimiter caps outbound fetch rate across locations within a cycle.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Collector) { c.limiter = l }
}

// New creates a Collector for a fixed set of locations.
func New(locations []models.Location, fetcher client.Fetcher, cacheStore cache.Store, detector *detect.Detector, ttl time.Duration, units client.Units, logger *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		locations: locations,
		fetcher:   fetcher,
		cache:     cacheStore,
		detector:  detector,
		ttl:       ttl,
		units:     units,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one collection cycle. force bypasses cache freshness and
// always fetches. The returned slice has one entry per configured
// location in configuration order; per-location failures never abort or
// delay the other locations.
func (c *Collector) Run(ctx context.Context, force bool) []models.CollectionResult {
	start := time.Now()
	cycleID := uuid.NewString()
	logger := c.logger.With(zap.String("cycle_id", cycleID), zap.Bool("force", force))
	logger.Info("collection cycle started", zap.Int("locations", len(c.locations)))

	results := make([]models.CollectionResult, len(c.locations))
	var wg sync.WaitGroup
	for i, loc := range c.locations {
		i, loc := i, loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.collectOne(ctx, logger, loc, force)
		}()
	}
	wg.Wait()

	duration := time.Since(start)
	observability.CycleDuration.Observe(duration.Seconds())
	logger.Info("collection cycle complete", zap.Duration("duration", duration))
	return results
}

func (c *Collector) collectOne(ctx context.Context, logger *zap.Logger, loc models.Location, force bool) models.CollectionResult {
	result := models.CollectionResult{Location: loc}
	now := time.Now()

	entry, cached, err := c.cache.Get(ctx, loc.ID)
	if err != nil {
		logger.Warn("cache get failed", zap.String("location", loc.ID), zap.Error(err))
		cached = false
	}

	if !force && cached && entry.Fresh(now, c.ttl) {
		observability.CacheHitsTotal.WithLabelValues(loc.ID).Inc()
		logger.Debug("cache hit", zap.String("location", loc.ID))
		obs := entry.Observation
		result.Observation = &obs
		return result
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.degrade(logger, loc, entry, cached, now, err)
		}
	}

	obs, err := c.fetcher.Fetch(ctx, loc.ID, c.units)
	if err != nil {
		observability.FetchErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return c.degrade(logger, loc, entry, cached, now, err)
	}

	if err := c.cache.Put(ctx, loc.ID, obs, now); err != nil {
		logger.Warn("cache put failed", zap.String("location", loc.ID), zap.Error(err))
	}

	var prev *models.Observation
	if cached {
		prevObs := entry.Observation
		prev = &prevObs
	}
	result.Alerts = c.detector.Detect(loc.ID, prev, obs)
	for _, alert := range result.Alerts {
		observability.AlertsTotal.WithLabelValues(string(alert.Kind), loc.ID).Inc()
		logger.Warn("weather alert",
			zap.String("location", alert.LocationID),
			zap.String("kind", string(alert.Kind)),
			zap.Float64("magnitude", alert.Magnitude),
		)
	}

	if c.history != nil {
		if err := c.history.SaveObservation(ctx, loc.ID, obs); err != nil {
			observability.StoreWritesTotal.WithLabelValues("error").Inc()
			logger.Warn("history save failed", zap.String("location", loc.ID), zap.Error(err))
		} else {
			observability.StoreWritesTotal.WithLabelValues("success").Inc()
		}
	}

	logger.Debug("observation collected", zap.String("location", loc.ID), zap.Float64("temperature", obs.Temperature))
	result.Observation = &obs
	return result
}

// degrade falls back to the cached entry, expired or not, when a live
// fetch fails. Bounded staleness beats total absence during a partial
// upstream outage. With no cached entry at all the location is absent.
func (c *Collector) degrade(logger *zap.Logger, loc models.Location, entry cache.Entry, cached bool, now time.Time, cause error) models.CollectionResult {
	result := models.CollectionResult{Location: loc}
	if !cached {
		logger.Error("fetch failed, no cached fallback", zap.String("location", loc.ID), zap.Error(cause))
		return result
	}

	stale := !entry.Fresh(now, c.ttl)
	if stale {
		observability.StaleServesTotal.WithLabelValues(loc.ID).Inc()
	}
	logger.Warn("fetch failed, serving cached fallback",
		zap.String("location", loc.ID),
		zap.Bool("stale", stale),
		zap.Duration("age", now.Sub(entry.FetchedAt)),
		zap.Error(cause),
	)
	obs := entry.Observation
	result.Observation = &obs
	result.Stale = stale
	return result
}
