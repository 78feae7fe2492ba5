package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// OpenWeatherMap API call rate. Watch for: error vs success ratio.
	FetchesTotal *prometheus.CounterVec

	// External API latency per call. Watch for: p95 > 2s (upstream degradation), p99 approaching the 30s timeout.
	FetchDuration *prometheus.HistogramVec

	// Fetch errors by category (timeout, upstream_5xx, ...); transient vs permanent trends.
	FetchErrorsTotal *prometheus.CounterVec

	// Cache hits served without an upstream call. Hit rate = hits/(hits+fetches).
	CacheHitsTotal *prometheus.CounterVec

	// Stale cache entries served because a live fetch failed. Nonzero = degraded upstream.
	StaleServesTotal *prometheus.CounterVec

	// Alerts raised by the change detector, by kind.
	AlertsTotal *prometheus.CounterVec

	// Collection cycles run, by trigger (scheduled, backfill, manual).
	CyclesTotal *prometheus.CounterVec

	// Wall time of a full collection cycle across all locations.
	CycleDuration prometheus.Histogram

	// Scheduler loop ticks. Flat-lining means the loop is stuck or dead.
	SchedulerTicksTotal prometheus.Counter

	// Tick-level failures swallowed by the scheduler. Watch for: sustained nonzero rate.
	SchedulerTickErrorsTotal prometheus.Counter

	// Missed slots recovered inside the grace window.
	MissedSlotBackfillsTotal prometheus.Counter

	// Per-subscriber delivery attempts, by outcome.
	DispatchesTotal *prometheus.CounterVec

	// History store writes, by outcome. Store is optional; absent = no samples.
	StoreWritesTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherFetchesTotal",
			Help: "Total number of upstream weather API calls",
		},
		[]string{"status"},
	)
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherFetchDurationSeconds",
			Help:    "Upstream weather API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherFetchErrorsTotal",
			Help: "Upstream fetch errors by category",
		},
		[]string{"category"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Observations served from a fresh cache entry without an upstream call",
		},
		[]string{"location"},
	)
	StaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleCacheServesTotal",
			Help: "Expired cache entries served as degraded fallback after a failed fetch",
		},
		[]string{"location"},
	)
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherAlertsTotal",
			Help: "Significant weather changes detected, by kind",
		},
		[]string{"kind", "location"},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collectionCyclesTotal",
			Help: "Collection cycles run, by trigger",
		},
		[]string{"trigger"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collectionCycleDurationSeconds",
			Help:    "Wall time of one full collection cycle",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	SchedulerTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedulerTicksTotal",
			Help: "Scheduler loop iterations",
		},
	)
	SchedulerTickErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedulerTickErrorsTotal",
			Help: "Tick-level failures swallowed by the scheduler loop",
		},
	)
	MissedSlotBackfillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "missedSlotBackfillsTotal",
			Help: "Missed schedule slots recovered inside the grace window",
		},
	)
	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notificationDispatchesTotal",
			Help: "Per-subscriber delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)
	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historyStoreWritesTotal",
			Help: "History store writes, by outcome",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		FetchesTotal, FetchDuration, FetchErrorsTotal,
		CacheHitsTotal, StaleServesTotal, AlertsTotal,
		CyclesTotal, CycleDuration,
		SchedulerTicksTotal, SchedulerTickErrorsTotal, MissedSlotBackfillsTotal,
		DispatchesTotal, StoreWritesTotal,
	)
}

// MetricsHandler returns an http.Handler exposing the private registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
