package models

import "time"

// Observation is one immutable weather reading for a location.
// Produced by the fetcher adapter; never mutated after creation.
type Observation struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Description string    `json:"description"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Location is a fixed, configured place for which weather is tracked.
// IDs are unique and stable across restarts; history keys on them.
type Location struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// AlertKind labels the kind of significant change detected between cycles.
type AlertKind string

const (
	AlertTemperatureJump AlertKind = "temperature_jump"
	AlertHighWind        AlertKind = "high_wind"
)

// AlertEvent records a significant weather change for a location.
// Ephemeral: produced by the detector, logged and counted, then discarded.
type AlertEvent struct {
	LocationID string
	Kind       AlertKind
	Magnitude  float64
}

// CollectionResult is the per-location outcome of one collection cycle.
// Observation is nil when the fetch failed and no cached value existed.
// Stale marks an observation served from an expired cache entry because
// the live fetch failed.
type CollectionResult struct {
	Location    Location
	Observation *Observation
	Stale       bool
	Alerts      []AlertEvent
}
