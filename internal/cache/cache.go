package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dmarkov/weather-notify/internal/models"
)

// Entry stores a cached observation with the instant it was fetched.
// Freshness is decided by the caller via Fresh so the degraded-fallback
// path can still read entries past their TTL.
type Entry struct {
	Observation models.Observation
	FetchedAt   time.Time
}

// Fresh reports whether the entry is within ttl of now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Store defines the interface for per-location observation caching.
// Get returns the entry even if expired; a miss is absence, not an error.
type Store interface {
	Get(ctx context.Context, locationID string) (Entry, bool, error)
	Put(ctx context.Context, locationID string, obs models.Observation, fetchedAt time.Time) error
}

// InMemoryStore implements Store with an RWMutex-guarded map. Safe for
// concurrent per-location readers and writers; entries are only ever
// overwritten whole, never mutated in place.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewInMemoryStore creates an empty in-memory cache store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]Entry),
	}
}

// Get retrieves the cached entry for the location, expired or not.
func (s *InMemoryStore) Get(ctx context.Context, locationID string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data[locationID]
	return entry, ok, nil
}

// Put overwrites the entry for the location with a new observation.
func (s *InMemoryStore) Put(ctx context.Context, locationID string, obs models.Observation, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[locationID] = Entry{Observation: obs, FetchedAt: fetchedAt}
	return nil
}
