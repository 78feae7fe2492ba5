package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/dmarkov/weather-notify/internal/models"
)

const keyPrefix = "weather:"

// Entries must outlive the freshness TTL so the degraded-fallback path
// can still read them after expiry; memcached's own expiration is only
// a backstop against unbounded growth.
const memcachedRetention = 24 * time.Hour

// MemcachedStore implements Store using memcached with JSON-encoded entries.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(locationID string) string {
	return keyPrefix + locationID
}

type memcachedEntry struct {
	Observation models.Observation `json:"observation"`
	FetchedAt   time.Time          `json:"fetchedAt"`
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (s *MemcachedStore) Get(ctx context.Context, locationID string) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(locationID))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var raw memcachedEntry
	if err := json.Unmarshal(item.Value, &raw); err != nil {
		return Entry{}, false, err
	}
	return Entry{Observation: raw.Observation, FetchedAt: raw.FetchedAt}, true, nil
}

// Put implements Store.Put.
func (s *MemcachedStore) Put(ctx context.Context, locationID string, obs models.Observation, fetchedAt time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(memcachedEntry{Observation: obs, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(locationID),
		Value:      raw,
		Expiration: int32(memcachedRetention.Seconds()),
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
