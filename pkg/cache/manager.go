package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when no live entry exists for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored entry or its payload no
	// longer decodes, e.g. after the RecordMap shape changed between deploys.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores Notion API responses and preview placeholders in Redis.
// It is safe for concurrent use; the navigation fetcher and the preview
// resolver share one Manager through notion.Client.GetCache.
type Manager struct {
	redis *redis.Client
}

// NewManager panics on a nil client. Callers without Redis pass no Manager
// at all instead.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// Get loads the entry for key. A missing key and an entry past its own
// Expires both yield ErrCacheMiss; the latter is deleted on the way out.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	endpoint := endpointLabel(key)

	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.WithLabelValues(endpoint).Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", endpoint, err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis TTL has second granularity; Expires is authoritative.
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(endpoint).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(endpoint).Inc()
	CacheBytes.WithLabelValues("read").Add(float64(len(raw)))
	return &entry, nil
}

// Set writes entry with a Redis TTL matching entry.Expires. An entry that is
// already expired is dropped silently.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", endpointLabel(key), err)
	}

	CacheBytes.WithLabelValues("written").Add(float64(len(raw)))
	return nil
}

// GetJSON is Get followed by decoding the stored body into out. The
// preview resolver uses it for its placeholder records.
func (m *Manager) GetJSON(ctx context.Context, key CacheKey, out any) (*CacheEntry, error) {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return entry, nil
}

// SetJSON stores v as a 200 entry that lives for ttl.
func (m *Manager) SetJSON(ctx context.Context, key CacheKey, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return m.Set(ctx, key, NewEntry(data, http.StatusOK, ttl))
}

// Delete drops the entry for key. Deleting a missing key is not an error.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", endpointLabel(key), err)
	}
	return nil
}

// UpdateTTL rewrites the entry for key with a new expiry. It returns
// ErrCacheMiss when there is nothing to extend.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}

// endpointLabel bounds metric cardinality to the endpoint name; keys
// without one are reported as "unknown".
func endpointLabel(key CacheKey) string {
	if key.Endpoint == "" {
		return "unknown"
	}
	return key.Endpoint
}
