package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// The endpoint label carries the Notion API method of the key (loadPageChunk,
// syncRecordValues, queryCollection) or "preview" for placeholder images.
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_hits_total",
			Help: "Notion responses and preview placeholders served from Redis",
		},
		[]string{"endpoint"},
	)

	// CacheMisses also counts entries dropped because their own expiry passed
	// before the Redis TTL fired.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_misses_total",
			Help: "Lookups that fell through to Notion or the image host",
		},
		[]string{"endpoint"},
	)

	CacheBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_bytes_total",
			Help: "Encoded entry bytes by direction (read, written)",
		},
		[]string{"direction"},
	)

	// CacheErrors counts Redis and decode failures; callers treat them as a
	// miss and go to Notion directly.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_errors_total",
			Help: "Failed cache operations (get, set, delete)",
		},
		[]string{"operation"},
	)
)
