// Package cache provides a Redis-backed response cache for the Notion
// content API client.
//
// Notion's v3 API is POST-only: a request is identified by its endpoint and
// its JSON body, so cache keys are derived from both. Entries carry their own
// expiry and are stored in Redis with a matching TTL, so stale entries are
// evicted by Redis itself.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint: "loadPageChunk",
//		Body:     payload,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from Notion, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, http.StatusOK, 10*time.Minute))
//	}
//
// The same manager backs the preview image cache, which keys entries by
// image URL under the "preview" endpoint.
//
// # Metrics
//
//   - notion_cache_hits_total{endpoint} - Entries served from Redis
//   - notion_cache_misses_total{endpoint} - Lookups that went to Notion or the image host
//   - notion_cache_bytes_total{direction} - Entry bytes read and written
//   - notion_cache_errors_total{operation} - Failed get, set and delete calls
//
// Signed file URLs and search results are never cached: signed URLs expire
// upstream and search must reflect the live workspace.
package cache
