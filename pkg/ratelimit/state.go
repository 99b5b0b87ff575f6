// Package ratelimit tracks Notion's 429 back-pressure and gates requests.
// When Notion answers "429 Too Many Requests" it sends a Retry-After header;
// the deadline derived from it is stored in Redis so that every client
// process sharing the Redis instance backs off together.
package ratelimit

import (
	"time"
)

// Redis keys for backoff state storage.
const (
	RedisKeyRetryAt    = "notion:rate_limit:retry_at"
	RedisKeyLastUpdate = "notion:rate_limit:last_update"
	RedisKeyHits       = "notion:rate_limit:hits"
)

// Backoff bounds.
const (
	// DefaultRetryAfter is used when a 429 carries no usable Retry-After header.
	DefaultRetryAfter = 1 * time.Second

	// MaxRetryAfter caps the deadline a single response can impose.
	MaxRetryAfter = 5 * time.Minute

	// MaxThrottleWait is the longest a request waits in place for the
	// deadline to pass. Longer deadlines block the request instead.
	MaxThrottleWait = 5 * time.Second
)

// BackoffState represents the shared upstream backoff state.
type BackoffState struct {
	// RetryAt is when Notion accepts requests again. Zero when not backing off.
	RetryAt time.Time `json:"retry_at"`

	// LastUpdate is when a 429 was last recorded.
	LastUpdate time.Time `json:"last_update"`

	// Hits counts 429 responses recorded since the key last expired.
	Hits int64 `json:"hits"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *BackoffState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Blocked returns true while the retry deadline lies in the future.
func (s *BackoffState) Blocked() bool {
	return !s.RetryAt.IsZero() && time.Now().Before(s.RetryAt)
}

// NeedsThrottling returns true when the deadline is close enough to wait
// for in place.
func (s *BackoffState) NeedsThrottling() bool {
	return s.Blocked() && s.TimeUntilReset() <= MaxThrottleWait
}

// TimeUntilReset returns the duration until the retry deadline.
// Returns 0 if the deadline has already passed.
func (s *BackoffState) TimeUntilReset() time.Duration {
	if s.RetryAt.IsZero() {
		return 0
	}
	duration := time.Until(s.RetryAt)
	if duration < 0 {
		return 0
	}
	return duration
}
