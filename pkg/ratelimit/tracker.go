package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for backoff tracking.
var (
	notionRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notion_rate_limited_total",
		Help: "Total number of 429 responses recorded from Notion",
	})

	notionRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notion_rate_limit_blocks_total",
		Help: "Total number of requests blocked while backing off",
	})

	notionRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notion_rate_limit_throttles_total",
		Help: "Total number of requests delayed until the backoff deadline",
	})
)

// Tracker records Notion backoff deadlines and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new backoff tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current backoff state from Redis.
// Returns a zero (not backing off) state if nothing is stored.
func (t *Tracker) GetState(ctx context.Context) (*BackoffState, error) {
	vals, err := t.redis.MGet(ctx, RedisKeyRetryAt, RedisKeyLastUpdate, RedisKeyHits).Result()
	if err != nil {
		return nil, fmt.Errorf("get backoff state: %w", err)
	}

	state := &BackoffState{}
	if ms, ok, err := parseInt(vals[0]); err != nil {
		return nil, fmt.Errorf("parse retry_at: %w", err)
	} else if ok {
		state.RetryAt = time.UnixMilli(ms)
	}
	if ms, ok, err := parseInt(vals[1]); err != nil {
		return nil, fmt.Errorf("parse last_update: %w", err)
	} else if ok {
		state.LastUpdate = time.UnixMilli(ms)
	}
	if hits, ok, err := parseInt(vals[2]); err != nil {
		return nil, fmt.Errorf("parse hits: %w", err)
	} else if ok {
		state.Hits = hits
	}

	return state, nil
}

// RecordRetryAfter stores the deadline announced by a 429 response.
// An existing later deadline is never shortened.
func (t *Tracker) RecordRetryAfter(ctx context.Context, headers http.Header) (time.Duration, error) {
	wait := ParseRetryAfter(headers.Get("Retry-After"), time.Now())
	now := time.Now()
	retryAt := now.Add(wait)

	current, err := t.GetState(ctx)
	if err != nil {
		return wait, err
	}
	if current.RetryAt.After(retryAt) {
		retryAt = current.RetryAt
		wait = time.Until(retryAt)
	}

	// keys expire with the deadline so a crashed writer cannot wedge readers
	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRetryAt, retryAt.UnixMilli(), wait)
	pipe.Set(ctx, RedisKeyLastUpdate, now.UnixMilli(), MaxRetryAfter)
	pipe.Incr(ctx, RedisKeyHits)
	pipe.Expire(ctx, RedisKeyHits, MaxRetryAfter)
	if _, err := pipe.Exec(ctx); err != nil {
		return wait, fmt.Errorf("store backoff state in redis: %w", err)
	}

	notionRateLimitedTotal.Inc()
	t.logger.Warn().
		Dur("retry_after", wait).
		Time("retry_at", retryAt).
		Msg("Notion rate limit hit - backing off")

	return wait, nil
}

// ShouldAllowRequest checks whether a request may be sent now.
// Short deadlines are waited out (respecting ctx); for longer ones it returns
// false together with the remaining wait.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get backoff state: %w", err)
	}

	if !state.Blocked() {
		return true, 0, nil
	}

	wait := state.TimeUntilReset()
	if !state.NeedsThrottling() {
		t.logger.Error().
			Dur("wait_duration", wait).
			Int64("hits", state.Hits).
			Msg("Notion backoff active - blocking request")
		notionRateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	t.logger.Debug().
		Dur("wait_duration", wait).
		Msg("Notion backoff active - delaying request")
	notionRateLimitThrottlesTotal.Inc()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, wait, ctx.Err()
	case <-timer.C:
	}

	return true, 0, nil
}

// Reset clears the stored backoff state.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, RedisKeyRetryAt, RedisKeyLastUpdate, RedisKeyHits).Err(); err != nil {
		return fmt.Errorf("reset backoff state: %w", err)
	}
	return nil
}

// ParseRetryAfter interprets a Retry-After header value given either as
// delay seconds or as an HTTP date. Missing or invalid values yield
// DefaultRetryAfter; results are capped at MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}

	var wait time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		wait = at.Sub(now)
	} else {
		return DefaultRetryAfter
	}

	if wait <= 0 {
		return DefaultRetryAfter
	}
	if wait > MaxRetryAfter {
		return MaxRetryAfter
	}
	return wait
}

// parseInt converts an MGET value to int64. ok is false for missing keys.
func parseInt(v any) (int64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	s, isString := v.(string)
	if !isString {
		return 0, false, errors.New("unexpected redis value type")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
