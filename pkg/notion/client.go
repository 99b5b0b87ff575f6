// Package notion provides an HTTP client for the Notion content API
// (the private v3 API used by notion.so) with rate limiting, caching, and
// error handling.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/notion-site-client/pkg/cache"
	"github.com/Sternrassler/notion-site-client/pkg/logging"
	"github.com/Sternrassler/notion-site-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Notion v3 API root.
const DefaultBaseURL = "https://www.notion.so/api/v3"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 64 << 20

// Prometheus metrics for Notion client operations.
var (
	notionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_requests_total",
		Help: "Total Notion API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	notionRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notion_request_duration_seconds",
		Help:    "Notion API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	notionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notion_errors_total",
		Help: "Total Notion API errors by class",
	}, []string{"class"})
)

// cacheableEndpoints lists the read-only endpoints whose responses may be
// served from the Redis cache. Signed URLs expire and search must be live.
var cacheableEndpoints = map[string]bool{
	EndpointLoadPageChunk:    true,
	EndpointSyncRecordValues: true,
	EndpointQueryCollection:  true,
}

// Client is the Notion content API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retry       retryPolicy
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the v3 API (default DefaultBaseURL)
	BaseURL string

	// HTTPClient overrides the instrumented default client
	HTTPClient *http.Client

	// Redis enables the response cache and shared 429 backoff state.
	// Optional: without it every request goes to Notion.
	Redis *redis.Client

	// UserAgent header (REQUIRED)
	UserAgent string

	// AuthToken is the token_v2 cookie for private workspaces (optional)
	AuthToken string

	// ActiveUser is sent as x-notion-active-user-header (optional)
	ActiveUser string

	// Rate Limiting (client side token bucket)
	RateLimit float64 // Requests per second
	Burst     int

	// Caching
	CacheTTL time.Duration

	// Timeout per HTTP request
	Timeout time.Duration

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Redis:     redis,
		UserAgent: userAgent,
		RateLimit: 3,
		Burst:     6,
		CacheTTL:  10 * time.Minute,
		Timeout:   30 * time.Second,
	}
}

// New creates a new Notion client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("rate_limit must be > 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("notion-client")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		retry:      scaledPolicy(cfg.MaxRetries, cfg.InitialBackoff),
		config:     cfg,
		logger:     logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
		c.cache = cache.NewManager(cfg.Redis)
	} else {
		logger.Info().Msg("No Redis configured - response cache and shared backoff disabled")
	}

	return c, nil
}

// Do POSTs body as JSON to the given API endpoint and decodes the response
// into out. This is the core request method that orchestrates pacing,
// shared backoff, caching and retries.
func (c *Client) Do(ctx context.Context, endpoint string, body, out any) error {
	startTime := time.Now()
	defer func() {
		notionRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	// Step 1: Check shared backoff
	if c.rateLimiter != nil {
		allowed, wait, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			// redis trouble must not take the site down
			c.logger.Warn().Err(err).Msg("Backoff check failed")
		} else if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Dur("retry_in", wait).
				Msg("Request blocked by backoff")
			notionRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return fmt.Errorf("%w: retry in %s", ErrRequestBlocked, wait.Round(time.Second))
		}
	}

	// Step 2: Check Cache
	cacheKey := c.cacheKey(endpoint, payload)
	cacheable := c.cache != nil && cacheableEndpoints[endpoint]
	if cacheable {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("age", entry.Age()).
				Msg("Cache hit")
			notionRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return decodeBody(endpoint, entry.Data, out)
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	// Step 3: Execute HTTP Request with Retry Logic
	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("bytes", len(payload)).
		Msg("Executing Notion request")

	var data []byte
	err = retryWithBackoff(ctx, c.retry, func() error {
		var attemptErr error
		data, attemptErr = c.send(ctx, endpoint, payload)
		return attemptErr
	}, classifyError)
	if err != nil {
		return err
	}

	// Step 4: Update Cache on success
	if cacheable {
		if err := c.cache.Set(ctx, cacheKey, cache.NewEntry(data, http.StatusOK, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", c.config.CacheTTL).
				Msg("Cached response")
		}
	}

	return decodeBody(endpoint, data, out)
}

// send performs a single HTTP attempt.
func (c *Client) send(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.AuthToken != "" {
		req.AddCookie(&http.Cookie{Name: "token_v2", Value: c.config.AuthToken})
	}
	if c.config.ActiveUser != "" {
		req.Header.Set("x-notion-active-user-header", c.config.ActiveUser)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			notionErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			notionRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		notionErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	notionRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := decodeAPIError(endpoint, resp.StatusCode, resp.Status, body)
	notionErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

	if resp.StatusCode == http.StatusTooManyRequests {
		if resp.Header.Get("Retry-After") != "" {
			apiErr.RetryAfter = ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		if c.rateLimiter != nil {
			if _, err := c.rateLimiter.RecordRetryAfter(ctx, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record backoff")
			}
		}
	}

	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("error_class", string(apiErr.ErrorClass)).
		Str("error_name", apiErr.Name).
		Msg("Notion request error")

	return nil, apiErr
}

// cacheKey scopes cached responses to the identity making the request.
func (c *Client) cacheKey(endpoint string, payload []byte) cache.CacheKey {
	key := cache.CacheKey{Endpoint: endpoint, Body: payload}
	if c.config.ActiveUser != "" {
		key.Params = map[string]string{"user": c.config.ActiveUser}
	} else if c.config.AuthToken != "" {
		key.Params = map[string]string{"auth": "private"}
	}
	return key
}

func decodeBody(endpoint string, data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
