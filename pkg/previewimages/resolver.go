// Package previewimages computes low-quality image placeholders (LQIP) for
// the images referenced by a record map, so pages can render blurred
// previews while the real images load.
package previewimages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/notion-site-client/pkg/batch"
	"github.com/Sternrassler/notion-site-client/pkg/cache"
	"github.com/Sternrassler/notion-site-client/pkg/logging"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	previewRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "preview_images_total",
		Help: "Preview image lookups by result (cached, computed, failed)",
	}, []string{"result"})

	previewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "preview_image_duration_seconds",
		Help:    "Time to fetch and downscale one image",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
)

// PreviewImage is the placeholder of one image.
type PreviewImage struct {
	OriginalWidth  int    `json:"originalWidth"`
	OriginalHeight int    `json:"originalHeight"`
	DataURIBase64  string `json:"dataURIBase64"`
}

// Map holds one placeholder per image URL. A nil value marks an image whose
// placeholder could not be computed.
type Map map[string]*PreviewImage

// Config holds the resolver configuration.
type Config struct {
	// HTTPClient fetches the source images
	HTTPClient *http.Client

	// Cache stores computed placeholders (optional)
	Cache *cache.Manager

	// CacheTTL of stored placeholders
	CacheTTL time.Duration

	// MaxConcurrency bounds parallel image fetches
	MaxConcurrency int

	// PlaceholderWidth in pixels
	PlaceholderWidth int

	// MaxImageBytes caps the size of a source image
	MaxImageBytes int64

	// MaxImagePixels caps width*height of a source image; larger images are
	// rejected from their header without being decoded
	MaxImagePixels int

	UserAgent string
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig(c *cache.Manager) Config {
	return Config{
		Cache:            c,
		CacheTTL:         30 * 24 * time.Hour,
		MaxConcurrency:   8,
		PlaceholderWidth: 16,
		MaxImageBytes:    20 << 20,
		MaxImagePixels:   defaultMaxImagePixels,
		UserAgent:        "notion-site-client",
	}
}

// Resolver computes placeholders for record maps.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.PlaceholderWidth <= 0 {
		return nil, fmt.Errorf("placeholder width must be > 0 (got %d)", cfg.PlaceholderWidth)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 20 << 20
	}
	if cfg.MaxImagePixels <= 0 {
		cfg.MaxImagePixels = defaultMaxImagePixels
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Resolver{
		cfg:    cfg,
		client: client,
		logger: logging.NewLogger("preview-images"),
	}, nil
}

// Resolve computes the placeholders of every image referenced by rm.
// Failing images are logged and mapped to nil; only a cancelled ctx makes
// Resolve fail.
func (r *Resolver) Resolve(ctx context.Context, rm *recordmap.RecordMap) (Map, error) {
	sources := recordmap.ImageSources(rm)
	out := make(Map, len(sources))
	if len(sources) == 0 {
		return out, nil
	}

	previews, err := batch.Map(ctx, sources, batch.Config{MaxConcurrency: r.cfg.MaxConcurrency},
		func(ctx context.Context, src recordmap.ImageSource) (*PreviewImage, error) {
			p, err := r.preview(ctx, src.URL, src.FetchURL)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				r.logger.Warn().Err(err).Str("url", src.URL).Msg("Preview image failed")
				return nil, nil
			}
			return p, nil
		})
	if err != nil {
		return nil, err
	}

	for i, src := range sources {
		out[src.URL] = previews[i]
	}

	r.logger.Debug().Int("images", len(sources)).Msg("Preview images resolved")
	return out, nil
}

// Preview returns the placeholder of a single image, from cache when
// possible.
func (r *Resolver) Preview(ctx context.Context, url string) (*PreviewImage, error) {
	return r.preview(ctx, url, url)
}

// preview caches under url, which stays stable while the signed fetchURL
// of a hosted image changes with every page load.
func (r *Resolver) preview(ctx context.Context, url, fetchURL string) (*PreviewImage, error) {
	key := cacheKey(url)

	if r.cfg.Cache != nil {
		var cached PreviewImage
		entry, err := r.cfg.Cache.GetJSON(ctx, key, &cached)
		switch {
		case err == nil:
			previewRequestsTotal.WithLabelValues("cached").Inc()
			// keep frequently viewed placeholders alive
			if entry.TTL() < r.cfg.CacheTTL/2 {
				if err := r.cfg.Cache.UpdateTTL(ctx, key, time.Now().Add(r.cfg.CacheTTL)); err != nil {
					r.logger.Debug().Err(err).Str("url", url).Msg("Failed to extend preview TTL")
				}
			}
			return &cached, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			r.logger.Warn().Err(err).Str("url", url).Msg("Preview cache get error")
		}
	}

	start := time.Now()
	preview, err := r.compute(ctx, fetchURL)
	previewDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		previewRequestsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	previewRequestsTotal.WithLabelValues("computed").Inc()

	if r.cfg.Cache != nil {
		if err := r.cfg.Cache.SetJSON(ctx, key, preview, r.cfg.CacheTTL); err != nil {
			r.logger.Warn().Err(err).Str("url", url).Msg("Failed to cache preview image")
		}
	}
	return preview, nil
}

func (r *Resolver) compute(ctx context.Context, url string) (*PreviewImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > r.cfg.MaxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", r.cfg.MaxImageBytes)
	}

	return makePreview(data, r.cfg.PlaceholderWidth, r.cfg.MaxImagePixels)
}

func cacheKey(url string) cache.CacheKey {
	return cache.CacheKey{Endpoint: "preview", Body: []byte(url)}
}
