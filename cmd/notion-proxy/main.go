// Command notion-proxy serves Notion pages and search as JSON for a site
// renderer.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/notion-site-client/pkg/logging"
	"github.com/Sternrassler/notion-site-client/pkg/notion"
	"github.com/Sternrassler/notion-site-client/pkg/previewimages"
	"github.com/Sternrassler/notion-site-client/pkg/site"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	userAgent := getEnv("USER_AGENT", "notion-site-client/0.1.0")

	logger := logging.Setup(logging.ConfigFromEnv(os.Getenv))

	siteCfg, err := loadSiteConfig(os.Getenv("SITE_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load site config")
	}

	// Redis is optional; REDIS_URL=none runs without cache and shared backoff
	var redisClient *redis.Client
	if redisURL != "none" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("redis", redisURL).Msg("Connected to Redis")
		defer redisClient.Close()
	}

	clientCfg := notion.DefaultConfig(redisClient, userAgent)
	clientCfg.BaseURL = getEnv("NOTION_API_URL", notion.DefaultBaseURL)
	clientCfg.AuthToken = os.Getenv("NOTION_TOKEN")
	clientCfg.ActiveUser = os.Getenv("NOTION_ACTIVE_USER")
	notionClient, err := notion.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Notion client")
	}
	defer notionClient.Close()

	var opts []site.Option
	if siteCfg.PreviewImageSupport {
		previewCfg := previewimages.DefaultConfig(notionClient.GetCache())
		previewCfg.UserAgent = userAgent
		resolver, err := previewimages.New(previewCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create preview image resolver")
		}
		opts = append(opts, site.WithPreviewResolver(resolver))
	}

	loader, err := site.NewLoader(notionClient, siteCfg, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create site loader")
	}

	srv := &http.Server{
		Addr: ":" + port,
		Handler: newRouter(&server{
			loader:     loader,
			rootPageID: siteCfg.RootPageID,
			ready:      redisPing(redisClient),
			logger:     logging.NewLogger("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("user_agent", userAgent).
			Str("navigation_style", string(siteCfg.NavigationStyle)).
			Bool("preview_images", siteCfg.PreviewImageSupport).
			Msg("Starting Notion proxy server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// wait for ctrl+c / sigterm
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdown(srv, logger)
}

func shutdown(srv *http.Server, logger zerolog.Logger) {
	logger.Info().Msg("Shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}
	logger.Info().Msg("Shutdown complete")
}

// loadSiteConfig reads path, or returns the default configuration when
// path is empty.
func loadSiteConfig(path string) (site.Config, error) {
	if path == "" {
		return site.DefaultConfig(), nil
	}
	return site.LoadConfig(path)
}

// redisPing returns the readiness check for client; nil when Redis is off.
func redisPing(client *redis.Client) pingFunc {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
