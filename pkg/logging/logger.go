// Package logging provides structured logging configuration using zerolog.
// Packages obtain component loggers through NewLogger after Setup has
// installed the global logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is the LOG_LEVEL value of the proxy; anything unrecognised
// falls back to LevelInfo.
type LogLevel string

// Levels from most to least verbose. Per-block and per-cache-key events are
// debug only; see the guidelines at the bottom of this file.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type Config struct {
	Level LogLevel

	// Pretty switches to zerolog's console writer for local runs. Deployed
	// proxies log JSON lines.
	Pretty bool

	Output io.Writer
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup installs the process-wide logger that NewLogger derives component
// loggers from, and returns it for use in main. It also sets zerolog's
// global level, so it should run once before any client is built.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ConfigFromEnv builds a Config from LOG_LEVEL and LOG_PRETTY, read through
// getenv. Unset variables keep the defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := DefaultConfig()
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if pretty, err := strconv.ParseBool(getenv("LOG_PRETTY")); err == nil {
		cfg.Pretty = pretty
	}
	return cfg
}

// NewLogger tags the global logger with component, e.g. "notion-client" or
// "preview-images". Loggers created before Setup keep zerolog's default
// output.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, endpoint, TTL)
//   - Page assembly (chunks, blocks, collections, signed URLs)
//   - Navigation cache state changes
//
// Info: Normal operation events
//   - Requests that succeeded after retry
//   - Server startup/shutdown
//   - Redis availability at startup
//
// Warn: Warning conditions that don't prevent operation
//   - Notion 429 responses and active backoff
//   - Skipped collection views, file blocks without source, failed previews
//   - Cache errors (fallback to direct request)
//   - Failed page or search requests served to a browser
//
// Error: Error conditions requiring attention
//   - Network failures talking to Notion
//   - Service unavailability
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting package (notion-client, site-loader, preview-images, http)
//   - endpoint: Notion API method (loadPageChunk, getSignedFileUrls, ...)
//   - page_id: Dashed page ID
//   - status: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, network)
//   - retry_in: Remaining backoff
//   - ttl: Cache entry TTL
