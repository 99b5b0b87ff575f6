package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency is the number of calls allowed in flight at once.
const DefaultMaxConcurrency = 4

// Config holds fan-out configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel calls
	MaxConcurrency int
	// Timeout per call; zero means the caller's context alone applies
	Timeout time.Duration
}

// DefaultConfig returns the default fan-out configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

func (c Config) normalized() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return c
}

// Map calls fn for every item with bounded concurrency and returns the
// results in input order. The first error aborts the batch and is returned
// unmodified.
func Map[T, R any](ctx context.Context, items []T, cfg Config, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	cfg = cfg.normalized()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	launched := 0
	for i, item := range items {
		// g.Go blocks while the limit is reached; stop feeding once failed
		if gctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			callCtx := gctx
			if cfg.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, cfg.Timeout)
				defer cancel()
			}

			r, err := fn(callCtx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Debug().
			Err(err).
			Int("items", len(items)).
			Int("max_concurrency", cfg.MaxConcurrency).
			Dur("duration", time.Since(start)).
			Msg("Batch aborted")
		return nil, err
	}

	// a cancelled parent stops the loop without any fn failing
	if launched < len(items) {
		return nil, ctx.Err()
	}

	log.Debug().
		Int("items", len(items)).
		Int("max_concurrency", cfg.MaxConcurrency).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results, nil
}

// ForEach calls fn for every item with bounded concurrency. The first error
// aborts the batch and is returned unmodified.
func ForEach[T any](ctx context.Context, items []T, cfg Config, fn func(ctx context.Context, item T) error) error {
	_, err := Map(ctx, items, cfg, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	return err
}
