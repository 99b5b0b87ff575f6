package site

import (
	"context"
	"sync"

	"github.com/Sternrassler/notion-site-client/pkg/batch"
	"github.com/Sternrassler/notion-site-client/pkg/notion"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

type cacheState int

const (
	stateUninitialized cacheState = iota
	statePending
	stateResolved
)

func (s cacheState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateResolved:
		return "resolved"
	default:
		return "uninitialized"
	}
}

// navigationCache holds the navigation pages for the lifetime of the
// process. Concurrent first callers share one fetch; a failed fetch leaves
// the cache uninitialized so the next call tries again.
type navigationCache struct {
	fetch func(ctx context.Context) ([]*recordmap.RecordMap, error)
	group singleflight.Group

	mu    sync.Mutex
	state cacheState
	pages []*recordmap.RecordMap
}

func newNavigationCache(fetch func(ctx context.Context) ([]*recordmap.RecordMap, error)) *navigationCache {
	return &navigationCache{fetch: fetch}
}

func (c *navigationCache) get(ctx context.Context) ([]*recordmap.RecordMap, error) {
	if pages, ok := c.resolved(); ok {
		return pages, nil
	}

	ch := c.group.DoChan("navigation", func() (any, error) {
		// a flight that finished just before this one started
		if pages, ok := c.resolved(); ok {
			return pages, nil
		}

		c.setState(statePending)
		// shared by every waiting caller, so no single caller may cancel it
		pages, err := c.fetch(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.state = stateUninitialized
			return nil, err
		}
		c.pages = pages
		c.state = stateResolved
		return pages, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]*recordmap.RecordMap), nil
	}
}

func (c *navigationCache) resolved() ([]*recordmap.RecordMap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages, c.state == stateResolved
}

func (c *navigationCache) setState(s cacheState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *navigationCache) currentState() cacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NavigationLinkPages returns the record maps of the configured navigation
// link pages, in configured order. They are fetched once per process with
// the reduced page profile. With the default navigation style, or without
// any link page, the result is empty and nothing is fetched.
func (l *Loader) NavigationLinkPages(ctx context.Context) ([]*recordmap.RecordMap, error) {
	if !l.cfg.customNavigation() || len(l.cfg.NavigationLinkPageIDs()) == 0 {
		return []*recordmap.RecordMap{}, nil
	}
	return l.navigation.get(ctx)
}

func (l *Loader) fetchNavigationLinkPages(ctx context.Context) (pages []*recordmap.RecordMap, err error) {
	ids := l.cfg.NavigationLinkPageIDs()

	ctx, span := tracer.Start(ctx, "site.NavigationLinkPages", trace.WithAttributes(
		attribute.Int("notion.navigation_links", len(ids)),
	))
	defer func() {
		endSpan(span, err)
		if err != nil {
			navigationFetchesTotal.WithLabelValues("error").Inc()
			l.logger.Warn().Err(err).Int("links", len(ids)).Msg("Navigation pages fetch failed")
			return
		}
		navigationFetchesTotal.WithLabelValues("ok").Inc()
	}()

	cfg := batch.Config{MaxConcurrency: l.cfg.NavigationConcurrency}
	pages, err = batch.Map(ctx, ids, cfg, func(ctx context.Context, id string) (*recordmap.RecordMap, error) {
		opts := notion.ReducedPageOptions()
		return l.api.GetPage(ctx, id, &opts)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info().Int("links", len(ids)).Msg("Navigation pages loaded")
	return pages, nil
}
