// Package site assembles everything a page renderer needs from the Notion
// content API: the page's record map, signed file URLs, the custom
// navigation pages and optional preview images.
package site

import (
	"context"
	"errors"

	"github.com/Sternrassler/notion-site-client/pkg/logging"
	"github.com/Sternrassler/notion-site-client/pkg/notion"
	"github.com/Sternrassler/notion-site-client/pkg/previewimages"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	pageLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_page_loads_total",
		Help: "Page loads by result (ok, error)",
	}, []string{"result"})

	signedURLsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "site_signed_urls_total",
		Help: "File URLs signed for page loads",
	})

	navigationFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_navigation_fetches_total",
		Help: "Navigation page batch fetches by result (ok, error)",
	}, []string{"result"})
)

var tracer = otel.Tracer("github.com/Sternrassler/notion-site-client/pkg/site")

// ContentAPI is the subset of the Notion client the loader uses.
type ContentAPI interface {
	GetPage(ctx context.Context, pageID string, opts *notion.GetPageOptions) (*recordmap.RecordMap, error)
	GetSignedFileURLs(ctx context.Context, urls []notion.SignedFileURLRequest) (*notion.SignedFileURLsResponse, error)
	Search(ctx context.Context, params notion.SearchParams) (*notion.SearchResults, error)
}

// PreviewResolver computes preview images for a record map.
type PreviewResolver interface {
	Resolve(ctx context.Context, rm *recordmap.RecordMap) (previewimages.Map, error)
}

// MergeFunc merges other into base, keeping base's entries on collision.
type MergeFunc func(base, other *recordmap.RecordMap) *recordmap.RecordMap

// Loader loads pages for the configured site.
type Loader struct {
	api        ContentAPI
	cfg        Config
	previews   PreviewResolver
	merge      MergeFunc
	navigation *navigationCache
	logger     zerolog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithPreviewResolver sets the resolver used when preview images are enabled.
func WithPreviewResolver(r PreviewResolver) Option {
	return func(l *Loader) { l.previews = r }
}

// WithMerge replaces recordmap.Merge.
func WithMerge(fn MergeFunc) Option {
	return func(l *Loader) { l.merge = fn }
}

// WithLogger sets the loader's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader over api.
func NewLoader(api ContentAPI, cfg Config, opts ...Option) (*Loader, error) {
	if api == nil {
		return nil, errors.New("site: content api is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NavigationStyle == "" {
		cfg.NavigationStyle = NavigationStyleDefault
	}

	l := &Loader{
		api:    api,
		cfg:    cfg,
		merge:  recordmap.Merge,
		logger: logging.NewLogger("site-loader"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if cfg.PreviewImageSupport && l.previews == nil {
		return nil, errors.New("site: preview image support enabled without a preview resolver")
	}
	if l.merge == nil {
		l.merge = recordmap.Merge
	}
	l.navigation = newNavigationCache(l.fetchNavigationLinkPages)

	return l, nil
}

// Config returns the loader's configuration.
func (l *Loader) Config() Config {
	return l.cfg
}

// GetPage loads a page with everything needed to render it. Errors of the
// content API and the preview resolver are returned unmodified.
func (l *Loader) GetPage(ctx context.Context, pageID string) (page *Page, err error) {
	ctx, span := tracer.Start(ctx, "site.GetPage", trace.WithAttributes(
		attribute.String("notion.page_id", pageID),
	))
	defer func() {
		endSpan(span, err)
		if err != nil {
			pageLoadsTotal.WithLabelValues("error").Inc()
			l.logger.Warn().Err(err).Str("page_id", pageID).Msg("Page load failed")
			return
		}
		pageLoadsTotal.WithLabelValues("ok").Inc()
	}()

	rm, err := l.api.GetPage(ctx, pageID, nil)
	if err != nil {
		return nil, err
	}

	signed, err := l.SignedURLs(ctx, rm)
	if err != nil {
		return nil, err
	}

	if l.cfg.customNavigation() {
		navPages, err := l.NavigationLinkPages(ctx)
		if err != nil {
			return nil, err
		}
		for _, nav := range navPages {
			rm = l.merge(rm, nav)
		}
	}

	page = &Page{RecordMap: rm, SignedURLs: signed}

	if l.cfg.PreviewImageSupport {
		previews, err := l.previews.Resolve(ctx, rm)
		if err != nil {
			return nil, err
		}
		if previews == nil {
			previews = previewimages.Map{}
		}
		page.PreviewImages = previews
	}

	l.logger.Debug().
		Str("page_id", pageID).
		Int("blocks", len(rm.Block)).
		Int("signed_urls", len(signed)).
		Int("preview_images", len(page.PreviewImages)).
		Msg("Page loaded")

	return page, nil
}

// Search forwards params to the content API and returns its answer as is.
func (l *Loader) Search(ctx context.Context, params notion.SearchParams) (results *notion.SearchResults, err error) {
	ctx, span := tracer.Start(ctx, "site.Search", trace.WithAttributes(
		attribute.String("notion.ancestor_id", params.AncestorID),
	))
	defer func() { endSpan(span, err) }()

	return l.api.Search(ctx, params)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
