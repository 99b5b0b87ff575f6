package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/notion-site-client/pkg/metrics"
	"github.com/Sternrassler/notion-site-client/pkg/notion"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
	"github.com/Sternrassler/notion-site-client/pkg/site"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxSearchBody caps the size of a search request body.
const maxSearchBody = 64 << 10

// pageTimeout bounds a single page load including navigation and previews.
const pageTimeout = 60 * time.Second

// siteLoader is the part of site.Loader the HTTP layer serves.
type siteLoader interface {
	GetPage(ctx context.Context, pageID string) (*site.Page, error)
	Search(ctx context.Context, params notion.SearchParams) (*notion.SearchResults, error)
}

// pingFunc reports whether a backing service is reachable.
type pingFunc func(ctx context.Context) error

type server struct {
	loader     siteLoader
	rootPageID string
	ready      pingFunc
	logger     zerolog.Logger
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(s.ready))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/pages/{pageID}", s.pageHandler)
		r.Post("/search", s.searchHandler)
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/health", "/ready", "/metrics":
				return false
			}
			return true
		}),
	)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ping pingFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				http.Error(w, fmt.Sprintf("not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func (s *server) pageHandler(w http.ResponseWriter, r *http.Request) {
	pageID, err := recordmap.NormalizeID(chi.URLParam(r, "pageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pageTimeout)
	defer cancel()

	page, err := s.loader.GetPage(ctx, pageID)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn().
			Err(err).
			Str("page_id", pageID).
			Int("status", status).
			Msg("Page request failed")
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	var params notion.SearchParams
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody))
	if err := dec.Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode search request: %w", err))
		return
	}
	if params.AncestorID == "" {
		params.AncestorID = s.rootPageID
	}
	if params.AncestorID == "" {
		writeError(w, http.StatusBadRequest, errors.New("ancestorId is required"))
		return
	}
	ancestor, err := recordmap.NormalizeID(params.AncestorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	params.AncestorID = ancestor

	results, err := s.loader.Search(r.Context(), params)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn().
			Err(err).
			Str("ancestor_id", ancestor).
			Int("status", status).
			Msg("Search request failed")
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// statusFor maps loader errors to the status returned to the browser.
func statusFor(err error) int {
	switch {
	case errors.Is(err, notion.ErrPageNotFound), notion.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, notion.ErrRequestBlocked):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
