package notion

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Sternrassler/notion-site-client/internal/testutil"
)

func TestSearch_RequestBody(t *testing.T) {
	mock := testutil.NewMockNotion()
	defer mock.Close()
	mock.SetSearchResponse(`{
		"results": [{"id": "p1", "isNavigable": true, "score": 12.5, "highlight": {"text": "hello <gzkNfoUU>world</gzkNfoUU>"}}],
		"total": 1,
		"recordMap": {"block": {"p1": {"role": "reader", "value": {"id": "p1", "type": "page", "alive": true}}}}
	}`)

	c := newTestClient(t, mock, nil)
	results, err := c.Search(context.Background(), SearchParams{
		AncestorID: "root",
		Query:      "hello",
		Filters:    map[string]any{"excludeTemplates": false},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if results.Total != 1 || len(results.Results) != 1 || results.Results[0].ID != "p1" {
		t.Errorf("results = %+v", results)
	}
	if results.RecordMap.BlockByID("p1") == nil {
		t.Error("record map block p1 missing")
	}

	var body struct {
		Type       string         `json:"type"`
		Source     string         `json:"source"`
		AncestorID string         `json:"ancestorId"`
		Limit      int            `json:"limit"`
		Query      string         `json:"query"`
		Sort       map[string]any `json:"sort"`
		Filters    map[string]any `json:"filters"`
	}
	if err := json.Unmarshal(mock.Requests(EndpointSearch)[0], &body); err != nil {
		t.Fatalf("decode request: %v", err)
	}

	if body.Type != "BlocksInAncestor" {
		t.Errorf("type = %q, want BlocksInAncestor", body.Type)
	}
	if body.Source != "quick_find_public" {
		t.Errorf("source = %q, want quick_find_public", body.Source)
	}
	if body.AncestorID != "root" || body.Query != "hello" {
		t.Errorf("ancestorId/query = %q/%q", body.AncestorID, body.Query)
	}
	if body.Limit != 20 {
		t.Errorf("limit = %d, want 20", body.Limit)
	}
	if body.Sort["field"] != "relevance" {
		t.Errorf("sort = %v, want relevance", body.Sort)
	}
	if body.Filters["excludeTemplates"] != false {
		t.Error("caller filter did not override default")
	}
	if body.Filters["navigableBlockContentOnly"] != true {
		t.Error("default filter navigableBlockContentOnly missing")
	}
}

func TestSearch_NotCached(t *testing.T) {
	if cacheableEndpoints[EndpointSearch] {
		t.Error("search responses must never be cached")
	}
	if cacheableEndpoints[EndpointGetSignedFileURLs] {
		t.Error("signed urls must never be cached")
	}
}

func TestSearch_QueryNormalized(t *testing.T) {
	mock := testutil.NewMockNotion()
	defer mock.Close()
	mock.SetSearchResponse(`{"results": [], "total": 0}`)

	c := newTestClient(t, mock, nil)
	// "cafe" with a combining acute accent
	if _, err := c.Search(context.Background(), SearchParams{AncestorID: "root", Query: "  cafe\u0301 "}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	var body struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(mock.Requests(EndpointSearch)[0], &body); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if body.Query != "caf\u00e9" {
		t.Errorf("query = %q, want %q", body.Query, "caf\u00e9")
	}
}
