// Package testutil provides testing utilities for the Notion client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
)

// MockFailure makes an endpoint answer with an error status.
type MockFailure struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	// Times is the number of requests that fail; negative fails forever
	Times int
}

type collectionFixture struct {
	reducerResults json.RawMessage
	recordMap      *recordmap.RecordMap
}

// MockNotion is a configurable mock of the Notion v3 API for testing.
// The API base URL is URL() + "/api/v3".
type MockNotion struct {
	server *httptest.Server

	mu          sync.RWMutex
	handlers    map[string]http.HandlerFunc
	pages       map[string][]*recordmap.RecordMap
	blocks      map[string]*recordmap.BlockEntry
	collections map[string]collectionFixture
	signer      func(url, blockID string) string
	search      string
	failures    map[string]*MockFailure
	delays      map[string]time.Duration

	// Tracking
	counts            map[string]int
	bodies            map[string][][]byte
	LastRequestHeader http.Header
}

// NewMockNotion creates a new mock Notion server.
func NewMockNotion() *MockNotion {
	mock := &MockNotion{
		handlers:    make(map[string]http.HandlerFunc),
		pages:       make(map[string][]*recordmap.RecordMap),
		blocks:      make(map[string]*recordmap.BlockEntry),
		collections: make(map[string]collectionFixture),
		failures:    make(map[string]*MockFailure),
		delays:      make(map[string]time.Duration),
		counts:      make(map[string]int),
		bodies:      make(map[string][][]byte),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockNotion) URL() string {
	return m.server.URL
}

// BaseURL returns the v3 API root to configure a client with.
func (m *MockNotion) BaseURL() string {
	return m.server.URL + "/api/v3"
}

// Close shuts down the mock server.
func (m *MockNotion) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockNotion) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	m.bodies = make(map[string][][]byte)
	m.LastRequestHeader = nil
}

// SetHandler replaces the built-in behaviour of an endpoint.
func (m *MockNotion) SetHandler(endpoint string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[endpoint] = handler
}

// AddPage registers the loadPageChunk chunks of a page. Every block of every
// chunk is also served by syncRecordValues.
func (m *MockNotion) AddPage(pageID string, chunks ...*recordmap.RecordMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageID] = chunks
	for _, chunk := range chunks {
		for id, entry := range chunk.Block {
			m.blocks[id] = entry
		}
	}
}

// AddBlock makes a block available to syncRecordValues only.
func (m *MockNotion) AddBlock(entry *recordmap.BlockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[entry.Value.ID] = entry
}

// SetCollectionQuery registers the queryCollection answer for a view.
func (m *MockNotion) SetCollectionQuery(collectionID, viewID, reducerResults string, rm *recordmap.RecordMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collectionID+"/"+viewID] = collectionFixture{
		reducerResults: json.RawMessage(reducerResults),
		recordMap:      rm,
	}
}

// SetSigner sets how getSignedFileUrls signs a URL. The default appends a
// mock signature query. A signer returning "" yields an empty slot.
func (m *MockNotion) SetSigner(signer func(url, blockID string) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signer = signer
}

// SetSearchResponse sets the raw JSON body returned by search.
func (m *MockNotion) SetSearchResponse(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.search = body
}

// SetFailure makes the next requests to endpoint fail.
func (m *MockNotion) SetFailure(endpoint string, failure MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := failure
	m.failures[endpoint] = &f
}

// FailEndpoint makes the next n requests to endpoint fail with status.
func (m *MockNotion) FailEndpoint(endpoint string, status, n int) {
	m.SetFailure(endpoint, MockFailure{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"errorId":"mock","name":"MockError","message":"injected %d"}`, status),
		Times:      n,
	})
}

// SetDelay delays every response of endpoint.
func (m *MockNotion) SetDelay(endpoint string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[endpoint] = d
}

// RequestCount returns the number of requests made to endpoint.
func (m *MockNotion) RequestCount(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[endpoint]
}

// TotalRequests returns the number of requests across all endpoints.
func (m *MockNotion) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

// Requests returns the raw bodies received by endpoint, oldest first.
func (m *MockNotion) Requests(endpoint string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.bodies[endpoint]))
	copy(out, m.bodies[endpoint])
	return out
}

func (m *MockNotion) serve(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, "/api/v3/")
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.counts[endpoint]++
	m.bodies[endpoint] = append(m.bodies[endpoint], body)
	m.LastRequestHeader = r.Header.Clone()
	delay := m.delays[endpoint]
	failure := m.failures[endpoint]
	var fail *MockFailure
	if failure != nil && failure.Times != 0 {
		f := *failure
		fail = &f
		if failure.Times > 0 {
			failure.Times--
		}
	}
	handler := m.handlers[endpoint]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if fail != nil {
		for key, value := range fail.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fail.StatusCode)
		w.Write([]byte(fail.Body))
		return
	}

	if handler != nil {
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		handler(w, r)
		return
	}

	switch endpoint {
	case "loadPageChunk":
		m.loadPageChunk(w, body)
	case "syncRecordValues":
		m.syncRecordValues(w, body)
	case "queryCollection":
		m.queryCollection(w, body)
	case "getSignedFileUrls":
		m.getSignedFileURLs(w, body)
	case "search":
		m.searchHandler(w)
	default:
		writeError(w, http.StatusNotFound, "unknown endpoint "+endpoint)
	}
}

func (m *MockNotion) loadPageChunk(w http.ResponseWriter, body []byte) {
	var req struct {
		PageID      string `json:"pageId"`
		ChunkNumber int    `json:"chunkNumber"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m.mu.RLock()
	chunks := m.pages[req.PageID]
	m.mu.RUnlock()

	resp := map[string]any{
		"cursor":    map[string]any{"stack": []any{}},
		"recordMap": map[string]any{"block": map[string]any{}},
	}
	if req.ChunkNumber < len(chunks) {
		resp["recordMap"] = chunks[req.ChunkNumber]
		if req.ChunkNumber < len(chunks)-1 {
			resp["cursor"] = map[string]any{"stack": []any{[]any{map[string]any{
				"table": "block",
				"id":    req.PageID,
				"index": req.ChunkNumber + 1,
			}}}}
		}
	}
	writeJSON(w, resp)
}

func (m *MockNotion) syncRecordValues(w http.ResponseWriter, body []byte) {
	var req struct {
		Requests []struct {
			Pointer struct {
				Table string `json:"table"`
				ID    string `json:"id"`
			} `json:"pointer"`
		} `json:"requests"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rm := recordmap.New()
	m.mu.RLock()
	for _, r := range req.Requests {
		if entry, ok := m.blocks[r.Pointer.ID]; ok {
			rm.Block[r.Pointer.ID] = entry
		}
	}
	m.mu.RUnlock()

	writeJSON(w, map[string]any{"recordMap": rm})
}

func (m *MockNotion) queryCollection(w http.ResponseWriter, body []byte) {
	var req struct {
		Collection struct {
			ID string `json:"id"`
		} `json:"collection"`
		CollectionView struct {
			ID string `json:"id"`
		} `json:"collectionView"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m.mu.RLock()
	fixture, ok := m.collections[req.Collection.ID+"/"+req.CollectionView.ID]
	m.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown collection view")
		return
	}

	rm := fixture.recordMap
	if rm == nil {
		rm = recordmap.New()
	}
	writeJSON(w, map[string]any{
		"result": map[string]any{
			"type":           "reducer",
			"reducerResults": fixture.reducerResults,
		},
		"recordMap": rm,
	})
}

func (m *MockNotion) getSignedFileURLs(w http.ResponseWriter, body []byte) {
	var req struct {
		URLs []struct {
			URL              string `json:"url"`
			PermissionRecord struct {
				Table string `json:"table"`
				ID    string `json:"id"`
			} `json:"permissionRecord"`
		} `json:"urls"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m.mu.RLock()
	signer := m.signer
	m.mu.RUnlock()
	if signer == nil {
		signer = DefaultSigner
	}

	signed := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		signed = append(signed, signer(u.URL, u.PermissionRecord.ID))
	}
	writeJSON(w, map[string]any{"signedUrls": signed})
}

func (m *MockNotion) searchHandler(w http.ResponseWriter) {
	m.mu.RLock()
	body := m.search
	m.mu.RUnlock()
	if body == "" {
		body = `{"results":[],"total":0,"recordMap":{"block":{}}}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// DefaultSigner is the signer used unless SetSigner was called.
func DefaultSigner(url, blockID string) string {
	return url + "?signature=mock-" + blockID
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"errorId": "mock",
		"name":    http.StatusText(status),
		"message": message,
	})
}

// PageBlock builds a page block entry.
func PageBlock(id, title string, content ...string) *recordmap.BlockEntry {
	props := map[string]json.RawMessage{}
	if title != "" {
		raw, _ := json.Marshal([][]string{{title}})
		props["title"] = raw
	}
	return &recordmap.BlockEntry{Role: "reader", Value: &recordmap.Block{
		ID:         id,
		Type:       recordmap.TypePage,
		Alive:      true,
		Content:    content,
		Properties: props,
	}}
}

// FileBlock builds a block of the given type whose source is url.
func FileBlock(id, typ, url string) *recordmap.BlockEntry {
	props := map[string]json.RawMessage{}
	if url != "" {
		raw, _ := json.Marshal([][]string{{url}})
		props["source"] = raw
	}
	return &recordmap.BlockEntry{Role: "reader", Value: &recordmap.Block{
		ID:         id,
		Type:       typ,
		Alive:      true,
		Properties: props,
	}}
}

// RecordMapOf builds a record map holding the given blocks.
func RecordMapOf(blocks ...*recordmap.BlockEntry) *recordmap.RecordMap {
	rm := recordmap.New()
	for _, b := range blocks {
		rm.Block[b.Value.ID] = b
	}
	return rm
}
