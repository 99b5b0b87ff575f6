package site

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/notion-site-client/pkg/notion"
	"github.com/Sternrassler/notion-site-client/pkg/previewimages"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
)

// fakeAPI is an in-memory ContentAPI.
type fakeAPI struct {
	mu       sync.Mutex
	pages    map[string]*recordmap.RecordMap
	pageErr  map[string]error
	delays   map[string]time.Duration
	getCalls []getCall

	signErr    map[string]error
	signEmpty  map[string]bool
	signCalls  []notion.SignedFileURLRequest
	signActive atomic.Int32
	signPeak   atomic.Int32
	signDelay  time.Duration

	navActive atomic.Int32
	navPeak   atomic.Int32

	searchResult *notion.SearchResults
	searchErr    error
	searchParams []notion.SearchParams
}

type getCall struct {
	pageID string
	opts   *notion.GetPageOptions
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:     make(map[string]*recordmap.RecordMap),
		pageErr:   make(map[string]error),
		delays:    make(map[string]time.Duration),
		signErr:   make(map[string]error),
		signEmpty: make(map[string]bool),
	}
}

func (f *fakeAPI) GetPage(ctx context.Context, pageID string, opts *notion.GetPageOptions) (*recordmap.RecordMap, error) {
	f.mu.Lock()
	f.getCalls = append(f.getCalls, getCall{pageID: pageID, opts: opts})
	rm, err, delay := f.pages[pageID], f.pageErr[pageID], f.delays[pageID]
	f.mu.Unlock()

	if opts != nil {
		trackPeak(&f.navActive, &f.navPeak)
		defer f.navActive.Add(-1)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, notion.ErrPageNotFound
	}
	return rm, nil
}

func (f *fakeAPI) GetSignedFileURLs(ctx context.Context, urls []notion.SignedFileURLRequest) (*notion.SignedFileURLsResponse, error) {
	trackPeak(&f.signActive, &f.signPeak)
	defer f.signActive.Add(-1)

	f.mu.Lock()
	f.signCalls = append(f.signCalls, urls...)
	f.mu.Unlock()

	if f.signDelay > 0 {
		select {
		case <-time.After(f.signDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	resp := &notion.SignedFileURLsResponse{}
	for _, u := range urls {
		if err := f.signErr[u.PermissionRecord.ID]; err != nil {
			return nil, err
		}
		if f.signEmpty[u.PermissionRecord.ID] {
			continue
		}
		resp.SignedURLs = append(resp.SignedURLs, u.URL+"?signed="+u.PermissionRecord.ID)
	}
	return resp, nil
}

func (f *fakeAPI) Search(_ context.Context, params notion.SearchParams) (*notion.SearchResults, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchParams = append(f.searchParams, params)
	return f.searchResult, f.searchErr
}

func (f *fakeAPI) calls() []getCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]getCall, len(f.getCalls))
	copy(out, f.getCalls)
	return out
}

func (f *fakeAPI) navCalls() []getCall {
	var out []getCall
	for _, c := range f.calls() {
		if c.opts != nil {
			out = append(out, c)
		}
	}
	return out
}

func trackPeak(active, peak *atomic.Int32) {
	n := active.Add(1)
	for {
		p := peak.Load()
		if n <= p || peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// fakePreviews records the record maps it resolved.
type fakePreviews struct {
	mu     sync.Mutex
	seen   []*recordmap.RecordMap
	result previewimages.Map
	err    error
}

func (p *fakePreviews) Resolve(_ context.Context, rm *recordmap.RecordMap) (previewimages.Map, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, rm)
	return p.result, p.err
}

func block(id, typ string) *recordmap.BlockEntry {
	return &recordmap.BlockEntry{Role: "reader", Value: &recordmap.Block{ID: id, Type: typ, Alive: true}}
}

func fileBlock(id, typ, source string) *recordmap.BlockEntry {
	entry := block(id, typ)
	if source != "" {
		raw, _ := json.Marshal([][]string{{source}})
		entry.Value.Properties = map[string]json.RawMessage{"source": raw}
	}
	return entry
}

func recordMapOf(blocks ...*recordmap.BlockEntry) *recordmap.RecordMap {
	rm := recordmap.New()
	for _, b := range blocks {
		rm.Block[b.Value.ID] = b
	}
	return rm
}
