package notion

import (
	"encoding/json"

	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
)

// API method names, appended to Config.BaseURL.
const (
	EndpointLoadPageChunk     = "loadPageChunk"
	EndpointSyncRecordValues  = "syncRecordValues"
	EndpointQueryCollection   = "queryCollection"
	EndpointGetSignedFileURLs = "getSignedFileUrls"
	EndpointSearch            = "search"
)

// GetPageOptions controls how much of a page GetPage resolves.
type GetPageOptions struct {
	// ChunkLimit caps the number of loadPageChunk calls
	ChunkLimit int
	// FetchMissingBlocks resolves content children the chunks left out
	FetchMissingBlocks bool
	// FetchCollections runs every collection view query on the page
	FetchCollections bool
	// SignFileURLs fills RecordMap.SignedURLs for hosted files
	SignFileURLs bool
}

// DefaultGetPageOptions returns the full-fetch profile.
func DefaultGetPageOptions() GetPageOptions {
	return GetPageOptions{
		ChunkLimit:         10,
		FetchMissingBlocks: true,
		FetchCollections:   true,
		SignFileURLs:       true,
	}
}

// ReducedPageOptions returns the cheap profile used for pages that are only
// needed for their title and slug.
func ReducedPageOptions() GetPageOptions {
	return GetPageOptions{
		ChunkLimit:         1,
		FetchMissingBlocks: false,
		FetchCollections:   false,
		SignFileURLs:       false,
	}
}

// Cursor is the opaque pagination cursor of loadPageChunk.
type Cursor struct {
	Stack []json.RawMessage `json:"stack"`
}

// Done reports whether there are no more chunks.
func (c Cursor) Done() bool {
	return len(c.Stack) == 0
}

type loadPageChunkRequest struct {
	PageID          string `json:"pageId"`
	Limit           int    `json:"limit"`
	ChunkNumber     int    `json:"chunkNumber"`
	Cursor          Cursor `json:"cursor"`
	VerticalColumns bool   `json:"verticalColumns"`
}

// PageChunk is one page of loadPageChunk results.
type PageChunk struct {
	Cursor    Cursor               `json:"cursor"`
	RecordMap *recordmap.RecordMap `json:"recordMap"`
}

// Pointer identifies a record.
type Pointer struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

type syncRecordRequest struct {
	Pointer Pointer `json:"pointer"`
	Version int     `json:"version"`
}

type syncRecordValuesRequest struct {
	Requests []syncRecordRequest `json:"requests"`
}

type syncRecordValuesResponse struct {
	RecordMap *recordmap.RecordMap `json:"recordMap"`
}

type queryCollectionRequest struct {
	Collection     idRef           `json:"collection"`
	CollectionView idRef           `json:"collectionView"`
	Loader         collectionQuery `json:"loader"`
}

type idRef struct {
	ID string `json:"id"`
}

type collectionQuery struct {
	Type         string                     `json:"type"`
	Reducers     map[string]collectionLimit `json:"reducers"`
	SearchQuery  string                     `json:"searchQuery"`
	UserTimeZone string                     `json:"userTimeZone"`
}

type collectionLimit struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

// CollectionQueryResult is the response of queryCollection.
type CollectionQueryResult struct {
	Result struct {
		Type           string          `json:"type"`
		ReducerResults json.RawMessage `json:"reducerResults"`
	} `json:"result"`
	RecordMap *recordmap.RecordMap `json:"recordMap"`
}

// PermissionRecord names the record a signing request is authorized against.
type PermissionRecord struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// SignedFileURLRequest asks for a signed URL for one hosted file.
type SignedFileURLRequest struct {
	URL              string           `json:"url"`
	PermissionRecord PermissionRecord `json:"permissionRecord"`
}

type signedFileURLsRequest struct {
	URLs []SignedFileURLRequest `json:"urls"`
}

// SignedFileURLsResponse holds one signed URL per request, in request order.
type SignedFileURLsResponse struct {
	SignedURLs []string `json:"signedUrls"`
}

// SearchParams are the caller-facing search parameters.
type SearchParams struct {
	AncestorID string `json:"ancestorId"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	// Filters override individual default search filters
	Filters map[string]any `json:"filters,omitempty"`
}

type searchRequest struct {
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	AncestorID string         `json:"ancestorId"`
	Sort       map[string]any `json:"sort"`
	Limit      int            `json:"limit"`
	Query      string         `json:"query"`
	Filters    map[string]any `json:"filters"`
}

// SearchResults is the response of search.
type SearchResults struct {
	RecordMap *recordmap.RecordMap `json:"recordMap"`
	Results   []SearchResult       `json:"results"`
	Total     int                  `json:"total"`
}

// SearchResult is one hit.
type SearchResult struct {
	ID          string           `json:"id"`
	IsNavigable bool             `json:"isNavigable"`
	Score       float64          `json:"score"`
	Highlight   *SearchHighlight `json:"highlight,omitempty"`
}

// SearchHighlight holds the matched text snippets.
type SearchHighlight struct {
	PathText string `json:"pathText,omitempty"`
	Text     string `json:"text,omitempty"`
}
