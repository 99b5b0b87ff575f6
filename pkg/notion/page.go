package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/notion-site-client/pkg/batch"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
)

const (
	// pageChunkSize is the number of blocks requested per loadPageChunk call.
	pageChunkSize = 100

	// collectionResultLimit caps the rows loaded per collection view.
	collectionResultLimit = 999

	// collectionConcurrency bounds parallel queryCollection calls per page.
	collectionConcurrency = 3

	// maxMissingBlockRounds bounds the syncRecordValues loop.
	maxMissingBlockRounds = 10
)

// ErrPageNotFound is returned when the requested page block is not part of
// the loaded record map (deleted, private, or never existed).
var ErrPageNotFound = errors.New("notion page not found")

// GetPage loads the record map of a page. A nil opts means
// DefaultGetPageOptions.
func (c *Client) GetPage(ctx context.Context, pageID string, opts *GetPageOptions) (*recordmap.RecordMap, error) {
	o := DefaultGetPageOptions()
	if opts != nil {
		o = *opts
	}
	if o.ChunkLimit < 1 {
		o.ChunkLimit = 1
	}

	id, err := recordmap.NormalizeID(pageID)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With().Str("page_id", id).Logger()

	rm := recordmap.New()
	var cursor Cursor
	chunks := 0
	for chunks < o.ChunkLimit {
		chunk, err := c.LoadPageChunk(ctx, id, chunks, cursor)
		if err != nil {
			return nil, err
		}
		chunks++
		rm = recordmap.Merge(rm, chunk.RecordMap)
		if chunk.Cursor.Done() {
			break
		}
		cursor = chunk.Cursor
	}

	if rm.BlockByID(id) == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}

	if o.FetchMissingBlocks {
		if err := c.fetchMissingBlocks(ctx, rm); err != nil {
			return nil, err
		}
	}

	if o.FetchCollections {
		c.fetchCollections(ctx, rm)
	}

	if o.SignFileURLs {
		c.signHostedFiles(ctx, rm)
	}

	// the optional steps swallow their errors; a cancelled caller must not
	// receive a half-resolved page
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debug().
		Int("chunks", chunks).
		Int("blocks", len(rm.Block)).
		Int("collections", len(rm.Collection)).
		Int("signed_urls", len(rm.SignedURLs)).
		Msg("Page loaded")

	return rm, nil
}

// LoadPageChunk fetches one chunk of a page. Chunk numbers start at 0; pass
// the cursor returned by the previous chunk.
func (c *Client) LoadPageChunk(ctx context.Context, pageID string, chunkNumber int, cursor Cursor) (*PageChunk, error) {
	if cursor.Stack == nil {
		cursor.Stack = []json.RawMessage{}
	}
	req := loadPageChunkRequest{
		PageID:          pageID,
		Limit:           pageChunkSize,
		ChunkNumber:     chunkNumber,
		Cursor:          cursor,
		VerticalColumns: false,
	}

	var chunk PageChunk
	if err := c.Do(ctx, EndpointLoadPageChunk, req, &chunk); err != nil {
		return nil, err
	}
	if chunk.RecordMap == nil {
		chunk.RecordMap = recordmap.New()
	}
	return &chunk, nil
}

// SyncRecordValues fetches the latest version of the given blocks.
func (c *Client) SyncRecordValues(ctx context.Context, blockIDs []string) (*recordmap.RecordMap, error) {
	req := syncRecordValuesRequest{Requests: make([]syncRecordRequest, 0, len(blockIDs))}
	for _, id := range blockIDs {
		req.Requests = append(req.Requests, syncRecordRequest{
			Pointer: Pointer{Table: "block", ID: id},
			Version: -1,
		})
	}

	var resp syncRecordValuesResponse
	if err := c.Do(ctx, EndpointSyncRecordValues, req, &resp); err != nil {
		return nil, err
	}
	if resp.RecordMap == nil {
		return recordmap.New(), nil
	}
	return resp.RecordMap, nil
}

// QueryCollection loads the rows of one collection view.
func (c *Client) QueryCollection(ctx context.Context, collectionID, viewID string) (*CollectionQueryResult, error) {
	req := queryCollectionRequest{
		Collection:     idRef{ID: collectionID},
		CollectionView: idRef{ID: viewID},
		Loader: collectionQuery{
			Type: "reducer",
			Reducers: map[string]collectionLimit{
				"collection_group_results": {Type: "results", Limit: collectionResultLimit},
			},
			SearchQuery:  "",
			UserTimeZone: "UTC",
		},
	}

	var result CollectionQueryResult
	if err := c.Do(ctx, EndpointQueryCollection, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// fetchMissingBlocks resolves content children the chunks did not include.
func (c *Client) fetchMissingBlocks(ctx context.Context, rm *recordmap.RecordMap) error {
	requested := make(map[string]bool)
	for round := 0; round < maxMissingBlockRounds; round++ {
		var pending []string
		for _, id := range rm.MissingBlockIDs() {
			if !requested[id] {
				pending = append(pending, id)
				requested[id] = true
			}
		}
		if len(pending) == 0 {
			return nil
		}

		synced, err := c.SyncRecordValues(ctx, pending)
		if err != nil {
			return err
		}
		found := 0
		for id, entry := range synced.Block {
			if entry != nil && entry.Value != nil {
				rm.Block[id] = entry
				found++
			}
		}
		c.logger.Debug().
			Int("requested", len(pending)).
			Int("found", found).
			Msg("Fetched missing blocks")
	}
	return nil
}

type collectionViewRef struct {
	collectionID string
	viewID       string
}

// fetchCollections runs every collection view query on the page. Failing
// views are logged and left out.
func (c *Client) fetchCollections(ctx context.Context, rm *recordmap.RecordMap) {
	var refs []collectionViewRef
	for _, entry := range rm.Block {
		if entry == nil || entry.Value == nil {
			continue
		}
		b := entry.Value
		if b.Type != recordmap.TypeCollectionView && b.Type != recordmap.TypeCollectionViewPage {
			continue
		}
		if b.CollectionID == "" {
			continue
		}
		for _, viewID := range b.ViewIDs {
			refs = append(refs, collectionViewRef{collectionID: b.CollectionID, viewID: viewID})
		}
	}
	if len(refs) == 0 {
		return
	}

	results, err := batch.Map(ctx, refs, batch.Config{MaxConcurrency: collectionConcurrency},
		func(ctx context.Context, ref collectionViewRef) (*CollectionQueryResult, error) {
			result, err := c.QueryCollection(ctx, ref.collectionID, ref.viewID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				c.logger.Warn().
					Err(err).
					Str("collection_id", ref.collectionID).
					Str("view_id", ref.viewID).
					Msg("Collection query failed, skipping")
				return nil, nil
			}
			return result, nil
		})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Collection queries aborted")
		return
	}

	for i, result := range results {
		if result == nil {
			continue
		}
		ref := refs[i]
		if result.RecordMap != nil {
			merged := recordmap.Merge(rm, result.RecordMap)
			*rm = *merged
		}
		if len(result.Result.ReducerResults) > 0 {
			views, ok := rm.CollectionQuery[ref.collectionID]
			if !ok {
				views = make(map[string]json.RawMessage)
				rm.CollectionQuery[ref.collectionID] = views
			}
			views[ref.viewID] = result.Result.ReducerResults
		}
	}
}

// isHostedFile reports whether url points at Notion's private file storage,
// which must be signed before a browser can load it.
func isHostedFile(url string) bool {
	return strings.Contains(url, "secure.notion-static.com") ||
		strings.Contains(url, "prod-files-secure")
}

// signHostedFiles fills rm.SignedURLs for media and file blocks stored on
// Notion. Errors are logged and leave the table as is.
func (c *Client) signHostedFiles(ctx context.Context, rm *recordmap.RecordMap) {
	var (
		ids  []string
		reqs []SignedFileURLRequest
	)
	for id, entry := range rm.Block {
		if entry == nil || entry.Value == nil {
			continue
		}
		switch entry.Value.Type {
		case recordmap.TypeFile, recordmap.TypePDF, recordmap.TypeImage,
			recordmap.TypeAudio, recordmap.TypeVideo:
		default:
			continue
		}
		src, ok := entry.Value.SourceURL()
		if !ok || !isHostedFile(src) {
			continue
		}
		ids = append(ids, id)
		reqs = append(reqs, SignedFileURLRequest{
			URL:              src,
			PermissionRecord: PermissionRecord{Table: "block", ID: id},
		})
	}
	if len(reqs) == 0 {
		return
	}

	resp, err := c.GetSignedFileURLs(ctx, reqs)
	if err != nil {
		c.logger.Warn().Err(err).Int("files", len(reqs)).Msg("Signing hosted files failed")
		return
	}
	if rm.SignedURLs == nil {
		rm.SignedURLs = make(map[string]string, len(ids))
	}
	for i, signed := range resp.SignedURLs {
		if i >= len(ids) {
			break
		}
		if signed != "" {
			rm.SignedURLs[ids[i]] = signed
		}
	}
}

// GetSignedFileURLs asks Notion to sign the given file URLs. The response
// holds one URL per request, in request order.
func (c *Client) GetSignedFileURLs(ctx context.Context, urls []SignedFileURLRequest) (*SignedFileURLsResponse, error) {
	var resp SignedFileURLsResponse
	if err := c.Do(ctx, EndpointGetSignedFileURLs, signedFileURLsRequest{URLs: urls}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
