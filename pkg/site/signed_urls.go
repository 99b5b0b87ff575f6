package site

import (
	"context"

	"github.com/Sternrassler/notion-site-client/pkg/batch"
	"github.com/Sternrassler/notion-site-client/pkg/notion"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type signedURL struct {
	blockID string
	url     string
}

// SignedURLs requests a signed URL for every file and pdf block of rm, one
// request per block with at most Config.SignConcurrency in flight. The first
// failure cancels the remaining requests and is returned unmodified; no
// partial mapping is returned.
//
// A file or pdf block without properties.source has nothing to sign: it is
// logged, sent no request and left out of the mapping, so the request count
// equals the number of file and pdf blocks that carry a source.
func (l *Loader) SignedURLs(ctx context.Context, rm *recordmap.RecordMap) (urls map[string]string, err error) {
	var blocks []*recordmap.Block
	for _, b := range rm.FileBlocks() {
		if _, ok := b.SourceURL(); !ok {
			l.logger.Warn().Str("block_id", b.ID).Str("type", b.Type).Msg("File block without source, not signing")
			continue
		}
		blocks = append(blocks, b)
	}

	ctx, span := tracer.Start(ctx, "site.SignedURLs", trace.WithAttributes(
		attribute.Int("notion.file_blocks", len(blocks)),
	))
	defer func() { endSpan(span, err) }()

	cfg := batch.Config{MaxConcurrency: l.cfg.SignConcurrency}
	results, err := batch.Map(ctx, blocks, cfg, func(ctx context.Context, b *recordmap.Block) (signedURL, error) {
		source, _ := b.SourceURL()
		resp, err := l.api.GetSignedFileURLs(ctx, []notion.SignedFileURLRequest{{
			URL:              source,
			PermissionRecord: notion.PermissionRecord{Table: "block", ID: b.ID},
		}})
		if err != nil {
			return signedURL{}, err
		}
		if resp == nil || len(resp.SignedURLs) == 0 || resp.SignedURLs[0] == "" {
			l.logger.Warn().Str("block_id", b.ID).Msg("Signing returned no url")
			return signedURL{blockID: b.ID}, nil
		}
		return signedURL{blockID: b.ID, url: resp.SignedURLs[0]}, nil
	})
	if err != nil {
		return nil, err
	}

	urls = make(map[string]string, len(results))
	for _, r := range results {
		if r.url != "" {
			urls[r.blockID] = r.url
		}
	}
	signedURLsTotal.Add(float64(len(urls)))
	return urls, nil
}
