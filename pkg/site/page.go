package site

import (
	"encoding/json"

	"github.com/Sternrassler/notion-site-client/pkg/previewimages"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
)

// Page is the result of Loader.GetPage: the page's record map, with the
// navigation pages merged in, plus the data resolved for it.
type Page struct {
	RecordMap *recordmap.RecordMap

	// SignedURLs maps file and pdf block IDs to signed URLs. Never nil.
	SignedURLs map[string]string

	// PreviewImages is nil unless preview image support is enabled.
	PreviewImages previewimages.Map
}

// MarshalJSON renders the page as a single record map object carrying
// signed_urls and, when resolved, preview_images next to the record tables.
func (p *Page) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if p.RecordMap != nil {
		raw, err := json.Marshal(p.RecordMap)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}

	signed := p.SignedURLs
	if signed == nil {
		signed = map[string]string{}
	}
	raw, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}
	fields["signed_urls"] = raw

	if p.PreviewImages != nil {
		raw, err := json.Marshal(p.PreviewImages)
		if err != nil {
			return nil, err
		}
		fields["preview_images"] = raw
	}

	return json.Marshal(fields)
}
