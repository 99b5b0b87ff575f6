package recordmap

import (
	"cmp"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// NotionOrigin prefixes root-relative asset paths such as "/images/page-cover/x.jpg".
const NotionOrigin = "https://www.notion.so"

// Merge returns a new record map holding the union of base and other.
// Entries already in base are kept on key collision. Neither input is
// modified; the result shares entry pointers with them.
func Merge(base, other *RecordMap) *RecordMap {
	out := New()
	for _, rm := range []*RecordMap{base, other} {
		if rm == nil {
			continue
		}
		mergeTable(out.Block, rm.Block)
		mergeTable(out.Collection, rm.Collection)
		mergeTable(out.CollectionView, rm.CollectionView)
		mergeTable(out.NotionUser, rm.NotionUser)
		mergeTable(out.SignedURLs, rm.SignedURLs)
		for collectionID, views := range rm.CollectionQuery {
			dst, ok := out.CollectionQuery[collectionID]
			if !ok {
				dst = make(map[string]json.RawMessage, len(views))
				out.CollectionQuery[collectionID] = dst
			}
			mergeTable(dst, views)
		}
	}
	return out
}

// MergeAll folds others into seed from left to right with Merge.
func MergeAll(seed *RecordMap, others ...*RecordMap) *RecordMap {
	out := seed
	for _, rm := range others {
		out = Merge(out, rm)
	}
	return out
}

// mergeTable adds the entries of src that dst does not have yet.
func mergeTable[V any](dst, src map[string]V) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

// ImageSource is one image referenced by a record map. URL is the address
// renderers look the image up by; FetchURL is where its bytes can be read,
// the signed URL for images stored on Notion.
type ImageSource struct {
	URL      string
	FetchURL string
}

// ImageSources returns the distinct images referenced by the map: image
// block sources, page covers and page icons given as URLs, sorted by URL.
// An image block with an entry in SignedURLs is fetched from that entry.
func ImageSources(rm *RecordMap) []ImageSource {
	if rm == nil {
		return nil
	}
	fetch := make(map[string]string)
	add := func(raw, signed string) {
		u := absoluteImageURL(raw)
		if u == "" {
			return
		}
		if signed != "" || fetch[u] == "" {
			fetch[u] = cmp.Or(signed, fetch[u], u)
		}
	}

	for id, entry := range rm.Block {
		if entry == nil || entry.Value == nil {
			continue
		}
		b := entry.Value
		if b.Type == TypeImage {
			if src, ok := b.SourceURL(); ok {
				add(src, rm.SignedURLs[id])
			}
			add(b.FormatString("display_source"), "")
		}
		add(b.FormatString("page_cover"), "")
		add(b.FormatString("page_icon"), "")
	}

	sources := make([]ImageSource, 0, len(fetch))
	for u, f := range fetch {
		sources = append(sources, ImageSource{URL: u, FetchURL: f})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].URL < sources[j].URL })
	return sources
}

// ImageURLs returns the URLs of ImageSources.
func ImageURLs(rm *RecordMap) []string {
	sources := ImageSources(rm)
	if sources == nil {
		return nil
	}
	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	return urls
}

// absoluteImageURL returns raw as an absolute http(s) URL, or "" when raw is
// not a usable image reference (emoji icons, data URIs, garbage).
func absoluteImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		raw = NotionOrigin + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
