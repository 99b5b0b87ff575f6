// Package recordmap models the Notion record map: the per-page aggregate of
// blocks, collections and users returned by the content API, keyed by
// record ID.
package recordmap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Block types referenced by this package.
const (
	TypePage               = "page"
	TypeFile               = "file"
	TypePDF                = "pdf"
	TypeImage              = "image"
	TypeAudio              = "audio"
	TypeVideo              = "video"
	TypeCollectionView     = "collection_view"
	TypeCollectionViewPage = "collection_view_page"
)

// RecordMap is the record map of a single page.
type RecordMap struct {
	Block          map[string]*BlockEntry `json:"block"`
	Collection     map[string]*Entry      `json:"collection,omitempty"`
	CollectionView map[string]*Entry      `json:"collection_view,omitempty"`
	NotionUser     map[string]*Entry      `json:"notion_user,omitempty"`

	// CollectionQuery holds reducer results by collection ID, then view ID.
	CollectionQuery map[string]map[string]json.RawMessage `json:"collection_query,omitempty"`

	// SignedURLs is filled by the API client when a page is fetched with
	// file URL signing enabled.
	SignedURLs map[string]string `json:"signed_urls,omitempty"`
}

// BlockEntry wraps a block with the caller's role on it.
type BlockEntry struct {
	Role  string `json:"role,omitempty"`
	Value *Block `json:"value"`
}

// Entry is a record whose value this package does not interpret.
type Entry struct {
	Role  string          `json:"role,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Block is a single content node.
type Block struct {
	ID          string                     `json:"id"`
	Type        string                     `json:"type"`
	Version     int64                      `json:"version,omitempty"`
	Alive       bool                       `json:"alive"`
	ParentID    string                     `json:"parent_id,omitempty"`
	ParentTable string                     `json:"parent_table,omitempty"`
	SpaceID     string                     `json:"space_id,omitempty"`
	Content     []string                   `json:"content,omitempty"`
	Properties  map[string]json.RawMessage `json:"properties,omitempty"`
	Format      map[string]any             `json:"format,omitempty"`

	CollectionID string   `json:"collection_id,omitempty"`
	ViewIDs      []string `json:"view_ids,omitempty"`
}

// New returns an empty record map with all tables allocated.
func New() *RecordMap {
	return &RecordMap{
		Block:           make(map[string]*BlockEntry),
		Collection:      make(map[string]*Entry),
		CollectionView:  make(map[string]*Entry),
		NotionUser:      make(map[string]*Entry),
		CollectionQuery: make(map[string]map[string]json.RawMessage),
		SignedURLs:      make(map[string]string),
	}
}

// BlockByID returns the block with the given ID, or nil.
func (rm *RecordMap) BlockByID(id string) *Block {
	if rm == nil {
		return nil
	}
	entry, ok := rm.Block[id]
	if !ok || entry == nil {
		return nil
	}
	return entry.Value
}

// FileBlocks returns every file or pdf block, sorted by ID.
func (rm *RecordMap) FileBlocks() []*Block {
	if rm == nil {
		return nil
	}
	var blocks []*Block
	for _, entry := range rm.Block {
		if entry != nil && entry.Value.IsFile() {
			blocks = append(blocks, entry.Value)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })
	return blocks
}

// MissingBlockIDs returns the IDs of content children that are referenced
// by a block in the map but not present themselves.
func (rm *RecordMap) MissingBlockIDs() []string {
	if rm == nil {
		return nil
	}
	seen := make(map[string]bool)
	var missing []string
	for _, entry := range rm.Block {
		if entry == nil || entry.Value == nil {
			continue
		}
		for _, child := range entry.Value.Content {
			if _, ok := rm.Block[child]; ok || seen[child] {
				continue
			}
			seen[child] = true
			missing = append(missing, child)
		}
	}
	sort.Strings(missing)
	return missing
}

// AddBlocks copies the given blocks into the map, replacing existing ones.
func (rm *RecordMap) AddBlocks(blocks map[string]*BlockEntry) {
	if rm.Block == nil {
		rm.Block = make(map[string]*BlockEntry, len(blocks))
	}
	for id, entry := range blocks {
		rm.Block[id] = entry
	}
}

// IsFile reports whether the block is a file or pdf block.
func (b *Block) IsFile() bool {
	return b != nil && (b.Type == TypeFile || b.Type == TypePDF)
}

// SourceURL returns the raw asset URL stored at properties.source[0][0].
func (b *Block) SourceURL() (string, bool) {
	return b.firstText("source")
}

// Title returns the plain-text title of the block.
func (b *Block) Title() string {
	if b == nil {
		return ""
	}
	raw, ok := b.Properties["title"]
	if !ok {
		return ""
	}
	var segments [][]any
	if err := json.Unmarshal(raw, &segments); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String()
}

// FormatString returns a string value from the block's format, if set.
func (b *Block) FormatString(key string) string {
	if b == nil || b.Format == nil {
		return ""
	}
	s, _ := b.Format[key].(string)
	return s
}

func (b *Block) firstText(property string) (string, bool) {
	if b == nil {
		return "", false
	}
	raw, ok := b.Properties[property]
	if !ok {
		return "", false
	}
	var segments [][]any
	if err := json.Unmarshal(raw, &segments); err != nil || len(segments) == 0 || len(segments[0]) == 0 {
		return "", false
	}
	s, ok := segments[0][0].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// NormalizeID converts a Notion ID in either the compact 32-hex form or the
// dashed UUID form to the dashed lower-case form used as record map key.
func NormalizeID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("invalid notion id %q: %w", id, err)
	}
	return parsed.String(), nil
}
