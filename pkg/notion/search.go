package notion

import (
	"context"
	"maps"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// defaultSearchLimit matches the quick-find page size of notion.so.
const defaultSearchLimit = 20

// defaultSearchFilters returns the filter block notion.so sends for a public
// quick find. Caller filters override individual keys.
func defaultSearchFilters() map[string]any {
	return map[string]any{
		"isDeletedOnly":                           false,
		"excludeTemplates":                        true,
		"navigableBlockContentOnly":               true,
		"requireEditPermissions":                  false,
		"includePublicPagesWithoutExplicitAccess": true,
		"ancestors":                               []string{},
		"createdBy":                               []string{},
		"editedBy":                                []string{},
		"lastEditedTime":                          map[string]any{},
		"createdTime":                             map[string]any{},
	}
}

// Search runs a full-text search below params.AncestorID. The query is sent
// trimmed and in Unicode NFC, the form Notion stores page text in.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResults, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	filters := defaultSearchFilters()
	maps.Copy(filters, params.Filters)

	req := searchRequest{
		Type:       "BlocksInAncestor",
		Source:     "quick_find_public",
		AncestorID: params.AncestorID,
		Sort:       map[string]any{"field": "relevance"},
		Limit:      limit,
		Query:      norm.NFC.String(strings.TrimSpace(params.Query)),
		Filters:    filters,
	}

	var results SearchResults
	if err := c.Do(ctx, EndpointSearch, req, &results); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("ancestor_id", params.AncestorID).
		Int("results", len(results.Results)).
		Int("total", results.Total).
		Msg("Search complete")

	return &results, nil
}
