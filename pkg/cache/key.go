package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "notion"

// CacheKey represents a unique identifier for a cached Notion response.
type CacheKey struct {
	// Endpoint is the API method name (e.g., "loadPageChunk")
	Endpoint string

	// Params are extra discriminators (e.g., {"user": "<active user id>"})
	Params map[string]string

	// Body is the raw request body; only its digest ends up in the key
	Body []byte
}

// String generates a deterministic cache key string.
// Format: notion:endpoint:param1=val1:param2=val2:<sha256(body)>
//
// Example:
//
//	notion:loadPageChunk:user=abc:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	if len(k.Body) > 0 {
		sum := sha256.Sum256(k.Body)
		parts = append(parts, hex.EncodeToString(sum[:]))
	}

	return strings.Join(parts, ":")
}
