package search

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultResultCacheSize bounds the number of memoized search results.
const DefaultResultCacheSize = 1000

// ResultCache memoizes (query, category, limit) -> Result so repeated
// identical searches within a session skip the index scan. Eviction is true
// LRU; the cache is purged wholesale on every index rebuild because cached
// results may reference the replaced index.
type ResultCache struct {
	cache *lru.Cache[string, Result]
}

// NewResultCache creates a bounded result cache. size <= 0 uses the default.
func NewResultCache(size int) *ResultCache {
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	// lru.New only errors on a non-positive size.
	c, _ := lru.New[string, Result](size)
	return &ResultCache{cache: c}
}

// Key builds the composite cache key from normalized search parameters.
func Key(query, category string, limit int) string {
	return fmt.Sprintf("%s\x00%s\x00%d",
		strings.ToLower(strings.TrimSpace(query)),
		strings.ToLower(strings.TrimSpace(category)),
		limit,
	)
}

// Get returns the memoized result for key, if present.
func (c *ResultCache) Get(key string) (Result, bool) {
	return c.cache.Get(key)
}

// Set stores the result for key, evicting the least recently used entry when
// the cache is full.
func (c *ResultCache) Set(key string, result Result) {
	c.cache.Add(key, result)
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.cache.Purge()
}

// Len returns the number of memoized results.
func (c *ResultCache) Len() int {
	return c.cache.Len()
}
