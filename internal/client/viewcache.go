package client

import (
	"sync"
	"time"

	"github.com/codygellie/contact-management-app/internal/contacts"
)

// ViewCacheEntry is one cached page: the query it answers, the rows and
// totals computed at fetch time, and a freshness flag. Entries are always
// replaced wholesale; a consumer never observes old totals with new rows.
type ViewCacheEntry struct {
	Query      contacts.PageQuery
	Contacts   []contacts.Contact
	Total      int64
	TotalPages int
	Fresh      bool
	FetchedAt  time.Time
}

// ViewCache holds the paginated view entries of a single session, keyed by
// page query. It is owned exclusively by that session.
type ViewCache struct {
	mu      sync.RWMutex
	entries map[contacts.PageQuery]ViewCacheEntry
}

// NewViewCache returns an empty cache.
func NewViewCache() *ViewCache {
	return &ViewCache{entries: make(map[contacts.PageQuery]ViewCacheEntry)}
}

// Get returns the cached entry for the query, if any.
func (c *ViewCache) Get(query contacts.PageQuery) (ViewCacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[query]
	return entry, ok
}

// Replace swaps in a complete entry atomically.
func (c *ViewCache) Replace(entry ViewCacheEntry) {
	c.mu.Lock()
	c.entries[entry.Query] = entry
	c.mu.Unlock()
}

// InvalidateAll marks every entry stale. Entries stay readable so a view
// can keep rendering the previous page while its refetch is in flight.
func (c *ViewCache) InvalidateAll() {
	c.mu.Lock()
	for key, entry := range c.entries {
		entry.Fresh = false
		c.entries[key] = entry
	}
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *ViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
