package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// cacheTTL bounds staleness for readers that missed an invalidation (another
// ledger instance writing to the same database).
const cacheTTL = 5 * time.Second

type cacheKey struct {
	groupID       uuid.UUID
	includeBasket bool
}

type cacheEntry struct {
	items    []*Item
	cachedAt time.Time
}

// listCache is a read-through cache over ListActiveItems, invalidated on
// every mutation. It exists for render latency only; nothing consults it for
// correctness decisions.
type listCache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func newListCache() *listCache {
	return &listCache{entries: make(map[cacheKey]cacheEntry)}
}

func (c *listCache) get(groupID uuid.UUID, includeBasket bool) ([]*Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cacheKey{groupID, includeBasket}]
	if !ok || time.Since(entry.cachedAt) > cacheTTL {
		return nil, false
	}
	return entry.items, true
}

func (c *listCache) put(groupID uuid.UUID, includeBasket bool, items []*Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{groupID, includeBasket}] = cacheEntry{items: items, cachedAt: time.Now()}
}

// invalidate drops both variants for the group.
func (c *listCache) invalidate(groupID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, cacheKey{groupID, false})
	delete(c.entries, cacheKey{groupID, true})
}
