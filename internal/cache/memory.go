package cache

import (
	"context"
	"sync"
	"time"

	"sentiment-backend/internal/core/types"
)

type memoryEntry struct {
	pred    types.Prediction
	expires time.Time
}

// MemoryCache is a TTL map used in single-process mode and tests. Expired
// entries are dropped lazily on read and swept when the map grows past
// maxEntries.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (types.Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return types.Prediction{}, ErrMiss
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return types.Prediction{}, ErrMiss
	}
	return entry.pred, nil
}

func (c *MemoryCache) Put(ctx context.Context, key string, pred types.Prediction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.sweep()
	}

	c.entries[key] = memoryEntry{pred: pred, expires: c.now().Add(c.ttl)}
	return nil
}

// sweep removes expired entries; if everything is still live the whole map
// is reset rather than evicting selectively.
func (c *MemoryCache) sweep() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]memoryEntry)
	}
}
