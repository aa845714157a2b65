// internal/jupiter/cache.go
package jupiter

import (
	"sync"
	"time"
)

type cacheEntry struct {
	metadata  TokenMetadata
	fetchedAt time.Time
}

// metadataCache is a TTL cache keyed by mint address, shared across sessions.
// Duplicate concurrent misses for the same token resolve last-writer-wins.
type metadataCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMetadataCache(ttl time.Duration) *metadataCache {
	return &metadataCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *metadataCache) get(address string) (TokenMetadata, bool) {
	c.mu.RLock()
	entry, ok := c.entries[address]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.fetchedAt) > c.ttl {
		return TokenMetadata{}, false
	}
	return entry.metadata, true
}

func (c *metadataCache) put(metadata TokenMetadata) {
	c.mu.Lock()
	c.entries[metadata.Address] = cacheEntry{metadata: metadata, fetchedAt: c.now()}
	c.mu.Unlock()
}
