package access

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process evaluation cache. Entries expire lazily
// on read; there is no eviction thread.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryCacheEntry
	clock   func() time.Time
}

type memoryCacheEntry struct {
	evaluation PermissionEvaluation
	storedAt   time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryCacheEntry),
		clock:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (PermissionEvaluation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return PermissionEvaluation{}, false
	}
	if c.clock().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return PermissionEvaluation{}, false
	}
	return entry.evaluation, true
}

func (c *MemoryCache) Set(_ context.Context, key string, evaluation PermissionEvaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{evaluation: evaluation, storedAt: c.clock()}
}

func (c *MemoryCache) Flush(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryCacheEntry)
}
