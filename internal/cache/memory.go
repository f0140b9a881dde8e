package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// memoryCache is an in-process Cache used by tests and as a redis-less
// development fallback. Entries are lazily evicted on read.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest any) error {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return ErrMiss
	}
	return json.Unmarshal(entry.data, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
