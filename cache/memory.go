package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache keeps entries in process memory. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryItem
	now     func() time.Time
}

type memoryItem struct {
	entry       *Entry
	deleteAfter time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock creates an empty in-memory cache that expires
// entries against now
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryItem),
		now:     now,
	}
}

// Get implements Reader
func (mc *MemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	mc.mu.RLock()
	item, ok := mc.entries[key]
	mc.mu.RUnlock()
	if !ok {
		return nil, ErrCacheNotFound
	}
	if !item.deleteAfter.IsZero() && mc.now().After(item.deleteAfter) {
		mc.mu.Lock()
		delete(mc.entries, key)
		mc.mu.Unlock()
		return nil, ErrCacheNotFound
	}
	return item.entry.Clone(), nil
}

// Set implements Writer
func (mc *MemoryCache) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	item := memoryItem{entry: entry.Clone()}
	if ttl > 0 {
		item.deleteAfter = mc.now().Add(ttl)
	}
	mc.mu.Lock()
	mc.entries[key] = item
	mc.mu.Unlock()
	return nil
}

// Forget implements Forgetter
func (mc *MemoryCache) Forget(_ context.Context, key string) error {
	mc.mu.Lock()
	delete(mc.entries, key)
	mc.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}
