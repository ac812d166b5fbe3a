package state

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a keyed store whose entries expire lazily on read.
// No janitor goroutine runs; an expired entry stays in memory until it is read or overwritten.
type Cache struct {
	mu    sync.Mutex
	store *gocache.Cache
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{store: gocache.New(gocache.NoExpiration, 0)}
}

// Set stores value under key for ttl. A non-positive ttl never expires.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Set(key, value, ttl)
}

// Get returns the value for key. Expired entries are evicted and reported absent.
// The read and the eviction happen under one lock so a concurrent Set is never lost.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Get(key)
	if !ok {
		c.store.Delete(key)
		return nil, false
	}
	return v, true
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Flush()
}

// Len counts stored entries, including expired ones not yet read.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// SetCache stores value in the store's cache.
func (s *Store) SetCache(key string, value any, ttl time.Duration) {
	s.cache.Set(key, value, ttl)
}

// GetCache reads from the store's cache with lazy eviction.
func (s *Store) GetCache(key string) (any, bool) {
	return s.cache.Get(key)
}

// Cache exposes the store's cache.
func (s *Store) Cache() *Cache {
	return s.cache
}
