// Package cache provides a small in-process TTL cache with loader
// deduplication, used by the read-heavy demo endpoint.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	expiresAt time.Time
	value     interface{}
}

// TTLCache caches values with a per-entry time to live. Concurrent loads for
// the same key are deduplicated: one caller runs the loader, the rest wait.
type TTLCache struct {
	mu    sync.Mutex
	data  map[string]entry
	locks map[string]*sync.Mutex

	// now is swappable for tests
	now func() time.Time
}

// New creates an empty cache
func New() *TTLCache {
	return &TTLCache{
		data:  make(map[string]entry),
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// Get returns the cached value for key, or false when absent or expired
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if e.expiresAt.Before(c.now()) {
		delete(c.data, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = entry{
		expiresAt: c.now().Add(ttl),
		value:     value,
	}
}

// GetOrSet returns the cached value for key, running loader to populate it on
// a miss. Only one loader runs per key at a time.
func (c *TTLCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have loaded while we waited for the key lock
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)

	c.mu.Lock()
	delete(c.locks, key) // drop the lock entry to bound growth
	c.mu.Unlock()

	return v, nil
}

// Clear drops all entries
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]entry)
}

func (c *TTLCache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}
