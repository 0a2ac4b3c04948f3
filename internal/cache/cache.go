package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (i *item[V]) expired(now time.Time) bool {
	return !now.Before(i.expiresAt)
}

// Cache is a thread-safe map with a per-entry TTL. Expired entries are never
// returned and are swept periodically.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]*item[V]
	ttl   time.Duration
	now   func() time.Time

	// gens records the invalidation sequence of each deleted key; cleared is
	// the sequence of the last Clear.
	seq     uint64
	gens    map[string]uint64
	cleared uint64

	stop chan struct{}
	once sync.Once
}

// New creates a cache with the specified TTL and starts its sweeper
func New[V any](ttl time.Duration) *Cache[V] {
	c := newCache[V](ttl, time.Now)
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func newCache[V any](ttl time.Duration, now func() time.Time) *Cache[V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache[V]{
		items: make(map[string]*item[V]),
		gens:  make(map[string]uint64),
		ttl:   ttl,
		now:   now,
		stop:  make(chan struct{}),
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (c *Cache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

// Get retrieves an unexpired value
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores a value for the cache TTL
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &item[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Generation returns the invalidation generation of key. Read it before
// loading a value from the backing store and pass it to SetIfCurrent.
func (c *Cache[V]) Generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generation(key)
}

func (c *Cache[V]) generation(key string) uint64 {
	return max(c.gens[key], c.cleared)
}

// SetIfCurrent stores value only if key has not been invalidated since gen
// was read. It reports whether the value was stored.
func (c *Cache[V]) SetIfCurrent(key string, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation(key) != gen {
		return false
	}
	c.items[key] = &item[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Delete removes an item from the cache and advances its generation
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.seq++
	c.gens[key] = c.seq
}

// Clear removes all items from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*item[V])
	c.gens = make(map[string]uint64)
	c.seq++
	c.cleared = c.seq
}

// Size returns the number of stored items, expired ones included until swept
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache[V]) Stats() map[string]interface{} {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	expired := 0
	for _, it := range c.items {
		if it.expired(now) {
			expired++
		}
	}

	return map[string]interface{}{
		"total_items":   len(c.items),
		"expired_items": expired,
		"active_items":  len(c.items) - expired,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Close stops the sweeper
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.stop) })
}
