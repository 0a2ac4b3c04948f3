package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCache_SetGetExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newCache[[]string](time.Minute, clock.Now)

	c.Set("g-1", []string{"m-1"})

	got, ok := c.Get("g-1")
	require.True(t, ok)
	assert.Equal(t, []string{"m-1"}, got)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("g-1")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("g-1")
	assert.False(t, ok, "entries expire exactly at the TTL")

	assert.Equal(t, 1, c.Size(), "expired entries linger until swept")
	assert.Equal(t, 1, c.sweep())
	assert.Zero(t, c.Size())
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestCache_SetIfCurrent(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(c *Cache[int])
		wantStored bool
	}{
		{name: "no invalidation", invalidate: func(*Cache[int]) {}, wantStored: true},
		{name: "same key deleted", invalidate: func(c *Cache[int]) { c.Delete("g-1") }, wantStored: false},
		{name: "other key deleted", invalidate: func(c *Cache[int]) { c.Delete("g-2") }, wantStored: true},
		{name: "cleared", invalidate: func(c *Cache[int]) { c.Clear() }, wantStored: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache[int](time.Minute, time.Now)
			c.Delete("g-1")

			gen := c.Generation("g-1")
			tt.invalidate(c)

			assert.Equal(t, tt.wantStored, c.SetIfCurrent("g-1", 7, gen))
			_, ok := c.Get("g-1")
			assert.Equal(t, tt.wantStored, ok)
		})
	}
}

func TestCache_Stats(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newCache[string](10*time.Second, clock.Now)

	c.Set("old", "x")
	clock.Advance(11 * time.Second)
	c.Set("new", "y")

	stats := c.Stats()
	assert.Equal(t, 2, stats["total_items"])
	assert.Equal(t, 1, stats["expired_items"])
	assert.Equal(t, 1, stats["active_items"])
	assert.Equal(t, 10.0, stats["ttl_seconds"])
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%4))
			c.Set(key, i)
			c.Get(key)
			if i%5 == 0 {
				c.Delete(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 4)
	c.Close()
	c.Close()
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Second, sweepInterval(10*time.Millisecond))
	assert.Equal(t, 30*time.Second, sweepInterval(30*time.Second))
	assert.Equal(t, 5*time.Minute, sweepInterval(time.Hour))
}
