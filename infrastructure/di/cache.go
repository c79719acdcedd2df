package di

import (
	"context"
	"sync"
	"time"

	"decivue/application/ports"
)

// InMemoryCache is the single-process cache used when no Redis is
// configured.
type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	done  chan struct{}
	once  sync.Once
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryCache starts a cache that sweeps expired entries every
// sweepInterval. Call Close to stop the sweeper.
func NewInMemoryCache(sweepInterval time.Duration) *InMemoryCache {
	c := &InMemoryCache{
		items: make(map[string]cacheItem),
		done:  make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.cleanupExpired(sweepInterval)
	}
	return c
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		return nil, false
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, true
}

func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{value: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheItem)
	return nil
}

// Close stops the background sweeper.
func (c *InMemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *InMemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// meteredCache reports every lookup as a hit or a miss.
type meteredCache struct {
	ports.Cache
	observe func(hit bool)
}

func (c *meteredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok := c.Cache.Get(ctx, key)
	c.observe(ok)
	return value, ok
}
