package cache

import (
	"context"
	"sync"
	"time"
)

const defaultCleanupInterval = time.Minute

// MemoryCache implements Cache using in-process storage.
type MemoryCache struct {
	maxItems int
	items    map[string]memoryItem
	mutex    sync.RWMutex
	stop     chan struct{}
	once     sync.Once
}

type memoryItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates a memory cache holding at most maxItems entries
// (unbounded when maxItems <= 0) and starts its expiry sweeper.
func NewMemoryCache(maxItems int, cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	c := &MemoryCache{
		maxItems: maxItems,
		items:    make(map[string]memoryItem),
		stop:     make(chan struct{}),
	}
	go c.sweep(cleanupInterval)
	return c
}

// Get retrieves an unexpired item.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.items[key]
	if !found || item.expired(time.Now()) {
		return nil, false, nil
	}
	return item.value, true, nil
}

// Set stores an item, rejecting new keys once the cache is full.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		return ErrCacheFull
	}

	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.items[key] = memoryItem{value: value, expiration: exp}
	return nil
}

// Delete removes items.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, key := range keys {
		delete(c.items, key)
	}
	return nil
}

// Flush removes all items.
func (c *MemoryCache) Flush(_ context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]memoryItem)
	return nil
}

// Len reports the number of stored items, expired or not.
func (c *MemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

// Close stops the sweeper.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	now := time.Now()
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}
