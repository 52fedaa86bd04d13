package cache

import "time"

// LayeredCache reads through a fast cache to a slower one and writes both
type LayeredCache struct {
	fast       Cache
	slow       Cache
	promoteTTL time.Duration
}

// NewLayeredCache layers fast over slow. Entries found only in slow are
// copied into fast with promoteTTL.
func NewLayeredCache(fast, slow Cache, promoteTTL time.Duration) *LayeredCache {
	return &LayeredCache{fast: fast, slow: slow, promoteTTL: promoteTTL}
}

// Get checks fast first, then slow
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.fast.Get(key); found {
		return val, true
	}
	val, found := c.slow.Get(key)
	if !found {
		return nil, false
	}
	_ = c.fast.Set(key, val, c.promoteTTL)
	return val, true
}

// Set stores value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.fast.Set(key, value, ttl); err != nil {
		return err
	}
	return c.slow.Set(key, value, ttl)
}

// Delete removes key from both layers
func (c *LayeredCache) Delete(key string) error {
	if err := c.fast.Delete(key); err != nil {
		return err
	}
	return c.slow.Delete(key)
}

// Clear empties both layers
func (c *LayeredCache) Clear() error {
	if err := c.fast.Clear(); err != nil {
		return err
	}
	return c.slow.Clear()
}
