package mcp

import "time"

// DefaultCacheTTL is how long discovery results are served without a refetch.
const DefaultCacheTTL = 120 * time.Second

// ttlCache holds one discovery result. Callers synchronize access.
type ttlCache[T any] struct {
	ttl       time.Duration
	value     T
	fetchedAt time.Time
	valid     bool
}

func newTTLCache[T any](ttl time.Duration) ttlCache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return ttlCache[T]{ttl: ttl}
}

// get returns the cached value while now - fetchedAt < ttl.
func (c *ttlCache[T]) get(now time.Time) (T, bool) {
	if !c.valid || now.Sub(c.fetchedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return c.value, true
}

func (c *ttlCache[T]) set(value T, now time.Time) {
	c.value = value
	c.fetchedAt = now
	c.valid = true
}

func (c *ttlCache[T]) invalidate() {
	var zero T
	c.value = zero
	c.fetchedAt = time.Time{}
	c.valid = false
}
