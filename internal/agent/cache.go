package agent

import (
	"sync"
	"time"
)

// DefaultContentTTL bounds how long read resource text is reused.
const DefaultContentTTL = 5 * time.Second

type cachedContent struct {
	text      string
	fetchedAt time.Time
}

// contentCache memoizes resource text by uri.
type contentCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cachedContent
}

func newContentCache(ttl time.Duration, now func() time.Time) *contentCache {
	if ttl <= 0 {
		ttl = DefaultContentTTL
	}
	if now == nil {
		now = time.Now
	}
	return &contentCache{ttl: ttl, now: now, entries: make(map[string]cachedContent)}
}

func (c *contentCache) get(uri string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[uri]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, uri)
		return "", false
	}
	return e.text, true
}

func (c *contentCache) put(uri, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uri] = cachedContent{text: text, fetchedAt: c.now()}
}

// invalidate drops uri, or everything when uri is empty.
func (c *contentCache) invalidate(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uri == "" {
		clear(c.entries)
		return
	}
	delete(c.entries, uri)
}
