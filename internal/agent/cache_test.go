package agent

import (
	"testing"
	"time"
)

func TestContentCache_ExpiresAndInvalidates(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newContentCache(0, func() time.Time { return now })

	c.put("file:///a", "A")
	c.put("file:///b", "B")
	if v, ok := c.get("file:///a"); !ok || v != "A" {
		t.Fatalf("expected cached A, got %q %v", v, ok)
	}

	now = now.Add(DefaultContentTTL - time.Millisecond)
	if _, ok := c.get("file:///a"); !ok {
		t.Fatal("expected entry still fresh just before TTL")
	}
	now = now.Add(time.Millisecond)
	if _, ok := c.get("file:///a"); ok {
		t.Fatal("expected entry expired at TTL")
	}

	c.put("file:///a", "A2")
	c.invalidate("file:///a")
	if _, ok := c.get("file:///a"); ok {
		t.Fatal("expected uri invalidated")
	}
	c.put("file:///a", "A3")
	c.invalidate("")
	if _, ok := c.get("file:///b"); ok {
		t.Fatal("expected full invalidation")
	}
}
