// Package dedup tracks recently published message bodies so the same text is
// not relayed twice within the retention window.
//
// Entries are evicted lazily: every ShouldPublish call sweeps out entries whose
// age has reached the window before the lookup. There is no background timer,
// so an idle cache keeps its entries until the next arrival.
//
// A Cache is not safe for concurrent use. It is owned by the stream ingestor
// goroutine, which is its only reader and writer.
package dedup

import "time"

// DefaultWindow is the retention window used by the relay.
const DefaultWindow = 24 * time.Hour

// Cache maps message text to the time it was last recorded.
type Cache struct {
	window time.Duration
	seen   map[string]time.Time
}

// New returns an empty cache. A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{window: window, seen: make(map[string]time.Time)}
}

// Window returns the retention window.
func (c *Cache) Window() time.Duration { return c.window }

// ShouldPublish sweeps expired entries and reports whether text is novel.
// Suppression is by text only; two items with different ids but identical text
// are treated as duplicates.
func (c *Cache) ShouldPublish(text string, now time.Time) bool {
	c.sweep(now)
	_, dup := c.seen[text]
	return !dup
}

// Record inserts or refreshes text with seenAt = now.
func (c *Cache) Record(text string, now time.Time) {
	c.seen[text] = now
}

// Len returns the number of stored entries, including ones that have expired
// but have not been swept yet.
func (c *Cache) Len() int { return len(c.seen) }

func (c *Cache) sweep(now time.Time) {
	cutoff := now.Add(-c.window)
	for text, seenAt := range c.seen {
		if !seenAt.After(cutoff) {
			delete(c.seen, text)
		}
	}
}
