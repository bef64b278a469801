// ABOUTME: Thread-safe TTL cache of extraction results keyed by file digest
// ABOUTME: Lets a re-sent spreadsheet skip the extraction endpoint within the TTL window

package upload

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/pitstop/internal/wire"
)

// cacheEntry stores a result with its insertion time and list element.
type cacheEntry struct {
	result    wire.Extraction
	timestamp time.Time
	element   *list.Element
}

// resultCache is a size-limited TTL cache. Insertion order is kept in a
// doubly-linked list so the oldest entry is evicted in O(1).
type resultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // digests, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

func newResultCache(ttl time.Duration, maxSize int) *resultCache {
	c := &resultCache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// get returns the cached result for digest if present and fresh.
func (c *resultCache) get(digest string) (wire.Extraction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[digest]
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		return wire.Extraction{}, false
	}
	return entry.result, true
}

// put stores a result, evicting the oldest entry when at capacity.
func (c *resultCache) put(digest string, result wire.Extraction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, exists := c.entries[digest]; exists {
		entry.result = result
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[digest] = &cacheEntry{
		result:    result,
		timestamp: now,
		element:   c.order.PushBack(digest),
	}
}

// len returns the number of entries, fresh or not.
func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest must be called with mu held.
func (c *resultCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	digest, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, digest)
}

func (c *resultCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *resultCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for digest, entry := range c.entries {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.entries, digest)
		}
	}
}

// close stops the cleanup goroutine. Safe to call more than once.
func (c *resultCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
