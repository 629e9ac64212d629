// ABOUTME: Thread-safe TTL cache for dropping duplicate platform transition events
// ABOUTME: Bounded by size with oldest-first eviction and a background expiry sweep

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const maxCleanupInterval = time.Minute

type cacheEntry struct {
	seenAt  time.Time
	element *list.Element
}

// Options configures a Cache.
type Options struct {
	TTL     time.Duration
	MaxSize int
	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

// Cache remembers event IDs for a TTL so a redelivered event is handled once.
// Keys are kept in a list ordered by last mark for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest mark at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its expiry sweep. Call Close to stop it.
func New(opts Options) *Cache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     now,
		done:    make(chan struct{}),
	}

	interval := opts.TTL
	if interval <= 0 || interval > maxCleanupInterval {
		interval = maxCleanupInterval
	}
	go c.cleanup(interval)
	return c
}

// Seen reports whether key was marked within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	return ok && c.live(entry)
}

// CheckAndMark marks key and reports whether it was already live, in one step.
// A true result means the caller is looking at a duplicate.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && c.live(entry) {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records key as seen now, evicting the oldest key when full.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

// Forget removes key so its next delivery is treated as new.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

// Len returns the number of keys held, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) live(entry *cacheEntry) bool {
	return c.now().Sub(entry.seenAt) < c.ttl
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := c.now()

	if entry, ok := c.seen[key]; ok {
		entry.seenAt = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[key] = &cacheEntry{
		seenAt:  now,
		element: c.order.PushBack(key),
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep drops every expired key. Marks are ordered, so it stops at the first live one.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		entry := c.seen[key]
		if c.live(entry) {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.seen, key)
		e = next
	}
}

// Close stops the expiry sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
