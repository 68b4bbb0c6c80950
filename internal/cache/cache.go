// Package cache provides a bounded LRU map with optional expiry.
package cache

import (
	"sync"
	"time"
)

// Stats provides statistics about cache operations
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	HitRatio  float64 `json:"hit_ratio"`
}

// LRU is a fixed-capacity least-recently-used cache of string values.
// Entries older than the TTL given to New are treated as absent.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*entry
	head  entry // sentinel; head.next is most recent
	tail  entry // sentinel; tail.prev is least recent

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry struct {
	key       string
	value     string
	expiresAt time.Time
	prev      *entry
	next      *entry
}

// New creates a cache holding at most capacity entries. A ttl of zero means
// entries never expire.
func New(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1000
	}

	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*entry),
	}
	c.head.next = &c.tail
	c.tail.prev = &c.head
	return c
}

func (c *LRU) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		return "", false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.remove(e)
		c.misses++
		return "", false
	}

	c.unlink(e)
	c.pushFront(e)
	c.hits++
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.unlink(e)
		c.pushFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.pushFront(e)
	c.items[key] = e

	if len(c.items) > c.capacity {
		c.remove(c.tail.prev)
		c.evictions++
	}
}

// Delete drops key and reports whether it was present.
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(e)
	return true
}

// Purge removes every entry. Counters are kept.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry)
	c.head.next = &c.tail
	c.tail.prev = &c.head
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	ratio := 0.0
	if total := c.hits + c.misses; total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.items),
		Capacity:  c.capacity,
		HitRatio:  ratio,
	}
}

func (c *LRU) pushFront(e *entry) {
	e.prev = &c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRU) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *LRU) remove(e *entry) {
	delete(c.items, e.key)
	c.unlink(e)
}
