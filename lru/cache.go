// Package lru implements a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// Get, Put, Delete and Len are O(1). Expired entries are dropped lazily when
// they are looked up, listed or pushed out by capacity.
package lru

import (
	"sync"
	"time"
)

type node[K comparable, V any] struct {
	key       K
	val       V
	expiresAt time.Time // zero means never
	prev      *node[K, V]
	next      *node[K, V]
}

func (n *node[K, V]) expired(now time.Time) bool {
	return !n.expiresAt.IsZero() && !now.Before(n.expiresAt)
}

// Metrics counts cache activity.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64 // entries pushed out by capacity
	Expirations uint64 // entries dropped after their TTL
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithTTL sets the default lifetime of entries stored with Put.
func WithTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.ttl = ttl }
}

// WithOnEvict registers a callback for entries removed by capacity or expiry.
// It runs outside the cache lock.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// Cache is a generic, thread-safe LRU cache.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	onEvict  func(K, V)
	now      func() time.Time
	metrics  Metrics
	items    map[K]*node[K, V]
	head     *node[K, V] // most recently used (sentinel)
	tail     *node[K, V] // least recently used (sentinel)
}

type evicted[K comparable, V any] struct {
	key K
	val V
}

// New creates an LRU cache with the given capacity.
// Panics if capacity < 1.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Cache[K, V] {
	if capacity < 1 {
		panic("lru: capacity must be >= 1")
	}

	head := &node[K, V]{}
	tail := &node[K, V]{}
	head.next = tail
	tail.prev = head

	c := &Cache[K, V]{
		capacity: capacity,
		now:      time.Now,
		items:    make(map[K]*node[K, V], capacity),
		head:     head,
		tail:     tail,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value of key and promotes it. Expired entries count as misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	n, ok := c.items[key]
	if ok && n.expired(c.now()) {
		c.drop(n)
		c.metrics.Expirations++
		c.metrics.Misses++
		c.mu.Unlock()
		c.notify(evicted[K, V]{n.key, n.val})
		var zero V
		return zero, false
	}
	if !ok {
		c.metrics.Misses++
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	c.metrics.Hits++
	c.moveToFront(n)
	val := n.val
	c.mu.Unlock()
	return val, true
}

// Put stores key with the default TTL. It returns the entry pushed out by
// capacity, if any.
func (c *Cache[K, V]) Put(key K, val V) (K, V, bool) {
	return c.PutWithTTL(key, val, c.ttl)
}

// PutWithTTL stores key with its own lifetime. A ttl <= 0 never expires.
func (c *Cache[K, V]) PutWithTTL(key K, val V, ttl time.Duration) (K, V, bool) {
	c.mu.Lock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if n, ok := c.items[key]; ok {
		n.val = val
		n.expiresAt = expiresAt
		c.moveToFront(n)
		c.mu.Unlock()
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}

	var out evicted[K, V]
	var didEvict bool
	if len(c.items) >= c.capacity {
		victim := c.tail.prev
		c.drop(victim)
		if victim.expired(c.now()) {
			c.metrics.Expirations++
		} else {
			c.metrics.Evictions++
		}
		out = evicted[K, V]{victim.key, victim.val}
		didEvict = true
	}

	n := &node[K, V]{key: key, val: val, expiresAt: expiresAt}
	c.items[key] = n
	c.pushFront(n)
	c.mu.Unlock()

	if didEvict {
		c.notify(out)
	}
	return out.key, out.val, didEvict
}

// Delete removes a key from the cache. Returns true if the key existed.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return false
	}
	c.drop(n)
	return true
}

// Len returns the number of stored entries, including expired ones not yet dropped.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Peek returns a live value without updating access order.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok || n.expired(c.now()) {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Keys returns live keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]K, 0, len(c.items))
	for cur := c.head.next; cur != c.tail; cur = cur.next {
		if !cur.expired(now) {
			keys = append(keys, cur.key)
		}
	}
	return keys
}

// Clear removes all entries without calling the eviction callback.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[K]*node[K, V], c.capacity)
}

// Metrics returns a snapshot of the counters.
func (c *Cache[K, V]) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Cache[K, V]) notify(e evicted[K, V]) {
	if c.onEvict != nil {
		c.onEvict(e.key, e.val)
	}
}

// --- internal linked list operations (caller must hold lock) ---

func (c *Cache[K, V]) drop(n *node[K, V]) {
	c.remove(n)
	delete(c.items, n.key)
}

func (c *Cache[K, V]) remove(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	c.remove(n)
	c.pushFront(n)
}
