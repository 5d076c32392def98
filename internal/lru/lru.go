// Package lru provides a small thread-safe LRU cache with optional per-entry
// expiry. It backs the weather response cache and the notification dedupe
// table.
package lru

import (
	"sync"
	"time"
)

// Cache is a bounded LRU map. Entries with a non-zero expiry are treated as
// absent once the lookup time passes it.
type Cache[K comparable, V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[K]*entry[K, V]
	head       *entry[K, V] // most recently used
	tail       *entry[K, V] // least recently used
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	prev      *entry[K, V]
	next      *entry[K, V]
}

// New creates a cache holding at most maxEntries items. Values below 1 are
// treated as 1.
func New[K comparable, V any](maxEntries int) *Cache[K, V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache[K, V]{
		maxEntries: maxEntries,
		entries:    make(map[K]*entry[K, V]),
	}
}

// Get returns the value for key if present and not expired at now.
func (c *Cache[K, V]) Get(key K, now time.Time) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if e.expired(now) {
		c.drop(e)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

// Put stores value under key. A zero expiresAt never expires.
func (c *Cache[K, V]) Put(key K, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.drop(c.tail)
	}
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.drop(e)
	}
}

// Prune removes every entry expired at now and returns how many were removed.
func (c *Cache[K, V]) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for e := c.tail; e != nil; {
		prev := e.prev
		if e.expired(now) {
			c.drop(e)
			n++
		}
		e = prev
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet
// pruned.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache[K, V]) addToFront(e *entry[K, V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache[K, V]) drop(e *entry[K, V]) {
	if e == nil {
		return
	}
	delete(c.entries, e.key)
	c.remove(e)
}
