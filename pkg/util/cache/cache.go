// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.
//
// This code is based on: https://github.com/golang/groupcache/

// Package cache provides size-bounded caches with least-recently-used or
// first-in-first-out eviction. The caches are not safe for concurrent use;
// callers provide their own locking.
package cache

// EvictionPolicy is the cache eviction policy enum.
type EvictionPolicy int

// Constants describing LRU and FIFO cache eviction policies respectively.
const (
	CacheLRU  EvictionPolicy = iota // Least recently used
	CacheFIFO                       // First in, first out
	CacheNone                       // No evictions; don't maintain ordering list
)

// TypedConfig specifies the eviction policy, eviction trigger callback, and
// eviction listener callback for a TypedUnorderedCache.
type TypedConfig[K comparable, V any] struct {
	// Policy is one of the consts listed for EvictionPolicy.
	Policy EvictionPolicy

	// ShouldEvict is a callback function executed each time a new entry is
	// added to the cache. It supplies cache size, and the key and value of
	// the least recently used or first added item. It should return true if
	// the entry should be evicted; false otherwise.
	ShouldEvict func(size int, key K, value V) bool

	// OnEvicted optionally specifies a callback function to be executed when
	// an entry is purged from the cache by eviction. Entries removed with Del
	// or Clear do not trigger it.
	OnEvicted func(key K, value V)
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	next, prev *entry[K, V]
}

// entryList is an intrusive doubly linked list with a sentinel root. The
// element after root is the most recently used (LRU) or most recently added
// (FIFO) entry.
type entryList[K comparable, V any] struct {
	root entry[K, V]
}

func (l *entryList[K, V]) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *entryList[K, V]) back() *entry[K, V] {
	if l.root.prev == &l.root {
		return nil
	}
	return l.root.prev
}

func (l *entryList[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &l.root
	e.next = l.root.next
	l.root.next.prev = e
	l.root.next = e
}

func (l *entryList[K, V]) remove(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next, e.prev = nil, nil
}

func (l *entryList[K, V]) moveToFront(e *entry[K, V]) {
	if l.root.next == e {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

// TypedUnorderedCache is a cache which supports custom eviction triggers and
// two eviction policies: LRU and FIFO.
type TypedUnorderedCache[K comparable, V any] struct {
	TypedConfig[K, V]
	ll   entryList[K, V]
	hmap map[K]*entry[K, V]
}

// NewTypedUnorderedCache creates a new TypedUnorderedCache backed by a hash
// map.
func NewTypedUnorderedCache[K comparable, V any](config TypedConfig[K, V]) *TypedUnorderedCache[K, V] {
	c := &TypedUnorderedCache[K, V]{
		TypedConfig: config,
		hmap:        make(map[K]*entry[K, V]),
	}
	c.ll.init()
	return c
}

// Add adds a value to the cache. If the key is already present its value is
// replaced and, under LRU, the entry is marked as most recently used.
func (c *TypedUnorderedCache[K, V]) Add(key K, value V) {
	if e, ok := c.hmap[key]; ok {
		e.value = value
		if c.Policy == CacheLRU {
			c.ll.moveToFront(e)
		}
		return
	}
	e := &entry[K, V]{key: key, value: value}
	c.hmap[key] = e
	if c.Policy != CacheNone {
		c.ll.pushFront(e)
	}
	c.evict()
}

// Get looks up a key's value from the cache.
func (c *TypedUnorderedCache[K, V]) Get(key K) (value V, ok bool) {
	e, ok := c.hmap[key]
	if !ok {
		return value, false
	}
	if c.Policy == CacheLRU {
		c.ll.moveToFront(e)
	}
	return e.value, true
}

// Del removes the provided key from the cache.
func (c *TypedUnorderedCache[K, V]) Del(key K) {
	e, ok := c.hmap[key]
	if !ok {
		return
	}
	delete(c.hmap, key)
	if c.Policy != CacheNone {
		c.ll.remove(e)
	}
}

// Clear clears all entries from the cache.
func (c *TypedUnorderedCache[K, V]) Clear() {
	c.hmap = make(map[K]*entry[K, V])
	c.ll.init()
}

// Len returns the number of items in the cache.
func (c *TypedUnorderedCache[K, V]) Len() int {
	return len(c.hmap)
}

// Do invokes f on all of the entries in the cache, from most to least
// recently used (or added). f must not modify the cache.
func (c *TypedUnorderedCache[K, V]) Do(f func(k K, v V)) {
	if c.Policy == CacheNone {
		for k, e := range c.hmap {
			f(k, e.value)
		}
		return
	}
	for e := c.ll.root.next; e != &c.ll.root; e = e.next {
		f(e.key, e.value)
	}
}

func (c *TypedUnorderedCache[K, V]) evict() {
	if c.Policy == CacheNone || c.ShouldEvict == nil {
		return
	}
	for {
		e := c.ll.back()
		if e == nil || !c.ShouldEvict(c.Len(), e.key, e.value) {
			return
		}
		c.ll.remove(e)
		delete(c.hmap, e.key)
		if c.OnEvicted != nil {
			c.OnEvicted(e.key, e.value)
		}
	}
}

// Config is the untyped counterpart of TypedConfig.
type Config = TypedConfig[interface{}, interface{}]

// UnorderedCache is a TypedUnorderedCache over untyped keys and values.
type UnorderedCache struct {
	*TypedUnorderedCache[interface{}, interface{}]
}

// NewUnorderedCache creates a new UnorderedCache backed by a hash map.
func NewUnorderedCache(config Config) *UnorderedCache {
	return &UnorderedCache{NewTypedUnorderedCache[interface{}, interface{}](config)}
}
