// Package cache provides a thread-safe LRU cache for compiled units.
//
// Compiling the same source text repeatedly re-parses it and, more
// importantly, creates a fresh external-reference side table each time. A
// shared cache lets repeated compilations of the same text reuse one unit, so
// its resolved names and memoized closures survive across calls.
//
// # Example
//
//	c := cache.New[*compiler.Unit](1024)
//	unit, err := c.GetOrCompile(key, func() (*compiler.Unit, error) { ... })
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Cache is a thread-safe LRU (Least Recently Used) cache.
// Once the capacity is reached, the least recently accessed entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Cache[V any] struct {
	capacity int
	lru      *lru.Cache[string, V]
}

// New creates a new LRU cache with the given capacity.
// If capacity <= 0, DefaultCapacity is used.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[string, V](capacity)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Cache[V]{capacity: capacity, lru: l}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set inserts or replaces a value.
// If at capacity, the least recently used entry is evicted first.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// GetOrCompile retrieves the value for key, or calls compile to create it
// and caches the result. Errors are not cached.
//
// Two goroutines missing the same key concurrently may both compile; the
// last one to finish wins.
func (c *Cache[V]) GetOrCompile(key string, compile func() (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := compile()
	if err != nil {
		var zero V
		return zero, err
	}
	c.lru.Add(key, v)
	return v, nil
}

// Len returns the number of entries currently in the cache.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache[V]) Capacity() int {
	return c.capacity
}

// Invalidate removes a single entry from the cache.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// Clear removes all entries from the cache.
func (c *Cache[V]) Clear() {
	c.lru.Purge()
}
