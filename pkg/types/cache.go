package types

import (
	"context"
	"sync"
)

// Cache is the side table shared by every node of one compiled unit.
//
// It remembers the resolution of each external name and the closure created
// for each lambda node. External resolutions are never invalidated
// automatically: a name is resolved against the calling scope once per Cache
// and reused afterwards, even if a later caller's scope would resolve it
// differently. Call Reset to drop them.
//
// Safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	externals map[string]*external
	closures  map[*Node]interface{}
	globals   Tree
}

type external struct {
	done  chan struct{}
	value interface{}
	err   error
}

// resolvingKey is the context key holding the keys a Cache is resolving
// further up the call chain.
type resolvingKey struct{ c *Cache }

type resolving struct {
	key  string
	next *resolving
}

func (c *Cache) resolving(ctx context.Context, key string) bool {
	r, _ := ctx.Value(resolvingKey{c}).(*resolving)
	for ; r != nil; r = r.next {
		if r.key == key {
			return true
		}
	}
	return false
}

func (c *Cache) withResolving(ctx context.Context, key string) context.Context {
	r, _ := ctx.Value(resolvingKey{c}).(*resolving)
	return context.WithValue(ctx, resolvingKey{c}, &resolving{key: key, next: r})
}

// NewCache creates a cache. globals is consulted by external lookups that
// the calling scope cannot resolve; it may be nil.
func NewCache(globals Tree) *Cache {
	return &Cache{
		externals: make(map[string]*external),
		closures:  make(map[*Node]interface{}),
		globals:   globals,
	}
}

// Globals returns the globals tree of the compiled unit.
func (c *Cache) Globals() Tree {
	return c.globals
}

// External returns the value cached for key, calling resolve on a miss.
//
// Concurrent callers asking for the same missing key share a single call to
// resolve. Undefined results (nil) are cached; errors are not.
//
// A lookup of key made from inside its own resolve, through the context
// passed to resolve, runs resolve again instead of waiting. Its result is not
// stored; the outermost resolution is.
func (c *Cache) External(ctx context.Context, key string, resolve func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	if c.resolving(ctx, key) {
		v, err := resolve(ctx)
		return v, false, err
	}

	c.mu.Lock()
	if e, ok := c.externals[key]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
		return e.value, true, e.err
	}
	e := &external{done: make(chan struct{})}
	c.externals[key] = e
	c.mu.Unlock()

	e.value, e.err = resolve(c.withResolving(ctx, key))
	if e.err != nil {
		c.mu.Lock()
		if c.externals[key] == e {
			delete(c.externals, key)
		}
		c.mu.Unlock()
	}
	close(e.done)
	return e.value, false, e.err
}

// Cached reports whether key has a completed resolution.
func (c *Cache) Cached(key string) bool {
	c.mu.Lock()
	e, ok := c.externals[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return e.err == nil
	default:
		return false
	}
}

// Closure returns the closure stored for node, storing the result of create
// on first use. Entries are never evicted.
func (c *Cache) Closure(node *Node, create func() interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.closures[node]; ok {
		return fn
	}
	fn := create()
	c.closures[node] = fn
	return fn
}

// Reset drops all external resolutions. Closures are kept so that function
// values stay identical across the reset.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.externals = make(map[string]*external)
	c.mu.Unlock()
}

// Len returns the number of external resolutions held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.externals)
}
