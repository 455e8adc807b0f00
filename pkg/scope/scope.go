// Package scope implements scope chains: ordered, delegating lookups over
// trees used to resolve free names at evaluation time.
//
// A Scope asks each of its sources in turn and returns the first defined
// value. A Cached scope additionally remembers every lookup it has answered,
// including lookups that found nothing.
package scope

import (
	"context"
	"sync"

	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Scope is an ordered list of lookup sources.
type Scope struct {
	sources []types.Tree
}

// New creates a scope over sources, in lookup order. Nil sources are
// dropped and nested scopes are flattened, so composing scopes never builds
// deep delegation chains.
func New(sources ...types.Tree) *Scope {
	flattened := make([]types.Tree, 0, len(sources))
	for _, src := range sources {
		switch s := src.(type) {
		case nil:
		case *Scope:
			flattened = append(flattened, s.sources...)
		default:
			flattened = append(flattened, src)
		}
	}
	return &Scope{sources: flattened}
}

// Get returns the first defined value for key among the sources.
func (s *Scope) Get(ctx context.Context, key interface{}) (interface{}, error) {
	for _, src := range s.sources {
		v, err := src.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

// Keys returns the union of the sources' keys without duplicates.
func (s *Scope) Keys(ctx context.Context) ([]interface{}, error) {
	return unionKeys(ctx, s.sources...)
}

// Sources returns the scope's sources in lookup order.
func (s *Scope) Sources() []types.Tree {
	return s.sources
}

// Parent returns the scope without its first source, or nil when there is
// nothing behind it.
func (s *Scope) Parent() types.Tree {
	if len(s.sources) <= 1 {
		return nil
	}
	return &Scope{sources: s.sources[1:]}
}

// Cached is a scope over a single source that remembers every answer,
// including explicit absence, and falls back to a base scope.
//
// A second lookup of the same key against the same Cached never re-queries
// the source. The cache is never invalidated.
type Cached struct {
	source types.Tree
	base   types.Tree

	mu    sync.RWMutex
	cache map[string]interface{}
}

// NewCached creates a caching scope. Either argument may be nil.
func NewCached(source, base types.Tree) *Cached {
	return &Cached{
		source: source,
		base:   base,
		cache:  make(map[string]interface{}),
	}
}

// Get returns the cached value for key, or resolves it against the source
// and then the base.
func (c *Cached) Get(ctx context.Context, key interface{}) (interface{}, error) {
	ck, cacheable := cacheKey(key)
	if cacheable {
		c.mu.RLock()
		v, ok := c.cache[ck]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
	}

	var v interface{}
	var err error
	if c.source != nil {
		if v, err = c.source.Get(ctx, key); err != nil {
			return nil, err
		}
	}
	if v == nil && c.base != nil {
		if v, err = c.base.Get(ctx, key); err != nil {
			return nil, err
		}
	}

	if cacheable {
		c.mu.Lock()
		c.cache[ck] = v
		c.mu.Unlock()
	}
	return v, nil
}

// Keys returns the union of the source's and the base's keys.
func (c *Cached) Keys(ctx context.Context) ([]interface{}, error) {
	return unionKeys(ctx, c.source, c.base)
}

// Parent returns the base scope.
func (c *Cached) Parent() types.Tree {
	return c.base
}

func cacheKey(key interface{}) (string, bool) {
	switch key.(type) {
	case string, float64, int:
		return tree.KeyString(key), true
	}
	return "", false
}

func unionKeys(ctx context.Context, sources ...types.Tree) ([]interface{}, error) {
	seen := make(map[string]bool)
	var keys []interface{}
	for _, src := range sources {
		if src == nil {
			continue
		}
		srcKeys, err := src.Keys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range srcKeys {
			ks := tree.KeyString(k)
			if seen[ks] {
				continue
			}
			seen[ks] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// GetScope returns the scope a tree's code should be evaluated in.
//
// A tree that knows its scope supplies it; a tree with a parent is placed in
// front of its parent's scope; any other tree is its own scope.
func GetScope(t types.Tree) types.Tree {
	switch s := t.(type) {
	case nil:
		return nil
	case *Scope, *Cached:
		return t
	case types.Scoped:
		if sc := s.Scope(); sc != nil {
			return sc
		}
	}
	if p, ok := t.(types.Parented); ok {
		if parent := p.Parent(); parent != nil {
			return New(t, GetScope(parent))
		}
	}
	return t
}
