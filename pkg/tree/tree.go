// Package tree provides helpers over the tree contract defined in
// [types.Tree]: adapters for Go maps and slices, path traversal, and
// conversion back to plain Go values.
//
// # Example
//
//	t := tree.NewMap(map[string]interface{}{"a": map[string]interface{}{"b": 1.0}})
//	v, err := tree.Traverse(ctx, nil, t, "a", "b") // 1.0
package tree

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sandrolain/gorigami/pkg/types"
)

// Map is a tree backed by a Go map.
type Map struct {
	values map[string]interface{}
	parent types.Tree
}

// NewMap wraps m. The map must not be modified afterwards.
func NewMap(m map[string]interface{}) *Map {
	if m == nil {
		m = map[string]interface{}{}
	}
	return &Map{values: m}
}

// WithParent returns a copy of the tree that reports parent as its parent.
func (m *Map) WithParent(parent types.Tree) *Map {
	return &Map{values: m.values, parent: parent}
}

// Get returns the value for key. A key with a trailing slash finds the same
// value as the key without it.
func (m *Map) Get(_ context.Context, key interface{}) (interface{}, error) {
	k := KeyString(key)
	if v, ok := m.values[k]; ok {
		return v, nil
	}
	if HasSlash(k) {
		if v, ok := m.values[RemoveSlash(k)]; ok {
			return v, nil
		}
	}
	return nil, nil
}

// Keys returns the keys of the map in sorted order.
func (m *Map) Keys(_ context.Context) ([]interface{}, error) {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]interface{}, len(keys))
	for i, k := range keys {
		result[i] = k
	}
	return result, nil
}

// Parent returns the tree's parent, or nil.
func (m *Map) Parent() types.Tree {
	return m.parent
}

// Array is a tree over a slice. Its keys are the indices.
type Array []interface{}

// Get returns the element at the index named by key.
func (a Array) Get(_ context.Context, key interface{}) (interface{}, error) {
	i, ok := index(key)
	if !ok || i < 0 || i >= len(a) {
		return nil, nil
	}
	return a[i], nil
}

// Keys returns the indices of the slice.
func (a Array) Keys(_ context.Context) ([]interface{}, error) {
	keys := make([]interface{}, len(a))
	for i := range a {
		keys[i] = i
	}
	return keys, nil
}

func index(key interface{}) (int, bool) {
	switch k := key.(type) {
	case int:
		return k, true
	case float64:
		if k != float64(int(k)) {
			return 0, false
		}
		return int(k), true
	case string:
		i, err := strconv.Atoi(RemoveSlash(k))
		return i, err == nil
	}
	return 0, false
}

// From returns v as a tree. Trees are returned as-is; maps and slices are
// wrapped.
func From(v interface{}) (types.Tree, bool) {
	switch t := v.(type) {
	case types.Tree:
		return t, true
	case map[string]interface{}:
		return NewMap(t), true
	case []interface{}:
		return Array(t), true
	}
	return nil, false
}

// IsTreelike reports whether v can be traversed: trees, maps, slices and
// functions (which are traversed by calling them with the key).
func IsTreelike(v interface{}) bool {
	if _, ok := v.(types.Function); ok {
		return true
	}
	_, ok := From(v)
	return ok
}

// KeyString returns the string form of a key.
func KeyString(key interface{}) string {
	switch k := key.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case int:
		return strconv.Itoa(k)
	case nil:
		return ""
	}
	return fmt.Sprint(key)
}

// KeyStrings returns the keys of t as strings.
func KeyStrings(ctx context.Context, t types.Tree) ([]string, error) {
	keys, err := t.Keys(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]string, len(keys))
	for i, k := range keys {
		result[i] = KeyString(k)
	}
	return result, nil
}

// HasSlash reports whether key ends with a slash.
func HasSlash(key string) bool {
	return strings.HasSuffix(key, "/")
}

// RemoveSlash strips one trailing slash from key.
func RemoveSlash(key string) string {
	return strings.TrimSuffix(key, "/")
}

// AddSlash appends a trailing slash to key if it lacks one.
func AddSlash(key string) string {
	if HasSlash(key) {
		return key
	}
	return key + "/"
}

// Plain converts trees inside v into plain Go maps and slices, recursively.
// Unpackable values are left packed; functions are returned unchanged.
func Plain(ctx context.Context, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case Array:
		return plainSlice(ctx, t)
	case []interface{}:
		return plainSlice(ctx, t)
	case map[string]interface{}:
		return plainTree(ctx, NewMap(t))
	case types.Tree:
		return plainTree(ctx, t)
	}
	return v, nil
}

func plainSlice(ctx context.Context, s []interface{}) (interface{}, error) {
	result := make([]interface{}, len(s))
	for i, item := range s {
		p, err := Plain(ctx, item)
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func plainTree(ctx context.Context, t types.Tree) (interface{}, error) {
	keys, err := t.Keys(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		v, err := t.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		p, err := Plain(ctx, v)
		if err != nil {
			return nil, err
		}
		result[RemoveSlash(KeyString(k))] = p
	}
	return result, nil
}
