package tree

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandrolain/gorigami/pkg/types"
)

// TraversalError reports a path traversal that reached an undefined value
// before the last key, or a value that cannot be traversed.
type TraversalError struct {
	Head     interface{}   // last value successfully reached
	Keys     []interface{} // the full path
	Position int           // index in Keys of the key that could not be followed
	Reason   string
}

// Error implements the error interface.
func (e *TraversalError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("Tried to traverse path %s but %s", Path(e.Keys), e.Reason)
	}
	return fmt.Sprintf("Tried to traverse path %s but %s was undefined", Path(e.Keys), Path(e.Keys[:e.Position+1]))
}

// Key returns the key that could not be followed.
func (e *TraversalError) Key() interface{} {
	return e.Keys[e.Position]
}

// Path joins keys with slashes.
func Path(keys []interface{}) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = RemoveSlash(KeyString(k))
	}
	return strings.Join(parts, "/")
}

// Traverse follows keys from head and returns the value reached, or nil if
// any step is undefined.
//
// Unpackable values met along the way are unpacked. Functions are traversed
// by calling them with the key, in scope.
func Traverse(ctx context.Context, scope types.Tree, head interface{}, keys ...interface{}) (interface{}, error) {
	v, err := TraverseOrThrow(ctx, scope, head, keys...)
	if _, ok := err.(*TraversalError); ok {
		return nil, nil
	}
	return v, err
}

// TraverseOrThrow is like Traverse, but fails with a *TraversalError when a
// value before the last key is undefined. An undefined final value is not an
// error.
func TraverseOrThrow(ctx context.Context, scope types.Tree, head interface{}, keys ...interface{}) (interface{}, error) {
	if head == nil {
		return nil, nil
	}
	value := head
	for i, key := range keys {
		if u, ok := value.(types.Unpackable); ok {
			unpacked, err := u.Unpack(ctx)
			if err != nil {
				return nil, err
			}
			value = unpacked
		}

		var next interface{}
		var err error
		if fn, ok := value.(types.Function); ok {
			next, err = fn.Call(ctx, scope, key)
		} else if t, ok := From(value); ok {
			next, err = t.Get(ctx, key)
		} else {
			return nil, &TraversalError{
				Head:     value,
				Keys:     keys,
				Position: i,
				Reason:   fmt.Sprintf("%s is not a tree", describe(value)),
			}
		}
		if err != nil {
			return nil, err
		}
		if next == nil && i < len(keys)-1 {
			return nil, &TraversalError{Head: value, Keys: keys, Position: i}
		}
		value = next
	}
	return value, nil
}

func describe(v interface{}) string {
	switch v.(type) {
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case types.Null:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
