package types

import "context"

// Tree is any value with key-based access: objects, folders, remote
// resources, computed values.
//
// Get returns (nil, nil) when the key is not defined.
type Tree interface {
	Get(ctx context.Context, key interface{}) (interface{}, error)
	Keys(ctx context.Context) ([]interface{}, error)
}

// Function is a callable value. scope is the call context: the scope the
// caller evaluated the call in.
type Function interface {
	Call(ctx context.Context, scope Tree, args ...interface{}) (interface{}, error)
}

// Func adapts an ordinary Go function to Function.
type Func func(ctx context.Context, scope Tree, args ...interface{}) (interface{}, error)

// Call calls f.
func (f Func) Call(ctx context.Context, scope Tree, args ...interface{}) (interface{}, error) {
	return f(ctx, scope, args...)
}

// Unpackable is a value with deferred materialization, such as the bytes of
// a fetched file that still need to be parsed.
type Unpackable interface {
	Unpack(ctx context.Context) (interface{}, error)
}

// Scoped is implemented by trees that already know their scope.
type Scoped interface {
	Scope() Tree
}

// Parented is implemented by trees that live inside another tree.
type Parented interface {
	Parent() Tree
}

// Coder is implemented by functions compiled from source code.
type Coder interface {
	Code() *Node
}
