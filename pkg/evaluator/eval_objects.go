package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Object is the tree built by an object or tree constructor.
//
// Entry values are evaluated on first access, in a scope that puts the
// object in front of the scope it was constructed in, so entries can refer to
// each other. A `key: value` entry is computed once; a `key = value` entry is
// computed on every access. Functions read from an object are bound to the
// object's scope.
//
// Safe for concurrent use. Two goroutines reading an uncomputed entry at the
// same time may both compute it; the first result stored is the one every
// reader sees afterwards.
type Object struct {
	ev     *Evaluator
	node   *types.Node
	parent types.Tree
	scope  types.Tree

	mu     sync.Mutex
	values map[string]interface{}
}

func newObject(ev *Evaluator, node *types.Node, parent types.Tree) *Object {
	o := &Object{
		ev:     ev,
		node:   node,
		parent: parent,
		values: make(map[string]interface{}, len(node.Entries)),
	}
	o.scope = scope.New(o, parent)
	return o
}

// entry finds the entry for key, with or without a trailing slash.
func (o *Object) entry(key string) (types.Entry, bool) {
	for _, e := range o.node.Entries {
		if e.Key == key {
			return e, true
		}
	}
	trimmed := tree.RemoveSlash(key)
	for _, e := range o.node.Entries {
		if tree.RemoveSlash(e.Key) == trimmed {
			return e, true
		}
	}
	return types.Entry{}, false
}

// Get implements types.Tree.
func (o *Object) Get(ctx context.Context, key interface{}) (interface{}, error) {
	k := tree.KeyString(key)
	e, ok := o.entry(k)
	if !ok {
		return nil, nil
	}

	if !e.Getter {
		o.mu.Lock()
		v, done := o.values[e.Key]
		o.mu.Unlock()
		if done {
			return v, nil
		}
	}

	depth := getRecurseDepth(ctx)
	if max := o.ev.opts.MaxDepth; max > 0 && depth >= max {
		return nil, types.NewError(types.ErrStackOverflow,
			fmt.Sprintf("maximum depth %d exceeded computing %q", max, e.Key), -1).
			WithLocation(e.Value.Location)
	}
	v, err := o.ev.evaluate(withRecurseDepth(ctx, depth+1), e.Value, o.scope)
	if err != nil {
		return nil, err
	}
	v = bind(v, o.scope)

	if e.Getter {
		return v, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if stored, done := o.values[e.Key]; done {
		return stored, nil
	}
	o.values[e.Key] = v
	return v, nil
}

// Keys implements types.Tree. Keys are returned in source order, as written.
func (o *Object) Keys(_ context.Context) ([]interface{}, error) {
	keys := make([]interface{}, len(o.node.Entries))
	for i, e := range o.node.Entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// Parent implements types.Parented.
func (o *Object) Parent() types.Tree {
	return o.parent
}

// Scope implements types.Scoped.
func (o *Object) Scope() types.Tree {
	return o.scope
}

// Code returns the constructor node the object was built from.
func (o *Object) Code() *types.Node {
	return o.node
}

// String lists the object's keys.
func (o *Object) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, e := range o.node.Entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Key)
	}
	sb.WriteString("}")
	return sb.String()
}
