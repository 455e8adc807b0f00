package evaluator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Lambda is the function value of a lambda node.
//
// Evaluating the same lambda node always yields the same *Lambda. The scope
// a Lambda runs in is supplied per call: its body is evaluated against the
// parameters in front of the caller's scope.
type Lambda struct {
	ev   *Evaluator
	node *types.Node
}

// closures holds the lambdas of nodes that were not compiled into a unit.
//
// THREAD-SAFETY AUDIT: safe.
//   - sync.Map handles concurrent reads and writes without external locking.
//   - LoadOrStore makes the first stored *Lambda the only one ever returned
//     for a node.
//   - No entry is ever deleted or mutated after insertion.
var closures sync.Map // map[*types.Node]*Lambda

// lambda returns the memoized function value of a lambda node. Compiled
// nodes keep their lambdas in the unit's cache.
func (e *Evaluator) lambda(node *types.Node) *Lambda {
	create := func() interface{} { return &Lambda{ev: e, node: node} }
	if node.Cache != nil {
		return node.Cache.Closure(node, create).(*Lambda)
	}
	if fn, ok := closures.Load(node); ok {
		return fn.(*Lambda)
	}
	fn, _ := closures.LoadOrStore(node, create())
	return fn.(*Lambda)
}

// Call implements types.Function.
//
// Parameters are bound to args in order; parameters without an argument
// are undefined and extra arguments are ignored. The lambda itself is bound
// as @recurse. A function returned by the body is bound to the body's scope.
func (l *Lambda) Call(ctx context.Context, s types.Tree, args ...interface{}) (interface{}, error) {
	depth := getRecurseDepth(ctx)
	if max := l.ev.opts.MaxDepth; max > 0 && depth >= max {
		return nil, types.NewError(types.ErrStackOverflow,
			fmt.Sprintf("maximum call depth %d exceeded", max), -1).
			WithLocation(l.node.Location)
	}
	ctx = withRecurseDepth(ctx, depth+1)

	params := l.node.ParamNames()
	bindings := make(map[string]interface{}, len(params)+1)
	for i, name := range params {
		if i < len(args) && args[i] != nil {
			bindings[name] = args[i]
		}
	}
	bindings[types.RecurseKey] = l

	body := scope.New(tree.NewMap(bindings), s)
	result, err := l.ev.evaluate(ctx, l.node.Body, body)
	if err != nil {
		return nil, err
	}
	return bind(result, body), nil
}

// Code implements types.Coder.
func (l *Lambda) Code() *types.Node {
	return l.node
}

// String returns the source of the lambda.
func (l *Lambda) String() string {
	return l.node.Fragment()
}

// Bound is a function fixed to the scope it was created in. The scope a
// caller passes to Call is ignored.
type Bound struct {
	fn    types.Function
	scope types.Tree
}

// Bind fixes fn to s. Already bound functions keep their binding.
func Bind(fn types.Function, s types.Tree) types.Function {
	if b, ok := fn.(*Bound); ok {
		return b
	}
	return &Bound{fn: fn, scope: s}
}

// bind binds v to s when v is a function.
func bind(v interface{}, s types.Tree) interface{} {
	if fn, ok := v.(types.Function); ok {
		return Bind(fn, s)
	}
	return v
}

// Call implements types.Function.
func (b *Bound) Call(ctx context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
	return b.fn.Call(ctx, b.scope, args...)
}

// Code returns the code of the bound function, if it has any.
func (b *Bound) Code() *types.Node {
	if c, ok := b.fn.(types.Coder); ok {
		return c.Code()
	}
	return nil
}

// Unwrap returns the function that was bound.
func (b *Bound) Unwrap() types.Function {
	return b.fn
}

// Scope returns the scope the function is bound to.
func (b *Bound) Scope() types.Tree {
	return b.scope
}
