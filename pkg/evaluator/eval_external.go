package evaluator

import (
	"context"

	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/types"
)

// evalReference looks the key up in the current scope. An undefined name
// evaluates to nil; only using it as a head is an error.
func (e *Evaluator) evalReference(ctx context.Context, node *types.Node, s types.Tree) (interface{}, error) {
	if s == nil {
		return nil, nil
	}
	return s.Get(ctx, node.Key)
}

// evalInherited looks the key up in the parent of the current scope, so an
// object entry `{ a }` reads the `a` that surrounds the object.
func (e *Evaluator) evalInherited(ctx context.Context, node *types.Node, s types.Tree) (interface{}, error) {
	p, ok := scope.GetScope(s).(types.Parented)
	if !ok {
		return nil, nil
	}
	parent := p.Parent()
	if parent == nil {
		return nil, nil
	}
	return parent.Get(ctx, node.Key)
}

// evalExternal resolves a non-local name once per compiled unit. The first
// lookup runs the fallback against the calling scope and then the globals;
// later lookups reuse that answer, including an undefined one.
func (e *Evaluator) evalExternal(ctx context.Context, node *types.Node, s types.Tree) (interface{}, error) {
	resolve := func(ctx context.Context) (interface{}, error) {
		fallback := node.Fallback
		if fallback == nil {
			fallback = &types.Node{Op: types.OpReference, Key: node.Key, Location: node.Location}
		}
		v, err := e.evaluate(ctx, fallback, s)
		if err != nil || v != nil {
			return v, err
		}
		if g := e.globals(node); g != nil {
			return g.Get(ctx, node.Key)
		}
		return nil, nil
	}

	if node.Cache == nil {
		return resolve(ctx)
	}
	v, hit, err := node.Cache.External(ctx, node.Key, resolve)
	if e.opts.Debug {
		e.logger.Debug("external reference",
			"key", node.Key,
			"cached", hit,
			"defined", v != nil)
	}
	return v, err
}

// evalGlobal looks a builtin namespace up in the globals only.
func (e *Evaluator) evalGlobal(ctx context.Context, node *types.Node, _ types.Tree) (interface{}, error) {
	g := e.globals(node)
	if g == nil {
		return nil, nil
	}
	return g.Get(ctx, node.Key)
}
