package compiler

import (
	"strings"

	"src.elv.sh/pkg/persistent/hash"
	"src.elv.sh/pkg/persistent/hashmap"

	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Locals is the set of names bound by the lambdas and object literals that
// enclose a node.
//
// Locals is persistent: With returns an extended set and leaves the receiver
// untouched, so names bound for a lambda body never leak into its siblings.
type Locals struct {
	names hashmap.Map
}

func stringEqual(a, b interface{}) bool { return a == b }

func stringHash(k interface{}) uint32 { return hash.String(k.(string)) }

// NewLocals returns a set holding names.
func NewLocals(names ...string) Locals {
	return Locals{names: hashmap.New(stringEqual, stringHash)}.With(names...)
}

// With returns the set extended with names, trailing slashes removed.
func (l Locals) With(names ...string) Locals {
	m := l.names
	if m == nil {
		m = hashmap.New(stringEqual, stringHash)
	}
	for _, name := range names {
		m = m.Assoc(tree.RemoveSlash(name), struct{}{})
	}
	return Locals{names: m}
}

// Has reports whether name, trailing slash removed, is local.
func (l Locals) Has(name string) bool {
	if l.names == nil {
		return false
	}
	_, ok := l.names.Index(tree.RemoveSlash(name))
	return ok
}

// Len returns the number of local names.
func (l Locals) Len() int {
	if l.names == nil {
		return 0
	}
	return l.names.Len()
}

// Resolve rewrites the undetermined references of code.
//
// A name bound by an enclosing lambda parameter or object key becomes a
// plain scope reference. Any other name becomes an external reference bound
// to cache, carrying the plain lookup as its fallback, so it is resolved once
// per cache rather than on every evaluation. A name ending in ":" is a
// builtin namespace and is never external; it is looked up in the globals
// of cache only.
//
// Resolve returns new nodes and never modifies code. Locations are carried
// over to the rewritten nodes.
func Resolve(code *types.Node, cache *types.Cache, locals Locals) *types.Node {
	if code == nil {
		return nil
	}

	switch code.Op {
	case types.OpLiteral, types.OpScope, types.OpInherited, types.OpExternal:
		return code

	case types.OpGlobal:
		return &types.Node{Op: types.OpGlobal, Key: code.Key, Cache: cache, Location: code.Location}

	case types.OpUndetermined, types.OpReference:
		return resolveReference(code, cache, locals)

	case types.OpLambda:
		inner := locals.With(code.ParamNames()...).With(types.RecurseKey)
		return &types.Node{
			Op:       types.OpLambda,
			Params:   code.Params,
			Body:     Resolve(code.Body, cache, inner),
			Cache:    cache,
			Location: code.Location,
		}

	case types.OpObject, types.OpTree:
		keys := make([]string, len(code.Entries))
		for i, e := range code.Entries {
			keys[i] = e.Key
		}
		inner := locals.With(keys...)
		entries := make([]types.Entry, len(code.Entries))
		for i, e := range code.Entries {
			entries[i] = types.Entry{
				Key:    e.Key,
				Value:  Resolve(e.Value, cache, inner),
				Getter: e.Getter,
			}
		}
		return &types.Node{
			Op:       code.Op,
			Entries:  entries,
			Location: code.Location,
		}
	}

	operands := make([]*types.Node, len(code.Operands))
	for i, o := range code.Operands {
		operands[i] = Resolve(o, cache, locals)
	}
	return &types.Node{
		Op:       code.Op,
		Operands: operands,
		Location: code.Location,
	}
}

func resolveReference(code *types.Node, cache *types.Cache, locals Locals) *types.Node {
	key := code.Key
	if strings.HasSuffix(key, ":") {
		return &types.Node{Op: types.OpGlobal, Key: key, Cache: cache, Location: code.Location}
	}

	if locals.Has(key) {
		if code.Op == types.OpReference {
			return code
		}
		return &types.Node{Op: types.OpReference, Key: key, Location: code.Location}
	}

	return &types.Node{
		Op:       types.OpExternal,
		Key:      key,
		Fallback: &types.Node{Op: types.OpReference, Key: key, Location: code.Location},
		Cache:    cache,
		Location: code.Location,
	}
}
