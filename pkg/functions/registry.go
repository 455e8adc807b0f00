// Package functions provides types for registering custom functions.
//
// Registered functions are gathered into a globals tree, which makes them
// available to every expression compiled with it.
//
// # Example
//
//	globals := functions.Globals(
//	    functions.CustomFunctionDef{
//	        Name: "greet",
//	        Fn: func(ctx context.Context, args ...interface{}) (interface{}, error) {
//	            return "Hello, " + args[0].(string) + "!", nil
//	        },
//	    },
//	)
//	result, err := gorigami.Eval(`greet("World")`, nil, gorigami.WithGlobals(globals))
//	// result == "Hello, World!"
package functions

import (
	"context"
	"fmt"

	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// CustomFunc is the signature for user-defined custom functions.
// args contains the evaluated function arguments in order.
type CustomFunc func(ctx context.Context, args ...interface{}) (interface{}, error)

// CustomFunctionDef describes a user-defined function.
type CustomFunctionDef struct {
	// Name is the function name as it appears inside expressions.
	Name string
	// MinArgs is the minimum number of arguments accepted.
	MinArgs int
	// MaxArgs is the maximum number of arguments accepted; -1 or 0 means
	// unlimited.
	MaxArgs int
	// Fn is the implementation.
	Fn CustomFunc
}

// Caller can invoke a function value (lambda, builtin or any callable that
// the evaluator recognizes) that was passed as an argument. It is provided to
// AdvancedCustomFunc implementations so they can call back into expression
// code for higher-order functions.
type Caller interface {
	// Call invokes fn with the supplied args in the scope of the call that
	// reached the custom function.
	Call(ctx context.Context, fn interface{}, args ...interface{}) (interface{}, error)
}

// AdvancedCustomFunc is like CustomFunc but also receives a Caller.
type AdvancedCustomFunc func(ctx context.Context, caller Caller, args ...interface{}) (interface{}, error)

// AdvancedCustomFunctionDef is the struct counterpart of AdvancedCustomFunc.
type AdvancedCustomFunctionDef struct {
	Name    string
	MinArgs int
	MaxArgs int
	Fn      AdvancedCustomFunc
}

// FunctionEntry is a common marker interface implemented by both
// [CustomFunctionDef] and [AdvancedCustomFunctionDef].
type FunctionEntry interface {
	isFunctionEntry()
	name() string
	function() types.Function
}

func (c CustomFunctionDef) isFunctionEntry()         {}
func (a AdvancedCustomFunctionDef) isFunctionEntry() {}

func (c CustomFunctionDef) name() string         { return c.Name }
func (a AdvancedCustomFunctionDef) name() string { return a.Name }

func (c CustomFunctionDef) function() types.Function {
	return types.Func(func(ctx context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
		if err := checkArity(c.Name, c.MinArgs, c.MaxArgs, args); err != nil {
			return nil, err
		}
		return c.Fn(ctx, args...)
	})
}

func (a AdvancedCustomFunctionDef) function() types.Function {
	return types.Func(func(ctx context.Context, s types.Tree, args ...interface{}) (interface{}, error) {
		if err := checkArity(a.Name, a.MinArgs, a.MaxArgs, args); err != nil {
			return nil, err
		}
		return a.Fn(ctx, scopeCaller{scope: s}, args...)
	})
}

func checkArity(name string, min, max int, args []interface{}) error {
	if len(args) < min {
		return types.NewError(types.ErrInvocation,
			fmt.Sprintf("%s expects at least %d arguments, got %d", name, min, len(args)), -1)
	}
	if max > 0 && len(args) > max {
		return types.NewError(types.ErrInvocation,
			fmt.Sprintf("%s expects at most %d arguments, got %d", name, max, len(args)), -1)
	}
	return nil
}

// scopeCaller calls function values in the scope a custom function was
// called from.
type scopeCaller struct {
	scope types.Tree
}

// Call implements Caller. Trees are traversed by args.
func (c scopeCaller) Call(ctx context.Context, fn interface{}, args ...interface{}) (interface{}, error) {
	return Invoke(ctx, c.scope, fn, args...)
}

// Invoke calls fn with args in scope s, or traverses it by args when it is a
// tree.
func Invoke(ctx context.Context, s types.Tree, fn interface{}, args ...interface{}) (interface{}, error) {
	switch f := fn.(type) {
	case nil:
		return nil, types.NewError(types.ErrUndefinedReference, "function is not defined", -1)
	case types.Function:
		return f.Call(ctx, s, args...)
	}
	if !tree.IsTreelike(fn) {
		return nil, types.NewError(types.ErrNotCallable, fmt.Sprintf("%T is not a function or a tree", fn), -1)
	}
	return tree.TraverseOrThrow(ctx, s, fn, args...)
}

// Map returns the given functions keyed by name. Later entries replace
// earlier entries with the same name.
func Map(entries ...FunctionEntry) map[string]interface{} {
	m := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		m[e.name()] = e.function()
	}
	return m
}

// Globals builds a tree of the given functions keyed by name.
func Globals(entries ...FunctionEntry) *tree.Map {
	return tree.NewMap(Map(entries...))
}
