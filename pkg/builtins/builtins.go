// Package builtins provides a small set of global functions: numeric
// helpers under Math, tree helpers (keys, map, plain, values) and the js:
// namespace exposing JavaScript-style globals.
//
// The full builtin catalog of the language is out of scope; this set exists
// so that expressions have something useful to call by default.
package builtins

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/sandrolain/gorigami/pkg/functions"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

var defaultGlobals = sync.OnceValue(func() *tree.Map {
	return build()
})

// Globals returns the builtin globals tree. The tree is shared and must not
// be modified.
func Globals() types.Tree {
	return defaultGlobals()
}

func build() *tree.Map {
	mt := mathTree()
	m := functions.Map(
		functions.CustomFunctionDef{Name: "keys", MinArgs: 1, MaxArgs: 1, Fn: keys},
		functions.CustomFunctionDef{Name: "values", MinArgs: 1, MaxArgs: 1, Fn: values},
		functions.CustomFunctionDef{Name: "plain", MinArgs: 1, MaxArgs: 1, Fn: plain},
		functions.AdvancedCustomFunctionDef{Name: "map", MinArgs: 2, MaxArgs: 2, Fn: mapValues},
	)
	m["Math"] = mt
	m["js:"] = jsNamespace(mt)
	return tree.NewMap(m)
}

func mathTree() *tree.Map {
	unary := func(name string, f func(float64) float64) functions.CustomFunctionDef {
		return functions.CustomFunctionDef{
			Name:    name,
			MinArgs: 1,
			MaxArgs: 1,
			Fn: func(_ context.Context, args ...interface{}) (interface{}, error) {
				n, err := number(name, args[0])
				if err != nil {
					return nil, err
				}
				return f(n), nil
			},
		}
	}
	m := functions.Map(
		unary("abs", math.Abs),
		unary("ceil", math.Ceil),
		unary("floor", math.Floor),
		unary("round", roundHalfUp),
		unary("sqrt", math.Sqrt),
		functions.CustomFunctionDef{Name: "max", MinArgs: 1, Fn: extreme("max", math.Max)},
		functions.CustomFunctionDef{Name: "min", MinArgs: 1, Fn: extreme("min", math.Min)},
		functions.CustomFunctionDef{Name: "pow", MinArgs: 2, MaxArgs: 2, Fn: func(_ context.Context, args ...interface{}) (interface{}, error) {
			x, err := number("pow", args[0])
			if err != nil {
				return nil, err
			}
			y, err := number("pow", args[1])
			if err != nil {
				return nil, err
			}
			return math.Pow(x, y), nil
		}},
	)
	m["PI"] = math.Pi
	m["E"] = math.E
	return tree.NewMap(m)
}

// roundHalfUp rounds like JavaScript's Math.round.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func extreme(name string, pick func(a, b float64) float64) functions.CustomFunc {
	return func(_ context.Context, args ...interface{}) (interface{}, error) {
		result, err := number(name, args[0])
		if err != nil {
			return nil, err
		}
		for _, arg := range args[1:] {
			n, err := number(name, arg)
			if err != nil {
				return nil, err
			}
			result = pick(result, n)
		}
		return result, nil
	}
}

func number(name string, v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, types.NewError(types.ErrInvalidOperand,
		fmt.Sprintf("%s expects numbers, got %T", name, v), -1)
}

func asTree(ctx context.Context, name string, v interface{}) (types.Tree, error) {
	if u, ok := v.(types.Unpackable); ok {
		unpacked, err := u.Unpack(ctx)
		if err != nil {
			return nil, err
		}
		v = unpacked
	}
	t, ok := tree.From(v)
	if !ok {
		return nil, types.NewError(types.ErrInvalidOperand,
			fmt.Sprintf("%s expects a tree, got %T", name, v), -1)
	}
	return t, nil
}

// keys returns the keys of a tree as an array.
func keys(ctx context.Context, args ...interface{}) (interface{}, error) {
	t, err := asTree(ctx, "keys", args[0])
	if err != nil {
		return nil, err
	}
	return t.Keys(ctx)
}

// values returns the values of a tree as an array, in key order.
func values(ctx context.Context, args ...interface{}) (interface{}, error) {
	t, err := asTree(ctx, "values", args[0])
	if err != nil {
		return nil, err
	}
	ks, err := t.Keys(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]interface{}, len(ks))
	for i, k := range ks {
		if result[i], err = t.Get(ctx, k); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func plain(ctx context.Context, args ...interface{}) (interface{}, error) {
	return tree.Plain(ctx, args[0])
}

// mapValues applies fn to every value of a tree. The result is an array
// when the source is an array and a tree with the same keys otherwise.
// fn receives the value and the key.
func mapValues(ctx context.Context, caller functions.Caller, args ...interface{}) (interface{}, error) {
	source, fn := args[0], args[1]
	t, err := asTree(ctx, "map", source)
	if err != nil {
		return nil, err
	}
	ks, err := t.Keys(ctx)
	if err != nil {
		return nil, err
	}
	mapped := make([]interface{}, len(ks))
	for i, k := range ks {
		v, err := t.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if mapped[i], err = caller.Call(ctx, fn, v, k); err != nil {
			return nil, err
		}
	}

	switch source.(type) {
	case []interface{}, tree.Array:
		return mapped, nil
	}
	m := make(map[string]interface{}, len(ks))
	for i, k := range ks {
		if mapped[i] != nil {
			m[tree.KeyString(k)] = mapped[i]
		}
	}
	return tree.NewMap(m), nil
}

// jsNamespace exposes JavaScript-style globals under js:.
func jsNamespace(mt types.Tree) *tree.Map {
	parse := functions.CustomFunctionDef{Name: "parse", MinArgs: 1, MaxArgs: 1, Fn: func(_ context.Context, args ...interface{}) (interface{}, error) {
		s, ok := args[0].(string)
		if !ok {
			return nil, types.NewError(types.ErrInvalidOperand, "JSON.parse expects a string", -1)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return v, nil
	}}
	stringify := functions.CustomFunctionDef{Name: "stringify", MinArgs: 1, MaxArgs: 1, Fn: func(ctx context.Context, args ...interface{}) (interface{}, error) {
		v, err := tree.Plain(ctx, args[0])
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}}
	toNumber := functions.CustomFunctionDef{Name: "Number", MinArgs: 1, MaxArgs: 1, Fn: func(_ context.Context, args ...interface{}) (interface{}, error) {
		switch v := args[0].(type) {
		case float64:
			return v, nil
		case bool:
			if v {
				return 1.0, nil
			}
			return 0.0, nil
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return math.NaN(), nil
			}
			return n, nil
		}
		return math.NaN(), nil
	}}
	toString := functions.CustomFunctionDef{Name: "String", MinArgs: 1, MaxArgs: 1, Fn: func(_ context.Context, args ...interface{}) (interface{}, error) {
		switch v := args[0].(type) {
		case nil:
			return "undefined", nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case fmt.Stringer:
			return v.String(), nil
		}
		return fmt.Sprint(args[0]), nil
	}}

	m := functions.Map(toNumber, toString)
	m["JSON"] = functions.Globals(parse, stringify)
	m["Math"] = mt
	return tree.NewMap(m)
}
