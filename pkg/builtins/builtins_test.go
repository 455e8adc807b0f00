package builtins_test

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/sandrolain/gorigami/pkg/builtins"
	"github.com/sandrolain/gorigami/pkg/handlers"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

func call(t *testing.T, path []interface{}, args ...interface{}) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	v, err := tree.Traverse(ctx, nil, builtins.Globals(), path...)
	if err != nil {
		t.Fatal(err)
	}
	fn, ok := v.(types.Function)
	if !ok {
		t.Fatalf("%v: expected a function, got %T", path, v)
	}
	return fn.Call(ctx, nil, args...)
}

func path(keys ...interface{}) []interface{} { return keys }

func TestMath(t *testing.T) {
	tests := []struct {
		name string
		path []interface{}
		args []interface{}
		want interface{}
	}{
		{"abs", path("Math", "abs"), []interface{}{-2.5}, 2.5},
		{"ceil", path("Math", "ceil"), []interface{}{1.2}, 2.0},
		{"floor", path("Math", "floor"), []interface{}{1.8}, 1.0},
		{"round half up", path("Math", "round"), []interface{}{2.5}, 3.0},
		{"round negative half", path("Math", "round"), []interface{}{-2.5}, -2.0},
		{"sqrt", path("Math", "sqrt"), []interface{}{9.0}, 3.0},
		{"max", path("Math", "max"), []interface{}{1.0, 7.0, 3.0}, 7.0},
		{"min", path("Math", "min"), []interface{}{4.0, 2.0}, 2.0},
		{"pow", path("Math", "pow"), []interface{}{2.0, 10.0}, 1024.0},
		{"js namespace", path("js:", "Math", "max"), []interface{}{1.0, 2.0}, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := call(t, tt.path, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := call(t, path("Math", "abs"), "x"); !types.HasCode(err, types.ErrInvalidOperand) {
		t.Errorf("expected %s, got %v", types.ErrInvalidOperand, err)
	}
	pi, _ := tree.Traverse(context.Background(), nil, builtins.Globals(), "Math", "PI")
	if pi != math.Pi {
		t.Errorf("PI = %v", pi)
	}
}

func TestTreeHelpers(t *testing.T) {
	obj := map[string]interface{}{"a": 1.0}
	arr := []interface{}{"x", "y"}

	got, err := call(t, path("keys"), arr)
	if err != nil || !reflect.DeepEqual(got, []interface{}{0, 1}) {
		t.Errorf("keys of array: %#v, %v", got, err)
	}
	got, err = call(t, path("values"), obj)
	if err != nil || !reflect.DeepEqual(got, []interface{}{1.0}) {
		t.Errorf("values: %#v, %v", got, err)
	}
	got, err = call(t, path("plain"), tree.NewMap(obj))
	if err != nil || !reflect.DeepEqual(got, obj) {
		t.Errorf("plain: %#v, %v", got, err)
	}
	if _, err := call(t, path("keys"), 1.0); !types.HasCode(err, types.ErrInvalidOperand) {
		t.Errorf("keys of a number: %v", err)
	}
}

func TestTreeHelpersUnpack(t *testing.T) {
	p := &handlers.Packed{Name: "data.json", Data: []byte(`{"b": 2, "a": 1}`), Registry: handlers.Default()}
	got, err := call(t, path("values"), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.([]interface{})) != 2 {
		t.Errorf("values of packed JSON: %#v", got)
	}
}

func TestMapValues(t *testing.T) {
	double := types.Func(func(_ context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
		return args[0].(float64) * 2, nil
	})
	got, err := call(t, path("map"), []interface{}{1.0, 2.0}, double)
	if err != nil || !reflect.DeepEqual(got, []interface{}{2.0, 4.0}) {
		t.Errorf("array: %#v, %v", got, err)
	}

	got, err = call(t, path("map"), map[string]interface{}{"a": 1.0}, double)
	if err != nil {
		t.Fatal(err)
	}
	plain, _ := tree.Plain(context.Background(), got)
	if !reflect.DeepEqual(plain, map[string]interface{}{"a": 2.0}) {
		t.Errorf("tree: %#v", plain)
	}

	withKey := types.Func(func(_ context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
		return args[1], nil
	})
	got, _ = call(t, path("map"), map[string]interface{}{"k": 1.0}, withKey)
	if v, _ := got.(types.Tree).Get(context.Background(), "k"); v != "k" {
		t.Errorf("fn should receive the key, got %v", v)
	}
}

func TestJSNamespace(t *testing.T) {
	tests := []struct {
		name string
		path []interface{}
		arg  interface{}
		want interface{}
	}{
		{"Number from string", path("js:", "Number"), " 42 ", 42.0},
		{"Number from bool", path("js:", "Number"), true, 1.0},
		{"String from number", path("js:", "String"), 1.5, "1.5"},
		{"String from undefined", path("js:", "String"), nil, "undefined"},
		{"JSON.stringify", path("js:", "JSON", "stringify"), map[string]interface{}{"a": []interface{}{1.0}}, `{"a":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := call(t, tt.path, tt.arg)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	n, _ := call(t, path("js:", "Number"), "abc")
	if f, ok := n.(float64); !ok || !math.IsNaN(f) {
		t.Errorf("Number(\"abc\") = %v, want NaN", n)
	}
	parsed, err := call(t, path("js:", "JSON", "parse"), `{"a": [1, 2]}`)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(parsed, map[string]interface{}{"a": []interface{}{1.0, 2.0}}) {
		t.Errorf("JSON.parse = %#v", parsed)
	}
}
