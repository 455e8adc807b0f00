package tree_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

func TestMapSlashKeys(t *testing.T) {
	m := tree.NewMap(map[string]interface{}{"a": 1.0, "dir/": 2.0})
	ctx := context.Background()
	tests := []struct {
		key  string
		want interface{}
	}{
		{"a", 1.0},
		{"a/", 1.0},
		{"dir/", 2.0},
		{"dir", nil},
		{"missing", nil},
	}
	for _, tt := range tests {
		if got, _ := m.Get(ctx, tt.key); got != tt.want {
			t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestArrayKeys(t *testing.T) {
	a := tree.Array{"x", "y"}
	ctx := context.Background()
	for key, want := range map[interface{}]interface{}{0: "x", 1.0: "y", "1": "y", "1/": "y", 1.5: nil, "2": nil, -1: nil} {
		if got, _ := a.Get(ctx, key); got != want {
			t.Errorf("Get(%#v) = %v, want %v", key, got, want)
		}
	}
}

func TestTraverse(t *testing.T) {
	ctx := context.Background()
	data := map[string]interface{}{
		"a": map[string]interface{}{"b": []interface{}{"x"}},
		"n": 1.0,
		"f": types.Func(func(_ context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
			return "called " + tree.KeyString(args[0]), nil
		}),
	}

	got, err := tree.Traverse(ctx, nil, data, "a", "b", "0")
	if err != nil || got != "x" {
		t.Errorf("got %v, %v", got, err)
	}
	if got, _ := tree.Traverse(ctx, nil, data, "f", "k"); got != "called k" {
		t.Errorf("function step: got %v", got)
	}
	if got, err := tree.Traverse(ctx, nil, data, "missing", "b"); got != nil || err != nil {
		t.Errorf("Traverse should swallow traversal errors, got %v, %v", got, err)
	}
	if got, err := tree.Traverse(ctx, nil, data, "a", "missing"); got != nil || err != nil {
		t.Errorf("undefined final value: got %v, %v", got, err)
	}
}

func TestTraverseOrThrow(t *testing.T) {
	ctx := context.Background()
	data := tree.NewMap(map[string]interface{}{
		"a": map[string]interface{}{"b": 1.0},
		"n": 1.0,
	})

	_, err := tree.TraverseOrThrow(ctx, nil, data, "a", "c", "d")
	var te *tree.TraversalError
	if !errors.As(err, &te) {
		t.Fatalf("expected a traversal error, got %v", err)
	}
	if te.Key() != "c" || te.Position != 1 {
		t.Errorf("failing key %v at %d", te.Key(), te.Position)
	}
	if te.Error() != "Tried to traverse path a/c/d but a/c was undefined" {
		t.Errorf("message %q", te.Error())
	}

	_, err = tree.TraverseOrThrow(ctx, nil, data, "n", "x")
	if !errors.As(err, &te) || te.Reason == "" {
		t.Fatalf("expected a not-a-tree error, got %v", err)
	}
}

type packed struct{ value interface{} }

func (p packed) Unpack(context.Context) (interface{}, error) { return p.value, nil }

func TestTraverseUnpacks(t *testing.T) {
	data := map[string]interface{}{"file": packed{map[string]interface{}{"k": "v"}}}
	got, err := tree.Traverse(context.Background(), nil, data, "file", "k")
	if err != nil || got != "v" {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestPlain(t *testing.T) {
	ctx := context.Background()
	in := tree.NewMap(map[string]interface{}{
		"dir/": tree.NewMap(map[string]interface{}{"x": 1.0}),
		"list": tree.Array{tree.NewMap(map[string]interface{}{"y": 2.0})},
	})
	got, err := tree.Plain(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"dir":  map[string]interface{}{"x": 1.0},
		"list": []interface{}{map[string]interface{}{"y": 2.0}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v", got)
	}
}

func TestSlashHelpers(t *testing.T) {
	if !tree.HasSlash("a/") || tree.HasSlash("a") {
		t.Error("HasSlash")
	}
	if tree.RemoveSlash("a/") != "a" || tree.AddSlash("a") != "a/" || tree.AddSlash("a/") != "a/" {
		t.Error("slash helpers")
	}
	if tree.Path([]interface{}{"a/", 1.0, "b"}) != "a/1/b" {
		t.Error("Path")
	}
}
