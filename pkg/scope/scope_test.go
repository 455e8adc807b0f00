package scope_test

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// countingTree counts the lookups that reach it.
type countingTree struct {
	types.Tree
	gets atomic.Int32
}

func (c *countingTree) Get(ctx context.Context, key interface{}) (interface{}, error) {
	c.gets.Add(1)
	return c.Tree.Get(ctx, key)
}

func get(t *testing.T, s types.Tree, key string) interface{} {
	t.Helper()
	v, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v
}

func TestScopePrecedence(t *testing.T) {
	s := scope.New(
		tree.NewMap(map[string]interface{}{"b": 2.0}),
		tree.NewMap(map[string]interface{}{"a": 1.0, "b": 3.0}),
	)

	tests := []struct {
		key  string
		want interface{}
	}{
		{"a", 1.0},
		{"b", 2.0},
		{"c", nil},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := get(t, s, tt.key); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScopeFlattensNestedScopes(t *testing.T) {
	a := tree.NewMap(map[string]interface{}{"a": 1.0})
	b := tree.NewMap(map[string]interface{}{"b": 2.0})
	c := tree.NewMap(map[string]interface{}{"c": 3.0})

	s := scope.New(scope.New(a, b), nil, scope.New(c))
	if got := len(s.Sources()); got != 3 {
		t.Fatalf("expected 3 flattened sources, got %d", got)
	}
	if got := get(t, s, "c"); got != 3.0 {
		t.Errorf("got %v, want 3", got)
	}
}

func TestScopeKeysUnion(t *testing.T) {
	s := scope.New(
		tree.NewMap(map[string]interface{}{"a": 1.0, "b": 2.0}),
		tree.NewMap(map[string]interface{}{"b": 3.0, "c": 4.0}),
	)
	keys, err := tree.KeyStrings(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}

func TestScopeParent(t *testing.T) {
	s := scope.New(
		tree.NewMap(map[string]interface{}{"a": "inner"}),
		tree.NewMap(map[string]interface{}{"a": "outer"}),
	)
	parent := s.Parent()
	if parent == nil {
		t.Fatal("expected a parent scope")
	}
	if got := get(t, parent, "a"); got != "outer" {
		t.Errorf("got %v, want outer", got)
	}
	if scope.New(tree.NewMap(nil)).Parent() != nil {
		t.Error("single-source scope should have no parent")
	}
}

func TestCachedScopeQueriesSourceOnce(t *testing.T) {
	source := &countingTree{Tree: tree.NewMap(map[string]interface{}{"a": 1.0})}
	c := scope.NewCached(source, nil)

	for i := 0; i < 2; i++ {
		if got := get(t, c, "a"); got != 1.0 {
			t.Fatalf("got %v, want 1", got)
		}
	}
	if n := source.gets.Load(); n != 1 {
		t.Fatalf("expected 1 source lookup, got %d", n)
	}
}

func TestCachedScopeCachesAbsence(t *testing.T) {
	source := &countingTree{Tree: tree.NewMap(nil)}
	c := scope.NewCached(source, nil)

	for i := 0; i < 3; i++ {
		if got := get(t, c, "missing"); got != nil {
			t.Fatalf("got %v, want nil", got)
		}
	}
	if n := source.gets.Load(); n != 1 {
		t.Fatalf("expected 1 source lookup, got %d", n)
	}
}

func TestCachedScopeDelegatesToBase(t *testing.T) {
	base := scope.NewCached(tree.NewMap(map[string]interface{}{"a": "base", "b": "base"}), nil)
	c := scope.NewCached(tree.NewMap(map[string]interface{}{"b": "local"}), base)

	if got := get(t, c, "a"); got != "base" {
		t.Errorf("a: got %v, want base", got)
	}
	if got := get(t, c, "b"); got != "local" {
		t.Errorf("b: got %v, want local", got)
	}
	if c.Parent() != base {
		t.Error("expected Parent to return the base scope")
	}
}

func TestGetScope(t *testing.T) {
	parent := tree.NewMap(map[string]interface{}{"a": 1.0})
	child := tree.NewMap(map[string]interface{}{"b": 2.0}).WithParent(parent)

	s := scope.GetScope(child)
	if got := get(t, s, "a"); got != 1.0 {
		t.Errorf("a: got %v, want 1", got)
	}
	if got := get(t, s, "b"); got != 2.0 {
		t.Errorf("b: got %v, want 2", got)
	}

	orphan := tree.NewMap(nil)
	if scope.GetScope(orphan) != types.Tree(orphan) {
		t.Error("a tree without a parent should be its own scope")
	}

	existing := scope.New(parent)
	if scope.GetScope(existing) != types.Tree(existing) {
		t.Error("a scope should be returned unchanged")
	}
}
