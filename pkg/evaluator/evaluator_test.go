package evaluator_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandrolain/gorigami/pkg/builtins"
	"github.com/sandrolain/gorigami/pkg/compiler"
	"github.com/sandrolain/gorigami/pkg/evaluator"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

func compile(t testing.TB, expr string, opts ...evaluator.EvalOption) *compiler.Unit {
	t.Helper()
	unit, err := compiler.Compile(expr,
		compiler.WithGlobals(builtins.Globals()),
		compiler.WithEvaluator(evaluator.New(opts...)),
	)
	if err != nil {
		t.Fatalf("Failed to compile %q: %v", expr, err)
	}
	return unit
}

func eval(t testing.TB, expr string, s types.Tree, opts ...evaluator.EvalOption) (interface{}, error) {
	t.Helper()
	return compile(t, expr, opts...).Eval(context.Background(), s)
}

func call(t *testing.T, fn interface{}, args ...interface{}) interface{} {
	t.Helper()
	f, ok := fn.(types.Function)
	if !ok {
		t.Fatalf("expected a function, got %T", fn)
	}
	result, err := f.Call(context.Background(), nil, args...)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestEvalExpressions(t *testing.T) {
	s := tree.NewMap(map[string]interface{}{
		"name": "Ada",
		"flag": true,
		"data": map[string]interface{}{"items": []interface{}{"x", "y"}},
	})

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{"arithmetic", "1 + 2 * 3", 7.0},
		{"remainder", "10 % 4", 2.0},
		{"string concatenation", `"a" + 1`, "a1"},
		{"strict equality", "1 === 1", true},
		{"strict inequality across types", `1 === "1"`, false},
		{"not equal", "1 !== 2", true},
		{"comparison", "2 < 3", true},
		{"string comparison", `"b" >= "a"`, true},
		{"conditional", "flag ? 1 : 2", 1.0},
		{"conditional on undefined", "missing ? 1 : 2", 2.0},
		{"template", "`Hello, ${name}!`", "Hello, Ada!"},
		{"template with array", "`${[1, 2, 3]}`", "123"},
		{"array", "[1, name]", []interface{}{1.0, "Ada"}},
		{"array index", "[1, 2]/1", 2.0},
		{"path", "data/items/0", "x"},
		{"lambda call", "((x) => x * 2)(21)", 42.0},
		{"extra parameters are undefined", "((a, b) => b)(1)", nil},
		{"closure over closure", "((x) => (y) => x + y)(1)(2)", 3.0},
		{"recursion", "((n) => n < 2 ? 1 : n * @recurse(n - 1))(5)", 120.0},
		{"object entry", "{a: 1, b: a + 1}/b", 2.0},
		{"object calls sibling lambda", "{f: (x) => x + 1, b: 2 * f/(3)}/b", 8.0},
		{"inherited entry", "{a: 1, inner: {a}}/inner/a", 1.0},
		{"builtin namespace", "js:Math/max(1, 2)", 2.0},
		{"builtin", "Math/max(1, 5, 3)", 5.0},
		{"map", "map([1, 2, 3], (x) => x * 10)", []interface{}{10.0, 20.0, 30.0}},
		{"map with implicit parameter", "map([1, 2], =_ + 1)", []interface{}{2.0, 3.0}},
		{"keys keep source order", "keys({b: 1, a: 2})", []interface{}{"b", "a"}},
		{"undefined name", "nothing", nil},
		{"null", "null", types.NullValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, tt.expr, s)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalSequentialMatchesConcurrent(t *testing.T) {
	exprs := []string{
		"[1 + 1, 2 * 3, `a${1 + 2}`]",
		"{f: (x) => x + 1, b: 2 * f/(3)}/b",
		"map([1, 2, 3], (x) => [x * 2, x + 1])",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			seq, err := eval(t, expr, nil, evaluator.WithConcurrency(false))
			if err != nil {
				t.Fatal(err)
			}
			conc, err := eval(t, expr, nil, evaluator.WithConcurrency(true))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(seq, conc) {
				t.Errorf("sequential %v, concurrent %v", seq, conc)
			}
		})
	}
}

func TestConcurrentEvaluationIsDeterministic(t *testing.T) {
	unit := compile(t, "{f: (x) => x + 1, b: 2 * f/(3)}/b", evaluator.WithConcurrency(true))

	var wg sync.WaitGroup
	results := make([]interface{}, 64)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = unit.Eval(context.Background(), nil)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("evaluation %d: %v", i, errs[i])
		}
		if results[i] != 8.0 {
			t.Fatalf("evaluation %d = %v, want 8", i, results[i])
		}
	}
}

func TestFirstErrorByOperandOrder(t *testing.T) {
	fail := types.Func(func(_ context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
		n := args[0].(float64)
		// The first operand fails last.
		time.Sleep(time.Duration(3-n) * 10 * time.Millisecond)
		return nil, fmt.Errorf("operand %v failed", n)
	})
	s := tree.NewMap(map[string]interface{}{"fail": fail})

	_, err := eval(t, "[fail(1), fail(2)]", s, evaluator.WithConcurrency(true))
	if err == nil || !strings.Contains(err.Error(), "operand 1 failed") {
		t.Fatalf("expected the first operand's error, got %v", err)
	}
}

func TestClosureIdentity(t *testing.T) {
	ctx := context.Background()

	unit := compile(t, "(x) => x")
	first, err := unit.Eval(ctx, tree.NewMap(map[string]interface{}{"a": 1.0}))
	if err != nil {
		t.Fatal(err)
	}
	second, err := unit.Eval(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("evaluating the same lambda twice should yield the same function")
	}
	if call(t, first, "v") != "v" {
		t.Fatal("identity lambda should return its argument")
	}
}

func TestTaggedTemplateStringsAreStable(t *testing.T) {
	tag := types.Func(func(_ context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
		return args[0], nil
	})
	s := tree.NewMap(map[string]interface{}{"tag": tag})

	unit := compile(t, "=tag`Hello, ${_}!`")
	fn, err := unit.Eval(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	bound := evaluator.Bind(fn.(types.Function), s)

	a := call(t, bound, "Ada").([]string)
	b := call(t, bound, "Grace").([]string)
	if &a[0] != &b[0] {
		t.Fatal("tagged template strings should be the same array on every call")
	}
	if !reflect.DeepEqual(a, []string{"Hello, ", "!"}) {
		t.Errorf("strings = %q", a)
	}
}

func TestBoundFunctionKeepsItsScope(t *testing.T) {
	result, err := eval(t, "{base: 10, add: (x) => x + base}/add", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, ok := result.(*evaluator.Bound)
	if !ok {
		t.Fatalf("expected a bound function, got %T", result)
	}
	if got := call(t, b, 5.0); got != 15.0 {
		t.Errorf("add(5) = %v, want 15", got)
	}
	if evaluator.Bind(b, nil) != types.Function(b) {
		t.Error("binding a bound function should keep the original binding")
	}
	if b.Code() == nil || b.Code().Op != types.OpLambda {
		t.Error("bound function should keep its source code")
	}
}

func TestObjectEntries(t *testing.T) {
	var calls int32
	counter := types.Func(func(context.Context, types.Tree, ...interface{}) (interface{}, error) {
		return float64(atomic.AddInt32(&calls, 1)), nil
	})
	s := tree.NewMap(map[string]interface{}{"counter": counter})
	ctx := context.Background()

	v, err := eval(t, "{once: counter(), every = counter()}", s)
	if err != nil {
		t.Fatal(err)
	}
	obj := v.(*evaluator.Object)

	first, _ := obj.Get(ctx, "once")
	second, _ := obj.Get(ctx, "once")
	if first != second {
		t.Errorf("plain entry computed twice: %v then %v", first, second)
	}
	a, _ := obj.Get(ctx, "every")
	b, _ := obj.Get(ctx, "every")
	if a == b {
		t.Errorf("getter entry should be recomputed, got %v twice", a)
	}

	keys, _ := obj.Keys(ctx)
	if !reflect.DeepEqual(keys, []interface{}{"once", "every"}) {
		t.Errorf("keys = %v", keys)
	}
	if obj.Parent() != types.Tree(s) {
		t.Error("object parent should be the scope it was built in")
	}
}

func TestObjectSlashKeys(t *testing.T) {
	v, err := eval(t, "{site/: {index.html: `hi`}}/site/index.html", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != "hi" {
		t.Errorf("got %v", v)
	}
}

func TestExternalReferencesResolveOnce(t *testing.T) {
	src := &countingTree{values: map[string]interface{}{"x": 2.0}}
	unit := compile(t, "x + x + y")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := unit.Eval(ctx, src); err != nil {
			t.Fatal(err)
		}
	}
	if got := src.count("x"); got != 1 {
		t.Errorf("x looked up %d times, want 1", got)
	}
	if got := src.count("y"); got != 1 {
		t.Errorf("undefined y looked up %d times, want 1", got)
	}

	unit.Cache().Reset()
	if _, err := unit.Eval(ctx, src); err != nil {
		t.Fatal(err)
	}
	if got := src.count("x"); got != 2 {
		t.Errorf("after Reset x looked up %d times, want 2", got)
	}
}

func TestReentrantExternalReference(t *testing.T) {
	unit := compile(t, "x")
	src := &reentrantTree{unit: unit, limit: 4}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := unit.Eval(ctx, src)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if got != 1.0 {
		t.Errorf("Eval() = %v, want 1", got)
	}
	if n := src.depth.Load(); n != 4 {
		t.Errorf("scope looked up %d times, want 4", n)
	}
	if !unit.Cache().Cached("x") {
		t.Error("the outermost resolution should be cached")
	}
}

func TestLocalReferencesAreNotCached(t *testing.T) {
	fn, err := eval(t, "(x) => x * 2", nil)
	if err != nil {
		t.Fatal(err)
	}
	if call(t, fn, 2.0) != 4.0 || call(t, fn, 5.0) != 10.0 {
		t.Fatal("parameter lookups must not be cached")
	}
}

func TestEvalErrors(t *testing.T) {
	boom := errors.New("boom")
	s := tree.NewMap(map[string]interface{}{
		"explode": types.Func(func(context.Context, types.Tree, ...interface{}) (interface{}, error) {
			return nil, boom
		}),
	})

	tests := []struct {
		name     string
		expr     string
		code     types.ErrorCode
		fragment string
	}{
		{"undefined head", "missing(1)", types.ErrUndefinedReference, "missing"},
		{"undefined path head", "missing/a", types.ErrUndefinedReference, "missing"},
		{"invalid operand", `1 - "a"`, types.ErrInvalidOperand, `1 - "a"`},
		{"comparison across types", `1 < "a"`, types.ErrInvalidOperand, `1 < "a"`},
		{"not callable", "5(1)", types.ErrNotCallable, "5(1)"},
		{"traversal", "{a: 1}/a/b/c", types.ErrTraversal, "{a: 1}/a/b/c"},
		{"invocation", "explode()", types.ErrInvocation, "explode()"},
		{"error inside lambda", "((x) => x - true)(1)", types.ErrInvalidOperand, "x - true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval(t, tt.expr, s)
			e, ok := types.AsError(err)
			if !ok {
				t.Fatalf("expected *types.Error, got %v", err)
			}
			if e.Code != tt.code {
				t.Fatalf("got code %s, want %s (%v)", e.Code, tt.code, err)
			}
			if e.Location == nil {
				t.Fatal("expected a location")
			}
			if got := e.Location.Fragment(); got != tt.fragment {
				t.Errorf("error located at %q, want %q", got, tt.fragment)
			}
			if e.Context == nil || e.Context.Code == nil {
				t.Error("expected an evaluation context")
			}
		})
	}

	_, err := eval(t, "explode()", s)
	if !errors.Is(err, boom) {
		t.Errorf("invocation error should wrap the cause, got %v", err)
	}
}

func TestUndefinedReferenceContext(t *testing.T) {
	_, err := eval(t, "Mat.max(1)", nil)
	e, ok := types.AsError(err)
	if !ok || e.Code != types.ErrUndefinedReference {
		t.Fatalf("expected an undefined reference, got %v", err)
	}
	if e.Context.Code.Key != "Mat.max" {
		t.Errorf("context code key = %q", e.Context.Code.Key)
	}
	if e.Context.State.Globals == nil {
		t.Error("context should carry the globals")
	}
}

func TestMaxDepth(t *testing.T) {
	_, err := eval(t, "((n) => @recurse(n))(1)", nil, evaluator.WithMaxDepth(50))
	if !types.HasCode(err, types.ErrStackOverflow) {
		t.Fatalf("expected %s, got %v", types.ErrStackOverflow, err)
	}

	_, err = eval(t, "{a: a}/a", nil, evaluator.WithMaxDepth(50))
	if !types.HasCode(err, types.ErrStackOverflow) {
		t.Fatalf("self-referencing entry: expected %s, got %v", types.ErrStackOverflow, err)
	}
}

func TestTimeout(t *testing.T) {
	slow := types.Func(func(ctx context.Context, _ types.Tree, _ ...interface{}) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})
	s := tree.NewMap(map[string]interface{}{"slow": slow})
	_, err := eval(t, "slow()", s, evaluator.WithTimeout(20*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
}

func TestEvalTraced(t *testing.T) {
	ev := evaluator.New()
	unit := compile(t, "2 * (3 + 1)")

	result, tr, err := ev.EvalTraced(context.Background(), unit.Code(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != 8.0 {
		t.Fatalf("result = %v", result)
	}
	if tr == nil {
		t.Fatal("expected a trace")
	}
	if tr.Expression != "2 * (3 + 1)" || tr.Result != 8.0 {
		t.Errorf("root trace %q => %v", tr.Expression, tr.Result)
	}
	if len(tr.Inputs) != 1 {
		t.Fatalf("expected one traced input, got %d", len(tr.Inputs))
	}
	if in := tr.Inputs[0]; in.Expression != "(3 + 1)" || in.Result != 4.0 {
		t.Errorf("input trace %q => %v", in.Expression, in.Result)
	}
}

func TestEvalTracedRecordsCalls(t *testing.T) {
	unit := compile(t, "((x) => x + 1)(2)")
	result, tr, err := unit.EvalTraced(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != 3.0 {
		t.Fatalf("result = %v", result)
	}
	if tr.Call == nil {
		t.Fatal("expected the callee's trace")
	}
	if tr.Call.Expression != "x + 1" || tr.Call.Result != 3.0 {
		t.Errorf("call trace %q => %v", tr.Call.Expression, tr.Call.Result)
	}
}

func TestCall(t *testing.T) {
	ev := evaluator.New()
	ctx := context.Background()
	fn, err := eval(t, "(x) => x + offset", nil)
	if err != nil {
		t.Fatal(err)
	}
	s := tree.NewMap(map[string]interface{}{"offset": 10.0})
	got, err := ev.Call(ctx, fn, s, 1.0)
	if err != nil || got != 11.0 {
		t.Errorf("lambda: got %v, %v", got, err)
	}

	data := map[string]interface{}{"a": []interface{}{"x"}}
	if got, err := ev.Call(ctx, data, nil, "a", "0"); err != nil || got != "x" {
		t.Errorf("tree: got %v, %v", got, err)
	}
	if _, err := ev.Call(ctx, true, nil); !types.HasCode(err, types.ErrNotCallable) {
		t.Errorf("boolean: got %v", err)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"greeting": "hello", "n": 2}`)
		case "/notes/hello.txt":
			fmt.Fprint(w, "hi there")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	base := srv.URL

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{"traverse json", "(" + base + "/data.json)/greeting", "hello"},
		{"unpack json", "(" + base + "/data.json)/", map[string]interface{}{"greeting": "hello", "n": 2.0}},
		{"text in template", "`${" + base + "/notes/hello.txt}!`", "hi there!"},
		{"unpack text", "(" + base + "/notes/hello.txt)/", "hi there"},
		{"not found", base + "/missing.json", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, tt.expr, nil)
			if err != nil {
				t.Fatalf("Eval(%q): %v", tt.expr, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := eval(t, srv.URL+"/secret.json", nil)
	if !types.HasCode(err, types.ErrFetch) {
		t.Fatalf("expected %s, got %v", types.ErrFetch, err)
	}
}

func TestFetchSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.txt":
			fmt.Fprint(w, "12345678")
		default:
			fmt.Fprint(w, "123456789")
		}
	}))
	defer srv.Close()

	got, err := eval(t, "("+srv.URL+"/small.txt)/", nil, evaluator.WithMaxFetchSize(8))
	if err != nil {
		t.Fatalf("body at the limit: %v", err)
	}
	if got != "12345678" {
		t.Errorf("got %q", got)
	}

	_, err = eval(t, "("+srv.URL+"/large.txt)/", nil, evaluator.WithMaxFetchSize(8))
	if !types.HasCode(err, types.ErrFetch) {
		t.Fatalf("expected %s for a body over the limit, got %v", types.ErrFetch, err)
	}
}

func TestEvaluatorClose(t *testing.T) {
	ev := evaluator.New()
	if err := ev.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func BenchmarkEval(b *testing.B) {
	benchmarks := []struct {
		name string
		expr string
	}{
		{"arithmetic", "1 + 2 * 3 - 4 / 2"},
		{"template", "`Hello, ${name}! You are ${age + 1}.`"},
		{"lambda", "map([1, 2, 3, 4], (x) => x * x)"},
		{"object", "{a: 1, b: a + 1, c: b * 2}/c"},
	}
	s := tree.NewMap(map[string]interface{}{"name": "Ada", "age": 36.0})
	ctx := context.Background()

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			unit := compile(b, bm.expr)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := unit.Eval(ctx, s); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

type countingTree struct {
	mu     sync.Mutex
	values map[string]interface{}
	counts map[string]int
}

func (c *countingTree) Get(_ context.Context, key interface{}) (interface{}, error) {
	k := tree.KeyString(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[k]++
	return c.values[k], nil
}

func (c *countingTree) Keys(context.Context) ([]interface{}, error) {
	keys := make([]interface{}, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (c *countingTree) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// reentrantTree answers lookups by evaluating unit against itself until
// limit lookups have been made.
type reentrantTree struct {
	unit  *compiler.Unit
	limit int32
	depth atomic.Int32
}

func (r *reentrantTree) Get(ctx context.Context, _ interface{}) (interface{}, error) {
	if r.depth.Add(1) >= r.limit {
		return 1.0, nil
	}
	return r.unit.Eval(ctx, r)
}

func (r *reentrantTree) Keys(context.Context) ([]interface{}, error) {
	return []interface{}{"x"}, nil
}
