// Package compiler turns source text into compiled units.
//
// Compilation parses the text and runs the scope-resolution pass over it:
// names bound by enclosing lambdas and objects stay plain scope lookups,
// every other name becomes an external reference resolved at most once per
// unit. The unit owns the side table (types.Cache) those references and the
// unit's closures share.
//
// # Example
//
//	unit, err := compiler.Compile("(x) => x * factor", compiler.WithGlobals(globals))
//	if err != nil {
//	    return err
//	}
//	fn, err := unit.Eval(ctx, scope)
package compiler

import (
	"context"
	"sync"

	"github.com/sandrolain/gorigami/pkg/cache"
	"github.com/sandrolain/gorigami/pkg/evaluator"
	"github.com/sandrolain/gorigami/pkg/parser"
	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/trace"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Evaluator evaluates code against a scope.
type Evaluator interface {
	Eval(ctx context.Context, node *types.Node, scope types.Tree) (interface{}, error)
}

var defaultEvaluator = sync.OnceValue(func() Evaluator {
	return evaluator.New()
})

// Option configures compilation.
type Option func(*options)

type options struct {
	globals    types.Tree
	evaluator  Evaluator
	cache      *cache.Cache[*Unit]
	sourceName string
	startRule  parser.StartRule
}

// WithGlobals sets the builtins consulted when a caller's scope does not
// define a name.
func WithGlobals(globals types.Tree) Option {
	return func(o *options) {
		o.globals = globals
	}
}

// WithEvaluator sets the evaluator the unit runs on.
func WithEvaluator(ev Evaluator) Option {
	return func(o *options) {
		o.evaluator = ev
	}
}

// WithCache shares compiled units between Compile calls. Units are keyed by
// start rule, source name and text; a unit found in the cache keeps the
// globals and evaluator it was first compiled with.
func WithCache(c *cache.Cache[*Unit]) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithSourceName names the source text in locations and errors.
func WithSourceName(name string) Option {
	return func(o *options) {
		o.sourceName = name
	}
}

// WithStartRule selects the grammar rule to parse with.
func WithStartRule(rule parser.StartRule) Option {
	return func(o *options) {
		o.startRule = rule
	}
}

func newOptions(opts []Option) options {
	o := options{startRule: parser.RuleExpression}
	for _, opt := range opts {
		opt(&o)
	}
	if o.evaluator == nil {
		o.evaluator = defaultEvaluator()
	}
	return o
}

// Compile parses text and resolves its references.
func Compile(text string, opts ...Option) (*Unit, error) {
	o := newOptions(opts)
	compile := func() (*Unit, error) {
		src := types.NewSource(o.sourceName, text)
		code, err := parser.ParseSource(src,
			parser.WithSourceName(o.sourceName),
			parser.WithStartRule(o.startRule),
		)
		if err != nil {
			return nil, err
		}
		return newUnit(code, src, o), nil
	}

	if o.cache == nil {
		return compile()
	}
	key := string(o.startRule) + "\x00" + o.sourceName + "\x00" + text
	return o.cache.GetOrCompile(key, compile)
}

// CompileNode resolves already parsed code.
func CompileNode(code *types.Node, opts ...Option) *Unit {
	o := newOptions(opts)
	var src *types.Source
	if code != nil && code.Location != nil {
		src = code.Location.Source
	}
	return newUnit(code, src, o)
}

func newUnit(code *types.Node, src *types.Source, o options) *Unit {
	var globals types.Tree
	if o.globals != nil {
		globals = scope.NewCached(o.globals, nil)
	}
	c := types.NewCache(globals)
	return &Unit{
		code:      Resolve(code, c, NewLocals()),
		source:    src,
		cache:     c,
		evaluator: o.evaluator,
	}
}

// Unit is a compiled piece of code.
//
// A Unit is itself a types.Function: calling it evaluates its code against
// the caller's scope and ignores the arguments.
type Unit struct {
	code      *types.Node
	source    *types.Source
	cache     *types.Cache
	evaluator Evaluator
}

// Eval evaluates the unit's code against s.
func (u *Unit) Eval(ctx context.Context, s types.Tree) (interface{}, error) {
	return u.evaluator.Eval(ctx, u.code, s)
}

// EvalTraced evaluates the unit's code and returns the trace of the
// evaluation.
func (u *Unit) EvalTraced(ctx context.Context, s types.Tree) (interface{}, *trace.Trace, error) {
	return trace.Run(ctx, true, func(ctx context.Context) (interface{}, error) {
		return u.Eval(ctx, s)
	})
}

// Call implements types.Function.
func (u *Unit) Call(ctx context.Context, s types.Tree, _ ...interface{}) (interface{}, error) {
	return u.Eval(ctx, s)
}

// Code returns the resolved code.
func (u *Unit) Code() *types.Node {
	return u.code
}

// Cache returns the side table shared by the unit's nodes.
func (u *Unit) Cache() *types.Cache {
	return u.cache
}

// Source returns the source the unit was compiled from, if any.
func (u *Unit) Source() *types.Source {
	return u.source
}

// String returns the source text of the unit's code.
func (u *Unit) String() string {
	if u.code == nil {
		return ""
	}
	if u.code.Location != nil {
		return u.code.Location.Fragment()
	}
	return parser.Format(u.code)
}
