// Package gorigami evaluates Origami expressions: a small language for
// describing lazily computed trees of data (objects, files, URLs, computed
// values) as composable expressions.
//
// # Quick Start
//
//	// Simple evaluation
//	result, err := gorigami.Eval("Math/max(1, 2)", nil)
//
//	// Compile once, evaluate many times
//	unit, err := gorigami.Compile("(name) => `Hello, ${name}!`")
//	fn, _ := unit.Eval(ctx, scope)
//
//	// With options
//	result, err := gorigami.Eval("site/title", site,
//	    gorigami.WithEvalOptions(evaluator.WithTimeout(5*time.Second)),
//	)
//
// Compilation resolves every name once: names bound by enclosing lambdas
// and objects are looked up in scope on each evaluation, all other names are
// resolved against the caller's scope and the globals on first use and then
// reused for the life of the compiled unit.
//
// Errors carry the source location of the failing expression and the scope
// it failed in. Use [FormatError] to render them with "did you mean"
// suggestions.
//
// # More Information
//
// For detailed documentation, see:
//   - Parser: github.com/sandrolain/gorigami/pkg/parser
//   - Compiler: github.com/sandrolain/gorigami/pkg/compiler
//   - Evaluator: github.com/sandrolain/gorigami/pkg/evaluator
//   - Diagnostics: github.com/sandrolain/gorigami/pkg/diagnostics
package gorigami

import (
	"context"
	"fmt"
	"time"

	"github.com/sandrolain/gorigami/pkg/builtins"
	"github.com/sandrolain/gorigami/pkg/cache"
	"github.com/sandrolain/gorigami/pkg/compiler"
	"github.com/sandrolain/gorigami/pkg/diagnostics"
	"github.com/sandrolain/gorigami/pkg/evaluator"
	"github.com/sandrolain/gorigami/pkg/parser"
	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/trace"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// DefaultTimeout bounds evaluations started by Eval.
const DefaultTimeout = 30 * time.Second

// Version returns the current version of gorigami.
func Version() string {
	return "v0.1.0-dev"
}

// Option configures Compile and Eval.
type Option func(*config)

type config struct {
	globals   types.Tree
	builtins  bool
	evalOpts  []evaluator.EvalOption
	compOpts  []compiler.Option
	evaluator *evaluator.Evaluator
}

// WithGlobals adds globals in front of the builtins.
func WithGlobals(globals types.Tree) Option {
	return func(c *config) {
		c.globals = globals
	}
}

// WithoutBuiltins leaves the builtin functions out of the globals.
func WithoutBuiltins() Option {
	return func(c *config) {
		c.builtins = false
	}
}

// WithEvalOptions configures the evaluator compiled units run on.
func WithEvalOptions(opts ...evaluator.EvalOption) Option {
	return func(c *config) {
		c.evalOpts = append(c.evalOpts, opts...)
	}
}

// WithEvaluator runs compiled units on ev. Its own globals are ignored in
// favor of the ones configured here.
func WithEvaluator(ev *evaluator.Evaluator) Option {
	return func(c *config) {
		c.evaluator = ev
	}
}

// WithSourceName names the source text in error locations.
func WithSourceName(name string) Option {
	return func(c *config) {
		c.compOpts = append(c.compOpts, compiler.WithSourceName(name))
	}
}

// WithCache shares compiled units between Compile calls.
func WithCache(units *cache.Cache[*compiler.Unit]) Option {
	return func(c *config) {
		c.compOpts = append(c.compOpts, compiler.WithCache(units))
	}
}

// WithTemplate parses the text as a template document, which compiles to a
// lambda returning text.
func WithTemplate() Option {
	return func(c *config) {
		c.compOpts = append(c.compOpts, compiler.WithStartRule(parser.RuleTemplateDocument))
	}
}

func (c *config) compilerOptions() []compiler.Option {
	var globals types.Tree
	switch {
	case c.builtins && c.globals != nil:
		globals = scope.New(c.globals, builtins.Globals())
	case c.builtins:
		globals = builtins.Globals()
	default:
		globals = c.globals
	}

	ev := c.evaluator
	if ev == nil {
		ev = evaluator.New(append([]evaluator.EvalOption{evaluator.WithGlobals(globals)}, c.evalOpts...)...)
	}
	opts := []compiler.Option{compiler.WithGlobals(globals), compiler.WithEvaluator(ev)}
	return append(opts, c.compOpts...)
}

func newConfig(opts []Option) *config {
	c := &config{builtins: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles an expression for repeated evaluation.
//
// The compiled unit can be evaluated many times against different scopes and
// is safe for concurrent use. External names it resolves are reused across
// evaluations; call unit.Cache().Reset() to resolve them again.
//
// Example:
//
//	unit, err := gorigami.Compile("posts/(slug)/title")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, _ := unit.Eval(ctx, site)
func Compile(text string, opts ...Option) (*compiler.Unit, error) {
	return compiler.Compile(text, newConfig(opts).compilerOptions()...)
}

// MustCompile is like Compile but panics if the expression cannot be compiled.
// It simplifies safe initialization of global variables.
func MustCompile(text string, opts ...Option) *compiler.Unit {
	unit, err := Compile(text, opts...)
	if err != nil {
		panic(fmt.Sprintf("gorigami: Compile(%q): %v", text, err))
	}
	return unit
}

// Eval is a convenience function that compiles and evaluates an expression
// in a single call, with DefaultTimeout.
//
// data is the scope: a types.Tree, a map[string]interface{}, or nil.
//
// Example:
//
//	result, err := gorigami.Eval("a + b", map[string]interface{}{"a": 1.0, "b": 2.0})
func Eval(text string, data interface{}, opts ...Option) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return EvalWithContext(ctx, text, data, opts...)
}

// EvalWithContext evaluates an expression with a custom context.
func EvalWithContext(ctx context.Context, text string, data interface{}, opts ...Option) (interface{}, error) {
	s, err := asScope(data)
	if err != nil {
		return nil, err
	}
	unit, err := Compile(text, opts...)
	if err != nil {
		return nil, err
	}
	return unit.Eval(ctx, s)
}

// EvalTraced evaluates an expression and returns the trace of how its value
// was computed.
func EvalTraced(ctx context.Context, text string, data interface{}, opts ...Option) (interface{}, *trace.Trace, error) {
	s, err := asScope(data)
	if err != nil {
		return nil, nil, err
	}
	unit, err := Compile(text, opts...)
	if err != nil {
		return nil, nil, err
	}
	return unit.EvalTraced(ctx, s)
}

// FormatError renders err with its source snippet and an explanation.
func FormatError(err error, useColor bool) string {
	return diagnostics.Format(err, useColor)
}

func asScope(data interface{}) (types.Tree, error) {
	if data == nil {
		return nil, nil
	}
	t, ok := tree.From(data)
	if !ok {
		return nil, fmt.Errorf("gorigami: cannot use %T as a scope", data)
	}
	return t, nil
}
