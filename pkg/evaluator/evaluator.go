// Package evaluator runs compiled code.
//
// The evaluator walks a code tree produced by the compiler. Instruction
// operands are evaluated before their instruction runs, concurrently when
// the Concurrency option is on; lambdas, object constructors and the
// branches of a conditional are evaluated only when needed. The value in
// head position of a call is invoked when it is a function and traversed
// when it is a tree.
//
// # Example
//
//	ev := evaluator.New()
//	result, err := ev.Eval(ctx, unit.Code(), scope)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// Sibling operands run on their own goroutines. Results keep operand order,
// and when several operands fail the error of the first one is returned.
package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sandrolain/gorigami/pkg/functions"
	"github.com/sandrolain/gorigami/pkg/handlers"
	"github.com/sandrolain/gorigami/pkg/trace"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Evaluator evaluates code nodes against a scope.
//
// An Evaluator holds no per-evaluation state and is safe for concurrent use.
type Evaluator struct {
	opts   EvalOptions
	logger *slog.Logger
	client *retryablehttp.Client
}

// EvalOptions configures evaluator behavior.
type EvalOptions struct {
	// Concurrency enables concurrent evaluation of sibling operands.
	Concurrency bool
	// MaxDepth limits nested lambda calls. Zero disables the limit.
	MaxDepth int
	// Timeout sets an evaluation timeout. Zero means no timeout.
	Timeout time.Duration
	// Debug enables debug logging.
	Debug bool
	// Logger for structured logging.
	Logger *slog.Logger
	// Globals are consulted for builtin namespaces and unresolved names by
	// code that was not compiled with globals of its own.
	Globals types.Tree
	// HTTPClient fetches http and https resources.
	HTTPClient *retryablehttp.Client
	// Handlers unpack fetched resources by file extension.
	Handlers *handlers.Registry
	// MaxFetchSize caps the body of a fetched resource in bytes. Zero means
	// the default of 32 MiB.
	MaxFetchSize int64
}

// defaultConcurrency controls the default value of EvalOptions.Concurrency
// for newly created Evaluators. It is true on all platforms except
// WebAssembly targets, where init() in evaluator_wasm.go turns it off.
var defaultConcurrency = true

// New creates a new Evaluator with default options.
func New(opts ...EvalOption) *Evaluator {
	options := EvalOptions{
		Concurrency: defaultConcurrency,
		MaxDepth:    10000,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Handlers == nil {
		options.Handlers = handlers.Default()
	}
	if options.MaxFetchSize <= 0 {
		options.MaxFetchSize = defaultMaxFetchSize
	}

	client := options.HTTPClient
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 2
		client.Logger = leveledLogger{options.Logger}
	}

	return &Evaluator{
		opts:   options,
		logger: options.Logger,
		client: client,
	}
}

// Close releases the resources held by values unpacked through the
// evaluator's handlers, such as fetched WebAssembly modules.
func (e *Evaluator) Close(ctx context.Context) error {
	return e.opts.Handlers.Close(ctx)
}

// Options returns the options the evaluator was created with.
func (e *Evaluator) Options() EvalOptions {
	return e.opts
}

// Eval evaluates node against scope.
func (e *Evaluator) Eval(ctx context.Context, node *types.Node, scope types.Tree) (interface{}, error) {
	if node == nil {
		return nil, types.NewError(types.ErrInvalidProgram, "no code to evaluate", -1)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	return e.evaluate(ctx, node, scope)
}

// EvalTraced evaluates node and returns the trace of the evaluation along
// with its result.
func (e *Evaluator) EvalTraced(ctx context.Context, node *types.Node, scope types.Tree) (interface{}, *trace.Trace, error) {
	return trace.Run(ctx, true, func(ctx context.Context) (interface{}, error) {
		return e.Eval(ctx, node, scope)
	})
}

// Call invokes fn with args in scope s under the evaluator's timeout. A
// tree in place of fn is traversed by args.
func (e *Evaluator) Call(ctx context.Context, fn interface{}, s types.Tree, args ...interface{}) (interface{}, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	return functions.Invoke(ctx, s, fn, args...)
}

// EvalOption configures evaluation behavior.
type EvalOption func(*EvalOptions)

// WithConcurrency enables or disables concurrent evaluation.
func WithConcurrency(enabled bool) EvalOption {
	return func(opts *EvalOptions) {
		opts.Concurrency = enabled
	}
}

// WithTimeout sets the evaluation timeout.
func WithTimeout(timeout time.Duration) EvalOption {
	return func(opts *EvalOptions) {
		opts.Timeout = timeout
	}
}

// WithDebug enables or disables debug logging.
func WithDebug(enabled bool) EvalOption {
	return func(opts *EvalOptions) {
		opts.Debug = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EvalOption {
	return func(opts *EvalOptions) {
		opts.Logger = logger
	}
}

// WithMaxDepth sets the maximum lambda call depth.
func WithMaxDepth(depth int) EvalOption {
	return func(opts *EvalOptions) {
		opts.MaxDepth = depth
	}
}

// WithGlobals sets the globals used by code compiled without any.
func WithGlobals(globals types.Tree) EvalOption {
	return func(opts *EvalOptions) {
		opts.Globals = globals
	}
}

// WithHTTPClient sets the client used to fetch http and https resources.
func WithHTTPClient(client *retryablehttp.Client) EvalOption {
	return func(opts *EvalOptions) {
		opts.HTTPClient = client
	}
}

// WithMaxFetchSize caps the body of fetched resources.
func WithMaxFetchSize(n int64) EvalOption {
	return func(opts *EvalOptions) {
		opts.MaxFetchSize = n
	}
}

// WithHandlers sets the registry used to unpack fetched resources.
func WithHandlers(registry *handlers.Registry) EvalOption {
	return func(opts *EvalOptions) {
		opts.Handlers = registry
	}
}

// leveledLogger routes the HTTP client's retry logging to slog.
type leveledLogger struct {
	logger *slog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}
