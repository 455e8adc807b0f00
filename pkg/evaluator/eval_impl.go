package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sandrolain/gorigami/pkg/scope"
	"github.com/sandrolain/gorigami/pkg/trace"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// recurseDepthKey is used to store the lambda call depth in context.Context.
type recurseDepthKey struct{}

// getRecurseDepth returns the current lambda call depth from a context.Context.
func getRecurseDepth(ctx context.Context) int {
	if d, ok := ctx.Value(recurseDepthKey{}).(int); ok {
		return d
	}
	return 0
}

// withRecurseDepth returns a context.Context carrying depth.
func withRecurseDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, recurseDepthKey{}, depth)
}

// evaluate evaluates a node in the given scope.
func (e *Evaluator) evaluate(ctx context.Context, node *types.Node, s types.Tree) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if node == nil {
		return nil, nil
	}

	if e.opts.Debug {
		e.logger.Debug("evaluating node",
			"op", node.Op,
			"key", node.Key,
			"depth", getRecurseDepth(ctx))
	}

	switch node.Op {
	case types.OpLiteral:
		return node.Value, nil
	case types.OpScope:
		return s, nil
	case types.OpUndetermined, types.OpReference:
		return e.evalReference(ctx, node, s)
	case types.OpInherited:
		return e.evalInherited(ctx, node, s)
	case types.OpExternal:
		return e.evalExternal(ctx, node, s)
	case types.OpGlobal:
		return e.evalGlobal(ctx, node, s)
	case types.OpLambda:
		return e.lambda(node), nil
	case types.OpObject, types.OpTree:
		return newObject(e, node, s), nil
	case types.OpConditional:
		return e.evalConditional(ctx, node, s)
	default:
		return e.evalInstruction(ctx, node, s)
	}
}

// evalInstruction evaluates the operands of node and then runs it.
func (e *Evaluator) evalInstruction(ctx context.Context, node *types.Node, s types.Tree) (interface{}, error) {
	args, inputs, err := e.evalOperands(ctx, node.Operands, s)
	if err != nil {
		return nil, err
	}

	var result interface{}
	var call *trace.Trace
	switch node.Op {
	case types.OpCall, types.OpTraverse:
		if len(args) == 0 {
			return nil, e.fail(types.ErrInvalidProgram, "call without a head", node, s)
		}
		result, call, err = e.invoke(ctx, node, s, args[0], args[1:])
	case types.OpUnpack:
		result, err = e.unpack(ctx, node, s, args[0])
	case types.OpArray:
		result = args
	case types.OpConcat:
		result, err = concat(ctx, args)
	case types.OpHTTP:
		result, err = e.fetch(ctx, "http", args)
	case types.OpHTTPS:
		result, err = e.fetch(ctx, "https", args)
	default:
		if !node.Op.IsOperator() || len(args) != 2 {
			return nil, e.fail(types.ErrInvalidProgram, fmt.Sprintf("unsupported operation %s", node.Op), node, s)
		}
		result, err = e.evalOperator(node.Op, args[0], args[1])
	}
	if err != nil {
		return nil, e.wrapError(err, node, s)
	}

	if trace.Active(ctx) {
		trace.Record(ctx, &trace.Trace{
			Expression: node.Fragment(),
			Inputs:     inputs,
			Result:     result,
			Call:       call,
		})
	}
	return result, nil
}

// evalOperands evaluates operands in order, or concurrently when enabled.
// It returns the values, the traces of the operands that recorded one, and
// the error of the first failing operand.
func (e *Evaluator) evalOperands(ctx context.Context, operands []*types.Node, s types.Tree) ([]interface{}, []*trace.Trace, error) {
	n := len(operands)
	values := make([]interface{}, n)
	if n == 0 {
		return values, nil, nil
	}
	tracing := trace.Active(ctx)
	var traces []*trace.Trace
	if tracing {
		traces = make([]*trace.Trace, n)
	}
	errs := make([]error, n)

	run := func(i int) {
		if !tracing {
			values[i], errs[i] = e.evaluate(ctx, operands[i], s)
			return
		}
		octx, frame := trace.Start(ctx)
		values[i], errs[i] = e.evaluate(octx, operands[i], s)
		traces[i] = frame.Single()
	}

	if e.opts.Concurrency && countCompound(operands) > 1 {
		var wg sync.WaitGroup
		for i, op := range operands {
			if !isCompound(op) {
				run(i)
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range operands {
			run(i)
			if errs[i] != nil {
				break
			}
		}
	}

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	var inputs []*trace.Trace
	for _, t := range traces {
		if t != nil {
			inputs = append(inputs, t)
		}
	}
	return values, inputs, nil
}

// isCompound reports whether evaluating node can do real work. Literals,
// references and constructors are not worth a goroutine.
func isCompound(node *types.Node) bool {
	if node == nil {
		return false
	}
	switch node.Op {
	case types.OpLiteral, types.OpScope, types.OpLambda, types.OpObject, types.OpTree:
		return false
	}
	return !node.Op.IsReference()
}

func countCompound(nodes []*types.Node) int {
	n := 0
	for _, node := range nodes {
		if isCompound(node) {
			n++
		}
	}
	return n
}

// evalConditional evaluates the condition and then only the branch taken.
func (e *Evaluator) evalConditional(ctx context.Context, node *types.Node, s types.Tree) (interface{}, error) {
	if len(node.Operands) != 3 {
		return nil, e.fail(types.ErrInvalidProgram, "conditional needs three operands", node, s)
	}

	var inputs []*trace.Trace
	step := func(n *types.Node) (interface{}, error) {
		sctx, frame := trace.Start(ctx)
		v, err := e.evaluate(sctx, n, s)
		if t := frame.Single(); t != nil {
			inputs = append(inputs, t)
		}
		return v, err
	}

	cond, err := step(node.Operands[0])
	if err != nil {
		return nil, err
	}
	branch := node.Operands[2]
	if truthy(cond) {
		branch = node.Operands[1]
	}
	result, err := step(branch)
	if err != nil {
		return nil, err
	}

	if trace.Active(ctx) {
		trace.Record(ctx, &trace.Trace{
			Expression: node.Fragment(),
			Inputs:     inputs,
			Result:     result,
		})
	}
	return result, nil
}

// invoke calls fn with args, or traverses it by args when it is a tree.
func (e *Evaluator) invoke(ctx context.Context, node *types.Node, s types.Tree, fn interface{}, args []interface{}) (interface{}, *trace.Trace, error) {
	head := node.Operands[0]
	if fn == nil {
		return nil, nil, e.undefined(head, s)
	}

	if u, ok := fn.(types.Unpackable); ok {
		unpacked, err := u.Unpack(ctx)
		if err != nil {
			return nil, nil, err
		}
		if unpacked == nil {
			return nil, nil, e.undefined(head, s)
		}
		fn = unpacked
	}

	cctx, frame := trace.Start(ctx)
	var result interface{}
	var err error
	switch f := fn.(type) {
	case types.Function:
		if node.Op == types.OpTraverse {
			result, err = tree.TraverseOrThrow(cctx, s, f, args...)
		} else {
			result, err = f.Call(cctx, s, args...)
		}
	default:
		if !tree.IsTreelike(fn) {
			return nil, nil, types.NewError(types.ErrNotCallable,
				fmt.Sprintf("%s is not a function or a tree", head.Fragment()), -1)
		}
		result, err = tree.TraverseOrThrow(cctx, s, fn, args...)
	}
	if err != nil {
		return nil, nil, err
	}
	return result, frame.Single(), nil
}

// unpack materializes an unpackable value. Other values are returned as-is.
func (e *Evaluator) unpack(ctx context.Context, node *types.Node, s types.Tree, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, e.undefined(node.Operands[0], s)
	}
	u, ok := v.(types.Unpackable)
	if !ok {
		return v, nil
	}
	result, err := u.Unpack(ctx)
	if err != nil {
		if _, ok := types.AsError(err); ok || ctx.Err() != nil {
			return nil, err
		}
		return nil, types.NewError(types.ErrUnpack,
			fmt.Sprintf("cannot unpack %s: %v", node.Operands[0].Fragment(), err), -1).WithCause(err)
	}
	return result, nil
}

// undefined returns the error reported when a value in head position is
// undefined.
func (e *Evaluator) undefined(head *types.Node, s types.Tree) error {
	msg := fmt.Sprintf("%s is not defined", head.Fragment())
	return types.NewError(types.ErrUndefinedReference, msg, -1).
		WithLocation(head.Location).
		WithContext(e.errorContext(head, s))
}

// fail builds an error located at node.
func (e *Evaluator) fail(code types.ErrorCode, msg string, node *types.Node, s types.Tree) error {
	return types.NewError(code, msg, -1).
		WithLocation(node.Location).
		WithContext(e.errorContext(node, s))
}

// wrapError attaches the node's location and the evaluation state to err.
// Errors that are not *types.Error are wrapped as invocation errors.
// Cancellation is passed through untouched.
func (e *Evaluator) wrapError(err error, node *types.Node, s types.Tree) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var te *types.Error
	if !errors.As(err, &te) {
		var traversal *tree.TraversalError
		if errors.As(err, &traversal) {
			te = types.NewError(types.ErrTraversal, traversal.Error(), -1).WithCause(err)
		} else {
			te = types.NewError(types.ErrInvocation, err.Error(), -1).WithCause(err)
		}
		err = te
	}
	te.WithLocation(node.Location).WithContext(e.errorContext(node, s))
	return err
}

// errorContext captures the scope state at a failure.
func (e *Evaluator) errorContext(node *types.Node, s types.Tree) *types.Context {
	state := types.State{Globals: e.globals(node)}
	switch sc := s.(type) {
	case *scope.Scope:
		if sources := sc.Sources(); len(sources) > 0 {
			state.Object = sources[0]
		}
		state.Parent = sc.Parent()
	case types.Parented:
		state.Object = s
		state.Parent = sc.Parent()
	default:
		state.Object = s
	}
	return &types.Context{Code: node, State: state}
}

// globals returns the globals of the unit node was compiled in, or the
// evaluator's own.
func (e *Evaluator) globals(node *types.Node) types.Tree {
	if node != nil && node.Cache != nil && node.Cache.Globals() != nil {
		return node.Cache.Globals()
	}
	return e.opts.Globals
}
