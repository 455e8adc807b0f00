// Package trace records how a value was computed.
//
// Tracing is scoped to one call tree through context.Context: an evaluation
// started under a tracing context records a Trace for every instruction it
// evaluates, and every nested evaluation inherits that state automatically.
// Evaluations started from unrelated contexts never see each other's traces,
// even when they run concurrently.
//
// # Example
//
//	result, tr, err := trace.Run(ctx, true, func(ctx context.Context) (interface{}, error) {
//	    return ev.Eval(ctx, node, scope)
//	})
package trace

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Trace records one evaluated instruction.
type Trace struct {
	Expression string      // source text of the instruction
	Inputs     []*Trace    // traces of the operands that were themselves traced
	Result     interface{} // value produced
	Call       *Trace      // trace of the function the instruction invoked
}

// String renders the trace as an indented outline.
func (t *Trace) String() string {
	var sb strings.Builder
	t.write(&sb, 0, "")
	return sb.String()
}

func (t *Trace) write(sb *strings.Builder, depth int, label string) {
	if t == nil {
		return
	}
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(label)
	fmt.Fprintf(sb, "%s => %v\n", t.Expression, t.Result)
	for _, in := range t.Inputs {
		in.write(sb, depth+1, "")
	}
	t.Call.write(sb, depth+1, "call: ")
}

// Frame collects the traces recorded directly under it.
//
// Safe for concurrent use.
type Frame struct {
	mu     sync.Mutex
	traces []*Trace
}

func (f *Frame) add(t *Trace) {
	f.mu.Lock()
	f.traces = append(f.traces, t)
	f.mu.Unlock()
}

// Traces returns the traces recorded so far.
func (f *Frame) Traces() []*Trace {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Trace(nil), f.traces...)
}

// Single returns the only trace in the frame. Several traces are gathered
// under an anonymous parent; an empty frame yields nil.
func (f *Frame) Single() *Trace {
	traces := f.Traces()
	switch len(traces) {
	case 0:
		return nil
	case 1:
		return traces[0]
	}
	return &Trace{Inputs: traces, Result: traces[len(traces)-1].Result}
}

type frameKey struct{}

// Active reports whether ctx is tracing.
func Active(ctx context.Context) bool {
	return frameFrom(ctx) != nil
}

func frameFrom(ctx context.Context) *Frame {
	f, _ := ctx.Value(frameKey{}).(*Frame)
	return f
}

// Enable returns a tracing context. Traces recorded directly under it are
// collected in the returned frame. If ctx is already tracing, a nested frame
// is started.
func Enable(ctx context.Context) (context.Context, *Frame) {
	f := &Frame{}
	return context.WithValue(ctx, frameKey{}, f), f
}

// Start begins a nested frame if ctx is tracing. It returns ctx unchanged
// and a nil frame otherwise.
func Start(ctx context.Context) (context.Context, *Frame) {
	if !Active(ctx) {
		return ctx, nil
	}
	return Enable(ctx)
}

// Record appends t to the frame of ctx. It does nothing when ctx is not
// tracing.
func Record(ctx context.Context, t *Trace) {
	if f := frameFrom(ctx); f != nil {
		f.add(t)
	}
}

// Run calls fn and returns its result together with the trace it produced.
// The trace is nil unless enable is set or ctx is already tracing.
func Run(ctx context.Context, enable bool, fn func(context.Context) (interface{}, error)) (interface{}, *Trace, error) {
	if !enable && !Active(ctx) {
		result, err := fn(ctx)
		return result, nil, err
	}
	tctx, frame := Enable(ctx)
	result, err := fn(tctx)
	return result, frame.Single(), err
}
