package trace_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/sandrolain/gorigami/pkg/trace"
)

func TestRunWithoutTracing(t *testing.T) {
	result, tr, err := trace.Run(context.Background(), false, func(ctx context.Context) (interface{}, error) {
		if trace.Active(ctx) {
			t.Error("context should not be tracing")
		}
		trace.Record(ctx, &trace.Trace{Expression: "ignored"})
		return 1.0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != 1.0 {
		t.Errorf("got %v, want 1", result)
	}
	if tr != nil {
		t.Errorf("expected no trace, got %v", tr)
	}
}

func TestRunCollectsSingleTrace(t *testing.T) {
	_, tr, err := trace.Run(context.Background(), true, func(ctx context.Context) (interface{}, error) {
		trace.Record(ctx, &trace.Trace{Expression: "a + b", Result: 3.0})
		return 3.0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil || tr.Expression != "a + b" || tr.Result != 3.0 {
		t.Fatalf("unexpected trace %+v", tr)
	}
}

func TestRunInheritsTracing(t *testing.T) {
	ctx, outer := trace.Enable(context.Background())
	_, tr, _ := trace.Run(ctx, false, func(ctx context.Context) (interface{}, error) {
		trace.Record(ctx, &trace.Trace{Expression: "inner"})
		return nil, nil
	})
	if tr == nil || tr.Expression != "inner" {
		t.Fatalf("expected inherited trace, got %+v", tr)
	}
	if len(outer.Traces()) != 0 {
		t.Error("nested run should record into its own frame")
	}
}

func TestStartIsNoopWhenInactive(t *testing.T) {
	ctx := context.Background()
	got, frame := trace.Start(ctx)
	if got != ctx || frame != nil {
		t.Error("Start should not begin a frame on an inactive context")
	}
}

func TestConcurrentEvaluationsDoNotLeak(t *testing.T) {
	var wg sync.WaitGroup
	traces := make([]*trace.Trace, 8)
	for i := range traces {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, tr, _ := trace.Run(context.Background(), i%2 == 0, func(ctx context.Context) (interface{}, error) {
				trace.Record(ctx, &trace.Trace{Expression: "x", Result: i})
				return i, nil
			})
			traces[i] = tr
		}(i)
	}
	wg.Wait()

	for i, tr := range traces {
		if i%2 == 1 {
			if tr != nil {
				t.Errorf("run %d was not traced but got %v", i, tr)
			}
			continue
		}
		if tr == nil || tr.Result != i {
			t.Errorf("run %d: unexpected trace %+v", i, tr)
		}
	}
}

func TestTraceString(t *testing.T) {
	tr := &trace.Trace{
		Expression: "2 * (3 + 1)",
		Result:     8.0,
		Inputs:     []*trace.Trace{{Expression: "3 + 1", Result: 4.0}},
	}
	s := tr.String()
	if !strings.Contains(s, "2 * (3 + 1) => 8") || !strings.Contains(s, "  3 + 1 => 4") {
		t.Errorf("unexpected rendering:\n%s", s)
	}
}
