//go:build js && wasm

// Command gorigami-wasm-js is the WebAssembly entrypoint for browser and Node.js.
//
// It exposes a global `gorigami` object with the following API:
//
//	gorigami.version()                      → string
//	gorigami.eval(expression, scopeJSON)    → resultJSON  (throws on error)
//	gorigami.compile(expression)            → { eval(scopeJSON) → resultJSON }  (throws on error)
//
// Build:
//
//	GOOS=js GOARCH=wasm go build -o gorigami.wasm ./cmd/wasm/js/
//
// Usage in Node.js:
//
//	const result = gorigami.eval('`Hi ${name}`', JSON.stringify({name: 'Alice'}))
//	console.log(JSON.parse(result)) // 'Hi Alice'
package main

import (
	"context"
	"fmt"
	"syscall/js"

	"github.com/goccy/go-json"

	"github.com/sandrolain/gorigami"
	"github.com/sandrolain/gorigami/pkg/evaluator"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// jsThrow panics with a JS Error so the caller receives a thrown exception.
func jsThrow(msg string) {
	js.Global().Get("Error").New(msg)
	panic(msg)
}

var wasmOptions = []gorigami.Option{
	gorigami.WithEvalOptions(evaluator.WithConcurrency(false)),
}

func parseScope(fn, scopeJSON string) types.Tree {
	if scopeJSON == "" || scopeJSON == "null" {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(scopeJSON), &data); err != nil {
		jsThrow(fmt.Sprintf("%s: invalid scope JSON: %v", fn, err))
	}
	return tree.NewMap(data)
}

func marshalResult(ctx context.Context, fn string, result interface{}) string {
	if _, ok := result.(types.Function); ok {
		jsThrow(fmt.Sprintf("%s: expression evaluated to a function", fn))
	}
	plain, err := tree.Plain(ctx, result)
	if err != nil {
		jsThrow(fmt.Sprintf("%s: %v", fn, err))
	}
	out, err := json.Marshal(plain)
	if err != nil {
		jsThrow(fmt.Sprintf("%s: marshal result: %v", fn, err))
	}
	return string(out)
}

// jsEval implements gorigami.eval(expression, scopeJSON) → resultJSON.
func jsEval(_ js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		jsThrow("gorigami.eval requires 2 arguments: expression (string) and scope (JSON string)")
	}
	ctx := context.Background()
	s := parseScope("gorigami.eval", args[1].String())

	unit, err := gorigami.Compile(args[0].String(), wasmOptions...)
	if err != nil {
		jsThrow(fmt.Sprintf("gorigami.eval: %v", err))
	}
	result, err := unit.Eval(ctx, s)
	if err != nil {
		jsThrow(gorigami.FormatError(err, false))
	}
	return marshalResult(ctx, "gorigami.eval", result)
}

// jsCompile implements gorigami.compile(expression) → { eval(scopeJSON) → resultJSON }.
func jsCompile(_ js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		jsThrow("gorigami.compile requires 1 argument: expression (string)")
	}
	unit, err := gorigami.Compile(args[0].String(), wasmOptions...)
	if err != nil {
		jsThrow(fmt.Sprintf("gorigami.compile: %v", err))
	}

	evalFn := js.FuncOf(func(_ js.Value, innerArgs []js.Value) interface{} {
		if len(innerArgs) < 1 {
			jsThrow("compiled.eval requires 1 argument: scope (JSON string)")
		}
		ctx := context.Background()
		s := parseScope("compiled.eval", innerArgs[0].String())
		r, e := unit.Eval(ctx, s)
		if e != nil {
			jsThrow(gorigami.FormatError(e, false))
		}
		return marshalResult(ctx, "compiled.eval", r)
	})

	return js.ValueOf(map[string]interface{}{"eval": evalFn})
}

func main() {
	api := map[string]interface{}{
		"eval":    js.FuncOf(jsEval),
		"compile": js.FuncOf(jsCompile),
		"version": js.FuncOf(func(_ js.Value, _ []js.Value) interface{} {
			return gorigami.Version()
		}),
	}
	js.Global().Set("gorigami", js.ValueOf(api))

	// The JS event loop owns execution from here.
	select {}
}
