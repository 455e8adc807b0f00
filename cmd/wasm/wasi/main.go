//go:build wasip1

// Command gorigami-wasm-wasi is the WASI (wasip1) entrypoint for use from any
// language that supports the WebAssembly System Interface.
//
// Protocol: single JSON object on stdin → single JSON object on stdout.
//
//	stdin:  { "expression": "<origami>", "scope": <JSON object> }
//	stdout: { "result": <any JSON value> }    on success
//	        { "error":  "<message>"       }    on failure (exit code 1)
//
// Build:
//
//	GOOS=wasip1 GOARCH=wasm go build -o gorigami.wasm ./cmd/wasm/wasi/
//
// Usage with wasmtime CLI:
//
//	echo '{"expression":"`Hi ${name}`","scope":{"name":"Alice"}}' | wasmtime gorigami.wasm
package main

import (
	"context"
	"os"

	"github.com/goccy/go-json"

	"github.com/sandrolain/gorigami"
	"github.com/sandrolain/gorigami/pkg/evaluator"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

type request struct {
	Expression string                 `json:"expression"`
	Scope      map[string]interface{} `json:"scope"`
}

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func writeResponse(r response, exitCode int) {
	_ = json.NewEncoder(os.Stdout).Encode(r)
	os.Exit(exitCode)
}

func main() {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(response{Error: "invalid request JSON: " + err.Error()}, 1)
	}

	ctx := context.Background()
	var data interface{}
	if req.Scope != nil {
		data = req.Scope
	}
	result, err := gorigami.EvalWithContext(ctx, req.Expression, data,
		gorigami.WithSourceName("stdin"),
		gorigami.WithEvalOptions(evaluator.WithConcurrency(false)),
	)
	if err != nil {
		writeResponse(response{Error: gorigami.FormatError(err, false)}, 1)
	}
	if _, ok := result.(types.Function); ok {
		writeResponse(response{Error: "expression evaluated to a function"}, 1)
	}

	plain, err := tree.Plain(ctx, result)
	if err != nil {
		writeResponse(response{Error: err.Error()}, 1)
	}
	writeResponse(response{Result: plain}, 0)
}
