//go:build (js && wasm) || wasip1

package evaluator

// WebAssembly hosts run goroutines on a single thread, and an operand
// goroutine blocked on an external lookup can starve the one that would
// complete it. Evaluators created on these targets evaluate operands in
// order; WithConcurrency(true) still turns fan-out back on.
func init() {
	defaultConcurrency = false
}
