package handlers

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/gorigami/pkg/types"
)

// WASM compiles and instantiates a WebAssembly module. The result is a tree
// whose keys are the module's exported functions; each value is a function
// taking and returning numbers.
//
// Modules run without host imports; a module that imports anything fails to
// instantiate. Each module owns a runtime until Module.Close, or the Close of
// the Registry that unpacked it.
func WASM(ctx context.Context, name string, data []byte) (interface{}, error) {
	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return &Module{
		name:    name,
		runtime: rt,
		module:  mod,
		defs:    compiled.ExportedFunctions(),
	}, nil
}

// Module is an instantiated WebAssembly module.
type Module struct {
	name    string
	runtime wazero.Runtime
	module  api.Module
	defs    map[string]api.FunctionDefinition

	// Module instances are not safe for concurrent calls.
	mu sync.Mutex
}

// Get implements types.Tree.
func (m *Module) Get(_ context.Context, key interface{}) (interface{}, error) {
	name, ok := key.(string)
	if !ok {
		return nil, nil
	}
	def, ok := m.defs[name]
	if !ok {
		return nil, nil
	}
	return types.Func(func(ctx context.Context, _ types.Tree, args ...interface{}) (interface{}, error) {
		return m.call(ctx, name, def, args)
	}), nil
}

// Keys implements types.Tree. Export names are sorted.
func (m *Module) Keys(_ context.Context) ([]interface{}, error) {
	names := make([]string, 0, len(m.defs))
	for name := range m.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	keys := make([]interface{}, len(names))
	for i, name := range names {
		keys[i] = name
	}
	return keys, nil
}

// Close releases the module's runtime.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

func (m *Module) call(ctx context.Context, name string, def api.FunctionDefinition, args []interface{}) (interface{}, error) {
	paramTypes := def.ParamTypes()
	if len(args) != len(paramTypes) {
		return nil, fmt.Errorf("%s.%s expects %d arguments, got %d", m.name, name, len(paramTypes), len(args))
	}
	params := make([]uint64, len(args))
	for i, arg := range args {
		n, ok := arg.(float64)
		if !ok {
			return nil, fmt.Errorf("%s.%s argument %d must be a number", m.name, name, i+1)
		}
		p, err := encodeValue(paramTypes[i], n)
		if err != nil {
			return nil, fmt.Errorf("%s.%s argument %d: %w", m.name, name, i+1, err)
		}
		params[i] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.module.ExportedFunction(name)
	if f == nil || m.module.IsClosed() {
		return nil, fmt.Errorf("%s is closed", m.name)
	}
	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, err
	}

	resultTypes := def.ResultTypes()
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return decodeValue(resultTypes[0], results[0]), nil
	}
	values := make([]interface{}, len(results))
	for i, r := range results {
		values[i] = decodeValue(resultTypes[i], r)
	}
	return values, nil
}

// encodeValue converts n to a parameter of type t. Integer parameters take
// only integral numbers in their signed range.
func encodeValue(t api.ValueType, n float64) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%v is not a 32-bit integer", n)
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not a 64-bit integer", n)
		}
		return api.EncodeI64(int64(n)), nil
	case api.ValueTypeF32:
		return api.EncodeF32(float32(n)), nil
	}
	return api.EncodeF64(n), nil
}

func decodeValue(t api.ValueType, v uint64) float64 {
	switch t {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return float64(int64(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	}
	return api.DecodeF64(v)
}
