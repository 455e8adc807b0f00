// Package handlers unpacks raw resource data into values by file extension.
//
// A fetched resource is first returned as a *Packed value holding its bytes.
// Unpacking it, explicitly with the `x/` syntax or implicitly when it is
// traversed or called, runs the handler registered for the resource's
// extension: JSON becomes plain maps and slices, WebAssembly becomes a tree
// of callable exports, and text stays text.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/sandrolain/gorigami/pkg/types"
)

// Handler turns the data of a resource into a value.
type Handler func(ctx context.Context, name string, data []byte) (interface{}, error)

// Registry maps file extensions to handlers.
//
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	closers  []closer
}

// closer is a value holding resources, such as a WebAssembly runtime.
type closer interface {
	Close(ctx context.Context) error
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Default returns a registry with the JSON, WebAssembly and text handlers.
func Default() *Registry {
	r := NewRegistry()
	r.Register(".json", JSON)
	r.Register(".wasm", WASM)
	for _, ext := range []string{".txt", ".html", ".htm", ".md", ".css", ".csv", ".xml", ".svg"} {
		r.Register(ext, Text)
	}
	return r
}

// Register sets the handler for ext. The extension is matched
// case-insensitively and may be given with or without the leading dot.
func (r *Registry) Register(ext string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[normalizeExt(ext)] = h
}

// Lookup returns the handler for the extension of name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	ext := path.Ext(name)
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[normalizeExt(ext)]
	return h, ok
}

// track records v for Close when it holds resources.
func (r *Registry) track(v interface{}) {
	c, ok := v.(closer)
	if !ok {
		return
	}
	r.mu.Lock()
	r.closers = append(r.closers, c)
	r.mu.Unlock()
}

// Close releases the resources of every value unpacked through the registry,
// such as the runtimes of WebAssembly modules. Those values are unusable
// afterwards. The registry itself stays usable.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Text returns the data as a string.
func Text(_ context.Context, _ string, data []byte) (interface{}, error) {
	return string(data), nil
}

// Packed is resource data that has not been unpacked yet.
type Packed struct {
	Name     string // resource name; its extension selects the handler
	Data     []byte
	Registry *Registry

	mu    sync.Mutex
	done  bool
	value interface{}
	err   error
}

// Unpack implements types.Unpackable. The handler runs once; later calls
// return the same value. A run cut short by the caller's context is not
// remembered, so the next call tries again. Data without a registered
// handler unpacks to text.
func (p *Packed) Unpack(ctx context.Context) (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return p.value, p.err
	}

	h := Handler(Text)
	if p.Registry != nil {
		if found, ok := p.Registry.Lookup(p.Name); ok {
			h = found
		}
	}
	value, err := h(ctx, p.Name, p.Data)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		err = types.NewError(types.ErrUnpack,
			fmt.Sprintf("cannot unpack %s: %v", p.Name, err), -1).WithCause(err)
	} else if p.Registry != nil {
		p.Registry.track(value)
	}
	p.value, p.err, p.done = value, err, true
	return p.value, p.err
}

// String returns the data as text.
func (p *Packed) String() string {
	return string(p.Data)
}
