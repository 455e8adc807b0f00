// Package diagnostics turns evaluation errors into explanations for people:
// a message naming what could not be found, "did you mean" suggestions drawn
// from the names that were in scope, and a source snippet pointing at the
// failing expression.
//
// The evaluator never formats errors itself. It attaches a [types.Context]
// to each error and leaves presentation to this package.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// Explain returns an explanation of err, or false if err carries nothing
// that can be explained beyond its own message.
func Explain(ctx context.Context, err error) (string, bool) {
	var traversal *tree.TraversalError
	if errors.As(err, &traversal) {
		return ExplainTraversal(ctx, traversal), true
	}

	e, ok := types.AsError(err)
	if !ok || e.Code != types.ErrUndefinedReference || e.Context == nil || e.Context.Code == nil {
		return "", false
	}
	key := e.Context.Code.Key
	if key == "" {
		return "", false
	}
	return ExplainReference(ctx, key, e.Context.State), true
}

// ExplainReference explains a key that could not be found in state.
func ExplainReference(ctx context.Context, key string, state types.State) string {
	pool := names(ctx, state.Globals, state.Object, state.Parent)
	key = tree.RemoveSlash(key)

	// a.b may be a mistyped a followed by a member
	targets := []string{key}
	if i := strings.IndexByte(key, '.'); i > 0 && !contains(pool, key[:i]) {
		targets = append(targets, key[:i])
	}
	var suggestions []string
	for _, target := range targets {
		suggestions = append(suggestions, Similar(target, pool)...)
	}

	message := fmt.Sprintf("%q is not in scope or is undefined.", key)
	return withSuggestions(message, suggestions)
}

// ExplainTraversal explains a path traversal that stopped early, suggesting
// keys of the last value it reached.
func ExplainTraversal(ctx context.Context, err *tree.TraversalError) string {
	if err.Reason != "" {
		return err.Error() + "."
	}
	key := tree.RemoveSlash(tree.KeyString(err.Key()))
	message := fmt.Sprintf("%q is undefined", key)
	if err.Position > 0 {
		message += " in " + tree.Path(err.Keys[:err.Position])
	}
	message += fmt.Sprintf(" while traversing %s.", tree.Path(err.Keys))

	head := err.Head
	if u, ok := head.(types.Unpackable); ok {
		if unpacked, uerr := u.Unpack(ctx); uerr == nil {
			head = unpacked
		}
	}
	var pool []string
	if t, ok := tree.From(head); ok {
		pool = names(ctx, t)
	}
	return withSuggestions(message, Similar(key, pool))
}

func withSuggestions(message string, suggestions []string) string {
	suggestions = unique(suggestions)
	if len(suggestions) == 0 {
		return message
	}
	return message + "\nYou might have meant: " + strings.Join(suggestions, ", ")
}

// names collects the keys of trees without trailing slashes. Trees whose
// keys cannot be listed contribute nothing.
func names(ctx context.Context, trees ...types.Tree) []string {
	var result []string
	for _, t := range trees {
		if t == nil {
			continue
		}
		keys, err := tree.KeyStrings(ctx, t)
		if err != nil {
			continue
		}
		for _, k := range keys {
			result = append(result, tree.RemoveSlash(k))
		}
	}
	return unique(result)
}

func unique(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	sorted := append([]string(nil), s...)
	sort.Strings(sorted)
	result := sorted[:1]
	for _, v := range sorted[1:] {
		if v != result[len(result)-1] {
			result = append(result, v)
		}
	}
	return result
}

// contains reports whether sorted holds v.
func contains(sorted []string, v string) bool {
	i := sort.SearchStrings(sorted, v)
	return i < len(sorted) && sorted[i] == v
}
