// Package parser implements the expression-language parser.
//
// The parser uses a hand-written Pratt ("Top Down Operator Precedence")
// approach on top of a Pike-style lexer. Every node that is evaluated at
// runtime carries the Location of the source text it was parsed from.
//
// # Architecture
//
// The parser consists of three main components:
//   - Lexer: Tokenizes the input expression into a stream of tokens
//   - Parser: Builds the code tree from tokens, one NodeArena per parse
//   - Format: Turns a code tree back into source text
//
// # Example
//
//	node, err := parser.Parse("(x) => x * 2", parser.WithSourceName("double.ori"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(parser.Format(node))
package parser

import (
	"fmt"

	"github.com/sandrolain/gorigami/pkg/types"
)

// StartRule selects the grammar rule a parse starts from.
type StartRule string

const (
	// RuleExpression parses a single expression.
	RuleExpression StartRule = "expression"
	// RuleTemplateDocument parses the whole text as the body of a template,
	// producing a lambda over the implicit parameter.
	RuleTemplateDocument StartRule = "templateDocument"
)

// Parse parses text and returns the root node of its code tree.
//
// If parsing fails, it returns a *types.Error with location information.
func Parse(text string, opts ...Option) (*types.Node, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return ParseSource(types.NewSource(options.SourceName, text), opts...)
}

// ParseSource parses an existing source.
func ParseSource(src *types.Source, opts ...Option) (*types.Node, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	p := newParser(src, 0, len(src.Text), options, types.NewNodeArena())
	switch options.StartRule {
	case RuleExpression, "":
		return p.Parse()
	case RuleTemplateDocument:
		return p.ParseTemplateDocument()
	default:
		return nil, types.NewError(types.ErrUnknownStartRule,
			fmt.Sprintf("Unknown start rule %q", options.StartRule), -1)
	}
}

// Option configures parsing behavior.
type Option func(*Options)

// Options holds parser configuration.
type Options struct {
	// SourceName is reported in locations and errors.
	SourceName string
	// StartRule selects the grammar rule to start from.
	StartRule StartRule
	// MaxDepth limits nesting depth to prevent stack overflow.
	MaxDepth int
}

func defaultOptions() Options {
	return Options{
		StartRule: RuleExpression,
		MaxDepth:  200,
	}
}

// WithSourceName names the source text.
func WithSourceName(name string) Option {
	return func(opts *Options) {
		opts.SourceName = name
	}
}

// WithStartRule sets the start rule.
func WithStartRule(rule StartRule) Option {
	return func(opts *Options) {
		opts.StartRule = rule
	}
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) Option {
	return func(opts *Options) {
		opts.MaxDepth = depth
	}
}
