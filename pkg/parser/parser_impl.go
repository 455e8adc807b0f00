package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandrolain/gorigami/pkg/types"
)

// Parser implements a recursive descent parser.
// It uses Pratt's "Top Down Operator Precedence" algorithm to handle
// operator precedence correctly.
type Parser struct {
	src     *types.Source
	lexer   *Lexer
	current Token
	prev    Token
	opts    Options
	arena   *types.NodeArena
	depth   int
}

// newParser creates a parser over the byte range [start, end) of src.
// The first token is read by Parse.
func newParser(src *types.Source, start, end int, opts Options, arena *types.NodeArena) *Parser {
	return &Parser{
		src:   src,
		lexer: newRangeLexer(src.Text, start, end),
		opts:  opts,
		arena: arena,
	}
}

// Parse parses the entire range as one expression.
func (p *Parser) Parse() (*types.Node, error) {
	p.advance()

	if p.current.Type == TokenEOF {
		return nil, p.error(types.ErrUnexpectedEnd, "Empty expression")
	}

	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenEOF {
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected token: %s", p.current.Value))
	}
	return node, nil
}

// ParseTemplateDocument parses the entire range as template text. The result
// is a lambda over the implicit parameter whose body builds the text.
func (p *Parser) ParseTemplateDocument() (*types.Node, error) {
	start := p.lexer.current
	p.current = p.lexer.scanTemplate(false)
	if p.current.Type == TokenError {
		return nil, p.error(types.ErrSyntaxError, "Invalid template")
	}
	tok := p.current
	p.advance()

	body, err := p.parseTemplateBody(tok)
	if err != nil {
		return nil, err
	}
	lambda := p.arena.Alloc(types.OpLambda)
	lambda.Body = body
	lambda.Location = types.Span(p.src, start, tok.End)
	return lambda, nil
}

// Operator precedence table (binding power)
// Higher values bind more tightly
var precedence = map[TokenType]int{
	TokenQuestion:     10, // ?
	TokenEqual:        20, // ===
	TokenNotEqual:     20, // !==
	TokenLess:         25, // <
	TokenLessEqual:    25, // <=
	TokenGreater:      25, // >
	TokenGreaterEqual: 25, // >=
	TokenPlus:         30, // +
	TokenMinus:        30, // -
	TokenMult:         40, // *
	TokenDiv:          40, // /
	TokenMod:          40, // %
	TokenSlash:        80, // a/b
	TokenParenOpen:    80, // f(x)
	TokenTemplate:     80, // tag`text`
}

// unaryPrecedence binds a prefix minus tighter than any binary operator.
const unaryPrecedence = 50

var binaryOps = map[TokenType]types.Op{
	TokenPlus:         types.OpAdd,
	TokenMinus:        types.OpSubtract,
	TokenMult:         types.OpMultiply,
	TokenDiv:          types.OpDivide,
	TokenMod:          types.OpRemainder,
	TokenEqual:        types.OpEqual,
	TokenNotEqual:     types.OpNotEqual,
	TokenLess:         types.OpLess,
	TokenLessEqual:    types.OpLessEqual,
	TokenGreater:      types.OpGreater,
	TokenGreaterEqual: types.OpGreaterEqual,
}

// getPrecedence returns the precedence of a token.
// Calls and tagged templates must directly follow their head.
func (p *Parser) getPrecedence(t Token) int {
	if (t.Type == TokenParenOpen || t.Type == TokenTemplate) && t.Spaced {
		return 0
	}
	return precedence[t.Type]
}

// advance moves to the next token.
func (p *Parser) advance() {
	p.prev = p.current
	p.current = p.lexer.Next()
}

// state is a parser snapshot used for backtracking.
type state struct {
	lexer   Lexer
	current Token
	prev    Token
}

func (p *Parser) save() state {
	return state{lexer: *p.lexer, current: p.current, prev: p.prev}
}

func (p *Parser) restore(s state) {
	*p.lexer = s.lexer
	p.current = s.current
	p.prev = s.prev
}

// expect checks if the current token matches the expected type and advances.
func (p *Parser) expect(tt TokenType) error {
	if p.current.Type != tt {
		code := types.ErrExpectedToken
		if p.current.Type == TokenEOF {
			code = types.ErrUnexpectedEnd
		}
		return p.error(code, fmt.Sprintf("Expected %s but got %s", tt.String(), p.current.Type.String()))
	}
	p.advance()
	return nil
}

// error creates a parser error located at the current token. A pending
// lexer error takes precedence.
func (p *Parser) error(code types.ErrorCode, message string) error {
	end := p.current.End
	if end <= p.current.Position {
		end = p.current.Position
	}
	loc := types.Span(p.src, p.current.Position, end)

	if p.current.Type == TokenError {
		if lexErr, ok := p.lexer.Error().(*types.Error); ok {
			return lexErr.WithLocation(loc)
		}
	}
	return &types.Error{
		Code:     code,
		Message:  message,
		Position: p.current.Position,
		Token:    p.current.Value,
		Location: loc,
	}
}

// span returns the location from start to the end of the previous token.
func (p *Parser) span(start int) *types.Location {
	return types.Span(p.src, start, p.prev.End)
}

func (p *Parser) literal(value interface{}, start int) *types.Node {
	n := p.arena.Alloc(types.OpLiteral)
	n.Value = value
	n.Location = p.span(start)
	return n
}

func (p *Parser) instruction(op types.Op, start int, operands ...*types.Node) *types.Node {
	n := p.arena.Alloc(op)
	n.Operands = operands
	n.Location = p.span(start)
	return n
}

// parseExpression parses an expression with operator precedence.
// rbp is the right binding power (minimum precedence).
func (p *Parser) parseExpression(rbp int) (*types.Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.opts.MaxDepth > 0 && p.depth > p.opts.MaxDepth {
		return nil, p.error(types.ErrSyntaxError, "Expression nested too deeply")
	}

	// Parse prefix expression (nud - null denotation)
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	// Parse infix expressions while precedence allows (led - left denotation)
	for rbp < p.getPrecedence(p.current) {
		left, err = p.parseInfix(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

// parsePrefix parses a prefix expression (nud - null denotation).
func (p *Parser) parsePrefix() (*types.Node, error) {
	token := p.current

	switch token.Type {
	case TokenString:
		p.advance()
		return p.literal(token.Value, token.Position), nil
	case TokenNumber:
		return p.parseNumber(false)
	case TokenBoolean:
		p.advance()
		return p.literal(token.Value == "true", token.Position), nil
	case TokenNull:
		p.advance()
		return p.literal(types.NullValue, token.Position), nil
	case TokenName:
		return p.parseName()
	case TokenNamespace:
		return p.parseNamespace()
	case TokenURL:
		return p.parseURL()
	case TokenTemplate:
		p.advance()
		return p.parseTemplateBody(token)
	case TokenMinus:
		return p.parseUnaryMinus()
	case TokenAssign:
		return p.parseImplicitLambda()
	case TokenParenOpen:
		return p.parseGrouping()
	case TokenBracketOpen:
		return p.parseArrayConstructor()
	case TokenBraceOpen:
		return p.parseObjectConstructor()
	case TokenEOF:
		return nil, p.error(types.ErrUnexpectedEnd, "Unexpected end of expression")
	default:
		return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected token: %s", token.Type.String()))
	}
}

// parseInfix parses an infix expression (led - left denotation).
func (p *Parser) parseInfix(left *types.Node) (*types.Node, error) {
	token := p.current

	switch token.Type {
	case TokenSlash:
		return p.parsePath(left)
	case TokenParenOpen:
		return p.parseFunctionCall(left)
	case TokenTemplate:
		return p.parseTaggedTemplate(left)
	case TokenQuestion:
		return p.parseConditional(left)
	}
	if _, ok := binaryOps[token.Type]; ok {
		return p.parseBinaryOp(left)
	}
	return nil, p.error(types.ErrSyntaxError, fmt.Sprintf("Unexpected infix token: %s", token.Type.String()))
}

func (p *Parser) parseNumber(negative bool) (*types.Node, error) {
	token := p.current
	value, err := strconv.ParseFloat(token.Value, 64)
	if err != nil {
		return nil, p.error(types.ErrNumberOutOfRange, fmt.Sprintf("Number out of range: %s", token.Value))
	}
	p.advance()
	if negative {
		return p.literal(-value, token.Position-1), nil
	}
	return p.literal(value, token.Position), nil
}

// parseName parses a reference, or a single-parameter lambda "x => body".
func (p *Parser) parseName() (*types.Node, error) {
	token := p.current
	p.advance()

	if p.current.Type == TokenArrow {
		return p.parseLambdaBody([]string{token.Value}, token.Position)
	}

	n := p.arena.Alloc(types.OpUndetermined)
	n.Key = token.Value
	n.Location = p.span(token.Position)
	return n, nil
}

// parseNamespace parses "ns:" optionally followed directly by a key.
func (p *Parser) parseNamespace() (*types.Node, error) {
	token := p.current
	p.advance()

	global := p.arena.Alloc(types.OpGlobal)
	global.Key = token.Value
	global.Location = p.span(token.Position)

	if p.current.Type != TokenName || p.current.Spaced {
		return global, nil
	}
	keyToken := p.current
	p.advance()
	key := p.literal(keyToken.Value, keyToken.Position)
	return p.instruction(types.OpTraverse, token.Position, global, key), nil
}

// parseURL splits a URL into host and path keys.
func (p *Parser) parseURL() (*types.Node, error) {
	token := p.current
	p.advance()

	op := types.OpHTTPS
	scheme := "https://"
	if strings.HasPrefix(token.Value, "http://") {
		op = types.OpHTTP
		scheme = "http://"
	}

	offset := token.Position + len(scheme)
	segments := strings.Split(token.Value[len(scheme):], "/")
	if segments[0] == "" {
		return nil, p.error(types.ErrSyntaxError, "URL has no host")
	}

	keys := make([]*types.Node, 0, len(segments))
	for i, seg := range segments {
		if seg == "" {
			if i == len(segments)-1 && len(keys) > 0 {
				last := keys[len(keys)-1]
				last.Value = last.Value.(string) + "/"
				last.Location = types.Span(p.src, last.Location.Start.Offset, offset)
			}
			offset++
			continue
		}
		key := p.arena.Alloc(types.OpLiteral)
		key.Value = seg
		key.Location = types.Span(p.src, offset, offset+len(seg))
		keys = append(keys, key)
		offset += len(seg) + 1
	}
	return p.instruction(op, token.Position, keys...), nil
}

// parseUnaryMinus parses -x as 0 - x, folding negative number literals.
func (p *Parser) parseUnaryMinus() (*types.Node, error) {
	token := p.current
	p.advance()

	if p.current.Type == TokenNumber && !p.current.Spaced {
		return p.parseNumber(true)
	}

	operand, err := p.parseExpression(unaryPrecedence)
	if err != nil {
		return nil, err
	}
	zero := p.arena.Alloc(types.OpLiteral)
	zero.Value = 0.0
	zero.Location = types.Span(p.src, token.Position, token.End)
	return p.instruction(types.OpSubtract, token.Position, zero, operand), nil
}

// parseImplicitLambda parses "=body", a lambda over the implicit parameter.
func (p *Parser) parseImplicitLambda() (*types.Node, error) {
	token := p.current
	p.advance()

	body, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	n := p.arena.Alloc(types.OpLambda)
	n.Body = body
	n.Location = p.span(token.Position)
	return n, nil
}

// parseGrouping parses a parenthesized expression or a parameter list
// followed by "=>".
func (p *Parser) parseGrouping() (*types.Node, error) {
	start := p.current.Position

	if params, ok := p.tryParams(); ok {
		return p.parseLambdaBody(params, start)
	}

	p.advance()
	inner, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	inner.Location = p.span(start)
	return inner, nil
}

// tryParams reads "(a, b)" when it is followed by "=>". Otherwise the parser
// is left untouched.
func (p *Parser) tryParams() ([]string, bool) {
	saved := p.save()
	p.advance()

	params := []string{}
	for p.current.Type != TokenParenClose {
		if p.current.Type != TokenName {
			p.restore(saved)
			return nil, false
		}
		params = append(params, p.current.Value)
		p.advance()
		if p.current.Type == TokenComma {
			p.advance()
		} else if p.current.Type != TokenParenClose {
			p.restore(saved)
			return nil, false
		}
	}
	p.advance()

	if p.current.Type != TokenArrow {
		p.restore(saved)
		return nil, false
	}
	return params, true
}

// parseLambdaBody parses "=> body" for the given parameters.
func (p *Parser) parseLambdaBody(params []string, start int) (*types.Node, error) {
	if err := p.expect(TokenArrow); err != nil {
		return nil, err
	}
	body, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	n := p.arena.Alloc(types.OpLambda)
	n.Params = params
	n.Body = body
	n.Location = p.span(start)
	return n, nil
}

// parseArrayConstructor parses [a, b, c].
func (p *Parser) parseArrayConstructor() (*types.Node, error) {
	start := p.current.Position
	p.advance()

	var items []*types.Node
	for p.current.Type != TokenBracketClose {
		item, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.current.Type != TokenComma {
			break
		}
		p.advance()
	}
	if err := p.expect(TokenBracketClose); err != nil {
		return nil, err
	}
	return p.instruction(types.OpArray, start, items...), nil
}

// parseObjectConstructor parses { a: 1, b = expr, c }.
//
// "key: value" entries are computed once, "key = value" entries on every
// access, and a bare key is inherited from the enclosing scope. Commas
// between entries are optional.
func (p *Parser) parseObjectConstructor() (*types.Node, error) {
	start := p.current.Position
	p.advance()

	var entries []types.Entry
	getters := false
	for p.current.Type != TokenBraceClose {
		entry, err := p.parseEntry()
		if err != nil {
			return nil, err
		}
		getters = getters || entry.Getter
		entries = append(entries, entry)
		if p.current.Type == TokenComma {
			p.advance()
		}
	}
	if err := p.expect(TokenBraceClose); err != nil {
		return nil, err
	}

	op := types.OpObject
	if getters {
		op = types.OpTree
	}
	n := p.arena.Alloc(op)
	n.Entries = entries
	n.Location = p.span(start)
	return n, nil
}

func (p *Parser) parseEntry() (types.Entry, error) {
	token := p.current
	var key string
	valueFollows := false

	switch token.Type {
	case TokenName, TokenNumber, TokenBoolean, TokenNull, TokenString:
		key = token.Value
	case TokenNamespace:
		// "key:value" without a space lexes as a namespace
		key = strings.TrimSuffix(token.Value, ":")
		valueFollows = true
	default:
		return types.Entry{}, p.error(types.ErrExpectedToken, fmt.Sprintf("Expected object key but got %s", token.Type.String()))
	}
	p.advance()

	if !valueFollows && p.current.Type == TokenSlash {
		key += "/"
		p.advance()
	}

	switch {
	case valueFollows || p.current.Type == TokenColon:
		if !valueFollows {
			p.advance()
		}
		value, err := p.parseExpression(0)
		if err != nil {
			return types.Entry{}, err
		}
		return types.Entry{Key: key, Value: value}, nil

	case p.current.Type == TokenAssign:
		p.advance()
		value, err := p.parseExpression(0)
		if err != nil {
			return types.Entry{}, err
		}
		return types.Entry{Key: key, Value: value, Getter: true}, nil
	}

	ref := p.arena.Alloc(types.OpInherited)
	ref.Key = key
	ref.Location = p.span(token.Position)
	return types.Entry{Key: key, Value: ref}, nil
}

// parsePath parses head/key/(expr) and the trailing-slash form head/.
func (p *Parser) parsePath(head *types.Node) (*types.Node, error) {
	start := head.Location.Start.Offset

	var keys []*types.Node
	for p.current.Type == TokenSlash {
		slash := p.current
		p.advance()

		if p.current.Spaced || !canStartKey(p.current.Type) {
			if len(keys) > 0 {
				head = p.located(types.OpTraverse, start, slash.Position, append([]*types.Node{head}, keys...))
			}
			return p.instruction(types.OpUnpack, start, head), nil
		}

		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return p.instruction(types.OpTraverse, start, append([]*types.Node{head}, keys...)...), nil
}

// located builds an instruction spanning [start, end).
func (p *Parser) located(op types.Op, start, end int, operands []*types.Node) *types.Node {
	n := p.arena.Alloc(op)
	n.Operands = operands
	n.Location = types.Span(p.src, start, end)
	return n
}

func canStartKey(tt TokenType) bool {
	switch tt {
	case TokenName, TokenNumber, TokenBoolean, TokenNull, TokenString, TokenParenOpen:
		return true
	}
	return false
}

// parseKey parses one path key: a bare name, a literal, or (expr).
func (p *Parser) parseKey() (*types.Node, error) {
	token := p.current
	if token.Type != TokenParenOpen {
		p.advance()
		return p.literal(token.Value, token.Position), nil
	}

	p.advance()
	key, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	key.Location = p.span(token.Position)
	return key, nil
}

// parseFunctionCall parses head(args...).
func (p *Parser) parseFunctionCall(head *types.Node) (*types.Node, error) {
	start := head.Location.Start.Offset
	p.advance()

	operands := []*types.Node{head}
	for p.current.Type != TokenParenClose {
		arg, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		operands = append(operands, arg)
		if p.current.Type != TokenComma {
			break
		}
		p.advance()
	}
	if err := p.expect(TokenParenClose); err != nil {
		return nil, err
	}
	return p.instruction(types.OpCall, start, operands...), nil
}

// parseTaggedTemplate parses tag`text ${expr}` as a call of the tag with the
// template's literal strings followed by the embedded values.
func (p *Parser) parseTaggedTemplate(head *types.Node) (*types.Node, error) {
	start := head.Location.Start.Offset
	token := p.current
	p.advance()

	strs, exprs, err := p.templateParts(token)
	if err != nil {
		return nil, err
	}
	lit := p.arena.Alloc(types.OpLiteral)
	lit.Value = strs
	lit.Location = types.Span(p.src, token.Position, token.End)

	operands := append([]*types.Node{head, lit}, exprs...)
	return p.instruction(types.OpCall, start, operands...), nil
}

// parseTemplateBody turns an untagged template into a concatenation.
// A template without embedded expressions is a string literal.
func (p *Parser) parseTemplateBody(token Token) (*types.Node, error) {
	strs, exprs, err := p.templateParts(token)
	if err != nil {
		return nil, err
	}
	loc := types.Span(p.src, token.Position, token.End)

	if len(exprs) == 0 {
		n := p.arena.Alloc(types.OpLiteral)
		n.Value = strs[0]
		n.Location = loc
		return n, nil
	}

	var operands []*types.Node
	for i, s := range strs {
		if s != "" {
			lit := p.arena.Alloc(types.OpLiteral)
			lit.Value = s
			lit.Location = loc
			operands = append(operands, lit)
		}
		if i < len(exprs) {
			operands = append(operands, exprs[i])
		}
	}
	n := p.arena.Alloc(types.OpConcat)
	n.Operands = operands
	n.Location = loc
	return n, nil
}

// templateParts returns the literal strings of a template and the parsed
// embedded expressions between them. There is always one more string than
// there are expressions.
func (p *Parser) templateParts(token Token) ([]string, []*types.Node, error) {
	strs := make([]string, 0, len(token.Parts))
	var exprs []*types.Node
	for _, part := range token.Parts {
		strs = append(strs, part.Text)
		if part.ExprStart < 0 {
			continue
		}
		sub := newParser(p.src, part.ExprStart, part.ExprEnd, p.opts, p.arena)
		sub.depth = p.depth
		expr, err := sub.Parse()
		if err != nil {
			return nil, nil, err
		}
		exprs = append(exprs, expr)
	}
	return strs, exprs, nil
}

// parseBinaryOp parses a left-associative binary operator.
func (p *Parser) parseBinaryOp(left *types.Node) (*types.Node, error) {
	token := p.current
	p.advance()

	right, err := p.parseExpression(p.getPrecedence(token))
	if err != nil {
		return nil, err
	}
	return p.instruction(binaryOps[token.Type], left.Location.Start.Offset, left, right), nil
}

// parseConditional parses c ? a : b. The else branch is right-associative.
func (p *Parser) parseConditional(condition *types.Node) (*types.Node, error) {
	token := p.current
	p.advance()

	then, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	otherwise, err := p.parseExpression(p.getPrecedence(token) - 1)
	if err != nil {
		return nil, err
	}
	return p.instruction(types.OpConditional, condition.Location.Start.Offset, condition, then, otherwise), nil
}
