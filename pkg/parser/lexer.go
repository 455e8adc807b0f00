package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandrolain/gorigami/pkg/types"
)

const eof = -1

// Lexer converts an expression into a sequence of tokens.
// The implementation is based on Rob Pike's "Lexical Scanning in Go" technique.
//
// A lexer scans a byte range of its input, so tokens produced for an embedded
// template expression carry offsets into the enclosing source.
type Lexer struct {
	input   string // Input string being scanned
	length  int    // End of the scanned range
	start   int    // Start position of current token
	current int    // Current position in input
	width   int    // Width of last rune read
	err     error  // First error encountered
}

// NewLexer creates a new lexer over the whole input.
func NewLexer(input string) *Lexer {
	return newRangeLexer(input, 0, len(input))
}

func newRangeLexer(input string, start, end int) *Lexer {
	return &Lexer{
		input:   input,
		length:  end,
		start:   start,
		current: start,
	}
}

// Next returns the next token from the input.
// When the end of the input is reached, Next returns TokenEOF for all subsequent calls.
//
// A slash is a path separator when it directly follows the previous token
// and the division operator when whitespace precedes it.
func (l *Lexer) Next() Token {
	before := l.current
	l.skipWhitespace()
	spaced := l.current > before

	if l.err != nil {
		return l.error(types.ErrSyntaxError, l.err.Error())
	}

	t := l.scan()
	t.Spaced = spaced
	return t
}

func (l *Lexer) scan() Token {
	ch := l.nextRune()
	if ch == eof {
		return l.eof()
	}

	if ch == '/' {
		if l.current-1 > 0 && !isWhitespace(rune(l.input[l.current-2])) {
			return l.newToken(TokenSlash)
		}
		return l.newToken(TokenDiv)
	}

	// Multi-character symbols first (===, =>, !==, <=, >=)
	for _, rt := range lookupSymbolN(ch) {
		if strings.HasPrefix(l.input[l.current:l.length], rt.rest) {
			l.current += len(rt.rest)
			return l.newToken(rt.tt)
		}
	}

	if tt := lookupSymbol1(ch); tt > 0 {
		return l.newToken(tt)
	}

	switch {
	case ch == '"' || ch == '\'':
		return l.scanString(ch)
	case ch == '`':
		return l.scanTemplate(true)
	case isDigit(ch):
		l.backup()
		return l.scanNumber()
	case isNameStart(ch):
		l.backup()
		return l.scanName()
	}
	return l.error(types.ErrSyntaxError, "Unexpected character "+string(ch))
}

// Error returns the first error encountered during lexing, if any.
func (l *Lexer) Error() error {
	return l.err
}

// scanString reads a string literal. The opening quote has already been
// consumed. The token value is the unescaped string.
func (l *Lexer) scanString(quote rune) Token {
	var sb strings.Builder
	for {
		switch r := l.nextRune(); r {
		case quote:
			t := l.newToken(TokenString)
			t.Value = sb.String()
			return t
		case '\\':
			esc := l.nextRune()
			if esc == eof {
				return l.error(types.ErrStringNotClosed, "Unterminated string literal")
			}
			if !l.writeEscape(&sb, esc) {
				return l.error(types.ErrUnsupportedEscape, "Unsupported escape sequence \\"+string(esc))
			}
		case eof:
			return l.error(types.ErrStringNotClosed, "Unterminated string literal")
		default:
			sb.WriteRune(r)
		}
	}
}

// writeEscape writes the character denoted by the escape sequence \esc.
func (l *Lexer) writeEscape(sb *strings.Builder, esc rune) bool {
	switch esc {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case '0':
		sb.WriteByte(0)
	case 'u':
		if l.current+4 > l.length {
			return false
		}
		var code rune
		for _, c := range l.input[l.current : l.current+4] {
			d := hexValue(c)
			if d < 0 {
				return false
			}
			code = code*16 + d
		}
		l.current += 4
		sb.WriteRune(code)
	default:
		// \\, \", \', \`, \$ and any other character stand for themselves.
		sb.WriteRune(esc)
	}
	return true
}

// scanTemplate reads template text up to the closing backtick, or up to the
// end of the range when closed is false. The opening backtick, if any, has
// already been consumed.
func (l *Lexer) scanTemplate(closed bool) Token {
	var sb strings.Builder
	var parts []TemplatePart
	for {
		r := l.nextRune()
		switch {
		case r == eof:
			if closed {
				return l.error(types.ErrTemplateNotClosed, "Unterminated template literal")
			}
			parts = append(parts, TemplatePart{Text: sb.String(), ExprStart: -1, ExprEnd: -1})
			t := l.newToken(TokenTemplate)
			t.Parts = parts
			return t
		case r == '`' && closed:
			parts = append(parts, TemplatePart{Text: sb.String(), ExprStart: -1, ExprEnd: -1})
			t := l.newToken(TokenTemplate)
			t.Parts = parts
			return t
		case r == '\\':
			esc := l.nextRune()
			if esc == eof {
				return l.error(types.ErrTemplateNotClosed, "Unterminated template literal")
			}
			if !l.writeEscape(&sb, esc) {
				return l.error(types.ErrUnsupportedEscape, "Unsupported escape sequence \\"+string(esc))
			}
		case r == '$' && l.peek() == '{':
			l.nextRune()
			exprStart := l.current
			exprEnd, ok := l.skipEmbedded()
			if !ok {
				return l.error(types.ErrTemplateNotClosed, "Unterminated template expression")
			}
			parts = append(parts, TemplatePart{Text: sb.String(), ExprStart: exprStart, ExprEnd: exprEnd})
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
}

// skipEmbedded skips an embedded ${...} expression whose opening brace has
// been consumed, and returns the offset of its closing brace.
func (l *Lexer) skipEmbedded() (int, bool) {
	depth := 0
	for {
		switch r := l.nextRune(); r {
		case eof:
			return 0, false
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return l.current - 1, true
			}
			depth--
		case '"', '\'':
			if !l.skipQuoted(r) {
				return 0, false
			}
		case '`':
			if !l.skipNestedTemplate() {
				return 0, false
			}
		}
	}
}

func (l *Lexer) skipQuoted(quote rune) bool {
	for {
		switch l.nextRune() {
		case quote:
			return true
		case '\\':
			if l.nextRune() == eof {
				return false
			}
		case eof:
			return false
		}
	}
}

func (l *Lexer) skipNestedTemplate() bool {
	for {
		switch r := l.nextRune(); r {
		case '`':
			return true
		case '\\':
			if l.nextRune() == eof {
				return false
			}
		case '$':
			if l.peek() == '{' {
				l.nextRune()
				if _, ok := l.skipEmbedded(); !ok {
					return false
				}
			}
		case eof:
			return false
		}
	}
}

// scanNumber reads a number literal from the current position.
// Format: [0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?
func (l *Lexer) scanNumber() Token {
	l.acceptAll(isDigit)

	if l.peek() == '.' && l.current+1 < l.length && isDigit(rune(l.input[l.current+1])) {
		l.nextRune()
		l.acceptAll(isDigit)
	}

	if l.acceptRunes2('e', 'E') {
		l.acceptRunes2('+', '-')
		if !l.acceptAll(isDigit) {
			return l.error(types.ErrNumberOutOfRange, "Malformed number exponent")
		}
	}

	return l.newToken(TokenNumber)
}

// scanName reads a name, keyword, namespace or URL.
//
// Names may contain letters, digits and the characters . - @ ~ $ _, so
// "index.html", "my-file" and "@recurse" are single names. A name directly
// followed by a colon and another name is a namespace ("js:Math"); http and
// https followed by "://" start a URL.
func (l *Lexer) scanName() Token {
	l.acceptAll(isNameChar)
	name := l.input[l.start:l.current]

	if l.peek() == ':' {
		rest := l.input[l.current:l.length]
		if (name == "http" || name == "https") && strings.HasPrefix(rest, "://") {
			l.current += 3
			return l.scanURL()
		}
		if len(rest) > 1 {
			if r, _ := utf8.DecodeRuneInString(rest[1:]); isNameStart(r) {
				l.current++
				return l.newToken(TokenNamespace)
			}
		}
	}

	t := l.newToken(TokenName)
	if tt := lookupKeyword(name); tt > 0 {
		t.Type = tt
	}
	return t
}

// scanURL reads the remainder of a URL after its "://".
func (l *Lexer) scanURL() Token {
	for {
		r := l.nextRune()
		if r == eof {
			break
		}
		if isWhitespace(r) || strings.ContainsRune(")]},`", r) {
			l.backup()
			break
		}
	}
	return l.newToken(TokenURL)
}

// Helper methods

func (l *Lexer) eof() Token {
	return Token{
		Type:     TokenEOF,
		Position: l.current,
		End:      l.current,
	}
}

func (l *Lexer) error(code types.ErrorCode, message string) Token {
	t := l.newToken(TokenError)
	if l.err == nil {
		l.err = &types.Error{
			Code:     code,
			Message:  message,
			Position: t.Position,
			Token:    t.Value,
		}
	}
	return t
}

func (l *Lexer) newToken(tt TokenType) Token {
	t := Token{
		Type:     tt,
		Value:    l.input[l.start:l.current],
		Position: l.start,
		End:      l.current,
	}
	l.width = 0
	l.start = l.current
	return t
}

func (l *Lexer) nextRune() rune {
	if l.err != nil || l.current >= l.length {
		l.width = 0
		return eof
	}

	r, w := utf8.DecodeRuneInString(l.input[l.current:l.length])
	l.width = w
	l.current += w
	return r
}

func (l *Lexer) peek() rune {
	r := l.nextRune()
	l.backup()
	return r
}

func (l *Lexer) backup() {
	l.current -= l.width
	l.width = 0
}

func (l *Lexer) ignore() {
	l.start = l.current
}

func (l *Lexer) acceptRune(r rune) bool {
	return l.accept(func(c rune) bool {
		return c == r
	})
}

func (l *Lexer) acceptRunes2(r1, r2 rune) bool {
	return l.accept(func(c rune) bool {
		return c == r1 || c == r2
	})
}

func (l *Lexer) accept(isValid func(rune) bool) bool {
	if isValid(l.nextRune()) {
		return true
	}
	l.backup()
	return false
}

func (l *Lexer) acceptAll(isValid func(rune) bool) bool {
	var matched bool
	for l.accept(isValid) {
		matched = true
	}
	return matched
}

func (l *Lexer) skipWhitespace() {
	for {
		l.acceptAll(isWhitespace)
		l.ignore()

		// Block comments: /* ... */
		if !strings.HasPrefix(l.input[l.current:l.length], "/*") {
			return
		}
		end := strings.Index(l.input[l.current+2:l.length], "*/")
		if end < 0 {
			l.err = &types.Error{
				Code:     types.ErrSyntaxError,
				Message:  "Unclosed comment",
				Position: l.current,
			}
			return
		}
		l.current += end + 4
		l.ignore()
	}
}

// Character classification functions

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isNameStart(r rune) bool {
	switch r {
	case '_', '@', '$', '~', '.':
		return true
	}
	return r != eof && unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || isDigit(r) || r == '-'
}

func hexValue(r rune) rune {
	switch {
	case r >= '0' && r <= '9':
		return r - '0'
	case r >= 'a' && r <= 'f':
		return r - 'a' + 10
	case r >= 'A' && r <= 'F':
		return r - 'A' + 10
	}
	return -1
}
