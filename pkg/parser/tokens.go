package parser

// TokenType represents the type of a lexical token.
type TokenType uint8

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenString    // "hello" or 'hello'
	TokenNumber    // 123, 3.14, 1e-10
	TokenBoolean   // true, false
	TokenNull      // null
	TokenName      // index.html, @recurse, my-file
	TokenNamespace // js:
	TokenURL       // https://example.com/path
	TokenTemplate  // `text ${expr}`

	// Grouping symbols
	TokenBracketOpen  // [
	TokenBracketClose // ]
	TokenBraceOpen    // {
	TokenBraceClose   // }
	TokenParenOpen    // (
	TokenParenClose   // )

	// Basic symbols
	TokenComma    // ,
	TokenColon    // :
	TokenQuestion // ?
	TokenSlash    // / between path keys
	TokenAssign   // =
	TokenArrow    // =>

	// Arithmetic operators
	TokenPlus  // +
	TokenMinus // -
	TokenMult  // *
	TokenDiv   // / surrounded by whitespace
	TokenMod   // %

	// Comparison operators
	TokenEqual        // ===
	TokenNotEqual     // !==
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=
)

var tokenNames = [...]string{
	TokenEOF:          "(eof)",
	TokenError:        "(error)",
	TokenString:       "(string)",
	TokenNumber:       "(number)",
	TokenBoolean:      "(boolean)",
	TokenNull:         "(null)",
	TokenName:         "(name)",
	TokenNamespace:    "(namespace)",
	TokenURL:          "(url)",
	TokenTemplate:     "(template)",
	TokenBracketOpen:  "[",
	TokenBracketClose: "]",
	TokenBraceOpen:    "{",
	TokenBraceClose:   "}",
	TokenParenOpen:    "(",
	TokenParenClose:   ")",
	TokenComma:        ",",
	TokenColon:        ":",
	TokenQuestion:     "?",
	TokenSlash:        "/",
	TokenAssign:       "=",
	TokenArrow:        "=>",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenMult:         "*",
	TokenDiv:          "/",
	TokenMod:          "%",
	TokenEqual:        "===",
	TokenNotEqual:     "!==",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
}

// String returns a string representation of the token type.
func (tt TokenType) String() string {
	if int(tt) < len(tokenNames) && tokenNames[tt] != "" {
		return tokenNames[tt]
	}
	return "(unknown)"
}

// TemplatePart is one piece of a template: literal text followed by an
// optional embedded expression, given as a byte range of the source.
type TemplatePart struct {
	Text      string // unescaped literal text
	ExprStart int    // -1 when the part has no expression
	ExprEnd   int
}

// Token represents a lexical token.
type Token struct {
	Type     TokenType      // Type of the token
	Value    string         // Literal value of the token
	Position int            // Starting offset in the source
	End      int            // Offset just past the token
	Parts    []TemplatePart // TokenTemplate only
	Spaced   bool           // whitespace precedes the token
}

// symbols1 maps single-character symbols to token types.
var symbols1 = [...]TokenType{
	'[': TokenBracketOpen,
	']': TokenBracketClose,
	'{': TokenBraceOpen,
	'}': TokenBraceClose,
	'(': TokenParenOpen,
	')': TokenParenClose,
	',': TokenComma,
	':': TokenColon,
	'?': TokenQuestion,
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMult,
	'%': TokenMod,
	'=': TokenAssign,
	'<': TokenLess,
	'>': TokenGreater,
}

// runesTokenType pairs a continuation with its token type.
type runesTokenType struct {
	rest string
	tt   TokenType
}

// symbolsN maps multi-character symbols to token types, keyed by their
// first character. Longer continuations are listed first.
var symbolsN = [...][]runesTokenType{
	'=': {{"==", TokenEqual}, {">", TokenArrow}},
	'!': {{"==", TokenNotEqual}},
	'<': {{"=", TokenLessEqual}},
	'>': {{"=", TokenGreaterEqual}},
}

const (
	symbol1Count = rune(len(symbols1))
	symbolNCount = rune(len(symbolsN))
)

// lookupSymbol1 returns the token type for a single-character symbol.
// Returns 0 if the rune is not a valid symbol.
func lookupSymbol1(r rune) TokenType {
	if r < 0 || r >= symbol1Count {
		return 0
	}
	return symbols1[r]
}

// lookupSymbolN returns the possible multi-character symbols starting with r.
func lookupSymbolN(r rune) []runesTokenType {
	if r < 0 || r >= symbolNCount {
		return nil
	}
	return symbolsN[r]
}

// lookupKeyword returns the token type for a keyword.
// Returns 0 if the string is not a recognized keyword.
func lookupKeyword(s string) TokenType {
	switch s {
	case "true", "false":
		return TokenBoolean
	case "null":
		return TokenNull
	default:
		return 0
	}
}
