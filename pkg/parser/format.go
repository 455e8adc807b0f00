package parser

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sandrolain/gorigami/pkg/types"
)

// Format returns source text for a code tree. Parsing the result yields a
// tree that evaluates to the same values.
//
// Compiled trees format the same way as parsed ones: every reference prints
// as its key.
func Format(n *types.Node) string {
	var sb strings.Builder
	format(&sb, n)
	return sb.String()
}

func format(sb *strings.Builder, n *types.Node) {
	if n == nil {
		return
	}

	switch n.Op {
	case types.OpLiteral:
		formatLiteral(sb, n.Value)

	case types.OpScope:
		sb.WriteString("{}")

	case types.OpUndetermined, types.OpReference, types.OpInherited, types.OpExternal, types.OpGlobal:
		sb.WriteString(n.Key)

	case types.OpCall:
		formatOperand(sb, n.Operands[0])
		if len(n.Operands) > 1 && isTemplateStrings(n.Operands[1]) {
			formatTemplate(sb, n.Operands[1].Value.([]string), n.Operands[2:])
			return
		}
		sb.WriteByte('(')
		formatList(sb, n.Operands[1:])
		sb.WriteByte(')')

	case types.OpTraverse:
		head := n.Operands[0]
		formatOperand(sb, head)
		for i, key := range n.Operands[1:] {
			if i > 0 || head.Op != types.OpGlobal {
				sb.WriteByte('/')
			}
			formatKey(sb, key)
		}

	case types.OpUnpack:
		formatOperand(sb, n.Operands[0])
		sb.WriteByte('/')

	case types.OpLambda:
		if n.Params == nil {
			sb.WriteByte('=')
		} else {
			sb.WriteByte('(')
			sb.WriteString(strings.Join(n.Params, ", "))
			sb.WriteString(") => ")
		}
		format(sb, n.Body)

	case types.OpObject, types.OpTree:
		formatEntries(sb, n.Entries)

	case types.OpArray:
		sb.WriteByte('[')
		formatList(sb, n.Operands)
		sb.WriteByte(']')

	case types.OpConcat:
		strs := make([]string, 0, len(n.Operands)+1)
		var exprs []*types.Node
		text := ""
		for _, o := range n.Operands {
			if s, ok := o.Value.(string); ok && o.Op == types.OpLiteral {
				text += s
				continue
			}
			strs = append(strs, text)
			exprs = append(exprs, o)
			text = ""
		}
		strs = append(strs, text)
		formatTemplate(sb, strs, exprs)

	case types.OpHTTP, types.OpHTTPS:
		if n.Op == types.OpHTTP {
			sb.WriteString("http://")
		} else {
			sb.WriteString("https://")
		}
		for i, key := range n.Operands {
			if i > 0 {
				sb.WriteByte('/')
			}
			if s, ok := key.Value.(string); ok {
				sb.WriteString(s)
			}
		}

	case types.OpConditional:
		formatOperand(sb, n.Operands[0])
		sb.WriteString(" ? ")
		format(sb, n.Operands[1])
		sb.WriteString(" : ")
		format(sb, n.Operands[2])

	default:
		if n.Op.IsOperator() && len(n.Operands) == 2 {
			formatOperand(sb, n.Operands[0])
			sb.WriteByte(' ')
			sb.WriteString(operatorString(n.Op))
			sb.WriteByte(' ')
			formatOperand(sb, n.Operands[1])
		}
	}
}

// formatOperand wraps compound operands in parentheses.
func formatOperand(sb *strings.Builder, n *types.Node) {
	switch {
	case n.Op.IsOperator(), n.Op == types.OpConditional, n.Op == types.OpLambda:
		sb.WriteByte('(')
		format(sb, n)
		sb.WriteByte(')')
	case n.Op == types.OpLiteral:
		if f, ok := n.Value.(float64); ok && f < 0 {
			sb.WriteByte('(')
			format(sb, n)
			sb.WriteByte(')')
			return
		}
		format(sb, n)
	default:
		format(sb, n)
	}
}

func formatList(sb *strings.Builder, nodes []*types.Node) {
	for i, n := range nodes {
		if i > 0 {
			sb.WriteString(", ")
		}
		format(sb, n)
	}
}

func formatKey(sb *strings.Builder, key *types.Node) {
	if s, ok := key.Value.(string); ok && key.Op == types.OpLiteral && isName(s) {
		sb.WriteString(s)
		return
	}
	sb.WriteByte('(')
	format(sb, key)
	sb.WriteByte(')')
}

func formatEntries(sb *strings.Builder, entries []types.Entry) {
	sb.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(' ')
		bare := isName(strings.TrimSuffix(e.Key, "/"))
		if e.Value.Op == types.OpInherited && e.Value.Key == e.Key && !e.Getter && bare {
			sb.WriteString(e.Key)
			continue
		}
		if bare {
			sb.WriteString(e.Key)
		} else {
			formatLiteral(sb, e.Key)
		}
		if e.Getter {
			sb.WriteString(" = ")
		} else {
			sb.WriteString(": ")
		}
		format(sb, e.Value)
	}
	if len(entries) > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteByte('}')
}

func formatTemplate(sb *strings.Builder, strs []string, exprs []*types.Node) {
	sb.WriteByte('`')
	for i, s := range strs {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "`", "\\`")
		s = strings.ReplaceAll(s, "${", "\\${")
		sb.WriteString(s)
		if i < len(exprs) {
			sb.WriteString("${")
			format(sb, exprs[i])
			sb.WriteByte('}')
		}
	}
	sb.WriteByte('`')
}

func formatLiteral(sb *strings.Builder, v interface{}) {
	switch v := v.(type) {
	case string:
		sb.WriteString(quote(v))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		sb.WriteString(strconv.FormatBool(v))
	case types.Null:
		sb.WriteString("null")
	case []string:
		formatTemplate(sb, v, nil)
	default:
		sb.WriteString(quote(types.Literal(v).Fragment()))
	}
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// isName reports whether s lexes as a single bare name.
func isName(s string) bool {
	if s == "" || lookupKeyword(s) > 0 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	if !isNameStart(r) {
		return false
	}
	for _, r := range s {
		if !isNameChar(r) {
			return false
		}
	}
	return true
}

func isTemplateStrings(n *types.Node) bool {
	if n.Op != types.OpLiteral {
		return false
	}
	_, ok := n.Value.([]string)
	return ok
}

func operatorString(op types.Op) string {
	switch op {
	case types.OpAdd:
		return "+"
	case types.OpSubtract:
		return "-"
	case types.OpMultiply:
		return "*"
	case types.OpDivide:
		return "/"
	case types.OpRemainder:
		return "%"
	case types.OpEqual:
		return "==="
	case types.OpNotEqual:
		return "!=="
	case types.OpLess:
		return "<"
	case types.OpLessEqual:
		return "<="
	case types.OpGreater:
		return ">"
	case types.OpGreaterEqual:
		return ">="
	}
	return op.String()
}
