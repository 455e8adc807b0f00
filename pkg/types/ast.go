package types

import (
	"fmt"
	"strings"
)

// Op identifies the operation a code node performs.
//
// Ops form a closed set; the evaluator dispatches on them with an exact
// switch, so two different operations can never collide.
type Op uint8

// Operation tags.
const (
	OpLiteral Op = iota // scalar or static literal

	// References
	OpScope        // the current scope itself
	OpUndetermined // name not yet categorized as local or external
	OpReference    // plain lookup in the current scope
	OpInherited    // lookup in the parent of the current scope
	OpExternal     // cached lookup of a non-local name
	OpGlobal       // builtin namespace lookup (ns:)

	// Invocation
	OpCall     // head(args...), or traversal when the head is a tree
	OpTraverse // head/key/key
	OpUnpack   // value/

	// Constructors (operands are not evaluated eagerly)
	OpLambda // (params) => body
	OpObject // { key: value }
	OpTree   // { key = value }

	// Constructors (operands evaluated concurrently)
	OpArray  // [a, b]
	OpConcat // `text ${expr}`

	// Resources
	OpHTTP  // http://host/path
	OpHTTPS // https://host/path

	// Operators
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpRemainder
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpConditional // c ? a : b, branches evaluated lazily
)

var opNames = [...]string{
	OpLiteral:      "literal",
	OpScope:        "scope",
	OpUndetermined: "undetermined",
	OpReference:    "reference",
	OpInherited:    "inherited",
	OpExternal:     "external",
	OpGlobal:       "global",
	OpCall:         "call",
	OpTraverse:     "traverse",
	OpUnpack:       "unpack",
	OpLambda:       "lambda",
	OpObject:       "object",
	OpTree:         "tree",
	OpArray:        "array",
	OpConcat:       "concat",
	OpHTTP:         "http",
	OpHTTPS:        "https",
	OpAdd:          "add",
	OpSubtract:     "subtract",
	OpMultiply:     "multiply",
	OpDivide:       "divide",
	OpRemainder:    "remainder",
	OpEqual:        "equal",
	OpNotEqual:     "notEqual",
	OpLess:         "less",
	OpLessEqual:    "lessEqual",
	OpGreater:      "greater",
	OpGreaterEqual: "greaterEqual",
	OpConditional:  "conditional",
}

// String returns the name of the operation.
func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// IsReference reports whether the op looks up a name rather than computing
// a value from operands.
func (o Op) IsReference() bool {
	switch o {
	case OpUndetermined, OpReference, OpInherited, OpExternal, OpGlobal:
		return true
	}
	return false
}

// IsOperator reports whether the op is a binary operator.
func (o Op) IsOperator() bool {
	return o >= OpAdd && o <= OpGreaterEqual
}

// Null represents a null literal distinct from undefined (nil).
type Null struct{}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String returns "null".
func (Null) String() string {
	return "null"
}

// NullValue is the singleton value used for null.
var NullValue = Null{}

// Entry is one key/value pair of an object or tree constructor.
//
// Keys are static metadata: they are never evaluated.
type Entry struct {
	Key    string
	Value  *Node
	Getter bool // re-evaluated on every access ("key = value")
}

// Node is a node of the code tree.
//
// Only the fields relevant to Op are set. Static metadata (parameter names,
// entry keys, template strings) lives in dedicated fields or literal nodes and
// is never walked as an instruction.
type Node struct {
	Op       Op
	Value    interface{} // OpLiteral
	Key      string      // reference ops
	Operands []*Node     // evaluated children
	Params   []string    // OpLambda; nil means the implicit parameter
	Body     *Node       // OpLambda
	Entries  []Entry     // OpObject, OpTree
	Fallback *Node       // OpExternal: lookup used on a cache miss
	Cache    *Cache      // OpExternal, OpGlobal, OpLambda after compilation

	Location *Location
}

// ImplicitParam is the parameter name of a lambda declared without parameters.
const ImplicitParam = "_"

// RecurseKey is bound inside a lambda body to the lambda itself.
const RecurseKey = "@recurse"

// Literal returns a literal node.
func Literal(value interface{}) *Node {
	return &Node{Op: OpLiteral, Value: value}
}

// Reference returns a reference node of the given kind.
func Reference(op Op, key string) *Node {
	if !op.IsReference() {
		panic(fmt.Sprintf("types: %s is not a reference op", op))
	}
	return &Node{Op: op, Key: key}
}

// Instruction returns a node whose operands are evaluated before the op runs.
func Instruction(op Op, operands ...*Node) *Node {
	switch op {
	case OpLiteral, OpScope, OpLambda, OpObject, OpTree:
		panic(fmt.Sprintf("types: %s takes no operands", op))
	}
	if op.IsReference() {
		panic(fmt.Sprintf("types: %s takes no operands", op))
	}
	return &Node{Op: op, Operands: operands}
}

// Lambda returns a lambda node. A nil params slice declares the implicit
// parameter.
func Lambda(params []string, body *Node) *Node {
	return &Node{Op: OpLambda, Params: params, Body: body}
}

// Object returns an object (or, with op OpTree, a tree) constructor node.
func Object(op Op, entries ...Entry) *Node {
	if op != OpObject && op != OpTree {
		panic(fmt.Sprintf("types: %s is not a constructor op", op))
	}
	return &Node{Op: op, Entries: entries}
}

// At attaches a location to the node and returns it.
func (n *Node) At(loc *Location) *Node {
	n.Location = loc
	return n
}

// ParamNames returns the lambda's parameter names, resolving the implicit one.
func (n *Node) ParamNames() []string {
	if n.Params == nil {
		return []string{ImplicitParam}
	}
	return n.Params
}

// Fragment returns the source text of the node, or a reconstruction of its
// shape when the node carries no location.
func (n *Node) Fragment() string {
	if n == nil {
		return ""
	}
	if n.Location != nil {
		return n.Location.Fragment()
	}
	switch n.Op {
	case OpLiteral:
		return fmt.Sprint(n.Value)
	case OpScope:
		return "scope"
	}
	if n.Op.IsReference() {
		return n.Key
	}
	return n.Op.String()
}

// String returns a debug representation of the node.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	var sb strings.Builder
	n.dump(&sb)
	return sb.String()
}

func (n *Node) dump(sb *strings.Builder) {
	switch {
	case n.Op == OpLiteral:
		fmt.Fprintf(sb, "%#v", n.Value)
		return
	case n.Op == OpScope:
		sb.WriteString("[scope]")
		return
	case n.Op.IsReference():
		fmt.Fprintf(sb, "[%s %q]", n.Op, n.Key)
		return
	}
	sb.WriteString("[")
	sb.WriteString(n.Op.String())
	switch n.Op {
	case OpLambda:
		fmt.Fprintf(sb, " %v ", n.ParamNames())
		n.Body.dump(sb)
	case OpObject, OpTree:
		for _, e := range n.Entries {
			sb.WriteString(" ")
			sb.WriteString(e.Key)
			if e.Getter {
				sb.WriteString("=")
			} else {
				sb.WriteString(":")
			}
			e.Value.dump(sb)
		}
	default:
		for _, o := range n.Operands {
			sb.WriteString(" ")
			o.dump(sb)
		}
	}
	sb.WriteString("]")
}

// arenaChunkSize is the number of Node values pre-allocated per arena chunk.
const arenaChunkSize = 64

// NodeArena is a bump-pointer allocator for Node values.
//
// The parser allocates every node of one parse from a single arena, so a
// typical expression costs one chunk allocation instead of one per node.
// The arena stays alive as long as any node it returned is reachable.
//
// NodeArena is NOT thread-safe.
type NodeArena struct {
	chunks [][]Node
	pos    int
}

// NewNodeArena allocates an arena pre-warmed with one initial chunk.
func NewNodeArena() *NodeArena {
	return &NodeArena{
		chunks: [][]Node{make([]Node, arenaChunkSize)},
	}
}

// Alloc returns a pointer to a zero-valued node inside the arena with Op set.
func (a *NodeArena) Alloc(op Op) *Node {
	if a.pos >= arenaChunkSize {
		a.chunks = append(a.chunks, make([]Node, arenaChunkSize))
		a.pos = 0
	}
	n := &a.chunks[len(a.chunks)-1][a.pos]
	a.pos++
	n.Op = op
	return n
}
