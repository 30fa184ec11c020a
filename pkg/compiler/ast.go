package compiler

import (
	"fmt"
	"strings"
)

// Kind tags every syntax node. The set is closed: passes switch over it
// exhaustively and treat anything else as an internal error.
type Kind uint8

const (
	KindProgramDecl  Kind = iota // children: declarations, including Error nodes
	KindVarDecl                  // children: [init]; Name, TypeName
	KindFunctionDecl             // children: Param..., Block; Name, TypeName (EOF for none)
	KindParam                    // Name, TypeName
	KindBlock                    // children: statements
	KindIf                       // children: cond, then-block, [else block or If]
	KindWhile                    // children: cond, body
	KindReturn                   // children: [value]
	KindAssign                   // children: target Ident, value
	KindExprStmt                 // children: expr
	KindIntLit                   // Value
	KindCharLit                  // Value
	KindBoolLit                  // Value 0 or 1
	KindIdent                    // Name
	KindUnary                    // children: operand; Op
	KindBinary                   // children: left, right; Op
	KindCall                     // children: args; Name
	KindError                    // placeholder synthesised by recovery
)

var kindNames = [...]string{
	KindProgramDecl:  "ProgramDecl",
	KindVarDecl:      "VarDecl",
	KindFunctionDecl: "FunctionDecl",
	KindParam:        "Param",
	KindBlock:        "Block",
	KindIf:           "If",
	KindWhile:        "While",
	KindReturn:       "Return",
	KindAssign:       "Assign",
	KindExprStmt:     "ExprStmt",
	KindIntLit:       "IntLit",
	KindCharLit:      "CharLit",
	KindBoolLit:      "BoolLit",
	KindIdent:        "Ident",
	KindUnary:        "Unary",
	KindBinary:       "Binary",
	KindCall:         "Call",
	KindError:        "ERROR",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Type is the resolved type of a declaration or expression.
type Type uint8

const (
	TypeUnset      Type = iota // annotation slot not yet written
	TypeInvalid                // expression whose type could not be determined
	TypeVoid                   // function without a result
	TypeInt                    // 16-bit signed
	TypeByte                   // 8-bit unsigned
	TypeBool                   // 0 or 1, stored as a byte
	TypeUntypedInt             // integer literal before it meets a declared type
)

var typeNames = [...]string{
	TypeUnset:      "unset",
	TypeInvalid:    "invalid",
	TypeVoid:       "void",
	TypeInt:        "int",
	TypeByte:       "byte",
	TypeBool:       "bool",
	TypeUntypedInt: "untyped int",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Size returns the storage size in bytes.
func (t Type) Size() int {
	switch t {
	case TypeByte, TypeBool:
		return 1
	case TypeInt, TypeUntypedInt:
		return 2
	}
	return 0
}

// IsWord reports whether values of t are moved with LD/ST rather than LDB/STB.
func (t Type) IsWord() bool { return t.Size() == 2 }

func typeFromToken(tt TokenType) Type {
	switch tt {
	case INT:
		return TypeInt
	case BYTE:
		return TypeByte
	case BOOL:
		return TypeBool
	}
	return TypeVoid
}

// NodeID indexes Tree.Nodes. Cross references (symbols, activation
// records) hold NodeIDs rather than pointers.
type NodeID int32

const NoNode NodeID = -1

// Node is one syntax tree node. Which fields are meaningful depends on Kind.
type Node struct {
	Kind     Kind
	Pos      Pos
	Children []NodeID

	Name     string    // VarDecl, FunctionDecl, Param, Ident, Call
	Op       TokenType // Unary, Binary
	Value    int64     // IntLit, CharLit, BoolLit
	TypeName TokenType // declared type of VarDecl, Param, FunctionDecl

	// Annotation slots, each written at most once by later passes.
	Type Type
	Sym  SymbolID
}

// Tree owns every node of one compilation unit.
type Tree struct {
	Nodes []Node
	Root  NodeID
}

func newTree() *Tree {
	t := &Tree{}
	t.Root = t.add(Node{Kind: KindProgramDecl, Pos: Pos{Line: 1, Column: 1}})
	return t
}

func (t *Tree) add(n Node) NodeID {
	t.Nodes = append(t.Nodes, n)
	return NodeID(len(t.Nodes) - 1)
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) *Node { return &t.Nodes[id] }

// Children returns the ordered children of id.
func (t *Tree) Children(id NodeID) []NodeID { return t.Nodes[id].Children }

// Params returns the Param children of a FunctionDecl.
func (t *Tree) Params(fn NodeID) []NodeID {
	kids := t.Nodes[fn].Children
	if len(kids) == 0 {
		return nil
	}
	return kids[:len(kids)-1]
}

// Body returns the Block child of a FunctionDecl.
func (t *Tree) Body(fn NodeID) NodeID {
	kids := t.Nodes[fn].Children
	if len(kids) == 0 {
		return NoNode
	}
	return kids[len(kids)-1]
}

// setType writes the Type slot unless it already holds a value.
func (t *Tree) setType(id NodeID, typ Type) {
	if n := &t.Nodes[id]; n.Type == TypeUnset {
		n.Type = typ
	}
}

// setSym writes the Sym slot unless it already holds a value.
func (t *Tree) setSym(id NodeID, sym SymbolID) {
	if n := &t.Nodes[id]; n.Sym == NoSymbol {
		n.Sym = sym
	}
}

// Count returns how many nodes reachable from the root have kind k.
func (t *Tree) Count(k Kind) int {
	n := 0
	t.Walk(t.Root, func(id NodeID) {
		if t.Nodes[id].Kind == k {
			n++
		}
	})
	return n
}

// Walk visits id and its descendants in source order.
func (t *Tree) Walk(id NodeID, visit func(NodeID)) {
	visit(id)
	for _, c := range t.Nodes[id].Children {
		t.Walk(c, visit)
	}
}

// String renders the tree rooted at Root as an s-expression.
func (t *Tree) String() string {
	var sb strings.Builder
	t.sexpr(&sb, t.Root)
	return sb.String()
}

func (t *Tree) sexpr(sb *strings.Builder, id NodeID) {
	n := &t.Nodes[id]
	sb.WriteString("(")
	sb.WriteString(n.Kind.String())
	switch n.Kind {
	case KindVarDecl, KindParam, KindFunctionDecl:
		fmt.Fprintf(sb, " %s", n.Name)
		if n.TypeName != EOF {
			fmt.Fprintf(sb, " %s", typeFromToken(n.TypeName))
		}
	case KindIdent, KindCall:
		fmt.Fprintf(sb, " %s", n.Name)
	case KindIntLit, KindCharLit:
		fmt.Fprintf(sb, " %d", n.Value)
	case KindBoolLit:
		fmt.Fprintf(sb, " %t", n.Value != 0)
	case KindUnary, KindBinary:
		fmt.Fprintf(sb, " %s", n.Op)
	}
	for _, c := range n.Children {
		sb.WriteString(" ")
		t.sexpr(sb, c)
	}
	sb.WriteString(")")
}
