package compiler

import "fmt"

// checker walks a collected tree, writes the Type annotation slots and
// reports every type error it finds. It never stops at the first one.
type checker struct {
	tree   *Tree
	syms   *SymbolTable
	diags  *Diagnostics
	result Type // result type of the function being checked
	errors int
}

// TypeCheck validates tree against syms, reporting to diags. The same tree
// checked twice yields the same diagnostics. The returned error wraps
// ErrType when at least one diagnostic was reported.
func TypeCheck(tree *Tree, syms *SymbolTable, diags *Diagnostics) error {
	c := &checker{tree: tree, syms: syms, diags: diags}
	for _, id := range tree.Children(tree.Root) {
		switch tree.Node(id).Kind {
		case KindVarDecl:
			c.varDecl(id)
		case KindFunctionDecl:
			c.functionDecl(id)
		}
	}
	if c.errors > 0 {
		return fmt.Errorf("%w: %d error(s)", ErrType, c.errors)
	}
	return nil
}

func (c *checker) report(id NodeID, format string, args ...any) {
	c.errors++
	c.diags.Report(TypeError, c.tree.Node(id).Pos, format, args...)
}

func (c *checker) functionDecl(id NodeID) {
	n := c.tree.Node(id)
	c.result = typeFromToken(n.TypeName)
	c.tree.setType(id, c.result)
	for _, param := range c.tree.Params(id) {
		c.tree.setType(param, typeFromToken(c.tree.Node(param).TypeName))
	}
	if body := c.tree.Body(id); body != NoNode {
		c.stmt(body)
	}
	c.result = TypeVoid
}

func (c *checker) varDecl(id NodeID) {
	n := c.tree.Node(id)
	declared := typeFromToken(n.TypeName)
	c.tree.setType(id, declared)
	if len(n.Children) == 0 {
		return
	}
	init := n.Children[0]
	if got := c.expr(init); !c.assignable(got, declared, init) {
		c.report(id, "Trying to instantiate variable with a literal of the wrong type")
	}
}

func (c *checker) stmt(id NodeID) {
	n := c.tree.Node(id)
	switch n.Kind {
	case KindVarDecl:
		c.varDecl(id)

	case KindBlock:
		for _, child := range n.Children {
			c.stmt(child)
		}

	case KindIf, KindWhile:
		if t := c.expr(n.Children[0]); t != TypeBool && t != TypeInvalid {
			c.report(n.Children[0], "Condition must be of type bool, found %s", t)
		}
		for _, child := range n.Children[1:] {
			c.stmt(child)
		}

	case KindReturn:
		switch {
		case len(n.Children) == 0 && c.result != TypeVoid:
			c.report(id, "Missing return value in a function returning %s", c.result)
		case len(n.Children) == 1:
			got := c.expr(n.Children[0])
			if c.result == TypeVoid {
				c.report(id, "Return with a value in a function without a result type")
			} else if !c.assignable(got, c.result, n.Children[0]) {
				c.report(id, "Return value does not match the function's return type")
			}
		}

	case KindAssign:
		target := c.tree.Node(n.Children[0])
		value := c.expr(n.Children[1])
		if target.Sym == NoSymbol {
			c.report(n.Children[0], "Use of undeclared identifier %s", target.Name)
			return
		}
		sym := c.syms.Symbol(target.Sym)
		if sym.Kind == SymFunc {
			c.report(n.Children[0], "Cannot assign to function %s", sym.Name)
			return
		}
		c.tree.setType(n.Children[0], sym.Type)
		if !c.assignable(value, sym.Type, n.Children[1]) {
			c.report(id, "Trying to assign a value of the wrong type to %s", sym.Name)
		}

	case KindExprStmt:
		c.expr(n.Children[0])

	case KindError:
	}
}

// assignable reports whether a value of type from, produced by node, may be
// stored into a slot of type to. Invalid operands were already reported.
func (c *checker) assignable(from, to Type, node NodeID) bool {
	switch {
	case from == TypeInvalid || to == TypeInvalid:
		return true
	case from == to:
		return to != TypeVoid
	case from == TypeUntypedInt && to == TypeInt:
		return true
	case from == TypeUntypedInt && to == TypeByte:
		return c.fitsByte(node)
	}
	return false
}

// fitsByte reports whether an untyped integer expression is known to fit a
// byte. Only literals are checked; other untyped expressions are truncated.
func (c *checker) fitsByte(id NodeID) bool {
	n := c.tree.Node(id)
	switch n.Kind {
	case KindIntLit:
		return n.Value <= 0xFF
	case KindUnary:
		if n.Op == MINUS {
			return c.tree.Node(n.Children[0]).Kind != KindIntLit || c.tree.Node(n.Children[0]).Value == 0
		}
	}
	return true
}

func isNumeric(t Type) bool {
	return t == TypeInt || t == TypeByte || t == TypeUntypedInt
}

// unify returns the common type of two operands, or false when they do not
// mix. An untyped literal adopts the other operand's type.
func (c *checker) unify(l, r Type, rightNode NodeID, leftNode NodeID) (Type, bool) {
	switch {
	case l == r:
		return l, true
	case l == TypeUntypedInt && c.assignable(l, r, leftNode):
		return r, true
	case r == TypeUntypedInt && c.assignable(r, l, rightNode):
		return l, true
	}
	return TypeInvalid, false
}

// expr computes, records and returns the type of an expression.
func (c *checker) expr(id NodeID) Type {
	t := c.exprType(id)
	c.tree.setType(id, t)
	return t
}

func (c *checker) exprType(id NodeID) Type {
	n := c.tree.Node(id)
	switch n.Kind {
	case KindIntLit:
		return TypeUntypedInt
	case KindCharLit:
		return TypeByte
	case KindBoolLit:
		return TypeBool

	case KindIdent:
		if n.Sym == NoSymbol {
			c.report(id, "Use of undeclared identifier %s", n.Name)
			return TypeInvalid
		}
		sym := c.syms.Symbol(n.Sym)
		if sym.Kind == SymFunc {
			c.report(id, "%s is a function, not a value", n.Name)
			return TypeInvalid
		}
		return sym.Type

	case KindCall:
		return c.call(id)

	case KindUnary:
		operand := c.expr(n.Children[0])
		if operand == TypeInvalid {
			return TypeInvalid
		}
		switch n.Op {
		case MINUS:
			if !isNumeric(operand) {
				c.report(id, "Operator - requires a numeric operand")
				return TypeInvalid
			}
			return operand
		case NOT:
			if operand != TypeBool {
				c.report(id, "Operator ! requires a bool operand")
				return TypeInvalid
			}
			return TypeBool
		}

	case KindBinary:
		return c.binary(id)
	}
	return TypeInvalid
}

func (c *checker) call(id NodeID) Type {
	n := c.tree.Node(id)
	argTypes := make([]Type, len(n.Children))
	for i, arg := range n.Children {
		argTypes[i] = c.expr(arg)
	}
	if n.Sym == NoSymbol {
		c.report(id, "Use of undeclared identifier %s", n.Name)
		return TypeInvalid
	}
	sym := c.syms.Symbol(n.Sym)
	if sym.Kind != SymFunc {
		c.report(id, "%s is not a function", n.Name)
		return TypeInvalid
	}
	params := c.tree.Params(sym.Decl)
	if len(params) != len(argTypes) {
		c.report(id, "Wrong number of arguments in call to %s: want %d, got %d", n.Name, len(params), len(argTypes))
		return sym.Type
	}
	for i, param := range params {
		want := typeFromToken(c.tree.Node(param).TypeName)
		if !c.assignable(argTypes[i], want, n.Children[i]) {
			c.report(n.Children[i], "Argument %d of the wrong type in call to %s", i+1, n.Name)
		}
	}
	return sym.Type
}

func (c *checker) binary(id NodeID) Type {
	n := c.tree.Node(id)
	op := n.Op
	left, right := n.Children[0], n.Children[1]
	l, r := c.expr(left), c.expr(right)
	if l == TypeInvalid || r == TypeInvalid {
		return TypeInvalid
	}

	switch op {
	case AND_LOGICAL, OR_LOGICAL:
		if l != TypeBool || r != TypeBool {
			c.report(id, "Operator %s requires bool operands", opText(op))
			return TypeInvalid
		}
		return TypeBool

	case EQUALS, NOT_EQ:
		if _, ok := c.unify(l, r, right, left); !ok || l == TypeVoid {
			c.report(id, "Operands of %s have mismatched types %s and %s", opText(op), l, r)
			return TypeInvalid
		}
		return TypeBool

	case LESS, LESS_EQ, GREATER, GREATER_EQ:
		if _, ok := c.unify(l, r, right, left); !ok || !isNumeric(l) {
			c.report(id, "Operands of %s have mismatched types %s and %s", opText(op), l, r)
			return TypeInvalid
		}
		return TypeBool
	}

	t, ok := c.unify(l, r, right, left)
	if !ok || !isNumeric(t) {
		c.report(id, "Operands of %s have mismatched types %s and %s", opText(op), l, r)
		return TypeInvalid
	}
	return t
}

// opText maps an operator token back to its source spelling.
func opText(op TokenType) string {
	switch op {
	case PLUS:
		return "+"
	case MINUS:
		return "-"
	case STAR:
		return "*"
	case SLASH:
		return "/"
	case PERCENT:
		return "%"
	case AND:
		return "&"
	case PIPE:
		return "|"
	case CARET:
		return "^"
	case SHL_OP:
		return "<<"
	case SHR_OP:
		return ">>"
	case AND_LOGICAL:
		return "&&"
	case OR_LOGICAL:
		return "||"
	case EQUALS:
		return "=="
	case NOT_EQ:
		return "!="
	case LESS:
		return "<"
	case LESS_EQ:
		return "<="
	case GREATER:
		return ">"
	case GREATER_EQ:
		return ">="
	case NOT:
		return "!"
	}
	return op.String()
}
