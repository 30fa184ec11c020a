package compiler

// Collision records a declaration that reused a name already declared in
// the same scope. The first declaration stays registered.
type Collision struct {
	Name   string
	First  NodeID
	Second NodeID
	Pos    Pos
}

// collector is the symbol-collection pass: one forward walk that declares
// every variable, parameter and function and resolves every identifier
// against the scope active at its use.
type collector struct {
	tree       *Tree
	syms       *SymbolTable
	function   string
	collisions []Collision
}

// Collect builds the symbol table for tree and annotates declaration,
// identifier and call nodes with their symbols. Function names are hoisted
// so calls may precede the callee; variables are visible from their
// declaration onward.
func Collect(tree *Tree) (*SymbolTable, []Collision) {
	c := &collector{tree: tree, syms: NewSymbolTable()}

	for _, id := range tree.Children(tree.Root) {
		if n := tree.Node(id); n.Kind == KindFunctionDecl {
			c.declare(id, n.Name, typeFromToken(n.TypeName), SymFunc)
		}
	}

	for _, id := range tree.Children(tree.Root) {
		switch tree.Node(id).Kind {
		case KindVarDecl:
			c.varDecl(id, SymGlobal)
		case KindFunctionDecl:
			c.functionDecl(id)
		}
	}
	return c.syms, c.collisions
}

func (c *collector) declare(id NodeID, name string, typ Type, kind SymbolKind) {
	sym, err := c.syms.Declare(name, typ, id, kind, c.function)
	if err != nil {
		first := c.syms.Symbol(sym)
		c.collisions = append(c.collisions, Collision{
			Name:   name,
			First:  first.Decl,
			Second: id,
			Pos:    c.tree.Node(id).Pos,
		})
		return
	}
	c.tree.setSym(id, sym)
}

func (c *collector) varDecl(id NodeID, kind SymbolKind) {
	n := c.tree.Node(id)
	// The initialiser is resolved before the name is in scope.
	for _, init := range n.Children {
		c.expr(init)
	}
	c.declare(id, n.Name, typeFromToken(n.TypeName), kind)
}

func (c *collector) functionDecl(id NodeID) {
	n := c.tree.Node(id)
	c.function = n.Name
	c.syms.EnterScope()
	for _, param := range c.tree.Params(id) {
		p := c.tree.Node(param)
		c.declare(param, p.Name, typeFromToken(p.TypeName), SymParam)
	}
	// The body block shares the function scope with the parameters.
	if body := c.tree.Body(id); body != NoNode {
		for _, stmt := range c.tree.Children(body) {
			c.stmt(stmt)
		}
	}
	c.syms.ExitScope()
	c.function = ""
}

func (c *collector) stmt(id NodeID) {
	n := c.tree.Node(id)
	switch n.Kind {
	case KindVarDecl:
		c.varDecl(id, SymLocal)
	case KindBlock:
		c.syms.EnterScope()
		for _, child := range n.Children {
			c.stmt(child)
		}
		c.syms.ExitScope()
	case KindIf:
		c.expr(n.Children[0])
		for _, branch := range n.Children[1:] {
			c.stmt(branch)
		}
	case KindWhile:
		c.expr(n.Children[0])
		c.stmt(n.Children[1])
	case KindReturn, KindExprStmt:
		for _, child := range n.Children {
			c.expr(child)
		}
	case KindAssign:
		c.expr(n.Children[0])
		c.expr(n.Children[1])
	case KindError:
	}
}

func (c *collector) expr(id NodeID) {
	n := c.tree.Node(id)
	switch n.Kind {
	case KindIdent, KindCall:
		if sym, ok := c.syms.Lookup(n.Name); ok {
			c.tree.setSym(id, sym.ID)
		}
		for _, arg := range n.Children {
			c.expr(arg)
		}
	case KindUnary, KindBinary:
		for _, child := range n.Children {
			c.expr(child)
		}
	case KindIntLit, KindCharLit, KindBoolLit, KindError:
	}
}
