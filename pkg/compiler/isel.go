package compiler

import (
	"fmt"

	"sprig/pkg/config"
	"sprig/pkg/isa"
)

// Register roles used by every emitted sequence.
const (
	regAcc   = isa.R0 // expression results, return values
	regAddr  = isa.R1 // effective addresses, right operands
	regFrame = isa.R2 // frame pointer
	regTmp   = isa.R3 // scratch
)

type pendingCall struct {
	at   int // index of the CALL instruction
	sym  SymbolID
	name string
}

// selector lowers a checked tree to a flat isa.Program.
type selector struct {
	tree   *Tree
	syms   *SymbolTable
	frames *Frames
	prog   *isa.Program

	globals map[SymbolID]isa.GlobalSlot
	entries map[SymbolID]int
	calls   []pendingCall
	frame   *ActivationRecord
}

// Execute performs instruction selection with the default entry function.
func Execute(tree *Tree, syms *SymbolTable, frames *Frames) (*isa.Program, error) {
	return ExecuteEntry(tree, syms, frames, config.DefaultEntry)
}

// ExecuteEntry lowers tree to a Program. The startup code runs the
// non-constant global initialisers in source order, calls entry when such a
// function exists and halts; function bodies follow. Any Error node or
// unresolved reference yields ErrInternal.
func ExecuteEntry(tree *Tree, syms *SymbolTable, frames *Frames, entry string) (*isa.Program, error) {
	s := &selector{
		tree:    tree,
		syms:    syms,
		frames:  frames,
		prog:    &isa.Program{},
		globals: make(map[SymbolID]isa.GlobalSlot),
		entries: make(map[SymbolID]int),
	}
	if err := s.program(entry); err != nil {
		return nil, err
	}
	return s.prog, nil
}

// entryDecl finds the top-level function named entry.
func entryDecl(tree *Tree, entry string) (NodeID, bool) {
	for _, id := range tree.Children(tree.Root) {
		if n := tree.Node(id); n.Kind == KindFunctionDecl && n.Name == entry {
			return id, true
		}
	}
	return NoNode, false
}

func internalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

func (s *selector) emit(op isa.Opcode, args ...isa.Operand) int {
	s.prog.Code = append(s.prog.Code, isa.Instruction{Op: op, Args: args})
	return len(s.prog.Code) - 1
}

func (s *selector) here() int { return len(s.prog.Code) }

// jump emits a branch whose target is filled in later by patch.
func (s *selector) jump(op isa.Opcode) int {
	return s.emit(op, isa.Target(-1))
}

func (s *selector) patch(at, target int) {
	s.prog.Code[at].Args[0].Value = target
}

func (s *selector) program(entry string) error {
	s.layoutGlobals()

	for _, id := range s.tree.Children(s.tree.Root) {
		n := s.tree.Node(id)
		switch n.Kind {
		case KindVarDecl:
			if len(n.Children) == 0 || s.isConstant(n.Children[0]) {
				continue
			}
			if err := s.expr(n.Children[0]); err != nil {
				return err
			}
			if err := s.storeSym(n.Sym); err != nil {
				return err
			}
		case KindFunctionDecl:
		case KindError:
			return internalf("error node at %s", n.Pos)
		default:
			return internalf("unexpected %s at top level", n.Kind)
		}
	}

	if fn, ok := entryDecl(s.tree, entry); ok && len(s.tree.Params(fn)) > 0 {
		return fmt.Errorf("%w: %s", ErrEntryParams, entry)
	}
	if sym, ok := s.syms.Lookup(entry); ok && sym.Kind == SymFunc {
		at := s.jump(isa.OpCALL)
		s.calls = append(s.calls, pendingCall{at: at, sym: sym.ID, name: sym.Name})
	}
	s.emit(isa.OpHLT)

	for _, id := range s.tree.Children(s.tree.Root) {
		if s.tree.Node(id).Kind == KindFunctionDecl {
			if err := s.function(id); err != nil {
				return err
			}
		}
	}

	for _, c := range s.calls {
		target, ok := s.entries[c.sym]
		if !ok {
			return internalf("call to %s has no body", c.name)
		}
		s.patch(c.at, target)
		s.prog.Code[c.at].Args[0].Name = c.name
	}
	return nil
}

// layoutGlobals assigns data-segment offsets in declaration order and
// writes constant initialisers into the data image.
func (s *selector) layoutGlobals() {
	offset := 0
	for _, sym := range s.syms.Globals() {
		slot := isa.GlobalSlot{Name: sym.Name, Offset: offset, Size: sym.Type.Size()}
		s.globals[sym.ID] = slot
		s.prog.Globals = append(s.prog.Globals, slot)
		offset += slot.Size

		value := make([]byte, slot.Size)
		if init := s.tree.Children(sym.Decl); len(init) == 1 {
			if v, ok := s.constant(init[0]); ok {
				value[0] = byte(v)
				if slot.Size == 2 {
					value[1] = byte(v >> 8)
				}
			}
		}
		s.prog.Data = append(s.prog.Data, value...)
	}
}

func (s *selector) isConstant(id NodeID) bool {
	_, ok := s.constant(id)
	return ok
}

// constant evaluates literal initialisers, including a negated integer.
func (s *selector) constant(id NodeID) (int64, bool) {
	n := s.tree.Node(id)
	switch n.Kind {
	case KindIntLit, KindCharLit, KindBoolLit:
		return n.Value, true
	case KindUnary:
		if child := s.tree.Node(n.Children[0]); n.Op == MINUS && child.Kind == KindIntLit {
			return -child.Value, true
		}
	}
	return 0, false
}

func (s *selector) function(id NodeID) error {
	n := s.tree.Node(id)
	if n.Sym == NoSymbol {
		return internalf("function %s was not collected", n.Name)
	}
	ar, ok := s.frames.Lookup(n.Name)
	if !ok {
		return internalf("no activation record for %s", n.Name)
	}
	s.frame = ar
	defer func() { s.frame = nil }()

	s.entries[n.Sym] = s.here()
	s.prog.Funcs = append(s.prog.Funcs, isa.FuncEntry{Name: n.Name, Index: s.here()})

	s.prologue(ar)

	body := s.tree.Body(id)
	if body == NoNode {
		return internalf("function %s has no body", n.Name)
	}
	if err := s.stmt(body); err != nil {
		return err
	}
	s.epilogue()
	return nil
}

// prologue saves the caller's frame pointer, reserves the frame and copies
// the caller's argument block into the parameter slots.
func (s *selector) prologue(ar *ActivationRecord) {
	size := ar.FrameSize()
	s.emit(isa.OpPUSH, isa.RegOp(regFrame))
	s.emit(isa.OpLDSP, isa.RegOp(regTmp))
	s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Imm(size))
	s.emit(isa.OpSUB, isa.RegOp(regTmp), isa.RegOp(regAddr))
	s.emit(isa.OpSTSP, isa.RegOp(regTmp))
	s.emit(isa.OpMOV, isa.RegOp(regFrame), isa.RegOp(regTmp))

	for _, param := range ar.Params {
		off := ar.Offsets[param]
		typ := declType(s.tree, s.syms, param)
		s.frameAddr(size + 4 + off)
		s.emit(loadOp(typ), isa.RegOp(regAcc), isa.RegOp(regAddr))
		s.frameAddr(off)
		s.emit(storeOp(typ), isa.RegOp(regAddr), isa.RegOp(regAcc))
	}
}

// epilogue releases the frame and returns. R0 is left untouched.
func (s *selector) epilogue() {
	s.emit(isa.OpMOV, isa.RegOp(regTmp), isa.RegOp(regFrame))
	s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Imm(s.frame.FrameSize()))
	s.emit(isa.OpADD, isa.RegOp(regTmp), isa.RegOp(regAddr))
	s.emit(isa.OpSTSP, isa.RegOp(regTmp))
	s.emit(isa.OpPOP, isa.RegOp(regFrame))
	s.emit(isa.OpRET)
}

func loadOp(t Type) isa.Opcode {
	if t.IsWord() {
		return isa.OpLD
	}
	return isa.OpLDB
}

func storeOp(t Type) isa.Opcode {
	if t.IsWord() {
		return isa.OpST
	}
	return isa.OpSTB
}

// frameAddr leaves FP+off in R1.
func (s *selector) frameAddr(off int) {
	s.emit(isa.OpMOV, isa.RegOp(regAddr), isa.RegOp(regFrame))
	s.emit(isa.OpLDI, isa.RegOp(regTmp), isa.Imm(off))
	s.emit(isa.OpADD, isa.RegOp(regAddr), isa.RegOp(regTmp))
}

// addr leaves the address of a variable symbol in R1 and returns its type.
func (s *selector) addr(id SymbolID) (Type, error) {
	if id == NoSymbol {
		return TypeInvalid, internalf("unresolved symbol")
	}
	sym := s.syms.Symbol(id)
	switch sym.Kind {
	case SymGlobal:
		slot, ok := s.globals[id]
		if !ok {
			return TypeInvalid, internalf("global %s has no slot", sym.Name)
		}
		s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Global(slot.Offset, slot.Name))
	case SymParam, SymLocal:
		if s.frame == nil {
			return TypeInvalid, internalf("%s %s referenced outside a function", sym.Kind, sym.Name)
		}
		off, ok := s.frame.Offset(sym.Decl)
		if !ok {
			return TypeInvalid, internalf("%s %s has no frame slot in %s", sym.Kind, sym.Name, s.frame.Function)
		}
		s.frameAddr(off)
	default:
		return TypeInvalid, internalf("%s is a %s, not a variable", sym.Name, sym.Kind)
	}
	return sym.Type, nil
}

// storeSym writes R0 to the variable. R0 is preserved.
func (s *selector) storeSym(id SymbolID) error {
	typ, err := s.addr(id)
	if err != nil {
		return err
	}
	s.emit(storeOp(typ), isa.RegOp(regAddr), isa.RegOp(regAcc))
	return nil
}

func (s *selector) stmt(id NodeID) error {
	n := s.tree.Node(id)
	switch n.Kind {
	case KindBlock:
		for _, child := range n.Children {
			if err := s.stmt(child); err != nil {
				return err
			}
		}

	case KindVarDecl:
		if len(n.Children) == 1 {
			if err := s.expr(n.Children[0]); err != nil {
				return err
			}
		} else {
			s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(0))
		}
		return s.storeSym(n.Sym)

	case KindAssign:
		if err := s.expr(n.Children[1]); err != nil {
			return err
		}
		return s.storeSym(s.tree.Node(n.Children[0]).Sym)

	case KindExprStmt:
		return s.expr(n.Children[0])

	case KindIf:
		if err := s.condition(n.Children[0]); err != nil {
			return err
		}
		skipThen := s.jump(isa.OpJZ)
		if err := s.stmt(n.Children[1]); err != nil {
			return err
		}
		if len(n.Children) == 2 {
			s.patch(skipThen, s.here())
			return nil
		}
		skipElse := s.jump(isa.OpJMP)
		s.patch(skipThen, s.here())
		if err := s.stmt(n.Children[2]); err != nil {
			return err
		}
		s.patch(skipElse, s.here())

	case KindWhile:
		top := s.here()
		if err := s.condition(n.Children[0]); err != nil {
			return err
		}
		exit := s.jump(isa.OpJZ)
		if err := s.stmt(n.Children[1]); err != nil {
			return err
		}
		s.emit(isa.OpJMP, isa.Target(top))
		s.patch(exit, s.here())

	case KindReturn:
		if len(n.Children) == 1 {
			if err := s.expr(n.Children[0]); err != nil {
				return err
			}
		}
		s.epilogue()

	case KindError:
		return internalf("error node at %s", n.Pos)

	default:
		return internalf("unexpected %s statement at %s", n.Kind, n.Pos)
	}
	return nil
}

// condition evaluates a bool expression and sets Z when it is false.
func (s *selector) condition(id NodeID) error {
	if err := s.expr(id); err != nil {
		return err
	}
	s.testZero()
	return nil
}

func (s *selector) testZero() {
	s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Imm(0))
	s.emit(isa.OpSUB, isa.RegOp(regAcc), isa.RegOp(regAddr))
}

// expr leaves the value of an expression in R0. The stack is balanced on
// exit; R1 and R3 are clobbered.
func (s *selector) expr(id NodeID) error {
	n := s.tree.Node(id)
	switch n.Kind {
	case KindIntLit, KindCharLit, KindBoolLit:
		s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(int(uint16(n.Value))))

	case KindIdent:
		typ, err := s.addr(n.Sym)
		if err != nil {
			return err
		}
		s.emit(loadOp(typ), isa.RegOp(regAcc), isa.RegOp(regAddr))

	case KindCall:
		return s.call(id)

	case KindUnary:
		if err := s.expr(n.Children[0]); err != nil {
			return err
		}
		switch n.Op {
		case MINUS:
			s.emit(isa.OpMOV, isa.RegOp(regAddr), isa.RegOp(regAcc))
			s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(0))
			s.emit(isa.OpSUB, isa.RegOp(regAcc), isa.RegOp(regAddr))
			s.truncate(n.Type)
		case NOT:
			s.testZero()
			s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(1))
			done := s.jump(isa.OpJZ)
			s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(0))
			s.patch(done, s.here())
		default:
			return internalf("unknown unary operator %s", n.Op)
		}

	case KindBinary:
		if n.Op == AND_LOGICAL || n.Op == OR_LOGICAL {
			return s.logical(id)
		}
		return s.binary(id)

	case KindError:
		return internalf("error node at %s", n.Pos)

	default:
		return internalf("unexpected %s expression at %s", n.Kind, n.Pos)
	}
	return nil
}

// call reserves the argument block, stores each argument at its parameter
// offset, calls and releases the block. The result is in R0.
func (s *selector) call(id NodeID) error {
	n := s.tree.Node(id)
	if n.Sym == NoSymbol {
		return internalf("unresolved call to %s", n.Name)
	}
	callee, ok := s.frames.Lookup(n.Name)
	if !ok || callee.Decl != s.syms.Symbol(n.Sym).Decl {
		return internalf("no activation record for %s", n.Name)
	}
	if len(callee.Params) != len(n.Children) {
		return internalf("call to %s with %d arguments, want %d", n.Name, len(n.Children), len(callee.Params))
	}

	if callee.ArgsSize > 0 {
		s.emit(isa.OpLDSP, isa.RegOp(regTmp))
		s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Imm(callee.ArgsSize))
		s.emit(isa.OpSUB, isa.RegOp(regTmp), isa.RegOp(regAddr))
		s.emit(isa.OpSTSP, isa.RegOp(regTmp))
	}
	for i, arg := range n.Children {
		if err := s.expr(arg); err != nil {
			return err
		}
		param := callee.Params[i]
		s.emit(isa.OpLDSP, isa.RegOp(regAddr))
		s.emit(isa.OpLDI, isa.RegOp(regTmp), isa.Imm(callee.Offsets[param]))
		s.emit(isa.OpADD, isa.RegOp(regAddr), isa.RegOp(regTmp))
		s.emit(storeOp(declType(s.tree, s.syms, param)), isa.RegOp(regAddr), isa.RegOp(regAcc))
	}

	at := s.jump(isa.OpCALL)
	s.calls = append(s.calls, pendingCall{at: at, sym: n.Sym, name: n.Name})

	if callee.ArgsSize > 0 {
		s.emit(isa.OpLDSP, isa.RegOp(regTmp))
		s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Imm(callee.ArgsSize))
		s.emit(isa.OpADD, isa.RegOp(regTmp), isa.RegOp(regAddr))
		s.emit(isa.OpSTSP, isa.RegOp(regTmp))
	}
	return nil
}

// truncate masks R0 to 8 bits after arithmetic on byte operands.
func (s *selector) truncate(t Type) {
	if t != TypeByte {
		return
	}
	s.emit(isa.OpLDI, isa.RegOp(regAddr), isa.Imm(0xFF))
	s.emit(isa.OpAND, isa.RegOp(regAcc), isa.RegOp(regAddr))
}

// operandType is the type comparisons and division are performed in.
func (s *selector) operandType(n *Node) Type {
	if t := s.tree.Node(n.Children[0]).Type; t != TypeUntypedInt {
		return t
	}
	return s.tree.Node(n.Children[1]).Type
}

func (s *selector) logical(id NodeID) error {
	n := s.tree.Node(id)
	// Branch taken on the short-circuit value: JZ for &&, JNZ for ||.
	short, result := isa.OpJZ, 0
	if n.Op == OR_LOGICAL {
		short, result = isa.OpJNZ, 1
	}

	var exits []int
	for _, operand := range n.Children {
		if err := s.expr(operand); err != nil {
			return err
		}
		s.testZero()
		exits = append(exits, s.jump(short))
	}
	s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(1-result))
	end := s.jump(isa.OpJMP)
	for _, at := range exits {
		s.patch(at, s.here())
	}
	s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(result))
	s.patch(end, s.here())
	return nil
}

// binary evaluates left into R1 and right into R0, then combines them.
func (s *selector) binary(id NodeID) error {
	n := s.tree.Node(id)
	if err := s.expr(n.Children[0]); err != nil {
		return err
	}
	s.emit(isa.OpPUSH, isa.RegOp(regAcc))
	if err := s.expr(n.Children[1]); err != nil {
		return err
	}
	s.emit(isa.OpPOP, isa.RegOp(regAddr))

	unsigned := s.operandType(n) != TypeInt && s.operandType(n) != TypeUntypedInt
	// Signed order is the sign of the difference, so operands more than
	// 32767 apart compare wrongly (-20000 < 20000 is false).
	less := isa.OpJN
	if unsigned {
		less = isa.OpJC
	}

	left, right := isa.RegOp(regAddr), isa.RegOp(regAcc)
	combine := func(op isa.Opcode) {
		s.emit(op, left, right)
		s.emit(isa.OpMOV, right, left)
		s.truncate(n.Type)
	}

	switch n.Op {
	case PLUS:
		combine(isa.OpADD)
	case MINUS:
		combine(isa.OpSUB)
	case STAR:
		combine(isa.OpMUL)
	case AND:
		combine(isa.OpAND)
	case PIPE:
		combine(isa.OpOR)
	case CARET:
		combine(isa.OpXOR)
	case SHL_OP:
		combine(isa.OpSHL)
	case SHR_OP:
		combine(isa.OpSHR)
	case SLASH:
		if unsigned {
			combine(isa.OpDIV)
		} else {
			combine(isa.OpIDIV)
		}
	case PERCENT:
		div := isa.OpIDIV
		if unsigned {
			div = isa.OpDIV
		}
		s.emit(isa.OpMOV, isa.RegOp(regTmp), left)
		s.emit(div, left, right)
		s.emit(isa.OpMUL, left, right)
		s.emit(isa.OpSUB, isa.RegOp(regTmp), left)
		s.emit(isa.OpMOV, right, isa.RegOp(regTmp))

	case EQUALS, NOT_EQ:
		branch := isa.OpJZ
		if n.Op == NOT_EQ {
			branch = isa.OpJNZ
		}
		s.emit(isa.OpSUB, left, right)
		s.setOnBranch(branch)
	case LESS:
		s.emit(isa.OpSUB, left, right)
		s.setOnBranch(less)
	case GREATER:
		s.emit(isa.OpSUB, right, left)
		s.setOnBranch(less)
	case LESS_EQ:
		s.emit(isa.OpSUB, right, left)
		s.clearOnBranch(less)
	case GREATER_EQ:
		s.emit(isa.OpSUB, left, right)
		s.clearOnBranch(less)

	default:
		return internalf("unknown binary operator %s", n.Op)
	}
	return nil
}

// setOnBranch leaves 1 in R0 when branch is taken on the current flags,
// 0 otherwise.
func (s *selector) setOnBranch(branch isa.Opcode) {
	s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(1))
	done := s.jump(branch)
	s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(0))
	s.patch(done, s.here())
}

// clearOnBranch leaves 0 in R0 when branch is taken, 1 otherwise.
func (s *selector) clearOnBranch(branch isa.Opcode) {
	s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(0))
	done := s.jump(branch)
	s.emit(isa.OpLDI, isa.RegOp(regAcc), isa.Imm(1))
	s.patch(done, s.here())
}
