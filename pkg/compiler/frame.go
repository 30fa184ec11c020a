package compiler

import (
	"fmt"
	"strings"
)

// ActivationRecord is the stack layout of one function. Parameters occupy
// the argument block from offset 0 in declaration order; locals follow in
// the order they first appear in the body, nested blocks included.
//
// At run time the frame pointer R2 addresses offset 0. The caller's copy of
// the argument block sits above the saved frame pointer and return address,
// at FrameSize()+4.
type ActivationRecord struct {
	Function   string
	Decl       NodeID
	Params     []NodeID
	Locals     []NodeID
	Offsets    map[NodeID]int
	ArgsSize   int
	LocalsSize int

	names map[NodeID]string
}

// FrameSize is the number of bytes the prologue reserves below the saved
// frame pointer.
func (ar *ActivationRecord) FrameSize() int { return ar.ArgsSize + ar.LocalsSize }

// Offset returns the frame offset of a Param or local VarDecl node.
func (ar *ActivationRecord) Offset(decl NodeID) (int, bool) {
	off, ok := ar.Offsets[decl]
	return off, ok
}

// Frames holds one record per function, keyed by name.
type Frames struct {
	order  []*ActivationRecord
	byName map[string]*ActivationRecord
}

// Lookup returns the record for the named function.
func (f *Frames) Lookup(name string) (*ActivationRecord, bool) {
	ar, ok := f.byName[name]
	return ar, ok
}

// All returns the records in declaration order.
func (f *Frames) All() []*ActivationRecord { return f.order }

func (f *Frames) Len() int { return len(f.order) }

func (f *Frames) String() string {
	var sb strings.Builder
	for _, ar := range f.order {
		fmt.Fprintf(&sb, "%s: args %d locals %d frame %d\n", ar.Function, ar.ArgsSize, ar.LocalsSize, ar.FrameSize())
		for _, id := range ar.Params {
			fmt.Fprintf(&sb, "  param %-12s +%d\n", ar.nameOf(id), ar.Offsets[id])
		}
		for _, id := range ar.Locals {
			fmt.Fprintf(&sb, "  local %-12s +%d\n", ar.nameOf(id), ar.Offsets[id])
		}
	}
	return sb.String()
}

func (ar *ActivationRecord) nameOf(id NodeID) string {
	if name, ok := ar.names[id]; ok {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

// BuildFrames lays out an activation record for every function in tree.
// Two functions with the same name yield ErrDuplicateFrame.
func BuildFrames(tree *Tree, syms *SymbolTable) (*Frames, error) {
	frames := &Frames{byName: make(map[string]*ActivationRecord)}
	for _, id := range tree.Children(tree.Root) {
		n := tree.Node(id)
		if n.Kind != KindFunctionDecl {
			continue
		}
		if _, exists := frames.byName[n.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFrame, n.Name)
		}
		ar := buildFrame(tree, syms, id)
		frames.order = append(frames.order, ar)
		frames.byName[n.Name] = ar
	}
	return frames, nil
}

func buildFrame(tree *Tree, syms *SymbolTable, fn NodeID) *ActivationRecord {
	ar := &ActivationRecord{
		Function: tree.Node(fn).Name,
		Decl:     fn,
		Offsets:  make(map[NodeID]int),
		names:    make(map[NodeID]string),
	}

	for _, param := range tree.Params(fn) {
		ar.Params = append(ar.Params, param)
		ar.Offsets[param] = ar.ArgsSize
		ar.names[param] = tree.Node(param).Name
		ar.ArgsSize += declType(tree, syms, param).Size()
	}

	body := tree.Body(fn)
	if body == NoNode {
		return ar
	}
	tree.Walk(body, func(id NodeID) {
		if tree.Node(id).Kind != KindVarDecl {
			return
		}
		ar.Locals = append(ar.Locals, id)
		ar.Offsets[id] = ar.ArgsSize + ar.LocalsSize
		ar.names[id] = tree.Node(id).Name
		ar.LocalsSize += declType(tree, syms, id).Size()
	})
	return ar
}

// declType prefers the collected symbol's type and falls back to the
// declared type name for declarations that lost a collision.
func declType(tree *Tree, syms *SymbolTable, decl NodeID) Type {
	if sym := tree.Node(decl).Sym; sym != NoSymbol && syms != nil {
		return syms.Symbol(sym).Type
	}
	return typeFromToken(tree.Node(decl).TypeName)
}
