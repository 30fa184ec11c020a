package compiler

import (
	"fmt"
	"strings"
)

// SymbolKind says where a symbol's storage lives.
type SymbolKind uint8

const (
	SymGlobal SymbolKind = iota // data segment
	SymParam                    // activation record, argument block
	SymLocal                    // activation record, after the argument block
	SymFunc                     // code address
)

func (k SymbolKind) String() string {
	switch k {
	case SymGlobal:
		return "global"
	case SymParam:
		return "param"
	case SymLocal:
		return "local"
	case SymFunc:
		return "func"
	}
	return fmt.Sprintf("SymbolKind(%d)", int(k))
}

// SymbolID indexes SymbolTable.symbols; NoSymbol marks an unresolved slot.
type SymbolID int32

const NoSymbol SymbolID = 0

// ScopeID indexes SymbolTable.scopes. The program scope is 0.
type ScopeID int32

const (
	ProgramScope ScopeID = 0
	noScope      ScopeID = -1
)

type Symbol struct {
	ID       SymbolID
	Name     string
	Type     Type // variable type, or result type for functions
	Decl     NodeID
	Scope    ScopeID
	Kind     SymbolKind
	Function string // enclosing function for params and locals
}

type scope struct {
	parent ScopeID
	names  map[string]SymbolID
	order  []SymbolID
}

// SymbolTable is a tree of scopes. During a traversal the active scope is
// moved with EnterScope/ExitScope, which must be paired; Lookup resolves
// innermost-first from the active scope.
type SymbolTable struct {
	symbols []Symbol // index 0 is the NoSymbol placeholder
	scopes  []scope
	current ScopeID
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		symbols: []Symbol{{}},
		scopes:  []scope{{parent: noScope, names: make(map[string]SymbolID)}},
		current: ProgramScope,
	}
}

// EnterScope opens a new scope nested in the active one and activates it.
func (s *SymbolTable) EnterScope() ScopeID {
	s.scopes = append(s.scopes, scope{parent: s.current, names: make(map[string]SymbolID)})
	s.current = ScopeID(len(s.scopes) - 1)
	return s.current
}

// ExitScope reactivates the parent of the active scope. Exiting the program
// scope is a no-op.
func (s *SymbolTable) ExitScope() {
	if parent := s.scopes[s.current].parent; parent != noScope {
		s.current = parent
	}
}

// Current returns the active scope.
func (s *SymbolTable) Current() ScopeID { return s.current }

// Depth returns how many scopes enclose the active one.
func (s *SymbolTable) Depth() int {
	d := 0
	for id := s.current; s.scopes[id].parent != noScope; id = s.scopes[id].parent {
		d++
	}
	return d
}

// Declare registers name in the active scope. If the scope already holds
// the name, the existing symbol's id is returned with ErrCollision.
func (s *SymbolTable) Declare(name string, typ Type, decl NodeID, kind SymbolKind, function string) (SymbolID, error) {
	sc := &s.scopes[s.current]
	if existing, ok := sc.names[name]; ok {
		return existing, fmt.Errorf("%w: %q", ErrCollision, name)
	}
	id := SymbolID(len(s.symbols))
	s.symbols = append(s.symbols, Symbol{
		ID:       id,
		Name:     name,
		Type:     typ,
		Decl:     decl,
		Scope:    s.current,
		Kind:     kind,
		Function: function,
	})
	sc.names[name] = id
	sc.order = append(sc.order, id)
	return id, nil
}

// Lookup returns the symbol and whether it was found.
func (s *SymbolTable) Lookup(name string) (Symbol, bool) {
	for id := s.current; id != noScope; id = s.scopes[id].parent {
		if sym, ok := s.scopes[id].names[name]; ok {
			return s.symbols[sym], true
		}
	}
	return Symbol{}, false
}

// Symbol returns the symbol with the given id.
func (s *SymbolTable) Symbol(id SymbolID) Symbol { return s.symbols[id] }

// Len returns the number of declared symbols.
func (s *SymbolTable) Len() int { return len(s.symbols) - 1 }

// Globals returns the program-scope variables in declaration order.
func (s *SymbolTable) Globals() []Symbol {
	var out []Symbol
	for _, id := range s.scopes[ProgramScope].order {
		if sym := s.symbols[id]; sym.Kind == SymGlobal {
			out = append(out, sym)
		}
	}
	return out
}

// String returns a deterministically ordered dump of the table.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	for i, sc := range s.scopes {
		if i == 0 {
			sb.WriteString("Scope 0 (program):\n")
		} else {
			fmt.Fprintf(&sb, "Scope %d (parent %d):\n", i, sc.parent)
		}
		if len(sc.order) == 0 {
			sb.WriteString("  (empty)\n")
		}
		for _, id := range sc.order {
			sym := s.symbols[id]
			fmt.Fprintf(&sb, "  %-20s  %-6s %-5s decl %d\n", sym.Name, sym.Kind, sym.Type, sym.Decl)
		}
	}
	return sb.String()
}
