package seron

import (
	"fmt"
	"io"

	"its-hmny.dev/seronc/pkg/diagnostics"
	"its-hmny.dev/seronc/pkg/utils"
)

// ----------------------------------------------------------------------------
// Symbols

type SymbolKind string // Enum to manage the different kind of symbol

const (
	SymbolInvalid   SymbolKind = "invalid"
	SymbolVariable  SymbolKind = "variable"
	SymbolParameter SymbolKind = "parameter"
	SymbolProcedure SymbolKind = "procedure"
)

// A named entity of the program: a local variable, a procedure parameter or a
// procedure. Variables and parameters carry the frame offset assigned by the
// layout phase (distance in bytes from the frame base, the generator emits
// '[rbp-offset]'); procedures carry their external label.
type Symbol struct {
	Kind   SymbolKind
	Type   Type
	Offset int    // Frame offset for variables/parameters, 0 before layout
	Label  string // External label for procedures
}

// ----------------------------------------------------------------------------
// Scopes

// A mapping from identifier to Symbol with a back-pointer to the lexically
// enclosing scope. Scopes form a tree mirroring the block nesting of the
// program; the parent reference is non-owning, all scopes are owned by the
// ScopeTable of the compilation.
type Scope struct {
	symbols utils.OrderedMap[string, *Symbol]
	parent  *Scope
}

// Returns the lexically enclosing scope, nil for the program scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Inserts a symbol into this scope. Within one scope names are unique, so
// inserting a duplicate fails.
func (s *Scope) Insert(name string, sym *Symbol) error {
	if _, found := s.symbols.Get(name); found {
		return fmt.Errorf("symbol '%s' already declared in this scope", name)
	}
	s.symbols.Set(name, sym)
	return nil
}

// Looks the name up in this scope only, nil when absent.
func (s *Scope) Get(name string) *Symbol {
	sym, found := s.symbols.Get(name)
	if !found {
		return nil
	}
	return sym
}

// Looks the name up starting in this scope and walking the parent chain
// outwards until found or exhausted; nil when no scope holds it.
func (s *Scope) Lookup(name string) *Symbol {
	for current := s; current != nil; current = current.parent {
		if sym := current.Get(name); sym != nil {
			return sym
		}
	}
	return nil
}

// The ordered collection owning every scope of one compilation; each block
// node holds a weak handle into it. The first scope is the program scope.
type ScopeTable struct {
	scopes []*Scope
}

// Appends a fresh scope with the given parent and returns it.
func (st *ScopeTable) append(parent *Scope) *Scope {
	scope := &Scope{parent: parent}
	st.scopes = append(st.scopes, scope)
	return scope
}

// Writes a dump of every scope: its index, its parent's index and its entries
// with their frame offsets (procedures show their type instead). Backs
// '--dump-symboltable'.
func (st *ScopeTable) Fprint(w io.Writer) {
	index := map[*Scope]int{}
	for i, scope := range st.scopes {
		index[scope] = i
	}

	for i, scope := range st.scopes {
		if scope.parent == nil {
			fmt.Fprintf(w, "----------------------- %d\n", i)
		} else {
			fmt.Fprintf(w, "----------------------- %d -> %d\n", i, index[scope.parent])
		}

		for _, entry := range scope.symbols.Entries() {
			switch entry.Value.Kind {
			case SymbolVariable, SymbolParameter:
				fmt.Fprintf(w, "%s: %d\n", entry.Key, entry.Value.Offset)
			case SymbolProcedure:
				fmt.Fprintf(w, "%s: %s\n", entry.Key, entry.Value.Type)
			}
		}
	}
	fmt.Fprintln(w, "-----------------------")
}

// ----------------------------------------------------------------------------
// Resolution

// Builds the scope tree of the program and precomputes the frame layout of
// every procedure.
//
// Phase A walks the tree depth first carrying the current parent scope: every
// block appends a scope to the table and records its handle, variable
// declarations insert 'variable' symbols into the current scope and procedure
// declarations insert 'procedure' symbols into their enclosing scope.
//
// Phase B visits every procedure: parameters are inserted into the body scope
// (8 bytes of frame each, in source order), then the whole body is walked so
// that every local (at any block depth, including blocks produced by
// lowering) gets its frame slot. Offsets grow downward from the frame base;
// the final frame size is rounded up to the next multiple of 8.
//
// Duplicate declarations in the same scope and duplicate parameter names are
// unrecoverable: the symbol structure must be consistent before any later
// pass runs, so the first such error stops resolution.
func Resolve(root *Block, sink *diagnostics.Sink) (*ScopeTable, error) {
	resolver := &resolver{table: &ScopeTable{}, sink: sink}

	if err := resolver.construct(root); err != nil {
		return nil, err
	}

	for _, stmt := range root.Stmts {
		proc, ok := stmt.(*ProcDecl)
		if !ok {
			continue
		}
		if err := resolver.layout(proc); err != nil {
			return nil, err
		}
	}

	return resolver.table, nil
}

type resolver struct {
	table *ScopeTable
	stack utils.Stack[*Scope] // The chain of open scopes during construction
	sink  *diagnostics.Sink
}

// Phase A, see Resolve.
func (r *resolver) construct(node Node) error {
	switch n := node.(type) {

	case *Block:
		parent, _ := r.stack.Top() // nil parent for the program scope
		n.Scope = r.table.append(parent)

		r.stack.Push(n.Scope)
		for _, stmt := range n.Stmts {
			if err := r.construct(stmt); err != nil {
				return err
			}
		}
		r.stack.Pop()
		return nil

	case *ProcDecl:
		scope, _ := r.stack.Top()
		sym := &Symbol{Kind: SymbolProcedure, Type: n.Type, Label: n.Ident.Value}

		if err := scope.Insert(n.Ident.Value, sym); err != nil {
			r.sink.ReportAt(diagnostics.Error, n.Ident.Span(), "Procedure `%s` already exists", n.Ident.Value)
			return err
		}

		if n.Body != nil {
			return r.construct(n.Body)
		}
		return nil

	case *VarDecl:
		scope, _ := r.stack.Top()
		sym := &Symbol{Kind: SymbolVariable, Type: n.Type}

		if err := scope.Insert(n.Ident.Value, sym); err != nil {
			r.sink.ReportAt(diagnostics.Error, n.Ident.Span(), "Variable `%s` already exists", n.Ident.Value)
			return err
		}

		if n.Init != nil {
			return r.construct(n.Init)
		}
		return nil
	}

	// every other node only matters for the blocks it may contain
	for _, child := range children(node) {
		if err := r.construct(child); err != nil {
			return err
		}
	}
	return nil
}

// Phase B, see Resolve.
func (r *resolver) layout(proc *ProcDecl) error {
	if proc.Body == nil {
		return nil
	}

	sig := proc.Type.Signature
	for _, param := range sig.Params {
		sym := &Symbol{Kind: SymbolParameter, Type: param.Type}

		if err := proc.Body.Scope.Insert(param.Ident, sym); err != nil {
			r.sink.ReportAt(diagnostics.Error, proc.Ident.Span(), "Parameter named `%s` already exists", param.Ident)
			return err
		}

		proc.StackSize += 8
		sym.Offset = proc.StackSize
	}

	r.layoutBlock(proc, proc.Body)

	if rem := proc.StackSize % 8; rem != 0 {
		proc.StackSize += 8 - rem
	}
	return nil
}

// Assigns a frame slot to every local declared anywhere under the block.
func (r *resolver) layoutBlock(proc *ProcDecl, block *Block) {
	for _, stmt := range block.Stmts {
		switch n := stmt.(type) {

		case *VarDecl:
			sym := block.Scope.Get(n.Ident.Value)
			proc.StackSize += SizeOf(n.Type.Kind)
			sym.Offset = proc.StackSize

		case *Block:
			r.layoutBlock(proc, n)

		case *IfStmt:
			r.layoutBlock(proc, n.Then)
			for tail := n.Else; tail != nil; {
				switch e := tail.(type) {
				case *Block:
					r.layoutBlock(proc, e)
					tail = nil
				case *IfStmt:
					r.layoutBlock(proc, e.Then)
					tail = e.Else
				}
			}

		case *WhileStmt:
			r.layoutBlock(proc, n.Body)
		}
	}
}
