package seron_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"its-hmny.dev/seronc/pkg/diagnostics"
	"its-hmny.dev/seronc/pkg/seron"
)

// Parses, lowers and resolves a source expected to be well formed.
func resolveSource(t *testing.T, src string) (*seron.Block, *seron.ScopeTable) {
	t.Helper()

	root := parseSource(t, src)
	seron.Lower(root)

	sink := &diagnostics.Sink{Source: src, Path: "test.sn", Out: &bytes.Buffer{}}
	table, err := seron.Resolve(root, sink)
	require.NoError(t, err)
	return root, table
}

func TestResolveScopes(t *testing.T) {
	t.Run("Every block gets a scope", func(t *testing.T) {
		root, _ := resolveSource(t, "proc main() { { { } } }")

		seron.Traverse(root, func(node seron.Node, _ int, _ any) {
			if block, ok := node.(*seron.Block); ok {
				require.NotNil(t, block.Scope)
			}
		}, nil, nil)
	})

	t.Run("Scope chain mirrors lexical nesting", func(t *testing.T) {
		root, _ := resolveSource(t, "proc main() { { } }")

		body := root.Stmts[0].(*seron.ProcDecl).Body
		inner := body.Stmts[0].(*seron.Block)

		require.Same(t, body.Scope, inner.Scope.Parent())
		require.Same(t, root.Scope, body.Scope.Parent())
		require.Nil(t, root.Scope.Parent())
	})

	t.Run("Lookup walks the parent chain", func(t *testing.T) {
		root, _ := resolveSource(t, "proc main() { let x: int = 1; { } }")

		body := root.Stmts[0].(*seron.ProcDecl).Body
		inner := body.Stmts[1].(*seron.Block)

		require.NotNil(t, inner.Scope.Lookup("x"))
		require.NotNil(t, inner.Scope.Lookup("main"))
		require.Nil(t, inner.Scope.Lookup("missing"))

		// Get() does not walk parents, only Lookup() does
		require.Nil(t, inner.Scope.Get("x"))
	})

	t.Run("Inner declarations shadow outer ones", func(t *testing.T) {
		root, _ := resolveSource(t, "proc main() { let x: int = 1; { let x: long = 2l; } }")

		body := root.Stmts[0].(*seron.ProcDecl).Body
		inner := body.Stmts[1].(*seron.Block)

		require.Equal(t, seron.TypeLong, inner.Scope.Lookup("x").Type.Kind)
		require.Equal(t, seron.TypeInt, body.Scope.Lookup("x").Type.Kind)
	})

	t.Run("Procedures resolve from nested scopes", func(t *testing.T) {
		root, _ := resolveSource(t, "proc f() {} proc main() { { } }")

		sym := root.Stmts[1].(*seron.ProcDecl).Body.Scope.Lookup("f")
		require.NotNil(t, sym)
		require.Equal(t, seron.SymbolProcedure, sym.Kind)
		require.Equal(t, "f", sym.Label)
	})
}

func TestResolveErrors(t *testing.T) {
	test := func(src string) {
		root := parseSource(t, src)
		seron.Lower(root)

		sink := &diagnostics.Sink{Source: src, Path: "test.sn", Out: &bytes.Buffer{}}
		_, err := seron.Resolve(root, sink)
		require.Error(t, err)
		require.GreaterOrEqual(t, sink.Errors(), 1)
	}

	// duplicate declarations in the same scope
	test("proc main() { let x: int = 1; let x: int = 2; }")
	test("proc main() { { let x: int = 1; let x: int = 2; } }")
	// duplicate procedures and duplicate parameter names
	test("proc f() {} proc f() {}")
	test("proc f(a: int, a: int) {}")
	// a parameter collides with a top-level local of the body
	test("proc f(a: int) { let a: int = 1; }")
}

func TestFrameLayout(t *testing.T) {
	t.Run("Parameters take 8 bytes each", func(t *testing.T) {
		root, _ := resolveSource(t, "proc add(a: int, b: int) int { return a + b; }")

		proc := root.Stmts[0].(*seron.ProcDecl)
		require.Equal(t, 16, proc.StackSize)
		require.Equal(t, 8, proc.Body.Scope.Get("a").Offset)
		require.Equal(t, 16, proc.Body.Scope.Get("b").Offset)
	})

	t.Run("Locals contribute their natural size, frame rounds up to 8", func(t *testing.T) {
		root, _ := resolveSource(t, "proc main(a: int) { let x: int = 1; let c: char = 0c; }")

		proc := root.Stmts[0].(*seron.ProcDecl)
		scope := proc.Body.Scope

		require.Equal(t, 8, scope.Get("a").Offset)
		require.Equal(t, 12, scope.Get("x").Offset) // 8 + 4
		require.Equal(t, 13, scope.Get("c").Offset) // 12 + 1
		require.Equal(t, 16, proc.StackSize)        // 13 rounded up
	})

	t.Run("Locals in nested and lowered blocks get slots", func(t *testing.T) {
		root, _ := resolveSource(t, `
			proc main() {
				for let i: int = 0, i < 3, i = i + 1 { let x: long = 0l; }
			}`)

		proc := root.Stmts[0].(*seron.ProcDecl)
		require.Equal(t, 16, proc.StackSize) // i (4, rounded with x) + x (8)

		wrapper := proc.Body.Stmts[0].(*seron.Block)
		require.Equal(t, 4, wrapper.Scope.Get("i").Offset)

		loop := wrapper.Stmts[1].(*seron.WhileStmt)
		require.Equal(t, 12, loop.Body.Scope.Get("x").Offset)
	})

	t.Run("Offsets never exceed the frame size", func(t *testing.T) {
		root, _ := resolveSource(t, `
			proc f(a: long, b: char) long {
				let x: long = a;
				if b { let y: int = 0; }
				return x;
			}`)

		proc := root.Stmts[0].(*seron.ProcDecl)
		seron.Traverse(proc, func(node seron.Node, _ int, _ any) {
			block, ok := node.(*seron.Block)
			if !ok {
				return
			}
			for _, entry := range []string{"a", "b", "x", "y"} {
				if sym := block.Scope.Get(entry); sym != nil {
					require.Greater(t, sym.Offset, 0)
					require.LessOrEqual(t, sym.Offset, proc.StackSize)
				}
			}
		}, nil, nil)
	})
}

func TestScopeTableDump(t *testing.T) {
	_, table := resolveSource(t, "proc main() { let x: int = 1; }")

	buffer := &bytes.Buffer{}
	table.Fprint(buffer)

	require.Contains(t, buffer.String(), "main")
	require.Contains(t, buffer.String(), "x: 4")
}
