package seron

import (
	"fmt"
	"strings"

	"its-hmny.dev/seronc/pkg/diagnostics"
)

// ----------------------------------------------------------------------------
// Seron Type Checker

// A recursive walk over the resolved AST with an explicit current scope.
//
// Every expression node must have a derivable type and every name must
// resolve to a compatible symbol. Type equality is structural: same kind plus
// recursively equal pointee/signature. The first mismatch is unrecoverable
// and stops the compilation, reporting the expected and actual types at the
// offending token; nothing after the checker may ever see an invalid type.

// Checks the whole program under 'root', which must have been resolved first.
func Check(root *Block, sink *diagnostics.Sink) error {
	checker := &checker{sink: sink}
	_, err := checker.check(root, root.Scope)
	return err
}

type checker struct {
	sink *diagnostics.Sink
	proc *ProcDecl // The procedure whose body is being checked, for returns
}

// Reports a mismatch between the derived and the wanted type at 'tok'.
func (c *checker) compare(got, want Type, tok Token) error {
	if got.Equals(want) {
		return nil
	}

	err := fmt.Errorf("invalid type %s, expected %s", got, want)
	c.sink.ReportAt(diagnostics.Error, tok.Span(), "Invalid type `%s`, expected `%s`", got, want)
	return err
}

func isInteger(ty Type) bool {
	return ty.Kind == TypeChar || ty.Kind == TypeInt || ty.Kind == TypeLong
}

// Derives the type of the node, failing on the first rule violation.
func (c *checker) check(node Node, scope *Scope) (Type, error) {
	switch n := node.(type) {

	case *LiteralExpr:
		return c.literal(n, scope)

	case *GroupingExpr:
		return c.check(n.Expr, scope)

	case *BinaryExpr:
		return c.binary(n, scope)

	case *UnaryExpr:
		return c.unary(n, scope)

	case *CallExpr:
		return c.call(n, scope)

	case *AssignExpr:
		if err := c.storable(n.Target, scope); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		target, err := c.check(n.Target, scope)
		if err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		value, err := c.check(n.Value, scope)
		if err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if err := c.compare(value, target, n.Op); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		return value, nil

	case *Block:
		for _, stmt := range n.Stmts {
			if _, err := c.check(stmt, n.Scope); err != nil {
				return Type{Kind: TypeInvalid}, err
			}
		}
		return Type{Kind: TypeVoid}, nil

	case *ProcDecl:
		if n.Body == nil {
			return Type{Kind: TypeVoid}, nil
		}
		previous := c.proc
		c.proc = n
		_, err := c.check(n.Body, scope)
		c.proc = previous
		return Type{Kind: TypeVoid}, err

	case *VarDecl:
		if n.Init == nil {
			return Type{Kind: TypeVoid}, nil
		}
		init, err := c.check(n.Init, scope)
		if err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if err := c.compare(init, n.Type, n.Op); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		return Type{Kind: TypeVoid}, nil

	case *IfStmt:
		cond, err := c.check(n.Condition, scope)
		if err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if !isInteger(cond) {
			c.sink.ReportAt(diagnostics.Error, n.Op.Span(), "Condition must be an integer, got `%s`", cond)
			return Type{Kind: TypeInvalid}, fmt.Errorf("condition must be an integer, got %s", cond)
		}
		if _, err := c.check(n.Then, scope); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if n.Else != nil {
			if _, err := c.check(n.Else, scope); err != nil {
				return Type{Kind: TypeInvalid}, err
			}
		}
		return Type{Kind: TypeVoid}, nil

	case *WhileStmt:
		cond, err := c.check(n.Condition, scope)
		if err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if !isInteger(cond) {
			c.sink.ReportAt(diagnostics.Error, n.Op.Span(), "Condition must be an integer, got `%s`", cond)
			return Type{Kind: TypeInvalid}, fmt.Errorf("condition must be an integer, got %s", cond)
		}
		if _, err := c.check(n.Body, scope); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		return Type{Kind: TypeVoid}, nil

	case *ReturnStmt:
		want := Type{Kind: TypeVoid}
		if c.proc != nil {
			want = c.proc.Type.Signature.Return
		}

		got := Type{Kind: TypeVoid}
		if n.Expr != nil {
			var err error
			if got, err = c.check(n.Expr, scope); err != nil {
				return Type{Kind: TypeInvalid}, err
			}
		}

		if err := c.compare(got, want, n.Op); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		return Type{Kind: TypeVoid}, nil

	case *TableDecl:
		return Type{Kind: TypeVoid}, nil
	}

	panic(fmt.Sprintf("cannot type-check node kind '%s'", node.Kind()))
}

// Rejects lvalues that name something without a frame slot: a bare identifier
// designates storage only when it resolves to a variable or a parameter.
func (c *checker) storable(node Node, scope *Scope) error {
	lit, ok := node.(*LiteralExpr)
	if !ok || lit.Literal != LiteralIdent {
		return nil
	}

	sym := scope.Lookup(lit.Op.Value)
	if sym != nil && sym.Kind == SymbolProcedure {
		c.sink.ReportAt(diagnostics.Error, lit.Op.Span(), "`%s` names a procedure, not a storage location", lit.Op.Value)
		return fmt.Errorf("'%s' names a procedure, not a storage location", lit.Op.Value)
	}
	return nil
}

func (c *checker) literal(lit *LiteralExpr, scope *Scope) (Type, error) {
	switch lit.Literal {

	case LiteralNumber:
		switch lit.Op.Width {
		case WidthChar:
			return Type{Kind: TypeChar}, nil
		case WidthLong:
			return Type{Kind: TypeLong}, nil
		}
		return Type{Kind: TypeInt}, nil

	case LiteralString:
		pointee := Type{Kind: TypeChar}
		return Type{Kind: TypePointer, Pointee: &pointee}, nil

	case LiteralIdent:
		sym := scope.Lookup(lit.Op.Value)
		if sym == nil {
			c.sink.ReportAt(diagnostics.Error, lit.Op.Span(), "Symbol `%s` does not exist", lit.Op.Value)
			return Type{Kind: TypeInvalid}, fmt.Errorf("symbol '%s' does not exist", lit.Op.Value)
		}
		return sym.Type, nil
	}

	panic("unknown literal kind")
}

func (c *checker) binary(binop *BinaryExpr, scope *Scope) (Type, error) {
	lhs, err := c.check(binop.Lhs, scope)
	if err != nil {
		return Type{Kind: TypeInvalid}, err
	}
	rhs, err := c.check(binop.Rhs, scope)
	if err != nil {
		return Type{Kind: TypeInvalid}, err
	}

	// pointer arithmetic: a pointer may be offset by an integer (this is what
	// index expressions lower to), the result stays the pointer type
	if (binop.BinOp == BinOpAdd || binop.BinOp == BinOpSub) &&
		lhs.Kind == TypePointer && isInteger(rhs) {
		return lhs, nil
	}

	if err := c.compare(rhs, lhs, binop.Op); err != nil {
		return Type{Kind: TypeInvalid}, err
	}

	switch binop.BinOp {
	case BinOpEq, BinOpNeq, BinOpLt, BinOpLtEq, BinOpGt, BinOpGtEq,
		BinOpLogOr, BinOpLogAnd:
		// comparisons and logical combinations represent bool as int
		return Type{Kind: TypeInt}, nil
	}

	return lhs, nil
}

func (c *checker) unary(unaryop *UnaryExpr, scope *Scope) (Type, error) {
	operand, err := c.check(unaryop.Operand, scope)
	if err != nil {
		return Type{Kind: TypeInvalid}, err
	}

	switch unaryop.UnaryOp {

	case UnaryNot, UnaryMinus:
		return operand, nil

	case UnaryDeref:
		if operand.Kind != TypePointer {
			c.sink.ReportAt(diagnostics.Error, unaryop.Op.Span(), "Cannot dereference `%s`", operand)
			return Type{Kind: TypeInvalid}, fmt.Errorf("cannot dereference %s", operand)
		}
		return *operand.Pointee, nil

	case UnaryAddrOf:
		if !isLvalue(unaryop.Operand) {
			c.sink.ReportAt(diagnostics.Error, unaryop.Op.Span(), "Cannot take the address of a non-lvalue")
			return Type{Kind: TypeInvalid}, fmt.Errorf("cannot take the address of a non-lvalue")
		}
		if err := c.storable(unaryop.Operand, scope); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		return Type{Kind: TypePointer, Pointee: &operand}, nil
	}

	panic("unknown unary operation")
}

func (c *checker) call(call *CallExpr, scope *Scope) (Type, error) {
	if call.Builtin == BuiltinAsm {
		return c.builtinAsm(call, scope)
	}

	callee, err := c.check(call.Callee, scope)
	if err != nil {
		return Type{Kind: TypeInvalid}, err
	}
	if callee.Kind != TypeProcedure {
		c.sink.ReportAt(diagnostics.Error, call.Op.Span(), "Callee must be a procedure, got `%s`", callee)
		return Type{Kind: TypeInvalid}, fmt.Errorf("callee must be a procedure, got %s", callee)
	}

	sig := callee.Signature
	if len(call.Args) != len(sig.Params) {
		c.sink.ReportAt(diagnostics.Error, call.Op.Span(),
			"Expected %d arguments, got %d", len(sig.Params), len(call.Args))
		return Type{Kind: TypeInvalid}, fmt.Errorf("expected %d arguments, got %d", len(sig.Params), len(call.Args))
	}

	for i, arg := range call.Args {
		ty, err := c.check(arg, scope)
		if err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if err := c.compare(ty, sig.Params[i].Type, arg.Location()); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
	}

	return sig.Return, nil
}

// Bespoke validation for the inline-assembly builtin: the first argument must
// be a string literal and its '{}' placeholder count must equal the remaining
// argument count; each remaining argument must name a variable or parameter
// so the generator can substitute its frame slot.
func (c *checker) builtinAsm(call *CallExpr, scope *Scope) (Type, error) {
	if len(call.Args) == 0 {
		c.sink.ReportAt(diagnostics.Error, call.Op.Span(), "Builtin `asm` needs a template argument")
		return Type{Kind: TypeInvalid}, fmt.Errorf("builtin asm needs a template argument")
	}

	template, ok := call.Args[0].(*LiteralExpr)
	if !ok || template.Literal != LiteralString {
		c.sink.ReportAt(diagnostics.Error, call.Op.Span(), "Builtin `asm` template must be a string literal")
		return Type{Kind: TypeInvalid}, fmt.Errorf("builtin asm template must be a string literal")
	}

	placeholders := strings.Count(template.Op.Value, "{}")
	if placeholders != len(call.Args)-1 {
		c.sink.ReportAt(diagnostics.Error, call.Op.Span(),
			"Builtin `asm` template has %d placeholders, got %d arguments", placeholders, len(call.Args)-1)
		return Type{Kind: TypeInvalid},
			fmt.Errorf("asm template has %d placeholders, got %d arguments", placeholders, len(call.Args)-1)
	}

	for _, arg := range call.Args[1:] {
		lit, ok := arg.(*LiteralExpr)
		if !ok || lit.Literal != LiteralIdent {
			c.sink.ReportAt(diagnostics.Error, arg.Location().Span(), "Builtin `asm` arguments must be identifiers")
			return Type{Kind: TypeInvalid}, fmt.Errorf("builtin asm arguments must be identifiers")
		}
		if _, err := c.check(lit, scope); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
		if err := c.storable(lit, scope); err != nil {
			return Type{Kind: TypeInvalid}, err
		}
	}

	return Type{Kind: TypeVoid}, nil
}
