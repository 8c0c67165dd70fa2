package seron

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ----------------------------------------------------------------------------
// Debug printers

// The printers in this file back the '--dump-tokens' and '--dump-ast' debug
// switches of the driver. They render to any io.Writer so tests can capture
// the output; color handling degrades automatically on non-terminals.

var (
	printKeyword  = color.New(color.FgRed)
	printSemantic = color.New(color.FgBlue)
	printOperator = color.New(color.FgMagenta)
	printIdent    = color.New(color.FgMagenta)
	printDim      = color.New(color.FgHiBlack)
)

// Writes the token stream one token per line as 'line:column kind(value)'.
func FprintTokens(w io.Writer, tokens []Token) {
	for _, tok := range tokens {
		fmt.Fprintf(w, "%s ", printDim.Sprintf("%d:%d", tok.Line, tok.Column))
		fmt.Fprint(w, string(tok.Kind))

		switch {
		case tok.Value != "":
			fmt.Fprint(w, printDim.Sprintf("(%s)", tok.Value))
		case tok.Kind == TokenNumber:
			fmt.Fprint(w, printDim.Sprintf("(%d:%s)", tok.Number, tok.Width))
		}

		fmt.Fprintln(w)
	}
}

// Pretty-prints the AST, one node per line, indented by 'spacing' dots per
// nesting level.
func Fprint(w io.Writer, root Node, spacing int) {
	pre := func(node Node, depth int, _ any) {
		fmt.Fprint(w, printDim.Sprint(strings.Repeat("⋅", depth*spacing)))
		printNode(w, node)
	}
	Traverse(root, pre, nil, nil)
}

func printNode(w io.Writer, node Node) {
	switch n := node.(type) {

	case *Block:
		printSemantic.Fprintln(w, "block")

	case *GroupingExpr:
		printSemantic.Fprintln(w, "grouping")

	case *IfStmt:
		printKeyword.Fprintln(w, "if")

	case *WhileStmt:
		printKeyword.Fprintln(w, "while")

	case *ForStmt:
		printKeyword.Fprintln(w, "for")

	case *ReturnStmt:
		printKeyword.Fprint(w, "return")
		if n.Expr == nil {
			printIdent.Fprint(w, " (no-expr)")
		}
		fmt.Fprintln(w)

	case *BinaryExpr:
		printOperator.Fprintln(w, string(n.BinOp))

	case *UnaryExpr:
		printOperator.Fprintln(w, string(n.UnaryOp))

	case *CallExpr:
		if n.Builtin != BuiltinNone {
			printOperator.Fprintf(w, "call builtin: %s\n", n.Builtin)
		} else {
			printOperator.Fprintln(w, "call")
		}

	case *IndexExpr:
		printOperator.Fprintln(w, "index")

	case *AssignExpr:
		printOperator.Fprintln(w, "assign")

	case *ProcDecl:
		printKeyword.Fprint(w, "proc: ")
		printIdent.Fprint(w, n.Ident.Value)

		params := make([]string, 0, len(n.Type.Signature.Params))
		for _, param := range n.Type.Signature.Params {
			params = append(params, param.Ident)
		}
		printIdent.Fprintf(w, "(%s)", strings.Join(params, ", "))

		if n.Body == nil {
			printIdent.Fprint(w, " (no-body)")
		}
		fmt.Fprintln(w)

	case *VarDecl:
		printKeyword.Fprint(w, "vardecl: ")
		printIdent.Fprintf(w, "%s: %s", n.Ident.Value, n.Type)
		if n.Init == nil {
			printIdent.Fprint(w, " (no-init)")
		}
		fmt.Fprintln(w)

	case *TableDecl:
		printKeyword.Fprint(w, "table: ")
		printIdent.Fprintln(w, n.Ident.Value)

	case *LiteralExpr:
		switch n.Literal {
		case LiteralString:
			printKeyword.Fprint(w, "string: ")
			printIdent.Fprintln(w, n.Op.Value)
		case LiteralIdent:
			printKeyword.Fprint(w, "ident: ")
			printIdent.Fprintln(w, n.Op.Value)
		case LiteralNumber:
			printKeyword.Fprint(w, "number: ")
			printIdent.Fprint(w, n.Op.Number)
			if n.Op.Width != WidthAny {
				printIdent.Fprintf(w, " (%s)", n.Op.Width)
			}
			fmt.Fprintln(w)
		}

	default:
		panic(fmt.Sprintf("unexpected node kind '%s'", node.Kind()))
	}
}
