package seron

import (
	"fmt"
	"strings"

	"its-hmny.dev/seronc/pkg/diagnostics"
)

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the seron language.
//
// Seron is a small statically typed imperative language compiled ahead of time
// to x86-64 assembly. A program is a flat list of declarations (procedures and
// tables); procedures contain blocks of statements; statements contain
// expressions. The compiler pipeline is: lexing (here in 'lexing.go'), parsing
// ('parsing.go'), lowering of surface constructs ('lowering.go'), scope and
// frame-layout resolution ('scopes.go'), type checking ('typechecking.go') and
// finally code generation (the 'x86' package).

// ----------------------------------------------------------------------------
// Tokens

type TokenKind string // Enum to manage the different kind of lexical token

const (
	TokenInvalid TokenKind = "invalid" // Used only for error checking and as a sentinel value

	TokenIdent  TokenKind = "identifier"
	TokenNumber TokenKind = "number"
	TokenString TokenKind = "string"

	TokenPlus      TokenKind = "plus"
	TokenMinus     TokenKind = "minus"
	TokenAsterisk  TokenKind = "asterisk"
	TokenSlash     TokenKind = "slash"
	TokenBang      TokenKind = "bang"
	TokenAmpersand TokenKind = "ampersand"
	TokenPipe      TokenKind = "pipe"

	TokenSemicolon TokenKind = "semicolon"
	TokenComma     TokenKind = "comma"
	TokenColon     TokenKind = "colon"
	TokenTick      TokenKind = "tick"

	TokenAssign TokenKind = "assign"
	TokenEq     TokenKind = "eq"
	TokenNeq    TokenKind = "neq"
	TokenLt     TokenKind = "lt"
	TokenLtEq   TokenKind = "lt-eq"
	TokenGt     TokenKind = "gt"
	TokenGtEq   TokenKind = "gt-eq"
	TokenLogOr  TokenKind = "log-or"
	TokenLogAnd TokenKind = "log-and"

	TokenLParen   TokenKind = "lparen"
	TokenRParen   TokenKind = "rparen"
	TokenLBrace   TokenKind = "lbrace"
	TokenRBrace   TokenKind = "rbrace"
	TokenLBracket TokenKind = "lbracket"
	TokenRBracket TokenKind = "rbracket"

	TokenKwProc   TokenKind = "proc"
	TokenKwLet    TokenKind = "let"
	TokenKwIf     TokenKind = "if"
	TokenKwElse   TokenKind = "else"
	TokenKwElsif  TokenKind = "elsif"
	TokenKwWhile  TokenKind = "while"
	TokenKwFor    TokenKind = "for"
	TokenKwReturn TokenKind = "return"
	TokenKwTable  TokenKind = "table"

	TokenTypeInt  TokenKind = "int"
	TokenTypeLong TokenKind = "long"
	TokenTypeChar TokenKind = "char"
	TokenTypeVoid TokenKind = "void"

	TokenEof TokenKind = "eof"
)

type NumberWidth string // Enum to manage the width tag attached to number literals

const (
	WidthAny  NumberWidth = "any" // No explicit suffix, adapts to int during checking
	WidthChar NumberWidth = "char"
	WidthInt  NumberWidth = "int"
	WidthLong NumberWidth = "long"
)

// A single lexical token with its source location.
//
// Tokens are produced on demand by the Lexer and stored by value inside the
// AST leaves they originate, so that every later pass can point a diagnostic
// back at the exact piece of source it is complaining about.
type Token struct {
	Kind   TokenKind
	Value  string      // Identifier text or string contents, otherwise ""
	Number int64       // Numeric payload, only meaningful for number literals
	Width  NumberWidth // Width tag of a number literal (char/int/long/any)

	Offset, Length int // Absolute byte offset into the source and span length
	Line, Column   int // 1-based position of the first byte
}

// Returns the token's source span in the shape the diagnostics printer wants.
func (t Token) Span() diagnostics.Span {
	return diagnostics.Span{Offset: t.Offset, Length: t.Length, Line: t.Line, Column: t.Column}
}

// ----------------------------------------------------------------------------
// Types

type TypeKind string // Enum to manage the different kind of seron type

const (
	TypeInvalid TypeKind = "invalid" // Reserved for failure states, never reaches codegen

	TypeVoid      TypeKind = "void"
	TypeChar      TypeKind = "char"
	TypeInt       TypeKind = "int"
	TypeLong      TypeKind = "long"
	TypePointer   TypeKind = "pointer"
	TypeProcedure TypeKind = "procedure"
	TypeTable     TypeKind = "table"
)

// Upper bound on the parameters of one procedure, exceeding it is a parse error.
const MaxParamCount = 64

// A seron type. Pointer types own their pointee, procedure types own their
// signature; both live for the whole compilation alongside the AST.
type Type struct {
	Kind      TypeKind
	Pointee   *Type      // Set when Kind == TypePointer
	Signature *Signature // Set when Kind == TypeProcedure
	Table     string     // Referenced table name when Kind == TypeTable
}

// A single parameter (or table field): its name and its type.
type Param struct {
	Ident string
	Type  Type
}

// The parameter list plus return type of a procedure type.
type Signature struct {
	Params []Param
	Return Type
}

// Reports whether two types are structurally equal: same kind, recursively
// equal pointees and, for procedures, pairwise equal signatures.
func (t Type) Equals(other Type) bool {
	if t.Kind != other.Kind {
		return false
	}

	switch t.Kind {
	case TypePointer:
		if t.Pointee == nil || other.Pointee == nil {
			return t.Pointee == other.Pointee
		}
		return t.Pointee.Equals(*other.Pointee)

	case TypeProcedure:
		lhs, rhs := t.Signature, other.Signature
		if len(lhs.Params) != len(rhs.Params) {
			return false
		}
		for i := range lhs.Params {
			if !lhs.Params[i].Type.Equals(rhs.Params[i].Type) {
				return false
			}
		}
		return lhs.Return.Equals(rhs.Return)

	case TypeTable:
		return t.Table == other.Table
	}

	return true
}

// Renders the type the way it is spelled in source (pointers as '*T',
// procedures as 'proc(T, ...) R').
func (t Type) String() string {
	switch t.Kind {
	case TypePointer:
		if t.Pointee == nil {
			return "*?"
		}
		return "*" + t.Pointee.String()

	case TypeProcedure:
		params := make([]string, 0, len(t.Signature.Params))
		for _, param := range t.Signature.Params {
			params = append(params, param.Type.String())
		}
		return fmt.Sprintf("proc(%s) %s", strings.Join(params, ", "), t.Signature.Return)

	case TypeTable:
		return t.Table
	}

	return string(t.Kind)
}

// Returns the natural size in bytes of a value of the given type kind.
// Pointers and procedure addresses are word sized, like long.
func SizeOf(kind TypeKind) int {
	switch kind {
	case TypeChar:
		return 1
	case TypeInt:
		return 4
	case TypeLong, TypePointer, TypeProcedure:
		return 8
	}
	panic(fmt.Sprintf("no machine size for type '%s'", kind))
}

// ----------------------------------------------------------------------------
// Abstract Syntax Tree

// Every AST node carries the token it originates from, so that the passes
// after parsing can anchor their diagnostics; 'Kind' drives the generic
// dispatch machinery below without reflection.
type Node interface {
	Location() Token
	Kind() NodeKind
}

type NodeKind string // Enum to manage the different AST node variants

const (
	NodeLiteral  NodeKind = "literal"
	NodeGrouping NodeKind = "grouping"
	NodeBinary   NodeKind = "binop"
	NodeUnary    NodeKind = "unaryop"
	NodeCall     NodeKind = "call"
	NodeIndex    NodeKind = "index"
	NodeAssign   NodeKind = "assign"
	NodeBlock    NodeKind = "block"
	NodeProc     NodeKind = "proc"
	NodeVarDecl  NodeKind = "vardecl"
	NodeIf       NodeKind = "if"
	NodeWhile    NodeKind = "while"
	NodeFor      NodeKind = "for"
	NodeReturn   NodeKind = "return"
	NodeTable    NodeKind = "table"
)

/* Expressions */

type LiteralKind string // Enum to distinguish the payload of a LiteralExpr

const (
	LiteralNumber LiteralKind = "number"
	LiteralString LiteralKind = "string"
	LiteralIdent  LiteralKind = "ident"
)

type LiteralExpr struct { // A number, string or identifier leaf
	Op      Token
	Literal LiteralKind
}

type GroupingExpr struct { // A parenthesized expression, semantically transparent
	Op   Token
	Expr Node
}

type BinOpKind string // Enum to manage the operation of a BinaryExpr

const (
	BinOpAdd BinOpKind = "add"
	BinOpSub BinOpKind = "sub"
	BinOpMul BinOpKind = "mul"
	BinOpDiv BinOpKind = "div"

	BinOpEq   BinOpKind = "eq"
	BinOpNeq  BinOpKind = "neq"
	BinOpLt   BinOpKind = "lt"
	BinOpLtEq BinOpKind = "lt-eq"
	BinOpGt   BinOpKind = "gt"
	BinOpGtEq BinOpKind = "gt-eq"

	BinOpBitOr  BinOpKind = "bitwise-or"
	BinOpBitAnd BinOpKind = "bitwise-and"
	BinOpLogOr  BinOpKind = "log-or"
	BinOpLogAnd BinOpKind = "log-and"
)

type BinaryExpr struct { // Combines the value of 2 expressions to produce a new value
	Op       Token
	BinOp    BinOpKind
	Lhs, Rhs Node
}

type UnaryOpKind string // Enum to manage the operation of a UnaryExpr

const (
	UnaryMinus  UnaryOpKind = "minus"
	UnaryNot    UnaryOpKind = "not"
	UnaryDeref  UnaryOpKind = "deref"
	UnaryAddrOf UnaryOpKind = "addrof"
)

type UnaryExpr struct { // Applies a prefix transformation to a single operand
	Op      Token
	UnaryOp UnaryOpKind
	Operand Node
}

type BuiltinKind string // Enum for the reserved builtin procedures

const (
	BuiltinNone BuiltinKind = ""
	BuiltinAsm  BuiltinKind = "asm" // Inline assembly with '{}' placeholders
)

type CallExpr struct { // Calls the procedure the callee evaluates to
	Op      Token
	Callee  Node // nil when Builtin != BuiltinNone
	Args    []Node
	Builtin BuiltinKind
}

type IndexExpr struct { // Surface form 'a[b]', lowered to *(a + b) before resolution
	Op          Token
	Expr, Index Node
}

type AssignExpr struct { // Stores the value into the storage the target designates
	Op            Token
	Target, Value Node
}

/* Statements and declarations */

type Block struct { // An ordered sequence of statements introducing a lexical scope
	Op    Token
	Stmts []Node
	Scope *Scope // Filled in by resolution, nil before
}

type ProcDecl struct { // A procedure declaration, possibly without a body (extern)
	Op, Ident Token
	Type      Type   // Always TypeProcedure, holds the signature
	Body      *Block // nil for an extern declaration
	StackSize int    // Frame size in bytes, precomputed by resolution
}

type VarDecl struct { // Declares a local, optionally with an initializer
	Op, Ident Token
	Type      Type
	Init      Node // nil when declared without a value
}

type IfStmt struct { // Conditional fork; elsif chains are nested into Else at parse time
	Op        Token
	Condition Node
	Then      *Block
	Else      Node // *Block, *IfStmt (from elsif) or nil
}

type WhileStmt struct { // Conditional iteration
	Op        Token
	Condition Node
	Body      *Block
}

type ForStmt struct { // Surface form, lowered to block+while before resolution
	Op        Token
	Init      *VarDecl
	Condition Node
	Step      Node
	Body      *Block
}

type ReturnStmt struct { // Jumps to the procedure epilogue, optionally with a value
	Op   Token
	Expr Node // nil for a bare 'return;'
}

type TableDecl struct { // A named field list, compile-time only
	Op, Ident Token
	Type      Type // Always TypeTable, naming this table
	Fields    []Param
}

func (n *LiteralExpr) Location() Token  { return n.Op }
func (n *GroupingExpr) Location() Token { return n.Op }
func (n *BinaryExpr) Location() Token   { return n.Op }
func (n *UnaryExpr) Location() Token    { return n.Op }
func (n *CallExpr) Location() Token     { return n.Op }
func (n *IndexExpr) Location() Token    { return n.Op }
func (n *AssignExpr) Location() Token   { return n.Op }
func (n *Block) Location() Token        { return n.Op }
func (n *ProcDecl) Location() Token     { return n.Op }
func (n *VarDecl) Location() Token      { return n.Op }
func (n *IfStmt) Location() Token       { return n.Op }
func (n *WhileStmt) Location() Token    { return n.Op }
func (n *ForStmt) Location() Token      { return n.Op }
func (n *ReturnStmt) Location() Token   { return n.Op }
func (n *TableDecl) Location() Token    { return n.Op }

func (n *LiteralExpr) Kind() NodeKind  { return NodeLiteral }
func (n *GroupingExpr) Kind() NodeKind { return NodeGrouping }
func (n *BinaryExpr) Kind() NodeKind   { return NodeBinary }
func (n *UnaryExpr) Kind() NodeKind    { return NodeUnary }
func (n *CallExpr) Kind() NodeKind     { return NodeCall }
func (n *IndexExpr) Kind() NodeKind    { return NodeIndex }
func (n *AssignExpr) Kind() NodeKind   { return NodeAssign }
func (n *Block) Kind() NodeKind        { return NodeBlock }
func (n *ProcDecl) Kind() NodeKind     { return NodeProc }
func (n *VarDecl) Kind() NodeKind      { return NodeVarDecl }
func (n *IfStmt) Kind() NodeKind       { return NodeIf }
func (n *WhileStmt) Kind() NodeKind    { return NodeWhile }
func (n *ForStmt) Kind() NodeKind      { return NodeFor }
func (n *ReturnStmt) Kind() NodeKind   { return NodeReturn }
func (n *TableDecl) Kind() NodeKind    { return NodeTable }

// ----------------------------------------------------------------------------
// Traversal

// A traversal callback: receives the visited node, its depth in the tree and
// the opaque user argument passed to Traverse/Dispatch.
type Visitor func(node Node, depth int, args any)

// Returns the children of a node in source order. Centralizing the child
// enumeration here keeps Traverse (and so the printer and Dispatch) and the
// resolver agreed on what "the tree" is.
func children(node Node) []Node {
	switch n := node.(type) {
	case *GroupingExpr:
		return []Node{n.Expr}
	case *BinaryExpr:
		return []Node{n.Lhs, n.Rhs}
	case *UnaryExpr:
		return []Node{n.Operand}
	case *CallExpr:
		kids := []Node{}
		if n.Callee != nil {
			kids = append(kids, n.Callee)
		}
		return append(kids, n.Args...)
	case *IndexExpr:
		return []Node{n.Expr, n.Index}
	case *AssignExpr:
		return []Node{n.Target, n.Value}
	case *Block:
		return n.Stmts
	case *ProcDecl:
		if n.Body == nil {
			return nil
		}
		return []Node{n.Body}
	case *VarDecl:
		if n.Init == nil {
			return nil
		}
		return []Node{n.Init}
	case *IfStmt:
		kids := []Node{n.Condition, n.Then}
		if n.Else != nil {
			kids = append(kids, n.Else)
		}
		return kids
	case *WhileStmt:
		return []Node{n.Condition, n.Body}
	case *ForStmt:
		return []Node{n.Init, n.Condition, n.Step, n.Body}
	case *ReturnStmt:
		if n.Expr == nil {
			return nil
		}
		return []Node{n.Expr}
	}
	return nil // literal and table nodes are leaves
}

// Walks the tree depth first. 'pre' fires before descending into a node's
// children, 'post' after; either may be nil. The depth counter starts at 0
// for the root and grows by one per nesting level.
func Traverse(root Node, pre, post Visitor, args any) {
	traverse(root, 0, pre, post, args)
}

func traverse(node Node, depth int, pre, post Visitor, args any) {
	if pre != nil {
		pre(node, depth, args)
	}
	for _, child := range children(node) {
		traverse(child, depth+1, pre, post, args)
	}
	if post != nil {
		post(node, depth, args)
	}
}

// One row of a Dispatch table: the callbacks to run when a node of the given
// kind is visited.
type DispatchEntry struct {
	Kind      NodeKind
	Pre, Post Visitor
}

// Same walk as Traverse, but only fires the callbacks registered for the
// visited node's kind. Nodes without an entry are still descended into.
func Dispatch(root Node, entries []DispatchEntry, args any) {
	lookup := map[NodeKind]DispatchEntry{}
	for _, entry := range entries {
		lookup[entry.Kind] = entry
	}

	pre := func(node Node, depth int, _ any) {
		if entry, found := lookup[node.Kind()]; found && entry.Pre != nil {
			entry.Pre(node, depth, args)
		}
	}
	post := func(node Node, depth int, _ any) {
		if entry, found := lookup[node.Kind()]; found && entry.Post != nil {
			entry.Post(node, depth, args)
		}
	}

	Traverse(root, pre, post, nil)
}
