package x86

import (
	"bytes"
	"fmt"
	"strings"

	"its-hmny.dev/seronc/pkg/seron"
)

// ----------------------------------------------------------------------------
// Code Generator

// Takes a resolved and type-checked seron AST and spits out NASM text.
//
// The generator walks the tree once, appending to two growable buffers: one
// for the '.data' section (string literals) and one for '.text'. Two emit
// routines exist: emit() computes a node's value into rax and returns its
// type, emitAddr() computes the effective address of an lvalue into rax and
// returns a pointer type wrapping the lvalue type. Everything the generator
// relies on (non-nil statement lists, scope handles, frame offsets, derivable
// types) was established by the earlier passes; a violation is a compiler bug
// and aborts generation.
type CodeGenerator struct {
	data, text bytes.Buffer

	labels  int // Monotonic counter for control-flow labels
	strings int // Monotonic counter for string literals in '.data'

	scope    *seron.Scope // The scope of the block being emitted
	annotate bool         // Interleave origin comments ('--asmdoc')
}

// Options of one generator run.
type Options struct {
	Annotate bool // Annotate the emitted assembly with origin comments
}

// Initializes and returns to the caller a brand new 'CodeGenerator' struct.
func NewCodeGenerator(opts Options) *CodeGenerator {
	return &CodeGenerator{annotate: opts.Annotate}
}

// Emits the whole program and returns the concatenated '.data' and '.text'
// sections. An error is only ever returned on an internal invariant
// violation, which is a bug in the compiler rather than in the user program.
func (cg *CodeGenerator) Generate(root *seron.Block) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("internal code generation failure: %v", r)
		}
	}()

	cg.emit(root)

	buffer := bytes.Buffer{}
	buffer.WriteString("section .data\n")
	buffer.Write(cg.data.Bytes())
	buffer.WriteString("section .text\n")
	buffer.Write(cg.text.Bytes())
	return buffer.Bytes(), nil
}

// Appends one instruction line to the text buffer.
func (cg *CodeGenerator) write(format string, args ...any) {
	fmt.Fprintf(&cg.text, format, args...)
	cg.text.WriteByte('\n')
}

// Appends one line to the data buffer.
func (cg *CodeGenerator) writeData(format string, args ...any) {
	fmt.Fprintf(&cg.data, format, args...)
	cg.data.WriteByte('\n')
}

// Appends an origin comment to the text buffer when annotation is on.
func (cg *CodeGenerator) comment(format string, args ...any) {
	if !cg.annotate {
		return
	}
	fmt.Fprintf(&cg.text, "; "+format+"\n", args...)
}

// Resolves the name in the scope the generator is currently emitting under.
func (cg *CodeGenerator) lookup(tok seron.Token) *seron.Symbol {
	sym := cg.scope.Lookup(tok.Value)
	if sym == nil {
		panic(fmt.Sprintf("symbol '%s' escaped resolution", tok.Value))
	}
	return sym
}

// ----------------------------------------------------------------------------
// Value emission

// Computes the node's value into (the correctly sized sub-register of) rax
// and returns the value's type.
func (cg *CodeGenerator) emit(node seron.Node) seron.Type {
	switch n := node.(type) {

	case *seron.Block:
		previous := cg.scope
		cg.scope = n.Scope
		for _, stmt := range n.Stmts {
			cg.emit(stmt)
		}
		cg.scope = previous

	case *seron.GroupingExpr:
		return cg.emit(n.Expr)

	case *seron.LiteralExpr:
		return cg.literal(n)

	case *seron.BinaryExpr:
		return cg.binary(n)

	case *seron.UnaryExpr:
		return cg.unary(n)

	case *seron.CallExpr:
		return cg.call(n)

	case *seron.AssignExpr:
		return cg.assign(n)

	case *seron.ProcDecl:
		cg.proc(n)

	case *seron.VarDecl:
		cg.vardecl(n)

	case *seron.IfStmt:
		cg.cond(n)

	case *seron.WhileStmt:
		cg.loop(n)

	case *seron.ReturnStmt:
		cg.comment("return")
		if n.Expr != nil {
			cg.emit(n.Expr)
		}
		cg.write("jmp .return")

	case *seron.TableDecl:
		// compile-time only, nothing to emit

	default:
		panic(fmt.Sprintf("cannot emit node kind '%s'", node.Kind()))
	}

	return seron.Type{Kind: seron.TypeVoid}
}

// Computes the effective address of an lvalue into rax and returns a pointer
// type wrapping the lvalue's type. Defined on identifier literals and on
// dereference expressions only; anything else here is a compiler bug.
func (cg *CodeGenerator) emitAddr(node seron.Node) seron.Type {
	switch n := node.(type) {

	case *seron.LiteralExpr:
		if n.Literal != seron.LiteralIdent {
			break
		}
		sym := cg.lookup(n.Op)
		if sym.Kind != seron.SymbolVariable && sym.Kind != seron.SymbolParameter {
			break
		}
		cg.write("lea rax, [rbp-%d]", sym.Offset)
		pointee := sym.Type
		return seron.Type{Kind: seron.TypePointer, Pointee: &pointee}

	case *seron.UnaryExpr:
		if n.UnaryOp != seron.UnaryDeref {
			break
		}
		// the operand already is a pointer, its value is the address
		return cg.emit(n.Operand)
	}

	panic(fmt.Sprintf("node kind '%s' has no address", node.Kind()))
}

func (cg *CodeGenerator) literal(lit *seron.LiteralExpr) seron.Type {
	switch lit.Literal {

	case seron.LiteralNumber:
		ty := seron.Type{Kind: seron.TypeInt}
		switch lit.Op.Width {
		case seron.WidthChar:
			ty.Kind = seron.TypeChar
		case seron.WidthLong:
			ty.Kind = seron.TypeLong
		}
		cg.write("mov %s, %d", SubRegister(RAX, ty.Kind), lit.Op.Number)
		return ty

	case seron.LiteralString:
		cg.writeData("string_%d:", cg.strings)
		cg.writeData("db \"%s\", 0", lit.Op.Value)
		cg.write("mov rax, string_%d", cg.strings)
		cg.strings++

		pointee := seron.Type{Kind: seron.TypeChar}
		return seron.Type{Kind: seron.TypePointer, Pointee: &pointee}

	case seron.LiteralIdent:
		sym := cg.lookup(lit.Op)

		switch sym.Kind {
		case seron.SymbolVariable, seron.SymbolParameter:
			cg.write("mov %s, [rbp-%d]", SubRegister(RAX, sym.Type.Kind), sym.Offset)
		case seron.SymbolProcedure:
			cg.write("mov rax, %s", sym.Label)
		default:
			panic("invalid symbol")
		}
		return sym.Type
	}

	panic("unknown literal kind")
}

func (cg *CodeGenerator) binary(binop *seron.BinaryExpr) seron.Type {
	// the logical combinations evaluate lazily, everything else is eager
	if binop.BinOp == seron.BinOpLogOr || binop.BinOp == seron.BinOpLogAnd {
		return cg.logical(binop)
	}

	cg.comment("binop: %s", binop.BinOp)

	cg.emit(binop.Rhs)
	cg.write("push rax")
	lhs := cg.emit(binop.Lhs)
	cg.write("pop rdi")

	rax := SubRegister(RAX, lhs.Kind)
	rdi := SubRegister(RDI, lhs.Kind)

	// comparisons produce their 0/1 in al and widen to int
	setcc := func(cc string) seron.Type {
		cg.write("cmp %s, %s", rax, rdi)
		cg.write("set%s al", cc)
		cg.write("movzx eax, al")
		return seron.Type{Kind: seron.TypeInt}
	}

	switch binop.BinOp {
	case seron.BinOpAdd:
		cg.write("add %s, %s", rax, rdi)
	case seron.BinOpSub:
		cg.write("sub %s, %s", rax, rdi)
	case seron.BinOpMul:
		cg.write("imul %s", rdi)
	case seron.BinOpDiv:
		cg.write(SignExtend(lhs.Kind))
		cg.write("idiv %s", rdi)

	case seron.BinOpEq:
		return setcc("e")
	case seron.BinOpNeq:
		return setcc("ne")
	case seron.BinOpGt:
		return setcc("g")
	case seron.BinOpGtEq:
		return setcc("ge")
	case seron.BinOpLt:
		return setcc("l")
	case seron.BinOpLtEq:
		return setcc("le")

	case seron.BinOpBitOr:
		cg.write("or %s, %s", rax, rdi)
	case seron.BinOpBitAnd:
		cg.write("and %s, %s", rax, rdi)

	default:
		panic(fmt.Sprintf("unknown binary operation '%s'", binop.BinOp))
	}

	return lhs
}

// Short-circuit emission of '&&' and '||': the right operand is skipped when
// the left one already decides the result, then whatever is in rax gets
// normalized to 0/1 and widened to int.
func (cg *CodeGenerator) logical(binop *seron.BinaryExpr) seron.Type {
	label := cg.labels
	cg.labels++

	cg.comment("logical: %s", binop.BinOp)

	lhs := cg.emit(binop.Lhs)
	cg.write("cmp %s, 0", SubRegister(RAX, lhs.Kind))
	if binop.BinOp == seron.BinOpLogOr {
		cg.write("jne .sc%d", label)
	} else {
		cg.write("je .sc%d", label)
	}

	rhs := cg.emit(binop.Rhs)
	cg.write(".sc%d:", label)
	cg.write("cmp %s, 0", SubRegister(RAX, rhs.Kind))
	cg.write("setne al")
	cg.write("movzx eax, al")

	return seron.Type{Kind: seron.TypeInt}
}

func (cg *CodeGenerator) unary(unaryop *seron.UnaryExpr) seron.Type {
	switch unaryop.UnaryOp {

	case seron.UnaryNot:
		ty := cg.emit(unaryop.Operand)
		sub := SubRegister(RAX, ty.Kind)
		cg.write("cmp %s, 0", sub)
		cg.write("sete al")
		if seron.SizeOf(ty.Kind) > 1 {
			cg.write("movzx %s, al", sub)
		}
		return ty

	case seron.UnaryMinus:
		ty := cg.emit(unaryop.Operand)
		cg.write("imul %s, -1", SubRegister(RAX, ty.Kind))
		return ty

	case seron.UnaryDeref:
		ty := cg.emit(unaryop.Operand)
		pointee := *ty.Pointee
		cg.write("mov %s, [rax]", SubRegister(RAX, pointee.Kind))
		return pointee

	case seron.UnaryAddrOf:
		return cg.emitAddr(unaryop.Operand)
	}

	panic("unknown unary operation")
}

func (cg *CodeGenerator) assign(assign *seron.AssignExpr) seron.Type {
	cg.comment("assign")

	cg.emitAddr(assign.Target)
	cg.write("push rax")
	ty := cg.emit(assign.Value)

	cg.write("pop rdi")
	cg.write("mov [rdi], %s", SubRegister(RAX, ty.Kind))
	return ty
}

func (cg *CodeGenerator) call(call *seron.CallExpr) seron.Type {
	if call.Builtin == seron.BuiltinAsm {
		return cg.builtinAsm(call)
	}

	cg.comment("call")

	// arguments past the sixth travel on the stack: they are evaluated in
	// reverse source order and pushed, with one padding slot when their
	// count is odd so the stack stays 16-byte aligned at the call
	spilled := 0
	if len(call.Args) > 6 {
		spilled = len(call.Args) - 6
	}
	if spilled%2 != 0 {
		cg.write("sub rsp, 8")
	}
	for i := len(call.Args) - 1; i >= 6; i-- {
		cg.emit(call.Args[i])
		cg.write("push rax")
	}

	ty := cg.emit(call.Callee)
	cg.write("push rax")
	sig := ty.Signature

	for i := 0; i < len(call.Args) && i < 6; i++ {
		kind := sig.Params[i].Type.Kind
		reg, _ := ABIRegister(i + 1)

		cg.emit(call.Args[i])
		cg.write("mov %s, %s", SubRegister(reg, kind), SubRegister(RAX, kind))
	}

	// this little dance is what makes procedure pointers work: the callee
	// address survives the argument evaluation on the stack
	cg.write("pop rax")
	cg.write("call rax")

	if spilled > 0 {
		release := spilled * 8
		if spilled%2 != 0 {
			release += 8
		}
		cg.write("add rsp, %d", release)
	}

	return sig.Return
}

// Emits the template of an 'asm' builtin verbatim, substituting every '{}'
// placeholder with the frame slot of the corresponding identifier argument.
func (cg *CodeGenerator) builtinAsm(call *seron.CallExpr) seron.Type {
	cg.comment("inline asm")

	template := call.Args[0].(*seron.LiteralExpr).Op.Value

	for _, arg := range call.Args[1:] {
		sym := cg.lookup(arg.(*seron.LiteralExpr).Op)
		slot := fmt.Sprintf("[rbp-%d]", sym.Offset)
		template = strings.Replace(template, "{}", slot, 1)
	}

	cg.write("%s", template)
	return seron.Type{Kind: seron.TypeVoid}
}

func (cg *CodeGenerator) proc(proc *seron.ProcDecl) {
	ident := proc.Ident.Value
	sig := proc.Type.Signature

	if proc.Body == nil {
		cg.write("extern %s", ident)
		return
	}

	cg.comment("proc: %s", ident)
	cg.write("")
	cg.write("global %s", ident)
	cg.write("%s:", ident)
	cg.write("push rbp")
	cg.write("mov rbp, rsp")
	cg.write("sub rsp, %d", proc.StackSize)

	// move the parameters into their frame slots; the stack-passed ones
	// start at rbp+16, right above the saved base pointer and the return
	// address
	stacked := 16
	for i, param := range sig.Params {
		sym := proc.Body.Scope.Get(param.Ident)
		reg, inRegister := ABIRegister(i + 1)

		if inRegister {
			cg.write("mov [rbp-%d], %s", sym.Offset, SubRegister(reg, param.Type.Kind))
			continue
		}

		rax := SubRegister(RAX, param.Type.Kind)
		cg.write("mov %s, [rbp+%d]", rax, stacked)
		cg.write("mov [rbp-%d], %s", sym.Offset, rax)
		stacked += 8
	}

	cg.emit(proc.Body)

	cg.write(".return:")
	cg.write("mov rsp, rbp")
	cg.write("pop rbp")
	cg.write("ret")
}

func (cg *CodeGenerator) vardecl(decl *seron.VarDecl) {
	if decl.Init == nil {
		return
	}

	cg.comment("vardecl: %s", decl.Ident.Value)

	ty := cg.emit(decl.Init)
	sym := cg.lookup(decl.Ident)
	cg.write("mov [rbp-%d], %s", sym.Offset, SubRegister(RAX, ty.Kind))
}

func (cg *CodeGenerator) cond(cond *seron.IfStmt) {
	label := cg.labels
	cg.labels++

	cg.comment("if")

	ty := cg.emit(cond.Condition)
	cg.write("cmp %s, 0", SubRegister(RAX, ty.Kind))
	cg.write("je .else%d", label)

	cg.emit(cond.Then)

	cg.write("jmp .end%d", label)
	cg.write(".else%d:", label)

	if cond.Else != nil {
		cg.emit(cond.Else)
	}

	cg.write(".end%d:", label)
}

func (cg *CodeGenerator) loop(loop *seron.WhileStmt) {
	label := cg.labels
	cg.labels++

	cg.comment("while")

	cg.write("jmp .cond%d", label)
	cg.write(".while%d:", label)

	cg.emit(loop.Body)

	cg.write(".cond%d:", label)
	ty := cg.emit(loop.Condition)
	cg.write("cmp %s, 0", SubRegister(RAX, ty.Kind))
	cg.write("jne .while%d", label)
}
