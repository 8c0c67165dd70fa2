package x86

import (
	"fmt"

	"its-hmny.dev/seronc/pkg/seron"
)

// ----------------------------------------------------------------------------
// General information

// This section contains some general information about the x86-64 back end.
//
// The generator targets the integer class of the x86-64 System V calling
// convention on Linux, in NASM syntax. There is no register allocator, just a
// fixed convention: every expression leaves its value in the correctly sized
// sub-register of rax, rdi holds the secondary operand of binary operations
// and the destination of stores, and the first six call arguments travel in
// rdi, rsi, rdx, rcx, r8, r9 (the rest goes on the stack).

type Register int // The named general purpose registers the generator uses

const (
	RAX Register = iota
	RDI
	RSI
	RDX
	RCX
	R8
	R9
)

// Per-register table of the sub-register names, indexed by machine size:
// 1 byte, 4 bytes, 8 bytes.
var subregisters = map[Register]map[int]string{
	RAX: {1: "al", 4: "eax", 8: "rax"},
	RDI: {1: "dil", 4: "edi", 8: "rdi"},
	RSI: {1: "sil", 4: "esi", 8: "rsi"},
	RDX: {1: "dl", 4: "edx", 8: "rdx"},
	RCX: {1: "cl", 4: "ecx", 8: "rcx"},
	R8:  {1: "r8b", 4: "r8d", 8: "r8"},
	R9:  {1: "r9b", 4: "r9d", 8: "r9"},
}

// Returns the sub-register of 'reg' matching the natural size of the given
// type kind: char maps to the byte register, int to the doubleword one and
// long/pointer/procedure to the full quadword.
func SubRegister(reg Register, kind seron.TypeKind) string {
	name, found := subregisters[reg][seron.SizeOf(kind)]
	if !found {
		panic(fmt.Sprintf("no sub-register of %v for type '%s'", reg, kind))
	}
	return name
}

// Returns the NASM size operand naming the width of a memory access of the
// given type kind.
func SizeOperand(kind seron.TypeKind) string {
	switch seron.SizeOf(kind) {
	case 1:
		return "byte"
	case 4:
		return "dword"
	case 8:
		return "qword"
	}
	panic(fmt.Sprintf("no size operand for type '%s'", kind))
}

// Returns the register carrying the n-th integer-class argument (1-based) of
// the System V calling convention, or false when the argument is passed on
// the stack instead.
func ABIRegister(argnum int) (Register, bool) {
	registers := []Register{RDI, RSI, RDX, RCX, R8, R9}

	if argnum < 1 || argnum > len(registers) {
		return 0, false
	}
	return registers[argnum-1], true
}

// Returns the sign-extension instruction that widens the dividend in the
// a-register to the double-width pair idiv expects, for the given type kind.
func SignExtend(kind seron.TypeKind) string {
	switch seron.SizeOf(kind) {
	case 1:
		return "cbw"
	case 4:
		return "cdq"
	case 8:
		return "cqo"
	}
	panic(fmt.Sprintf("no sign extension for type '%s'", kind))
}
