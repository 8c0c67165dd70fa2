package x86_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"its-hmny.dev/seronc/pkg/diagnostics"
	"its-hmny.dev/seronc/pkg/seron"
	"its-hmny.dev/seronc/pkg/x86"
)

// Runs the whole front end over the source and emits it with the given
// options, returning the NASM text.
func generate(t *testing.T, src string, opts x86.Options) string {
	t.Helper()

	sink := &diagnostics.Sink{Source: src, Path: "test.sn", Out: &bytes.Buffer{}}

	root, err := seron.Parse(src, sink)
	require.NoError(t, err)
	seron.Lower(root)

	_, err = seron.Resolve(root, sink)
	require.NoError(t, err)
	require.NoError(t, seron.Check(root, sink))

	out, err := x86.NewCodeGenerator(opts).Generate(root)
	require.NoError(t, err)
	return string(out)
}

// Asserts that the given instruction lines appear in the text, in order
// (other instructions may sit between them).
func requireSequence(t *testing.T, asm string, lines ...string) {
	t.Helper()

	cursor := asm
	for _, line := range lines {
		index := strings.Index(cursor, line)
		require.GreaterOrEqual(t, index, 0, "missing %q (after previous anchors)\n%s", line, asm)
		cursor = cursor[index+len(line):]
	}
}

func TestGenerateSections(t *testing.T) {
	asm := generate(t, "proc main() int { return 0; }", x86.Options{})

	require.True(t, strings.HasPrefix(asm, "section .data\n"))
	require.Contains(t, asm, "section .text\n")
}

func TestGenerateProcedure(t *testing.T) {
	t.Run("Prologue, body and epilogue", func(t *testing.T) {
		asm := generate(t, "proc main() int { return 1 + 2; }", x86.Options{})

		requireSequence(t, asm,
			"global main",
			"main:",
			"push rbp",
			"mov rbp, rsp",
			"sub rsp, 0",
			// the right operand is computed first, the left second
			"mov eax, 2",
			"push rax",
			"mov eax, 1",
			"pop rdi",
			"add eax, edi",
			"jmp .return",
			".return:",
			"mov rsp, rbp",
			"pop rbp",
			"ret",
		)
	})

	t.Run("Parameters land in their frame slots", func(t *testing.T) {
		asm := generate(t, "proc add(a: int, b: int) int { return a + b; }", x86.Options{})

		requireSequence(t, asm,
			"sub rsp, 16",
			"mov [rbp-8], edi",
			"mov [rbp-16], esi",
		)
		// reading them back: b first (right operand), then a
		requireSequence(t, asm, "mov eax, [rbp-16]", "push rax", "mov eax, [rbp-8]")
	})

	t.Run("Stack-passed parameters beyond the sixth", func(t *testing.T) {
		asm := generate(t,
			"proc wide(a:int,b:int,c:int,d:int,e:int,f:int,g:int) int { return g; }",
			x86.Options{})

		requireSequence(t, asm,
			"mov [rbp-48], r9d", // f, the last register parameter
			"mov eax, [rbp+16]", // g comes from above the saved rbp
			"mov [rbp-56], eax",
		)
	})

	t.Run("Bodyless procedures become extern", func(t *testing.T) {
		asm := generate(t, "proc putchar(c: int) int;", x86.Options{})
		require.Contains(t, asm, "extern putchar")
		require.NotContains(t, asm, "global putchar")
	})
}

func TestGenerateExpressions(t *testing.T) {
	t.Run("String literals go to the data section", func(t *testing.T) {
		asm := generate(t, `proc main() { let s: *char = "hi"; let u: *char = "there"; }`, x86.Options{})

		requireSequence(t, asm, "string_0:", `db "hi", 0`, "string_1:", `db "there", 0`)
		requireSequence(t, asm, "mov rax, string_0", "mov rax, string_1")
	})

	t.Run("Comparisons normalize to 0/1 int", func(t *testing.T) {
		asm := generate(t, "proc main() int { return 1 < 2; }", x86.Options{})
		requireSequence(t, asm, "cmp eax, edi", "setl al", "movzx eax, al")
	})

	t.Run("Division sign-extends the dividend", func(t *testing.T) {
		asm := generate(t, "proc main() int { return 7 / 2; }", x86.Options{})
		requireSequence(t, asm, "cdq", "idiv edi")
	})

	t.Run("Logical operators short-circuit", func(t *testing.T) {
		asm := generate(t, "proc main() int { return 1 == 1 || 2 == 3; }", x86.Options{})
		requireSequence(t, asm, "jne .sc0", ".sc0:", "setne al", "movzx eax, al")

		asm = generate(t, "proc main() int { return 1 == 1 && 2 == 3; }", x86.Options{})
		requireSequence(t, asm, "je .sc0", ".sc0:", "setne al")
	})

	t.Run("Unary operators", func(t *testing.T) {
		asm := generate(t, "proc main() int { return -5; }", x86.Options{})
		requireSequence(t, asm, "mov eax, 5", "imul eax, -1")

		asm = generate(t, "proc main() int { return !0; }", x86.Options{})
		requireSequence(t, asm, "cmp eax, 0", "sete al", "movzx eax, al")
	})

	t.Run("Dereference and address-of", func(t *testing.T) {
		asm := generate(t, "proc main() { let x: int = 1; let p: *int = &x; *p = 2; }", x86.Options{})

		requireSequence(t, asm, "lea rax, [rbp-4]")
		// the assignment through the pointer: address pushed, value stored
		requireSequence(t, asm, "mov rax, [rbp-12]", "push rax", "mov eax, 2", "pop rdi", "mov [rdi], eax")
	})

	t.Run("Index expressions load through the computed pointer", func(t *testing.T) {
		asm := generate(t, "proc main(xs: *int) int { return xs[2]; }", x86.Options{})

		requireSequence(t, asm,
			"mov eax, 2",
			"push rax",
			"mov rax, [rbp-8]",
			"pop rdi",
			"add rax, rdi",
			"mov eax, [rax]",
		)
	})

	t.Run("Assignments store through the target address", func(t *testing.T) {
		asm := generate(t, "proc main() { let x: int = 5; x = x - 1; }", x86.Options{})
		requireSequence(t, asm, "lea rax, [rbp-4]", "push rax", "pop rdi", "mov [rdi], eax")
	})
}

func TestGenerateCalls(t *testing.T) {
	t.Run("Arguments travel in the ABI registers", func(t *testing.T) {
		asm := generate(t,
			"proc add(a: int, b: int) int { return a + b; } proc main() int { return add(1, 2); }",
			x86.Options{})

		requireSequence(t, asm,
			"mov rax, add",
			"push rax",
			"mov eax, 1",
			"mov edi, eax",
			"mov eax, 2",
			"mov esi, eax",
			"pop rax",
			"call rax",
		)
	})

	t.Run("Arguments beyond the sixth spill to the stack", func(t *testing.T) {
		asm := generate(t, `
			proc wide(a:int,b:int,c:int,d:int,e:int,f:int,g:int,h:int) int { return h; }
			proc main() int { return wide(1,2,3,4,5,6,7,8); }`,
			x86.Options{})

		// two spills, no padding; evaluated in reverse source order
		requireSequence(t, asm,
			"mov eax, 8",
			"push rax",
			"mov eax, 7",
			"push rax",
			"mov rax, wide",
			"call rax",
			"add rsp, 16",
		)
	})

	t.Run("An odd spill count gets an alignment slot", func(t *testing.T) {
		asm := generate(t, `
			proc wide(a:int,b:int,c:int,d:int,e:int,f:int,g:int) int { return g; }
			proc main() int { return wide(1,2,3,4,5,6,7); }`,
			x86.Options{})

		requireSequence(t, asm, "sub rsp, 8", "mov eax, 7", "push rax", "call rax", "add rsp, 16")
	})

	t.Run("Procedure pointers survive argument evaluation", func(t *testing.T) {
		asm := generate(t,
			"proc f(a: int) {} proc main() { let cb: proc(a: int) = f; cb(9); }",
			x86.Options{})

		requireSequence(t, asm, "mov rax, [rbp-8]", "push rax", "mov eax, 9", "mov edi, eax", "pop rax", "call rax")
	})
}

func TestGenerateControlFlow(t *testing.T) {
	t.Run("If with else", func(t *testing.T) {
		asm := generate(t, "proc main() { if 1 { } else { } }", x86.Options{})

		requireSequence(t, asm,
			"cmp eax, 0",
			"je .else0",
			"jmp .end0",
			".else0:",
			".end0:",
		)
	})

	t.Run("While loops test at the bottom", func(t *testing.T) {
		asm := generate(t, "proc main() int { let x: int = 5; while x > 0 { x = x - 1; } return x; }", x86.Options{})

		requireSequence(t, asm,
			"jmp .cond0",
			".while0:",
			".cond0:",
			"cmp eax, 0",
			"jne .while0",
		)
	})

	t.Run("Label ids are distinct", func(t *testing.T) {
		asm := generate(t, "proc main() { if 1 { } while 0 { } if 2 { } }", x86.Options{})

		require.Contains(t, asm, ".else0")
		require.Contains(t, asm, ".while1:")
		require.Contains(t, asm, ".else2")
	})
}

func TestGenerateBuiltinAsm(t *testing.T) {
	asm := generate(t, `
		proc main() {
			let code: int = 60;
			asm("mov rdi, {}", code);
			asm("syscall");
		}`, x86.Options{})

	requireSequence(t, asm, "mov rdi, [rbp-4]", "syscall")
}

func TestGenerateAnnotations(t *testing.T) {
	src := "proc main() int { return 1 + 2; }"

	plain := generate(t, src, x86.Options{})
	require.NotContains(t, plain, ";")

	annotated := generate(t, src, x86.Options{Annotate: true})
	require.Contains(t, annotated, "; proc: main")
	require.Contains(t, annotated, "; binop: add")
	require.Contains(t, annotated, "; return")
}

func TestGenerateTableDeclsAreSilent(t *testing.T) {
	asm := generate(t, "table Point { x: int, y: int } proc main() {}", x86.Options{})
	require.NotContains(t, asm, "Point")
}
