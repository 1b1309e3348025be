package codegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivansh-2611/axis-lang/compiler/lexer"
	"github.com/shivansh-2611/axis-lang/compiler/parser"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

func genProg(t *testing.T, src string) *Program {
	t.Helper()

	ctx := context.Background()

	toks, err := lexer.Tokenize(ctx, []byte(src))
	require.NoError(t, err)

	prog, err := parser.Parse(ctx, toks)
	require.NoError(t, err)

	info, err := sem.Analyze(ctx, prog)
	require.NoError(t, err)

	p, err := Generate(ctx, prog, info)
	require.NoError(t, err)

	return p
}

func count(p *Program, op x86.Op) int {
	n := 0

	for _, in := range p.Insts {
		if in.Op == op {
			n++
		}
	}

	return n
}

func TestStartStub(t *testing.T) {
	p := genProg(t, "func main() -> i32:\n    give 0\n")

	require.Greater(t, len(p.Insts), 6)

	assert.Equal(t, x86.Inst{Op: x86.Label, Label: "_start"}, p.Insts[0])
	assert.Equal(t, x86.Xor, p.Insts[1].Op)
	assert.Equal(t, x86.Inst{Op: x86.Call, Label: "main"}, p.Insts[2])
	assert.Equal(t, x86.Syscall, p.Insts[5].Op)
	assert.Equal(t, x86.Inst{Op: x86.Label, Label: "main"}, p.Insts[6])
}

func TestJumpTargetsDefined(t *testing.T) {
	p := genProg(t, `func fact(n: i32) -> i32:
    r: i32 = 1
    while n > 1:
        r = r * n
        n = n - 1
    give r

func main() -> i32:
    when fact(5) == 120:
        give 0
    give 1
`)

	labels := map[string]bool{}

	for _, in := range p.Insts {
		if in.Op == x86.Label {
			assert.False(t, labels[in.Label], "label %v redefined", in.Label)
			labels[in.Label] = true
		}
	}

	for _, in := range p.Insts {
		switch in.Op {
		case x86.Jcc, x86.Jmp, x86.Call:
			assert.True(t, labels[in.Label], "target %v undefined", in.Label)
		}
	}
}

func TestPrologueEpilogue(t *testing.T) {
	p := genProg(t, `func add(a: i32, b: i32) -> i32:
    give a + b

func main() -> i32:
    give add(1, 2)
`)

	var i int
	for i = range p.Insts {
		if p.Insts[i].Op == x86.Label && p.Insts[i].Label == "add" {
			break
		}
	}

	assert.Equal(t, x86.Inst{Op: x86.Push, Size: 8, Dst: x86.RBP}, p.Insts[i+1])
	assert.Equal(t, x86.Inst{Op: x86.Mov, Size: 8, Dst: x86.RBP, Src: x86.RSP}, p.Insts[i+2])
	assert.Equal(t, x86.Inst{Op: x86.Sub, Size: 8, Dst: x86.RSP, Src: x86.Imm(16)}, p.Insts[i+3])

	// params land in their frame slots from rdi and rsi
	assert.Equal(t, x86.Inst{Op: x86.Mov, Size: 4, Dst: x86.Mem{Base: x86.RBP, Disp: -4}, Src: x86.RDI}, p.Insts[i+4])
	assert.Equal(t, x86.Inst{Op: x86.Mov, Size: 4, Dst: x86.Mem{Base: x86.RBP, Disp: -8}, Src: x86.RSI}, p.Insts[i+5])

	epi := false
	for _, in := range p.Insts[i:] {
		if in.Op == x86.Label && in.Label == ".Ladd_ret" {
			epi = true
		}
	}
	assert.True(t, epi)
}

func TestSignedShiftUsesSar(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: i32 = -8
    give a >> 1
`)

	assert.NotZero(t, count(p, x86.Sar))
	assert.Zero(t, count(p, x86.Shr))
}

func TestUnsignedShiftUsesShr(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: u32 = 8
    b: u32 = a >> 1
    give 0
`)

	assert.NotZero(t, count(p, x86.Shr))
	assert.Zero(t, count(p, x86.Sar))
}

func TestSignedDivision(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: i32 = -7
    give a / 2
`)

	assert.NotZero(t, count(p, x86.Cdq))
	assert.NotZero(t, count(p, x86.Idiv))
	assert.Zero(t, count(p, x86.Div))
}

func TestUnsignedDivision(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: u32 = 7
    b: u32 = a / 2
    give 0
`)

	assert.NotZero(t, count(p, x86.Div))
	assert.Zero(t, count(p, x86.Idiv))
	assert.Zero(t, count(p, x86.Cdq))
}

func TestWideDivisionUsesCqo(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: i64 = -7
    b: i64 = a / 2
    give 0
`)

	assert.NotZero(t, count(p, x86.Cqo))
	assert.Zero(t, count(p, x86.Cdq))
}

func TestModuloTakesRemainder(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: i32 = 7
    give a % 3
`)

	assert.NotZero(t, count(p, x86.Idiv))

	// remainder moves rdx into rax after the divide
	found := false
	for _, in := range p.Insts {
		if in.Op == x86.Mov && in.Dst == x86.RAX && in.Src == x86.RDX {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReadSetsBSS(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    x: i32 = read()
    give x
`)

	assert.Equal(t, 1, p.BSS)

	found := false
	for _, in := range p.Insts {
		if in.Op == x86.Movabs && in.Src == x86.Sym(BSSFlag) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNoReadNoBSS(t *testing.T) {
	p := genProg(t, "func main() -> i32:\n    give 0\n")

	assert.Zero(t, p.BSS)
}

func TestWriteStringRodata(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    write("hello")
    give 0
`)

	require.Len(t, p.Rodata, 1)
	assert.Equal(t, ".L.str.0", p.Rodata[0].Label)

	found := false
	for _, in := range p.Insts {
		if in.Op == x86.Lea && in.Src == x86.Sym(".L.str.0") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWritelnAppendsNewline(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    writeln(1)
    give 0
`)

	// one interned newline string referenced after the number
	require.NotEmpty(t, p.Rodata)
	assert.Equal(t, []byte("\n"), p.Rodata[len(p.Rodata)-1].Data)
}

func TestNarrowLoadWidens(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    a: i8 = -1
    b: u8 = 255
    c: i32 = 0
    when a < 0:
        c = 1
    when b > 0:
        c = c + 1
    give c
`)

	assert.NotZero(t, count(p, x86.Movsx))
	assert.NotZero(t, count(p, x86.Movzx))
}

func TestCallArgsInOrder(t *testing.T) {
	p := genProg(t, `func f(a: i32, b: i32, c: i32) -> i32:
    give a

func main() -> i32:
    give f(1, 2, 3)
`)

	// args are pushed in order and popped in reverse into the ABI regs
	var pops []x86.Reg
	for _, in := range p.Insts {
		if in.Op != x86.Pop {
			continue
		}

		switch r := in.Dst.(x86.Reg); r {
		case x86.RDI, x86.RSI, x86.RDX, x86.RCX, x86.R8, x86.R9:
			pops = append(pops, r)
		}
	}

	assert.Equal(t, []x86.Reg{x86.RDX, x86.RSI, x86.RDI}, pops)
}

func TestBreakContinueTargets(t *testing.T) {
	p := genProg(t, `func main() -> i32:
    i: i32 = 0
    loop:
        i = i + 1
        when i == 3:
            skip
        when i > 5:
            stop
    give i
`)

	// both jumps resolve inside the loop labels
	labels := map[string]bool{}
	for _, in := range p.Insts {
		if in.Op == x86.Label {
			labels[in.Label] = true
		}
	}

	for _, in := range p.Insts {
		if in.Op == x86.Jmp {
			assert.True(t, labels[in.Label])
		}
	}
}
