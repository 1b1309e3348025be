package codegen

import (
	"tlog.app/go/errors"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/tp"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

// Linux x86-64 syscall numbers used by the emitted code.
const (
	sysRead  = 0
	sysWrite = 1
	sysMmap  = 9
)

const readBuf = 4096

// write lowers write/writeln. The value is formatted inline and pushed
// out with write(2) on stdout.
func (g *gen) write(sc *sem.Scope, s ast.Write) error {
	t, err := g.expr(sc, s.X, nil)
	if err != nil {
		return err
	}

	switch t := t.(type) {
	case tp.Int:
		g.writeInt(t)
	case tp.Bool:
		g.writeBool()
	case tp.Str:
		if lit, ok := s.X.(ast.StrLit); ok {
			g.writeLit(string(lit.Value)) // known length, no strlen walk
		} else {
			g.writeStr()
		}
	default:
		return errors.New("cannot write %v", t)
	}

	if s.Newline {
		g.writeLit("\n")
	}

	return nil
}

// writeInt converts the accumulator to decimal in a stack buffer,
// filling digits backwards, and writes it out.
func (g *gen) writeInt(t tp.Int) {
	conv, sign := g.newLabel(), g.newLabel()

	if t.Size() < 8 {
		if t.Signed {
			g.op2(x86.Movsxd, 8, x86.RAX, x86.RAX)
		}
		// unsigned values are already zero extended
	}

	g.op2(x86.Sub, 8, x86.RSP, x86.Imm(48))
	g.op2(x86.Mov, 8, x86.RSI, x86.RSP)
	g.op2(x86.Add, 8, x86.RSI, x86.Imm(48))
	g.op2(x86.Xor, 4, x86.RCX, x86.RCX)
	g.op2(x86.Xor, 4, x86.R9, x86.R9)

	if t.Signed {
		g.op2(x86.Test, 8, x86.RAX, x86.RAX)
		g.jcc(x86.NS, conv)
		g.op1(x86.Neg, 8, x86.RAX)
		g.op2(x86.Mov, 4, x86.R9, x86.Imm(1))
	}

	g.label(conv)
	g.op2(x86.Mov, 4, x86.RBX, x86.Imm(10))

	loop := g.newLabel()
	g.label(loop)
	g.op2(x86.Xor, 4, x86.RDX, x86.RDX)
	g.op1(x86.Div, 8, x86.RBX)
	g.op2(x86.Add, 1, x86.RDX, x86.Imm('0'))
	g.op2(x86.Sub, 8, x86.RSI, x86.Imm(1))
	g.op2(x86.Mov, 1, x86.Mem{Base: x86.RSI}, x86.RDX)
	g.op2(x86.Add, 8, x86.RCX, x86.Imm(1))
	g.op2(x86.Test, 8, x86.RAX, x86.RAX)
	g.jcc(x86.NE, loop)

	if t.Signed {
		g.op2(x86.Test, 4, x86.R9, x86.R9)
		g.jcc(x86.E, sign)
		g.op2(x86.Sub, 8, x86.RSI, x86.Imm(1))
		g.op2(x86.Mov, 1, x86.Mem{Base: x86.RSI}, x86.Imm('-'))
		g.op2(x86.Add, 8, x86.RCX, x86.Imm(1))
	}

	g.label(sign)
	g.op2(x86.Mov, 8, x86.RDX, x86.RCX)
	g.syscallWrite()
	g.op2(x86.Add, 8, x86.RSP, x86.Imm(48))
}

// writeBool writes True or False from rodata, selecting on al.
func (g *gen) writeBool() {
	no, out := g.newLabel(), g.newLabel()

	g.op2(x86.Test, 1, x86.RAX, x86.RAX)
	g.jcc(x86.E, no)

	g.op2(x86.Lea, 8, x86.RSI, x86.Sym(g.info.Strings.Intern([]byte("True"))))
	g.op2(x86.Mov, 4, x86.RDX, x86.Imm(4))
	g.jmp(out)

	g.label(no)
	g.op2(x86.Lea, 8, x86.RSI, x86.Sym(g.info.Strings.Intern([]byte("False"))))
	g.op2(x86.Mov, 4, x86.RDX, x86.Imm(5))

	g.label(out)
	g.syscallWrite()
}

// writeStr expects a pointer to null terminated bytes in the
// accumulator, finds the length inline and writes the bytes.
func (g *gen) writeStr() {
	loop, done := g.newLabel(), g.newLabel()

	g.op2(x86.Mov, 8, x86.RSI, x86.RAX)
	g.op2(x86.Mov, 8, x86.RDX, x86.RAX)

	g.label(loop)
	g.op2(x86.Cmp, 1, x86.Mem{Base: x86.RDX}, x86.Imm(0))
	g.jcc(x86.E, done)
	g.op2(x86.Add, 8, x86.RDX, x86.Imm(1))
	g.jmp(loop)

	g.label(done)
	g.op2(x86.Sub, 8, x86.RDX, x86.RSI)
	g.syscallWrite()
}

// writeLit writes a fixed rodata string.
func (g *gen) writeLit(s string) {
	g.op2(x86.Lea, 8, x86.RSI, x86.Sym(g.info.Strings.Intern([]byte(s))))
	g.op2(x86.Mov, 4, x86.RDX, x86.Imm(int64(len(s))))
	g.syscallWrite()
}

// syscallWrite emits write(1, rsi, rdx).
func (g *gen) syscallWrite() {
	g.op2(x86.Mov, 4, x86.RAX, x86.Imm(sysWrite))
	g.op2(x86.Mov, 4, x86.RDI, x86.Imm(1))
	g.emit(x86.Inst{Op: x86.Syscall})
}

func (g *gen) builtin(sc *sem.Scope, x ast.BuiltinCall, want tp.Type) (tp.Type, error) {
	switch x.Kind {
	case ast.ReadFailed:
		g.op2(x86.Movabs, 8, x86.RBX, x86.Sym(BSSFlag))
		g.op2(x86.Movzx, 1, x86.RAX, x86.Mem{Base: x86.RBX})

		return tp.Bool{}, nil
	case ast.Readchar:
		g.readInput(1)
		g.op2(x86.Movzx, 1, x86.RAX, x86.Mem{Base: x86.RSI})

		return tp.Int{Bits: 32, Signed: true}, nil
	case ast.Read, ast.Readln:
		t, err := g.info.ExprType(sc, x, want)
		if err != nil {
			return nil, err
		}

		g.readInput(readBuf - 1)
		g.terminate(x.Kind == ast.Readln)

		if (tp.Equal(t, tp.Str{})) {
			g.op2(x86.Mov, 8, x86.RAX, x86.RSI)
			return t, nil
		}

		g.parseInt()

		return t, nil
	default:
		return nil, errors.New("unexpected builtin %v", x.Kind)
	}
}

// readInput maps a fresh page and reads up to n bytes of stdin into
// it. The buffer pointer is left in rsi and the byte count in rax. The
// page is never unmapped, one page per read site invocation.
func (g *gen) readInput(n int64) {
	g.op2(x86.Mov, 4, x86.RAX, x86.Imm(sysMmap))
	g.op2(x86.Xor, 4, x86.RDI, x86.RDI)
	g.op2(x86.Mov, 4, x86.RSI, x86.Imm(readBuf))
	g.op2(x86.Mov, 4, x86.RDX, x86.Imm(0x3))    // PROT_READ|PROT_WRITE
	g.op2(x86.Mov, 4, x86.R10, x86.Imm(0x22))   // MAP_PRIVATE|MAP_ANONYMOUS
	g.op2(x86.Mov, 8, x86.R8, x86.Imm(-1))
	g.op2(x86.Xor, 4, x86.R9, x86.R9)
	g.emit(x86.Inst{Op: x86.Syscall})

	g.op2(x86.Mov, 8, x86.RSI, x86.RAX)
	g.op2(x86.Xor, 4, x86.RDI, x86.RDI)
	g.op2(x86.Mov, 4, x86.RDX, x86.Imm(n))
	g.op2(x86.Xor, 4, x86.RAX, x86.RAX)
	g.emit(x86.Inst{Op: x86.Syscall})
}

// terminate writes a null at the end of the input, at the first
// newline for line reads.
func (g *gen) terminate(atNewline bool) {
	g.op2(x86.Mov, 8, x86.RDX, x86.RSI)
	g.op2(x86.Mov, 8, x86.R8, x86.RSI)
	g.op2(x86.Add, 8, x86.R8, x86.RAX)

	if atNewline {
		scan, done := g.newLabel(), g.newLabel()

		g.label(scan)
		g.op2(x86.Cmp, 8, x86.RDX, x86.R8)
		g.jcc(x86.AE, done)
		g.op2(x86.Cmp, 1, x86.Mem{Base: x86.RDX}, x86.Imm('\n'))
		g.jcc(x86.E, done)
		g.op2(x86.Add, 8, x86.RDX, x86.Imm(1))
		g.jmp(scan)

		g.label(done)
	} else {
		g.op2(x86.Mov, 8, x86.RDX, x86.R8)
	}

	g.op2(x86.Mov, 1, x86.Mem{Base: x86.RDX}, x86.Imm(0))
}

// parseInt parses the buffer at rsi as a signed decimal into the
// accumulator and records success in the bss flag. On failure the
// result is zero.
func (g *gen) parseInt() {
	skip := g.newLabel()
	signL := g.newLabel()
	digits := g.newLabel()
	loop := g.newLabel()
	check := g.newLabel()
	negL := g.newLabel()
	fail := g.newLabel()
	end := g.newLabel()

	g.op2(x86.Mov, 8, x86.R8, x86.RSI)
	g.op2(x86.Add, 8, x86.R8, x86.RAX)
	g.op2(x86.Xor, 4, x86.RAX, x86.RAX)
	g.op2(x86.Xor, 4, x86.R9, x86.R9)
	g.op2(x86.Xor, 4, x86.R10, x86.R10)

	g.label(skip)
	g.op2(x86.Cmp, 8, x86.RSI, x86.R8)
	g.jcc(x86.AE, check)
	g.op2(x86.Movzx, 1, x86.RCX, x86.Mem{Base: x86.RSI})
	g.op2(x86.Cmp, 1, x86.RCX, x86.Imm(' '))
	g.jcc(x86.NE, signL)
	g.op2(x86.Add, 8, x86.RSI, x86.Imm(1))
	g.jmp(skip)

	g.label(signL)
	g.op2(x86.Cmp, 1, x86.RCX, x86.Imm('-'))
	g.jcc(x86.NE, digits)
	g.op2(x86.Mov, 4, x86.R9, x86.Imm(1))
	g.op2(x86.Add, 8, x86.RSI, x86.Imm(1))

	g.label(digits)
	g.op2(x86.Mov, 4, x86.RBX, x86.Imm(10))

	g.label(loop)
	g.op2(x86.Cmp, 8, x86.RSI, x86.R8)
	g.jcc(x86.AE, check)
	g.op2(x86.Movzx, 1, x86.RCX, x86.Mem{Base: x86.RSI})
	g.op2(x86.Cmp, 1, x86.RCX, x86.Imm('0'))
	g.jcc(x86.B, check)
	g.op2(x86.Cmp, 1, x86.RCX, x86.Imm('9'))
	g.jcc(x86.A, check)
	g.op2(x86.Imul, 8, x86.RAX, x86.RBX)
	g.op2(x86.Sub, 1, x86.RCX, x86.Imm('0'))
	g.op2(x86.Movzx, 1, x86.RCX, x86.RCX)
	g.op2(x86.Add, 8, x86.RAX, x86.RCX)
	g.op2(x86.Add, 8, x86.RSI, x86.Imm(1))
	g.op2(x86.Add, 4, x86.R10, x86.Imm(1))
	g.jmp(loop)

	g.label(check)
	g.op2(x86.Test, 4, x86.R10, x86.R10)
	g.jcc(x86.E, fail)

	g.op2(x86.Test, 4, x86.R9, x86.R9)
	g.jcc(x86.E, negL)
	g.op1(x86.Neg, 8, x86.RAX)

	g.label(negL)
	g.op2(x86.Movabs, 8, x86.RBX, x86.Sym(BSSFlag))
	g.op2(x86.Mov, 1, x86.Mem{Base: x86.RBX}, x86.Imm(0))
	g.jmp(end)

	g.label(fail)
	g.op2(x86.Movabs, 8, x86.RBX, x86.Sym(BSSFlag))
	g.op2(x86.Mov, 1, x86.Mem{Base: x86.RBX}, x86.Imm(1))
	g.op2(x86.Xor, 4, x86.RAX, x86.RAX)

	g.label(end)
}
