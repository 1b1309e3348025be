package codegen

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/tp"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

type (
	// Program is the lowered module: abstract instructions plus the
	// static data the assembler and linker lay out.
	Program struct {
		Insts  []x86.Inst
		Rodata []sem.StrEntry
		BSS    int
	}

	gen struct {
		info *sem.Info

		insts []x86.Inst

		fn     *ast.Func
		sig    *sem.FuncSig
		epi    string
		labelN int
		loops  []loopCtx
	}

	loopCtx struct {
		cont string
		brk  string
	}
)

// BSSFlag is the input failure flag symbol in the emitted program.
const BSSFlag = "_read_failed"

// argRegs is the System V AMD64 integer argument register order.
var argRegs = [sem.MaxParams]x86.Reg{x86.RDI, x86.RSI, x86.RDX, x86.RCX, x86.R8, x86.R9}

// Generate lowers the checked program to abstract x86-64 instructions.
// The stream starts with the _start stub, then one block per function.
func Generate(ctx context.Context, prog *ast.Program, info *sem.Info) (p *Program, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "codegen", "funcs", len(prog.Funcs))
	defer tr.Finish("err", &err)

	g := &gen{info: info}

	g.start()

	for _, f := range prog.Funcs {
		err = g.genFunc(f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	p = &Program{
		Insts:  g.insts,
		Rodata: info.Strings.List,
	}

	if info.NeedsBSS {
		p.BSS = 1
	}

	tr.Printw("generated", "insts", len(p.Insts), "strings", len(p.Rodata), "bss", p.BSS)

	return p, nil
}

// start emits the 16 byte process entry stub: call main, exit with its
// return value.
func (g *gen) start() {
	g.label("_start")
	g.op2(x86.Xor, 4, x86.RDI, x86.RDI)
	g.emit(x86.Inst{Op: x86.Call, Label: "main"})
	g.op2(x86.Mov, 4, x86.RDI, x86.RAX)
	g.op2(x86.Mov, 4, x86.RAX, x86.Imm(60))
	g.emit(x86.Inst{Op: x86.Syscall})
}

func (g *gen) genFunc(f *ast.Func) error {
	g.fn = f
	g.sig = g.info.Sigs[f.Name]
	g.epi = fmt.Sprintf(".L%v_ret", f.Name)
	g.labelN = 0
	g.loops = g.loops[:0]

	sc := sem.NewScope(nil)
	frame := &sem.Frame{}

	g.label(f.Name)
	g.emit(x86.Inst{Op: x86.Push, Size: 8, Dst: x86.RBP})
	g.op2(x86.Mov, 8, x86.RBP, x86.RSP)

	if size := g.info.Frames[f.Name]; size > 0 {
		g.op2(x86.Sub, 8, x86.RSP, x86.Imm(size))
	}

	for i, p := range f.Params {
		sym := &sem.Symbol{Name: p.Name, Type: g.sig.In[i]}
		sym.Off = frame.Alloc(sym.Type)
		sc.Define(sym)

		g.op2(x86.Mov, sym.Type.Size(), g.mem(sym.Off), argRegs[i])
	}

	err := g.block(sc, frame, f.Body)
	if err != nil {
		return err
	}

	g.label(g.epi)
	g.op2(x86.Mov, 8, x86.RSP, x86.RBP)
	g.emit(x86.Inst{Op: x86.Pop, Size: 8, Dst: x86.RBP})
	g.emit(x86.Inst{Op: x86.Ret})

	return nil
}

func (g *gen) block(sc *sem.Scope, frame *sem.Frame, b ast.Block) error {
	for _, s := range b {
		err := g.stmt(sc, frame, s)
		if err != nil {
			return err
		}
	}

	return nil
}

func (g *gen) stmt(sc *sem.Scope, frame *sem.Frame, s ast.Node) error {
	switch s := s.(type) {
	case ast.VarDecl:
		t, _ := tp.ByName(s.Type)

		sym := &sem.Symbol{Name: s.Name, Type: t}
		sym.Off = frame.Alloc(t)
		sc.Define(sym)

		if s.Init == nil {
			return nil
		}

		_, err := g.expr(sc, s.Init, t)
		if err != nil {
			return err
		}

		g.store(sym)

		return nil
	case ast.Assign:
		sym := sc.Lookup(s.Name)

		_, err := g.expr(sc, s.X, sym.Type)
		if err != nil {
			return err
		}

		g.store(sym)

		return nil
	case ast.If:
		return g.ifStmt(sc, frame, s)
	case ast.While:
		start, end := g.newLabel(), g.newLabel()

		g.label(start)

		err := g.condJump(sc, s.Cond, end)
		if err != nil {
			return err
		}

		g.loops = append(g.loops, loopCtx{cont: start, brk: end})

		err = g.block(sem.NewScope(sc), frame, s.Body)
		if err != nil {
			return err
		}

		g.loops = g.loops[:len(g.loops)-1]

		g.jmp(start)
		g.label(end)

		return nil
	case ast.Loop:
		start, end := g.newLabel(), g.newLabel()

		g.label(start)

		g.loops = append(g.loops, loopCtx{cont: start, brk: end})

		err := g.block(sem.NewScope(sc), frame, s.Body)
		if err != nil {
			return err
		}

		g.loops = g.loops[:len(g.loops)-1]

		g.jmp(start)
		g.label(end)

		return nil
	case ast.Break:
		g.jmp(g.loops[len(g.loops)-1].brk)
		return nil
	case ast.Continue:
		g.jmp(g.loops[len(g.loops)-1].cont)
		return nil
	case ast.Return:
		if s.X != nil {
			_, err := g.expr(sc, s.X, g.sig.Out)
			if err != nil {
				return err
			}
		}

		g.jmp(g.epi)

		return nil
	case ast.Write:
		return g.write(sc, s)
	case ast.ExprStmt:
		_, err := g.expr(sc, s.X, nil)
		return err
	default:
		return errors.New("unexpected statement %T", s)
	}
}

func (g *gen) ifStmt(sc *sem.Scope, frame *sem.Frame, s ast.If) error {
	end := g.newLabel()
	els := end

	if s.Else != nil {
		els = g.newLabel()
	}

	err := g.condJump(sc, s.Cond, els)
	if err != nil {
		return err
	}

	err = g.block(sem.NewScope(sc), frame, s.Then)
	if err != nil {
		return err
	}

	if s.Else != nil {
		g.jmp(end)
		g.label(els)

		err = g.block(sem.NewScope(sc), frame, s.Else)
		if err != nil {
			return err
		}
	}

	g.label(end)

	return nil
}

// condJump evaluates a bool condition and jumps to target when it is
// false.
func (g *gen) condJump(sc *sem.Scope, cond ast.Node, target string) error {
	_, err := g.expr(sc, cond, tp.Bool{})
	if err != nil {
		return err
	}

	g.op2(x86.Test, 1, x86.RAX, x86.RAX)
	g.jcc(x86.E, target)

	return nil
}

// store writes the accumulator to the symbol's frame slot at its
// storage size.
func (g *gen) store(sym *sem.Symbol) {
	g.op2(x86.Mov, sym.Type.Size(), g.mem(sym.Off), x86.RAX)
}

func (g *gen) mem(off int) x86.Mem {
	return x86.Mem{Base: x86.RBP, Disp: int32(off)}
}

func (g *gen) emit(in x86.Inst) {
	tlog.V("emit").Printw("emit", "op", in.Op, "dst", in.Dst, "src", in.Src, "from", loc.Caller(1))

	g.insts = append(g.insts, in)
}

func (g *gen) op2(op x86.Op, size int, dst, src x86.Arg) {
	g.emit(x86.Inst{Op: op, Size: size, Dst: dst, Src: src})
}

func (g *gen) op1(op x86.Op, size int, dst x86.Arg) {
	g.emit(x86.Inst{Op: op, Size: size, Dst: dst})
}

func (g *gen) label(l string) { g.emit(x86.Inst{Op: x86.Label, Label: l}) }
func (g *gen) jmp(l string)   { g.emit(x86.Inst{Op: x86.Jmp, Label: l}) }

func (g *gen) jcc(c x86.Cond, l string) {
	g.emit(x86.Inst{Op: x86.Jcc, Cond: c, Label: l})
}

func (g *gen) newLabel() string {
	l := fmt.Sprintf(".L%v_%d", g.fn.Name, g.labelN)
	g.labelN++

	return l
}

// rsize is the register width arithmetic happens at: narrow values are
// widened to 32 bits on load, 64 bit values stay wide.
func rsize(t tp.Type) int {
	if t.Size() == 8 {
		return 8
	}

	return 4
}
