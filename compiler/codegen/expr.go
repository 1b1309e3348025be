package codegen

import (
	"tlog.app/go/errors"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/tp"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

// expr lowers x leaving its value in the accumulator, widened to the
// 32 or 64 bit register form. The returned type drives operand sizes
// upward.
func (g *gen) expr(sc *sem.Scope, x ast.Node, want tp.Type) (tp.Type, error) {
	switch x := x.(type) {
	case ast.IntLit:
		t, err := g.info.ExprType(sc, x, want)
		if err != nil {
			return nil, err
		}

		g.loadImm(int64(x.Value), t)

		return t, nil
	case ast.BoolLit:
		v := int64(0)
		if x.Value {
			v = 1
		}

		g.op2(x86.Mov, 4, x86.RAX, x86.Imm(v))

		return tp.Bool{}, nil
	case ast.StrLit:
		l := g.info.Strings.Intern(x.Value)

		g.op2(x86.Lea, 8, x86.RAX, x86.Sym(l))

		return tp.Str{}, nil
	case ast.Ident:
		sym := sc.Lookup(x.Name)
		if sym == nil {
			return nil, errors.New("undefined variable %v", x.Name)
		}

		g.load(sym)

		return sym.Type, nil
	case ast.Unary:
		return g.unary(sc, x, want)
	case ast.Binary:
		return g.binary(sc, x, want)
	case ast.Call:
		return g.call(sc, x)
	case ast.BuiltinCall:
		return g.builtin(sc, x, want)
	default:
		return nil, errors.New("unexpected expression %T", x)
	}
}

// load widens the symbol's slot into the accumulator.
func (g *gen) load(sym *sem.Symbol) {
	m := g.mem(sym.Off)

	switch size := sym.Type.Size(); size {
	case 1, 2:
		if tp.IsSigned(sym.Type) {
			g.op2(x86.Movsx, size, x86.RAX, m)
		} else {
			g.op2(x86.Movzx, size, x86.RAX, m)
		}
	case 4:
		g.op2(x86.Mov, 4, x86.RAX, m)
	default:
		g.op2(x86.Mov, 8, x86.RAX, m)
	}
}

func (g *gen) loadImm(v int64, t tp.Type) {
	if t.Size() == 8 && v != int64(int32(v)) {
		g.op2(x86.Movabs, 8, x86.RAX, x86.Imm(v))
		return
	}

	g.op2(x86.Mov, rsize(t), x86.RAX, x86.Imm(v))
}

func (g *gen) unary(sc *sem.Scope, x ast.Unary, want tp.Type) (tp.Type, error) {
	if x.Op == "-" {
		if lit, ok := x.X.(ast.IntLit); ok {
			t, err := g.info.ExprType(sc, x, want)
			if err != nil {
				return nil, err
			}

			g.loadImm(-int64(lit.Value), t)

			return t, nil
		}
	}

	t, err := g.expr(sc, x.X, want)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case "-":
		g.op1(x86.Neg, rsize(t), x86.RAX)
	case "!":
		g.op2(x86.Xor, 4, x86.RAX, x86.Imm(1))
	}

	return t, nil
}

func (g *gen) binary(sc *sem.Scope, x ast.Binary, want tp.Type) (tp.Type, error) {
	switch x.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		return g.compare(sc, x)
	case "<<", ">>":
		return g.shift(sc, x, want)
	}

	l, err := g.operands(sc, x, want)
	if err != nil {
		return nil, err
	}

	size := rsize(l)

	switch x.Op {
	case "+":
		g.op2(x86.Add, size, x86.RAX, x86.RBX)
	case "-":
		g.op2(x86.Sub, size, x86.RAX, x86.RBX)
	case "*":
		g.op2(x86.Imul, size, x86.RAX, x86.RBX)
	case "&":
		g.op2(x86.And, size, x86.RAX, x86.RBX)
	case "|":
		g.op2(x86.Or, size, x86.RAX, x86.RBX)
	case "^":
		g.op2(x86.Xor, size, x86.RAX, x86.RBX)
	case "/", "%":
		g.divide(l, x.Op == "%")
	default:
		return nil, errors.New("unexpected operator %v", x.Op)
	}

	return l, nil
}

// operands evaluates both sides leaving the left in the accumulator
// and the right in rbx. The non-literal side fixes the common type the
// same way the analyzer did.
func (g *gen) operands(sc *sem.Scope, x ast.Binary, want tp.Type) (tp.Type, error) {
	lw, rw := want, want

	if litNode(x.L) && !litNode(x.R) {
		if rt, err := g.info.ExprType(sc, x.R, want); err == nil {
			lw = rt
		}
	} else if lt, err := g.info.ExprType(sc, x.L, want); err == nil {
		rw = lt
	}

	l, err := g.expr(sc, x.L, lw)
	if err != nil {
		return nil, err
	}

	g.emit(x86.Inst{Op: x86.Push, Size: 8, Dst: x86.RAX})

	_, err = g.expr(sc, x.R, rw)
	if err != nil {
		return nil, err
	}

	g.op2(x86.Mov, 8, x86.RBX, x86.RAX)
	g.emit(x86.Inst{Op: x86.Pop, Size: 8, Dst: x86.RAX})

	return l, nil
}

func litNode(x ast.Node) bool {
	switch x := x.(type) {
	case ast.IntLit:
		return true
	case ast.Unary:
		_, ok := x.X.(ast.IntLit)
		return x.Op == "-" && ok
	}

	return false
}

func (g *gen) compare(sc *sem.Scope, x ast.Binary) (tp.Type, error) {
	l, err := g.operands(sc, x, nil)
	if err != nil {
		return nil, err
	}

	g.op2(x86.Cmp, rsize(l), x86.RAX, x86.RBX)
	g.emit(x86.Inst{Op: x86.Setcc, Size: 1, Cond: condFor(x.Op, tp.IsSigned(l)), Dst: x86.RAX})
	g.op2(x86.Movzx, 1, x86.RAX, x86.RAX)

	return tp.Bool{}, nil
}

func condFor(op string, signed bool) x86.Cond {
	switch op {
	case "==":
		return x86.E
	case "!=":
		return x86.NE
	case "<":
		if signed {
			return x86.L
		}

		return x86.B
	case "<=":
		if signed {
			return x86.LE
		}

		return x86.BE
	case ">":
		if signed {
			return x86.G
		}

		return x86.A
	default:
		if signed {
			return x86.GE
		}

		return x86.AE
	}
}

func (g *gen) shift(sc *sem.Scope, x ast.Binary, want tp.Type) (tp.Type, error) {
	l, err := g.expr(sc, x.L, want)
	if err != nil {
		return nil, err
	}

	g.emit(x86.Inst{Op: x86.Push, Size: 8, Dst: x86.RAX})

	_, err = g.expr(sc, x.R, tp.Int{Bits: 8})
	if err != nil {
		return nil, err
	}

	g.op2(x86.Mov, 4, x86.RCX, x86.RAX)
	g.emit(x86.Inst{Op: x86.Pop, Size: 8, Dst: x86.RAX})

	op := x86.Shl
	if x.Op == ">>" {
		op = x86.Shr
		if tp.IsSigned(l) {
			op = x86.Sar
		}
	}

	g.op1(op, rsize(l), x86.RAX)

	return l, nil
}

// divide expects the dividend in the accumulator and the divisor in
// rbx, both already widened.
func (g *gen) divide(t tp.Type, rem bool) {
	size := rsize(t)

	if tp.IsSigned(t) {
		if size == 8 {
			g.emit(x86.Inst{Op: x86.Cqo})
		} else {
			g.emit(x86.Inst{Op: x86.Cdq})
		}

		g.op1(x86.Idiv, size, x86.RBX)
	} else {
		g.op2(x86.Xor, 4, x86.RDX, x86.RDX)
		g.op1(x86.Div, size, x86.RBX)
	}

	if rem {
		g.op2(x86.Mov, size, x86.RAX, x86.RDX)
	}
}

// call pushes the arguments in order, pops them into the ABI registers
// and emits the call. The stack returns to its pre-call depth, so
// frame alignment is preserved.
func (g *gen) call(sc *sem.Scope, x ast.Call) (tp.Type, error) {
	sig := g.info.Sigs[x.Name]
	if sig == nil {
		return nil, errors.New("undefined function %v", x.Name)
	}

	for i, a := range x.Args {
		_, err := g.expr(sc, a, sig.In[i])
		if err != nil {
			return nil, err
		}

		g.emit(x86.Inst{Op: x86.Push, Size: 8, Dst: x86.RAX})
	}

	for i := len(x.Args) - 1; i >= 0; i-- {
		g.emit(x86.Inst{Op: x86.Pop, Size: 8, Dst: argRegs[i]})
	}

	g.emit(x86.Inst{Op: x86.Call, Label: x.Name})

	return sig.Out, nil
}
