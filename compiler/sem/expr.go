package sem

import (
	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/tp"
)

// ExprType checks x bottom-up and returns its type. want is a hint used
// to give integer literals a concrete type; it never forces a
// conversion, a mismatch is still reported by the caller.
func (info *Info) ExprType(sc *Scope, x ast.Node, want tp.Type) (tp.Type, error) {
	switch x := x.(type) {
	case ast.IntLit:
		return info.intLit(x, want, false)
	case ast.BoolLit:
		return tp.Bool{}, nil
	case ast.StrLit:
		info.Strings.Intern(x.Value)

		return tp.Str{}, nil
	case ast.Ident:
		sym := sc.Lookup(x.Name)
		if sym == nil {
			return nil, diag.New(diag.Name, x.Line, x.Col, "undefined variable %v", x.Name)
		}

		return sym.Type, nil
	case ast.Unary:
		return info.unary(sc, x, want)
	case ast.Binary:
		return info.binary(sc, x, want)
	case ast.Call:
		return info.call(sc, x)
	case ast.BuiltinCall:
		return info.builtin(x, want)
	default:
		return nil, diag.New(diag.Parse, 0, 0, "unexpected expression %T", x)
	}
}

// intLit types a literal. neg is set when the literal is directly under
// unary minus, which extends the allowed range by one.
func (info *Info) intLit(x ast.IntLit, want tp.Type, neg bool) (tp.Type, error) {
	t, ok := want.(tp.Int)
	if !ok {
		if (tp.Equal(want, tp.Bool{})) && x.Value <= 1 {
			return tp.Bool{}, nil
		}

		t = tp.Int{Bits: 32, Signed: true}
	}

	if !fits(x.Value, t, neg) {
		return nil, diag.New(diag.Range, x.Line, x.Col, "literal %d out of range of %v", x.Value, t)
	}

	return t, nil
}

func fits(v uint64, t tp.Int, neg bool) bool {
	if t.Signed {
		max := uint64(1)<<(t.Bits-1) - 1
		if neg {
			max++
		}

		return v <= max
	}

	if neg {
		return v == 0
	}

	return t.Bits == 64 || v < uint64(1)<<t.Bits
}

func (info *Info) unary(sc *Scope, x ast.Unary, want tp.Type) (tp.Type, error) {
	if x.Op == "-" {
		if lit, ok := x.X.(ast.IntLit); ok {
			return info.intLit(lit, want, true)
		}
	}

	t, err := info.ExprType(sc, x.X, want)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case "-":
		if !tp.IsSigned(t) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "unary - requires a signed integer, got %v", t)
		}

		return t, nil
	case "!":
		if (!tp.Equal(t, tp.Bool{})) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "! requires bool, got %v", t)
		}

		return t, nil
	default:
		return nil, diag.New(diag.Parse, x.Line, x.Col, "unexpected unary operator %v", x.Op)
	}
}

func (info *Info) binary(sc *Scope, x ast.Binary, want tp.Type) (tp.Type, error) {
	switch x.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		l, r, err := info.operands(sc, x, nil)
		if err != nil {
			return nil, err
		}

		if !tp.Equal(l, r) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "cannot compare %v to %v", l, r)
		}

		switch l.(type) {
		case tp.Int, tp.Bool:
		default:
			return nil, diag.New(diag.Type, x.Line, x.Col, "cannot compare values of type %v", l)
		}

		return tp.Bool{}, nil
	case "<<", ">>":
		l, err := info.ExprType(sc, x.L, want)
		if err != nil {
			return nil, err
		}

		if !tp.IsInt(l) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "%v requires an integer, got %v", x.Op, l)
		}

		// shift amount is widened to u8
		r, err := info.ExprType(sc, x.R, tp.Int{Bits: 8})
		if err != nil {
			return nil, err
		}

		if !tp.IsInt(r) || tp.IsSigned(r) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "shift amount must be an unsigned integer, got %v", r)
		}

		return l, nil
	case "+", "-", "*", "/", "%", "&", "|", "^":
		l, r, err := info.operands(sc, x, want)
		if err != nil {
			return nil, err
		}

		if !tp.IsInt(l) || !tp.IsInt(r) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "%v requires integers, got %v and %v", x.Op, l, r)
		}

		if !tp.Equal(l, r) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "mismatched operand types %v and %v", l, r)
		}

		return l, nil
	default:
		return nil, diag.New(diag.Parse, x.Line, x.Col, "unexpected operator %v", x.Op)
	}
}

// operands types both sides of a binary operator. The non-literal side
// is typed first so that a bare literal picks up the other operand's
// type instead of the default.
func (info *Info) operands(sc *Scope, x ast.Binary, want tp.Type) (l, r tp.Type, err error) {
	if isLit(x.L) && !isLit(x.R) {
		r, err = info.ExprType(sc, x.R, want)
		if err != nil {
			return nil, nil, err
		}

		l, err = info.ExprType(sc, x.L, r)

		return l, r, err
	}

	l, err = info.ExprType(sc, x.L, want)
	if err != nil {
		return nil, nil, err
	}

	r, err = info.ExprType(sc, x.R, l)

	return l, r, err
}

func isLit(x ast.Node) bool {
	switch x := x.(type) {
	case ast.IntLit:
		return true
	case ast.Unary:
		_, ok := x.X.(ast.IntLit)
		return x.Op == "-" && ok
	}

	return false
}

func (info *Info) call(sc *Scope, x ast.Call) (tp.Type, error) {
	sig, ok := info.Sigs[x.Name]
	if !ok {
		return nil, diag.New(diag.Name, x.Line, x.Col, "undefined function %v", x.Name)
	}

	if len(x.Args) != len(sig.In) {
		return nil, diag.New(diag.Arity, x.Line, x.Col, "%v takes %d arguments, got %d", x.Name, len(sig.In), len(x.Args))
	}

	for i, a := range x.Args {
		t, err := info.ExprType(sc, a, sig.In[i])
		if err != nil {
			return nil, err
		}

		if !tp.Equal(t, sig.In[i]) {
			return nil, diag.New(diag.Type, x.Line, x.Col, "argument %d of %v must be %v, got %v", i+1, x.Name, sig.In[i], t)
		}
	}

	return sig.Out, nil
}

func (info *Info) builtin(x ast.BuiltinCall, want tp.Type) (tp.Type, error) {
	if len(x.Args) != 0 {
		return nil, diag.New(diag.Arity, x.Line, x.Col, "%v takes no arguments, got %d", x.Kind, len(x.Args))
	}

	switch x.Kind {
	case ast.Readchar:
		return tp.Int{Bits: 32, Signed: true}, nil
	case ast.ReadFailed:
		return tp.Bool{}, nil
	case ast.Read, ast.Readln:
		switch want.(type) {
		case tp.Int:
			return want, nil
		case tp.Str:
			return want, nil
		}

		return nil, diag.New(diag.Type, x.Line, x.Col, "%v requires an integer or str destination", x.Kind)
	default:
		return nil, diag.New(diag.Parse, x.Line, x.Col, "unexpected builtin %v", x.Kind)
	}
}
