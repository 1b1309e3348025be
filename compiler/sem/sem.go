package sem

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/tp"
)

type (
	// Info is the analysis result consumed by the code generator.
	Info struct {
		Sigs   map[string]*FuncSig
		Frames map[string]int

		Strings Strings

		// NeedsBSS is set when the program touches the read failure flag.
		NeedsBSS bool
	}

	analyzer struct {
		info *Info

		fn     *ast.Func
		sig    *FuncSig
		inLoop int
	}
)

// MaxParams is the register argument limit of the calling convention.
const MaxParams = 6

func Analyze(ctx context.Context, prog *ast.Program) (info *Info, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "analyze", "funcs", len(prog.Funcs))
	defer tr.Finish("err", &err)

	info = &Info{
		Sigs:   map[string]*FuncSig{},
		Frames: map[string]int{},
	}

	a := &analyzer{info: info}

	for _, f := range prog.Funcs {
		sig, err := a.signature(f)
		if err != nil {
			return nil, err
		}

		if _, ok := info.Sigs[f.Name]; ok {
			return nil, diag.New(diag.Name, f.Line, f.Col, "function %v redeclared", f.Name)
		}

		if _, ok := ast.BuiltinByName(f.Name); ok || f.Name == "write" || f.Name == "writeln" {
			return nil, diag.New(diag.Name, f.Line, f.Col, "function %v shadows a builtin", f.Name)
		}

		info.Sigs[f.Name] = sig
	}

	m, ok := info.Sigs["main"]
	if !ok {
		return nil, diag.New(diag.Name, 1, 1, "main function not found")
	}

	if len(m.In) != 0 || !tp.Equal(m.Out, tp.Int{Bits: 32, Signed: true}) {
		f := funcByName(prog, "main")
		return nil, diag.New(diag.Type, f.Line, f.Col, "main must be func main() -> i32")
	}

	for _, f := range prog.Funcs {
		err = a.checkFunc(f)
		if err != nil {
			return nil, err
		}
	}

	if tr.If("dump_frames") {
		for name, size := range info.Frames {
			tr.Printw("frame", "func", name, "size", size)
		}
	}

	return info, nil
}

func (a *analyzer) signature(f *ast.Func) (*FuncSig, error) {
	if len(f.Params) > MaxParams {
		return nil, diag.New(diag.Arity, f.Line, f.Col, "function %v has %d parameters, at most %d supported", f.Name, len(f.Params), MaxParams)
	}

	sig := &FuncSig{Name: f.Name}

	for _, p := range f.Params {
		t, ok := tp.ByName(p.Type)
		if !ok {
			return nil, diag.New(diag.Type, p.Line, p.Col, "unknown type %v", p.Type)
		}

		if (t == tp.Void{}) {
			return nil, diag.New(diag.Type, p.Line, p.Col, "parameter %v cannot be void", p.Name)
		}

		sig.In = append(sig.In, t)
		sig.InNames = append(sig.InNames, p.Name)
	}

	out, ok := tp.ByName(f.Ret)
	if !ok {
		return nil, diag.New(diag.Type, f.Line, f.Col, "unknown type %v", f.Ret)
	}

	sig.Out = out

	return sig, nil
}

func (a *analyzer) checkFunc(f *ast.Func) error {
	a.fn = f
	a.sig = a.info.Sigs[f.Name]
	a.inLoop = 0

	sc := NewScope(nil)
	frame := &Frame{}

	for i, p := range f.Params {
		sym := &Symbol{Name: p.Name, Type: a.sig.In[i]}
		sym.Off = frame.Alloc(sym.Type)

		if !sc.Define(sym) {
			return diag.New(diag.Name, p.Line, p.Col, "parameter %v redeclared", p.Name)
		}
	}

	err := a.block(sc, frame, f.Body)
	if err != nil {
		return err
	}

	a.info.Frames[f.Name] = frame.Size()

	return nil
}

func (a *analyzer) block(sc *Scope, frame *Frame, b ast.Block) error {
	for _, s := range b {
		err := a.stmt(sc, frame, s)
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *analyzer) stmt(sc *Scope, frame *Frame, s ast.Node) error {
	switch s := s.(type) {
	case ast.VarDecl:
		t, ok := tp.ByName(s.Type)
		if !ok {
			return diag.New(diag.Type, s.Line, s.Col, "unknown type %v", s.Type)
		}

		if (t == tp.Void{}) {
			return diag.New(diag.Type, s.Line, s.Col, "variable %v cannot be void", s.Name)
		}

		if s.Init != nil {
			it, err := a.info.ExprType(sc, s.Init, t)
			if err != nil {
				return err
			}

			if !tp.Equal(it, t) {
				return diag.New(diag.Type, s.Line, s.Col, "cannot assign %v to %v of type %v", it, s.Name, t)
			}
		}

		sym := &Symbol{Name: s.Name, Type: t}
		sym.Off = frame.Alloc(t)

		if !sc.Define(sym) {
			return diag.New(diag.Name, s.Line, s.Col, "variable %v redeclared", s.Name)
		}

		return a.trackReads(s.Init)
	case ast.Assign:
		sym := sc.Lookup(s.Name)
		if sym == nil {
			return diag.New(diag.Name, s.Line, s.Col, "undefined variable %v", s.Name)
		}

		t, err := a.info.ExprType(sc, s.X, sym.Type)
		if err != nil {
			return err
		}

		if !tp.Equal(t, sym.Type) {
			return diag.New(diag.Type, s.Line, s.Col, "cannot assign %v to %v of type %v", t, s.Name, sym.Type)
		}

		return a.trackReads(s.X)
	case ast.If:
		err := a.cond(sc, s.Cond, s.Line, s.Col)
		if err != nil {
			return err
		}

		err = a.block(NewScope(sc), frame, s.Then)
		if err != nil {
			return err
		}

		if s.Else != nil {
			return a.block(NewScope(sc), frame, s.Else)
		}

		return nil
	case ast.While:
		err := a.cond(sc, s.Cond, s.Line, s.Col)
		if err != nil {
			return err
		}

		a.inLoop++
		defer func() { a.inLoop-- }()

		return a.block(NewScope(sc), frame, s.Body)
	case ast.Loop:
		a.inLoop++
		defer func() { a.inLoop-- }()

		return a.block(NewScope(sc), frame, s.Body)
	case ast.Break:
		if a.inLoop == 0 {
			return diag.New(diag.Parse, s.Line, s.Col, "break outside of loop")
		}

		return nil
	case ast.Continue:
		if a.inLoop == 0 {
			return diag.New(diag.Parse, s.Line, s.Col, "continue outside of loop")
		}

		return nil
	case ast.Return:
		if (tp.Equal(a.sig.Out, tp.Void{})) {
			if s.X != nil {
				return diag.New(diag.Type, s.Line, s.Col, "void function %v returns a value", a.fn.Name)
			}

			return nil
		}

		if s.X == nil {
			return diag.New(diag.Type, s.Line, s.Col, "function %v must return %v", a.fn.Name, a.sig.Out)
		}

		t, err := a.info.ExprType(sc, s.X, a.sig.Out)
		if err != nil {
			return err
		}

		if !tp.Equal(t, a.sig.Out) {
			return diag.New(diag.Type, s.Line, s.Col, "function %v returns %v, got %v", a.fn.Name, a.sig.Out, t)
		}

		return a.trackReads(s.X)
	case ast.Write:
		t, err := a.info.ExprType(sc, s.X, nil)
		if err != nil {
			return err
		}

		switch t.(type) {
		case tp.Int, tp.Bool, tp.Str:
		default:
			return diag.New(diag.Type, s.Line, s.Col, "cannot write value of type %v", t)
		}

		return a.trackReads(s.X)
	case ast.ExprStmt:
		_, err := a.info.ExprType(sc, s.X, nil)
		if err != nil {
			return err
		}

		return a.trackReads(s.X)
	default:
		return diag.New(diag.Parse, 0, 0, "unexpected statement %T", s)
	}
}

func (a *analyzer) cond(sc *Scope, x ast.Node, line, col int) error {
	t, err := a.info.ExprType(sc, x, nil)
	if err != nil {
		return err
	}

	if (!tp.Equal(t, tp.Bool{})) {
		return diag.New(diag.Type, line, col, "condition must be bool, got %v", t)
	}

	return a.trackReads(x)
}

// trackReads marks the bss flag as needed when an expression parses input.
func (a *analyzer) trackReads(x ast.Node) error {
	switch x := x.(type) {
	case nil:
	case ast.BuiltinCall:
		switch x.Kind {
		case ast.Read, ast.Readln, ast.ReadFailed:
			a.info.NeedsBSS = true
		}
	case ast.Unary:
		return a.trackReads(x.X)
	case ast.Binary:
		err := a.trackReads(x.L)
		if err != nil {
			return err
		}

		return a.trackReads(x.R)
	case ast.Call:
		for _, arg := range x.Args {
			err := a.trackReads(arg)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func funcByName(prog *ast.Program, name string) *ast.Func {
	for _, f := range prog.Funcs {
		if f.Name == name {
			return f
		}
	}

	return &ast.Func{}
}
