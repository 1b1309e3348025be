package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/codegen"
	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/elf"
	"github.com/shivansh-2611/axis-lang/compiler/lexer"
	"github.com/shivansh-2611/axis-lang/compiler/parser"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

type (
	// Options select the output form.
	Options struct {
		// Raw emits the bare [text || rodata] blob instead of an ELF
		// executable.
		Raw bool

		// Listing renders the generated assembly as text.
		Listing bool
	}

	// Result is the compiled output. Each invocation is pure: the same
	// source and options produce the same bytes.
	Result struct {
		Obj     []byte
		Listing []byte
	}
)

func CompileFile(ctx context.Context, name string, opts Options) (*Result, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, opts)
}

func Compile(ctx context.Context, name string, text []byte, opts Options) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name)
	defer tr.Finish("err", &err)

	prog, info, err := analyze(ctx, name, text)
	if err != nil {
		return nil, err
	}

	p, err := codegen.Generate(ctx, prog, info)
	if err != nil {
		return nil, errors.Wrap(err, "codegen")
	}

	obj, err := x86.Assemble(ctx, p.Insts)
	if err != nil {
		return nil, errors.Wrap(err, "assemble")
	}

	img := &elf.Image{Obj: obj, Rodata: p.Rodata, BSS: p.BSS}

	res = &Result{}

	if opts.Raw {
		res.Obj, err = elf.Raw(ctx, img)
	} else {
		res.Obj, err = elf.Executable(ctx, img)
	}
	if err != nil {
		return nil, errors.Wrap(err, "layout")
	}

	if opts.Listing {
		res.Listing = x86.Listing(nil, p.Insts)
	}

	return res, nil
}

// CheckFile runs the front end only, reporting diagnostics without
// producing output.
func CheckFile(ctx context.Context, name string) error {
	text, err := os.ReadFile(name)
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	return Check(ctx, name, text)
}

func Check(ctx context.Context, name string, text []byte) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "check", "name", name)
	defer tr.Finish("err", &err)

	_, _, err = analyze(ctx, name, text)

	return err
}

func analyze(ctx context.Context, name string, text []byte) (prog *ast.Program, info *sem.Info, err error) {
	defer func() {
		var d *diag.Error
		if errors.As(err, &d) && d.File == "" {
			d.File = name
		}
	}()

	toks, err := lexer.Tokenize(ctx, text)
	if err != nil {
		return nil, nil, err
	}

	prog, err = parser.Parse(ctx, toks)
	if err != nil {
		return nil, nil, err
	}

	if prog.Mode != "" && prog.Mode != "compile" {
		return nil, nil, diag.New(diag.Parse, 1, 1, "mode %v is not supported, only compile", prog.Mode)
	}

	info, err = sem.Analyze(ctx, prog)
	if err != nil {
		return nil, nil, err
	}

	return prog, info, nil
}
