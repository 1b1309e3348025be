package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nikand.dev/go/cli"
	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler"
)

func main() {
	buildCmd := &cli.Command{
		Name:        "build,compile",
		Description: "compile a source file into an executable",
		Action:      buildAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output path"),
			cli.NewFlag("elf", true, "emit an ELF64 executable"),
			cli.NewFlag("raw", false, "emit the raw code blob instead"),
			cli.NewFlag("listing,v", false, "dump the assembly listing to stderr"),
		},
	}

	checkCmd := &cli.Command{
		Name:        "check",
		Description: "run diagnostics only, produce no output",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "axis",
		Description: "axis is a tool for compiling axis source code",
		Commands: []*cli.Command{
			buildCmd,
			checkCmd,
		},
		Flags: []*cli.Flag{
			cli.NewFlag("debug", "", "debug topics to log"),
			cli.HelpFlag,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func buildAct(c *cli.Command) (err error) {
	ctx := rootCtx(c)

	if len(c.Args) == 0 {
		fail("ParseError at command line: source file expected")
	}

	opts := compiler.Options{
		Raw:     c.Bool("raw") || !c.Bool("elf"),
		Listing: c.Bool("listing"),
	}

	for _, a := range c.Args {
		res, err := compiler.CompileFile(ctx, a, opts)
		if err != nil {
			fail("%v", err)
		}

		if opts.Listing {
			_, _ = os.Stderr.Write(res.Listing)
		}

		err = os.WriteFile(outputPath(c.String("output"), a), res.Obj, 0o755)
		if err != nil {
			fail("%v", err)
		}
	}

	return nil
}

func checkAct(c *cli.Command) (err error) {
	ctx := rootCtx(c)

	if len(c.Args) == 0 {
		fail("ParseError at command line: source file expected")
	}

	for _, a := range c.Args {
		err = compiler.CheckFile(ctx, a)
		if err != nil {
			fail("%v", err)
		}
	}

	return nil
}

func rootCtx(c *cli.Command) context.Context {
	tlog.SetVerbosity(c.String("debug"))

	return tlog.ContextWithSpan(context.Background(), tlog.Root())
}

func outputPath(out, src string) string {
	if out != "" {
		return out
	}

	out = strings.TrimSuffix(src, filepath.Ext(src))
	if out == src {
		out = src + ".out"
	}

	return out
}

// fail reports one diagnostic and exits non zero. No partial output is
// written before this point.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "axis: "+format+"\n", args...)
	os.Exit(1)
}
