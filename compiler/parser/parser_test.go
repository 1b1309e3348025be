package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivansh-2611/axis-lang/compiler/ast"
	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/lexer"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()

	toks, err := lexer.New([]byte(src)).Tokenize()
	require.NoError(t, err)

	p, err := New(toks).Program()
	require.NoError(t, err)

	return p
}

func parseErr(t *testing.T, src string) *diag.Error {
	t.Helper()

	toks, err := lexer.New([]byte(src)).Tokenize()
	require.NoError(t, err)

	_, err = New(toks).Program()
	require.Error(t, err)

	var de *diag.Error
	require.ErrorAs(t, err, &de)

	return de
}

func TestFuncDecl(t *testing.T) {
	p := parse(t, "func add(a: i32, b: i32) -> i32:\n    give a + b\n")

	require.Len(t, p.Funcs, 1)

	f := p.Funcs[0]
	assert.Equal(t, "add", f.Name)
	assert.Equal(t, "i32", f.Ret)
	require.Len(t, f.Params, 2)
	assert.Equal(t, ast.Param{Pos: f.Params[0].Pos, Name: "a", Type: "i32"}, f.Params[0])

	require.Len(t, f.Body, 1)

	ret, ok := f.Body[0].(ast.Return)
	require.True(t, ok)

	bin, ok := ret.X.(ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Op)
}

func TestModeDirective(t *testing.T) {
	p := parse(t, "mode compile\n\nfunc main() -> i32:\n    give 0\n")

	assert.Equal(t, "compile", p.Mode)
}

func TestPrecedence(t *testing.T) {
	p := parse(t, "func main() -> i32:\n    give 1 + 2 * 3\n")

	ret := p.Funcs[0].Body[0].(ast.Return)

	add := ret.X.(ast.Binary)
	require.Equal(t, "+", add.Op)

	mul := add.R.(ast.Binary)
	assert.Equal(t, "*", mul.Op)
}

func TestComparisonLowest(t *testing.T) {
	p := parse(t, "func main() -> i32:\n    x: bool = 1 + 2 < 3 | 4\n    give 0\n")

	d := p.Funcs[0].Body[0].(ast.VarDecl)

	cmp := d.Init.(ast.Binary)
	require.Equal(t, "<", cmp.Op)
	assert.Equal(t, "+", cmp.L.(ast.Binary).Op)
	assert.Equal(t, "|", cmp.R.(ast.Binary).Op)
}

func TestComparisonDoesNotChain(t *testing.T) {
	de := parseErr(t, "func main() -> i32:\n    give 1 < 2 < 3\n")

	assert.Equal(t, diag.Parse, de.Kind)
}

func TestShiftBindsTighterThanAnd(t *testing.T) {
	p := parse(t, "func main() -> i32:\n    give 1 & 2 << 3\n")

	and := p.Funcs[0].Body[0].(ast.Return).X.(ast.Binary)
	require.Equal(t, "&", and.Op)
	assert.Equal(t, "<<", and.R.(ast.Binary).Op)
}

func TestUnary(t *testing.T) {
	p := parse(t, "func main() -> i32:\n    give -5 >> 1\n")

	sh := p.Funcs[0].Body[0].(ast.Return).X.(ast.Binary)
	require.Equal(t, ">>", sh.Op)

	neg := sh.L.(ast.Unary)
	assert.Equal(t, "-", neg.Op)
}

func TestWhenElseChain(t *testing.T) {
	src := `func main() -> i32:
    when x == 1:
        give 1
    else when x == 2:
        give 2
    else:
        give 3
`

	p := parse(t, src)

	s := p.Funcs[0].Body[0].(ast.If)
	require.Len(t, s.Else, 1)

	inner := s.Else[0].(ast.If)
	require.Len(t, inner.Else, 1)

	_, bare := inner.Else[0].(ast.Return)
	assert.True(t, bare)
}

func TestWhileLoopBreakContinue(t *testing.T) {
	src := `func main() -> i32:
    while x < 10:
        x = x + 1
    loop:
        break
    repeat:
        stop
    give 0
`

	p := parse(t, src)

	body := p.Funcs[0].Body
	require.Len(t, body, 4)

	_, ok := body[0].(ast.While)
	require.True(t, ok)

	l1 := body[1].(ast.Loop)
	_, ok = l1.Body[0].(ast.Break)
	assert.True(t, ok)

	l2 := body[2].(ast.Loop)
	_, ok = l2.Body[0].(ast.Break)
	assert.True(t, ok)
}

func TestVarDeclAndAssign(t *testing.T) {
	src := "func main() -> i32:\n    x: i32 = 10\n    x = 20\n    give x\n"

	p := parse(t, src)

	d := p.Funcs[0].Body[0].(ast.VarDecl)
	assert.Equal(t, "x", d.Name)
	assert.Equal(t, "i32", d.Type)
	assert.Equal(t, uint64(10), d.Init.(ast.IntLit).Value)

	a := p.Funcs[0].Body[1].(ast.Assign)
	assert.Equal(t, "x", a.Name)
}

func TestWriteBuiltins(t *testing.T) {
	src := "func main() -> i32:\n    write(x)\n    writeln(\"hi\")\n    give 0\n"

	p := parse(t, src)

	w0 := p.Funcs[0].Body[0].(ast.Write)
	assert.False(t, w0.Newline)

	w1 := p.Funcs[0].Body[1].(ast.Write)
	assert.True(t, w1.Newline)
	assert.Equal(t, []byte("hi"), w1.X.(ast.StrLit).Value)
}

func TestReadBuiltins(t *testing.T) {
	src := "func main() -> i32:\n    x: i32 = read()\n    c: i32 = readchar()\n    when read_failed():\n        give 1\n    give 0\n"

	p := parse(t, src)

	d := p.Funcs[0].Body[0].(ast.VarDecl)
	b := d.Init.(ast.BuiltinCall)
	assert.Equal(t, ast.Read, b.Kind)

	cond := p.Funcs[0].Body[2].(ast.If).Cond.(ast.BuiltinCall)
	assert.Equal(t, ast.ReadFailed, cond.Kind)
}

func TestCallArgs(t *testing.T) {
	src := "func main() -> i32:\n    give fact(5)\n"

	p := parse(t, src)

	c := p.Funcs[0].Body[0].(ast.Return).X.(ast.Call)
	assert.Equal(t, "fact", c.Name)
	require.Len(t, c.Args, 1)
}

func TestBareGiveVoid(t *testing.T) {
	src := "func f() -> void:\n    give\n"

	p := parse(t, src)

	ret := p.Funcs[0].Body[0].(ast.Return)
	assert.Nil(t, ret.X)
}

func TestMissingReturnType(t *testing.T) {
	de := parseErr(t, "func main():\n    give 0\n")

	assert.Equal(t, diag.Parse, de.Kind)
}

func TestMissingColon(t *testing.T) {
	de := parseErr(t, "func main() -> i32\n    give 0\n")

	assert.Equal(t, diag.Parse, de.Kind)
	assert.Equal(t, 1, de.Line)
}

func TestTopLevelGarbage(t *testing.T) {
	de := parseErr(t, "x = 1\n")

	assert.Equal(t, diag.Parse, de.Kind)
}

func TestEmptyBlock(t *testing.T) {
	de := parseErr(t, "func main() -> i32:\nfunc f() -> i32:\n    give 0\n")

	assert.Equal(t, diag.Parse, de.Kind)
}
