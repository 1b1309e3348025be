package compiler

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivansh-2611/axis-lang/compiler/diag"
)

func compile(t *testing.T, src string, opts Options) *Result {
	t.Helper()

	res, err := Compile(context.Background(), "test.axs", []byte(src), opts)
	require.NoError(t, err)

	return res
}

func TestReturnConstant(t *testing.T) {
	res := compile(t, "func main() -> i32:\n    give 42\n", Options{Raw: true})

	// mov eax, 42 in the main body
	assert.True(t, bytes.Contains(res.Obj, []byte{0xB8, 0x2A, 0, 0, 0}))
	// the entry stub exits through syscall
	assert.True(t, bytes.Contains(res.Obj, []byte{0x0F, 0x05}))
}

func TestExecutableForm(t *testing.T) {
	res := compile(t, "func main() -> i32:\n    give 0\n", Options{})

	require.Greater(t, len(res.Obj), 0x1000)
	assert.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, res.Obj[:4])
}

func TestFactorialCalls(t *testing.T) {
	res := compile(t, `func fact(n: i32) -> i32:
    when n <= 1:
        give 1
    give n * fact(n - 1)

func main() -> i32:
    give fact(5) - 120
`, Options{Raw: true})

	// _start calls main, main calls fact, fact calls itself
	assert.GreaterOrEqual(t, bytes.Count(res.Obj, []byte{0xE8}), 3)
}

func TestSignedShiftRight(t *testing.T) {
	res := compile(t, `func main() -> i32:
    a: i32 = -16
    give a >> 2
`, Options{Raw: true})

	// sar eax, cl
	assert.True(t, bytes.Contains(res.Obj, []byte{0xD3, 0xF8}))
	// shr eax, cl must not appear
	assert.False(t, bytes.Contains(res.Obj, []byte{0xD3, 0xE8}))
}

func TestLongBranchWidens(t *testing.T) {
	var sb strings.Builder

	sb.WriteString("func main() -> i32:\n    a: i32 = 0\n    when a == 0:\n")
	for i := 0; i < 30; i++ {
		sb.WriteString("        a = a + 1\n")
	}
	sb.WriteString("    give a\n")

	res := compile(t, sb.String(), Options{Raw: true})

	// the branch over the body does not fit a byte displacement
	assert.True(t, bytes.Contains(res.Obj, []byte{0x0F, 0x84}))
}

func TestWriteString(t *testing.T) {
	res := compile(t, `func main() -> i32:
    writeln("hello")
    give 0
`, Options{Raw: true})

	assert.True(t, bytes.Contains(res.Obj, []byte("hello\x00")))
	assert.True(t, bytes.Contains(res.Obj, []byte("\n\x00")))
}

func TestListing(t *testing.T) {
	res := compile(t, "func main() -> i32:\n    give 0\n", Options{Raw: true, Listing: true})

	text := string(res.Listing)

	assert.Contains(t, text, "_start:")
	assert.Contains(t, text, "main:")
	assert.Contains(t, text, "syscall")
	assert.Contains(t, text, "ret")
}

func TestDeterministic(t *testing.T) {
	src := `func main() -> i32:
    x: i32 = read()
    writeln(x * 2)
    give 0
`

	a := compile(t, src, Options{})
	b := compile(t, src, Options{})

	assert.Equal(t, a.Obj, b.Obj)
}

func TestReadFailedLoop(t *testing.T) {
	res := compile(t, `func main() -> i32:
    x: i32 = readln()
    while read_failed():
        x = readln()
    give x
`, Options{})

	// the failure flag lives in bss behind the load segment
	require.Greater(t, len(res.Obj), 0x1000)
	assert.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, res.Obj[:4])
}

func TestCheckReportsPosition(t *testing.T) {
	err := Check(context.Background(), "bad.axs", []byte("func main() -> i32:\n    give x\n"))
	require.Error(t, err)

	var de *diag.Error
	require.ErrorAs(t, err, &de)

	assert.Equal(t, diag.Name, de.Kind)
	assert.Equal(t, "bad.axs", de.File)
	assert.Equal(t, 2, de.Line)
	assert.Contains(t, err.Error(), "NameError at bad.axs:2:")
}

func TestCheckPasses(t *testing.T) {
	err := Check(context.Background(), "ok.axs", []byte(`func main() -> i32:
    i: i32 = 0
    while i < 10:
        writeln(i)
        i = i + 1
    give 0
`))
	require.NoError(t, err)
}

func TestModeRejected(t *testing.T) {
	err := Check(context.Background(), "m.axs", []byte("mode interpret\n\nfunc main() -> i32:\n    give 0\n"))
	require.Error(t, err)

	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.Parse, de.Kind)
}

func TestModeCompileAccepted(t *testing.T) {
	err := Check(context.Background(), "m.axs", []byte("mode compile\n\nfunc main() -> i32:\n    give 0\n"))
	require.NoError(t, err)
}
