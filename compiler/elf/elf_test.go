package elf

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

func TestExecutableHeader(t *testing.T) {
	img := &Image{
		Obj: &x86.Obj{
			Text:   []byte{0xC3},
			Labels: map[string]int{"_start": 0},
		},
	}

	out, err := Executable(context.Background(), img)
	require.NoError(t, err)

	require.Equal(t, TextOff+1, len(out))

	assert.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, out[:4])
	assert.Equal(t, byte(2), out[4]) // ELFCLASS64
	assert.Equal(t, byte(1), out[5]) // little endian

	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(out[16:]))    // ET_EXEC
	assert.Equal(t, uint16(0x3E), binary.LittleEndian.Uint16(out[18:])) // EM_X86_64
	assert.Equal(t, uint64(0x401000), binary.LittleEndian.Uint64(out[24:]))
	assert.Equal(t, uint64(64), binary.LittleEndian.Uint64(out[32:])) // phoff
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[56:]))  // phnum

	ph := out[64:]
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(ph)) // PT_LOAD
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(ph[4:]))
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(ph[8:]))
	assert.Equal(t, uint64(VBase), binary.LittleEndian.Uint64(ph[16:]))

	size := binary.LittleEndian.Uint64(ph[32:])
	assert.Equal(t, uint64(TextOff+1), size)
	assert.Equal(t, size, binary.LittleEndian.Uint64(ph[40:]))              // memsz
	assert.Equal(t, uint64(0x1000), binary.LittleEndian.Uint64(ph[48:]))

	assert.Equal(t, byte(0xC3), out[TextOff])
}

func TestRodataPlacement(t *testing.T) {
	img := &Image{
		Obj: &x86.Obj{
			Text:   []byte{0xC3},
			Labels: map[string]int{"_start": 0},
		},
		Rodata: []sem.StrEntry{
			{Label: ".L.str.0", Data: []byte("hi")},
			{Label: ".L.str.1", Data: []byte("x")},
		},
	}

	out, err := Executable(context.Background(), img)
	require.NoError(t, err)

	// strings follow the text, each null terminated
	assert.Equal(t, []byte{'h', 'i', 0, 'x', 0}, out[TextOff+1:])
}

func TestAbs64Patch(t *testing.T) {
	text := append([]byte{0x48, 0xBB}, make([]byte, 8)...)

	img := &Image{
		Obj: &x86.Obj{
			Text:   text,
			Labels: map[string]int{"_start": 0},
			Relocs: []x86.Reloc{{Off: 2, Sym: "_read_failed", Kind: x86.Abs64}},
		},
		BSS: 1,
	}

	out, err := Executable(context.Background(), img)
	require.NoError(t, err)

	// the flag lives right after the text
	want := uint64(VBase + TextOff + len(text))
	assert.Equal(t, want, binary.LittleEndian.Uint64(out[TextOff+2:]))

	// the bss byte is present in the file as a zero
	assert.Equal(t, TextOff+len(text)+1, len(out))
	assert.Zero(t, out[len(out)-1])
}

func TestPCRel32Patch(t *testing.T) {
	// lea rsi, [rip+disp] followed by ret, string right after the text
	text := []byte{0x48, 0x8D, 0x35, 0, 0, 0, 0, 0xC3}

	img := &Image{
		Obj: &x86.Obj{
			Text:   text,
			Labels: map[string]int{"_start": 0},
			Relocs: []x86.Reloc{{Off: 3, Sym: ".L.str.0", Kind: x86.PCRel32}},
		},
		Rodata: []sem.StrEntry{{Label: ".L.str.0", Data: []byte("hi")}},
	}

	out, err := Executable(context.Background(), img)
	require.NoError(t, err)

	// target - next instruction address: 8 - 7 = 1
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(out[TextOff+3:]))
}

func TestRaw(t *testing.T) {
	text := []byte{0x48, 0x8D, 0x35, 0, 0, 0, 0, 0xC3}

	img := &Image{
		Obj: &x86.Obj{
			Text:   text,
			Labels: map[string]int{"_start": 0},
			Relocs: []x86.Reloc{{Off: 3, Sym: ".L.str.0", Kind: x86.PCRel32}},
		},
		Rodata: []sem.StrEntry{{Label: ".L.str.0", Data: []byte("hi")}},
	}

	out, err := Raw(context.Background(), img)
	require.NoError(t, err)

	// no header, text then strings, relocations against base zero
	require.Equal(t, len(text)+3, len(out))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(out[3:]))
	assert.Equal(t, []byte{'h', 'i', 0}, out[len(text):])
}

func TestUndefinedSymbol(t *testing.T) {
	img := &Image{
		Obj: &x86.Obj{
			Text:   make([]byte, 10),
			Labels: map[string]int{},
			Relocs: []x86.Reloc{{Off: 2, Sym: "nope", Kind: x86.Abs64}},
		},
	}

	_, err := Executable(context.Background(), img)
	require.Error(t, err)

	var ie *diag.Internal
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "nope", ie.Label)
}

func TestTextLabelAddresses(t *testing.T) {
	// a call patched by the assembler needs no relocation, but label
	// addresses still resolve for movabs references into the text
	img := &Image{
		Obj: &x86.Obj{
			Text:   append([]byte{0x48, 0xB8}, make([]byte, 8)...),
			Labels: map[string]int{"_start": 0, "main": 4},
			Relocs: []x86.Reloc{{Off: 2, Sym: "main", Kind: x86.Abs64}},
		},
	}

	out, err := Executable(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, uint64(VBase+TextOff+4), binary.LittleEndian.Uint64(out[TextOff+2:]))
}
