package elf

import (
	"context"
	"encoding/binary"

	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/diag"
	"github.com/shivansh-2611/axis-lang/compiler/sem"
	"github.com/shivansh-2611/axis-lang/compiler/x86"
)

// Image is assembled text together with its static data, ready to be
// laid out either as an executable or a raw blob.
type Image struct {
	Obj    *x86.Obj
	Rodata []sem.StrEntry
	BSS    int
}

const (
	// VBase is the virtual address the single PT_LOAD segment maps at.
	VBase = 0x400000

	// TextOff is the file offset of _start; the entry point is
	// VBase+TextOff.
	TextOff = 0x1000

	headerSize  = 64
	pheaderSize = 56
)

// Executable lays the image out as a one segment ELF64 executable and
// patches every relocation with final virtual addresses.
func Executable(ctx context.Context, img *Image) (out []byte, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "elf", "text", len(img.Obj.Text), "strings", len(img.Rodata), "bss", img.BSS)
	defer tr.Finish("err", &err)

	text, err := patch(img, VBase+TextOff)
	if err != nil {
		return nil, err
	}

	rodata := rodataBytes(img.Rodata)
	size := TextOff + len(text) + len(rodata) + img.BSS

	out = make([]byte, 0, size)
	out = header(out, VBase+TextOff)
	out = pheader(out, uint64(size))
	out = append(out, make([]byte, TextOff-headerSize-pheaderSize)...)
	out = append(out, text...)
	out = append(out, rodata...)
	out = append(out, make([]byte, img.BSS)...)

	if tr.If("dump_elf") {
		tr.Printw("layout", "entry", tlog.FormatNext("%#x"), VBase+TextOff, "filesz", tlog.FormatNext("%#x"), size, "rodata_off", tlog.FormatNext("%#x"), TextOff+len(text))
	}

	return out, nil
}

// Raw lays the image out as a bare [text || rodata] blob with
// relocations resolved against base zero.
func Raw(ctx context.Context, img *Image) (out []byte, err error) {
	text, err := patch(img, 0)
	if err != nil {
		return nil, err
	}

	return append(text, rodataBytes(img.Rodata)...), nil
}

// patch rewrites the relocation sites against the given text base
// address. Static data follows the text directly.
func patch(img *Image, base int) ([]byte, error) {
	text := make([]byte, len(img.Obj.Text))
	copy(text, img.Obj.Text)

	syms := symbols(img, base)

	for _, r := range img.Obj.Relocs {
		addr, ok := syms[r.Sym]
		if !ok {
			return nil, diag.NewInternal("", r.Sym, "undefined symbol")
		}

		switch r.Kind {
		case x86.Abs64:
			binary.LittleEndian.PutUint64(text[r.Off:], uint64(addr))
		case x86.PCRel32:
			binary.LittleEndian.PutUint32(text[r.Off:], uint32(int32(addr-(base+r.Off+4))))
		default:
			return nil, diag.NewInternal("", r.Sym, "unknown relocation kind %d", r.Kind)
		}
	}

	return text, nil
}

// symbols assigns every static symbol its address: text labels first,
// string labels after the text, the bss flag last.
func symbols(img *Image, base int) map[string]int {
	syms := make(map[string]int, len(img.Obj.Labels)+len(img.Rodata)+1)

	for l, off := range img.Obj.Labels {
		syms[l] = base + off
	}

	addr := base + len(img.Obj.Text)

	for _, s := range img.Rodata {
		syms[s.Label] = addr
		addr += len(s.Data) + 1
	}

	if img.BSS > 0 {
		syms["_read_failed"] = addr
	}

	return syms
}

// rodataBytes concatenates the interned strings, each null terminated.
func rodataBytes(list []sem.StrEntry) []byte {
	var b []byte

	for _, s := range list {
		b = append(b, s.Data...)
		b = append(b, 0)
	}

	return b
}

func header(b []byte, entry uint64) []byte {
	b = append(b,
		0x7F, 'E', 'L', 'F',
		2, // ELFCLASS64
		1, // ELFDATA2LSB
		1, // EV_CURRENT
		0,
		0, 0, 0, 0, 0, 0, 0, 0,
	)

	b = binary.LittleEndian.AppendUint16(b, 2)    // ET_EXEC
	b = binary.LittleEndian.AppendUint16(b, 0x3E) // EM_X86_64
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = binary.LittleEndian.AppendUint64(b, entry)
	b = binary.LittleEndian.AppendUint64(b, headerSize) // phoff
	b = binary.LittleEndian.AppendUint64(b, 0)          // shoff
	b = binary.LittleEndian.AppendUint32(b, 0)          // flags
	b = binary.LittleEndian.AppendUint16(b, headerSize)
	b = binary.LittleEndian.AppendUint16(b, pheaderSize)
	b = binary.LittleEndian.AppendUint16(b, 1) // phnum
	b = binary.LittleEndian.AppendUint16(b, 0) // shentsize
	b = binary.LittleEndian.AppendUint16(b, 0) // shnum
	b = binary.LittleEndian.AppendUint16(b, 0) // shstrndx

	return b
}

func pheader(b []byte, size uint64) []byte {
	b = binary.LittleEndian.AppendUint32(b, 1) // PT_LOAD
	b = binary.LittleEndian.AppendUint32(b, 5) // R|X
	b = binary.LittleEndian.AppendUint64(b, 0) // offset
	b = binary.LittleEndian.AppendUint64(b, VBase)
	b = binary.LittleEndian.AppendUint64(b, VBase)
	b = binary.LittleEndian.AppendUint64(b, size) // filesz
	b = binary.LittleEndian.AppendUint64(b, size) // memsz
	b = binary.LittleEndian.AppendUint64(b, 0x1000)

	return b
}
