package x86

import (
	"encoding/binary"

	"github.com/shivansh-2611/axis-lang/compiler/diag"
)

type (
	// enc builds the byte form of a single instruction. Relocation
	// offsets are relative to the instruction start; the assembler
	// rebases them.
	enc struct {
		b      []byte
		relocs []Reloc
	}
)

// alu /digit extensions shared by the 80/81/83 immediate forms and the
// base opcode scheme digit*8 + 0x00/0x01.
var aluDigit = map[Op]byte{
	Add: 0,
	Or:  1,
	And: 4,
	Sub: 5,
	Xor: 6,
	Cmp: 7,
}

var shiftDigit = map[Op]byte{
	Shl: 4,
	Shr: 5,
	Sar: 7,
}

// encode emits the byte form of in. Jump family instructions are
// encoded by the assembler which owns displacement resolution.
func encode(in Inst) ([]byte, []Reloc, error) {
	e := &enc{}

	err := e.inst(in)
	if err != nil {
		return nil, nil, err
	}

	return e.b, e.relocs, nil
}

func (e *enc) inst(in Inst) error {
	switch in.Op {
	case Push, Pop:
		r, ok := in.Dst.(Reg)
		if !ok {
			return e.bad(in)
		}

		if r >= R8 {
			e.byte(0x41)
		}

		op := byte(0x50)
		if in.Op == Pop {
			op = 0x58
		}

		e.byte(op + byte(r&7))

		return nil
	case Mov:
		return e.mov(in)
	case Movabs:
		return e.movabs(in)
	case Movsx, Movzx:
		return e.movx(in)
	case Movsxd:
		dst, ok := in.Dst.(Reg)
		src, ok2 := in.Src.(Reg)
		if !ok || !ok2 {
			return e.bad(in)
		}

		e.rex(true, dst, RAX, src, 4)
		e.byte(0x63)
		e.modRM(3, byte(dst&7), byte(src&7))

		return nil
	case Lea:
		dst, ok := in.Dst.(Reg)
		sym, ok2 := in.Src.(Sym)
		if !ok || !ok2 {
			return e.bad(in)
		}

		e.rex(true, dst, RAX, RAX, 8)
		e.byte(0x8D)
		e.modRM(0, byte(dst&7), 5)
		e.reloc(string(sym), PCRel32)
		e.u32(0)

		return nil
	case Add, Sub, And, Or, Xor, Cmp:
		return e.alu(in)
	case Test:
		dst, ok := in.Dst.(Reg)
		src, ok2 := in.Src.(Reg)
		if !ok || !ok2 {
			return e.bad(in)
		}

		e.sizePrefix(in.Size)
		e.rexRM(src, dst, in.Size)
		e.byte(opBySize(0x85, in.Size))
		e.modRM(3, byte(src&7), byte(dst&7))

		return nil
	case Shl, Shr, Sar:
		return e.shift(in)
	case Neg, Not, Idiv, Div:
		r, ok := in.Dst.(Reg)
		if !ok {
			return e.bad(in)
		}

		digit := map[Op]byte{Not: 2, Neg: 3, Div: 6, Idiv: 7}[in.Op]

		e.sizePrefix(in.Size)
		e.rexRM(RAX, r, in.Size)
		e.byte(opBySize(0xF7, in.Size))
		e.modRM(3, digit, byte(r&7))

		return nil
	case Imul:
		dst, ok := in.Dst.(Reg)
		src, ok2 := in.Src.(Reg)
		if !ok || !ok2 {
			return e.bad(in)
		}

		e.rex(in.Size == 8, dst, RAX, src, in.Size)
		e.byte(0x0F, 0xAF)
		e.modRM(3, byte(dst&7), byte(src&7))

		return nil
	case Cdq:
		e.byte(0x99)
		return nil
	case Cqo:
		e.byte(0x48, 0x99)
		return nil
	case Setcc:
		r, ok := in.Dst.(Reg)
		if !ok {
			return e.bad(in)
		}

		e.rexRM(RAX, r, 1)
		e.byte(0x0F, 0x90+byte(in.Cond))
		e.modRM(3, 0, byte(r&7))

		return nil
	case Ret:
		e.byte(0xC3)
		return nil
	case Syscall:
		e.byte(0x0F, 0x05)
		return nil
	default:
		return e.bad(in)
	}
}

func (e *enc) mov(in Inst) error {
	switch dst := in.Dst.(type) {
	case Reg:
		switch src := in.Src.(type) {
		case Reg:
			e.sizePrefix(in.Size)
			e.rexRM(src, dst, in.Size)
			e.byte(opBySize(0x89, in.Size))
			e.modRM(3, byte(src&7), byte(dst&7))

			return nil
		case Mem:
			e.sizePrefix(in.Size)
			e.rexMem(dst, src, in.Size)
			e.byte(opBySize(0x8B, in.Size))
			e.mem(byte(dst&7), src)

			return nil
		case Imm:
			return e.movImm(dst, src, in.Size)
		}
	case Mem:
		switch src := in.Src.(type) {
		case Reg:
			e.sizePrefix(in.Size)
			e.rexMem(src, dst, in.Size)
			e.byte(opBySize(0x89, in.Size))
			e.mem(byte(src&7), dst)

			return nil
		case Imm:
			e.sizePrefix(in.Size)
			e.rexMem(RAX, dst, in.Size)

			if in.Size == 1 {
				e.byte(0xC6)
				e.mem(0, dst)
				e.byte(byte(src))
			} else {
				e.byte(0xC7)
				e.mem(0, dst)
				e.imm(int64(src), in.Size)
			}

			return nil
		}
	}

	return e.bad(in)
}

func (e *enc) movImm(dst Reg, src Imm, size int) error {
	switch size {
	case 1:
		e.rexRM(RAX, dst, 1)
		e.byte(0xB0 + byte(dst&7))
		e.byte(byte(src))
	case 2:
		e.byte(0x66)
		e.rexRM(RAX, dst, 2)
		e.byte(0xB8 + byte(dst&7))
		e.u16(uint16(src))
	case 4:
		e.rexRM(RAX, dst, 4)
		e.byte(0xB8 + byte(dst&7))
		e.u32(uint32(src))
	default:
		if int64(src) == int64(int32(src)) {
			// sign extended imm32 form
			e.rexRM(RAX, dst, 8)
			e.byte(0xC7)
			e.modRM(3, 0, byte(dst&7))
			e.u32(uint32(src))
		} else {
			e.rexRM(RAX, dst, 8)
			e.byte(0xB8 + byte(dst&7))
			e.u64(uint64(src))
		}
	}

	return nil
}

func (e *enc) movabs(in Inst) error {
	dst, ok := in.Dst.(Reg)
	if !ok {
		return e.bad(in)
	}

	e.rexRM(RAX, dst, 8)
	e.byte(0xB8 + byte(dst&7))

	switch src := in.Src.(type) {
	case Imm:
		e.u64(uint64(src))
	case Sym:
		e.reloc(string(src), Abs64)
		e.u64(0)
	default:
		return e.bad(in)
	}

	return nil
}

// movx encodes movsx/movzx with a 32-bit destination. in.Size is the
// source width, 1 or 2.
func (e *enc) movx(in Inst) error {
	op := byte(0xB6) // movzx
	if in.Op == Movsx {
		op = 0xBE
	}

	if in.Size == 2 {
		op++
	}

	dst, ok := in.Dst.(Reg)
	if !ok {
		return e.bad(in)
	}

	switch src := in.Src.(type) {
	case Reg:
		e.rex(false, dst, RAX, src, in.Size)
		e.byte(0x0F, op)
		e.modRM(3, byte(dst&7), byte(src&7))
	case Mem:
		e.rexMem(dst, src, 4)
		e.byte(0x0F, op)
		e.mem(byte(dst&7), src)
	default:
		return e.bad(in)
	}

	return nil
}

func (e *enc) alu(in Inst) error {
	digit := aluDigit[in.Op]

	switch dst := in.Dst.(type) {
	case Reg:
		switch src := in.Src.(type) {
		case Reg:
			e.sizePrefix(in.Size)
			e.rexRM(src, dst, in.Size)
			e.byte(opBySize(digit*8+0x01, in.Size))
			e.modRM(3, byte(src&7), byte(dst&7))

			return nil
		case Imm:
			e.sizePrefix(in.Size)
			e.rexRM(RAX, dst, in.Size)

			switch {
			case in.Size == 1:
				e.byte(0x80)
				e.modRM(3, digit, byte(dst&7))
				e.byte(byte(src))
			case int64(src) == int64(int8(src)):
				e.byte(0x83)
				e.modRM(3, digit, byte(dst&7))
				e.byte(byte(src))
			default:
				e.byte(0x81)
				e.modRM(3, digit, byte(dst&7))
				e.imm(int64(src), in.Size)
			}

			return nil
		}
	case Mem:
		switch src := in.Src.(type) {
		case Reg:
			e.sizePrefix(in.Size)
			e.rexMem(src, dst, in.Size)
			e.byte(opBySize(digit*8+0x01, in.Size))
			e.mem(byte(src&7), dst)

			return nil
		case Imm:
			e.sizePrefix(in.Size)
			e.rexMem(RAX, dst, in.Size)

			if in.Size == 1 {
				e.byte(0x80)
				e.mem(digit, dst)
				e.byte(byte(src))
			} else {
				e.byte(0x83)
				e.mem(digit, dst)
				e.byte(byte(src))
			}

			return nil
		}
	}

	return e.bad(in)
}

// shift encodes shl/shr/sar by cl (Src nil) or by immediate.
func (e *enc) shift(in Inst) error {
	digit := shiftDigit[in.Op]

	r, ok := in.Dst.(Reg)
	if !ok {
		return e.bad(in)
	}

	e.sizePrefix(in.Size)
	e.rexRM(RAX, r, in.Size)

	switch src := in.Src.(type) {
	case nil:
		e.byte(opBySize(0xD3, in.Size))
		e.modRM(3, digit, byte(r&7))
	case Imm:
		e.byte(opBySize(0xC1, in.Size))
		e.modRM(3, digit, byte(r&7))
		e.byte(byte(src))
	default:
		return e.bad(in)
	}

	return nil
}

// opBySize maps a word-form opcode to its byte form.
func opBySize(op byte, size int) byte {
	if size == 1 {
		return op - 1
	}

	return op
}

func (e *enc) byte(b ...byte) { e.b = append(e.b, b...) }

func (e *enc) u16(v uint16) { e.b = binary.LittleEndian.AppendUint16(e.b, v) }
func (e *enc) u32(v uint32) { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *enc) u64(v uint64) { e.b = binary.LittleEndian.AppendUint64(e.b, v) }

func (e *enc) imm(v int64, size int) {
	switch size {
	case 1:
		e.byte(byte(v))
	case 2:
		e.u16(uint16(v))
	default:
		e.u32(uint32(v))
	}
}

func (e *enc) modRM(mod, reg, rm byte) { e.byte(mod<<6 | reg<<3 | rm) }

// rex emits the REX prefix when required. reg and rm are the registers
// going into the ModR/M fields, idx the SIB index if any.
func (e *enc) rex(w bool, reg, idx, rm Reg, size int) {
	var p byte = 0x40

	if w {
		p |= 8
	}
	if reg >= R8 {
		p |= 4
	}
	if idx >= R8 {
		p |= 2
	}
	if rm >= R8 {
		p |= 1
	}

	if p != 0x40 || size == 1 && (reg >= RSP && reg < R8 || rm >= RSP && rm < R8) {
		e.byte(p)
	}
}

func (e *enc) rexRM(reg, rm Reg, size int) {
	e.rex(size == 8, reg, RAX, rm, size)
}

func (e *enc) rexMem(reg Reg, m Mem, size int) {
	// the base is an address register, only reg can be a byte register
	rm := m.Base
	if rm < R8 {
		rm = RAX
	}

	e.rex(size == 8, reg, RAX, rm, size)
}

func (e *enc) sizePrefix(size int) {
	if size == 2 {
		e.byte(0x66)
	}
}

// mem emits ModR/M, optional SIB and displacement for [base+disp].
func (e *enc) mem(reg byte, m Mem) {
	base := byte(m.Base & 7)

	mod := byte(2)
	switch {
	case m.Disp == 0 && base != 5:
		mod = 0
	case m.Disp == int32(int8(m.Disp)):
		mod = 1
	}

	e.modRM(mod, reg, base)

	if base == 4 { // rsp/r12 need a SIB byte
		e.byte(0x24)
	}

	switch mod {
	case 1:
		e.byte(byte(m.Disp))
	case 2:
		e.u32(uint32(m.Disp))
	}
}

func (e *enc) reloc(sym string, kind RelocKind) {
	e.relocs = append(e.relocs, Reloc{Off: len(e.b), Sym: sym, Kind: kind})
}

func (e *enc) bad(in Inst) error {
	return diag.NewInternal("", "", "unsupported instruction %v %T %T", in.Op, in.Dst, in.Src)
}
