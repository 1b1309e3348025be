package x86

import (
	"fmt"
)

var opNames = map[Op]string{
	Label:   "label",
	Push:    "push",
	Pop:     "pop",
	Mov:     "mov",
	Movabs:  "movabs",
	Movsx:   "movsx",
	Movzx:   "movzx",
	Movsxd:  "movsxd",
	Lea:     "lea",
	Add:     "add",
	Sub:     "sub",
	And:     "and",
	Or:      "or",
	Xor:     "xor",
	Cmp:     "cmp",
	Test:    "test",
	Shl:     "shl",
	Shr:     "shr",
	Sar:     "sar",
	Neg:     "neg",
	Not:     "not",
	Imul:    "imul",
	Idiv:    "idiv",
	Div:     "div",
	Cdq:     "cdq",
	Cqo:     "cqo",
	Setcc:   "set",
	Jcc:     "j",
	Jmp:     "jmp",
	Call:    "call",
	Ret:     "ret",
	Syscall: "syscall",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}

	return fmt.Sprintf("op(%d)", int(o))
}

// Listing renders the instruction stream as intel flavored assembly
// text, one instruction per line, labels unindented.
func Listing(b []byte, insts []Inst) []byte {
	for _, in := range insts {
		b = in.render(b)
		b = append(b, '\n')
	}

	return b
}

func (in Inst) render(b []byte) []byte {
	switch in.Op {
	case Label:
		return fmt.Appendf(b, "%v:", in.Label)
	case Jcc:
		return fmt.Appendf(b, "\tj%v\t%v", in.Cond, in.Label)
	case Jmp, Call:
		return fmt.Appendf(b, "\t%v\t%v", in.Op, in.Label)
	case Setcc:
		return fmt.Appendf(b, "\tset%v\t%v", in.Cond, in.arg(in.Dst, 1))
	case Ret, Syscall, Cdq, Cqo:
		return fmt.Appendf(b, "\t%v", in.Op)
	case Shl, Shr, Sar:
		if in.Src == nil {
			return fmt.Appendf(b, "\t%v\t%v, cl", in.Op, in.arg(in.Dst, in.Size))
		}
	case Movsx, Movzx:
		return fmt.Appendf(b, "\t%v\t%v, %v", in.Op, in.arg(in.Dst, 4), in.arg(in.Src, in.Size))
	case Movsxd:
		return fmt.Appendf(b, "\t%v\t%v, %v", in.Op, in.arg(in.Dst, 8), in.arg(in.Src, 4))
	case Lea:
		return fmt.Appendf(b, "\tlea\t%v, [rip+%v]", in.arg(in.Dst, 8), in.Src)
	}

	if in.Src == nil {
		return fmt.Appendf(b, "\t%v\t%v", in.Op, in.arg(in.Dst, in.Size))
	}

	return fmt.Appendf(b, "\t%v\t%v, %v", in.Op, in.arg(in.Dst, in.Size), in.arg(in.Src, in.Size))
}

func (in Inst) arg(a Arg, size int) string {
	switch a := a.(type) {
	case Reg:
		if in.Op == Push || in.Op == Pop {
			return a.Name(8)
		}

		return a.Name(size)
	case Mem:
		return fmt.Sprintf("%v %v", sizeName(size), a)
	case Imm:
		return fmt.Sprintf("%d", int64(a))
	case Sym:
		return string(a)
	default:
		return fmt.Sprintf("%v", a)
	}
}

func sizeName(size int) string {
	switch size {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	default:
		return "qword"
	}
}
