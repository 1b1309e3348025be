package x86

import (
	"context"
	"encoding/binary"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/shivansh-2611/axis-lang/compiler/diag"
)

type (
	// Obj is assembled text with the symbols it defines and the
	// patch sites it leaves for the linker stage.
	Obj struct {
		Text   []byte
		Labels map[string]int
		Relocs []Reloc
	}

	piece struct {
		in Inst

		fn string // enclosing function, for diagnostics

		b      []byte
		relocs []Reloc

		wide bool // near form selected for a jcc
	}
)

const (
	shortJcc = 2
	nearJcc  = 6
	nearJmp  = 5
)

// Assemble resolves labels and encodes the instruction stream.
// Conditional jumps start in the short form and are widened until
// every displacement fits, unconditional jumps and calls always take
// the near form.
func Assemble(ctx context.Context, insts []Inst) (obj *Obj, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "assemble", "insts", len(insts))
	defer tr.Finish("err", &err)

	ps := make([]piece, len(insts))
	fn := ""

	for i, in := range insts {
		ps[i] = piece{in: in, fn: fn}

		switch in.Op {
		case Label:
			if in.Label == "" {
				return nil, diag.NewInternal(fn, "", "empty label")
			}

			if !local(in.Label) {
				fn = in.Label
				ps[i].fn = fn
			}
		case Jcc, Jmp, Call:
			if in.Label == "" {
				return nil, diag.NewInternal(fn, "", "%v without target", in.Op)
			}
		default:
			b, relocs, err := encode(in)
			if err != nil {
				return nil, diag.NewInternal(fn, "", "%v", err)
			}

			ps[i].b = b
			ps[i].relocs = relocs
		}
	}

	off, labels, err := layout(ps)
	if err != nil {
		return nil, err
	}

	// relaxBound limits the widening loop. Widening is monotone so the
	// loop settles in at most one iteration per conditional jump; going
	// past that means the size model is broken.
	relaxBound := 0
	for i := range ps {
		if ps[i].in.Op == Jcc {
			relaxBound++
		}
	}

	for iter := 0; ; iter++ {
		if iter > relaxBound {
			return nil, diag.NewInternal(fn, "", "jump relaxation did not settle after %d iterations", iter)
		}

		widened := relaxPass(ps, off, labels)
		if widened == 0 {
			break
		}

		tr.V("relax").Printw("widened jumps", "iter", iter, "count", widened)

		off, labels, err = layout(ps)
		if err != nil {
			return nil, err
		}
	}

	obj = &Obj{Labels: labels}

	for i := range ps {
		p := &ps[i]

		switch p.in.Op {
		case Label:
		case Jcc, Jmp, Call:
			target, ok := labels[p.in.Label]
			if !ok {
				return nil, diag.NewInternal(p.fn, p.in.Label, "undefined label")
			}

			obj.Text = appendJump(obj.Text, p, target-off[i+1])
		default:
			for _, r := range p.relocs {
				obj.Relocs = append(obj.Relocs, Reloc{Off: off[i] + r.Off, Sym: r.Sym, Kind: r.Kind})
			}

			obj.Text = append(obj.Text, p.b...)
		}
	}

	if tr.If("dump_asm") {
		tr.Printw("assembled", "text_size", len(obj.Text), "labels", len(obj.Labels), "relocs", len(obj.Relocs))
	}

	return obj, nil
}

// layout assigns byte offsets under the current jump widths. off has
// one extra entry: off[i+1] is the end of instruction i.
func layout(ps []piece) (off []int, labels map[string]int, err error) {
	off = make([]int, len(ps)+1)
	labels = map[string]int{}

	pos := 0

	for i := range ps {
		p := &ps[i]
		off[i] = pos

		switch p.in.Op {
		case Label:
			if _, ok := labels[p.in.Label]; ok {
				return nil, nil, diag.NewInternal(p.fn, p.in.Label, "label redefined")
			}

			labels[p.in.Label] = pos
		case Jcc:
			if p.wide {
				pos += nearJcc
			} else {
				pos += shortJcc
			}
		case Jmp, Call:
			pos += nearJmp
		default:
			pos += len(p.b)
		}

		off[i+1] = pos
	}

	return off, labels, nil
}

// relaxPass widens every short conditional jump whose displacement
// does not fit in a byte, lowest offset first, and reports how many
// were widened.
func relaxPass(ps []piece, off []int, labels map[string]int) (widened int) {
	h := heap.Heap[int]{Less: func(d []int, i, j int) bool { return off[d[i]] < off[d[j]] }}

	for i := range ps {
		if ps[i].in.Op == Jcc && !ps[i].wide {
			h.Push(i)
		}
	}

	for h.Len() != 0 {
		i := h.Pop()

		target, ok := labels[ps[i].in.Label]
		if !ok {
			continue // reported during emit
		}

		disp := target - off[i+1]
		if disp < -128 || disp > 127 {
			ps[i].wide = true
			widened++
		}
	}

	return widened
}

func appendJump(b []byte, p *piece, disp int) []byte {
	switch {
	case p.in.Op == Jcc && !p.wide:
		return append(b, 0x70+byte(p.in.Cond), byte(disp))
	case p.in.Op == Jcc:
		b = append(b, 0x0F, 0x80+byte(p.in.Cond))
	case p.in.Op == Jmp:
		b = append(b, 0xE9)
	default:
		b = append(b, 0xE8)
	}

	return binary.LittleEndian.AppendUint32(b, uint32(int32(disp)))
}

func local(label string) bool {
	return len(label) > 0 && label[0] == '.'
}
