// Package disasm adapts the x86 decoding backend to the common
// instruction representation. The core never decodes opcodes itself;
// this package repackages what the decoder produces.
package disasm

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"dissect/internal/format"
	"dissect/internal/insn"
)

// Decoder turns raw code bytes into instructions. The mode (32/64)
// comes from the loader's bit width.
type Decoder struct {
	mode     int
	segments []*format.Segment
}

func NewDecoder(bits int) *Decoder {
	return &Decoder{mode: bits}
}

// WithSegments makes the decoder stamp each instruction with its
// owning segment.
func (d *Decoder) WithSegments(segs []*format.Segment) *Decoder {
	d.segments = segs
	return d
}

// Decode decodes one instruction at addr. A byte sequence the backend
// rejects yields an Invalid instruction covering one byte, so linear
// sweeps can continue past junk.
func (d *Decoder) Decode(code []byte, addr uint64) *insn.Instruction {
	in := insn.New(addr)
	if seg, ok := format.SegmentAt(d.segments, addr); ok {
		in.Segment = seg
	}

	raw, err := x86asm.Decode(code, d.mode)
	if err != nil || raw.Op == 0 {
		in.Type = insn.Invalid
		in.Mnemonic = "db"
		in.Size = 1
		if len(code) > 0 {
			in.AddImm(int64(code[0]))
		}
		return in
	}

	in.Size = uint32(raw.Len)
	in.Mnemonic = strings.ToLower(raw.Op.String())
	in.Type = opType(raw.Op)

	for _, arg := range raw.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case x86asm.Reg:
			in.AddReg(int64(a), 0)
		case x86asm.Imm:
			in.AddImm(int64(a))
		case x86asm.Rel:
			// Branch targets become immediates holding the
			// resolved address, which the printer can symbolize.
			in.AddImm(int64(addr) + int64(raw.Len) + int64(a))
		case x86asm.Mem:
			if a.Base == 0 && a.Index == 0 {
				in.AddMem(uint64(a.Disp))
			} else {
				in.AddDisp(regID(a.Base), regID(a.Index), int32(a.Scale), a.Disp)
			}
		}
	}
	return in
}

// DecodeRange linearly decodes up to max instructions starting at addr.
func (d *Decoder) DecodeRange(code []byte, addr uint64, max int) []*insn.Instruction {
	var out []*insn.Instruction
	off := uint64(0)
	for len(out) < max && off < uint64(len(code)) {
		in := d.Decode(code[off:], addr+off)
		out = append(out, in)
		off += uint64(in.Size)
		if in.Is(insn.Stop) {
			break
		}
	}
	return out
}

func regID(r x86asm.Reg) int64 {
	if r == 0 {
		return insn.RegInvalid
	}
	return int64(r)
}

var condJumps = map[x86asm.Op]bool{
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JE: true, x86asm.JNE: true, x86asm.JG: true, x86asm.JGE: true,
	x86asm.JL: true, x86asm.JLE: true, x86asm.JO: true, x86asm.JNO: true,
	x86asm.JP: true, x86asm.JNP: true, x86asm.JS: true, x86asm.JNS: true,
	x86asm.JCXZ: true, x86asm.JECXZ: true, x86asm.JRCXZ: true,
	x86asm.LOOP: true, x86asm.LOOPE: true, x86asm.LOOPNE: true,
}

func opType(op x86asm.Op) insn.Type {
	if condJumps[op] {
		return insn.Jump | insn.Conditional
	}
	switch op {
	case x86asm.JMP, x86asm.LJMP:
		return insn.Jump
	case x86asm.CALL, x86asm.LCALL:
		return insn.Call
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return insn.Stop
	case x86asm.HLT:
		return insn.Stop | insn.Privileged
	case x86asm.PUSH:
		return insn.Push
	case x86asm.POP:
		return insn.Pop
	case x86asm.CMP, x86asm.TEST:
		return insn.Compare
	case x86asm.ADD, x86asm.ADC, x86asm.INC:
		return insn.Add
	case x86asm.SUB, x86asm.SBB, x86asm.DEC, x86asm.NEG:
		return insn.Sub
	case x86asm.MUL, x86asm.IMUL:
		return insn.Mul
	case x86asm.DIV, x86asm.IDIV:
		return insn.Div
	case x86asm.AND:
		return insn.And
	case x86asm.OR:
		return insn.Or
	case x86asm.XOR:
		return insn.Xor
	case x86asm.NOT:
		return insn.Not
	case x86asm.NOP:
		return insn.Nop
	case x86asm.IN, x86asm.OUT, x86asm.CLI, x86asm.STI, x86asm.INT:
		return insn.Privileged
	default:
		return insn.None
	}
}
