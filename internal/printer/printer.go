// Package printer renders decoded instructions to display text,
// substituting symbol names for addresses. Register naming is delegated
// to a backend so several decoders can share one printer.
package printer

import (
	"fmt"
	"strings"

	"dissect/internal/insn"
	"dissect/internal/symbol"
)

// RegNamer turns a backend register id into its display name.
type RegNamer interface {
	Reg(r insn.RegisterOperand) string
}

// OperandFunc observes each rendered operand with its substring, letting
// presentation layers map text spans back to operands.
type OperandFunc func(op insn.Operand, text string)

type Printer struct {
	symbols *symbol.Table
	regs    RegNamer
}

func New(symbols *symbol.Table, regs RegNamer) *Printer {
	return &Printer{symbols: symbols, regs: regs}
}

// Print renders in to a single display line. opfn may be nil.
func (p *Printer) Print(in *insn.Instruction, opfn OperandFunc) string {
	var sb strings.Builder
	sb.WriteString(in.Mnemonic)
	if len(in.Operands) > 0 {
		sb.WriteByte(' ')
	}

	for i, op := range in.Operands {
		if i > 0 {
			// The separator lands before we know whether the operand
			// renders any text, so a None operand mid-list leaves a
			// dangling comma. Existing consumers depend on the exact
			// output; keep it.
			sb.WriteString(", ")
		}

		var text string
		switch op.Type {
		case insn.OpImmediate:
			if s, ok := p.symbols.Get(uint64(op.Imm)); ok {
				text = s.Name
			} else {
				text = hexSigned(op.Imm)
			}
		case insn.OpMemory:
			if s, ok := p.symbols.Get(op.Addr); ok {
				text = s.Name
			} else {
				text = hexUnsigned(op.Addr)
			}
		case insn.OpDisplacement:
			text = p.mem(op.Mem)
		case insn.OpRegister:
			text = p.regName(op.Reg)
		default:
			continue
		}

		if opfn != nil {
			opfn(op, text)
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// mem renders an indirect memory operand as
// "[base + index * scale + displacement]", omitting absent parts. All
// parts absent renders nothing at all.
func (p *Printer) mem(m insn.MemoryOperand) string {
	var s string
	if m.Base.Valid() {
		s += p.regName(m.Base)
	}
	if m.Index.Valid() {
		if s != "" {
			s += " + "
		}
		s += p.regName(m.Index)
		if m.Scale > 1 {
			s += " * " + hexSigned(int64(m.Scale))
		}
	}
	if m.Displacement != 0 {
		sym, ok := p.symbols.Get(uint64(m.Displacement))
		// A negative displacement with no symbol carries its own
		// minus sign from the hex renderer.
		if s != "" && (m.Displacement > 0 || ok) {
			s += " + "
		}
		if ok {
			s += sym.Name
		} else {
			s += hexSigned(m.Displacement)
		}
	}
	if s != "" {
		return "[" + s + "]"
	}
	return ""
}

// regName tolerates a missing backend so symbol-only printing still
// works for processors without a decoder.
func (p *Printer) regName(r insn.RegisterOperand) string {
	if p.regs == nil {
		return fmt.Sprintf("r%d", r.ID)
	}
	return p.regs.Reg(r)
}

func hexSigned(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-%x", uint64(-v))
	}
	return fmt.Sprintf("%x", uint64(v))
}

func hexUnsigned(v uint64) string {
	return fmt.Sprintf("%x", v)
}
