package printer

import (
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"dissect/internal/insn"
)

// X86Namer names registers using the x86 decoder's register table.
type X86Namer struct{}

func (X86Namer) Reg(r insn.RegisterOperand) string {
	if !r.Valid() {
		return ""
	}
	return strings.ToLower(x86asm.Reg(r.ID).String())
}

// ARM64Namer names registers using the arm64 decoder's register table.
type ARM64Namer struct{}

func (ARM64Namer) Reg(r insn.RegisterOperand) string {
	if !r.Valid() {
		return ""
	}
	return strings.ToLower(arm64asm.Reg(r.ID).String())
}

// ForProcessor picks the register backend matching a loader's
// processor string; nil when no decoder backend covers it.
func ForProcessor(processor string) RegNamer {
	switch processor {
	case "x86", "x86_64":
		return X86Namer{}
	case "arm64":
		return ARM64Namer{}
	default:
		return nil
	}
}
