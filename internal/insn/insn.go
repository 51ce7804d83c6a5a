// Package insn holds the backend-neutral representation of a decoded
// instruction. Decoding backends build instructions through the
// chainable append methods; the printer and analysis consume them.
package insn

import "dissect/internal/format"

// Type is an OR-combinable set of semantic instruction flags.
type Type uint32

const (
	None Type = 0x00000000
	Stop Type = 0x00000001
	Nop  Type = 0x00000002
	Jump Type = 0x00000004
	Call Type = 0x00000008

	Add Type = 0x00000010
	Sub Type = 0x00000020
	Mul Type = 0x00000040
	Div Type = 0x00000080
	Mod Type = 0x00000100

	And Type = 0x00000200
	Or  Type = 0x00000400
	Xor Type = 0x00000800
	Not Type = 0x00001000

	Push    Type = 0x00002000
	Pop     Type = 0x00004000
	Compare Type = 0x00008000

	Conditional Type = 0x01000000
	Privileged  Type = 0x02000000
	JumpTable   Type = 0x04000000
	Invalid     Type = 0x10000000

	Branch = Jump | Call
)

// OperandType tags which payload of an Operand is meaningful.
type OperandType uint32

const (
	OpNone         OperandType = iota
	OpRegister                 // register operand
	OpImmediate                // immediate value
	OpMemory                   // direct memory pointer
	OpDisplacement             // indirect memory pointer
)

// RegInvalid marks an absent register, e.g. the omitted base of a
// displacement operand.
const RegInvalid int64 = -1

// RegisterOperand identifies a backend register. Kind carries a
// backend-specific register class and is zero when unused.
type RegisterOperand struct {
	Kind uint32
	ID   int64
}

func Register(id int64) RegisterOperand {
	return RegisterOperand{ID: id}
}

func NoRegister() RegisterOperand {
	return RegisterOperand{ID: RegInvalid}
}

func (r RegisterOperand) Valid() bool {
	return r.ID != RegInvalid
}

// MemoryOperand is an indirect memory reference:
// [base + index*scale + displacement].
type MemoryOperand struct {
	Base, Index  RegisterOperand
	Scale        int32
	Displacement int64
}

// DisplacementOnly reports whether the operand is a bare displacement
// with neither base nor index.
func (m MemoryOperand) DisplacementOnly() bool {
	return !m.Base.Valid() && !m.Index.Valid()
}

// Operand is one operand of an instruction. Exactly one payload field
// is meaningful, selected by Type: Imm for OpImmediate, Addr for
// OpMemory, Reg for OpRegister, Mem for OpDisplacement.
type Operand struct {
	Type OperandType
	Pos  int

	Reg  RegisterOperand
	Mem  MemoryOperand
	Imm  int64
	Addr uint64
}

func (o Operand) Is(t OperandType) bool {
	return o.Type == t
}

// Instruction is one decoded instruction. The operand list is append-
// only and position-stable; comments may be appended at any time.
type Instruction struct {
	Address  uint64
	Size     uint32
	Type     Type
	Mnemonic string
	Operands []Operand
	Comments []string

	// Segment is the segment containing Address, set by the loader
	// context. Not owned.
	Segment *format.Segment

	payload any
	release func(any)
}

func New(address uint64) *Instruction {
	return &Instruction{Address: address}
}

func (in *Instruction) Is(t Type) bool {
	return in.Type&t != 0
}

// IsInvalid reports whether the instruction failed to decode. Invalid
// never combines with other flags.
func (in *Instruction) IsInvalid() bool {
	return in.Type == Invalid
}

func (in *Instruction) EndAddress() uint64 {
	return in.Address + uint64(in.Size)
}

// SetPayload attaches a backend-owned value with its release function.
// Any previous payload is released first.
func (in *Instruction) SetPayload(v any, release func(any)) {
	in.releasePayload()
	in.payload = v
	in.release = release
}

func (in *Instruction) Payload() any {
	return in.payload
}

// releasePayload runs the release callback at most once.
func (in *Instruction) releasePayload() {
	if in.release != nil && in.payload != nil {
		in.release(in.payload)
	}
	in.payload = nil
	in.release = nil
}

// Reset clears the type and operands and releases the backend payload.
// The instruction can then be rebuilt in place.
func (in *Instruction) Reset() {
	in.Type = None
	in.Operands = nil
	in.releasePayload()
}

// Close releases the backend payload without clearing decoded state.
func (in *Instruction) Close() {
	in.releasePayload()
}

// Cmt appends a comment.
func (in *Instruction) Cmt(s string) *Instruction {
	in.Comments = append(in.Comments, s)
	return in
}

// Op appends op, assigning its position.
func (in *Instruction) Op(op Operand) *Instruction {
	op.Pos = len(in.Operands)
	in.Operands = append(in.Operands, op)
	return in
}

// AddImm appends an immediate operand.
func (in *Instruction) AddImm(v int64) *Instruction {
	return in.Op(Operand{Type: OpImmediate, Imm: v})
}

// AddMem appends a direct memory operand.
func (in *Instruction) AddMem(addr uint64) *Instruction {
	return in.Op(Operand{Type: OpMemory, Addr: addr})
}

// AddReg appends a register operand.
func (in *Instruction) AddReg(id int64, kind uint32) *Instruction {
	return in.Op(Operand{Type: OpRegister, Reg: RegisterOperand{Kind: kind, ID: id}})
}

// AddDisp appends a displacement operand. Pass RegInvalid for an
// omitted base or index; scale below 1 is normalized to 1.
func (in *Instruction) AddDisp(base, index int64, scale int32, displacement int64) *Instruction {
	if scale < 1 {
		scale = 1
	}
	return in.Op(Operand{
		Type: OpDisplacement,
		Mem: MemoryOperand{
			Base:         Register(base),
			Index:        Register(index),
			Scale:        scale,
			Displacement: displacement,
		},
	})
}
