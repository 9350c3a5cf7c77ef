package ir

import (
	"fmt"
	"strings"
)

// OperandKind is the kind of an Operand.
type OperandKind byte

const (
	OperandKindReg OperandKind = iota
	OperandKindImm
	// OperandKindConst is a constant bank reference c[Bank][Imm].
	OperandKindConst
	// OperandKindSpecial is a special register name read by S2R, e.g. SR_TID.X.
	OperandKindSpecial
	// OperandKindLabel is a branch target.
	OperandKindLabel
)

// Operand is an operand of an Instr.
type Operand struct {
	Kind OperandKind
	Reg  Reg
	// Def is true if the register operand is written by the instruction.
	Def bool
	// Addr is true if the register operand is used to form a memory address, e.g. R2 in [R2+0x10].
	Addr bool
	// Imm holds the immediate value, the address offset, or the constant bank offset.
	Imm  int64
	Bank uint8
	// Name holds the special register name.
	Name   string
	Target BlockID
}

// RegOperand returns a register use.
func RegOperand(r Reg) Operand { return Operand{Kind: OperandKindReg, Reg: r} }

// DefOperand returns a register definition.
func DefOperand(r Reg) Operand { return Operand{Kind: OperandKindReg, Reg: r, Def: true} }

// AddrOperand returns the memory operand [r+offset].
func AddrOperand(r Reg, offset int64) Operand {
	return Operand{Kind: OperandKindReg, Reg: r, Addr: true, Imm: offset}
}

// ImmOperand returns an immediate.
func ImmOperand(v int64) Operand { return Operand{Kind: OperandKindImm, Imm: v} }

// ConstOperand returns c[bank][offset].
func ConstOperand(bank uint8, offset int64) Operand {
	return Operand{Kind: OperandKindConst, Bank: bank, Imm: offset}
}

// LabelOperand returns a branch target.
func LabelOperand(b BlockID) Operand { return Operand{Kind: OperandKindLabel, Target: b} }

func (o *Operand) format(f *Function) string {
	switch o.Kind {
	case OperandKindReg:
		if o.Addr {
			switch {
			case o.Imm > 0:
				return fmt.Sprintf("[%s+%#x]", o.Reg, o.Imm)
			case o.Imm < 0:
				return fmt.Sprintf("[%s-%#x]", o.Reg, -o.Imm)
			}
			return fmt.Sprintf("[%s]", o.Reg)
		}
		return o.Reg.String()
	case OperandKindImm:
		if o.Imm < 0 {
			return fmt.Sprintf("-%#x", -o.Imm)
		}
		return fmt.Sprintf("%#x", o.Imm)
	case OperandKindConst:
		return fmt.Sprintf("c[%#x][%#x]", o.Bank, o.Imm)
	case OperandKindSpecial:
		return o.Name
	case OperandKindLabel:
		if f != nil && int(o.Target) < len(f.Blocks) {
			return f.Blocks[o.Target].Label
		}
		return fmt.Sprintf("blk%d", o.Target)
	}
	panic(fmt.Sprintf("BUG: unknown operand kind %d", o.Kind))
}

// InstrID is a stable handle to an Instr in its Function's arena.
type InstrID int32

// InstrIDInvalid is the zero handle which never refers to an instruction.
const InstrIDInvalid InstrID = -1

// Instr is a single GASS machine instruction.
type Instr struct {
	ID       InstrID
	Op       Opcode
	Operands []Operand
	// Guard is the predicate guarding the instruction. PT means unconditional.
	Guard    Reg
	GuardNeg bool
	Mem      MemSpace
	Control  Control
	Block    BlockID
}

func resetInstr(i *Instr) {
	*i = Instr{ID: InstrIDInvalid, Guard: PT, Block: BlockIDInvalid, Operands: i.Operands[:0]}
}

// Guarded returns true if the instruction has a predicate guard other than PT.
func (i *Instr) Guarded() bool {
	return i.Guard != PT || i.GuardNeg
}

// Defs returns the registers written by the instruction.
func (i *Instr) Defs() []Reg {
	var ret []Reg
	for k := range i.Operands {
		o := &i.Operands[k]
		if o.Kind == OperandKindReg && o.Def && !o.Reg.IsConstant() {
			ret = append(ret, o.Reg)
		}
	}
	return ret
}

// Uses returns the registers read by the instruction, including the guard and address registers.
func (i *Instr) Uses() []Reg {
	var ret []Reg
	if i.Guard != PT {
		ret = append(ret, i.Guard)
	}
	for k := range i.Operands {
		o := &i.Operands[k]
		if o.Kind == OperandKindReg && !o.Def && !o.Reg.IsConstant() {
			ret = append(ret, o.Reg)
		}
	}
	return ret
}

// AddrRegs returns the registers used to form memory addresses.
func (i *Instr) AddrRegs() []Reg {
	var ret []Reg
	for k := range i.Operands {
		o := &i.Operands[k]
		if o.Kind == OperandKindReg && o.Addr && !o.Reg.IsConstant() {
			ret = append(ret, o.Reg)
		}
	}
	return ret
}

// Reads returns true if the instruction reads a register overlapping r.
func (i *Instr) Reads(r Reg) bool {
	for _, u := range i.Uses() {
		if u.Overlaps(r) {
			return true
		}
	}
	return false
}

// Writes returns true if the instruction writes a register overlapping r.
func (i *Instr) Writes(r Reg) bool {
	for _, d := range i.Defs() {
		if d.Overlaps(r) {
			return true
		}
	}
	return false
}

// MayLoad returns true if the instruction reads memory.
func (i *Instr) MayLoad() bool { return i.Op.MayLoad() }

// MayStore returns true if the instruction writes memory.
func (i *Instr) MayStore() bool { return i.Op.MayStore() }

// IsBranch returns true for branch instructions.
func (i *Instr) IsBranch() bool { return i.Op.IsBranch() }

// IsTerminator returns true if the instruction must stay at the end of its block.
func (i *Instr) IsTerminator() bool { return i.Op.IsTerminator() }

// Format returns the textual form of the instruction without its control field.
func (i *Instr) Format(f *Function) string {
	var sb strings.Builder
	if i.Guarded() {
		sb.WriteByte('@')
		if i.GuardNeg {
			sb.WriteByte('!')
		}
		sb.WriteString(i.Guard.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(i.Op.String())
	for k := range i.Operands {
		if k == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(i.Operands[k].format(f))
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (i *Instr) String() string {
	return i.Format(nil)
}
