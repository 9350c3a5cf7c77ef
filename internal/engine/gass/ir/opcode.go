package ir

import "fmt"

// Opcode represents a GASS machine opcode.
type Opcode byte

const (
	OpcodeInvalid Opcode = iota
	// OpcodeNop does nothing. It is removed before stall cycles are set.
	OpcodeNop
	OpcodeMov
	OpcodeMov32i
	OpcodeIadd
	OpcodeIadd3
	OpcodeImad
	OpcodeIsetp
	OpcodeShl
	OpcodeShr
	OpcodeLop
	OpcodeFadd
	OpcodeFmul
	OpcodeFfma
	OpcodeFsetp
	// OpcodeMufu is the multi-function unit op (rcp, sqrt, ...), served by the SFU.
	OpcodeMufu
	// OpcodeHmma is the tensor-core matrix multiply-accumulate.
	OpcodeHmma
	// OpcodeS2r reads a special register.
	OpcodeS2r
	OpcodeLdg
	OpcodeLds
	OpcodeLdc
	OpcodeLdl
	OpcodeLd
	OpcodeStg
	OpcodeSts
	OpcodeStl
	OpcodeSt
	OpcodeAtom
	OpcodeBar
	OpcodeBra
	OpcodeExit

	opcodeNum
)

// MemSpace is the memory space accessed by a memory instruction.
type MemSpace byte

const (
	MemSpaceNone MemSpace = iota
	MemSpaceGeneric
	MemSpaceGlobal
	MemSpaceShared
	MemSpaceConst
	MemSpaceParam
	MemSpaceLocal
)

// String implements fmt.Stringer.
func (m MemSpace) String() string {
	switch m {
	case MemSpaceNone:
		return "none"
	case MemSpaceGeneric:
		return "generic"
	case MemSpaceGlobal:
		return "global"
	case MemSpaceShared:
		return "shared"
	case MemSpaceConst:
		return "const"
	case MemSpaceParam:
		return "param"
	case MemSpaceLocal:
		return "local"
	}
	panic(fmt.Sprintf("BUG: unknown memory space %d", m))
}

// MayAlias reports whether accesses to m and o can touch the same memory.
func (m MemSpace) MayAlias(o MemSpace) bool {
	if m == MemSpaceNone || o == MemSpaceNone {
		return false
	}
	return m == o || m == MemSpaceGeneric || o == MemSpaceGeneric
}

// Unit is the functional unit an instruction issues to.
type Unit byte

const (
	UnitALU Unit = iota
	UnitFMA
	UnitSFU
	UnitTensor
	UnitMem
	UnitBranch

	UnitNum
)

type opcodeFlag uint16

const (
	flagDef opcodeFlag = 1 << iota
	flagLoad
	flagStore
	flagBranch
	flagTerminator
	flagSideEffect
	// flagLateResult marks variable-latency producers whose result is waited for through a
	// write barrier rather than stall cycles.
	flagLateResult
)

type opcodeInfo struct {
	name  string
	flags opcodeFlag
	unit  Unit
	mem   MemSpace
}

var opcodeInfos = [opcodeNum]opcodeInfo{
	OpcodeInvalid: {name: "INVALID"},
	OpcodeNop:     {name: "NOP", unit: UnitALU},
	OpcodeMov:     {name: "MOV", flags: flagDef, unit: UnitALU},
	OpcodeMov32i:  {name: "MOV32I", flags: flagDef, unit: UnitALU},
	OpcodeIadd:    {name: "IADD", flags: flagDef, unit: UnitALU},
	OpcodeIadd3:   {name: "IADD3", flags: flagDef, unit: UnitALU},
	OpcodeImad:    {name: "IMAD", flags: flagDef, unit: UnitFMA},
	OpcodeIsetp:   {name: "ISETP", flags: flagDef, unit: UnitALU},
	OpcodeShl:     {name: "SHL", flags: flagDef, unit: UnitALU},
	OpcodeShr:     {name: "SHR", flags: flagDef, unit: UnitALU},
	OpcodeLop:     {name: "LOP", flags: flagDef, unit: UnitALU},
	OpcodeFadd:    {name: "FADD", flags: flagDef, unit: UnitFMA},
	OpcodeFmul:    {name: "FMUL", flags: flagDef, unit: UnitFMA},
	OpcodeFfma:    {name: "FFMA", flags: flagDef, unit: UnitFMA},
	OpcodeFsetp:   {name: "FSETP", flags: flagDef, unit: UnitFMA},
	OpcodeMufu:    {name: "MUFU", flags: flagDef | flagLateResult, unit: UnitSFU},
	OpcodeHmma:    {name: "HMMA", flags: flagDef, unit: UnitTensor},
	OpcodeS2r:     {name: "S2R", flags: flagDef | flagLateResult, unit: UnitSFU},
	OpcodeLdg:     {name: "LDG", flags: flagDef | flagLoad | flagLateResult, unit: UnitMem, mem: MemSpaceGlobal},
	OpcodeLds:     {name: "LDS", flags: flagDef | flagLoad | flagLateResult, unit: UnitMem, mem: MemSpaceShared},
	OpcodeLdc:     {name: "LDC", flags: flagDef | flagLoad | flagLateResult, unit: UnitMem, mem: MemSpaceConst},
	OpcodeLdl:     {name: "LDL", flags: flagDef | flagLoad | flagLateResult, unit: UnitMem, mem: MemSpaceLocal},
	OpcodeLd:      {name: "LD", flags: flagDef | flagLoad | flagLateResult, unit: UnitMem, mem: MemSpaceGeneric},
	OpcodeStg:     {name: "STG", flags: flagStore, unit: UnitMem, mem: MemSpaceGlobal},
	OpcodeSts:     {name: "STS", flags: flagStore, unit: UnitMem, mem: MemSpaceShared},
	OpcodeStl:     {name: "STL", flags: flagStore, unit: UnitMem, mem: MemSpaceLocal},
	OpcodeSt:      {name: "ST", flags: flagStore, unit: UnitMem, mem: MemSpaceGeneric},
	OpcodeAtom:    {name: "ATOM", flags: flagDef | flagLoad | flagLateResult | flagStore | flagSideEffect, unit: UnitMem, mem: MemSpaceGeneric},
	OpcodeBar:     {name: "BAR", flags: flagSideEffect, unit: UnitBranch},
	OpcodeBra:     {name: "BRA", flags: flagBranch | flagTerminator, unit: UnitBranch},
	OpcodeExit:    {name: "EXIT", flags: flagTerminator | flagSideEffect, unit: UnitBranch},
}

var opcodeByName = func() map[string]Opcode {
	ret := make(map[string]Opcode, opcodeNum)
	for op := OpcodeNop; op < opcodeNum; op++ {
		ret[opcodeInfos[op].name] = op
	}
	return ret
}()

// OpcodeByName returns the Opcode whose mnemonic is name.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if o >= opcodeNum {
		return fmt.Sprintf("Opcode(%d)", o)
	}
	return opcodeInfos[o].name
}

func (o Opcode) has(f opcodeFlag) bool { return opcodeInfos[o].flags&f != 0 }

// HasDef returns true if the first operand of this opcode is a destination.
func (o Opcode) HasDef() bool { return o.has(flagDef) }

// MayLoad returns true if the opcode reads memory.
func (o Opcode) MayLoad() bool { return o.has(flagLoad) }

// MayStore returns true if the opcode writes memory.
func (o Opcode) MayStore() bool { return o.has(flagStore) }

// IsBranch returns true if the opcode transfers control to a label.
func (o Opcode) IsBranch() bool { return o.has(flagBranch) }

// IsTerminator returns true if the opcode may end a basic block.
func (o Opcode) IsTerminator() bool { return o.has(flagTerminator) }

// HasSideEffect returns true if the opcode must not be reordered with other memory or side-effecting opcodes.
func (o Opcode) HasSideEffect() bool { return o.has(flagSideEffect) }

// HasLateResult returns true if the result of the opcode is only available after a variable
// number of cycles. Its readers wait on a dependency barrier.
func (o Opcode) HasLateResult() bool { return o.has(flagLateResult) }

// Unit returns the functional unit of the opcode.
func (o Opcode) Unit() Unit { return opcodeInfos[o].unit }

// MemSpace returns the memory space implied by the opcode.
func (o Opcode) MemSpace() MemSpace { return opcodeInfos[o].mem }
