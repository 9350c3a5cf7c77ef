package ir

// Latency describes the timing of an opcode in the scheduling model.
type Latency struct {
	// Fixed is true if the result is available after exactly Cycles cycles. Otherwise the
	// latency is variable and Cycles is only an estimate for the scheduler.
	Fixed  bool
	Cycles int
	// Occupancy is the number of cycles the functional unit stays busy after issue.
	Occupancy int
}

// LatencyTable is the scheduling model: the latency of each opcode.
type LatencyTable [opcodeNum]Latency

// Lookup returns the latency of op.
func (t *LatencyTable) Lookup(op Opcode) Latency {
	return t[op]
}

// FixedLatency returns the fixed latency of the instruction, and false if its latency is variable.
func (t *LatencyTable) FixedLatency(i *Instr) (int, bool) {
	l := t[i.Op]
	return l.Cycles, l.Fixed
}

// Set overrides the latency of op.
func (t *LatencyTable) Set(op Opcode, l Latency) {
	t[op] = l
}

// DefaultLatencies returns the scheduling model of the canonical GASS core.
func DefaultLatencies() LatencyTable {
	fixed := func(cycles int) Latency { return Latency{Fixed: true, Cycles: cycles, Occupancy: 1} }
	variable := func(cycles, occupancy int) Latency { return Latency{Cycles: cycles, Occupancy: occupancy} }
	return LatencyTable{
		OpcodeInvalid: variable(1, 1),
		OpcodeNop:     fixed(1),
		OpcodeMov:     fixed(4),
		OpcodeMov32i:  fixed(4),
		OpcodeIadd:    fixed(6),
		OpcodeIadd3:   fixed(6),
		OpcodeImad:    fixed(6),
		OpcodeIsetp:   fixed(6),
		OpcodeShl:     fixed(6),
		OpcodeShr:     fixed(6),
		OpcodeLop:     fixed(6),
		OpcodeFadd:    fixed(6),
		OpcodeFmul:    fixed(6),
		OpcodeFfma:    fixed(6),
		OpcodeFsetp:   fixed(6),
		OpcodeMufu:    variable(20, 4),
		OpcodeHmma:    {Fixed: true, Cycles: 10, Occupancy: 2},
		OpcodeS2r:     variable(20, 1),
		OpcodeLdg:     variable(200, 1),
		OpcodeLds:     variable(30, 1),
		OpcodeLdc:     variable(20, 1),
		OpcodeLdl:     variable(200, 1),
		OpcodeLd:      variable(200, 1),
		OpcodeStg:     variable(1, 1),
		OpcodeSts:     variable(1, 1),
		OpcodeStl:     variable(1, 1),
		OpcodeSt:      variable(1, 1),
		OpcodeAtom:    variable(250, 1),
		OpcodeBar:     variable(1, 1),
		OpcodeBra:     variable(1, 1),
		OpcodeExit:    variable(1, 1),
	}
}

// Target holds the statically-known information about the GASS core being compiled for.
type Target struct {
	Name string
	// AllocatableRegs is the number of general registers available to the register allocator.
	AllocatableRegs int
	// PressureSetLimit is the declared register pressure limit of the general register file.
	PressureSetLimit int
	// Barriers is the number of physical dependency barriers.
	Barriers  int
	Latencies LatencyTable
}

// DefaultTarget returns the canonical GASS target.
func DefaultTarget() *Target {
	return &Target{
		Name: "gass",
		// R0-R254; RZ is not allocatable.
		AllocatableRegs: 255,
		// Above 128 registers per thread, occupancy drops below two warps per scheduler.
		PressureSetLimit: 128,
		Barriers:         BarrierCount,
		Latencies:        DefaultLatencies(),
	}
}
