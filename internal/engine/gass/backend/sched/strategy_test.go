package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

func su(num int, op ir.Opcode) *SUnit {
	return &SUnit{NodeNum: num, Instr: &ir.Instr{Op: op}}
}

func TestGASSStrategy_TryCandidate(t *testing.T) {
	latencies := ir.DefaultLatencies()
	s := &GASSStrategy{
		GenericStrategy: GenericStrategy{ExcessLimit: 5, CriticalLimit: 3},
		Weights:         DefaultWeights(),
	}

	for _, tc := range []struct {
		name      string
		top       bool
		setup     func(z *Zone, cand, best *Candidate)
		candWins  bool
		winnerWhy CandReason
	}{
		{
			name: "excess pressure",
			top:  true,
			setup: func(z *Zone, cand, best *Candidate) {
				cand.PressureAfter, best.PressureAfter = 4, 7
				cand.SU.TopReadyCycle = 10
			},
			candWins:  true,
			winnerWhy: RegExcess,
		},
		{
			name: "critical pressure",
			top:  true,
			setup: func(z *Zone, cand, best *Candidate) {
				cand.PressureAfter, best.PressureAfter = 5, 4
			},
			candWins:  false,
			winnerWhy: RegCritical,
		},
		{
			name: "stall",
			top:  true,
			setup: func(z *Zone, cand, best *Candidate) {
				best.SU.TopReadyCycle = 3
				best.SU.Height = 100
			},
			candWins:  true,
			winnerWhy: Stall,
		},
		{
			name: "critical path",
			top:  true,
			setup: func(z *Zone, cand, best *Candidate) {
				cand.SU.Height, best.SU.Height = 10, 2
			},
			candWins:  true,
			winnerWhy: DomainScore,
		},
		{
			name: "bottom critical path",
			top:  false,
			setup: func(z *Zone, cand, best *Candidate) {
				cand.SU.Height, best.SU.Height = 10, 2
				cand.SU.Depth, best.SU.Depth = 1, 5
			},
			candWins:  false,
			winnerWhy: DomainScore,
		},
		{
			name: "waiting time",
			top:  true,
			setup: func(z *Zone, cand, best *Candidate) {
				z.CurrCycle = 5
				best.SU.TopReadyCycle = 5
			},
			candWins:  true,
			winnerWhy: DomainScore,
		},
		{
			name: "busy unit",
			top:  true,
			setup: func(z *Zone, cand, best *Candidate) {
				z.unitFree[ir.UnitALU] = 4
			},
			candWins:  false,
			winnerWhy: DomainScore,
		},
		{
			name:      "top keeps earlier",
			top:       true,
			setup:     func(z *Zone, cand, best *Candidate) {},
			candWins:  true,
			winnerWhy: NodeOrder,
		},
		{
			name:     "bottom keeps later",
			top:      false,
			setup:    func(z *Zone, cand, best *Candidate) {},
			candWins: false,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			z := newZone(tc.top, &pressureTracker{top: tc.top}, &latencies)
			// cand precedes best in program order. cand issues to the ALU, best to the FMA unit.
			cand := &Candidate{SU: su(0, ir.OpcodeMov)}
			best := &Candidate{SU: su(1, ir.OpcodeFadd), Reason: NodeOrder}
			tc.setup(z, cand, best)

			require.Equal(t, tc.candWins, s.TryCandidate(z, cand, best))
			if tc.candWins {
				require.Equal(t, tc.winnerWhy, cand.Reason)
			} else {
				require.Equal(t, NoCand, cand.Reason)
				if tc.winnerWhy != NoCand {
					require.Equal(t, tc.winnerWhy, best.Reason)
				}
			}
		})
	}
}

func TestGenericStrategy_TryCandidate(t *testing.T) {
	latencies := ir.DefaultLatencies()
	s := NewGenericStrategy(&ir.Target{AllocatableRegs: 10, PressureSetLimit: 8}, DefaultErrorMargin)
	require.Equal(t, GenericStrategy{ExcessLimit: 7, CriticalLimit: 5}, s)

	z := newZone(true, &pressureTracker{top: true}, &latencies)
	first := &Candidate{SU: su(1, ir.OpcodeFadd)}
	require.True(t, s.TryCandidate(z, first, &Candidate{}))
	require.Equal(t, OnlyCand, first.Reason)

	// A longer critical path does not matter to the generic strategy.
	later := &Candidate{SU: su(2, ir.OpcodeFadd)}
	later.SU.Height = 100
	require.False(t, s.TryCandidate(z, later, first))

	lower := &Candidate{SU: su(3, ir.OpcodeFadd), PressureAfter: 5}
	first.PressureAfter = 6
	require.True(t, s.TryCandidate(z, lower, first))
	require.Equal(t, RegCritical, lower.Reason)
}

func TestGASSStrategy_InitPolicy(t *testing.T) {
	f := ir.MustParse(`
entry:
	MOV R0, RZ
outer:
	MOV R1, RZ
inner:
	IADD R1, R1, 0x1
	ISETP P0, R1, R2
	@P0 BRA inner
latch:
	IADD R0, R0, 0x1
	ISETP P1, R0, R3
	@P1 BRA outer
single:
	IADD R4, R4, 0x1
	@P2 BRA single
exit:
	EXIT
`)
	s := NewGASSStrategy(ir.DefaultTarget(), DefaultErrorMargin, ir.ComputeLoops(f), DefaultWeights())

	for _, tc := range []struct {
		block       string
		onlyTopDown bool
	}{
		{block: "entry"},
		{block: "outer"},
		{block: "inner"},
		{block: "latch"},
		{block: "single", onlyTopDown: true},
		{block: "exit"},
	} {
		tc := tc
		t.Run(tc.block, func(t *testing.T) {
			var b *ir.Block
			for _, blk := range f.Blocks {
				if blk.Label == tc.block {
					b = blk
				}
			}
			require.NotNil(t, b)

			var p Policy
			s.InitPolicy(&Region{Block: b}, &p)
			require.Equal(t, Policy{OnlyTopDown: tc.onlyTopDown}, p)
		})
	}

	var p Policy
	(&GASSStrategy{}).InitPolicy(&Region{Block: f.Blocks[4]}, &p)
	require.Equal(t, Policy{}, p)
}

func TestCandReason_String(t *testing.T) {
	require.Equal(t, "REG-EXCESS", RegExcess.String())
	require.Equal(t, "ORDER", NodeOrder.String())
	require.Panics(t, func() { _ = CandReason(100).String() })
}
