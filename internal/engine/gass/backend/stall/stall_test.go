package stall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

func stallsOf(f *ir.Function) [][]int {
	ret := make([][]int, len(f.Blocks))
	for i, b := range f.Blocks {
		for _, id := range b.Instrs {
			ret[i] = append(ret[i], f.Instr(id).Control.Stall())
		}
	}
	return ret
}

func TestPass_Run(t *testing.T) {
	defaults := ir.DefaultLatencies()
	slowMov := ir.DefaultLatencies()
	slowMov.Set(ir.OpcodeMov, ir.Latency{Fixed: true, Cycles: 12, Occupancy: 1})
	verySlowMov := ir.DefaultLatencies()
	verySlowMov.Set(ir.OpcodeMov, ir.Latency{Fixed: true, Cycles: 20, Occupancy: 1})

	for _, tc := range []struct {
		name      string
		latencies ir.LatencyTable
		src       string
		exp       [][]int
	}{
		{
			name:      "fixed latency producer consumed two instructions later",
			latencies: defaults,
			src: `
entry:
	MOV32I R1, 0x0
	MOV R5, R6
	FADD R7, R1, R1
	IADD R8, R1, R9
	EXIT
`,
			// The producer is no longer tracked at the second reader.
			exp: [][]int{{1, 3, 1, 1, 5}},
		},
		{
			name:      "consumer right after the producer",
			latencies: defaults,
			src: `
entry:
	MOV R1, R0
	FADD R2, R1, R1
	EXIT
`,
			exp: [][]int{{4, 1, 5}},
		},
		{
			name:      "overlapping wide register",
			latencies: defaults,
			src: `
entry:
	MOV R2.64, R0.64
	FADD R4, R3, R3
	EXIT
`,
			exp: [][]int{{4, 1, 5}},
		},
		{
			name:      "variable latency",
			latencies: defaults,
			src: `
entry:
	LDG R2, [R0]
	MOV R3, R4
	EXIT
`,
			exp: [][]int{{2, 1, 3}},
		},
		{
			name:      "unconditional branch",
			latencies: defaults,
			src: `
entry:
	MOV R1, R0
	BRA exit
exit:
	EXIT
`,
			exp: [][]int{{1, 7}, {2}},
		},
		{
			name:      "branch waiting longer than the refill",
			latencies: slowMov,
			src: `
entry:
	MOV R1, R0
	BRA exit
exit:
	EXIT
`,
			exp: [][]int{{1, 11}, {2}},
		},
		{
			name:      "stall field is capped",
			latencies: verySlowMov,
			src: `
entry:
	MOV R1, R0
	FADD R2, R1, R1
	EXIT
`,
			exp: [][]int{{15, 1, 5}},
		},
		{
			name:      "blocks start with nothing pending",
			latencies: defaults,
			src: `
entry:
	MOV R1, R0
	@P0 BRA exit
body:
	FADD R2, R1, R1
exit:
	EXIT
`,
			exp: [][]int{{1, 7}, {6}, {2}},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f := ir.MustParse(tc.src)
			NewPass(&tc.latencies).Run(context.Background(), f)
			require.Equal(t, tc.exp, stallsOf(f))
		})
	}
}

func TestPass_floors(t *testing.T) {
	f := ir.MustParse(`
func floors
entry:
	S2R R0, SR_TID.X
	MOV32I R1, 0x10
	LDG R2, [R0+0x10]
	LDC R3, c[0x0][0x140]
	ISETP P0, R0, R1
	@!P0 BRA exit
body:
	FFMA R4, R2, R3, 1.5
	STG [R0-0x4], R4
	HMMA R8.128, R4.64, R6.64, R8.128
	MUFU R12, R8
	BRA exit
exit:
	EXIT
`)
	latencies := ir.DefaultLatencies()
	NewPass(&latencies).Run(context.Background(), f)
	for _, b := range f.Blocks {
		for _, id := range b.Instrs {
			instr := f.Instr(id)
			stalls := instr.Control.Stall()
			require.GreaterOrEqual(t, stalls, MinStall, instr.String())
			require.LessOrEqual(t, stalls, ir.MaxStall, instr.String())
			if instr.IsBranch() {
				require.GreaterOrEqual(t, stalls, MinBranchStall, instr.String())
			}
			if _, fixed := latencies.FixedLatency(instr); !fixed {
				require.GreaterOrEqual(t, stalls, MinVariableStall, instr.String())
			}
		}
	}
}

func TestPass_keepsBarriers(t *testing.T) {
	f := ir.MustParse("entry:\n\tMOV R1, R0\n\tEXIT\n")
	c := &f.Instr(f.Blocks[0].Instrs[0]).Control
	c.SetWriteBarrier(3)
	c.AddWait(1)
	latencies := ir.DefaultLatencies()
	NewPass(&latencies).Run(context.Background(), f)
	require.Equal(t, uint8(3), c.WriteBarrier())
	require.True(t, c.Waits(1))
	require.Equal(t, 1, c.Stall())
}
