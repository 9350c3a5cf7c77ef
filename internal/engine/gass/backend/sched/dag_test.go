package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

const depsSrc = `
entry:
	LDG R2, [R0]
	FADD R3, R2, R2
	MOV R0, R5
	STG [R6], R3
	LDS R7, [R8]
	@P0 MOV R3, R9
	EXIT
`

func findDep(su *SUnit, succ int) (Dep, bool) {
	for _, d := range su.Succs {
		if d.SU.NodeNum == succ {
			return d, true
		}
	}
	return Dep{}, false
}

func TestBuildDAG(t *testing.T) {
	f := ir.MustParse(depsSrc)
	latencies := ir.DefaultLatencies()
	d := BuildDAG(f, f.Blocks[0].Instrs, &latencies)
	require.Equal(t, 7, len(d.Units))

	for _, tc := range []struct {
		name    string
		pred    int
		succ    int
		exists  bool
		kind    DepKind
		latency int
	}{
		{name: "load result", pred: 0, succ: 1, exists: true, kind: DepData, latency: 200},
		{name: "address overwritten", pred: 0, succ: 2, exists: true, kind: DepAnti},
		{name: "fixed latency result", pred: 1, succ: 3, exists: true, kind: DepData, latency: 6},
		{name: "load before aliasing store", pred: 0, succ: 3, exists: true, kind: DepOrder},
		{name: "global and shared do not alias", pred: 3, succ: 4},
		{name: "guarded overwrite", pred: 1, succ: 5, exists: true, kind: DepOutput, latency: 1},
		{name: "store source overwritten", pred: 3, succ: 5, exists: true, kind: DepAnti},
		{name: "load before exit", pred: 4, succ: 6, exists: true, kind: DepOrder},
		{name: "terminator stays last", pred: 5, succ: 6, exists: true, kind: DepOrder},
		{name: "independent", pred: 2, succ: 4},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			dep, ok := findDep(d.Units[tc.pred], tc.succ)
			require.Equal(t, tc.exists, ok)
			if ok {
				require.Equal(t, tc.kind, dep.Kind)
				require.Equal(t, tc.latency, dep.Latency)
			}
		})
	}

	require.Equal(t, 206, d.Units[3].Depth)
	require.Equal(t, 206, d.Units[0].Height)
	require.Equal(t, 6, d.Units[1].Height)
	require.Equal(t, 0, d.Units[6].Height)
	require.Equal(t, 6, d.Units[6].NumPredsLeft)
	require.Zero(t, d.Units[0].NumPredsLeft)
	require.Zero(t, d.Units[6].NumSuccsLeft)
	require.Contains(t, d.Format(), "SU(0) LDG R2, [R0] depth=0 height=206")
}

func TestBuildDAG_sideEffects(t *testing.T) {
	f := ir.MustParse(`
entry:
	STS [R0], R1
	BAR
	LDS R2, [R0]
	FADD R3, R4, R4
	EXIT
`)
	latencies := ir.DefaultLatencies()
	d := BuildDAG(f, f.Blocks[0].Instrs, &latencies)

	_, ok := findDep(d.Units[0], 1)
	require.True(t, ok)
	_, ok = findDep(d.Units[1], 2)
	require.True(t, ok)
	_, ok = findDep(d.Units[1], 3)
	require.False(t, ok)
	dep, ok := findDep(d.Units[0], 2)
	require.True(t, ok)
	require.Equal(t, DepOrder, dep.Kind)
	require.Equal(t, 1, dep.Latency)
}

func TestDAG_Verify(t *testing.T) {
	f := ir.MustParse(depsSrc)
	latencies := ir.DefaultLatencies()
	d := BuildDAG(f, f.Blocks[0].Instrs, &latencies)

	d.Verify(d.Units)

	swapped := append([]*SUnit{}, d.Units...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.Panics(t, func() { d.Verify(swapped) })
	require.Panics(t, func() { d.Verify(d.Units[1:]) })

	dup := append([]*SUnit{}, d.Units...)
	dup[1] = dup[0]
	require.Panics(t, func() { d.Verify(dup) })
}
