// Package sched implements the list scheduler of the GASS backend: a generic bidirectional
// engine over the dependency DAG of a block, parameterized by a Strategy which picks among the
// ready instructions.
package sched

import (
	"fmt"
	"strings"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// DepKind is the kind of a scheduling dependency.
type DepKind byte

const (
	// DepData is a register read-after-write.
	DepData DepKind = iota
	// DepOutput is a register write-after-write.
	DepOutput
	// DepAnti is a register write-after-read.
	DepAnti
	// DepOrder keeps memory accesses, side effects and the terminator in order.
	DepOrder
)

// String implements fmt.Stringer.
func (k DepKind) String() string {
	switch k {
	case DepData:
		return "data"
	case DepOutput:
		return "output"
	case DepAnti:
		return "anti"
	case DepOrder:
		return "order"
	}
	panic(fmt.Sprintf("BUG: unknown dependency kind %d", k))
}

// Dep is an edge of the DAG seen from one of its ends.
type Dep struct {
	SU   *SUnit
	Kind DepKind
	// Latency is the number of cycles the successor must issue after the predecessor.
	Latency int
}

// SUnit is a node of the scheduling DAG.
type SUnit struct {
	// NodeNum is the position of the instruction in the original order.
	NodeNum int
	Instr   *ir.Instr
	Preds   []Dep
	Succs   []Dep
	// Depth is the longest latency path from a root, Height the longest to a leaf.
	Depth, Height int

	NumPredsLeft, NumSuccsLeft   int
	TopReadyCycle, BotReadyCycle int
	IsScheduled                  bool
}

// String implements fmt.Stringer.
func (su *SUnit) String() string {
	return fmt.Sprintf("SU(%d) %s", su.NodeNum, su.Instr)
}

// DAG is the dependency graph of one scheduling region.
type DAG struct {
	Units []*SUnit
}

// BuildDAG returns the dependency graph of instrs, which are in program order.
//
// Two instructions depend on each other if they access overlapping registers and one of them
// writes, if they may access the same memory and one of them writes, or if either has a side
// effect and the other accesses memory or has one too. The guard of an instruction counts as a
// read. A terminator depends on every other instruction so that it stays last.
func BuildDAG(f *ir.Function, instrs []ir.InstrID, latencies *ir.LatencyTable) *DAG {
	d := &DAG{Units: make([]*SUnit, len(instrs))}
	for i, id := range instrs {
		d.Units[i] = &SUnit{NodeNum: i, Instr: f.Instr(id)}
	}

	for j, succ := range d.Units {
		for i := 0; i < j; i++ {
			pred := d.Units[i]
			if kind, latency, ok := dependency(pred.Instr, succ.Instr, latencies); ok {
				d.addDep(pred, succ, kind, latency)
			}
		}
	}
	d.computeDepthAndHeight()
	return d
}

func (d *DAG) addDep(pred, succ *SUnit, kind DepKind, latency int) {
	pred.Succs = append(pred.Succs, Dep{SU: succ, Kind: kind, Latency: latency})
	succ.Preds = append(succ.Preds, Dep{SU: pred, Kind: kind, Latency: latency})
	pred.NumSuccsLeft++
	succ.NumPredsLeft++
}

// dependency returns the strongest dependency of b on a, where a precedes b.
func dependency(a, b *ir.Instr, latencies *ir.LatencyTable) (kind DepKind, latency int, ok bool) {
	defsA, defsB := a.Defs(), b.Defs()
	for _, d := range defsA {
		if b.Reads(d) {
			return DepData, latencies.Lookup(a.Op).Cycles, true
		}
	}
	for _, d := range defsA {
		if b.Writes(d) {
			return DepOutput, 1, true
		}
	}

	switch {
	case a.MayStore() && (b.MayLoad() || b.MayStore()) && a.Mem.MayAlias(b.Mem):
		kind, latency, ok = DepOrder, 1, true
	case a.MayLoad() && b.MayStore() && a.Mem.MayAlias(b.Mem):
		kind, latency, ok = DepOrder, 0, true
	case a.Op.HasSideEffect() && (b.Op.HasSideEffect() || b.MayLoad() || b.MayStore()):
		kind, latency, ok = DepOrder, 1, true
	case b.Op.HasSideEffect() && (a.MayLoad() || a.MayStore()):
		kind, latency, ok = DepOrder, 0, true
	}
	if ok {
		return
	}

	for _, d := range defsB {
		if a.Reads(d) {
			return DepAnti, 0, true
		}
	}
	if b.IsTerminator() {
		return DepOrder, 0, true
	}
	return 0, 0, false
}

// computeDepthAndHeight relies on Units being a topological order, which program order is.
func (d *DAG) computeDepthAndHeight() {
	for _, su := range d.Units {
		su.Depth = 0
		for _, p := range su.Preds {
			if depth := p.SU.Depth + p.Latency; depth > su.Depth {
				su.Depth = depth
			}
		}
	}
	for i := len(d.Units) - 1; i >= 0; i-- {
		su := d.Units[i]
		su.Height = 0
		for _, s := range su.Succs {
			if height := s.SU.Height + s.Latency; height > su.Height {
				su.Height = height
			}
		}
	}
}

// Format returns a human readable dump of the DAG.
func (d *DAG) Format() string {
	var sb strings.Builder
	for _, su := range d.Units {
		fmt.Fprintf(&sb, "%s depth=%d height=%d\n", su, su.Depth, su.Height)
		for _, s := range su.Succs {
			fmt.Fprintf(&sb, "\t-> SU(%d) %s latency=%d\n", s.SU.NodeNum, s.Kind, s.Latency)
		}
	}
	return sb.String()
}

// Verify panics if order, a permutation of the units, breaks a dependency.
func (d *DAG) Verify(order []*SUnit) {
	if len(order) != len(d.Units) {
		panic(fmt.Sprintf("BUG: scheduled %d of %d instructions", len(order), len(d.Units)))
	}
	pos := make([]int, len(d.Units))
	for i := range pos {
		pos[i] = -1
	}
	for i, su := range order {
		if pos[su.NodeNum] != -1 {
			panic(fmt.Sprintf("BUG: %s scheduled twice", su))
		}
		pos[su.NodeNum] = i
	}
	for _, su := range d.Units {
		for _, s := range su.Succs {
			if pos[su.NodeNum] >= pos[s.SU.NodeNum] {
				panic(fmt.Sprintf("BUG: %s scheduled after its successor %s", su, s.SU))
			}
		}
	}
}
