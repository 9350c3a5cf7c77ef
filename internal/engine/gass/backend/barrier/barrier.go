// Package barrier allocates the dependency barriers of the GASS core. A barrier covers a
// hazard between an instruction with a variable-latency side (a load result being written,
// or a store address being read) and the first later instruction which must not issue
// before that side completes. There are only six physical barriers, so they are treated
// like a tiny register file: barriers are discovered per block, their interference graph is
// reduced by merging until it fits, and the survivors are assigned by linear scan.
package barrier

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/gasstools/gassc/internal/engine/gass/backend/liverange"
	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Kind is the hazard kind of a Barrier.
type Kind byte

const (
	KindRAWShared Kind = iota
	KindRAWGlobal
	KindRAWConst
	KindWARShared
	KindWARGlobal
	KindWARGenericMem
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindRAWShared:
		return "raw-shared"
	case KindRAWGlobal:
		return "raw-global"
	case KindRAWConst:
		return "raw-const"
	case KindWARShared:
		return "war-shared"
	case KindWARGlobal:
		return "war-global"
	case KindWARGenericMem:
		return "war-generic"
	}
	panic(fmt.Sprintf("BUG: unknown barrier kind %d", k))
}

// IsRAW returns true for read-after-write kinds.
func (k Kind) IsRAW() bool {
	switch k {
	case KindRAWShared, KindRAWGlobal, KindRAWConst:
		return true
	case KindWARShared, KindWARGlobal, KindWARGenericMem:
		return false
	}
	panic(fmt.Sprintf("BUG: unknown barrier kind %d", k))
}

// rawKindOf returns the kind of the barrier protecting the result of a load from m. Late
// results of non-memory instructions are treated like global loads.
func rawKindOf(m ir.MemSpace) Kind {
	switch m {
	case ir.MemSpaceShared:
		return KindRAWShared
	case ir.MemSpaceConst, ir.MemSpaceParam:
		return KindRAWConst
	case ir.MemSpaceGlobal, ir.MemSpaceGeneric, ir.MemSpaceLocal, ir.MemSpaceNone:
		return KindRAWGlobal
	}
	panic(fmt.Sprintf("BUG: load from memory space %s", m))
}

// warKindOf returns the kind of the barrier protecting the address registers of a store to m.
func warKindOf(m ir.MemSpace) Kind {
	switch m {
	case ir.MemSpaceShared:
		return KindWARShared
	case ir.MemSpaceGlobal:
		return KindWARGlobal
	case ir.MemSpaceGeneric, ir.MemSpaceLocal, ir.MemSpaceParam, ir.MemSpaceConst:
		return KindWARGenericMem
	}
	panic(fmt.Sprintf("BUG: store to memory space %s", m))
}

// Barrier is one wait dependency: the instructions at Starts set the barrier, and the
// instruction at End waits for it.
type Barrier struct {
	Kind Kind
	// Starts holds the points of the instructions setting the barrier, ascending.
	Starts []ir.Point
	// StartInstrs is parallel to Starts.
	StartInstrs []ir.InstrID
	End         ir.Point
	EndInstr    ir.InstrID
	// Index is the physical barrier, or ir.NoBarrier until allocated.
	Index uint8
}

func newBarrier(kind Kind, start ir.Point, startInstr ir.InstrID, end ir.Point, endInstr ir.InstrID) *Barrier {
	b := &Barrier{
		Kind:        kind,
		Starts:      []ir.Point{start},
		StartInstrs: []ir.InstrID{startInstr},
		End:         end,
		EndInstr:    endInstr,
		Index:       ir.NoBarrier,
	}
	_ = b.Range() // Validates start < end.
	return b
}

// IsRAW returns true if this protects a load result.
func (b *Barrier) IsRAW() bool { return b.Kind.IsRAW() }

// Range returns [first start, end).
func (b *Barrier) Range() liverange.Range {
	return liverange.New(b.Starts[0], b.End)
}

// Allocated returns true once a physical index is assigned.
func (b *Barrier) Allocated() bool { return b.Index != ir.NoBarrier }

// String implements fmt.Stringer.
func (b *Barrier) String() string {
	starts := make([]string, len(b.Starts))
	for i, s := range b.Starts {
		starts[i] = fmt.Sprint(s)
	}
	idx := "-"
	if b.Allocated() {
		idx = fmt.Sprint(b.Index)
	}
	return fmt.Sprintf("%s{starts=[%s], end=%d, index=%s}", b.Kind, strings.Join(starts, " "), b.End, idx)
}

// splitAt returns the barriers set by the starts before at and by the ones at or after it,
// both waited for at b.End. Either is nil when it has no starts.
func (b *Barrier) splitAt(at ir.Point) (early, late *Barrier) {
	i, _ := slices.BinarySearch(b.Starts, at)
	if i == len(b.Starts) {
		return b, nil
	}
	if i == 0 {
		return nil, b
	}
	early = &Barrier{Kind: b.Kind, Starts: b.Starts[:i:i], StartInstrs: b.StartInstrs[:i:i], End: b.End, EndInstr: b.EndInstr, Index: ir.NoBarrier}
	late = &Barrier{Kind: b.Kind, Starts: b.Starts[i:], StartInstrs: b.StartInstrs[i:], End: b.End, EndInstr: b.EndInstr, Index: ir.NoBarrier}
	return early, late
}

// Merge returns a barrier covering both a and b: it ends at the earlier end, so the wait
// happens no later than either original wait. The start points are the union of both,
// except for two shared-memory loads: those complete in issue order, so only the earliest
// start is kept.
//
// Every start of a and b must lie before the merged end, otherwise its hazard would be lost.
// Merging a RAW barrier with a WAR barrier is forbidden since they are set by different
// fields of the control word.
func Merge(a, b *Barrier) *Barrier {
	if a.IsRAW() != b.IsRAW() {
		panic(fmt.Sprintf("BUG: cannot merge %s with %s", a, b))
	}
	if !a.Range().Overlaps(b.Range()) {
		panic(fmt.Sprintf("BUG: cannot merge disjoint barriers %s and %s", a, b))
	}
	if gassapi.BarrierValidationEnabled {
		for _, s := range [][]ir.Point{a.Starts, b.Starts} {
			if last := s[len(s)-1]; last >= a.End || last >= b.End {
				panic(fmt.Sprintf("BUG: merging %s and %s loses the start at %d", a, b, last))
			}
		}
	}

	ret := &Barrier{Kind: mergedKind(a.Kind, b.Kind), Index: ir.NoBarrier}
	if a.End <= b.End {
		ret.End, ret.EndInstr = a.End, a.EndInstr
	} else {
		ret.End, ret.EndInstr = b.End, b.EndInstr
	}

	if a.Kind == KindRAWShared && b.Kind == KindRAWShared {
		if a.Starts[0] <= b.Starts[0] {
			ret.Starts, ret.StartInstrs = []ir.Point{a.Starts[0]}, []ir.InstrID{a.StartInstrs[0]}
		} else {
			ret.Starts, ret.StartInstrs = []ir.Point{b.Starts[0]}, []ir.InstrID{b.StartInstrs[0]}
		}
		return ret
	}

	ret.Starts = slices.Clone(a.Starts)
	ret.StartInstrs = slices.Clone(a.StartInstrs)
	for i, s := range b.Starts {
		at, found := slices.BinarySearch(ret.Starts, s)
		if found {
			continue
		}
		ret.Starts = slices.Insert(ret.Starts, at, s)
		ret.StartInstrs = slices.Insert(ret.StartInstrs, at, b.StartInstrs[i])
	}
	return ret
}

func mergedKind(a, b Kind) Kind {
	switch {
	case a == b:
		return a
	case a.IsRAW():
		// Global memory has the longest latency, so it is the conservative choice.
		return KindRAWGlobal
	default:
		return KindWARGenericMem
	}
}
