package sched

import (
	"golang.org/x/exp/slices"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// pressureTracker follows the number of live general register units at one boundary of the
// partially scheduled region. Predicates have their own file and are not counted.
type pressureTracker struct {
	top  bool
	live ir.RegUnitSet
	// remaining counts the unscheduled reads of each unit. Only the top tracker uses it.
	remaining map[ir.RegUnit]int
	liveOut   ir.RegUnitSet
	pressure  int
	max       int
}

// generalUnits returns the general register units of regs, each once.
func generalUnits(regs []ir.Reg) []ir.RegUnit {
	var ret []ir.RegUnit
	var scratch []ir.RegUnit
	for _, r := range regs {
		if r.Class != ir.RegClassGeneral {
			continue
		}
		for _, u := range r.Units(scratch[:0]) {
			if !slices.Contains(ret, u) {
				ret = append(ret, u)
			}
		}
	}
	return ret
}

// newTopTracker starts from the units live into the region.
func newTopTracker(units []*SUnit, liveIn, liveOut ir.RegUnitSet) *pressureTracker {
	t := &pressureTracker{top: true, live: ir.RegUnitSet{}, remaining: map[ir.RegUnit]int{}, liveOut: liveOut}
	for _, su := range units {
		for _, u := range generalUnits(su.Instr.Uses()) {
			t.remaining[u]++
		}
	}
	for u := range liveIn {
		if u.Class() == ir.RegClassGeneral {
			t.live[u] = struct{}{}
		}
	}
	t.pressure = len(t.live)
	t.max = t.pressure
	return t
}

// newBottomTracker starts from the units live out of the region.
func newBottomTracker(liveOut ir.RegUnitSet) *pressureTracker {
	t := &pressureTracker{live: ir.RegUnitSet{}, liveOut: liveOut}
	for u := range liveOut {
		if u.Class() == ir.RegClassGeneral {
			t.live[u] = struct{}{}
		}
	}
	t.pressure = len(t.live)
	t.max = t.pressure
	return t
}

// delta returns how the pressure would change if su were scheduled next at this boundary.
func (t *pressureTracker) delta(su *SUnit) int {
	uses, defs := generalUnits(su.Instr.Uses()), generalUnits(su.Instr.Defs())
	d := 0
	if t.top {
		var dying []ir.RegUnit
		for _, u := range uses {
			if t.live.Has(u) && !t.liveOut.Has(u) && t.remaining[u] == 1 {
				d--
				dying = append(dying, u)
			}
		}
		for _, u := range defs {
			readLater := t.remaining[u]-boolToInt(slices.Contains(uses, u)) > 0 || t.liveOut.Has(u)
			if readLater && (!t.live.Has(u) || slices.Contains(dying, u)) {
				d++
			}
		}
		return d
	}

	if !su.Instr.Guarded() {
		for _, u := range defs {
			if t.live.Has(u) && !slices.Contains(uses, u) {
				d--
			}
		}
	}
	for _, u := range uses {
		if !t.live.Has(u) {
			d++
		}
	}
	return d
}

// schedule moves the boundary over su.
func (t *pressureTracker) schedule(su *SUnit) {
	uses, defs := generalUnits(su.Instr.Uses()), generalUnits(su.Instr.Defs())
	if t.top {
		for _, u := range uses {
			t.remaining[u]--
			if t.remaining[u] == 0 && !t.liveOut.Has(u) {
				delete(t.live, u)
			}
		}
		for _, u := range defs {
			if t.remaining[u] > 0 || t.liveOut.Has(u) {
				t.live[u] = struct{}{}
			}
		}
	} else {
		if !su.Instr.Guarded() {
			for _, u := range defs {
				delete(t.live, u)
			}
		}
		for _, u := range uses {
			t.live[u] = struct{}{}
		}
	}
	t.pressure = len(t.live)
	if t.pressure > t.max {
		t.max = t.pressure
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
