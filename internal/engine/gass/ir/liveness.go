package ir

// RegUnitSet is a set of register units.
type RegUnitSet map[RegUnit]struct{}

// Has returns true if u is in the set.
func (s RegUnitSet) Has(u RegUnit) bool {
	_, ok := s[u]
	return ok
}

// Liveness holds the live-in and live-out register units of each block.
type Liveness struct {
	LiveIns  []RegUnitSet
	LiveOuts []RegUnitSet
}

// ComputeLiveness runs the classic backward dataflow analysis over the CFG of f:
//
//	liveOut(b) = U liveIn(s) for s in succs(b)
//	liveIn(b)  = uses(b) U (liveOut(b) - defs(b))
//
// Guarded definitions do not kill the previous value since the write may not happen.
func ComputeLiveness(f *Function) *Liveness {
	n := len(f.Blocks)
	l := &Liveness{LiveIns: make([]RegUnitSet, n), LiveOuts: make([]RegUnitSet, n)}
	uses, defs := make([]RegUnitSet, n), make([]RegUnitSet, n)
	var units []RegUnit
	for _, b := range f.Blocks {
		u, d := RegUnitSet{}, RegUnitSet{}
		for _, id := range b.Instrs {
			instr := f.Instr(id)
			for _, r := range instr.Uses() {
				units = r.Units(units[:0])
				for _, unit := range units {
					if !d.Has(unit) {
						u[unit] = struct{}{}
					}
				}
			}
			if instr.Guarded() {
				continue
			}
			for _, r := range instr.Defs() {
				units = r.Units(units[:0])
				for _, unit := range units {
					d[unit] = struct{}{}
				}
			}
		}
		uses[b.ID], defs[b.ID] = u, d
		l.LiveIns[b.ID], l.LiveOuts[b.ID] = RegUnitSet{}, RegUnitSet{}
	}

	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			b := f.Blocks[i]
			out := l.LiveOuts[b.ID]
			for _, s := range b.Succs {
				for unit := range l.LiveIns[s] {
					out[unit] = struct{}{}
				}
			}
			in := l.LiveIns[b.ID]
			before := len(in)
			for unit := range uses[b.ID] {
				in[unit] = struct{}{}
			}
			for unit := range out {
				if !defs[b.ID].Has(unit) {
					in[unit] = struct{}{}
				}
			}
			if len(in) != before {
				changed = true
			}
		}
	}
	return l
}
