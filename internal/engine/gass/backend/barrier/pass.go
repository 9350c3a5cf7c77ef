package barrier

import (
	"context"
	"fmt"

	"github.com/nikandfor/tlog"

	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Encode writes the allocated barriers into the control words: every start instruction of a
// RAW barrier sets it as its write barrier, every start instruction of a WAR barrier as its
// read barrier, and the end instruction waits for it.
func Encode(f *ir.Function, barriers []*Barrier) {
	for _, b := range barriers {
		if !b.Allocated() {
			panic(fmt.Sprintf("BUG: encoding unallocated barrier %s", b))
		}
		for _, id := range b.StartInstrs {
			c := &f.Instr(id).Control
			if b.IsRAW() {
				if gassapi.BarrierValidationEnabled && c.WriteBarrier() != ir.NoBarrier {
					panic(fmt.Sprintf("BUG: instruction %d sets two write barriers", id))
				}
				c.SetWriteBarrier(b.Index)
			} else {
				if gassapi.BarrierValidationEnabled && c.ReadBarrier() != ir.NoBarrier {
					panic(fmt.Sprintf("BUG: instruction %d sets two read barriers", id))
				}
				c.SetReadBarrier(b.Index)
			}
		}
		f.Instr(b.EndInstr).Control.AddWait(b.Index)
	}
}

// Pass sets the dependency barriers of a function.
type Pass struct {
	Capacity int
	Pick     MergePick
	Options  Options
}

// NewPass returns a Pass using every physical barrier and the ordered merge strategy.
func NewPass() *Pass {
	return &Pass{Capacity: ir.BarrierCount, Pick: MergePickOrdered}
}

// Run resets the barrier fields of every instruction, then discovers, reduces, allocates and
// encodes the barriers of each region. A region is a maximal chain of blocks where each one
// falls through into the next, so that a barrier ending in a fallthrough successor is
// allocated together with the ones starting there.
func (p *Pass) Run(ctx context.Context, f *ir.Function) {
	tr := tlog.SpanFromContext(ctx)

	for _, b := range f.Blocks {
		for _, id := range b.Instrs {
			f.Instr(id).Control.ResetBarriers()
		}
	}

	pts := ir.ComputePoints(f)
	for _, region := range fallthroughChains(f) {
		var barriers []*Barrier
		for _, blk := range region {
			barriers = append(barriers, Discover(ctx, f, blk, pts, p.Options)...)
		}
		if len(barriers) == 0 {
			continue
		}

		g := NewGraph(barriers)
		merges := g.Reduce(ctx, p.Capacity, p.Pick)
		reduced := g.Barriers()
		Allocate(reduced, p.Capacity)
		Encode(f, reduced)

		if gassapi.BarrierLoggingEnabled || tr.If("barrier") {
			tr.Printw("barriers allocated", "region", region[0].Label, "discovered", len(barriers), "merges", merges)
			for _, b := range reduced {
				tr.Printw("barrier", "barrier", b.String())
			}
		}
	}
}

func fallthroughChains(f *ir.Function) [][]*ir.Block {
	var ret [][]*ir.Block
	var cur []*ir.Block
	for _, b := range f.Blocks {
		cur = append(cur, b)
		if _, ok := f.FallthroughSuccessor(b); !ok {
			ret = append(ret, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		ret = append(ret, cur)
	}
	return ret
}
