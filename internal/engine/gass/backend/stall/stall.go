// Package stall sets the stall field of every instruction: the number of cycles the in-order
// pipeline idles after issuing it, so that the next instruction observes the results of
// fixed-latency producers through the bypass network. Variable-latency results are covered by
// dependency barriers instead.
package stall

import (
	"context"
	"fmt"

	"github.com/nikandfor/tlog"

	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

const (
	// MinStall is the stall of every instruction.
	MinStall = 1
	// MinVariableStall is the stall of variable-latency instructions, which hand their result
	// over to a barrier.
	MinVariableStall = 2
	// MinBranchStall covers the pipeline refill after a branch.
	MinBranchStall = 7
)

// Pass computes the stall cycles of every instruction.
//
// Cross-block hazards, write-after-write under predication and functional unit contention are
// not modeled: every block starts with nothing pending and ends by waiting for everything.
type Pass struct {
	Latencies *ir.LatencyTable
}

// NewPass returns a Pass for the given latency table.
func NewPass(latencies *ir.LatencyTable) *Pass {
	return &Pass{Latencies: latencies}
}

// pending is a register whose fixed-latency result is not visible yet.
type pending struct {
	reg       ir.Reg
	remaining int
}

// Run sets the stall field of every instruction of f.
func (p *Pass) Run(ctx context.Context, f *ir.Function) {
	tr := tlog.SpanFromContext(ctx)

	var active []pending
	for _, b := range f.Blocks {
		active = active[:0]
		for k, id := range b.Instrs {
			instr := f.Instr(id)

			stalls := MinStall
			if latency, fixed := p.Latencies.FixedLatency(instr); fixed {
				for _, d := range instr.Defs() {
					active = track(active, d, latency)
				}
			} else if stalls < MinVariableStall {
				stalls = MinVariableStall
			}

			if k+1 < len(b.Instrs) {
				next := f.Instr(b.Instrs[k+1])
				for _, a := range active {
					if a.remaining > stalls && next.Reads(a.reg) {
						stalls = a.remaining
					}
				}
			} else {
				for _, a := range active {
					if a.remaining > stalls {
						stalls = a.remaining
					}
				}
			}

			if instr.IsBranch() && stalls < MinBranchStall {
				stalls = MinBranchStall
			}

			if stalls > ir.MaxStall {
				// The next instruction issues early, so the rest stays tracked for it.
				if gassapi.StallLoggingEnabled || tr.If("stall") {
					tr.Printw("stall capped", "instr", instr.Format(f), "stalls", stalls)
				}
				stalls = ir.MaxStall
			}
			instr.Control.SetStall(stalls)

			cur := 0
			for _, a := range active {
				if a.remaining -= stalls; a.remaining > 0 {
					active[cur] = a
					cur++
				}
			}
			active = active[:cur]

			if gassapi.StallLoggingEnabled {
				fmt.Printf("[stall] %s: %d (tracking %d)\n", instr.Format(f), stalls, len(active))
			}
		}
	}
}

// track records that r becomes visible after latency cycles. An older entry for exactly r is
// replaced; partially overlapping ones are kept, which only over-estimates.
func track(active []pending, r ir.Reg, latency int) []pending {
	cur := 0
	for _, a := range active {
		if a.reg != r {
			active[cur] = a
			cur++
		}
	}
	return append(active[:cur], pending{reg: r, remaining: latency})
}
