package barrier

import (
	"context"

	"github.com/nikandfor/tlog"

	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Options configures barrier discovery.
type Options struct {
	// CrossBlockWAR extends the WAR scan beyond the fallthrough successor. It is not implemented.
	CrossBlockWAR bool
}

// Discover returns the barriers required by the instructions of blk.
//
// The scan window is blk followed by its fallthrough successor, if any. A load, or any other
// producer with a variable-latency result such as MUFU or S2R, gets a RAW barrier ending at
// the first later instruction reading its destination, or at the last instruction of the
// window. A memory write with address registers gets a WAR barrier ending
// at the first later redefinition of one of them. A store whose address is never redefined
// within the window gets no barrier.
func Discover(ctx context.Context, f *ir.Function, blk *ir.Block, pts *ir.Points, opts Options) []*Barrier {
	if opts.CrossBlockWAR {
		panic(gassapi.NotImplemented("cross-block WAR barrier discovery"))
	}

	tr := tlog.SpanFromContext(ctx)

	window := blk.Instrs
	if succ, ok := f.FallthroughSuccessor(blk); ok && len(succ.Instrs) > 0 {
		window = make([]ir.InstrID, 0, len(blk.Instrs)+len(succ.Instrs))
		window = append(window, blk.Instrs...)
		window = append(window, succ.Instrs...)
	}

	var ret []*Barrier
	for k, id := range blk.Instrs {
		instr := f.Instr(id)
		rest := window[k+1:]

		if instr.Op.HasLateResult() {
			if b := discoverRAW(f, pts, instr, rest); b != nil {
				ret = append(ret, b)
			} else if gassapi.BarrierLoggingEnabled || tr.If("barrier") {
				tr.Printw("late result at the end of the scan window", "instr", instr.Format(f))
			}
		}

		if instr.MayStore() {
			if addrs := instr.AddrRegs(); len(addrs) > 0 {
				if b := discoverWAR(f, pts, instr, addrs, rest); b != nil {
					ret = append(ret, b)
				} else if gassapi.BarrierLoggingEnabled || tr.If("barrier") {
					// TODO: a later block may still overwrite the address registers before
					// the store has read them. Needs a global scan to decide.
					tr.Printw("no redefinition of store address in scan window", "instr", instr.Format(f), "block", blk.Label)
				}
			}
		}
	}

	if gassapi.BarrierLoggingEnabled || tr.If("barrier") {
		for _, b := range ret {
			tr.Printw("discovered barrier", "block", blk.Label, "barrier", b.String())
		}
	}
	return ret
}

func discoverRAW(f *ir.Function, pts *ir.Points, load *ir.Instr, rest []ir.InstrID) *Barrier {
	defs := load.Defs()
	if len(defs) == 0 || len(rest) == 0 {
		return nil
	}
	end := rest[len(rest)-1]
	for _, id := range rest {
		if readsAny(f.Instr(id), defs) {
			end = id
			break
		}
	}
	return newBarrier(rawKindOf(load.Mem), pts.Of(load.ID), load.ID, pts.Of(end), end)
}

func discoverWAR(f *ir.Function, pts *ir.Points, store *ir.Instr, addrs []ir.Reg, rest []ir.InstrID) *Barrier {
	for _, id := range rest {
		u := f.Instr(id)
		for _, a := range addrs {
			if u.Writes(a) {
				return newBarrier(warKindOf(store.Mem), pts.Of(store.ID), store.ID, pts.Of(id), id)
			}
		}
	}
	return nil
}

func readsAny(i *ir.Instr, regs []ir.Reg) bool {
	for _, r := range regs {
		if i.Reads(r) {
			return true
		}
	}
	return false
}
