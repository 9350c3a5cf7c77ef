// Package backend finalizes GASS functions: it schedules the instructions of each block and then
// sets the stall cycles and the dependency barriers of their control words.
package backend

import (
	"context"
	"fmt"

	"github.com/nikandfor/errors"
	"github.com/nikandfor/tlog"

	"github.com/gasstools/gassc/internal/engine/gass/backend/barrier"
	"github.com/gasstools/gassc/internal/engine/gass/backend/sched"
	"github.com/gasstools/gassc/internal/engine/gass/backend/stall"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Compiler runs a fixed list of passes over GASS functions.
type Compiler struct {
	cfg    *Config
	passes []pass
}

// analyses holds the results shared by the passes of one Compile call.
type analyses struct {
	liveness *ir.Liveness
	loops    *ir.LoopInfo
}

type pass struct {
	name string
	run  func(ctx context.Context, f *ir.Function, a *analyses)
}

// NewCompiler returns a Compiler for cfg, or NewConfig if cfg is nil.
func NewCompiler(cfg *Config) *Compiler {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := &Compiler{cfg: cfg}

	if cfg.eliminateNops {
		c.passes = append(c.passes, pass{name: "nop", run: func(_ context.Context, f *ir.Function, _ *analyses) {
			eliminateNops(f)
		}})
	}
	if cfg.schedule {
		p := sched.NewPass(cfg.target)
		p.Margin = cfg.errorMargin
		p.Weights = cfg.weights
		p.SinkLoads = cfg.sinkLoads
		c.passes = append(c.passes, pass{name: "sched", run: func(ctx context.Context, f *ir.Function, a *analyses) {
			p.Run(ctx, f, a.liveness, a.loops)
		}})
	}

	stalls := stall.NewPass(&cfg.target.Latencies)
	c.passes = append(c.passes, pass{name: "stall", run: func(ctx context.Context, f *ir.Function, _ *analyses) {
		stalls.Run(ctx, f)
	}})

	barriers := barrier.NewPass()
	barriers.Capacity = cfg.barrierCapacity
	barriers.Pick = cfg.mergePick
	barriers.Options.CrossBlockWAR = cfg.crossBlockWAR
	c.passes = append(c.passes, pass{name: "barrier", run: func(ctx context.Context, f *ir.Function, _ *analyses) {
		barriers.Run(ctx, f)
	}})
	return c
}

// Passes returns the names of the passes in the order they run.
func (c *Compiler) Passes() []string {
	ret := make([]string, len(c.passes))
	for i, p := range c.passes {
		ret[i] = p.name
	}
	return ret
}

// Compile finalizes f in place. An invariant violation or an unimplemented feature aborts the
// compilation and is returned as an error, in which case f must be discarded.
func (c *Compiler) Compile(ctx context.Context, f *ir.Function) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "gass: compile", "func", f.Name)
	defer tr.Finish("err", &err)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause, ok := r.(error)
		if !ok {
			cause = errors.New("%v", r)
		}
		err = errors.Wrap(cause, "compile %s", f.Name)
	}()

	if err = c.cfg.validate(); err != nil {
		return errors.Wrap(err, "compile %s", f.Name)
	}

	a := &analyses{}
	for _, p := range c.passes {
		if p.name == "sched" {
			a.liveness, a.loops = ir.ComputeLiveness(f), ir.ComputeLoops(f)
		}
		p.run(ctx, f, a)
		if tr.If("dump_" + p.name) {
			tr.Printw("after pass", "pass", p.name, "func", fmt.Sprintf("\n%s", f.Format()))
		}
	}
	return nil
}

// eliminateNops removes the NOP instructions of f.
func eliminateNops(f *ir.Function) {
	var worklist []ir.InstrID
	for _, b := range f.Blocks {
		for _, id := range b.Instrs {
			if f.Instr(id).Op == ir.OpcodeNop {
				worklist = append(worklist, id)
			}
		}
	}
	f.Erase(worklist)
}
