package sched

import (
	"context"
	"fmt"

	"github.com/nikandfor/tlog"

	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Scheduler is the generic bidirectional list scheduling engine.
type Scheduler struct {
	f         *ir.Function
	latencies *ir.LatencyTable
	liveness  *ir.Liveness
	strategy  Strategy
}

// NewScheduler returns a Scheduler for the blocks of f.
func NewScheduler(f *ir.Function, latencies *ir.LatencyTable, liveness *ir.Liveness, strategy Strategy) *Scheduler {
	return &Scheduler{f: f, latencies: latencies, liveness: liveness, strategy: strategy}
}

// Result describes how a region was scheduled.
type Result struct {
	Policy Policy
	// Order holds the instructions in their new order.
	Order []*SUnit
	// TopPressure and BottomPressure are the highest pressures seen by each zone.
	TopPressure, BottomPressure int
}

// ScheduleBlock reorders the instructions of b.
func (s *Scheduler) ScheduleBlock(ctx context.Context, b *ir.Block) *Result {
	tr := tlog.SpanFromContext(ctx)

	dag := BuildDAG(s.f, b.Instrs, s.latencies)
	region := &Region{Block: b, DAG: dag}
	res := &Result{}
	s.strategy.InitPolicy(region, &res.Policy)
	if res.Policy.OnlyTopDown && res.Policy.OnlyBottomUp {
		panic(fmt.Sprintf("BUG: block %s cannot be scheduled in neither direction", b.Label))
	}
	if gassapi.SchedLoggingEnabled {
		fmt.Printf("[sched] %s policy=%+v\n%s", b.Label, res.Policy, dag.Format())
	}

	top := newZone(true, newTopTracker(dag.Units, s.liveness.LiveIns[b.ID], s.liveness.LiveOuts[b.ID]), s.latencies)
	bot := newZone(false, newBottomTracker(s.liveness.LiveOuts[b.ID]), s.latencies)
	for _, su := range dag.Units {
		if su.NumPredsLeft == 0 && !res.Policy.OnlyBottomUp {
			top.release(su)
		}
		if su.NumSuccsLeft == 0 && !res.Policy.OnlyTopDown {
			bot.release(su)
		}
	}

	var topOrder, botOrder []*SUnit
	for left := len(dag.Units); left > 0; left-- {
		su, isTop := s.pickNode(top, bot, res.Policy, left)
		su.IsScheduled = true
		if isTop {
			top.bump(su)
			bot.remove(su)
			topOrder = append(topOrder, su)
		} else {
			bot.bump(su)
			top.remove(su)
			botOrder = append(botOrder, su)
		}
		if gassapi.SchedLoggingEnabled || tr.If("sched_pick") {
			tr.Printw("pick", "block", b.Label, "zone", zoneName(isTop), "su", su.String())
		}
	}

	res.Order = topOrder
	for i := len(botOrder) - 1; i >= 0; i-- {
		res.Order = append(res.Order, botOrder[i])
	}
	if gassapi.SchedValidationEnabled {
		dag.Verify(res.Order)
	}
	res.TopPressure, res.BottomPressure = top.MaxPressure(), bot.MaxPressure()

	for i, su := range res.Order {
		b.Instrs[i] = su.Instr.ID
	}
	return res
}

func zoneName(isTop bool) string {
	if isTop {
		return "top"
	}
	return "bottom"
}

// pickNode returns the next instruction to schedule and whether it goes to the top zone.
func (s *Scheduler) pickNode(top, bot *Zone, policy Policy, left int) (*SUnit, bool) {
	switch {
	case policy.OnlyTopDown:
		return s.pickCandidate(top, left).SU, true
	case policy.OnlyBottomUp:
		return s.pickCandidate(bot, left).SU, false
	}

	topCand, botCand := s.pickCandidate(top, left), s.pickCandidate(bot, left)
	topStall, botStall := top.StallCycles(topCand.SU), bot.StallCycles(botCand.SU)
	switch {
	case botStall == 0 && topStall > 0:
		return botCand.SU, false
	case topStall == 0 && botStall > 0:
		return topCand.SU, true
	}
	if g, ok := s.strategy.(pressureLimited); ok {
		excess, critical := g.limits()
		if d := over(topCand.PressureAfter, excess) - over(botCand.PressureAfter, excess); d != 0 {
			return pickLower(d, topCand, botCand)
		}
		if d := over(topCand.PressureAfter, critical) - over(botCand.PressureAfter, critical); d != 0 {
			return pickLower(d, topCand, botCand)
		}
	}
	if top.CriticalPath(topCand.SU) > bot.CriticalPath(botCand.SU) {
		return topCand.SU, true
	}
	return botCand.SU, false
}

func pickLower(d int, topCand, botCand *Candidate) (*SUnit, bool) {
	if d < 0 {
		return topCand.SU, true
	}
	return botCand.SU, false
}

// pickCandidate returns the best available instruction of z.
func (s *Scheduler) pickCandidate(z *Zone, left int) *Candidate {
	if len(z.Available) == 0 {
		panic(fmt.Sprintf("BUG: %s ready queue is empty with %d instructions left", z, left))
	}
	best := &Candidate{}
	for _, su := range z.Available {
		cand := &Candidate{SU: su, PressureAfter: z.PressureAfter(su)}
		if s.strategy.TryCandidate(z, cand, best) {
			best = cand
		}
	}
	return best
}

// Pass schedules every block of a function with a GASSStrategy.
type Pass struct {
	Target *ir.Target
	// Margin is subtracted from the register limits of Target.
	Margin  int
	Weights Weights
	// SinkLoads moves loads into the loop bodies using their results. It is not implemented.
	SinkLoads bool
}

// NewPass returns a Pass for target with the default margin and weights.
func NewPass(target *ir.Target) *Pass {
	return &Pass{Target: target, Margin: DefaultErrorMargin, Weights: DefaultWeights()}
}

// Run schedules the blocks of f. The pressure limits are computed once for the whole function.
func (p *Pass) Run(ctx context.Context, f *ir.Function, liveness *ir.Liveness, loops *ir.LoopInfo) {
	if p.SinkLoads {
		panic(gassapi.NotImplemented("sinking loads into loop bodies"))
	}
	tr := tlog.SpanFromContext(ctx)

	strategy := NewGASSStrategy(p.Target, p.Margin, loops, p.Weights)
	s := NewScheduler(f, &p.Target.Latencies, liveness, strategy)
	for _, b := range f.Blocks {
		if len(b.Instrs) < 2 {
			continue
		}
		res := s.ScheduleBlock(ctx, b)
		if gassapi.SchedLoggingEnabled || tr.If("sched") {
			tr.Printw("scheduled block", "block", b.Label, "top_down_only", res.Policy.OnlyTopDown,
				"top_pressure", res.TopPressure, "bottom_pressure", res.BottomPressure)
		}
	}
}
