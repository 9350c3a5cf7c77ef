package sched

import (
	"fmt"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Region is the unit of scheduling: one block and the DAG of its instructions.
type Region struct {
	Block *ir.Block
	DAG   *DAG
}

// Policy selects the zones the engine picks from.
type Policy struct {
	OnlyTopDown  bool
	OnlyBottomUp bool
}

// CandReason records which heuristic decided between two candidates. Lower values are
// stronger reasons.
type CandReason byte

const (
	NoCand CandReason = iota
	OnlyCand
	RegExcess
	RegCritical
	Stall
	DomainScore
	NodeOrder
)

// String implements fmt.Stringer.
func (r CandReason) String() string {
	switch r {
	case NoCand:
		return "NOCAND"
	case OnlyCand:
		return "ONLY1"
	case RegExcess:
		return "REG-EXCESS"
	case RegCritical:
		return "REG-CRIT"
	case Stall:
		return "STALL"
	case DomainScore:
		return "DOMAIN"
	case NodeOrder:
		return "ORDER"
	}
	panic(fmt.Sprintf("BUG: unknown candidate reason %d", r))
}

// Candidate is an instruction considered for issue in a zone.
type Candidate struct {
	SU     *SUnit
	Reason CandReason
	// PressureAfter is the zone pressure once SU is scheduled.
	PressureAfter int
}

// Strategy customizes the engine. It decides the direction of each region and compares
// candidates; the engine owns the zones and the DAG bookkeeping.
type Strategy interface {
	// InitPolicy is called once per region before anything is scheduled.
	InitPolicy(r *Region, p *Policy)
	// TryCandidate returns true if cand is better than best in z. best.SU is nil for the first
	// candidate. The deciding heuristic is recorded in the Reason of the winner.
	TryCandidate(z *Zone, cand, best *Candidate) bool
}

// tryLess decides in favor of the lower value. It returns false if the values are equal.
func tryLess(tryVal, bestVal int, cand, best *Candidate, reason CandReason) bool {
	if tryVal < bestVal {
		cand.Reason = reason
		return true
	}
	if tryVal > bestVal {
		if best.Reason > reason {
			best.Reason = reason
		}
		return true
	}
	return false
}

// tryGreater decides in favor of the higher value. It returns false if the values are equal.
func tryGreater(tryVal, bestVal int, cand, best *Candidate, reason CandReason) bool {
	return tryLess(bestVal, tryVal, cand, best, reason)
}

// tryNodeOrder keeps the original order: the top zone prefers earlier instructions and the
// bottom zone later ones.
func tryNodeOrder(z *Zone, cand, best *Candidate) {
	if z.IsTop() == (cand.SU.NodeNum < best.SU.NodeNum) {
		cand.Reason = NodeOrder
	}
}

// DefaultErrorMargin is subtracted from the register file limits to leave room for the
// registers the allocator needs on its own.
const DefaultErrorMargin = 3

// GenericStrategy is the target independent comparison: avoid exceeding the register limits,
// then avoid stalls, then keep the original order. It schedules in both directions.
type GenericStrategy struct {
	// ExcessLimit and CriticalLimit are soft bounds on the live general register units.
	ExcessLimit, CriticalLimit int
}

// NewGenericStrategy computes the pressure limits of target.
func NewGenericStrategy(target *ir.Target, margin int) GenericStrategy {
	return GenericStrategy{
		ExcessLimit:   target.AllocatableRegs - margin,
		CriticalLimit: target.PressureSetLimit - margin,
	}
}

// InitPolicy implements Strategy.InitPolicy.
func (s *GenericStrategy) InitPolicy(*Region, *Policy) {}

// TryCandidate implements Strategy.TryCandidate.
func (s *GenericStrategy) TryCandidate(z *Zone, cand, best *Candidate) bool {
	if best.SU == nil {
		cand.Reason = OnlyCand
		return true
	}
	if !s.tryGeneric(z, cand, best) {
		tryNodeOrder(z, cand, best)
	}
	return cand.Reason != NoCand
}

func (s *GenericStrategy) tryGeneric(z *Zone, cand, best *Candidate) bool {
	if tryLess(over(cand.PressureAfter, s.ExcessLimit), over(best.PressureAfter, s.ExcessLimit), cand, best, RegExcess) {
		return true
	}
	if tryLess(over(cand.PressureAfter, s.CriticalLimit), over(best.PressureAfter, s.CriticalLimit), cand, best, RegCritical) {
		return true
	}
	return tryLess(z.StallCycles(cand.SU), z.StallCycles(best.SU), cand, best, Stall)
}

// pressureLimited is implemented by strategies with register pressure limits, which the engine
// also uses to choose between the zones.
type pressureLimited interface {
	limits() (excess, critical int)
}

func (s *GenericStrategy) limits() (int, int) { return s.ExcessLimit, s.CriticalLimit }

func over(v, limit int) int {
	if v > limit {
		return v - limit
	}
	return 0
}

// Weights scale the components of the GASS candidate score.
type Weights struct {
	CriticalPath int
	Resource     int
	Waiting      int
}

// DefaultWeights weighs every component equally.
func DefaultWeights() Weights {
	return Weights{CriticalPath: 1, Resource: 1, Waiting: 1}
}

// GASSStrategy extends GenericStrategy for the GASS core. Ties left by the generic checks are
// broken by a score combining the critical path, the availability of the functional unit and
// the time the candidate has been ready. The body of a loop which neither contains nor is
// contained in another loop is scheduled top-down only: its loop-carried dependencies make
// the bottom-up estimates unreliable.
type GASSStrategy struct {
	GenericStrategy
	Weights Weights
	Loops   *ir.LoopInfo
}

// NewGASSStrategy returns a GASSStrategy with the pressure limits of target.
func NewGASSStrategy(target *ir.Target, margin int, loops *ir.LoopInfo, weights Weights) *GASSStrategy {
	return &GASSStrategy{GenericStrategy: NewGenericStrategy(target, margin), Weights: weights, Loops: loops}
}

// InitPolicy implements Strategy.InitPolicy.
func (s *GASSStrategy) InitPolicy(r *Region, p *Policy) {
	if s.Loops == nil {
		return
	}
	if l := s.Loops.LoopFor(r.Block.ID); l != nil && l.Parent == nil && len(l.Children) == 0 {
		p.OnlyTopDown = true
	}
}

// Score returns the domain score of su in z. Higher is better.
func (s *GASSStrategy) Score(z *Zone, su *SUnit) int {
	return s.Weights.CriticalPath*z.CriticalPath(su) -
		s.Weights.Resource*z.UnitWait(su) +
		s.Weights.Waiting*z.WaitingTime(su)
}

// TryCandidate implements Strategy.TryCandidate.
func (s *GASSStrategy) TryCandidate(z *Zone, cand, best *Candidate) bool {
	if best.SU == nil {
		cand.Reason = OnlyCand
		return true
	}
	if !s.tryGeneric(z, cand, best) &&
		!tryGreater(s.Score(z, cand.SU), s.Score(z, best.SU), cand, best, DomainScore) {
		tryNodeOrder(z, cand, best)
	}
	return cand.Reason != NoCand
}
