package sched

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Zone is one boundary of the region being scheduled: the top zone grows downwards from the
// entry, the bottom zone upwards from the terminator. Each zone has its own ready queue, cycle
// counter, functional unit reservations and register pressure.
type Zone struct {
	top bool
	// Available holds the instructions whose predecessors (successors for the bottom zone)
	// are all scheduled.
	Available []*SUnit
	// CurrCycle is the cycle at which the next instruction issues at this boundary.
	CurrCycle int

	unitFree  [ir.UnitNum]int
	pressure  *pressureTracker
	latencies *ir.LatencyTable
}

func newZone(top bool, pressure *pressureTracker, latencies *ir.LatencyTable) *Zone {
	return &Zone{top: top, pressure: pressure, latencies: latencies}
}

// IsTop returns true for the top zone.
func (z *Zone) IsTop() bool { return z.top }

// String implements fmt.Stringer.
func (z *Zone) String() string {
	if z.top {
		return "top"
	}
	return "bottom"
}

func (z *Zone) readyCycle(su *SUnit) int {
	if z.top {
		return su.TopReadyCycle
	}
	return su.BotReadyCycle
}

// StallCycles returns the number of cycles su would wait for its operands if picked now.
func (z *Zone) StallCycles(su *SUnit) int {
	if s := z.readyCycle(su) - z.CurrCycle; s > 0 {
		return s
	}
	return 0
}

// UnitWait returns the number of cycles until the functional unit of su is free.
func (z *Zone) UnitWait(su *SUnit) int {
	if w := z.unitFree[su.Instr.Op.Unit()] - z.CurrCycle; w > 0 {
		return w
	}
	return 0
}

// WaitingTime returns the number of cycles su has been ready for.
func (z *Zone) WaitingTime(su *SUnit) int {
	if w := z.CurrCycle - z.readyCycle(su); w > 0 {
		return w
	}
	return 0
}

// CriticalPath returns the length of the longest path from su away from this boundary.
func (z *Zone) CriticalPath(su *SUnit) int {
	if z.top {
		return su.Height
	}
	return su.Depth
}

// Pressure returns the number of general register units live at this boundary.
func (z *Zone) Pressure() int { return z.pressure.pressure }

// MaxPressure returns the highest pressure seen at this boundary.
func (z *Zone) MaxPressure() int { return z.pressure.max }

// PressureAfter returns the pressure at this boundary once su is scheduled.
func (z *Zone) PressureAfter(su *SUnit) int { return z.pressure.pressure + z.pressure.delta(su) }

func (z *Zone) release(su *SUnit) {
	if !su.IsScheduled && !slices.Contains(z.Available, su) {
		z.Available = append(z.Available, su)
	}
}

func (z *Zone) remove(su *SUnit) {
	if i := slices.Index(z.Available, su); i >= 0 {
		z.Available = slices.Delete(z.Available, i, i+1)
	}
}

// bump issues su at this boundary and releases its successors (predecessors for the bottom
// zone). su must be available.
func (z *Zone) bump(su *SUnit) {
	i := slices.Index(z.Available, su)
	if i < 0 {
		panic(fmt.Sprintf("BUG: %s is not ready in the %s zone", su, z))
	}
	z.Available = slices.Delete(z.Available, i, i+1)

	issue := z.CurrCycle
	if r := z.readyCycle(su); r > issue {
		issue = r
	}
	unit := su.Instr.Op.Unit()
	if f := z.unitFree[unit]; f > issue {
		issue = f
	}
	occupancy := z.latencies.Lookup(su.Instr.Op).Occupancy
	if occupancy < 1 {
		occupancy = 1
	}
	z.unitFree[unit] = issue + occupancy
	z.CurrCycle = issue + 1
	z.pressure.schedule(su)

	if z.top {
		for _, s := range su.Succs {
			succ := s.SU
			succ.NumPredsLeft--
			if c := issue + s.Latency; c > succ.TopReadyCycle {
				succ.TopReadyCycle = c
			}
			if succ.NumPredsLeft == 0 {
				z.release(succ)
			}
		}
		return
	}
	for _, p := range su.Preds {
		pred := p.SU
		pred.NumSuccsLeft--
		if c := issue + p.Latency; c > pred.BotReadyCycle {
			pred.BotReadyCycle = c
		}
		if pred.NumSuccsLeft == 0 {
			z.release(pred)
		}
	}
}
