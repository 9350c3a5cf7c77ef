// Package liverange implements half-open intervals over program points. They are the common
// currency of barrier discovery, interference and allocation.
package liverange

import (
	"fmt"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Range is the immutable half-open interval [Start, End) over program points.
type Range struct {
	start, end ir.Point
}

// New returns [start, end). Empty and inverted ranges are invalid.
func New(start, end ir.Point) Range {
	if start >= end {
		panic(fmt.Sprintf("BUG: invalid live range [%d, %d)", start, end))
	}
	return Range{start: start, end: end}
}

// Start returns the first point covered by the range.
func (r Range) Start() ir.Point { return r.start }

// End returns the first point after the range.
func (r Range) End() ir.Point { return r.end }

// Contains returns true if start <= p < end.
func (r Range) Contains(p ir.Point) bool {
	return r.start <= p && p < r.end
}

// LiveAt is an alias of Contains.
func (r Range) LiveAt(p ir.Point) bool {
	return r.Contains(p)
}

// ExpireAt returns true if p is outside of the range.
func (r Range) ExpireAt(p ir.Point) bool {
	return !r.Contains(p)
}

// Overlaps returns true if the ranges share at least one point.
func (r Range) Overlaps(o Range) bool {
	return !(r.end <= o.start || r.start >= o.end)
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.start, r.end)
}
