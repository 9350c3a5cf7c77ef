package barrier

import (
	"context"
	"fmt"

	"github.com/nikandfor/tlog"
	"golang.org/x/exp/slices"

	"github.com/gasstools/gassc/internal/engine/gass/backend/liverange"
	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// MergePick selects which pair of barriers Graph.Reduce merges next.
type MergePick byte

const (
	// MergePickOrdered merges constant loads first, then shared loads, then global loads,
	// then any two RAW barriers, then WAR barriers.
	MergePickOrdered MergePick = iota
	// MergePickCost is reserved for a cost-model driven strategy.
	MergePickCost
	// MergePickMaxDegree is reserved for always merging around the highest-degree node.
	MergePickMaxDegree
)

// String implements fmt.Stringer.
func (m MergePick) String() string {
	switch m {
	case MergePickOrdered:
		return "ordered"
	case MergePickCost:
		return "cost"
	case MergePickMaxDegree:
		return "max-degree"
	}
	return fmt.Sprintf("MergePick(%d)", m)
}

// Graph is the interference graph of the barriers of a region: there is an edge between two
// barriers iff their ranges overlap.
type Graph struct {
	nodes []*node
	// nextID numbers nodes in creation order, which breaks the remaining ties when picking.
	nextID int
}

type node struct {
	id        int
	b         *Barrier
	rng       liverange.Range
	neighbors []*node
}

func (n *node) degree() int { return len(n.neighbors) }

// NewGraph builds the interference graph of barriers by testing every pair.
func NewGraph(barriers []*Barrier) *Graph {
	g := &Graph{}
	for _, b := range barriers {
		g.add(b)
	}
	return g
}

func (g *Graph) add(b *Barrier) *node {
	n := &node{id: g.nextID, b: b, rng: b.Range()}
	g.nextID++
	for _, o := range g.nodes {
		if o.rng.Overlaps(n.rng) {
			o.neighbors = append(o.neighbors, n)
			n.neighbors = append(n.neighbors, o)
		}
	}
	g.nodes = append(g.nodes, n)
	return n
}

func (g *Graph) remove(n *node) {
	for _, o := range n.neighbors {
		if i := slices.Index(o.neighbors, n); i >= 0 {
			o.neighbors = slices.Delete(o.neighbors, i, i+1)
		}
	}
	n.neighbors = nil
	if i := slices.Index(g.nodes, n); i >= 0 {
		g.nodes = slices.Delete(g.nodes, i, i+1)
	}
}

// Barriers returns the barriers currently in the graph in creation order.
func (g *Graph) Barriers() []*Barrier {
	ret := make([]*Barrier, len(g.nodes))
	for i, n := range g.nodes {
		ret[i] = n.b
	}
	return ret
}

// Len returns the number of barriers.
func (g *Graph) Len() int { return len(g.nodes) }

// Degree returns the number of barriers interfering with b, or -1 if b is not in the graph.
func (g *Graph) Degree(b *Barrier) int {
	for _, n := range g.nodes {
		if n.b == b {
			return n.degree()
		}
	}
	return -1
}

// MaxDegree returns the highest degree of the graph.
func (g *Graph) MaxDegree() int {
	ret := 0
	for _, n := range g.nodes {
		if d := n.degree(); d > ret {
			ret = d
		}
	}
	return ret
}

// MaxPressure returns the highest number of barriers live at a single point, and that point.
// The maximum is always reached at the start of some barrier.
func (g *Graph) MaxPressure() (int, ir.Point) {
	best, at := 0, ir.PointInvalid
	for _, n := range g.nodes {
		p := n.rng.Start()
		if live := g.liveAt(p, nil); live > best || (live == best && p < at) {
			best, at = live, p
		}
	}
	return best, at
}

// liveAt counts the barriers live at p, appending their nodes to dst if non-nil.
func (g *Graph) liveAt(p ir.Point, dst *[]*node) int {
	cnt := 0
	for _, n := range g.nodes {
		if n.rng.LiveAt(p) {
			cnt++
			if dst != nil {
				*dst = append(*dst, n)
			}
		}
	}
	return cnt
}

// Reduce merges barriers until no node has more than capacity neighbors and no more than
// capacity barriers are live at the same point, and returns the number of merges. Only
// overlapping barriers of the same RAW/WAR class are merged, so among capacity+1 barriers live
// at one point there is always a candidate. If only the degree bound is
// violated and no such pair remains, Reduce stops early; Allocate only needs the pressure bound.
func (g *Graph) Reduce(ctx context.Context, capacity int, pick MergePick) (merges int) {
	switch pick {
	case MergePickOrdered:
	case MergePickCost, MergePickMaxDegree:
		panic(gassapi.NotImplemented(fmt.Sprintf("%s merge strategy", pick)))
	default:
		panic(fmt.Sprintf("BUG: unknown merge strategy %d", pick))
	}
	if capacity < 2 || capacity > ir.BarrierCount {
		panic(fmt.Sprintf("BUG: barrier capacity %d out of range [2, %d]", capacity, ir.BarrierCount))
	}

	tr := tlog.SpanFromContext(ctx)
	var live []*node
	for {
		pressure, at := g.MaxPressure()
		maxDegree := g.MaxDegree()
		if pressure <= capacity && maxDegree <= capacity {
			return
		}

		var a, b *node
		if pressure > capacity {
			live = live[:0]
			g.liveAt(at, &live)
			a, b = pickOrdered(live, func(x, y *node) bool { return true })
			if a == nil {
				panic(fmt.Sprintf("BUG: %d barriers live at %d but none can be merged", pressure, at))
			}
		} else {
			a, b = pickOrdered(g.nodes, func(x, y *node) bool {
				return x.degree() > capacity || y.degree() > capacity || g.sharesOverloadedNeighbor(x, y, capacity)
			})
			if a == nil {
				if gassapi.BarrierLoggingEnabled || tr.If("barrier") {
					tr.Printw("interference degree left above capacity", "degree", maxDegree, "capacity", capacity)
				}
				return
			}
		}

		if gassapi.BarrierLoggingEnabled || tr.If("barrier") {
			tr.Printw("merge barriers", "a", a.b.String(), "b", b.b.String(), "pressure", pressure, "degree", maxDegree)
		}
		g.merge(a, b)
		merges++
	}
}

func (g *Graph) sharesOverloadedNeighbor(x, y *node, capacity int) bool {
	for _, n := range x.neighbors {
		if n.degree() > capacity && slices.Contains(y.neighbors, n) {
			return true
		}
	}
	return false
}

// merge replaces a and b with their merged barrier, re-testing overlap against the union of
// their neighborhoods. Any node overlapping the merged range overlaps a or b.
//
// A previously merged barrier may be set again after the end of the other one. Those starts
// cannot move before the earlier wait, so they stay behind in a barrier of their own. It is
// not live at any point where both a and b were, so the pressure there still drops.
func (g *Graph) merge(a, b *node) *node {
	end := a.b.End
	if b.b.End < end {
		end = b.b.End
	}
	earlyA, lateA := a.b.splitAt(end)
	earlyB, lateB := b.b.splitAt(end)
	late := lateA
	if late == nil {
		late = lateB
	} else if lateB != nil {
		panic(fmt.Sprintf("BUG: both %s and %s extend past %d", a.b, b.b, end))
	}
	merged := Merge(earlyA, earlyB)

	var hood []*node
	for _, n := range append(slices.Clone(a.neighbors), b.neighbors...) {
		if n != a && n != b && !slices.Contains(hood, n) {
			hood = append(hood, n)
		}
	}
	// The survivor keeps the position and id of the older node.
	if b.id < a.id {
		a, b = b, a
	}
	g.remove(b)
	for _, o := range a.neighbors {
		if i := slices.Index(o.neighbors, a); i >= 0 {
			o.neighbors = slices.Delete(o.neighbors, i, i+1)
		}
	}
	a.b, a.rng, a.neighbors = merged, merged.Range(), a.neighbors[:0]
	for _, n := range hood {
		if n.rng.Overlaps(a.rng) {
			a.neighbors = append(a.neighbors, n)
			n.neighbors = append(n.neighbors, a)
		}
	}
	if late != nil {
		g.add(late)
	}
	if gassapi.BarrierValidationEnabled {
		for _, n := range g.nodes {
			if n != a && n.rng.Overlaps(a.rng) != slices.Contains(a.neighbors, n) {
				panic(fmt.Sprintf("BUG: stale interference between %s and %s", a.b, n.b))
			}
		}
	}
	return a
}

// mergeRank orders candidate pairs: lower is merged first, -1 means the pair cannot be merged.
func mergeRank(a, b Kind) int {
	if a.IsRAW() != b.IsRAW() {
		return -1
	}
	switch {
	case a == KindRAWConst && b == KindRAWConst:
		return 0
	case a == KindRAWShared && b == KindRAWShared:
		return 1
	case a == KindRAWGlobal && b == KindRAWGlobal:
		return 2
	case a.IsRAW():
		return 3
	case a == b:
		return 4
	default:
		return 5
	}
}

// pickOrdered returns the best mergeable overlapping pair among nodes accepted by filter.
// Ties are broken by the highest combined degree, then the earliest start, then creation order.
func pickOrdered(nodes []*node, filter func(x, y *node) bool) (*node, *node) {
	var bestA, bestB *node
	bestRank, bestDegree, bestStart := 0, 0, ir.Point(0)
	for i, x := range nodes {
		for _, y := range nodes[i+1:] {
			rank := mergeRank(x.b.Kind, y.b.Kind)
			if rank < 0 || !x.rng.Overlaps(y.rng) || !filter(x, y) {
				continue
			}
			degree := x.degree() + y.degree()
			start := x.rng.Start()
			if s := y.rng.Start(); s < start {
				start = s
			}
			better := bestA == nil ||
				rank < bestRank ||
				(rank == bestRank && degree > bestDegree) ||
				(rank == bestRank && degree == bestDegree && start < bestStart)
			if better {
				bestA, bestB = x, y
				bestRank, bestDegree, bestStart = rank, degree, start
			}
		}
	}
	return bestA, bestB
}
