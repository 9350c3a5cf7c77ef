package barrier

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

func TestNewGraph(t *testing.T) {
	a := mk(KindRAWGlobal, 0, 10)
	b := mk(KindRAWGlobal, 2, 4)
	c := mk(KindRAWGlobal, 4, 12)
	d := mk(KindWARGlobal, 12, 14)
	g := NewGraph([]*Barrier{a, b, c, d})

	require.Equal(t, 4, g.Len())
	require.Equal(t, 2, g.Degree(a))
	require.Equal(t, 1, g.Degree(b))
	require.Equal(t, 1, g.Degree(c))
	require.Equal(t, 0, g.Degree(d))
	require.Equal(t, -1, g.Degree(mk(KindRAWGlobal, 0, 2)))
	require.Equal(t, 2, g.MaxDegree())

	pressure, at := g.MaxPressure()
	require.Equal(t, 2, pressure)
	require.Equal(t, ir.Point(2), at)
	require.Equal(t, []*Barrier{a, b, c, d}, g.Barriers())
}

func TestGraph_Reduce_noop(t *testing.T) {
	g := NewGraph([]*Barrier{mk(KindRAWShared, 0, 2), mk(KindRAWShared, 4, 6)})
	require.Equal(t, 0, g.Reduce(context.Background(), ir.BarrierCount, MergePickOrdered))
	require.Equal(t, 2, g.Len())
}

func TestGraph_Reduce_eightLiveLoads(t *testing.T) {
	var bs []*Barrier
	for i := ir.Point(0); i < 8; i++ {
		bs = append(bs, mk(KindRAWGlobal, i*ir.PointStride, (i+8)*ir.PointStride))
	}
	g := NewGraph(bs)
	require.Equal(t, 7, g.MaxDegree())

	merges := g.Reduce(context.Background(), ir.BarrierCount, MergePickOrdered)
	require.GreaterOrEqual(t, merges, 2)
	require.Less(t, g.Len(), 8)
	require.LessOrEqual(t, g.MaxDegree(), ir.BarrierCount)
	requireCovers(t, bs, g.Barriers())
}

func TestGraph_Reduce_order(t *testing.T) {
	// Seven barriers live at once: the two constant loads must be merged first.
	bs := []*Barrier{
		mk(KindRAWGlobal, 0, 40),
		mk(KindRAWShared, 2, 40),
		mk(KindRAWConst, 4, 40),
		mk(KindRAWGlobal, 6, 40),
		mk(KindRAWShared, 8, 40),
		mk(KindRAWConst, 10, 40),
		mk(KindWARGlobal, 12, 40),
	}
	g := NewGraph(bs)
	require.Equal(t, 1, g.Reduce(context.Background(), ir.BarrierCount, MergePickOrdered))

	merged := g.Barriers()[2]
	require.Equal(t, KindRAWConst, merged.Kind)
	require.Equal(t, []ir.Point{4, 10}, merged.Starts)

	// With one slot less, the shared loads go next.
	require.Equal(t, 1, g.Reduce(context.Background(), ir.BarrierCount-1, MergePickOrdered))
	merged = g.Barriers()[1]
	require.Equal(t, KindRAWShared, merged.Kind)
	require.Equal(t, []ir.Point{2}, merged.Starts)
}

func TestGraph_Reduce_degree(t *testing.T) {
	// A long load overlapping seven short ones which never overlap each other.
	bs := []*Barrier{mk(KindRAWGlobal, 0, 100)}
	for i := ir.Point(0); i < 7; i++ {
		bs = append(bs, mk(KindRAWGlobal, 2+i*10, 6+i*10))
	}
	g := NewGraph(bs)
	pressure, _ := g.MaxPressure()
	require.Equal(t, 2, pressure)
	require.Equal(t, 7, g.MaxDegree())

	require.Equal(t, 1, g.Reduce(context.Background(), ir.BarrierCount, MergePickOrdered))
	require.LessOrEqual(t, g.MaxDegree(), ir.BarrierCount)
	requireCovers(t, bs, g.Barriers())
}

func TestGraph_Reduce_notImplemented(t *testing.T) {
	for _, pick := range []MergePick{MergePickCost, MergePickMaxDegree} {
		pick := pick
		t.Run(pick.String(), func(t *testing.T) {
			g := NewGraph([]*Barrier{mk(KindRAWShared, 0, 2)})
			defer func() {
				require.True(t, gassapi.IsNotImplemented(recover()))
			}()
			g.Reduce(context.Background(), ir.BarrierCount, pick)
			t.Fatal("unreachable")
		})
	}
}

func TestGraph_Reduce_invalidCapacity(t *testing.T) {
	g := NewGraph(nil)
	require.Panics(t, func() { g.Reduce(context.Background(), 1, MergePickOrdered) })
	require.Panics(t, func() { g.Reduce(context.Background(), ir.BarrierCount+1, MergePickOrdered) })
}

// randomBarriers returns up to n barriers of the given kinds over a block of size instructions.
func randomBarriers(rnd *rand.Rand, n, size int, kinds []Kind) []*Barrier {
	var ret []*Barrier
	for i := 0; i < n; i++ {
		start := rnd.Intn(size - 1)
		end := start + 1 + rnd.Intn(size-start-1)
		ret = append(ret, mk(kinds[rnd.Intn(len(kinds))], ir.Point(start*ir.PointStride), ir.Point(end*ir.PointStride)))
	}
	return ret
}

func TestGraph_Reduce_randomRAW(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 300; i++ {
		bs := randomBarriers(rnd, 1+rnd.Intn(40), 2+rnd.Intn(63), []Kind{KindRAWGlobal, KindRAWConst})
		g := NewGraph(bs)
		g.Reduce(context.Background(), ir.BarrierCount, MergePickOrdered)

		require.LessOrEqual(t, g.MaxDegree(), ir.BarrierCount)
		pressure, _ := g.MaxPressure()
		require.LessOrEqual(t, pressure, ir.BarrierCount)
		requireCovers(t, bs, g.Barriers())
		requireConsistent(t, g)
	}
}

func TestGraph_Reduce_randomMixed(t *testing.T) {
	kinds := []Kind{KindRAWShared, KindRAWGlobal, KindRAWConst, KindWARShared, KindWARGlobal, KindWARGenericMem}
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 300; i++ {
		bs := randomBarriers(rnd, 1+rnd.Intn(40), 2+rnd.Intn(63), kinds)
		g := NewGraph(bs)
		g.Reduce(context.Background(), ir.BarrierCount, MergePickOrdered)

		pressure, _ := g.MaxPressure()
		require.LessOrEqual(t, pressure, ir.BarrierCount)
		requireConsistent(t, g)

		reduced := g.Barriers()
		Allocate(reduced, ir.BarrierCount)
		requireConflictFree(t, reduced)
	}
}

// requireCovers checks that every start of every original barrier is still set by a reduced
// barrier which is waited for no later than the original.
func requireCovers(t *testing.T, original, reduced []*Barrier) {
	t.Helper()
	for _, o := range original {
		for _, s := range o.Starts {
			covered := false
			for _, r := range reduced {
				if slices.Contains(r.Starts, s) && r.End <= o.End && r.IsRAW() == o.IsRAW() {
					covered = true
					break
				}
			}
			require.True(t, covered, "%s lost", o)
		}
	}
}

// requireConsistent checks the edges against a graph rebuilt from scratch.
func requireConsistent(t *testing.T, g *Graph) {
	t.Helper()
	fresh := NewGraph(g.Barriers())
	for _, b := range g.Barriers() {
		require.Equal(t, fresh.Degree(b), g.Degree(b))
	}
}

func TestGraph_Reduce_lateStart(t *testing.T) {
	short := mk(KindRAWGlobal, 0, 10)
	// Set again at 12 and 22, after short is waited for.
	mid := Merge(mk(KindRAWGlobal, 0, 20), mk(KindRAWGlobal, 12, 25))
	long := Merge(mk(KindRAWGlobal, 0, 30), mk(KindRAWGlobal, 22, 35))
	bs := []*Barrier{short, mid, long}

	g := NewGraph(bs)
	require.Equal(t, 1, g.Reduce(context.Background(), 2, MergePickOrdered))
	require.Equal(t, 3, g.Len())
	require.Equal(t, []span{
		{KindRAWGlobal, 0, 10},
		{KindRAWGlobal, 0, 30},
		{KindRAWGlobal, 12, 20},
	}, spans(g.Barriers()))
	requireCovers(t, bs, g.Barriers())

	reduced := g.Barriers()
	Allocate(reduced, 2)
	requireConflictFree(t, reduced)
}
