package barrier

import (
	"fmt"
	"sort"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Allocate assigns physical indices in [0, capacity) to barriers by linear scan: barriers are
// visited by increasing start, the ones which ended at or before that start release their
// index, and the visited barrier takes the lowest free index.
//
// The caller must bound the number of simultaneously live barriers by capacity first, e.g.
// with Graph.Reduce. This is not re-checked beyond failing when no index is free.
func Allocate(barriers []*Barrier, capacity int) {
	if capacity > ir.BarrierCount {
		panic(fmt.Sprintf("BUG: barrier capacity %d exceeds %d", capacity, ir.BarrierCount))
	}
	order := make([]*Barrier, len(barriers))
	copy(order, barriers)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Starts[0] < order[j].Starts[0] })

	var active []*Barrier
	var used [ir.BarrierCount]bool
	for _, b := range order {
		start := b.Starts[0]

		cur := 0
		for _, a := range active {
			if a.Range().ExpireAt(start) {
				used[a.Index] = false
				continue
			}
			active[cur] = a
			cur++
		}
		active = active[:cur]

		b.Index = ir.NoBarrier
		for i := 0; i < capacity; i++ {
			if !used[i] {
				b.Index = uint8(i)
				break
			}
		}
		if b.Index == ir.NoBarrier {
			panic(fmt.Sprintf("BUG: no free barrier for %s", b))
		}
		used[b.Index] = true
		active = append(active, b)
	}
}
