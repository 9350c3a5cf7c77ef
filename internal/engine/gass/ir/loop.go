package ir

import (
	"sort"

	"golang.org/x/exp/slices"
)

// Loop is a natural loop of the CFG.
type Loop struct {
	Header BlockID
	// Blocks holds the blocks of the loop, including the ones of nested loops, sorted by ID.
	Blocks   []BlockID
	Parent   *Loop
	Children []*Loop
}

// LoopInfo is the loop nesting forest of a function.
type LoopInfo struct {
	Loops []*Loop
	// innermost maps BlockID to the innermost loop containing it.
	innermost []*Loop
	doms      []BlockID
	rpo       []int
}

// LoopFor returns the innermost loop containing b, or nil.
func (li *LoopInfo) LoopFor(b BlockID) *Loop {
	return li.innermost[b]
}

// Dominates returns true if a dominates b. Unreachable blocks are dominated by nothing.
func (li *LoopInfo) Dominates(a, b BlockID) bool {
	if li.doms[b] == BlockIDInvalid {
		return false
	}
	for {
		if a == b {
			return true
		}
		idom := li.doms[b]
		if idom == b {
			return false
		}
		b = idom
	}
}

// ComputeLoops calculates the immediate dominators of every block reachable from the entry
// block, and then the natural loops formed by back edges (edges whose target dominates the source).
func ComputeLoops(f *Function) *LoopInfo {
	n := len(f.Blocks)
	li := &LoopInfo{innermost: make([]*Loop, n), doms: make([]BlockID, n), rpo: make([]int, n)}
	if n == 0 {
		return li
	}

	reversePostOrder := reversePostOrder(f)
	for i := range li.rpo {
		li.rpo[i] = -1
	}
	for i, b := range reversePostOrder {
		li.rpo[b] = i
	}
	calculateDominators(f, reversePostOrder, li.rpo, li.doms)

	byHeader := map[BlockID]*Loop{}
	var headers []BlockID
	for _, b := range reversePostOrder {
		for _, pred := range f.Blocks[b].Preds {
			if !li.Dominates(b, pred) {
				continue
			}
			l, ok := byHeader[b]
			if !ok {
				l = &Loop{Header: b}
				byHeader[b] = l
				headers = append(headers, b)
			}
			l.Blocks = naturalLoopBlocks(f, li, b, pred, l.Blocks)
		}
	}

	for _, h := range headers {
		l := byHeader[h]
		sort.Slice(l.Blocks, func(i, j int) bool { return l.Blocks[i] < l.Blocks[j] })
		li.Loops = append(li.Loops, l)
	}
	// Outer loops are strictly larger than the loops nested in them, so processing from the
	// largest assigns parents before children.
	sort.SliceStable(li.Loops, func(i, j int) bool { return len(li.Loops[i].Blocks) > len(li.Loops[j].Blocks) })
	for _, l := range li.Loops {
		l.Parent = li.innermost[l.Header]
		for _, b := range l.Blocks {
			li.innermost[b] = l
		}
	}
	for _, l := range li.Loops {
		if l.Parent != nil {
			l.Parent.Children = append(l.Parent.Children, l)
		}
	}
	return li
}

// naturalLoopBlocks collects the blocks which reach latch without going through header.
func naturalLoopBlocks(f *Function, li *LoopInfo, header, latch BlockID, blocks []BlockID) []BlockID {
	if !slices.Contains(blocks, header) {
		blocks = append(blocks, header)
	}
	stack := []BlockID{latch}
	for len(stack) > 0 {
		tail := len(stack) - 1
		b := stack[tail]
		stack = stack[:tail]
		if slices.Contains(blocks, b) {
			continue
		}
		blocks = append(blocks, b)
		for _, pred := range f.Blocks[b].Preds {
			if li.doms[pred] != BlockIDInvalid {
				stack = append(stack, pred)
			}
		}
	}
	return blocks
}

func reversePostOrder(f *Function) []BlockID {
	const visitStateUnseen, visitStateSeen, visitStateDone = 0, 1, 2
	visited := make([]byte, len(f.Blocks))
	var order []BlockID
	stack := []BlockID{0}
	visited[0] = visitStateSeen
	for len(stack) > 0 {
		tail := len(stack) - 1
		b := stack[tail]
		stack = stack[:tail]
		switch visited[b] {
		case visitStateSeen:
			stack = append(stack, b)
			// Push in reverse so that the first successor is explored first.
			succs := f.Blocks[b].Succs
			for i := len(succs) - 1; i >= 0; i-- {
				if s := succs[i]; visited[s] == visitStateUnseen {
					visited[s] = visitStateSeen
					stack = append(stack, s)
				}
			}
			visited[b] = visitStateDone
		case visitStateDone:
			order = append(order, b)
		}
	}
	for i := len(order)/2 - 1; i >= 0; i-- {
		j := len(order) - 1 - i
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// calculateDominators is "A Simple, Fast Dominance Algorithm" by Cooper, Harvey and Kennedy.
// Unreachable blocks end up with BlockIDInvalid.
func calculateDominators(f *Function, reversePostOrder []BlockID, rpo []int, doms []BlockID) {
	for i := range doms {
		doms[i] = BlockIDInvalid
	}
	entry := reversePostOrder[0]
	doms[entry] = entry

	for changed := true; changed; {
		changed = false
		for _, b := range reversePostOrder[1:] {
			u := BlockIDInvalid
			for _, pred := range f.Blocks[b].Preds {
				if doms[pred] == BlockIDInvalid {
					continue
				}
				if u == BlockIDInvalid {
					u = pred
				} else {
					u = intersect(doms, rpo, u, pred)
				}
			}
			if doms[b] != u {
				doms[b] = u
				changed = true
			}
		}
	}
}

func intersect(doms []BlockID, rpo []int, b1, b2 BlockID) BlockID {
	finger1, finger2 := b1, b2
	for finger1 != finger2 {
		for rpo[finger1] > rpo[finger2] {
			finger1 = doms[finger1]
		}
		for rpo[finger2] > rpo[finger1] {
			finger2 = doms[finger2]
		}
	}
	return finger1
}
