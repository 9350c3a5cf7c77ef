package ir

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/gasstools/gassc/internal/engine/gass/gassapi"
)

// BlockID is the index of a Block in Function.Blocks.
type BlockID int32

// BlockIDInvalid never refers to a block.
const BlockIDInvalid BlockID = -1

// Block is a basic block. Instrs holds handles into the owning Function's arena in program order.
type Block struct {
	ID     BlockID
	Label  string
	Instrs []InstrID
	Succs  []BlockID
	Preds  []BlockID
}

// Function is a GASS function: an arena of instructions plus basic blocks in layout order.
type Function struct {
	Name   string
	Blocks []*Block
	instrs gassapi.Pool[Instr]
}

// NewFunction returns an empty Function.
func NewFunction(name string) *Function {
	return &Function{Name: name, instrs: gassapi.NewPool[Instr](resetInstr)}
}

// AllocateBlock appends a new block to the layout.
func (f *Function) AllocateBlock(label string) *Block {
	id := BlockID(len(f.Blocks))
	if label == "" {
		label = fmt.Sprintf("blk%d", id)
	}
	b := &Block{ID: id, Label: label}
	f.Blocks = append(f.Blocks, b)
	return b
}

// AllocateInstr allocates an instruction in the arena. It does not belong to any block until appended.
func (f *Function) AllocateInstr(op Opcode, operands ...Operand) *Instr {
	i, id := f.instrs.Allocate()
	i.ID = InstrID(id)
	i.Op = op
	i.Mem = op.MemSpace()
	i.Operands = append(i.Operands, operands...)
	i.Control.ResetBarriers()
	return i
}

// Append allocates an instruction and appends it to b.
func (f *Function) Append(b *Block, op Opcode, operands ...Operand) *Instr {
	i := f.AllocateInstr(op, operands...)
	i.Block = b.ID
	b.Instrs = append(b.Instrs, i.ID)
	return i
}

// Instr returns the instruction for the handle.
func (f *Function) Instr(id InstrID) *Instr {
	return f.instrs.View(int(id))
}

// NumInstrs returns the number of allocated instructions, including erased ones.
func (f *Function) NumInstrs() int {
	return f.instrs.Allocated()
}

// AddEdge adds the CFG edge from -> to.
func (f *Function) AddEdge(from, to BlockID) {
	src, dst := f.Blocks[from], f.Blocks[to]
	if !slices.Contains(src.Succs, to) {
		src.Succs = append(src.Succs, to)
	}
	if !slices.Contains(dst.Preds, from) {
		dst.Preds = append(dst.Preds, from)
	}
}

// LastInstr returns the last instruction of b, or nil if b is empty.
func (f *Function) LastInstr(b *Block) *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return f.Instr(b.Instrs[len(b.Instrs)-1])
}

// FallthroughSuccessor returns the successor b falls into when b does not end with a
// branch and has exactly one successor.
func (f *Function) FallthroughSuccessor(b *Block) (*Block, bool) {
	if len(b.Succs) != 1 {
		return nil, false
	}
	if last := f.LastInstr(b); last != nil && last.IsTerminator() {
		return nil, false
	}
	if succ := b.Succs[0]; succ == b.ID+1 {
		return f.Blocks[succ], true
	}
	return nil, false
}

// Erase removes the given instructions from their blocks. Passes collect the handles while
// scanning and call Erase once the scan completes, so no block is edited while iterated.
func (f *Function) Erase(worklist []InstrID) {
	if len(worklist) == 0 {
		return
	}
	dead := make(map[InstrID]struct{}, len(worklist))
	for _, id := range worklist {
		dead[id] = struct{}{}
	}
	for _, b := range f.Blocks {
		cur := 0
		for _, id := range b.Instrs {
			if _, ok := dead[id]; ok {
				f.Instr(id).Block = BlockIDInvalid
				continue
			}
			b.Instrs[cur] = id
			cur++
		}
		b.Instrs = b.Instrs[:cur]
	}
}

// Format returns the textual form of the function, including control fields.
func (f *Function) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s\n", f.Name)
	for _, b := range f.Blocks {
		sb.WriteString(b.Label)
		sb.WriteString(":")
		if len(b.Succs) > 0 {
			sb.WriteString(" ; succs:")
			for _, s := range b.Succs {
				sb.WriteByte(' ')
				sb.WriteString(f.Blocks[s].Label)
			}
		}
		sb.WriteByte('\n')
		for _, id := range b.Instrs {
			i := f.Instr(id)
			fmt.Fprintf(&sb, "\t%s  %s\n", i.Control, i.Format(f))
		}
	}
	return sb.String()
}

// Point is a program point. Every instruction owns two consecutive points so that a range can
// start or end either before or after a specific instruction.
type Point int32

const (
	// PointStride is the distance between the points of two consecutive instructions.
	PointStride      = 2
	pointAfterOffset = 1
)

// After returns the point immediately after the instruction at p.
func (p Point) After() Point { return p + pointAfterOffset }

// Points maps instructions to program points, numbered in layout order across the whole
// function so that a block and its fallthrough successor form one monotonic sequence.
type Points struct {
	pos []Point
}

// PointInvalid is the position of instructions which are not placed in any block.
const PointInvalid Point = -1

// ComputePoints numbers every placed instruction of f. It must be recomputed after reordering.
func ComputePoints(f *Function) *Points {
	p := &Points{pos: make([]Point, f.NumInstrs())}
	for i := range p.pos {
		p.pos[i] = PointInvalid
	}
	var next Point
	for _, b := range f.Blocks {
		for _, id := range b.Instrs {
			p.pos[id] = next
			next += PointStride
		}
	}
	return p
}

// Of returns the point of the instruction.
func (p *Points) Of(id InstrID) Point {
	if int(id) >= len(p.pos) || p.pos[id] == PointInvalid {
		panic(fmt.Sprintf("BUG: instruction %d has no program point", id))
	}
	return p.pos[id]
}
