package ir

import (
	"fmt"
	"strings"
)

// Control is the 16-bit scheduling control field attached to every instruction:
//
//	bits [0:3]   stall cycles
//	bits [4:6]   write barrier index (set on completion of a variable-latency result)
//	bits [7:9]   read barrier index (set once the source operands have been read)
//	bits [10:15] wait mask over the six barriers
type Control uint16

const (
	// NoBarrier is the 3-bit barrier index meaning "no barrier". Zero is a valid index,
	// so every instruction must be reset to this value before barriers are encoded.
	NoBarrier = 0b111
	// MaxStall is the largest stall count the control field can hold.
	MaxStall = 0b1111
	// BarrierCount is the number of physical barriers.
	BarrierCount = 6

	controlStallShift = 0
	controlWriteShift = 4
	controlReadShift  = 7
	controlWaitShift  = 10

	controlStallMask = 0b1111
	controlIndexMask = 0b111
	controlWaitMask  = 0b111111
)

// Stall returns the stall cycles.
func (c Control) Stall() int {
	return int(c>>controlStallShift) & controlStallMask
}

// SetStall sets the stall cycles.
func (c *Control) SetStall(n int) {
	if n < 0 || n > MaxStall {
		panic(fmt.Sprintf("BUG: stall %d does not fit in the control field", n))
	}
	*c = *c&^(controlStallMask<<controlStallShift) | Control(n)<<controlStallShift
}

// WriteBarrier returns the write barrier index, or NoBarrier.
func (c Control) WriteBarrier() uint8 {
	return uint8(c>>controlWriteShift) & controlIndexMask
}

// SetWriteBarrier sets the write barrier index.
func (c *Control) SetWriteBarrier(i uint8) {
	*c = *c&^(controlIndexMask<<controlWriteShift) | Control(checkBarrierIndex(i))<<controlWriteShift
}

// ReadBarrier returns the read barrier index, or NoBarrier.
func (c Control) ReadBarrier() uint8 {
	return uint8(c>>controlReadShift) & controlIndexMask
}

// SetReadBarrier sets the read barrier index.
func (c *Control) SetReadBarrier(i uint8) {
	*c = *c&^(controlIndexMask<<controlReadShift) | Control(checkBarrierIndex(i))<<controlReadShift
}

// WaitMask returns the 6-bit wait mask.
func (c Control) WaitMask() uint8 {
	return uint8(c>>controlWaitShift) & controlWaitMask
}

// Waits returns true if the instruction waits on barrier i.
func (c Control) Waits(i uint8) bool {
	return i < BarrierCount && c.WaitMask()&(1<<i) != 0
}

// AddWait makes the instruction wait on barrier i.
func (c *Control) AddWait(i uint8) {
	if i >= BarrierCount {
		panic(fmt.Sprintf("BUG: cannot wait on barrier %d", i))
	}
	*c |= Control(1<<i) << controlWaitShift
}

// ResetBarriers clears the wait mask and sets both barrier indexes to NoBarrier, keeping the stall cycles.
func (c *Control) ResetBarriers() {
	*c = *c&(controlStallMask<<controlStallShift) |
		NoBarrier<<controlWriteShift |
		NoBarrier<<controlReadShift
}

func checkBarrierIndex(i uint8) uint8 {
	if i >= BarrierCount && i != NoBarrier {
		panic(fmt.Sprintf("BUG: invalid barrier index %d", i))
	}
	return i
}

// String implements fmt.Stringer, e.g. "B-1----:R-:W0:S02".
func (c Control) String() string {
	var sb strings.Builder
	sb.WriteByte('B')
	for i := uint8(0); i < BarrierCount; i++ {
		if c.Waits(i) {
			sb.WriteByte('0' + i)
		} else {
			sb.WriteByte('-')
		}
	}
	sb.WriteString(":R")
	writeBarrierIndex(&sb, c.ReadBarrier())
	sb.WriteString(":W")
	writeBarrierIndex(&sb, c.WriteBarrier())
	fmt.Fprintf(&sb, ":S%02d", c.Stall())
	return sb.String()
}

func writeBarrierIndex(sb *strings.Builder, i uint8) {
	if i == NoBarrier {
		sb.WriteByte('-')
	} else {
		sb.WriteByte('0' + i)
	}
}
