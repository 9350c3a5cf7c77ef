package ir

import "fmt"

// RegClass is the register file a Reg lives in.
type RegClass byte

const (
	RegClassGeneral RegClass = iota
	RegClassPredicate
)

const (
	// regIndexZero is the index of RZ (general) and PT (predicate). They are never
	// tracked for hazards or pressure since reads return a constant and writes are dropped.
	regIndexZeroGeneral   = 255
	regIndexTruePredicate = 7
)

// Reg is a physical register, possibly spanning several consecutive 32-bit units (e.g. R4.64 covers R4 and R5).
type Reg struct {
	Class RegClass
	Index uint16
	// Width is the number of consecutive 32-bit units covered by this register.
	Width uint8
}

var (
	// RZ is the zero register.
	RZ = Reg{Class: RegClassGeneral, Index: regIndexZeroGeneral, Width: 1}
	// PT is the always-true predicate.
	PT = Reg{Class: RegClassPredicate, Index: regIndexTruePredicate, Width: 1}
)

// R returns the 32-bit general register Rn.
func R(n uint16) Reg { return Reg{Class: RegClassGeneral, Index: n, Width: 1} }

// RWide returns the general register tuple starting at Rn with the given width in 32-bit units.
func RWide(n uint16, width uint8) Reg { return Reg{Class: RegClassGeneral, Index: n, Width: width} }

// P returns the predicate register Pn.
func P(n uint16) Reg { return Reg{Class: RegClassPredicate, Index: n, Width: 1} }

// IsConstant returns true for RZ and PT.
func (r Reg) IsConstant() bool {
	return r == RZ || r == PT
}

// Overlaps returns true if r and o share at least one 32-bit unit.
func (r Reg) Overlaps(o Reg) bool {
	if r.Class != o.Class || r.IsConstant() || o.IsConstant() {
		return false
	}
	rEnd, oEnd := int(r.Index)+int(r.Width), int(o.Index)+int(o.Width)
	return int(r.Index) < oEnd && int(o.Index) < rEnd
}

// RegUnit identifies a single 32-bit unit of a register file.
type RegUnit uint32

// Units appends the units covered by r to dst and returns it.
func (r Reg) Units(dst []RegUnit) []RegUnit {
	if r.IsConstant() {
		return dst
	}
	for i := uint16(0); i < uint16(r.Width); i++ {
		dst = append(dst, RegUnit(uint32(r.Class)<<16|uint32(r.Index+i)))
	}
	return dst
}

// Class returns the register class of the unit.
func (u RegUnit) Class() RegClass { return RegClass(u >> 16) }

// String implements fmt.Stringer.
func (u RegUnit) String() string {
	return Reg{Class: u.Class(), Index: uint16(u), Width: 1}.String()
}

// String implements fmt.Stringer.
func (r Reg) String() string {
	switch r.Class {
	case RegClassGeneral:
		if r == RZ {
			return "RZ"
		}
		if r.Width > 1 {
			return fmt.Sprintf("R%d.%d", r.Index, int(r.Width)*32)
		}
		return fmt.Sprintf("R%d", r.Index)
	case RegClassPredicate:
		if r == PT {
			return "PT"
		}
		return fmt.Sprintf("P%d", r.Index)
	}
	panic(fmt.Sprintf("BUG: unknown register class %d", r.Class))
}
