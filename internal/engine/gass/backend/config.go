package backend

import (
	"github.com/nikandfor/errors"

	"github.com/gasstools/gassc/internal/engine/gass/backend/barrier"
	"github.com/gasstools/gassc/internal/engine/gass/backend/sched"
	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

// Config controls the passes of a Compiler, with the default implementation as NewConfig.
type Config struct {
	target          *ir.Target
	barrierCapacity int
	mergePick       barrier.MergePick
	crossBlockWAR   bool
	errorMargin     int
	weights         sched.Weights
	schedule        bool
	sinkLoads       bool
	eliminateNops   bool
}

var defaultConfig = &Config{
	barrierCapacity: ir.BarrierCount,
	mergePick:       barrier.MergePickOrdered,
	errorMargin:     sched.DefaultErrorMargin,
	weights:         sched.DefaultWeights(),
	schedule:        true,
	eliminateNops:   true,
}

// clone ensures all fields are copied even if nil.
func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// NewConfig returns the default configuration for the canonical GASS target.
func NewConfig() *Config {
	ret := defaultConfig.clone()
	ret.target = ir.DefaultTarget()
	return ret
}

// WithTarget compiles for target instead of ir.DefaultTarget. The target latency table is used
// by the scheduler and the stall pass.
func (c *Config) WithTarget(target *ir.Target) *Config {
	ret := c.clone()
	ret.target = target
	return ret
}

// WithBarrierCapacity limits the number of physical barriers a region may use. It defaults to
// the six barriers of the hardware and must be between 2 and 6.
func (c *Config) WithBarrierCapacity(capacity int) *Config {
	ret := c.clone()
	ret.barrierCapacity = capacity
	return ret
}

// WithMergePick selects how barrier merges are chosen. Only barrier.MergePickOrdered is
// implemented: the others make Compile fail.
func (c *Config) WithMergePick(pick barrier.MergePick) *Config {
	ret := c.clone()
	ret.mergePick = pick
	return ret
}

// WithCrossBlockWAR extends write-after-read barriers across blocks. This is not implemented and
// makes Compile fail when enabled.
func (c *Config) WithCrossBlockWAR(enabled bool) *Config {
	ret := c.clone()
	ret.crossBlockWAR = enabled
	return ret
}

// WithErrorMargin sets the number of registers subtracted from the register file limits when
// the scheduler estimates pressure. Defaults to sched.DefaultErrorMargin.
func (c *Config) WithErrorMargin(margin int) *Config {
	ret := c.clone()
	ret.errorMargin = margin
	return ret
}

// WithSchedWeights sets the weights of the scheduler candidate score.
func (c *Config) WithSchedWeights(weights sched.Weights) *Config {
	ret := c.clone()
	ret.weights = weights
	return ret
}

// WithScheduling enables the list scheduler. This defaults to true. When false, the
// instructions keep their input order.
func (c *Config) WithScheduling(enabled bool) *Config {
	ret := c.clone()
	ret.schedule = enabled
	return ret
}

// WithLoadSinking moves loads into the loop bodies using their results. This is not implemented
// and makes Compile fail when enabled.
func (c *Config) WithLoadSinking(enabled bool) *Config {
	ret := c.clone()
	ret.sinkLoads = enabled
	return ret
}

// WithNopElimination removes NOP instructions from the input before scheduling. This defaults
// to true.
func (c *Config) WithNopElimination(enabled bool) *Config {
	ret := c.clone()
	ret.eliminateNops = enabled
	return ret
}

// validate reports the settings no pass could run with, whatever the function.
func (c *Config) validate() error {
	if c.barrierCapacity < 2 || c.barrierCapacity > ir.BarrierCount {
		return errors.New("barrier capacity %d out of range [2, %d]", c.barrierCapacity, ir.BarrierCount)
	}
	return nil
}
