package machine

import (
	"github.com/thelolagemann/devsched/internal/scheduler"
	"github.com/thelolagemann/devsched/internal/vtime"
	"math"
)

// Program decides what a Core does with its cycles. Step is called at
// the start of every burst and returns how many cycles the burst should
// take. Returning 0 stops the core for the rest of the slice, which is
// what a program that has just halted or spun its core should do.
type Program interface {
	Step(c *Core) uint64
}

// Core is a synthetic clocked execution unit. It executes no
// instructions; it counts cycles, in bursts chosen by its Program, and
// keeps its position in virtual time exact to the cycle.
type Core struct {
	name   string
	clock  uint64
	period vtime.Time

	cycles uint64     // cycles executed
	pos    vtime.Time // time at the end of the last executed cycle

	program Program
	ex      *scheduler.Executor
}

func newCore(name string, clock uint64, program Program) *Core {
	return &Core{
		name:    name,
		clock:   clock,
		period:  vtime.FromHz(clock),
		program: program,
	}
}

func (c *Core) Name() string { return c.name }

// Clock returns the clock of the core, in Hz.
func (c *Core) Clock() uint64 { return c.clock }

// CurrentTime returns the time of the cycle the core is on.
func (c *Core) CurrentTime() vtime.Time { return c.pos }

// Cycles returns the number of cycles the core has executed.
func (c *Core) Cycles() uint64 { return c.cycles }

// Executor returns the scheduler's handle on the core.
func (c *Core) Executor() *scheduler.Executor { return c.ex }

// RunUntil executes whole cycles up to target. With less than a cycle
// to go there is nothing to do, and the core reports target as reached
// without moving.
func (c *Core) RunUntil(target vtime.Time) vtime.Time {
	// time the executor skipped us over, while suspended or eating
	// cycles, is not ours to run
	if lt := c.ex.LocalTime(); !lt.Sub(c.pos).Before(c.period) {
		c.pos = lt
	}

	budget := target.Sub(c.pos).AsCycles(c.clock)
	if budget == 0 {
		return target
	}

	for budget > 0 && !c.ex.Aborted() {
		n := c.program.Step(c)
		if n == 0 {
			break
		}
		n = min(n, budget, math.MaxUint32)
		c.advance(n)
		budget -= n
	}
	return c.pos
}

func (c *Core) advance(n uint64) {
	c.cycles += n
	c.pos = c.pos.Add(c.period.Mul(uint32(n)))
}

// idle burns its cycles in fixed bursts.
type idle struct {
	burst uint64
}

func (p *idle) Step(*Core) uint64 { return p.burst }

// latchWriter writes an incrementing value to the latch every interval
// cycles.
type latchWriter struct {
	latch    *SoundLatch
	interval uint64
	next     uint64 // cycle count of the next write
	value    uint8
}

func (p *latchWriter) Step(c *Core) uint64 {
	if c.cycles >= p.next {
		p.value++
		p.latch.Write(p.value)
		p.next += p.interval
	}
	return p.next - c.cycles
}

// latchReader acknowledges every latch write, and sleeps until the
// next one when there is nothing to read.
type latchReader struct {
	latch *SoundLatch
	cost  uint64
	sum   uint64
}

func (p *latchReader) Step(c *Core) uint64 {
	if !p.latch.Pending() {
		c.ex.SpinUntilTrigger(LatchTrigger)
		return 0
	}
	p.sum += uint64(p.latch.Read())
	return p.cost
}
