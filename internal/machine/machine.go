// Package machine assembles a set of clocked cores and timer driven
// devices around a scheduler, and drives them a frame at a time.
package machine

import (
	"fmt"
	"github.com/thelolagemann/devsched/internal/scheduler"
	"github.com/thelolagemann/devsched/internal/types"
	"github.com/thelolagemann/devsched/internal/vtime"
	"github.com/thelolagemann/devsched/pkg/log"
)

const (
	// ClockSpeed is the clock speed of the main core.
	ClockSpeed = 4194304 // 4.194304 MHz
	// SoundClockSpeed is the clock speed of the sound core.
	SoundClockSpeed = ClockSpeed / 4
	// FrameRate is the default number of frames per second.
	FrameRate = 60

	// latch writes per frame made by the default main core
	writesPerFrame = 4
)

// Role selects the program a core runs.
type Role uint8

const (
	// RoleIdle burns cycles in fixed bursts.
	RoleIdle Role = iota
	// RoleLatchWriter writes to the sound latch at a fixed rate.
	RoleLatchWriter
	// RoleLatchReader reads the sound latch, and sleeps while it is
	// empty.
	RoleLatchReader
)

// UnitSpec describes one core of the machine.
type UnitSpec struct {
	Name  string
	Clock uint64 // Hz
	Role  Role
}

// DefaultUnits is the set of cores a machine has unless told otherwise.
var DefaultUnits = []UnitSpec{
	{Name: "maincpu", Clock: ClockSpeed, Role: RoleLatchWriter},
	{Name: "soundcpu", Clock: SoundClockSpeed, Role: RoleLatchReader},
}

// Machine is a set of cores and devices sharing a scheduler.
type Machine struct {
	s     *scheduler.Scheduler
	cores []*Core
	latch *SoundLatch

	frameTimer *scheduler.PersistentTimer
	frames     uint64
	onFrame    []func(Snapshot)

	log.Logger

	units      []UnitSpec
	frameRate  uint64
	quantum    vtime.Time
	boost      vtime.Time
	debug      bool
	state      []byte
	loadedFrom bool
}

// New returns a machine at time zero, configured by opts.
func New(opts ...Opt) (*Machine, error) {
	m := &Machine{
		Logger:    log.NewNullLogger(),
		units:     DefaultUnits,
		frameRate: FrameRate,
		boost:     vtime.FromUsec(100),
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.units) == 0 {
		return nil, fmt.Errorf("machine: no units")
	}
	if m.frameRate == 0 {
		return nil, fmt.Errorf("machine: frame rate must be positive")
	}

	sopts := []scheduler.Opt{scheduler.WithLogger(m.Logger)}
	if !m.quantum.IsZero() {
		sopts = append(sopts, scheduler.WithQuantum(m.quantum))
	}
	if m.debug {
		sopts = append(sopts, scheduler.WithDebug())
	}
	m.s = scheduler.New(sopts...)

	// everything that registers a callback must do so in the same
	// order every time, or saved states will not find their timers
	m.latch = newSoundLatch(m.s, Booster{s: m.s, duration: m.boost})
	for _, u := range m.units {
		if u.Clock == 0 {
			return nil, fmt.Errorf("machine: unit %s has no clock", u.Name)
		}
		c := newCore(u.Name, u.Clock, m.program(u))
		c.ex = m.s.AddUnit(c)
		m.cores = append(m.cores, c)
	}
	m.frameTimer = m.s.TimerAlloc(scheduler.Func0(m.endFrame), "frame", m)
	period := vtime.FromHz(m.frameRate)
	m.frameTimer.Adjust(period, 0, period)

	if m.state != nil {
		if err := m.Load(types.StateFromBytes(m.state)); err != nil {
			return nil, err
		}
		m.loadedFrom = true
	}
	return m, nil
}

func (m *Machine) program(u UnitSpec) Program {
	switch u.Role {
	case RoleLatchWriter:
		interval := u.Clock / (m.frameRate * writesPerFrame)
		return &latchWriter{latch: m.latch, interval: max(interval, 1), next: max(interval, 1)}
	case RoleLatchReader:
		return &latchReader{latch: m.latch, cost: 64}
	}
	return &idle{burst: 256}
}

func (m *Machine) endFrame() {
	m.frames++
	if len(m.onFrame) == 0 {
		return
	}
	snap := m.Snapshot()
	for _, fn := range m.onFrame {
		fn(snap)
	}
}

// Frame runs the machine until the end of the current frame.
func (m *Machine) Frame() {
	frame := m.frames
	for m.frames == frame {
		m.s.Timeslice(0)
	}
}

// RunFor runs the machine for d of virtual time.
func (m *Machine) RunFor(d vtime.Time) {
	m.s.RunFor(d)
}

// OnFrame registers fn to be called with a snapshot at the end of
// every frame. fn is called on the machine's goroutine.
func (m *Machine) OnFrame(fn func(Snapshot)) {
	m.onFrame = append(m.onFrame, fn)
}

// Frames returns the number of frames completed.
func (m *Machine) Frames() uint64 { return m.frames }

// Scheduler returns the scheduler the machine runs on.
func (m *Machine) Scheduler() *scheduler.Scheduler { return m.s }

// Cores returns the cores in the order they were added.
func (m *Machine) Cores() []*Core { return m.cores }

// Latch returns the sound latch.
func (m *Machine) Latch() *SoundLatch { return m.latch }

// LoadedFromState returns true if the machine was started from a
// saved state.
func (m *Machine) LoadedFromState() bool { return m.loadedFrom }
