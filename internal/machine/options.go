package machine

import (
	"github.com/thelolagemann/devsched/internal/vtime"
	"github.com/thelolagemann/devsched/pkg/log"
)

// Opt is a function that modifies a Machine
// instance.
type Opt func(m *Machine)

// Debug makes broken scheduler invariants panic.
func Debug() Opt {
	return func(m *Machine) {
		m.debug = true
	}
}

func WithLogger(log log.Logger) Opt {
	return func(m *Machine) {
		m.Logger = log
	}
}

// WithUnits replaces the default cores.
func WithUnits(units ...UnitSpec) Opt {
	return func(m *Machine) {
		m.units = units
	}
}

// WithState starts the machine from a state saved by Machine.Save.
func WithState(b []byte) Opt {
	return func(m *Machine) {
		m.state = b
	}
}

// WithQuantum sets the longest timeslice the scheduler will run.
func WithQuantum(q vtime.Time) Opt {
	return func(m *Machine) {
		m.quantum = q
	}
}

// WithFrameRate sets the number of frames per second.
func WithFrameRate(hz uint64) Opt {
	return func(m *Machine) {
		m.frameRate = hz
	}
}

// WithBoost sets how long the interleave is boosted after every latch
// write. Zero disables boosting.
func WithBoost(d vtime.Time) Opt {
	return func(m *Machine) {
		m.boost = d
	}
}
