package machine

import (
	"github.com/thelolagemann/devsched/internal/scheduler"
)

// Snapshot is a copy of the observable state of a machine, taken at the
// end of a frame. It holds no references into the machine, so it can be
// handed to other goroutines.
type Snapshot struct {
	Frame     uint64          `json:"frame"`
	Time      float64         `json:"time"` // seconds
	Quantum   float64         `json:"quantum"`
	Units     []UnitSnapshot  `json:"units"`
	Latch     LatchSnapshot   `json:"latch"`
	Scheduler scheduler.Stats `json:"scheduler"`
}

// UnitSnapshot is the state of one core.
type UnitSnapshot struct {
	Name      string  `json:"name"`
	Clock     uint64  `json:"clock"`
	Cycles    uint64  `json:"cycles"`
	Runs      uint64  `json:"runs"`
	LocalTime float64 `json:"localTime"`
	Suspended bool    `json:"suspended"`
}

// LatchSnapshot is the state of the sound latch.
type LatchSnapshot struct {
	Writes   uint64  `json:"writes"`
	Reads    uint64  `json:"reads"`
	Overruns uint64  `json:"overruns"`
	Delta    float64 `json:"delta"`
}

// Snapshot returns the current state of the machine.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Frame:     m.frames,
		Time:      m.s.Time().Float(),
		Quantum:   m.s.Quantum().Float(),
		Scheduler: m.s.Stats(),
		Latch: LatchSnapshot{
			Writes:   m.latch.writes,
			Reads:    m.latch.reads,
			Overruns: m.latch.overruns,
			Delta:    m.latch.delta.Float(),
		},
	}
	for _, c := range m.cores {
		snap.Units = append(snap.Units, UnitSnapshot{
			Name:      c.name,
			Clock:     c.clock,
			Cycles:    c.cycles,
			Runs:      c.ex.Runs(),
			LocalTime: c.ex.LocalTime().Float(),
			Suspended: !c.ex.Runnable(),
		})
	}
	return snap
}
