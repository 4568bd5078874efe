package machine

import (
	"github.com/thelolagemann/devsched/internal/scheduler"
	"github.com/thelolagemann/devsched/internal/types"
	"github.com/thelolagemann/devsched/internal/vtime"
)

// LatchTrigger is raised whenever a value lands in the sound latch.
const LatchTrigger = 1

// SoundLatch is an 8-bit mailbox from one core to another. Writes are
// synchronised through a transient timer, so the value only lands once
// every core has caught up with the writer, and the interleave is
// boosted for a short while afterwards so that the reply is not a whole
// quantum late.
type SoundLatch struct {
	s       *scheduler.Scheduler
	sync    scheduler.TransientTimerFactory
	booster Booster

	value   uint8
	pending bool

	lastWrite vtime.Time // time the last value landed
	delta     vtime.Time // time between the last two values
	writes    uint64
	reads     uint64
	overruns  uint64 // values overwritten before being read
}

func newSoundLatch(s *scheduler.Scheduler, booster Booster) *SoundLatch {
	l := &SoundLatch{
		s:       s,
		booster: booster,
	}
	l.sync.InitDevice(s, l, scheduler.Param(l.latch), "sync")
	return l
}

// Tag implements scheduler.Device.
func (l *SoundLatch) Tag() string { return "soundlatch" }

// Write queues v to land in the latch at the current time.
func (l *SoundLatch) Write(v uint8) {
	l.sync.Synchronize(uint64(v))
}

func (l *SoundLatch) latch(v uint8) {
	now := l.s.Time()
	if l.writes > 0 {
		l.delta = now.Sub(l.lastWrite)
	}
	l.lastWrite = now

	if l.pending {
		l.overruns++
	}
	l.value = v
	l.pending = true
	l.writes++

	l.booster.Boost()
	l.s.Trigger(LatchTrigger, vtime.Zero)
}

// Read returns the latched value and clears it.
func (l *SoundLatch) Read() uint8 {
	l.pending = false
	l.reads++
	return l.value
}

// Pending returns true if a value has landed and not yet been read.
func (l *SoundLatch) Pending() bool { return l.pending }

// Delta returns the time between the last two values landing.
func (l *SoundLatch) Delta() vtime.Time { return l.delta }

func (l *SoundLatch) Save(st *types.State) error {
	st.Write8(l.value)
	st.WriteBool(l.pending)
	writeTime(st, l.lastWrite)
	writeTime(st, l.delta)
	st.Write64(l.writes)
	st.Write64(l.reads)
	st.Write64(l.overruns)
	return nil
}

func (l *SoundLatch) Load(st *types.State) error {
	if err := st.Need(1 + 1 + 2*timeSize + 3*8); err != nil {
		return err
	}
	l.value = st.Read8()
	l.pending = st.ReadBool()
	l.lastWrite = readTime(st)
	l.delta = readTime(st)
	l.writes = st.Read64()
	l.reads = st.Read64()
	l.overruns = st.Read64()
	return nil
}

// Booster tightens the interleave of the scheduler for a while. A zero
// quantum asks for the finest interleave the units allow.
type Booster struct {
	s        *scheduler.Scheduler
	quantum  vtime.Time
	duration vtime.Time
}

// Boost applies the boost from the current time.
func (b Booster) Boost() {
	if b.s == nil || b.duration.IsZero() {
		return
	}
	b.s.BoostInterleave(b.quantum, b.duration)
}
