package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
)

// quantumSlot is a request for a maximum timeslice size that lasts
// until expire. The slots are kept sorted by requested size, so the
// first one is always the quantum in effect.
type quantumSlot struct {
	actual    vtime.Subseconds // requested, but never below the minimum
	requested vtime.Subseconds
	expire    vtime.Time
}

// maxQuantum is the longest quantum the scheduler will use, whatever
// is configured.
var maxQuantum = vtime.FromHz(60)

// minimumQuantum is the smallest quantum before any units have been
// added.
var minimumQuantum = vtime.FromNsec(1).AsSubseconds() / 1000

// BoostInterleave shrinks the maximum timeslice to quantum for the next
// duration of virtual time. This is used when devices are known to talk
// to each other tightly and must stay closely in step for a while.
func (s *Scheduler) BoostInterleave(quantum, duration vtime.Time) {
	if duration.IsZero() || duration.Before(vtime.Zero) {
		return
	}
	s.addSchedulingQuantum(quantum, duration)
}

// addSchedulingQuantum adds a quantum request, dropping any expired
// requests along the way. A request for a size that is already present
// extends that request instead.
func (s *Scheduler) addSchedulingQuantum(quantum, duration vtime.Time) {
	s.stats.QuantumAdds++

	now := s.Time()
	expire := now.Add(duration)
	requested := quantum.AsSubseconds()

	kept := s.quanta[:0]
	insertAt := 0
	for _, q := range s.quanta {
		if !now.Before(q.expire) {
			continue
		}
		kept = append(kept, q)
		if q.requested <= requested {
			insertAt = len(kept)
		}
	}
	s.quanta = kept

	if insertAt > 0 && s.quanta[insertAt-1].requested == requested {
		s.quanta[insertAt-1].expire = vtime.Max(s.quanta[insertAt-1].expire, expire)
		return
	}

	slot := quantumSlot{
		actual:    max(requested, s.quantumMinimum),
		requested: requested,
		expire:    expire,
	}
	s.quanta = append(s.quanta, quantumSlot{})
	copy(s.quanta[insertAt+1:], s.quanta[insertAt:])
	s.quanta[insertAt] = slot
}

// pruneQuanta drops quanta that expired by the base time. The
// permanent quantum never expires, so at least one always remains.
func (s *Scheduler) pruneQuanta() {
	for len(s.quanta) > 1 && !s.basetime.Before(s.quanta[0].expire) {
		s.quanta = s.quanta[1:]
	}
}

// Quantum returns the quantum currently in effect.
func (s *Scheduler) Quantum() vtime.Time {
	return s.quanta[0].actual.Time()
}

// computePerfectInterleave derives the minimum quantum from the clocks
// of the units. The minimum is the cycle period of the second fastest
// unit: any shorter and the fastest unit could not make progress. With
// a single clocked unit the minimum is its own cycle period, since a
// slice shorter than one cycle gets no work done. With no clocked units
// the minimum is left alone.
func (s *Scheduler) computePerfectInterleave() {
	smallest, perfect := vtime.MaxSubseconds, vtime.Subseconds(vtime.AttosecondsPerSecond-1)
	clocked := 0
	for _, ex := range s.executors {
		c, ok := ex.unit.(Clocked)
		if !ok || c.Clock() == 0 {
			continue
		}
		q := vtime.SubsecondsFromHz(c.Clock())
		clocked++
		switch {
		case clocked == 1:
			smallest = q
		case q < smallest:
			perfect = smallest
			smallest = q
		case q < perfect:
			perfect = q
		}
	}
	switch clocked {
	case 0:
		return
	case 1:
		perfect = smallest
	}
	if perfect == s.quantumMinimum {
		return
	}

	s.quantumMinimum = perfect
	for i := range s.quanta {
		s.quanta[i].actual = max(s.quanta[i].requested, s.quantumMinimum)
	}
}
