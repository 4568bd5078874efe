// Package scheduler interleaves independently clocked execution units
// on a single goroutine, and fires timers in strict time order.
//
// Units are asked to run until a target time, which is the earliest of
// the next timer expiration, the end of the current quantum and any
// limit set by the caller. Once every unit has caught up, the base time
// moves to the target and every timer that has expired by then is
// fired. Timers firing at the same time fire in the order they were
// scheduled.
//
// Timers come in two kinds. A PersistentTimer is owned by a device for
// its whole life and can be adjusted, enabled and disabled at will. A
// TransientTimerFactory issues fire-once instances from a shared pool.
// Both refer to a registered Callback, and the registry is what allows
// the whole set of pending timers to be saved into a fixed-size block
// and restored later, possibly in a different process.
package scheduler

import (
	"fmt"
	"github.com/thelolagemann/devsched/internal/vtime"
	"github.com/thelolagemann/devsched/pkg/log"
)

// Scheduler owns the virtual clock, the active timer list, the free
// instance pool, the callback registry and the execution units. It is
// not safe for concurrent use; everything that calls into it must do so
// from a unit it is running or a callback it is firing.
type Scheduler struct {
	basetime         vtime.Time
	firstTimerExpire relativeTime
	target           relativeTime

	// active list, free pool and registry
	head        *Instance
	tail        Instance
	free        *Instance
	poolSize    int
	activeCount int
	registry    map[uint64]*Callback
	callbacks   []*Callback
	persistents []*PersistentTimer

	emptyTimer   TransientTimerFactory
	timedTrigger TransientTimerFactory

	// execution
	executors             []*Executor
	runList               []*Executor
	executing             *Executor
	suspendChangesPending bool
	abortPending          bool
	eatAll                bool
	nextTrigger           int

	// timer currently being fired, and the time it fired at
	callbackTimer       *Instance
	callbackTimerExpire vtime.Time

	quanta         []quantumSlot
	quantumMinimum vtime.Subseconds
	quantum        vtime.Time

	save      [MaxSaveInstances]SaveRecord
	saveCount int

	stats Stats
	log   log.Logger
	debug bool
}

// Opt is a function that modifies a Scheduler on creation.
type Opt func(s *Scheduler)

// WithLogger sets the logger used for assertions and diagnostics.
func WithLogger(l log.Logger) Opt {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithQuantum sets the permanent scheduling quantum. It cannot be
// longer than 1/60th of a second.
func WithQuantum(q vtime.Time) Opt {
	return func(s *Scheduler) {
		s.quantum = q
	}
}

// WithDebug makes failed assertions panic rather than being logged and
// ignored.
func WithDebug() Opt {
	return func(s *Scheduler) {
		s.debug = true
	}
}

// New returns a scheduler at time zero, with no units and no timers.
func New(opts ...Opt) *Scheduler {
	s := &Scheduler{
		registry:       make(map[uint64]*Callback),
		quantumMinimum: minimumQuantum,
		quantum:        maxQuantum,
		nextTrigger:    timeoutTriggerBase,
		log:            log.NewNullLogger(),
	}
	s.tail.expire = vtime.Never
	s.head = &s.tail

	for _, opt := range opts {
		opt(s)
	}

	s.firstTimerExpire.set(vtime.Never)
	if s.quantum.IsZero() || maxQuantum.Before(s.quantum) {
		s.quantum = maxQuantum
	}
	s.addSchedulingQuantum(s.quantum, vtime.Never)

	s.emptyTimer.Init(s, s.emptyTimerCallback, "scheduler", "empty")
	s.timedTrigger.Init(s, s.timedTriggerCallback, "scheduler", "trigger")

	return s
}

// triggers below this are reserved for SpinUntilTime
const timeoutTriggerBase = -4000

// Time returns the current virtual time. Inside a timer callback this is
// the time the timer fired at, and inside a unit it is how far the unit
// has got, if the unit can say.
func (s *Scheduler) Time() vtime.Time {
	if s.callbackTimer != nil {
		return s.callbackTimerExpire
	}
	if s.executing != nil {
		if p, ok := s.executing.unit.(Positioner); ok {
			return p.CurrentTime()
		}
	}
	return s.basetime
}

// CallbackTimer returns the instance being fired, or nil outside of a
// timer callback.
func (s *Scheduler) CallbackTimer() *Instance {
	return s.callbackTimer
}

// Timeslice runs one round of the scheduler: every runnable unit is run
// up to the target time, the base time is moved there, and the timers
// that expired by then are fired. minSlice, if positive, further limits
// how far the round may go.
func (s *Scheduler) Timeslice(minSlice vtime.Subseconds) {
	s.stats.Timeslices++

	if s.suspendChangesPending {
		s.applySuspendChanges()
	}
	s.pruneQuanta()

	// work out how far to go, relative to the base time
	s.firstTimerExpire.setBase(s.basetime)
	target := s.firstTimerExpire.rel()
	if q := s.quanta[0].actual; q < target {
		target = q
	}
	if minSlice > 0 && minSlice < target {
		target = minSlice
	}
	if target < 0 {
		target = 0
	}
	s.target.setBase(s.basetime)
	s.target.setRelative(target)
	s.abortPending = false
	s.eatAll = false

	if target > 0 {
		s.executeUnits()
	}

	s.basetime = s.target.abs()

	// suspended units do not owe the time they spent suspended
	for _, ex := range s.executors {
		if !ex.Runnable() && ex.localTime.Before(s.basetime) {
			ex.localTime = s.basetime
		}
	}

	s.executeTimers()

	if s.suspendChangesPending {
		s.applySuspendChanges()
	}
}

// executeUnits runs each unit in the run list up to the target. A unit
// that stops short pulls the target back for everyone after it, so
// that no unit ends the slice ahead of another without reason.
func (s *Scheduler) executeUnits() {
	for _, ex := range s.runList {
		if sp, ok := ex.unit.(Suspender); ok && sp.Suspended() {
			continue
		}

		behind := s.target.rel() - ex.localTime.Sub(s.basetime).AsSubseconds()
		if behind <= 0 {
			continue
		}
		if s.eatAll {
			ex.localTime = s.target.abs()
			continue
		}

		s.stats.UnitRuns++
		ex.aborted = false
		ex.runs++
		s.executing = ex
		reached := ex.unit.RunUntil(s.target.abs())
		s.executing = nil
		ex.localTime = reached

		if rel := reached.Sub(s.basetime).AsSubseconds(); rel < s.target.rel() {
			s.target.setRelative(max(rel, 0))
		}
		if s.abortPending {
			s.abortPending = false
			if first := s.firstTimerExpire.rel(); first < s.target.rel() {
				s.target.setRelative(max(first, 0))
			}
		}
	}
}

// AbortTimeslice marks the current target as stale. The unit running,
// if any, is told to stop, and the target is recomputed against the
// first timer before any other unit runs.
func (s *Scheduler) AbortTimeslice() {
	s.stats.Aborts++
	s.abortPending = true
	if s.executing != nil {
		s.executing.aborted = true
	}
}

// executeTimers fires every timer that has expired by the base time.
// Timers scheduled by callbacks to fire at or before the base time are
// fired by the same loop.
func (s *Scheduler) executeTimers() {
	for !s.basetime.Before(s.head.expire) {
		s.fire(s.head)
	}
}

// fire removes t from the active list and invokes its callback. The
// current callback timer is restored afterwards, even if the callback
// panics.
func (s *Scheduler) fire(t *Instance) {
	prev, prevExpire := s.callbackTimer, s.callbackTimerExpire
	s.callbackTimer, s.callbackTimerExpire = t, t.expire
	defer func() {
		s.callbackTimer, s.callbackTimerExpire = prev, prevExpire
	}()

	s.stats.TimersExecuted++
	s.removeInstance(t)

	cb := t.callback
	if cb.persistent == nil {
		defer s.reclaimInstance(t)
	}
	cb.call(t)
}

// RunUntil runs timeslices until the base time reaches t.
func (s *Scheduler) RunUntil(t vtime.Time) {
	for s.basetime.Before(t) {
		s.Timeslice(t.Sub(s.basetime).AsSubseconds())
	}
}

// RunFor runs timeslices for d of virtual time.
func (s *Scheduler) RunFor(d vtime.Time) {
	s.RunUntil(s.basetime.Add(d))
}

// TimerAlloc returns a persistent timer owned by the scheduler itself,
// for callers that do not want to manage one.
func (s *Scheduler) TimerAlloc(delegate Delegate, name string, ptr any) *PersistentTimer {
	p := &PersistentTimer{}
	p.Init(s, delegate, name, fmt.Sprint(len(s.persistents)))
	p.SetPtr(ptr)
	s.persistents = append(s.persistents, p)
	return p
}

// Synchronize schedules an empty timer to fire as soon as possible,
// which ends the current timeslice for every unit.
func (s *Scheduler) Synchronize() {
	s.emptyTimer.Synchronize()
}

func (s *Scheduler) emptyTimerCallback(*Instance) {
	s.stats.EmptyTimerCalls++
}

func (s *Scheduler) timedTriggerCallback(t *Instance) {
	s.stats.TimedTriggerCalls++
	s.Trigger(int(int64(t.param[0])), vtime.Zero)
}

// assert reports a broken invariant. In debug mode it panics, otherwise
// it is logged and cond is returned so the caller can back out.
func (s *Scheduler) assert(cond bool, format string, args ...interface{}) bool {
	if cond {
		return true
	}
	msg := fmt.Sprintf(format, args...)
	s.log.Errorf("scheduler assert: %s", msg)
	if s.debug {
		panic("scheduler assert: " + msg)
	}
	return false
}
