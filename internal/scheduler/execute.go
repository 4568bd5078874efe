package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
	"strconv"
)

// Unit is an independently clocked execution unit, such as a CPU. The
// scheduler knows nothing about what a unit does, only that it can be
// asked to run up to a point in virtual time.
type Unit interface {
	// Name identifies the unit in logs and dumps.
	Name() string
	// RunUntil runs the unit until target, or until it decides to stop
	// early, and returns the time it reached. It must never run past
	// target.
	RunUntil(target vtime.Time) vtime.Time
}

// Clocked is implemented by units with a fixed clock, in Hz. The clocks
// of all units decide the finest quantum the scheduler will use.
type Clocked interface {
	Clock() uint64
}

// Suspender is implemented by units that can suspend themselves, in
// addition to being suspended through their Executor.
type Suspender interface {
	Suspended() bool
}

// Positioner is implemented by units that can report how far they have
// got while they are running. It makes Scheduler.Time precise for
// timers scheduled from inside a unit.
type Positioner interface {
	CurrentTime() vtime.Time
}

// SuspendReason is a bitmask of reasons a unit is not running.
type SuspendReason uint32

const (
	SuspendReasonHalt SuspendReason = 1 << iota
	SuspendReasonReset
	SuspendReasonSpin
	SuspendReasonTrigger
	SuspendReasonDisable
	SuspendReasonTimeout

	SuspendAnyReason = ^SuspendReason(0)
)

// Executor is the scheduler's handle on a Unit. It holds the unit's
// position in virtual time and its suspend state. Suspend and resume
// requests are staged, and only take effect between timeslices.
type Executor struct {
	unit Unit
	s    *Scheduler

	suspend     SuspendReason // in effect
	nextSuspend SuspendReason // takes effect at the next apply
	trigger     int           // trigger being waited on

	// SpinUntilTime waits on a private trigger, raised by a timer that
	// each new spin moves rather than adds to
	timeoutTrigger int
	timeout        PersistentTimer

	localTime vtime.Time
	aborted   bool
	runs      uint64
}

// AddUnit adds u to the set of units the scheduler runs, starting at
// the current time.
func (s *Scheduler) AddUnit(u Unit) *Executor {
	s.nextTrigger--
	ex := &Executor{
		unit:           u,
		s:              s,
		localTime:      s.basetime,
		timeoutTrigger: s.nextTrigger,
	}
	ex.timeout.Init(s, Func0(ex.timeoutExpired), "timeout", strconv.Itoa(len(s.executors)))
	s.executors = append(s.executors, ex)
	s.rebuildExecuteList()
	s.log.Debugf("scheduler: added unit %s", u.Name())
	return ex
}

// Unit returns the unit.
func (ex *Executor) Unit() Unit { return ex.unit }

// Name returns the name of the unit.
func (ex *Executor) Name() string { return ex.unit.Name() }

// LocalTime returns the time the unit has reached.
func (ex *Executor) LocalTime() vtime.Time { return ex.localTime }

// Runs returns how many times the unit has been run.
func (ex *Executor) Runs() uint64 { return ex.runs }

// Suspended returns true if the unit is currently suspended for any of
// the given reasons.
func (ex *Executor) Suspended(reason SuspendReason) bool {
	return ex.suspend&reason != 0
}

// Runnable returns true if the unit will be given time in the next
// timeslice.
func (ex *Executor) Runnable() bool {
	if ex.suspend != 0 {
		return false
	}
	if sp, ok := ex.unit.(Suspender); ok && sp.Suspended() {
		return false
	}
	return true
}

// Aborted returns true if the timeslice the unit is running in has been
// aborted. Units that run in long bursts should check it and return
// early.
func (ex *Executor) Aborted() bool { return ex.aborted }

// Suspend requests that the unit stop running for reason. If the unit
// is the one running, it is asked to stop as soon as it can.
func (ex *Executor) Suspend(reason SuspendReason) {
	ex.nextSuspend |= reason
	ex.s.SuspendResumeChanged()
	if ex.s.executing == ex {
		ex.s.AbortTimeslice()
	}
}

// Resume clears reason from the unit's suspend state.
func (ex *Executor) Resume(reason SuspendReason) {
	ex.nextSuspend &^= reason
	ex.s.SuspendResumeChanged()
}

// SpinUntilTrigger suspends the unit until Trigger is called with id.
func (ex *Executor) SpinUntilTrigger(id int) {
	ex.trigger = id
	ex.Suspend(SuspendReasonTrigger)
}

// SpinUntilTime suspends the unit for duration of virtual time.
func (ex *Executor) SpinUntilTime(duration vtime.Time) {
	ex.SpinUntilTrigger(ex.timeoutTrigger)
	ex.timeout.Adjust(duration, 0, vtime.Never)
}

func (ex *Executor) timeoutExpired() {
	ex.s.Trigger(ex.timeoutTrigger, vtime.Zero)
}

// Yield gives up the rest of the current timeslice.
func (ex *Executor) Yield() {
	if ex.s.executing == ex {
		ex.s.AbortTimeslice()
	}
}

// wake resumes the unit if it is waiting on trigger id.
func (ex *Executor) wake(id int) {
	if ex.nextSuspend&SuspendReasonTrigger != 0 && ex.trigger == id {
		ex.trigger = 0
		ex.Resume(SuspendReasonTrigger)
	}
}

// SuspendResumeChanged notes that suspend state has changed and must be
// applied before the next timeslice.
func (s *Scheduler) SuspendResumeChanged() {
	s.suspendChangesPending = true
}

// CurrentlyExecuting returns the executor of the unit that is running,
// or nil outside of unit execution.
func (s *Scheduler) CurrentlyExecuting() *Executor {
	return s.executing
}

// Executors returns the executors in the order they were added.
func (s *Scheduler) Executors() []*Executor {
	return s.executors
}

// rebuildExecuteList recomputes the interleave and the run list after
// the set of units has changed.
func (s *Scheduler) rebuildExecuteList() {
	s.stats.Rebuilds++
	s.computePerfectInterleave()
	s.applySuspendChanges()
}

// applySuspendChanges makes staged suspend state current and rebuilds
// the list of units that will run.
func (s *Scheduler) applySuspendChanges() {
	s.stats.SuspendApplies++
	runList := make([]*Executor, 0, len(s.executors))
	for _, ex := range s.executors {
		ex.suspend = ex.nextSuspend
		if ex.suspend == 0 {
			runList = append(runList, ex)
		}
	}
	s.runList = runList
	s.suspendChangesPending = false
}

// Trigger wakes every unit waiting on id. With a non-zero after, the
// trigger is raised that much later instead.
func (s *Scheduler) Trigger(id int, after vtime.Time) {
	if !after.IsZero() {
		s.timedTrigger.CallAfter(after, uint64(int64(id)))
		return
	}

	s.stats.Triggers++
	for _, ex := range s.executors {
		ex.wake(id)
	}
}

// EatAllCycles ends the current timeslice for every unit: the running
// unit is aborted and those yet to run are moved to the target without
// running.
func (s *Scheduler) EatAllCycles() {
	s.eatAll = true
	s.AbortTimeslice()
}
