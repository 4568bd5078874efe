package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
)

// Instance is one scheduled firing of a callback. Persistent timers
// embed a single Instance which they reuse; transient timers draw
// theirs from the scheduler's pool and return them after firing.
type Instance struct {
	next, prev *Instance

	start    vtime.Time // time the instance was scheduled
	expire   vtime.Time // time the instance fires
	callback *Callback
	param    [3]uint64
	active   bool // true while linked into the active list
}

// Param returns parameter i (0-2).
func (t *Instance) Param(i int) uint64 { return t.param[i] }

// Params returns all three parameters.
func (t *Instance) Params() [3]uint64 { return t.param }

// Ptr returns the user pointer of the callback.
func (t *Instance) Ptr() any { return t.callback.ptr }

// Callback returns the callback the instance invokes.
func (t *Instance) Callback() *Callback { return t.callback }

// Active returns true if the instance is waiting to fire.
func (t *Instance) Active() bool { return t.active }

// Start returns the time the instance was scheduled.
func (t *Instance) Start() vtime.Time { return t.start }

// Expire returns the time the instance fires.
func (t *Instance) Expire() vtime.Time { return t.expire }

// Elapsed returns the time since the instance was scheduled.
func (t *Instance) Elapsed() vtime.Time {
	now := t.callback.scheduler.Time()
	if now.Before(t.start) {
		return vtime.Zero
	}
	return now.Sub(t.start)
}

// Remaining returns the time left until the instance fires.
func (t *Instance) Remaining() vtime.Time {
	now := t.callback.scheduler.Time()
	if t.expire.IsNever() {
		return vtime.Never
	}
	if !now.Before(t.expire) {
		return vtime.Zero
	}
	return t.expire.Sub(now)
}

func (t *Instance) setParams(params []uint64) {
	t.param = [3]uint64{}
	copy(t.param[:], params)
}
