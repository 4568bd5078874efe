package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
)

// PersistentTimer is a reusable timer owned by a device for the
// device's lifetime. It embeds its own instance, which is rescheduled
// rather than reallocated, and may fire periodically. A PersistentTimer
// must not be copied once initialised.
type PersistentTimer struct {
	period   vtime.Time // Never if not periodic
	enabled  bool
	modified bool

	instance Instance
	callback Callback
	periodic Callback // wraps callback for periodic timers
}

// Init binds delegate to the timer. It must be called before the timer
// is used; calling it again rebinds the timer and cancels anything
// pending.
func (p *PersistentTimer) Init(s *Scheduler, delegate Delegate, name string, unique ...string) *PersistentTimer {
	p.callback.persistent = p
	p.callback.init(s, nil, delegate, name, unique)
	return p.initCommon()
}

// InitDevice is like Init, with dev recorded as the owner.
func (p *PersistentTimer) InitDevice(s *Scheduler, dev Device, delegate Delegate, name string, unique ...string) *PersistentTimer {
	p.callback.persistent = p
	p.callback.init(s, dev, delegate, name, unique)
	return p.initCommon()
}

func (p *PersistentTimer) initCommon() *PersistentTimer {
	s := p.callback.scheduler
	s.removeInstance(&p.instance)

	// the periodic wrapper shares the identity of the real callback,
	// but is never registered itself
	p.periodic = Callback{
		delegate:   p.periodicCallback,
		name:       p.callback.name,
		scheduler:  s,
		device:     p.callback.device,
		ptr:        p.callback.ptr,
		persistent: p,
		uniqueID:   p.callback.uniqueID,
		uniqueHash: p.callback.uniqueHash,
		saveIndex:  p.callback.saveIndex,
	}

	p.instance.callback = &p.callback
	p.instance.param = [3]uint64{}
	p.instance.start = s.Time()
	p.instance.expire = vtime.Never
	p.period = vtime.Never
	p.enabled = false
	p.modified = false
	return p
}

// Release cancels the timer and removes its callback from the registry.
func (p *PersistentTimer) Release() {
	s := p.callback.scheduler
	if s == nil {
		return
	}
	s.removeInstance(&p.instance)
	s.DeregisterCallback(&p.callback)
	p.enabled = false
}

// Instance returns the embedded instance.
func (p *PersistentTimer) Instance() *Instance { return &p.instance }

// Callback returns the embedded callback.
func (p *PersistentTimer) Callback() *Callback { return &p.callback }

// Param returns parameter i.
func (p *PersistentTimer) Param(i int) uint64 { return p.instance.param[i] }

// Ptr returns the user pointer.
func (p *PersistentTimer) Ptr() any { return p.callback.ptr }

// Enabled returns true if the timer is enabled and waiting to fire.
func (p *PersistentTimer) Enabled() bool { return p.enabled && p.instance.active }

// Periodic returns true if the timer reschedules itself.
func (p *PersistentTimer) Periodic() bool { return !p.period.IsNever() }

// Elapsed returns the time since the timer was last scheduled.
func (p *PersistentTimer) Elapsed() vtime.Time { return p.instance.Elapsed() }

// Remaining returns the time until the timer fires.
func (p *PersistentTimer) Remaining() vtime.Time { return p.instance.Remaining() }

// Start returns the time the timer was last scheduled.
func (p *PersistentTimer) Start() vtime.Time { return p.instance.start }

// Expire returns the time the timer fires.
func (p *PersistentTimer) Expire() vtime.Time { return p.instance.expire }

// Period returns the period, or Never for a one-shot timer.
func (p *PersistentTimer) Period() vtime.Time { return p.period }

// SetParam sets parameter i.
func (p *PersistentTimer) SetParam(i int, param uint64) *PersistentTimer {
	p.instance.param[i] = param
	return p
}

// SetParams sets up to three parameters, starting at parameter 0.
func (p *PersistentTimer) SetParams(params ...uint64) *PersistentTimer {
	p.callback.scheduler.assert(len(params) <= 3, "%s: %d parameters given, at most 3 allowed", &p.callback, len(params))
	copy(p.instance.param[:], params)
	return p
}

// SetPtr sets the user pointer.
func (p *PersistentTimer) SetPtr(ptr any) *PersistentTimer {
	p.callback.ptr = ptr
	p.periodic.ptr = ptr
	return p
}

// SetPeriod changes the period without touching the pending firing. The
// new period takes effect from the next time the timer fires.
func (p *PersistentTimer) SetPeriod(period vtime.Time) *PersistentTimer {
	p.period = period
	p.modified = true
	p.instance.callback = p.activeCallback()
	return p
}

// Enable enables or disables the timer and returns whether it was
// enabled before. A disabled timer keeps its expiration time and
// period, and picks up where it left off when enabled again.
func (p *PersistentTimer) Enable(enable bool) bool {
	old := p.enabled
	if old == enable {
		return old
	}

	p.enabled = enable
	s := p.callback.scheduler
	if enable {
		s.insertInstance(&p.instance, p.instance.start, p.instance.expire)
	} else {
		s.removeInstance(&p.instance)
	}
	return old
}

// Disable disables the timer and returns whether it was enabled.
func (p *PersistentTimer) Disable() bool {
	return p.Enable(false)
}

// Reset reschedules the timer to fire after duration, keeping the
// current parameter and period.
func (p *PersistentTimer) Reset(duration vtime.Time) *PersistentTimer {
	return p.Adjust(duration, p.instance.param[0], p.period)
}

// Adjust cancels any pending firing and schedules the timer to fire
// after delay, with param as parameter 0, repeating every period. A
// period of Never makes the timer one-shot; a delay of Never leaves the
// timer disabled.
func (p *PersistentTimer) Adjust(delay vtime.Time, param uint64, period vtime.Time) *PersistentTimer {
	s := p.callback.scheduler
	p.modified = true
	p.instance.param[0] = param
	p.period = period
	p.instance.callback = p.activeCallback()

	now := s.Time()
	if delay.IsNever() {
		s.removeInstance(&p.instance)
		p.instance.start = now
		p.instance.expire = vtime.Never
		p.enabled = false
		return p
	}
	if delay.Before(vtime.Zero) {
		delay = vtime.Zero
	}

	p.enabled = true
	s.insertInstance(&p.instance, now, now.Add(delay))
	return p
}

func (p *PersistentTimer) activeCallback() *Callback {
	if p.Periodic() {
		return &p.periodic
	}
	return &p.callback
}

// periodicCallback reschedules the timer before the user callback runs,
// so that the next firing is fixed no matter what the callback does.
func (p *PersistentTimer) periodicCallback(t *Instance) {
	s := p.callback.scheduler
	period := p.period
	if period.IsZero() {
		// a zero period would fire forever without time moving, so
		// fire once per quantum instead
		period = s.Quantum()
	}
	s.insertInstance(&p.instance, t.expire, t.expire.Add(period))
	p.callback.call(t)
}
