package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
)

// TransientTimerFactory issues fire-once instances that call a single
// callback. Issued instances cannot be modified or cancelled; they are
// returned to the scheduler's pool once they have fired.
type TransientTimerFactory struct {
	callback Callback
}

// Init binds delegate to the factory.
func (f *TransientTimerFactory) Init(s *Scheduler, delegate Delegate, name string, unique ...string) *TransientTimerFactory {
	f.callback.Init(s, delegate, name, unique...)
	return f
}

// InitDevice is like Init, with dev recorded as the owner.
func (f *TransientTimerFactory) InitDevice(s *Scheduler, dev Device, delegate Delegate, name string, unique ...string) *TransientTimerFactory {
	f.callback.InitDevice(s, dev, delegate, name, unique...)
	return f
}

// Callback returns the factory's callback.
func (f *TransientTimerFactory) Callback() *Callback { return &f.callback }

// CallAfter schedules the callback to fire after duration, with up to
// three parameters. A duration of Never is an error: the instance would
// sit in the pool forever.
func (f *TransientTimerFactory) CallAfter(duration vtime.Time, params ...uint64) {
	s := f.callback.scheduler
	if s == nil {
		panic("scheduler: transient timer factory used before Init")
	}
	if !s.assert(!duration.IsNever(), "%s: transient timer issued with a duration of never", &f.callback) {
		return
	}
	if !s.assert(len(params) <= 3, "%s: %d parameters given, at most 3 allowed", &f.callback, len(params)) {
		params = params[:3]
	}
	if duration.Before(vtime.Zero) {
		duration = vtime.Zero
	}

	t := s.allocInstance()
	t.callback = &f.callback
	t.setParams(params)
	now := s.Time()
	s.insertInstance(t, now, now.Add(duration))
}

// Synchronize schedules the callback to fire as soon as possible.
func (f *TransientTimerFactory) Synchronize(params ...uint64) {
	f.CallAfter(vtime.Zero, params...)
}

// Release cancels every pending instance issued by the factory and
// removes its callback from the registry.
func (f *TransientTimerFactory) Release() {
	s := f.callback.scheduler
	if s == nil {
		return
	}
	for t := s.head; t != &s.tail; {
		next := t.next
		if t.callback == &f.callback {
			s.reclaimInstance(t)
		}
		t = next
	}
	s.DeregisterCallback(&f.callback)
}
