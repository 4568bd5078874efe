package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
)

// relativeTime holds a time both as an absolute value and as an offset
// from a base time. The hot paths of the timeslice loop compare the
// offsets, which are plain integers; the absolute value is only
// recomputed on demand after the offset has been changed.
type relativeTime struct {
	relative vtime.Subseconds
	absolute vtime.Time
	base     vtime.Time
	dirty    bool // absolute is stale
}

// set sets the absolute time.
func (r *relativeTime) set(t vtime.Time) {
	r.absolute = t
	r.dirty = false
	r.updateRelative()
}

// setRelative sets the offset from the base.
func (r *relativeTime) setRelative(rel vtime.Subseconds) {
	r.relative = rel
	r.dirty = true
}

// add moves the time by delta.
func (r *relativeTime) add(delta vtime.Subseconds) {
	if r.relative == vtime.MaxSubseconds {
		return
	}
	r.relative += delta
	r.dirty = true
}

// rel returns the offset from the base.
func (r *relativeTime) rel() vtime.Subseconds {
	return r.relative
}

// abs returns the absolute time, recomputing it if needed.
func (r *relativeTime) abs() vtime.Time {
	if r.dirty {
		r.updateAbsolute()
	}
	return r.absolute
}

// setBase rebases the offset without changing the absolute time.
func (r *relativeTime) setBase(base vtime.Time) {
	if r.dirty {
		r.updateAbsolute()
	}
	r.base = base
	r.updateRelative()
}

func (r *relativeTime) updateRelative() {
	r.relative = r.absolute.Sub(r.base).AsSubseconds()
}

func (r *relativeTime) updateAbsolute() {
	r.absolute = r.base.AddSubseconds(r.relative)
	r.dirty = false
}
