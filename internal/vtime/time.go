// Package vtime provides the virtual time used by the scheduler. A Time
// is a number of whole seconds plus a number of attoseconds, which is
// enough precision to represent the cycle period of any clock that is
// likely to be emulated without accumulating drift.
package vtime

import (
	"fmt"
	"math"
)

const (
	// AttosecondsPerSecond is the number of attoseconds in a second.
	AttosecondsPerSecond int64 = 1_000_000_000_000_000_000
	// AttosecondsPerMillisecond is the number of attoseconds in a millisecond.
	AttosecondsPerMillisecond int64 = AttosecondsPerSecond / 1000
	// AttosecondsPerMicrosecond is the number of attoseconds in a microsecond.
	AttosecondsPerMicrosecond int64 = AttosecondsPerMillisecond / 1000
	// AttosecondsPerNanosecond is the number of attoseconds in a nanosecond.
	AttosecondsPerNanosecond int64 = AttosecondsPerMicrosecond / 1000

	// MaxSeconds is the number of seconds at which a time is considered
	// to be Never. Any sum that reaches it saturates to Never.
	MaxSeconds int64 = 1_000_000_000
)

// Time is a point (or a span) of virtual time. The zero value is Zero.
type Time struct {
	seconds     int64
	attoseconds int64 // always within [0, AttosecondsPerSecond)
}

var (
	// Zero is the beginning of time.
	Zero = Time{}
	// Never is a time that will never be reached. It compares greater
	// than every finite time.
	Never = Time{seconds: MaxSeconds}
)

// New returns a Time made of the given seconds and attoseconds. The
// attoseconds may be out of range; they are normalised into seconds.
func New(seconds, attoseconds int64) Time {
	return normalise(seconds, attoseconds)
}

// FromAttoseconds returns a Time of the given number of attoseconds.
func FromAttoseconds(as int64) Time {
	return normalise(0, as)
}

// FromNsec returns a Time of the given number of nanoseconds.
func FromNsec(ns int64) Time {
	return normalise(ns/1_000_000_000, (ns%1_000_000_000)*AttosecondsPerNanosecond)
}

// FromUsec returns a Time of the given number of microseconds.
func FromUsec(us int64) Time {
	return normalise(us/1_000_000, (us%1_000_000)*AttosecondsPerMicrosecond)
}

// FromMsec returns a Time of the given number of milliseconds.
func FromMsec(ms int64) Time {
	return normalise(ms/1000, (ms%1000)*AttosecondsPerMillisecond)
}

// FromHz returns the period of one cycle of a clock running at hz.
// A clock of 0 Hz never ticks.
func FromHz(hz uint64) Time {
	if hz == 0 {
		return Never
	}
	if hz == 1 {
		return Time{seconds: 1}
	}
	return Time{attoseconds: AttosecondsPerSecond / int64(hz)}
}

// FromSeconds converts a floating point number of seconds. It is
// intended for configuration values, not for time arithmetic.
func FromSeconds(s float64) Time {
	if s >= float64(MaxSeconds) || math.IsInf(s, 1) {
		return Never
	}
	whole := math.Floor(s)
	return normalise(int64(whole), int64((s-whole)*float64(AttosecondsPerSecond)))
}

func normalise(seconds, attoseconds int64) Time {
	seconds += attoseconds / AttosecondsPerSecond
	attoseconds %= AttosecondsPerSecond
	if attoseconds < 0 {
		attoseconds += AttosecondsPerSecond
		seconds--
	}
	if seconds >= MaxSeconds {
		return Never
	}
	return Time{seconds: seconds, attoseconds: attoseconds}
}

// Seconds returns the whole seconds of t.
func (t Time) Seconds() int64 { return t.seconds }

// Attoseconds returns the fractional part of t, in attoseconds.
func (t Time) Attoseconds() int64 { return t.attoseconds }

// IsNever returns true if t is Never.
func (t Time) IsNever() bool { return t.seconds >= MaxSeconds }

// IsZero returns true if t is Zero.
func (t Time) IsZero() bool { return t.seconds == 0 && t.attoseconds == 0 }

// Add returns t+u. If either operand is Never, or the sum is too large
// to represent, the result is Never.
func (t Time) Add(u Time) Time {
	if t.IsNever() || u.IsNever() {
		return Never
	}
	return normalise(t.seconds+u.seconds, t.attoseconds+u.attoseconds)
}

// AddSubseconds returns t+s. A saturated span yields Never.
func (t Time) AddSubseconds(s Subseconds) Time {
	if t.IsNever() || s == MaxSubseconds {
		return Never
	}
	return normalise(t.seconds, t.attoseconds+int64(s))
}

// Sub returns the span t-u. Subtracting from Never yields Never; the
// result of subtracting Never from a finite time is Zero.
func (t Time) Sub(u Time) Time {
	if t.IsNever() {
		return Never
	}
	if u.IsNever() {
		return Zero
	}
	return normalise(t.seconds-u.seconds, t.attoseconds-u.attoseconds)
}

// Mul returns t multiplied by n.
func (t Time) Mul(n uint32) Time {
	if t.IsNever() {
		return Never
	}
	if n == 0 {
		return Zero
	}
	// split attoseconds to avoid overflowing int64
	hi, lo := t.attoseconds/1_000_000_000, t.attoseconds%1_000_000_000
	lo *= int64(n)
	hi *= int64(n)
	seconds := t.seconds*int64(n) + hi/1_000_000_000
	return normalise(seconds, (hi%1_000_000_000)*1_000_000_000+lo)
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal
// to, or after u.
func (t Time) Compare(u Time) int {
	switch {
	case t.seconds < u.seconds:
		return -1
	case t.seconds > u.seconds:
		return 1
	case t.attoseconds < u.attoseconds:
		return -1
	case t.attoseconds > u.attoseconds:
		return 1
	}
	return 0
}

// Before returns true if t is strictly before u.
func (t Time) Before(u Time) bool {
	return t.seconds < u.seconds || (t.seconds == u.seconds && t.attoseconds < u.attoseconds)
}

// After returns true if t is strictly after u.
func (t Time) After(u Time) bool {
	return u.Before(t)
}

// AsSubseconds returns t as a Subseconds span, saturating at
// MaxSubseconds (and MinSubseconds for negative spans).
func (t Time) AsSubseconds() Subseconds {
	if t.IsNever() {
		return MaxSubseconds
	}
	if t.seconds > maxSubsecondSeconds ||
		(t.seconds == maxSubsecondSeconds && t.attoseconds > int64(MaxSubseconds)-maxSubsecondSeconds*AttosecondsPerSecond) {
		return MaxSubseconds
	}
	if t.seconds < -maxSubsecondSeconds {
		return MinSubseconds
	}
	return Subseconds(t.seconds*AttosecondsPerSecond + t.attoseconds)
}

// AsCycles returns the number of whole cycles of a clock running at hz
// that fit in t.
func (t Time) AsCycles(hz uint64) uint64 {
	if t.IsNever() || t.seconds < 0 || hz == 0 {
		return 0
	}
	if hz > uint64(AttosecondsPerSecond) {
		hz = uint64(AttosecondsPerSecond)
	}
	return uint64(t.seconds)*hz + uint64(t.attoseconds/(AttosecondsPerSecond/int64(hz)))
}

// Float returns t in seconds as a float64. Never returns +Inf.
func (t Time) Float() float64 {
	if t.IsNever() {
		return math.Inf(1)
	}
	return float64(t.seconds) + float64(t.attoseconds)/float64(AttosecondsPerSecond)
}

func (t Time) String() string {
	if t.IsNever() {
		return "never"
	}
	return fmt.Sprintf("%d.%018d", t.seconds, t.attoseconds)
}

// Min returns the earlier of a and b.
func Min(a, b Time) Time {
	if b.Before(a) {
		return b
	}
	return a
}

// Max returns the later of a and b.
func Max(a, b Time) Time {
	if a.Before(b) {
		return b
	}
	return a
}
