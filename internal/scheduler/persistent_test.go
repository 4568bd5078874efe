package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thelolagemann/devsched/internal/vtime"
)

func TestPersistentTimer_PeriodicDoesNotDrift(t *testing.T) {
	s := New()
	l := &fireLog{s: s}
	var p PersistentTimer
	p.Init(s, l.delegate("tick"), "tick")
	p.Adjust(ms(10), 0, ms(10))
	require.True(t, p.Periodic())

	// slice sizes that never line up with the period
	sizes := []int64{3, 7, 11, 9}
	for i := 0; s.Time().Before(ms(30)); i++ {
		s.Timeslice(ms(sizes[i%len(sizes)]).AsSubseconds())
	}

	assert.Equal(t, []vtime.Time{ms(10), ms(20), ms(30)}, l.times)
	assert.Equal(t, ms(30), p.Start())
	assert.Equal(t, ms(40), p.Expire())
	assert.True(t, p.Enabled())
}

func TestPersistentTimer_SetPeriodInCallback(t *testing.T) {
	s := New()
	l := &fireLog{s: s}
	var p PersistentTimer
	first := true
	p.Init(s, func(i *Instance) {
		l.delegate("tick")(i)
		if first {
			first = false
			p.SetPeriod(ms(5))
		}
	}, "tick")
	p.Adjust(ms(10), 0, ms(10))

	s.RunUntil(ms(30))
	// the firing at 20 was fixed before the period changed
	assert.Equal(t, []vtime.Time{ms(10), ms(20), ms(25), ms(30)}, l.times)
}

func TestPersistentTimer_AdjustInCallback(t *testing.T) {
	s := New()
	l := &fireLog{s: s}
	var p PersistentTimer
	first := true
	p.Init(s, func(i *Instance) {
		l.delegate("tick")(i)
		if first {
			first = false
			p.Adjust(ms(3), 0, ms(5))
		}
	}, "tick")
	p.Adjust(ms(10), 0, ms(10))

	s.RunUntil(ms(30))
	assert.Equal(t, []vtime.Time{ms(10), ms(13), ms(18), ms(23), ms(28)}, l.times)
}

func TestPersistentTimer_DisableInCallback(t *testing.T) {
	s := New()
	calls := 0
	var p PersistentTimer
	p.Init(s, Func0(func() {
		calls++
		assert.True(t, p.Disable())
	}), "once")
	p.Adjust(ms(10), 0, ms(10))

	s.RunUntil(ms(50))
	assert.Equal(t, 1, calls)
	assert.False(t, p.Enabled())
	assert.Equal(t, 0, s.ActiveCount())
}

func TestPersistentTimer_EnableDisable(t *testing.T) {
	s := New()
	l := &fireLog{s: s}
	var p PersistentTimer
	p.Init(s, l.delegate("p"), "p")

	assert.False(t, p.Enabled())
	p.Adjust(ms(10), 7, vtime.Never)
	assert.True(t, p.Enabled())
	assert.False(t, p.Periodic())

	assert.True(t, p.Disable())
	assert.False(t, p.Disable())
	assert.False(t, p.Instance().Active())

	s.RunUntil(ms(5))
	assert.False(t, p.Enable(true))
	assert.True(t, p.Enable(true))
	assert.Equal(t, ms(10), p.Expire())

	s.RunUntil(ms(20))
	assert.Equal(t, []vtime.Time{ms(10)}, l.times)
	assert.Equal(t, uint64(7), p.Param(0))
	assert.False(t, p.Enabled())
}

func TestPersistentTimer_AdjustNever(t *testing.T) {
	s := New()
	var p PersistentTimer
	p.Init(s, Func0(func() { t.Fatal("fired") }), "never")
	p.Adjust(ms(10), 0, ms(10))
	p.Adjust(vtime.Never, 3, vtime.Never)

	assert.False(t, p.Enabled())
	assert.False(t, p.Instance().Active())
	assert.True(t, p.Expire().IsNever())
	assert.Equal(t, uint64(3), p.Param(0))
	s.RunFor(ms(100))
}

func TestPersistentTimer_NegativeDelayFiresNow(t *testing.T) {
	s := New()
	l := &fireLog{s: s}
	var p PersistentTimer
	p.Init(s, l.delegate("p"), "p")
	s.RunUntil(ms(5))

	p.Adjust(vtime.Zero.Sub(ms(3)), 0, vtime.Never)
	assert.Equal(t, ms(5), p.Expire())
	s.Timeslice(0)
	assert.Equal(t, []vtime.Time{ms(5)}, l.times)
}

func TestPersistentTimer_Reset(t *testing.T) {
	s := New()
	var got []uint64
	var p PersistentTimer
	p.Init(s, Param(func(v uint64) { got = append(got, v) }), "reset")
	p.Adjust(ms(10), 42, ms(10))

	s.RunUntil(ms(4))
	p.Reset(ms(2))
	assert.Equal(t, ms(6), p.Expire())
	assert.Equal(t, ms(10), p.Period())

	s.RunUntil(ms(16))
	assert.Equal(t, []uint64{42, 42}, got)
}

func TestPersistentTimer_ElapsedRemaining(t *testing.T) {
	s := New()
	var p PersistentTimer
	p.Init(s, Func0(func() {}), "p")
	p.Adjust(ms(10), 0, vtime.Never)

	s.RunUntil(ms(4))
	assert.Equal(t, ms(4), p.Elapsed())
	assert.Equal(t, ms(6), p.Remaining())

	p.Disable()
	p.Adjust(vtime.Never, 0, vtime.Never)
	assert.True(t, p.Remaining().IsNever())
}

func TestPersistentTimer_ZeroPeriodFiresOncePerQuantum(t *testing.T) {
	s := New()
	calls := 0
	var p PersistentTimer
	p.Init(s, Func0(func() { calls++ }), "zero")
	p.Adjust(vtime.Zero, 0, vtime.Zero)

	s.RunFor(ms(50))
	assert.Equal(t, 4, calls)
}

func TestPersistentTimer_RebindAndRelease(t *testing.T) {
	s := New()
	var p PersistentTimer
	p.InitDevice(s, testDevice("video"), Func0(func() {}), "scanline")
	assert.Equal(t, "video/scanline", p.Callback().UniqueID())
	assert.Equal(t, testDevice("video"), p.Callback().Device())
	p.Adjust(ms(1), 0, vtime.Never)

	hash := p.Callback().UniqueHash()
	p.Init(s, Func0(func() {}), "vblank")
	assert.Equal(t, "vblank", p.Callback().UniqueID())
	assert.False(t, p.Instance().Active(), "rebinding cancels the pending firing")
	assert.Nil(t, s.lookupCallback(hash, 0))
	assert.Same(t, p.Callback(), s.lookupCallback(p.Callback().UniqueHash(), 0))

	p.Adjust(ms(1), 0, vtime.Never)
	p.Release()
	assert.Equal(t, 0, s.ActiveCount())
	assert.Nil(t, s.lookupCallback(p.Callback().UniqueHash(), 0))
}

func TestPersistentTimer_SetPtr(t *testing.T) {
	s := New()
	var seen []any
	var p PersistentTimer
	p.Init(s, PtrParam(func(ptr any, v int) { seen = append(seen, ptr, v) }), "ptr")
	p.SetPtr("device")
	p.Adjust(ms(1), 5, ms(1))

	s.RunUntil(ms(1))
	assert.Equal(t, []any{"device", 5}, seen)
	assert.Equal(t, "device", p.Ptr())
}

func TestPersistentTimer_RebindKeepsPtr(t *testing.T) {
	s := New()
	var seen []any
	var p PersistentTimer
	p.Init(s, Func0(func() {}), "ptr")
	p.SetPtr("device")
	p.Init(s, PtrParam(func(ptr any, v int) { seen = append(seen, ptr, v) }), "ptr")
	p.Adjust(ms(1), 3, ms(1))

	s.RunUntil(ms(2))
	assert.Equal(t, []any{"device", 3, "device", 3}, seen)
}

func TestScheduler_TimerAlloc(t *testing.T) {
	s := New()
	calls := 0
	a := s.TimerAlloc(Func0(func() { calls++ }), "alloc", nil)
	b := s.TimerAlloc(Func0(func() { calls++ }), "alloc", nil)
	assert.NotEqual(t, a.Callback().UniqueID(), b.Callback().UniqueID())

	a.Adjust(ms(1), 0, vtime.Never)
	b.Adjust(ms(2), 0, vtime.Never)
	s.RunUntil(ms(2))
	assert.Equal(t, 2, calls)
}
