package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thelolagemann/devsched/internal/types"
	"github.com/thelolagemann/devsched/internal/vtime"
)

// saveRig registers the same set of callbacks on any scheduler, the way
// a machine would on every start.
type saveRig struct {
	l       *fireLog
	tick    PersistentTimer
	oneshot PersistentTimer
	idle    PersistentTimer
	f       TransientTimerFactory
}

func newSaveRig(s *Scheduler) *saveRig {
	r := &saveRig{l: &fireLog{s: s}}
	r.tick.InitDevice(s, testDevice("dev"), r.l.delegate("tick"), "tick")
	r.oneshot.Init(s, r.l.delegate("oneshot"), "oneshot")
	r.idle.Init(s, r.l.delegate("idle"), "idle")
	r.f.Init(s, func(i *Instance) {
		r.l.delegate(fmt.Sprint("f", i.Param(0)))(i)
	}, "f")
	return r
}

func (r *saveRig) configure(s *Scheduler) {
	r.tick.Adjust(ms(4), 0, ms(4))
	r.oneshot.Adjust(ms(7), 9, vtime.Never)
	r.idle.Adjust(ms(6), 0, vtime.Never)
	r.idle.Disable()
	r.f.CallAfter(ms(3), 1)
	r.f.CallAfter(ms(9), 2)
	r.f.CallAfter(ms(9), 3)
	s.RunUntil(ms(5))
}

func TestSave_RoundTrip(t *testing.T) {
	s1 := New()
	r1 := newSaveRig(s1)
	r1.configure(s1)

	st := types.NewState()
	require.NoError(t, s1.Save(st))
	assert.Len(t, s1.SavedRecords(), 5)

	s2 := New()
	r2 := newSaveRig(s2)
	require.NoError(t, s2.Load(types.StateFromBytes(st.Bytes())))

	assert.Equal(t, s1.Time(), s2.Time())
	assert.Equal(t, activeSnapshot(s1), activeSnapshot(s2))
	assert.False(t, r2.idle.Enabled())
	assert.Equal(t, ms(6), r2.idle.Expire())
	assert.True(t, r2.tick.Periodic())
	requireSorted(t, s2)

	// a loaded state saves back to the same bytes
	again := types.NewState()
	require.NoError(t, s2.Save(again))
	assert.Equal(t, st.Bytes(), again.Bytes())

	// and runs the same from there on
	r1.l.times, r1.l.names = nil, nil
	s1.RunUntil(ms(20))
	s2.RunUntil(ms(20))
	assert.Equal(t, r1.l.names, r2.l.names)
	assert.Equal(t, r1.l.times, r2.l.times)
	assert.Equal(t, []string{"oneshot", "tick", "f2", "f3", "tick", "tick", "tick"}, r2.l.names)
}

func TestSave_DisabledTimerComesBack(t *testing.T) {
	s1 := New()
	r1 := newSaveRig(s1)
	r1.configure(s1)

	st := types.NewState()
	require.NoError(t, s1.Save(st))

	s2 := New()
	r2 := newSaveRig(s2)
	require.NoError(t, s2.Load(types.StateFromBytes(st.Bytes())))

	r2.idle.Enable(true)
	s2.Timeslice(0)
	assert.Equal(t, []string{"idle"}, r2.l.names)
	assert.Equal(t, []vtime.Time{ms(6)}, r2.l.times)
}

func TestSave_FixedSize(t *testing.T) {
	empty := types.NewState()
	require.NoError(t, New().Save(empty))

	s := New()
	r := newSaveRig(s)
	r.configure(s)
	full := types.NewState()
	require.NoError(t, s.Save(full))

	assert.Equal(t, TimerBlockSize+4+4+quantumRecordSize, empty.Len())
	assert.Equal(t, empty.Len(), full.Len())
}

func TestSave_Capacity(t *testing.T) {
	s := New()
	var f TransientTimerFactory
	f.Init(s, Func0(func() {}), "many")
	for i := 0; i < MaxSaveInstances; i++ {
		f.CallAfter(ms(int64(i+1)), uint64(i))
	}
	require.True(t, s.CanSave())
	require.NoError(t, s.Presave())
	staged := s.SavedRecords()
	require.Len(t, staged, MaxSaveInstances)

	f.CallAfter(ms(1000), 1000)
	assert.False(t, s.CanSave())
	assert.ErrorIs(t, s.Presave(), ErrSaveCapacity)
	assert.Equal(t, staged, s.SavedRecords(), "a refused save leaves the staged records alone")

	st := types.NewState()
	assert.ErrorIs(t, s.Save(st), ErrSaveCapacity)
	assert.Equal(t, 0, st.Len())
}

func TestSave_RecordsInFiringOrder(t *testing.T) {
	s := New()
	r := newSaveRig(s)
	r.configure(s)
	require.NoError(t, s.Presave())

	recs := s.SavedRecords()
	require.Len(t, recs, 5)
	for i, want := range []struct {
		expire  vtime.Time
		hash    uint32
		enabled uint8
		period  vtime.Time
	}{
		{ms(7), r.oneshot.Callback().UniqueHash(), 1, vtime.Never},
		{ms(8), r.tick.Callback().UniqueHash(), 1, ms(4)},
		{ms(9), r.f.Callback().UniqueHash(), 1, vtime.Never},
		{ms(9), r.f.Callback().UniqueHash(), 1, vtime.Never},
		{ms(6), r.idle.Callback().UniqueHash(), 0, vtime.Never},
	} {
		assert.Equal(t, want.expire, recs[i].Expire, "record %d", i)
		assert.Equal(t, want.hash, recs[i].Hash, "record %d", i)
		assert.Equal(t, want.enabled, recs[i].Enabled, "record %d", i)
		assert.Equal(t, want.period, recs[i].Period, "record %d", i)
	}
	assert.Equal(t, uint64(9), recs[0].Param[0])
	assert.Equal(t, uint64(2), recs[2].Param[0])
	assert.Equal(t, uint64(3), recs[3].Param[0])
}

func TestLoad_UnknownCallback(t *testing.T) {
	s1 := New()
	r1 := newSaveRig(s1)
	r1.configure(s1)
	st := types.NewState()
	require.NoError(t, s1.Save(st))

	// a scheduler that never registered the transient factory
	s2 := New()
	var oneshot PersistentTimer
	oneshot.Init(s2, Func0(func() {}), "oneshot")

	err := s2.Load(types.StateFromBytes(st.Bytes()))
	assert.ErrorIs(t, err, ErrUnknownCallback)
	assert.True(t, oneshot.Enabled())
	assert.Equal(t, ms(7), oneshot.Expire())
	assert.Equal(t, 1, s2.ActiveCount())

	s3 := New(WithDebug())
	assert.Panics(t, func() { _ = s3.Load(types.StateFromBytes(st.Bytes())) })
}

func TestLoad_BadState(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Load(types.StateFromBytes(make([]byte, 10))), ErrStateSize)

	st := types.NewState()
	require.NoError(t, s.Save(st))
	s.AddUnit(&testUnit{name: "cpu"})
	assert.ErrorIs(t, s.Load(types.StateFromBytes(st.Bytes())), ErrStateSize)
}

func TestSave_UnitState(t *testing.T) {
	s1 := New()
	ex := s1.AddUnit(&testUnit{name: "cpu"})
	s1.AddUnit(&testUnit{name: "sound"})
	ex.Suspend(SuspendReasonHalt)
	s1.RunUntil(ms(3))

	st := types.NewState()
	require.NoError(t, s1.Save(st))
	assert.Equal(t, TimerBlockSize+4+2*unitRecordSize+4+quantumRecordSize, st.Len())

	s2 := New()
	ex2 := s2.AddUnit(&testUnit{name: "cpu"})
	snd := s2.AddUnit(&testUnit{name: "sound"})
	require.NoError(t, s2.Load(types.StateFromBytes(st.Bytes())))

	assert.True(t, ex2.Suspended(SuspendReasonHalt))
	assert.False(t, ex2.Runnable())
	assert.Equal(t, ms(3), ex2.LocalTime(), "suspended units keep pace")
	assert.Equal(t, ms(3), snd.LocalTime())
}

func TestSave_BoostSurvives(t *testing.T) {
	s1 := New()
	s1.BoostInterleave(vtime.FromUsec(10), ms(5))
	s1.RunUntil(ms(1))

	st := types.NewState()
	require.NoError(t, s1.Save(st))

	s2 := New()
	require.NoError(t, s2.Load(types.StateFromBytes(st.Bytes())))
	assert.Equal(t, vtime.FromUsec(10), s2.Quantum())

	s2.RunUntil(ms(5))
	s2.Timeslice(0)
	assert.Equal(t, vtime.FromHz(60), s2.Quantum())
}
