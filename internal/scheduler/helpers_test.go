package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thelolagemann/devsched/internal/vtime"
)

func ms(n int64) vtime.Time {
	return vtime.FromMsec(n)
}

// testUnit runs straight to its target unless run is set.
type testUnit struct {
	name    string
	clock   uint64
	targets []vtime.Time
	run     func(target vtime.Time) vtime.Time
}

func (u *testUnit) Name() string { return u.name }

func (u *testUnit) Clock() uint64 { return u.clock }

func (u *testUnit) RunUntil(target vtime.Time) vtime.Time {
	u.targets = append(u.targets, target)
	if u.run != nil {
		return u.run(target)
	}
	return target
}

type testDevice string

func (d testDevice) Tag() string { return string(d) }

// fireLog records the virtual time of every firing of a callback.
type fireLog struct {
	s     *Scheduler
	times []vtime.Time
	names []string
}

func (l *fireLog) delegate(name string) Delegate {
	return func(*Instance) {
		l.times = append(l.times, l.s.Time())
		l.names = append(l.names, name)
	}
}

// activeSnapshot returns the (expire, params, callback) tuples of the
// active list, in order.
type activeEntry struct {
	Expire   vtime.Time
	Params   [3]uint64
	Callback string
}

func activeSnapshot(s *Scheduler) []activeEntry {
	var out []activeEntry
	s.ActiveTimers(func(t *Instance) bool {
		cb := t.callback
		if cb.persistent != nil {
			cb = &cb.persistent.callback
		}
		out = append(out, activeEntry{t.expire, t.param, cb.uniqueID})
		return true
	})
	return out
}

func requireSorted(t *testing.T, s *Scheduler) {
	t.Helper()
	prev := vtime.Time{}
	first := true
	count := 0
	s.ActiveTimers(func(i *Instance) bool {
		if !first {
			require.False(t, i.expire.Before(prev), "active list out of order: %s after %s", i.expire, prev)
		}
		require.True(t, i.active)
		prev, first = i.expire, false
		count++
		return true
	})
	require.Equal(t, s.ActiveCount(), count)
	require.Equal(t, s.head.expire, s.FirstTimerExpire())
}
