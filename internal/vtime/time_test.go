package vtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTime_Never(t *testing.T) {
	assert.True(t, Never.IsNever())
	assert.True(t, Never.After(New(MaxSeconds-1, AttosecondsPerSecond-1)))
	assert.True(t, Never.Add(FromMsec(1)).IsNever())
	assert.True(t, FromMsec(1).Add(Never).IsNever())
	assert.True(t, New(MaxSeconds-1, 0).Add(New(1, 0)).IsNever(), "overflowing sum must saturate")
	assert.False(t, New(MaxSeconds-2, 0).Add(New(1, 0)).IsNever())
	assert.Equal(t, Zero, FromMsec(5).Sub(Never))
	assert.Equal(t, "never", Never.String())
}

func TestTime_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Time
		want Time
	}{
		{"carry", New(1, AttosecondsPerSecond-1).Add(FromAttoseconds(2)), New(2, 1)},
		{"borrow", New(2, 0).Sub(FromAttoseconds(1)), New(1, AttosecondsPerSecond-1)},
		{"msec", FromMsec(1500), New(1, AttosecondsPerSecond/2)},
		{"usec", FromUsec(2_000_001), New(2, AttosecondsPerMicrosecond)},
		{"nsec", FromNsec(3), FromAttoseconds(3 * AttosecondsPerNanosecond)},
		{"hz", FromHz(4), FromMsec(250)},
		{"mul", FromMsec(250).Mul(6), FromMsec(1500)},
		{"mul zero", FromMsec(250).Mul(0), Zero},
		{"subseconds", FromMsec(10).AddSubseconds(FromMsec(5).AsSubseconds()), FromMsec(15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestTime_Ordering(t *testing.T) {
	a, b := FromMsec(10), FromMsec(11)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(FromMsec(10)))
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
	assert.True(t, FromMsec(-1).Before(Zero))
}

func TestTime_AsSubseconds(t *testing.T) {
	assert.Equal(t, MaxSubseconds, Never.AsSubseconds())
	assert.Equal(t, MaxSubseconds, New(20, 0).AsSubseconds())
	assert.Equal(t, Subseconds(AttosecondsPerMillisecond), FromMsec(1).AsSubseconds())
	assert.Equal(t, FromMsec(3), FromMsec(3).AsSubseconds().Time())
	assert.True(t, MaxSubseconds.Time().IsNever())
	assert.True(t, FromMsec(1).AddSubseconds(MaxSubseconds).IsNever())
}

func TestTime_AsCycles(t *testing.T) {
	assert.Equal(t, uint64(4_194_304), New(1, 0).AsCycles(4_194_304))
	assert.Equal(t, uint64(0), Never.AsCycles(1000))
	assert.Equal(t, uint64(5), FromMsec(5).AsCycles(1000))
}
