package vtime

import "math"

// Subseconds is a signed span of attoseconds. It covers a little over
// nine seconds either side of zero, which is plenty for the offsets the
// scheduler keeps relative to its base time. Comparing two Subseconds
// is a single integer compare, where comparing two Times is not.
type Subseconds int64

const (
	// MaxSubseconds is the largest representable span; spans that do
	// not fit saturate to it.
	MaxSubseconds Subseconds = math.MaxInt64
	// MinSubseconds is the smallest representable span.
	MinSubseconds Subseconds = math.MinInt64

	maxSubsecondSeconds = int64(MaxSubseconds) / AttosecondsPerSecond
)

// SubsecondsFromHz returns the period of one cycle of a clock running
// at hz as a Subseconds span.
func SubsecondsFromHz(hz uint64) Subseconds {
	if hz == 0 {
		return MaxSubseconds
	}
	return Subseconds(AttosecondsPerSecond / int64(hz))
}

// Time converts s back to a Time span.
func (s Subseconds) Time() Time {
	if s == MaxSubseconds {
		return Never
	}
	return FromAttoseconds(int64(s))
}
