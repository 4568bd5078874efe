package scheduler

// Stats holds counters collected while the scheduler runs. They are
// cheap to keep and are exposed for the monitor and the profiler.
type Stats struct {
	Timeslices uint64
	UnitRuns   uint64
	Aborts     uint64

	TimersExecuted     uint64
	InsertHead         uint64
	InsertTail         uint64
	InsertMiddle       uint64
	Removes            uint64
	InstanceAllocs     uint64
	InstanceAllocsFull uint64

	QuantumAdds    uint64
	Rebuilds       uint64
	SuspendApplies uint64

	Triggers          uint64
	EmptyTimerCalls   uint64
	TimedTriggerCalls uint64

	ActiveTimers int
	PoolSize     int
	Callbacks    int
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.ActiveTimers = s.activeCount
	st.PoolSize = s.poolSize
	st.Callbacks = len(s.callbacks)
	return st
}
