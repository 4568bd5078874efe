package scheduler

import (
	"errors"
	"fmt"
	"github.com/thelolagemann/devsched/internal/types"
	"github.com/thelolagemann/devsched/internal/vtime"
)

// MaxSaveInstances is the number of timer records a saved state holds.
// Saved states are fixed in size, so this cannot grow at run time.
const MaxSaveInstances = 512

const (
	timeSize          = 16
	saveRecordSize    = timeSize + timeSize + 3*8 + 4 + 2 + 1 + timeSize
	unitRecordSize    = 4 + 8 + timeSize
	quantumRecordSize = 8 + timeSize

	// TimerBlockSize is the size in bytes of the timer block written by
	// Save: the base time, the record count and every record slot.
	TimerBlockSize = timeSize + 4 + MaxSaveInstances*saveRecordSize
)

var (
	// ErrSaveCapacity is returned when there are more timers to save
	// than a saved state can hold.
	ErrSaveCapacity = errors.New("scheduler: too many active timers to save")
	// ErrUnknownCallback is returned when a saved timer refers to a
	// callback that has not been registered.
	ErrUnknownCallback = errors.New("scheduler: saved timer refers to an unknown callback")
	// ErrStateSize is returned when a saved state does not match the
	// layout expected by the scheduler.
	ErrStateSize = errors.New("scheduler: saved state has the wrong size")
)

// SaveRecord is one saved timer instance. Callbacks are identified by
// their unique hash and save index, never by pointer. Enabled and
// Period only mean something for persistent timers.
type SaveRecord struct {
	Start     vtime.Time
	Expire    vtime.Time
	Param     [3]uint64
	Hash      uint32
	SaveIndex uint16
	Enabled   uint8
	Period    vtime.Time
}

// saveCandidates returns the number of records a save would produce:
// every active instance, plus every disabled persistent timer that has
// been configured.
func (s *Scheduler) saveCandidates() int {
	n := s.activeCount
	for _, c := range s.callbacks {
		if p := c.persistent; p != nil && !p.instance.active && p.modified && !p.enabled {
			n++
		}
	}
	return n
}

// CanSave returns false if the pending timers do not fit in a saved
// state. The caller must then refuse to save.
func (s *Scheduler) CanSave() bool {
	n := s.saveCandidates()
	if n > MaxSaveInstances {
		s.log.Errorf("scheduler: cannot save, %d timers pending (maximum %d)", n, MaxSaveInstances)
		return false
	}
	return true
}

// Presave stages every pending timer into the save area, in firing
// order. If the timers do not fit, nothing is written and
// ErrSaveCapacity is returned.
func (s *Scheduler) Presave() error {
	if !s.CanSave() {
		return ErrSaveCapacity
	}

	n := 0
	for t := s.head; t != &s.tail; t = t.next {
		s.save[n] = s.recordFor(t, 1)
		n++
	}
	for _, c := range s.callbacks {
		if p := c.persistent; p != nil && !p.instance.active && p.modified && !p.enabled {
			s.save[n] = s.recordFor(&p.instance, 0)
			n++
		}
	}
	for i := n; i < s.saveCount; i++ {
		s.save[i] = SaveRecord{}
	}
	s.saveCount = n
	return nil
}

func (s *Scheduler) recordFor(t *Instance, enabled uint8) SaveRecord {
	cb := t.callback
	r := SaveRecord{
		Start:   t.start,
		Expire:  t.expire,
		Param:   t.param,
		Enabled: enabled,
		Period:  vtime.Never,
	}
	if p := cb.persistent; p != nil {
		cb = &p.callback
		r.Period = p.period
	}
	r.Hash = cb.uniqueHash
	r.SaveIndex = cb.saveIndex
	return r
}

// SavedRecords returns a copy of the records staged by the last Presave
// or Load.
func (s *Scheduler) SavedRecords() []SaveRecord {
	return append([]SaveRecord(nil), s.save[:s.saveCount]...)
}

// Postload throws away every pending timer and the free pool, then
// recreates the timers staged in the save area. Records whose callback
// cannot be found are skipped and reported.
func (s *Scheduler) Postload() error {
	// empty the active list
	for t := s.head; t != &s.tail; {
		next := t.next
		s.unlink(t)
		t = next
	}
	s.free = nil
	s.poolSize = 0

	// persistent timers that were not saved come back disabled
	for _, c := range s.callbacks {
		if p := c.persistent; p != nil {
			p.enabled = false
			p.instance.expire = vtime.Never
		}
	}

	var errs []error
	for i := 0; i < s.saveCount; i++ {
		r := &s.save[i]
		cb := s.lookupCallback(r.Hash, r.SaveIndex)
		if !s.assert(cb != nil, "no callback registered for saved timer %08x/%d", r.Hash, r.SaveIndex) {
			errs = append(errs, fmt.Errorf("record %d (%08x/%d): %w", i, r.Hash, r.SaveIndex, ErrUnknownCallback))
			continue
		}

		if p := cb.persistent; p != nil {
			p.restore(r)
			continue
		}

		t := s.allocInstance()
		t.callback = cb
		t.param = r.Param
		s.insertInstance(t, r.Start, r.Expire)
	}

	s.firstTimerExpire.set(s.head.expire)
	return errors.Join(errs...)
}

// restore reinstates the timer from a saved record.
func (p *PersistentTimer) restore(r *SaveRecord) {
	s := p.callback.scheduler
	p.period = r.Period
	p.modified = true
	p.instance.param = r.Param
	p.instance.callback = p.activeCallback()
	p.enabled = r.Enabled != 0
	if p.enabled {
		s.insertInstance(&p.instance, r.Start, r.Expire)
	} else {
		p.instance.start = r.Start
		p.instance.expire = r.Expire
	}
}

// Save writes the scheduler's state: the timer block, which is always
// TimerBlockSize bytes, followed by the suspend state of every unit and
// the scheduling quanta in effect.
func (s *Scheduler) Save(st *types.State) error {
	if err := s.Presave(); err != nil {
		return err
	}

	writeTime(st, s.basetime)
	st.Write32(uint32(s.saveCount))
	for i := range s.save {
		r := &s.save[i]
		writeTime(st, r.Start)
		writeTime(st, r.Expire)
		for _, p := range r.Param {
			st.Write64(p)
		}
		st.Write32(r.Hash)
		st.Write16(r.SaveIndex)
		st.Write8(r.Enabled)
		writeTime(st, r.Period)
	}

	st.Write32(uint32(len(s.executors)))
	for _, ex := range s.executors {
		st.Write32(uint32(ex.nextSuspend))
		st.WriteInt64(int64(ex.trigger))
		writeTime(st, ex.localTime)
	}

	st.Write32(uint32(len(s.quanta)))
	for _, q := range s.quanta {
		st.WriteInt64(int64(q.requested))
		writeTime(st, q.expire)
	}
	return nil
}

// Load reads a state written by Save and restores the timers. Units
// must have been added in the same order as when the state was saved.
func (s *Scheduler) Load(st *types.State) error {
	if err := st.Need(TimerBlockSize + 4); err != nil {
		return fmt.Errorf("%w: %v", ErrStateSize, err)
	}

	basetime := readTime(st)
	count := int(st.Read32())
	if count > MaxSaveInstances {
		return fmt.Errorf("%w: %d records", ErrStateSize, count)
	}
	var records [MaxSaveInstances]SaveRecord
	for i := range records {
		r := &records[i]
		r.Start = readTime(st)
		r.Expire = readTime(st)
		for j := range r.Param {
			r.Param[j] = st.Read64()
		}
		r.Hash = st.Read32()
		r.SaveIndex = st.Read16()
		r.Enabled = st.Read8()
		r.Period = readTime(st)
	}

	units := int(st.Read32())
	if units != len(s.executors) {
		return fmt.Errorf("%w: state has %d units, scheduler has %d", ErrStateSize, units, len(s.executors))
	}
	if err := st.Need(units * unitRecordSize); err != nil {
		return fmt.Errorf("%w: %v", ErrStateSize, err)
	}

	type unitState struct {
		suspend   SuspendReason
		trigger   int
		localTime vtime.Time
	}
	unitStates := make([]unitState, units)
	for i := range unitStates {
		unitStates[i] = unitState{SuspendReason(st.Read32()), int(st.ReadInt64()), readTime(st)}
	}

	if err := st.Need(4); err != nil {
		return fmt.Errorf("%w: %v", ErrStateSize, err)
	}
	nq := int(st.Read32())
	if nq == 0 {
		return fmt.Errorf("%w: no scheduling quantum", ErrStateSize)
	}
	if err := st.Need(nq * quantumRecordSize); err != nil {
		return fmt.Errorf("%w: %v", ErrStateSize, err)
	}
	quanta := make([]quantumSlot, nq)
	for i := range quanta {
		q := &quanta[i]
		q.requested = vtime.Subseconds(st.ReadInt64())
		q.expire = readTime(st)
		q.actual = max(q.requested, s.quantumMinimum)
	}

	s.save = records
	s.saveCount = count
	s.basetime = basetime
	s.quanta = quanta
	for i, ex := range s.executors {
		ex.nextSuspend = unitStates[i].suspend
		ex.trigger = unitStates[i].trigger
		ex.localTime = unitStates[i].localTime
	}
	s.applySuspendChanges()

	return s.Postload()
}

func writeTime(st *types.State, t vtime.Time) {
	st.WriteInt64(t.Seconds())
	st.WriteInt64(t.Attoseconds())
}

func readTime(st *types.State) vtime.Time {
	seconds := st.ReadInt64()
	return vtime.New(seconds, st.ReadInt64())
}
