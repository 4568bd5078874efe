package scheduler

import (
	"github.com/thelolagemann/devsched/internal/vtime"
)

// The active list is a doubly linked list of instances sorted by
// expiration time. It always ends with s.tail, a sentinel that expires
// Never, so neither insertion nor removal has to handle an empty list.
// Instances expiring at the same time stay in insertion order.

// allocInstance returns an instance from the free list, growing the
// pool when it is empty.
func (s *Scheduler) allocInstance() *Instance {
	s.stats.InstanceAllocs++
	t := s.free
	if t == nil {
		s.stats.InstanceAllocsFull++
		s.poolSize++
		return &Instance{}
	}
	s.free = t.next
	t.next = nil
	return t
}

// reclaimInstance returns a transient instance to the free list.
func (s *Scheduler) reclaimInstance(t *Instance) {
	if t.active {
		s.unlink(t)
	}
	t.callback = nil
	t.param = [3]uint64{}
	t.prev = nil
	t.next = s.free
	s.free = t
}

// insertInstance (re)schedules t to fire at expire. An instance that is
// already active is moved.
func (s *Scheduler) insertInstance(t *Instance, start, expire vtime.Time) {
	if t.active {
		s.unlink(t)
	}
	t.start = start
	t.expire = expire

	last := s.tail.prev
	switch {
	case last == nil || !expire.Before(last.expire):
		// most timers are scheduled further out than everything else
		s.stats.InsertTail++
		s.linkBefore(t, &s.tail)
	case expire.Before(s.head.expire):
		s.stats.InsertHead++
		s.linkBefore(t, s.head)
	default:
		s.stats.InsertMiddle++

		// scan from whichever end is closer in time; expire is known
		// to lie within [head, last)
		if expire.Sub(s.head.expire).Before(last.expire.Sub(expire)) {
			n := s.head.next
			for !expire.Before(n.expire) {
				n = n.next
			}
			s.linkBefore(t, n)
		} else {
			n := last
			for expire.Before(n.prev.expire) {
				n = n.prev
			}
			s.linkBefore(t, n)
		}
	}

	if s.head == t {
		s.firstTimerExpire.set(expire)

		// a unit running right now was told to run past this
		if s.executing != nil {
			s.AbortTimeslice()
		}
	}
}

// removeInstance unlinks t from the active list. It returns false, and
// does nothing, if t was not active.
func (s *Scheduler) removeInstance(t *Instance) bool {
	if !t.active {
		return false
	}
	s.stats.Removes++
	s.unlink(t)
	return true
}

func (s *Scheduler) linkBefore(t, n *Instance) {
	t.next = n
	t.prev = n.prev
	if n.prev != nil {
		n.prev.next = t
	} else {
		s.head = t
	}
	n.prev = t
	t.active = true
	s.activeCount++
}

func (s *Scheduler) unlink(t *Instance) {
	wasHead := s.head == t
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		s.head = t.next
	}
	t.next.prev = t.prev
	t.next, t.prev = nil, nil
	t.active = false
	s.activeCount--

	if wasHead {
		s.firstTimerExpire.set(s.head.expire)
	}
}

// ActiveTimers calls fn for every active instance in firing order,
// until fn returns false.
func (s *Scheduler) ActiveTimers(fn func(t *Instance) bool) {
	for t := s.head; t != &s.tail; t = t.next {
		if !fn(t) {
			return
		}
	}
}

// ActiveCount returns the number of active instances.
func (s *Scheduler) ActiveCount() int {
	return s.activeCount
}

// FirstTimerExpire returns the expiration time of the next instance to
// fire, or Never.
func (s *Scheduler) FirstTimerExpire() vtime.Time {
	return s.head.expire
}
