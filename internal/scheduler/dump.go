package scheduler

import (
	"github.com/bradleyjkemp/memviz"
	"io"
)

// DumpTimers logs the active list, in firing order.
func (s *Scheduler) DumpTimers() {
	s.log.Infof("=============================================")
	s.log.Infof("Timer Dump: Time = %s", s.Time())
	for t := s.head; t != &s.tail; t = t.next {
		s.dumpInstance(t)
	}
	s.log.Infof("=============================================")
}

func (s *Scheduler) dumpInstance(t *Instance) {
	kind := "T"
	if p := t.callback.persistent; p != nil {
		kind = "P"
		if p.Periodic() {
			kind = "R"
		}
	}
	s.log.Infof("%s: %-30s s=%s e=%s p=%d,%d,%d", kind, t.callback, t.start, t.expire, t.param[0], t.param[1], t.param[2])
}

// timerNode mirrors one active instance for graph dumps, without the
// pointers back into the scheduler.
type timerNode struct {
	Callback string
	Start    string
	Expire   string
	Params   [3]uint64
	Next     *timerNode
}

// DumpGraph writes the active list to w as a graphviz digraph.
func (s *Scheduler) DumpGraph(w io.Writer) {
	var head, last *timerNode
	for t := s.head; t != &s.tail; t = t.next {
		n := &timerNode{
			Callback: t.callback.String(),
			Start:    t.start.String(),
			Expire:   t.expire.String(),
			Params:   t.param,
		}
		if last == nil {
			head = n
		} else {
			last.Next = n
		}
		last = n
	}
	memviz.Map(w, head)
}
