// Package script runs Lua scripts against a machine. A script may define
//
//	function on_frame(snap) ... end
//
// which is called at the end of every frame with a table describing the
// machine. Returning false from on_frame stops the run. Scripts can call
// log(msg) to write through the machine's logger.
package script

import (
	"errors"
	"fmt"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/pkg/log"
	lua "github.com/yuin/gopher-lua"
)

// ErrStopped is returned by Err when the script asked to stop.
var ErrStopped = errors.New("script: stopped by on_frame")

// Script is a loaded Lua script. It is not safe for concurrent use; the
// machine calls OnFrame from its own goroutine.
type Script struct {
	L       *lua.LState
	log     log.Logger
	onFrame lua.LValue
	err     error
}

func newScript(logger log.Logger) *Script {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	s := &Script{L: lua.NewState(), log: logger}
	s.L.SetGlobal("log", s.L.NewFunction(func(L *lua.LState) int {
		s.log.Infof("script: %s", L.CheckString(1))
		return 0
	}))
	return s
}

// Load runs the script at path.
func Load(path string, logger log.Logger) (*Script, error) {
	s := newScript(logger)
	if err := s.L.DoFile(path); err != nil {
		s.Close()
		return nil, fmt.Errorf("script: loading %s: %w", path, err)
	}
	s.bind()
	return s, nil
}

// LoadString runs the script held in src.
func LoadString(src string, logger log.Logger) (*Script, error) {
	s := newScript(logger)
	if err := s.L.DoString(src); err != nil {
		s.Close()
		return nil, fmt.Errorf("script: %w", err)
	}
	s.bind()
	return s, nil
}

func (s *Script) bind() {
	if fn := s.L.GetGlobal("on_frame"); fn.Type() == lua.LTFunction {
		s.onFrame = fn
	}
}

// OnFrame calls on_frame with snap. Once the script has stopped or
// failed, further frames are ignored.
func (s *Script) OnFrame(snap machine.Snapshot) {
	if s.onFrame == nil || s.err != nil {
		return
	}

	if err := s.L.CallByParam(lua.P{
		Fn:      s.onFrame,
		NRet:    1,
		Protect: true,
	}, s.table(snap)); err != nil {
		s.err = fmt.Errorf("script: on_frame: %w", err)
		s.log.Errorf("%v", s.err)
		return
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)
	if ret == lua.LFalse {
		s.err = ErrStopped
	}
}

// Done returns true once the script has stopped or failed.
func (s *Script) Done() bool { return s.err != nil }

// Err returns the reason the script is done, or nil.
func (s *Script) Err() error { return s.err }

// Close releases the Lua state.
func (s *Script) Close() { s.L.Close() }

func (s *Script) table(snap machine.Snapshot) *lua.LTable {
	L := s.L
	t := L.NewTable()
	L.SetField(t, "frame", lua.LNumber(snap.Frame))
	L.SetField(t, "time", lua.LNumber(snap.Time))
	L.SetField(t, "quantum", lua.LNumber(snap.Quantum))
	L.SetField(t, "timeslices", lua.LNumber(snap.Scheduler.Timeslices))
	L.SetField(t, "timers", lua.LNumber(snap.Scheduler.TimersExecuted))
	L.SetField(t, "active", lua.LNumber(snap.Scheduler.ActiveTimers))

	latch := L.NewTable()
	L.SetField(latch, "writes", lua.LNumber(snap.Latch.Writes))
	L.SetField(latch, "reads", lua.LNumber(snap.Latch.Reads))
	L.SetField(latch, "overruns", lua.LNumber(snap.Latch.Overruns))
	L.SetField(latch, "delta", lua.LNumber(snap.Latch.Delta))
	L.SetField(t, "latch", latch)

	units := L.NewTable()
	for _, u := range snap.Units {
		ut := L.NewTable()
		L.SetField(ut, "name", lua.LString(u.Name))
		L.SetField(ut, "clock", lua.LNumber(u.Clock))
		L.SetField(ut, "cycles", lua.LNumber(u.Cycles))
		L.SetField(ut, "suspended", lua.LBool(u.Suspended))
		units.Append(ut)
	}
	L.SetField(t, "units", units)
	return t
}
