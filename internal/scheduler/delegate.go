package scheduler

import (
	"golang.org/x/exp/constraints"
)

// Delegate is the single calling convention used for every timer
// callback. Callbacks with other shapes are adapted to it with one of
// the helpers below, which capture the typed function in a closure.
type Delegate func(t *Instance)

// TimerID identifies one of several timers sharing a DeviceTimer
// callback. It travels in the third parameter of the instance.
type TimerID uint32

// Func0 adapts a callback that takes no parameters.
func Func0(fn func()) Delegate {
	return func(*Instance) {
		fn()
	}
}

// Param adapts a callback taking parameter 0, converted to T.
func Param[T constraints.Integer](fn func(T)) Delegate {
	return func(t *Instance) {
		fn(T(t.param[0]))
	}
}

// PtrParam adapts a callback taking the user pointer of the callback
// and parameter 0.
func PtrParam[T constraints.Integer](fn func(ptr any, param T)) Delegate {
	return func(t *Instance) {
		fn(t.Ptr(), T(t.param[0]))
	}
}

// Params2 adapts a callback taking parameters 0 and 1.
func Params2[T, U constraints.Integer](fn func(T, U)) Delegate {
	return func(t *Instance) {
		fn(T(t.param[0]), U(t.param[1]))
	}
}

// Params3 adapts a callback taking all three parameters.
func Params3[T, U, V constraints.Integer](fn func(T, U, V)) Delegate {
	return func(t *Instance) {
		fn(T(t.param[0]), U(t.param[1]), V(t.param[2]))
	}
}

// DeviceTimer adapts the classic device timer shape, where one method
// services several timers distinguished by id (parameter 2), with an
// integer argument (parameter 0) and the callback's user pointer.
func DeviceTimer(fn func(t *Instance, id TimerID, param int32, ptr any)) Delegate {
	return func(t *Instance) {
		fn(t, TimerID(t.param[2]), int32(t.param[0]), t.Ptr())
	}
}
