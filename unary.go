package callbridge

import (
	"sync/atomic"
)

type (
	// UnaryDoneFunc is the completion callback slot for a unary proxy. It is
	// invoked exactly once, on the runtime goroutine delivering the terminal
	// event. The callback body must not perform expensive work, or call back
	// into the runtime - its only sanctioned action is to schedule
	// consumer-side processing, e.g. via a dispatch.Loop.
	UnaryDoneFunc[Request, T any] func(proxy *Unary[Request, T], status Status)

	// UnaryCallbacks are the available callback slots for a unary proxy.
	UnaryCallbacks[Request, T any] struct {
		// Done is the terminal completion slot, see UnaryDoneFunc. May be
		// nil.
		Done UnaryDoneFunc[Request, T]
	}

	// Unary wraps one unary call: one request, exactly one response, then
	// completion. Instances must be initialized using the StartUnary
	// factory, are not reusable across calls, and must not be copied.
	//
	// The runtime delivers the terminal event via OnCompletion, on a worker
	// goroutine. TakeResponse and Status are owner-context operations, valid
	// only after completion.
	Unary[Request, T any] struct {
		cbs       UnaryCallbacks[Request, T]
		status    Status
		slot      ResponseSlot[T]
		call      atomic.Pointer[Call]
		cancelled atomic.Bool
		completed atomic.Bool
	}
)

// StartUnary constructs a unary proxy, and begins the call via starter,
// returning immediately. Errors starting the call (not to be confused with
// the call failing, which surfaces via Status) are returned directly, in
// which case no events will fire. A nil starter will cause a panic.
func StartUnary[Request, T any](starter UnaryStarter[Request, T], request Request, callbacks UnaryCallbacks[Request, T]) (*Unary[Request, T], error) {
	if starter == nil {
		panic(`callbridge: nil starter`)
	}
	x := &Unary[Request, T]{cbs: callbacks}
	if err := starter(request, x); err != nil {
		return nil, err
	}
	return x, nil
}

// OnStart implements UnaryEvents, binding the call handle. It is for the
// runtime adapter, not the application.
func (x *Unary[Request, T]) OnStart(call Call) {
	if call == nil {
		panic(`callbridge: nil call`)
	}
	if !x.call.CompareAndSwap(nil, &call) {
		panic(`callbridge: call started twice`)
	}
	if x.cancelled.Load() {
		call.Cancel()
	}
}

// OnCompletion implements UnaryEvents, delivering the terminal event. It is
// for the runtime adapter, not the application.
func (x *Unary[Request, T]) OnCompletion(status Status, response T) {
	if x.completed.Load() {
		panic(`callbridge: unary completion delivered twice`)
	}
	x.status = status
	if status.OK() {
		x.slot.set(response)
	}
	x.completed.Store(true)
	if x.cbs.Done != nil {
		x.cbs.Done(x, status)
	}
}

// TryCancel sends a best-effort out-of-band cancel to the call. It is safe
// to call from any goroutine, at any time, any number of times. The goal of
// the signal is to provoke the terminal event - it may race a completion
// already in flight, in which case the call may still resolve OK.
func (x *Unary[Request, T]) TryCancel() {
	x.cancelled.Store(true)
	if call := x.call.Load(); call != nil {
		(*call).Cancel()
	}
}

// Completed reports whether the terminal event has been delivered.
func (x *Unary[Request, T]) Completed() bool { return x.completed.Load() }

// TakeResponse transfers the stored response into out, zeroing the source,
// and returns true, or returns false, leaving out untouched, if no
// successful response is available (e.g. on a failure completion, or if the
// response was already taken). Calling it before completion is a usage
// error, and will cause a panic.
func (x *Unary[Request, T]) TakeResponse(out *T) bool {
	if !x.completed.Load() {
		panic(`callbridge: take response before completion`)
	}
	return x.slot.Take(out)
}

// Status returns the terminal status. Calling it before completion is a
// usage error, and will cause a panic.
func (x *Unary[Request, T]) Status() Status {
	if !x.completed.Load() {
		panic(`callbridge: status before completion`)
	}
	return x.status
}
