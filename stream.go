package callbridge

import (
	"sync/atomic"
)

type (
	// StreamItemFunc is the per-item callback slot for a stream proxy. It is
	// invoked once per delivered item, on a runtime goroutine. The return
	// value is the flow-control decision:
	//
	// Returning false ("don't hold") causes the proxy to immediately arm the
	// next read, on the same goroutine - an arbitrary number of items may be
	// delivered back-to-back before the consumer sees any of them. The item
	// must be consumed via the callback argument; slot access in this path
	// is only safe from the handler's own goroutine.
	//
	// Returning true ("hold") suspends further reads, and places the call on
	// hold: no further event, including the terminal one, fires until the
	// consumer calls TakeResponse. This is required whenever the consumer
	// reads back through TakeResponse from a different goroutine than the
	// one executing the callback.
	StreamItemFunc[Request, T any] func(proxy *Stream[Request, T], item T) bool

	// StreamEndFunc is the end-of-stream callback slot for a stream proxy,
	// invoked once when the stream ends: no more items will be delivered,
	// but the call itself is not yet terminal. Per-item errors cutting the
	// stream short surface here, distinct from the terminal completion.
	StreamEndFunc[Request, T any] func(proxy *Stream[Request, T])

	// StreamDoneFunc is the terminal completion slot for a stream proxy,
	// invoked exactly once, after the stream has ended, carrying the final
	// status for the whole call. Same constraints as UnaryDoneFunc: schedule
	// consumer-side work, nothing more.
	StreamDoneFunc[Request, T any] func(proxy *Stream[Request, T], status Status)

	// StreamCallbacks are the available callback slots for a stream proxy.
	StreamCallbacks[Request, T any] struct {
		// Item is the per-item flow-control slot, see StreamItemFunc. A nil
		// Item behaves as if it returned false (items are discarded).
		Item StreamItemFunc[Request, T]
		// End is the end-of-stream slot, see StreamEndFunc. May be nil.
		End StreamEndFunc[Request, T]
		// Done is the terminal completion slot, see StreamDoneFunc. May be
		// nil.
		Done StreamDoneFunc[Request, T]
	}

	// Stream wraps one server-streaming call: one request, zero or more
	// items delivered over time, then completion. Instances must be
	// initialized using the StartStream factory, are not reusable across
	// calls, and must not be copied.
	//
	// State machine: reading <-> held -> draining -> done. Once draining or
	// done is entered, no further read is ever armed, even if TakeResponse
	// is called concurrently - the resume action is gated on the state
	// transition, which is one-way past held.
	Stream[Request, T any] struct {
		cbs       StreamCallbacks[Request, T]
		status    Status
		slot      ResponseSlot[T]
		call      atomic.Pointer[StreamCall]
		state     atomic.Int32
		cancelled atomic.Bool
	}
)

const (
	streamReading int32 = iota // awaiting the next item, or stream end
	streamHeld                 // item pending consumption, delivery on hold
	streamDraining             // stream ended, call not yet terminal
	streamDone                 // terminal event delivered
)

// StartStream constructs a stream proxy, and begins the call via starter,
// arming the first read, returning immediately. Errors starting the call are
// returned directly, in which case no events will fire. A nil starter will
// cause a panic.
func StartStream[Request, T any](starter StreamStarter[Request, T], request Request, callbacks StreamCallbacks[Request, T]) (*Stream[Request, T], error) {
	if starter == nil {
		panic(`callbridge: nil starter`)
	}
	x := &Stream[Request, T]{cbs: callbacks}
	if err := starter(request, x); err != nil {
		return nil, err
	}
	return x, nil
}

// OnStart implements StreamEvents, binding the call handle. It is for the
// runtime adapter, not the application.
func (x *Stream[Request, T]) OnStart(call StreamCall) {
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

// OnRead implements StreamEvents, delivering stream events. It is for the
// runtime adapter, not the application.
func (x *Stream[Request, T]) OnRead(item T, ok bool) {
	if !ok {
		// stream end: reads are permanently disabled from this point
		x.state.Store(streamDraining)
		if x.cbs.End != nil {
			x.cbs.End(x)
		}
		return
	}

	call := x.mustCall()

	// The hold is placed before the item callback runs: the callback's
	// schedule may be processed by the owner context, and reach
	// TakeResponse, before this handler returns. Were the hold placed
	// after, that TakeResponse could release a hold not yet added.
	x.slot.set(item)
	x.state.Store(streamHeld)
	call.AddHold()

	if x.cbs.Item != nil && x.cbs.Item(x, item) {
		return
	}

	// don't hold: discard anything unconsumed, re-arm, release, all on this
	// goroutine. The state swap fails if the callback itself already took
	// the item and resumed.
	if x.state.CompareAndSwap(streamHeld, streamReading) {
		if x.slot.Ready() {
			var discard T
			x.slot.Take(&discard)
		}
		call.StartRead()
		call.RemoveHold()
	}
}

// OnCompletion implements StreamEvents, delivering the terminal event. It is
// for the runtime adapter, not the application.
func (x *Stream[Request, T]) OnCompletion(status Status) {
	if x.state.Load() == streamDone {
		panic(`callbridge: stream completion delivered twice`)
	}
	x.status = status
	x.state.Store(streamDone)
	if x.cbs.Done != nil {
		x.cbs.Done(x, status)
	}
}

// TryCancel sends a best-effort out-of-band cancel to the call, per
// Unary.TryCancel.
func (x *Stream[Request, T]) TryCancel() {
	x.cancelled.Store(true)
	if call := x.call.Load(); call != nil {
		(*call).Cancel()
	}
}

// Completed reports whether the terminal event has been delivered.
func (x *Stream[Request, T]) Completed() bool { return x.state.Load() == streamDone }

// TakeResponse transfers the buffered item into out, zeroing the source, and
// returns true, or returns false, leaving out untouched, if no item is
// pending. If and only if the call is currently held, taking the item also
// arms the next read and releases the hold, as one unit, resuming delivery.
//
// The resume is gated on the held state, which transitions one-way to
// draining once the stream ends - a read is never armed after that point,
// even if TakeResponse races the stream end.
func (x *Stream[Request, T]) TakeResponse(out *T) bool {
	if !x.slot.Take(out) {
		return false
	}
	if x.state.CompareAndSwap(streamHeld, streamReading) {
		call := x.mustCall()
		call.StartRead()
		call.RemoveHold()
	}
	return true
}

// Status returns the terminal status. Calling it before completion is a
// usage error, and will cause a panic.
func (x *Stream[Request, T]) Status() Status {
	if x.state.Load() != streamDone {
		panic(`callbridge: status before completion`)
	}
	return x.status
}

func (x *Stream[Request, T]) mustCall() StreamCall {
	call := x.call.Load()
	if call == nil {
		panic(`callbridge: call not started`)
	}
	return *call
}
