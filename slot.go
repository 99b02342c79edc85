package callbridge

import (
	"sync/atomic"
)

// ResponseSlot is a single-value transfer cell, bridging a single writer (a
// runtime goroutine, delivering a response) and a single reader (the owner
// context, consuming it). Access is synchronized exclusively through the
// write-once/read-once protocol: the writer may only store while the slot is
// empty, and the reader may only take while it is ready. No mutex is
// involved.
//
// The zero value is an empty slot, ready for use. A ResponseSlot must not be
// copied after first use.
type ResponseSlot[T any] struct {
	value T
	ready atomic.Bool
}

// Ready reports whether a value is pending consumption.
func (x *ResponseSlot[T]) Ready() bool { return x.ready.Load() }

// set stores a value, marking the slot ready. Only the runtime-side event
// handlers write to the slot, and never while a prior value remains
// unconsumed, which this enforces.
func (x *ResponseSlot[T]) set(value T) {
	if x.ready.Load() {
		panic(`callbridge: response slot overwrite before consume`)
	}
	x.value = value
	x.ready.Store(true)
}

// Take transfers the stored value into out, zeroing the source and clearing
// the readiness flag. If no value is pending, it returns false, leaving out
// untouched. Providing a nil out will cause a panic.
func (x *ResponseSlot[T]) Take(out *T) bool {
	if out == nil {
		panic(`callbridge: nil take target`)
	}
	if !x.ready.Load() {
		return false
	}
	var zero T
	*out = x.value
	x.value = zero
	x.ready.Store(false)
	return true
}
