package callbridge

import (
	"sync"
)

type (
	// stubUnaryCall counts best-effort cancels.
	stubUnaryCall struct {
		mu      sync.Mutex
		cancels int
	}

	// stubUnary drives a Unary proxy the way a runtime would: the terminal
	// event is delivered via complete, on a distinct goroutine.
	stubUnary[T any] struct {
		call   stubUnaryCall
		events UnaryEvents[T]
	}

	// stubStream drives a Stream proxy the way a runtime would: a dedicated
	// goroutine satisfies armed reads from a scripted item list, ending with
	// the end-of-stream event and the configured status, all gated on the
	// hold count. It doubles as the StreamCall handle, instrumented for
	// assertions: reads, cancels, and deliveries are counted, delivery with
	// a hold outstanding is structurally impossible (the wait loop), and an
	// over-armed read or unbalanced hold release panics.
	stubStream[T any] struct {
		mu        sync.Mutex
		cond      sync.Cond
		items     []T
		status    Status
		events    StreamEvents[T]
		done      chan struct{}
		holds     int
		reads     int // total reads armed
		cancels   int
		delivered int // OnRead(_, true) invocations
		armed     bool
		cancelled bool
	}
)

func (x *stubUnaryCall) Cancel() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.cancels++
}

func (x *stubUnaryCall) count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancels
}

func startStubUnary[Request, T any](x *stubUnary[T]) UnaryStarter[Request, T] {
	return func(request Request, events UnaryEvents[T]) error {
		x.events = events
		events.OnStart(&x.call)
		return nil
	}
}

// complete delivers the terminal event on a distinct goroutine, returning
// once the handler (and therefore the done callback) has run.
func (x *stubUnary[T]) complete(status Status, response T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		x.events.OnCompletion(status, response)
	}()
	<-done
}

func newStubStream[T any](items []T, status Status) *stubStream[T] {
	x := &stubStream[T]{
		items:  items,
		status: status,
		done:   make(chan struct{}),
	}
	x.cond.L = &x.mu
	return x
}

func startStubStream[Request, T any](x *stubStream[T]) StreamStarter[Request, T] {
	return func(request Request, events StreamEvents[T]) error {
		x.events = events
		events.OnStart(x)
		x.StartRead()
		go x.run()
		return nil
	}
}

func (x *stubStream[T]) Cancel() {
	x.mu.Lock()
	x.cancelled = true
	x.cancels++
	x.mu.Unlock()
	x.cond.Broadcast()
}

func (x *stubStream[T]) StartRead() {
	x.mu.Lock()
	if x.armed {
		x.mu.Unlock()
		panic(`stub: read already armed`)
	}
	x.armed = true
	x.reads++
	x.mu.Unlock()
	x.cond.Broadcast()
}

func (x *stubStream[T]) AddHold() {
	x.mu.Lock()
	x.holds++
	x.mu.Unlock()
}

func (x *stubStream[T]) RemoveHold() {
	x.mu.Lock()
	if x.holds == 0 {
		x.mu.Unlock()
		panic(`stub: unbalanced remove hold`)
	}
	x.holds--
	x.mu.Unlock()
	x.cond.Broadcast()
}

func (x *stubStream[T]) run() {
	defer close(x.done)
	next := 0
	for {
		x.mu.Lock()
		for !x.cancelled && (!x.armed || x.holds > 0) {
			x.cond.Wait()
		}
		if x.cancelled {
			for x.holds > 0 {
				x.cond.Wait()
			}
			x.mu.Unlock()
			x.events.OnCompletion(StatusCancelled())
			return
		}
		x.armed = false
		if next < len(x.items) {
			item := x.items[next]
			next++
			x.delivered++
			x.mu.Unlock()
			x.events.OnRead(item, true)
			continue
		}
		x.mu.Unlock()

		var zero T
		x.events.OnRead(zero, false)

		x.mu.Lock()
		for x.holds > 0 {
			x.cond.Wait()
		}
		x.mu.Unlock()
		x.events.OnCompletion(x.status)
		return
	}
}

func (x *stubStream[T]) deliveredCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.delivered
}

func (x *stubStream[T]) readCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.reads
}

func (x *stubStream[T]) cancelCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancels
}
