package callbridge

type (
	// Call is the handle to an in-flight call, as exposed by the RPC runtime.
	//
	// Implementations are provided by runtime adapters (see the grpcbridge
	// subpackage), or by test stubs.
	Call interface {
		// Cancel requests best-effort termination of the call. It is safe to
		// call from any goroutine, at any time, any number of times,
		// including after the call has already completed (no-op). It does not
		// guarantee the call resolves cancelled - the terminal Status
		// reflects whichever outcome the runtime resolves to.
		Cancel()
	}

	// StreamCall extends Call with explicit read arming and the hold
	// primitive, for server-streaming calls.
	//
	// The runtime must serialize event delivery per call: no two handler
	// invocations for the same call may execute concurrently, and the
	// terminal completion event is always last.
	StreamCall interface {
		Call

		// StartRead arms delivery of the next stream event (an item, or the
		// end of the stream). At most one read may be armed at a time.
		StartRead()

		// AddHold suspends further event delivery for this call, including
		// the terminal event, until a matching RemoveHold. Holds nest.
		AddHold()

		// RemoveHold releases a hold. When releasing from outside the
		// handler's own execution context, the next read must already have
		// been armed, via StartRead.
		RemoveHold()
	}

	// UnaryEvents is the handler contract a unary runtime adapter delivers
	// events to. It is implemented by Unary.
	UnaryEvents[T any] interface {
		// OnStart binds the call handle. The runtime must invoke it
		// synchronously, from the starter, before any other event.
		OnStart(call Call)

		// OnCompletion delivers the single terminal event, on a runtime
		// goroutine. The response is only meaningful if status.OK().
		OnCompletion(status Status, response T)
	}

	// StreamEvents is the handler contract a server-streaming runtime
	// adapter delivers events to. It is implemented by Stream.
	StreamEvents[T any] interface {
		// OnStart binds the call handle. The runtime must invoke it
		// synchronously, from the starter, before any other event.
		OnStart(call StreamCall)

		// OnRead delivers the result of an armed read, on a runtime
		// goroutine. If ok, item is the next item of the stream. Otherwise
		// the stream has ended (item is the zero value), and no further
		// reads will be satisfied, though the call itself is not yet
		// terminal.
		OnRead(item T, ok bool)

		// OnCompletion delivers the single terminal event, on a runtime
		// goroutine, strictly after any OnRead.
		OnCompletion(status Status)
	}

	// UnaryStarter begins an asynchronous unary call, delivering the
	// terminal result to events. It must invoke events.OnStart before it
	// returns without error, and before any other event is delivered. The
	// starter itself must not block.
	UnaryStarter[Request, T any] func(request Request, events UnaryEvents[T]) error

	// StreamStarter begins an asynchronous server-streaming call, delivering
	// events to events. It must invoke events.OnStart before it returns
	// without error, and before any other event is delivered, and it must
	// arm the first read. The starter itself must not block.
	StreamStarter[Request, T any] func(request Request, events StreamEvents[T]) error

	// Proxy is the surface the Registry retains for each live call.
	Proxy interface {
		// TryCancel requests best-effort termination, per Call.Cancel.
		TryCancel()
	}
)
