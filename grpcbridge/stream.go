package grpcbridge

import (
	"context"
	callbridge "github.com/joeycumines/go-callbridge"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"io"
	"sync"
)

type (
	// Reader models a server-streaming gRPC stream client, and is
	// implemented by generated gRPC clients.
	Reader[Response proto.Message] interface {
		Recv() (Response, error)
		grpc.ClientStream
	}

	// StreamFactory models a method to create a server-streaming gRPC
	// stream client, and is implemented by generated gRPC clients.
	StreamFactory[T Reader[Response], Request, Response proto.Message] func(ctx context.Context, in Request, opts ...grpc.CallOption) (T, error)
)

// NewStreamStarter adapts a generated server-streaming client method to the
// callbridge.StreamStarter contract. A single goroutine per call drives
// Recv, which serializes event delivery: an item is received only once a
// read has been armed, and no event, the terminal one included, is delivered
// while the call is held. The first read is armed by the starter.
//
// A clean end of stream (io.EOF) delivers the end-of-stream event followed
// by an OK completion; any other receive error delivers the end-of-stream
// event followed by the mapped failure.
func NewStreamStarter[T Reader[Response], Request, Response proto.Message](ctx context.Context, factory StreamFactory[T, Request, Response], opts ...grpc.CallOption) callbridge.StreamStarter[Request, Response] {
	if ctx == nil {
		panic(`grpcbridge: nil context`)
	}
	if factory == nil {
		panic(`grpcbridge: nil factory`)
	}
	return func(request Request, events callbridge.StreamEvents[Response]) error {
		ctx, cancel := context.WithCancel(ctx)

		stream, err := factory(ctx, request, opts...)
		if err != nil {
			cancel()
			return err
		}

		call := newStreamCall(cancel)
		events.OnStart(call)
		call.StartRead()

		go deliver(ctx, call, stream, events)

		return nil
	}
}

// deliver is the per-call event loop: it satisfies armed reads, gating every
// event on the hold count.
func deliver[T Reader[Response], Response proto.Message](ctx context.Context, call *streamCall, stream T, events callbridge.StreamEvents[Response]) {
	defer call.cancel()

	for {
		select {
		case <-call.read:
		case <-ctx.Done():
			// cancelled with no read armed: terminal, with no stream-end
			// notice (there is no pending read to fail)
			call.wait()
			events.OnCompletion(callbridge.StatusFromError(ctx.Err()))
			return
		}

		response, err := stream.Recv()
		if err != nil {
			call.wait()
			var zero Response
			events.OnRead(zero, false)
			call.wait()
			if err == io.EOF {
				events.OnCompletion(callbridge.StatusOK())
			} else {
				events.OnCompletion(callbridge.StatusFromError(err))
			}
			return
		}

		call.wait()
		events.OnRead(response, true)
	}
}

// streamCall implements callbridge.StreamCall over a context cancel, an
// armed-read token, and a counted hold gate.
type streamCall struct {
	cancel context.CancelFunc
	read   chan struct{}
	gate   chan struct{} // closed while holds == 0
	holds  int
	mu     sync.Mutex
}

func newStreamCall(cancel context.CancelFunc) *streamCall {
	gate := make(chan struct{})
	close(gate)
	return &streamCall{
		cancel: cancel,
		read:   make(chan struct{}, 1),
		gate:   gate,
	}
}

func (x *streamCall) Cancel() { x.cancel() }

func (x *streamCall) StartRead() {
	select {
	case x.read <- struct{}{}:
	default:
		panic(`grpcbridge: read already armed`)
	}
}

func (x *streamCall) AddHold() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.holds++
	if x.holds == 1 {
		x.gate = make(chan struct{})
	}
}

func (x *streamCall) RemoveHold() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.holds == 0 {
		panic(`grpcbridge: unbalanced remove hold`)
	}
	x.holds--
	if x.holds == 0 {
		close(x.gate)
	}
}

// wait blocks until the call is not held.
func (x *streamCall) wait() {
	x.mu.Lock()
	gate := x.gate
	x.mu.Unlock()
	<-gate
}
