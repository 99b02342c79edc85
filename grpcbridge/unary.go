package grpcbridge

import (
	"context"
	callbridge "github.com/joeycumines/go-callbridge"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
)

// UnaryFactory models a method to perform a unary gRPC call, and is
// implemented by generated gRPC clients.
type UnaryFactory[Request, Response proto.Message] func(ctx context.Context, in Request, opts ...grpc.CallOption) (Response, error)

// NewUnaryStarter adapts a generated unary client method to the
// callbridge.UnaryStarter contract. Each started call runs on its own
// goroutine, with cancellation via a call-scoped child of ctx, and delivers
// its terminal event exactly once: the gRPC error, if any, is mapped via
// callbridge.StatusFromError.
func NewUnaryStarter[Request, Response proto.Message](ctx context.Context, factory UnaryFactory[Request, Response], opts ...grpc.CallOption) callbridge.UnaryStarter[Request, Response] {
	if ctx == nil {
		panic(`grpcbridge: nil context`)
	}
	if factory == nil {
		panic(`grpcbridge: nil factory`)
	}
	return func(request Request, events callbridge.UnaryEvents[Response]) error {
		ctx, cancel := context.WithCancel(ctx)
		events.OnStart(unaryCall{cancel})
		go func() {
			defer cancel()
			response, err := factory(ctx, request, opts...)
			if err != nil {
				var zero Response
				events.OnCompletion(callbridge.StatusFromError(err), zero)
				return
			}
			events.OnCompletion(callbridge.StatusOK(), response)
		}()
		return nil
	}
}

type unaryCall struct {
	cancel context.CancelFunc
}

func (x unaryCall) Cancel() { x.cancel() }
