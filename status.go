package callbridge

import (
	"context"
	"errors"
	"fmt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status is the terminal classification of a call, produced exactly once, at
// the terminal completion event, and immutable thereafter. The zero value is
// the successful status.
type Status struct {
	message string
	code    codes.Code
}

// StatusOK returns the successful status.
func StatusOK() Status { return Status{} }

// StatusCancelled returns the status indicating the call was torn down in
// response to cancellation, rather than resolving to a result.
func StatusCancelled() Status { return Status{code: codes.Canceled} }

// StatusError returns a failure status, with the given code and message.
// An OK code is normalized to the successful status.
func StatusError(code codes.Code, message string) Status {
	if code == codes.OK {
		return Status{}
	}
	return Status{code: code, message: message}
}

// StatusFromError maps an error, e.g. as returned by a gRPC call or stream
// receive, to a Status. A nil error maps to the successful status, and
// context cancellation (directly, or as a gRPC status) maps to the cancelled
// status.
func StatusFromError(err error) Status {
	if err == nil {
		return Status{}
	}
	if errors.Is(err, context.Canceled) {
		return StatusCancelled()
	}
	if s, ok := status.FromError(err); ok {
		return StatusError(s.Code(), s.Message())
	}
	return Status{code: codes.Unknown, message: err.Error()}
}

// OK indicates the call resolved successfully.
func (x Status) OK() bool { return x.code == codes.OK }

// Cancelled indicates the call was torn down in response to cancellation.
func (x Status) Cancelled() bool { return x.code == codes.Canceled }

// Code returns the status code.
func (x Status) Code() codes.Code { return x.code }

// Message returns the status message, which will be empty unless provided by
// the runtime, on failure.
func (x Status) Message() string { return x.message }

// Err returns nil if the status is OK, or an error, carrying the code and
// message, otherwise.
func (x Status) Err() error {
	if x.code == codes.OK {
		return nil
	}
	return status.Error(x.code, x.message)
}

func (x Status) String() string {
	if x.code == codes.OK {
		return `OK`
	}
	if x.message == `` {
		return x.code.String()
	}
	return fmt.Sprintf(`%s: %s`, x.code, x.message)
}
