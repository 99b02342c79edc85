// Package grpcbridge binds generated grpc-go clients to the callbridge
// runtime contracts. A goroutine per call drives the underlying (blocking)
// gRPC primitives, delivering events serialized per call, with explicit read
// arming and a counted hold gate for server streams.
package grpcbridge
