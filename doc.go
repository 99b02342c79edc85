// Package callbridge bridges callback-driven RPC runtimes, which deliver
// completion and streaming events on worker goroutines, to a single consumer
// goroutine (the owner context), without locks on the per-call hot path.
//
// The package provides per-call proxies for the two supported call shapes
// (unary, and server-streaming), a single-value transfer cell used to hand
// responses across the worker/owner boundary, and a single-flight registry
// admitting at most one live call per logical key.
//
// Proxies are driven by a runtime adapter, via the UnaryStarter and
// StreamStarter contracts. See the grpcbridge subpackage for an adapter
// binding generated grpc-go clients, and the dispatch subpackage for a serial
// work loop suitable as the owner context.
package callbridge
