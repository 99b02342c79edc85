package callbridge

import (
	"context"
	bigbuff "github.com/joeycumines/go-bigbuff"
	"github.com/joeycumines/logiface"
	"sync"
	"sync/atomic"
)

type (
	// RegistryConfig models optional configuration, for NewRegistry.
	RegistryConfig struct {
		// Logger receives call lifecycle logging, notably single-flight
		// refusals. May be nil (disabled).
		Logger *logiface.Logger[logiface.Event]
	}

	// Registry is the single-flight owner of call proxies: per key, at most
	// one live proxy exists at any instant, a new call being refused (not
	// queued) while one is outstanding for the same key. The registry is the
	// sole owner of proxy lifetime - a proxy is live from TryStart until
	// Release, and no other component may destroy it.
	//
	// Unlike the per-call hot path, the key to proxy map is shared between
	// call-issuing call sites and completion-driven teardown, and is guarded
	// by a mutex. Instances must be initialized using the NewRegistry
	// factory.
	Registry[K comparable] struct {
		logger   *logiface.Logger[logiface.Event]
		calls    map[K]Proxy
		notifier bigbuff.Notifier
		refused  atomic.Uint64
		mu       sync.Mutex
	}

	// LifecycleKind enumerates Registry lifecycle event kinds.
	LifecycleKind int

	// LifecycleEvent is published for each Registry lifecycle transition,
	// see Registry.SubscribeLifecycle.
	LifecycleEvent[K comparable] struct {
		Key  K
		Kind LifecycleKind
	}
)

const (
	// LifecycleStarted indicates a call was started for a key.
	LifecycleStarted LifecycleKind = iota
	// LifecycleRefused indicates a call was refused, due to an outstanding
	// call for the same key. A refusal is a policy rejection, not an error
	// of the call itself.
	LifecycleRefused
	// LifecycleReleased indicates a key's proxy was released, freeing the
	// key for a new call.
	LifecycleReleased
)

func (x LifecycleKind) String() string {
	switch x {
	case LifecycleStarted:
		return `started`
	case LifecycleRefused:
		return `refused`
	case LifecycleReleased:
		return `released`
	default:
		return `unknown`
	}
}

// NewRegistry initializes a new Registry. The provided config may be nil.
func NewRegistry[K comparable](config *RegistryConfig) *Registry[K] {
	x := &Registry[K]{calls: make(map[K]Proxy)}
	if config != nil {
		x.logger = config.Logger
	}
	return x
}

// TryStart admits a new call for key, if none is outstanding: factory is
// invoked (with the registry lock held) to construct and start the proxy,
// which is stored and returned, with started true. If a live proxy already
// exists for key, it is left untouched, and is returned with started false -
// the new call request is dropped. A factory error is returned as-is,
// leaving the key free.
//
// A nil factory will cause a panic.
func (x *Registry[K]) TryStart(key K, factory func() (Proxy, error)) (proxy Proxy, started bool, _ error) {
	if factory == nil {
		panic(`callbridge: nil factory`)
	}

	x.mu.Lock()
	if existing, ok := x.calls[key]; ok {
		x.mu.Unlock()
		x.refused.Add(1)
		x.logger.Warning().
			Interface(`key`, key).
			Log(`callbridge: call refused, already in flight`)
		x.publish(key, LifecycleRefused)
		return existing, false, nil
	}

	proxy, err := factory()
	if err != nil {
		x.mu.Unlock()
		x.logger.Err().
			Interface(`key`, key).
			Err(err).
			Log(`callbridge: call start failed`)
		return nil, false, err
	}
	if proxy == nil {
		x.mu.Unlock()
		panic(`callbridge: nil proxy`)
	}
	x.calls[key] = proxy
	x.mu.Unlock()

	x.logger.Debug().
		Interface(`key`, key).
		Log(`callbridge: call started`)
	x.publish(key, LifecycleStarted)
	return proxy, true, nil
}

// Release removes and destroys the proxy for key, freeing the key for a new
// call. It must be called once the proxy reaches its terminal state, from
// the owner context. Releasing a key with no live proxy is a no-op.
func (x *Registry[K]) Release(key K) {
	x.mu.Lock()
	proxy, ok := x.calls[key]
	if ok {
		delete(x.calls, key)
	}
	x.mu.Unlock()
	if !ok {
		return
	}

	// cancel on release, freeing call resources - a no-op for the normal
	// case of a call that already completed
	proxy.TryCancel()

	x.logger.Debug().
		Interface(`key`, key).
		Log(`callbridge: call released`)
	x.publish(key, LifecycleReleased)
}

// Cancel requests best-effort termination of the live call for key, if any,
// without releasing it - the proxy remains live until the terminal event is
// processed, and Release is called.
func (x *Registry[K]) Cancel(key K) {
	x.mu.Lock()
	proxy := x.calls[key]
	x.mu.Unlock()
	if proxy != nil {
		proxy.TryCancel()
	}
}

// Close requests best-effort termination of all live calls. Like Cancel, it
// does not release any key - teardown completes as each call's terminal
// event is processed.
func (x *Registry[K]) Close() {
	x.mu.Lock()
	proxies := make([]Proxy, 0, len(x.calls))
	for _, proxy := range x.calls {
		proxies = append(proxies, proxy)
	}
	x.mu.Unlock()
	for _, proxy := range proxies {
		proxy.TryCancel()
	}
}

// Len returns the number of live calls.
func (x *Registry[K]) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.calls)
}

// Refused returns the number of calls refused by the single-flight policy.
func (x *Registry[K]) Refused() uint64 { return x.refused.Load() }

// SubscribeLifecycle accepts any target that is a channel which can accept
// LifecycleEvent values. The returned cancel func MUST be called, unless ctx
// is cancelled.
// WARNING: Sends to target are blocking, and callers must therefore always
// receive promptly.
func (x *Registry[K]) SubscribeLifecycle(ctx context.Context, target any) context.CancelFunc {
	return x.notifier.SubscribeCancel(ctx, nil, target)
}

func (x *Registry[K]) publish(key K, kind LifecycleKind) {
	x.notifier.PublishContext(context.Background(), nil, LifecycleEvent[K]{Key: key, Kind: kind})
}
