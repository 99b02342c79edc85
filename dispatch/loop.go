// Package dispatch provides a single-consumer work loop: callbacks running
// on arbitrary goroutines schedule closures, and exactly one owner goroutine
// drains them, in submission order.
package dispatch

import (
	"context"
	"fmt"
	"github.com/joeycumines/logiface"
	"sync"
	"sync/atomic"
)

type (
	// LoopConfig models optional configuration, for New.
	LoopConfig struct {
		// Logger receives recovered panics from scheduled work. May be nil
		// (disabled).
		Logger *logiface.Logger[logiface.Event]
	}

	// Loop is a serial executor. Work is accepted from any goroutine via
	// Schedule, and executed by the single goroutine running Run - the owner
	// context. The queue is unbounded, and FIFO: work scheduled under the
	// same key is executed in submission order (as is, in fact, all work).
	//
	// Instances must be initialized using the New factory. A Loop is
	// single-use: once Run returns, the Loop is spent.
	Loop struct {
		logger   *logiface.Logger[logiface.Event]
		ctx      context.Context
		cancel   context.CancelFunc
		done     chan struct{} // closed when Run returns
		stopped  chan struct{} // closed by stop, prevents further Schedule
		stopOnce sync.Once
		wake     chan struct{} // cap 1, pending-work signal
		running  atomic.Bool
		mu       sync.Mutex
		queue    []task
	}

	task struct {
		fn  func()
		key string
	}
)

// New initializes a new Loop. The provided config may be nil.
//
// The Loop.Close method and/or Loop.Shutdown method should be called when
// the Loop is no longer needed.
func New(config *LoopConfig) *Loop {
	x := &Loop{
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	if config != nil {
		x.logger = config.Logger
	}
	x.ctx, x.cancel = context.WithCancel(context.Background())
	return x
}

// Schedule enqueues fn to run later, on the owner context. It is safe to
// call from any goroutine, including from within scheduled work. The key
// identifies the unit of work, for logging purposes. An error is returned if
// the Loop is closed or stopped. A nil fn will cause a panic.
func (x *Loop) Schedule(key string, fn func()) error {
	if fn == nil {
		panic(`dispatch: nil func`)
	}
	if err := x.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-x.stopped:
		return context.Canceled
	default:
	}

	x.mu.Lock()
	x.queue = append(x.queue, task{key: key, fn: fn})
	x.mu.Unlock()

	select {
	case x.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run executes scheduled work until ctx is cancelled, or the Loop is closed
// or shut down. It must be run by exactly one goroutine - the owner context.
// All consumer-side processing (response retrieval, teardown decisions)
// belongs on this goroutine.
//
// On Close, Run returns promptly, without draining remaining work, and nil
// is returned. On Shutdown, remaining work is drained first. On ctx
// cancellation, ctx's error is returned.
func (x *Loop) Run(ctx context.Context) error {
	if ctx == nil {
		panic(`dispatch: nil context`)
	}
	if !x.running.CompareAndSwap(false, true) {
		panic(`dispatch: concurrent run`)
	}
	defer close(x.done)

	for {
		x.drain()

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-x.ctx.Done():
			return nil

		case <-x.stopped:
			// note: there won't be any more work coming
			x.drain()
			return nil

		case <-x.wake:
		}
	}
}

// Shutdown will immediately prevent further work via Schedule, then wait for
// already scheduled work to drain. An error will be returned if ctx is
// canceled prior to this, causing a forced Close.
//
// This method is unsafe to call from within scheduled work, and requires
// that Run is, or has been, running.
func (x *Loop) Shutdown(ctx context.Context) (err error) {
	x.stop()

	select {
	case <-ctx.Done():
		if x.ctx.Err() == nil {
			err = ctx.Err() // indicating we forcibly closed
		}
		x.cancel()
		<-x.done
	case <-x.done:
	}

	return err
}

// Close prevents further work via Schedule, and causes Run to return,
// without draining remaining work. It does not wait.
func (x *Loop) Close() {
	x.stop()
	x.cancel()
}

func (x *Loop) stop() {
	x.stopOnce.Do(func() {
		close(x.stopped)
	})
}

// drain executes all currently pending work, including work scheduled by
// that work.
func (x *Loop) drain() {
	for {
		x.mu.Lock()
		batch := x.queue
		x.queue = nil
		x.mu.Unlock()
		if batch == nil {
			return
		}
		for i := range batch {
			x.invoke(&batch[i])
		}
	}
}

func (x *Loop) invoke(t *task) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Err().
				Str(`key`, t.key).
				Err(fmt.Errorf(`dispatch: panic in scheduled work: %v`, r)).
				Log(`dispatch: recovered panic`)
		}
	}()
	t.fn()
}
