package callbridge

import (
	"context"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"sync"
	"testing"
	"time"
)

func stubUnaryFactory(t *testing.T, stub *stubUnary[string]) func() (Proxy, error) {
	t.Helper()
	return func() (Proxy, error) {
		return StartUnary(startStubUnary[string](stub), `request`, UnaryCallbacks[string, string]{})
	}
}

func TestRegistry_singleFlight(t *testing.T) {
	registry := NewRegistry[string](nil)

	var stub stubUnary[string]
	proxy, started, err := registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	require.True(t, started)
	require.NotNil(t, proxy)
	assert.Equal(t, 1, registry.Len())

	// a second call for the same key is refused, returning the live proxy
	again, started, err := registry.TryStart(`GetFeature`, func() (Proxy, error) {
		t.Fatal(`factory invoked for a refused call`)
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, started)
	assert.Same(t, proxy, again)
	assert.Equal(t, uint64(1), registry.Refused())
	assert.Equal(t, 1, registry.Len())

	// a different key is unaffected
	var other stubUnary[string]
	_, started, err = registry.TryStart(`ListFeatures`, stubUnaryFactory(t, &other))
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, 2, registry.Len())

	stub.complete(StatusOK(), `response`)
	registry.Release(`GetFeature`)
	assert.Equal(t, 1, registry.Len())

	// the key is free again
	var replacement stubUnary[string]
	_, started, err = registry.TryStart(`GetFeature`, stubUnaryFactory(t, &replacement))
	require.NoError(t, err)
	assert.True(t, started)
}

func TestRegistry_factoryError(t *testing.T) {
	registry := NewRegistry[string](nil)

	_, started, err := registry.TryStart(`GetFeature`, func() (Proxy, error) {
		return nil, assert.AnError
	})
	assert.False(t, started)
	assert.Same(t, assert.AnError, err)

	// the key was left free
	assert.Equal(t, 0, registry.Len())
	var stub stubUnary[string]
	_, started, err = registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	assert.True(t, started)
}

func TestRegistry_releaseUnknownKey(t *testing.T) {
	registry := NewRegistry[string](nil)
	registry.Release(`GetFeature`) // no-op
	registry.Cancel(`GetFeature`)  // no-op
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_releaseCancelsHandle(t *testing.T) {
	registry := NewRegistry[string](nil)

	var stub stubUnary[string]
	_, started, err := registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	require.True(t, started)

	stub.complete(StatusOK(), `response`)
	registry.Release(`GetFeature`)

	// resource release on teardown, harmless after completion
	assert.Equal(t, 1, stub.call.count())
}

// cancelOnlyCall models a call that stays pending until cancelled.
type cancelOnlyCall struct {
	events StreamEvents[int]
	once   sync.Once
}

func (x *cancelOnlyCall) Cancel() {
	x.once.Do(func() {
		go x.events.OnCompletion(StatusCancelled())
	})
}
func (x *cancelOnlyCall) StartRead()  {}
func (x *cancelOnlyCall) AddHold()    {}
func (x *cancelOnlyCall) RemoveHold() {}

func TestRegistry_closeCancelsAll(t *testing.T) {
	registry := NewRegistry[string](nil)

	var wg sync.WaitGroup
	for _, key := range [...]string{`ListFeatures`, `RouteChat`} {
		wg.Add(1)
		_, started, err := registry.TryStart(key, func() (Proxy, error) {
			return StartStream(func(request string, events StreamEvents[int]) error {
				call := &cancelOnlyCall{events: events}
				events.OnStart(call)
				call.StartRead()
				return nil
			}, `request`, StreamCallbacks[string, int]{
				Done: func(p *Stream[string, int], status Status) {
					if !status.Cancelled() {
						t.Errorf(`unexpected status: %s`, status)
					}
					wg.Done()
				},
			})
		})
		require.NoError(t, err)
		require.True(t, started)
	}
	require.Equal(t, 2, registry.Len())

	registry.Close()
	wg.Wait()

	// teardown completes via Release, as each terminal event is processed
	assert.Equal(t, 2, registry.Len())
	registry.Release(`ListFeatures`)
	registry.Release(`RouteChat`)
	assert.Equal(t, 0, registry.Len())
}

func TestRegistry_lifecycleEvents(t *testing.T) {
	registry := NewRegistry[string](nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	events := make(chan LifecycleEvent[string], 8)
	unsubscribe := registry.SubscribeLifecycle(ctx, events)
	defer unsubscribe()

	var stub stubUnary[string]
	_, _, err := registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	_, started, err := registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	require.False(t, started)
	stub.complete(StatusOK(), `response`)
	registry.Release(`GetFeature`)

	expected := [...]LifecycleEvent[string]{
		{Key: `GetFeature`, Kind: LifecycleStarted},
		{Key: `GetFeature`, Kind: LifecycleRefused},
		{Key: `GetFeature`, Kind: LifecycleReleased},
	}
	for _, want := range expected {
		select {
		case got := <-events:
			assert.Equal(t, want, got)
		case <-ctx.Done():
			t.Fatal(`timed out waiting for lifecycle event`)
		}
	}
}

func TestRegistry_refusalLogged(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithTimeField(``)),
		stumpy.L.WithWriter(logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, string(e.Bytes())+`}`)
			return nil
		})),
	)

	registry := NewRegistry[string](&RegistryConfig{Logger: logger.Logger()})

	var stub stubUnary[string]
	_, _, err := registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	_, started, err := registry.TryStart(`GetFeature`, stubUnaryFactory(t, &stub))
	require.NoError(t, err)
	require.False(t, started)

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, `call refused`)
	assert.Contains(t, joined, `GetFeature`)
}

func TestRegistry_nilFactoryPanics(t *testing.T) {
	registry := NewRegistry[string](nil)
	assert.PanicsWithValue(t, `callbridge: nil factory`, func() {
		_, _, _ = registry.TryStart(`GetFeature`, nil)
	})
}
