package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/billing/memory"
	"github.com/code-payments/billing-bridge/bridge"
	"github.com/code-payments/billing-bridge/event"
)

const TestPackageName = "com.example.billing"

// Harness is a running session backed by an in-memory provider and store.
type Harness struct {
	Session  *bridge.Session
	Provider *memory.Provider
	Store    *memory.InMemoryStore
}

// RunSession starts a session and stops it when the test completes.
func RunSession(t *testing.T, opts ...SessionOption) *Harness {
	o := sessionOpts{
		log: zap.Must(zap.NewDevelopment()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	provider := memory.NewProvider(TestPackageName)
	for _, setup := range o.setups {
		setup(provider)
	}

	store := memory.NewInMemory()
	session := bridge.NewSession(o.log, provider, store, store, o.bridgeOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := session.Run(ctx); err != nil && err != context.Canceled {
			o.log.Warn("Session stopped unexpectedly", zap.Error(err))
		}
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-session.Done():
		case <-time.After(5 * time.Second):
			o.log.Warn("Timed out waiting for session shutdown")
		}
		provider.Close()
	})

	return &Harness{
		Session:  session,
		Provider: provider,
		Store:    store,
	}
}

type sessionOpts struct {
	log        *zap.Logger
	bridgeOpts []bridge.Option
	setups     []func(*memory.Provider)
}

// SessionOption configures the settings when creating a test session.
type SessionOption func(o *sessionOpts)

// WithLogger overrides the development logger used by the session.
func WithLogger(log *zap.Logger) SessionOption {
	return func(o *sessionOpts) {
		o.log = log
	}
}

// WithBridgeOptions passes options through to bridge.NewSession.
func WithBridgeOptions(opts ...bridge.Option) SessionOption {
	return func(o *sessionOpts) {
		o.bridgeOpts = append(o.bridgeOpts, opts...)
	}
}

// WithProvider registers a function to seed the provider before the session
// starts.
func WithProvider(f func(*memory.Provider)) SessionOption {
	return func(o *sessionOpts) {
		o.setups = append(o.setups, f)
	}
}

// Recorder captures callback and listener deliveries in arrival order.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	errs   []error
}

func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

func (r *Recorder[T]) Callback() event.Callback[T] {
	return func(v T, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if err != nil {
			r.errs = append(r.errs, err)
			return
		}
		r.values = append(r.values, v)
	}
}

func (r *Recorder[T]) Handler() event.Handler[T] {
	return event.HandlerFunc[T](func(v T) {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.values = append(r.values, v)
	})
}

// Done adapts the recorder to a plain completion callback.
func (r *Recorder[T]) Done() func(error) {
	cb := r.Callback()
	return func(err error) {
		var zero T
		cb(zero, err)
	}
}

func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]T(nil), r.values...)
}

func (r *Recorder[T]) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]error(nil), r.errs...)
}

// Len is the total number of deliveries, values and errors included.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.values) + len(r.errs)
}
