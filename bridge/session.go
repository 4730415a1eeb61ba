package bridge

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/event"
)

const (
	productActionSlot  = "product_action"
	purchaseActionSlot = "purchase_action"
)

// Session owns the catalog and purchase caches and routes provider results to
// callers. Every public method returns immediately; the work is queued onto
// the loop started by Run, which is the only place caches are written and
// callbacks are invoked. Callbacks must therefore not block.
type Session struct {
	log  *zap.Logger
	opts options

	provider  billing.Provider
	catalog   billing.CatalogStore
	purchases billing.PurchaseStore

	// One-shot slots. Arming replaces any pending request, so overlapping
	// calls of the same kind only answer the latest caller.
	productAction  *event.ActionSlot[*ProductResponse]
	purchaseAction *event.ActionSlot[*PurchaseResponse]

	// Persistent listeners, kept until replaced or cleared.
	productLoaded   *event.Subscription[*ProductResponse]
	purchaseUpdated *event.Subscription[*PurchaseResponse]

	deadlines *event.Deadlines

	running atomic.Bool
	queue   chan func(ctx context.Context)
	done    chan struct{}
}

func NewSession(
	log *zap.Logger,
	provider billing.Provider,
	catalog billing.CatalogStore,
	purchases billing.PurchaseStore,
	opts ...Option,
) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		log:  log,
		opts: o,

		provider:  provider,
		catalog:   catalog,
		purchases: purchases,

		productAction:  event.NewActionSlot[*ProductResponse](productActionSlot, o.policy),
		purchaseAction: event.NewActionSlot[*PurchaseResponse](purchaseActionSlot, o.policy),

		productLoaded:   event.NewSubscription[*ProductResponse]("product_loaded"),
		purchaseUpdated: event.NewSubscription[*PurchaseResponse]("purchase_updated"),

		queue: make(chan func(ctx context.Context), o.queueSize),
		done:  make(chan struct{}),
	}

	if o.actionTimeout > 0 {
		s.deadlines = event.NewDeadlines(s.onDeadline)
	}

	return s
}

// Run connects the provider and processes queued work and provider purchase
// updates until ctx is cancelled. A session can only be run once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	if s.deadlines != nil {
		defer s.deadlines.Close()
	}

	go func() {
		code := s.provider.Connect(ctx)
		if !code.OK() {
			s.log.Warn("Failed to connect billing provider", zap.Stringer("code", code))
			return
		}
		s.log.Debug("Connected billing provider")
	}()

	updates := s.provider.PurchaseUpdates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.queue:
			fn(ctx)
		case update, ok := <-updates:
			if !ok {
				s.log.Debug("Provider purchase update stream closed")
				updates = nil
				continue
			}
			s.onPurchaseUpdate(ctx, update)
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Flush blocks until all work queued before the call has run on the loop.
// Provider calls started by that work may still be in flight.
func (s *Session) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	if !s.post(func(_ context.Context) { close(flushed) }) {
		return ErrSessionClosed
	}

	select {
	case <-flushed:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeProductLoaded registers h to receive every product loaded for the
// rest of the session, replacing any earlier listener.
func (s *Session) SubscribeProductLoaded(h event.Handler[*ProductResponse]) {
	s.post(func(_ context.Context) {
		if s.productLoaded.Set(h) {
			s.log.Debug("Replaced product loaded listener")
		}
	})
}

// SubscribePurchaseUpdated registers h to receive every purchase update and
// restored purchase for the rest of the session, replacing any earlier
// listener.
func (s *Session) SubscribePurchaseUpdated(h event.Handler[*PurchaseResponse]) {
	s.post(func(_ context.Context) {
		if s.purchaseUpdated.Set(h) {
			s.log.Debug("Replaced purchase updated listener")
		}
	})
}

func (s *Session) UnsubscribeProductLoaded() {
	s.post(func(_ context.Context) {
		s.productLoaded.Clear()
	})
}

func (s *Session) UnsubscribePurchaseUpdated() {
	s.post(func(_ context.Context) {
		s.purchaseUpdated.Clear()
	})
}

// Lifecycle reports the locally observed lifecycle of productID's purchase.
func (s *Session) Lifecycle(ctx context.Context, productID string) (billing.Lifecycle, error) {
	purchase, err := s.purchases.GetPurchase(ctx, productID)
	if errors.Is(err, billing.ErrNotFound) {
		return billing.LifecycleUnknown, nil
	} else if err != nil {
		return billing.LifecycleUnknown, err
	}
	return purchase.Lifecycle(), nil
}

// post queues fn onto the session loop. Work posted after Run has returned is
// dropped.
func (s *Session) post(fn func(ctx context.Context)) bool {
	select {
	case <-s.done:
		s.log.Warn("Dropping work posted to closed session")
		return false
	default:
	}

	select {
	case s.queue <- fn:
		return true
	case <-s.done:
		s.log.Warn("Dropping work posted to closed session")
		return false
	}
}

// async runs call off the loop and posts the continuation it returns, if any,
// back onto the loop.
func (s *Session) async(ctx context.Context, call func(ctx context.Context) func(ctx context.Context)) {
	go func() {
		if next := call(ctx); next != nil {
			s.post(next)
		}
	}()
}

// reject handles a request that can't be served. By default the request is
// dropped without a response; in strict mode reply receives err.
func (s *Session) reject(op string, err error, reply func(error)) {
	if s.opts.strict && reply != nil {
		reply(err)
		return
	}
	s.log.Debug("Dropping request", zap.String("op", op), zap.Error(err))
}

func (s *Session) onDeadline(key string) {
	s.post(func(_ context.Context) {
		name, rawID, ok := strings.Cut(key, "/")
		if !ok {
			return
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return
		}

		var expired bool
		switch name {
		case productActionSlot:
			expired = s.productAction.Expire(id)
		case purchaseActionSlot:
			expired = s.purchaseAction.Expire(id)
		}
		if expired {
			s.log.Debug("Action timed out", zap.String("slot", name), zap.String("request_id", rawID))
		}
	})
}

func deadlineKey(slot string, id uuid.UUID) string {
	return slot + "/" + id.String()
}

// arm installs cb on slot, tracking its deadline when timeouts are enabled.
func arm[T any](s *Session, slot *event.ActionSlot[T], cb event.Callback[T], match func(T) bool) uuid.UUID {
	if cb == nil {
		cb = func(T, error) {}
	}

	if prev, ok := slot.Pending(); ok && s.deadlines != nil {
		s.deadlines.Cancel(deadlineKey(slot.Name(), prev))
	}

	var key string
	wrapped := func(v T, err error) {
		if s.deadlines != nil {
			s.deadlines.Cancel(key)
		}
		cb(v, err)
	}

	id, replaced := slot.Arm(wrapped, match)
	if replaced {
		s.log.Debug("Replaced pending action", zap.String("slot", slot.Name()))
	}

	key = deadlineKey(slot.Name(), id)
	if s.deadlines != nil {
		s.deadlines.Track(key, s.opts.actionTimeout)
	}
	return id
}
