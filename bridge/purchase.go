package bridge

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/event"
)

// Purchase launches the provider's purchase flow for a previously loaded
// product. cb receives either the launch failure or the first purchase update
// for productID; every update also reaches the purchase updated listener. An
// empty or not yet loaded productID never arms the slot, so a pending purchase
// keeps waiting.
func (s *Session) Purchase(productID string, cb event.Callback[*PurchaseResponse]) {
	s.post(func(ctx context.Context) {
		reply := func(err error) {
			if cb != nil {
				cb(nil, err)
			}
		}

		if productID == "" {
			s.reject("purchase", errors.Wrap(ErrMalformedRequest, "empty product id"), reply)
			return
		}

		entry, err := s.catalog.GetEntry(ctx, productID)
		if errors.Is(err, billing.ErrNotFound) {
			s.reject("purchase", errors.Wrapf(ErrUnknownProduct, "product %q", productID), reply)
			return
		} else if err != nil {
			s.log.Warn("Failed to get catalog entry", zap.String("product_id", productID), zap.Error(err))
			s.reject("purchase", err, reply)
			return
		}

		requestID := arm(s, s.purchaseAction, cb, func(resp *PurchaseResponse) bool {
			return resp.ID == productID
		})

		s.async(ctx, func(ctx context.Context) func(context.Context) {
			code := s.provider.BeginPurchaseFlow(ctx, entry)
			if code.OK() {
				return nil
			}
			return func(_ context.Context) {
				s.log.Warn("Failed to launch purchase flow",
					zap.String("product_id", productID),
					zap.Stringer("code", code),
				)
				s.purchaseAction.FailRequest(requestID, billing.NewProviderError(code))
			}
		})
	})
}

// Acknowledge confirms receipt of productID's cached purchase. done is called
// exactly once, unless the purchase was never observed, in which case the
// request is dropped.
func (s *Session) Acknowledge(productID string, done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	s.post(func(ctx context.Context) {
		purchase, ok := s.lookupPurchase(ctx, "acknowledge", productID, done)
		if !ok {
			return
		}

		token := purchase.PurchaseToken
		s.async(ctx, func(ctx context.Context) func(context.Context) {
			code := s.provider.Acknowledge(ctx, token)
			return func(ctx context.Context) {
				if !code.OK() {
					s.log.Warn("Failed to acknowledge purchase",
						zap.String("product_id", productID),
						zap.Stringer("code", code),
					)
					done(billing.NewProviderError(code))
					return
				}

				err := s.purchases.MarkAcknowledged(ctx, productID, token)
				if errors.Is(err, billing.ErrNotFound) {
					s.log.Debug("Acknowledged purchase was superseded", zap.String("product_id", productID))
				} else if err != nil {
					s.log.Warn("Failed to mark purchase acknowledged", zap.String("product_id", productID), zap.Error(err))
				}
				done(nil)
			}
		})
	})
}

// Consume marks productID's cached purchase as used. cb receives the consumed
// purchase token exactly once, unless the purchase was never observed.
func (s *Session) Consume(productID string, cb event.Callback[string]) {
	if cb == nil {
		cb = func(string, error) {}
	}

	s.post(func(ctx context.Context) {
		purchase, ok := s.lookupPurchase(ctx, "consume", productID, func(err error) { cb("", err) })
		if !ok {
			return
		}

		token := purchase.PurchaseToken
		s.async(ctx, func(ctx context.Context) func(context.Context) {
			code, consumed := s.provider.Consume(ctx, token)
			return func(ctx context.Context) {
				if !code.OK() {
					s.log.Warn("Failed to consume purchase",
						zap.String("product_id", productID),
						zap.Stringer("code", code),
					)
					cb("", billing.NewProviderError(code))
					return
				}

				err := s.purchases.MarkConsumed(ctx, productID, token)
				if errors.Is(err, billing.ErrNotFound) {
					s.log.Debug("Consumed purchase was superseded", zap.String("product_id", productID))
				} else if err != nil {
					s.log.Warn("Failed to mark purchase consumed", zap.String("product_id", productID), zap.Error(err))
				}
				cb(consumed, nil)
			}
		})
	})
}

// Manage opens the provider's subscription management surface.
func (s *Session) Manage(done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	s.post(func(ctx context.Context) {
		s.async(ctx, func(ctx context.Context) func(context.Context) {
			code := s.provider.ManageSubscriptions(ctx)
			return func(_ context.Context) {
				if !code.OK() {
					done(billing.NewProviderError(code))
					return
				}
				done(nil)
			}
		})
	})
}

func (s *Session) lookupPurchase(ctx context.Context, op, productID string, reply func(error)) (*billing.Purchase, bool) {
	if productID == "" {
		s.reject(op, errors.Wrap(ErrMalformedRequest, "empty product id"), reply)
		return nil, false
	}

	purchase, err := s.purchases.GetPurchase(ctx, productID)
	if errors.Is(err, billing.ErrNotFound) {
		s.reject(op, errors.Wrapf(ErrUnknownPurchase, "product %q", productID), reply)
		return nil, false
	} else if err != nil {
		s.log.Warn("Failed to get purchase", zap.String("product_id", productID), zap.Error(err))
		s.reject(op, err, reply)
		return nil, false
	}
	return purchase, true
}
