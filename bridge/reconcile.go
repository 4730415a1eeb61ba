package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/billing"
)

// restoreKinds is the order owned purchases are queried and merged in. When
// both queries return the same product id, the subscription result wins.
var restoreKinds = []billing.ProductKind{
	billing.KindOneTime,
	billing.KindSubscription,
}

type ownedResult struct {
	kind      billing.ProductKind
	code      billing.ResultCode
	purchases []*billing.Purchase
}

// Restore re-synchronizes the purchase cache with the purchases the provider
// reports as owned. Restored purchases are only delivered to the purchase
// updated listener; no one-shot callback is involved.
func (s *Session) Restore() {
	s.post(func(ctx context.Context) {
		s.async(ctx, func(ctx context.Context) func(context.Context) {
			results := make([]ownedResult, 0, len(restoreKinds))
			for _, kind := range restoreKinds {
				code, purchases := s.provider.QueryOwnedPurchases(ctx, kind)
				results = append(results, ownedResult{kind: kind, code: code, purchases: purchases})
			}

			return func(ctx context.Context) {
				s.onRestore(ctx, results)
			}
		})
	})
}

func (s *Session) onRestore(ctx context.Context, results []ownedResult) {
	for _, res := range results {
		log := s.log.With(
			zap.String("kind", res.kind.String()),
			zap.Stringer("code", res.code),
		)

		if !res.code.OK() {
			log.Warn("Owned purchase query failed")
			continue
		}

		merged := s.mergePurchases(ctx, log, res.purchases)
		log.Debug("Restored purchases", zap.Int("count", len(merged)))
	}
}

// onPurchaseUpdate handles a batch from the provider's purchase update stream.
// Successful batches reach both the listener and the pending purchase action;
// failures only reach the pending purchase action.
func (s *Session) onPurchaseUpdate(ctx context.Context, update billing.PurchaseUpdate) {
	log := s.log.With(zap.Stringer("code", update.Code))

	if !update.Code.OK() {
		log.Warn("Purchase update failed")
		s.purchaseAction.Fail(billing.NewProviderError(update.Code))
		return
	}

	if len(update.Purchases) == 0 {
		log.Debug("Ignoring empty purchase update")
		return
	}

	merged := s.mergePurchases(ctx, log, update.Purchases)
	s.purchaseAction.Deliver(merged...)
}

// mergePurchases caches each purchase in order and notifies the listener.
// Malformed purchases are skipped without affecting the rest of the batch.
func (s *Session) mergePurchases(ctx context.Context, log *zap.Logger, purchases []*billing.Purchase) []*PurchaseResponse {
	merged := make([]*PurchaseResponse, 0, len(purchases))
	for _, purchase := range purchases {
		resp, err := FormatPurchase(purchase, s.opts.platform)
		if err != nil {
			log.Warn("Skipping malformed purchase", zap.Error(err))
			continue
		}

		purchase = s.withLocalFlags(ctx, purchase)
		resp.Receipt.Acknowledged = purchase.Acknowledged

		if err := s.purchases.PutPurchase(ctx, purchase); err != nil {
			log.Warn("Failed to cache purchase", zap.String("product_id", purchase.ProductID), zap.Error(err))
			continue
		}

		s.purchaseUpdated.Notify(resp)
		merged = append(merged, resp)
	}
	return merged
}

// withLocalFlags carries the locally set acknowledged and consumed flags over
// to a newer record of the same purchase token, so they never revert.
func (s *Session) withLocalFlags(ctx context.Context, purchase *billing.Purchase) *billing.Purchase {
	cached, err := s.purchases.GetPurchase(ctx, purchase.ProductID)
	if err != nil || cached.PurchaseToken != purchase.PurchaseToken {
		return purchase
	}

	merged := purchase.Clone()
	merged.Acknowledged = merged.Acknowledged || cached.Acknowledged
	merged.Consumed = merged.Consumed || cached.Consumed
	return merged
}

// Purchases returns every cached purchase.
func (s *Session) Purchases(ctx context.Context) ([]*billing.Purchase, error) {
	return s.purchases.ListPurchases(ctx)
}
