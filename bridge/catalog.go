package bridge

import (
	"context"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/event"
)

// LoadProducts queries the provider for ids. Every loaded product is cached and
// pushed to the product loaded listener; cb is the one-shot answer for this
// call. Overlapping calls share one pending slot, so only the most recent
// caller's cb is answered. A malformed call never arms the slot and leaves any
// pending caller in place.
func (s *Session) LoadProducts(ids []string, kind billing.ProductKind, cb event.Callback[*ProductResponse]) {
	ids = slices.Clone(ids)

	s.post(func(ctx context.Context) {
		if err := validateLoad(ids, kind); err != nil {
			s.reject("loadProducts", err, func(err error) {
				if cb != nil {
					cb(nil, err)
				}
			})
			return
		}

		arm(s, s.productAction, cb, nil)

		s.async(ctx, func(ctx context.Context) func(context.Context) {
			code, entries := s.provider.QueryCatalog(ctx, ids, kind)
			return func(ctx context.Context) {
				s.onCatalogResponse(ctx, kind, code, entries)
			}
		})
	})
}

// Product returns the cached catalog entry for productID.
func (s *Session) Product(ctx context.Context, productID string) (*billing.CatalogEntry, error) {
	return s.catalog.GetEntry(ctx, productID)
}

func (s *Session) onCatalogResponse(ctx context.Context, kind billing.ProductKind, code billing.ResultCode, entries []*billing.CatalogEntry) {
	log := s.log.With(
		zap.String("kind", kind.String()),
		zap.Stringer("code", code),
	)

	if !code.OK() {
		log.Warn("Catalog query failed")
		s.productAction.Fail(billing.NewProviderError(code))
		return
	}

	loaded := make([]*ProductResponse, 0, len(entries))
	for _, entry := range entries {
		if err := s.catalog.PutEntry(ctx, entry); err != nil {
			log.Warn("Skipping uncacheable catalog entry", zap.Error(err))
			continue
		}

		resp, err := FormatProduct(entry)
		if err != nil {
			log.Warn("Skipping malformed catalog entry", zap.String("product_id", entry.ID), zap.Error(err))
			continue
		}

		s.productLoaded.Notify(resp)
		loaded = append(loaded, resp)
	}

	log.Debug("Loaded catalog", zap.Int("count", len(loaded)))
	s.productAction.Deliver(loaded...)
}

func validateLoad(ids []string, kind billing.ProductKind) error {
	if !kind.Valid() {
		return errors.Wrapf(ErrMalformedRequest, "unrecognized product kind %d", kind)
	}
	if len(ids) == 0 {
		return errors.Wrap(ErrMalformedRequest, "no product ids")
	}
	for i, id := range ids {
		if id == "" {
			return errors.Wrapf(ErrMalformedRequest, "empty product id at index %d", i)
		}
	}
	return nil
}
