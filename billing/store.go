package billing

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("billing record not found")
	ErrInvalid  = errors.New("billing record is invalid")
)

// CatalogStore caches catalog entries keyed by product id. Writes replace any
// existing entry wholesale.
type CatalogStore interface {
	PutEntry(ctx context.Context, entry *CatalogEntry) error
	GetEntry(ctx context.Context, productID string) (*CatalogEntry, error)
	ListEntries(ctx context.Context) ([]*CatalogEntry, error)
}

// PurchaseStore caches purchases keyed by product id. The last write for a
// product id wins, so a product with several historical orders keeps only the
// most recently merged one.
type PurchaseStore interface {
	PutPurchase(ctx context.Context, purchase *Purchase) error
	GetPurchase(ctx context.Context, productID string) (*Purchase, error)
	ListPurchases(ctx context.Context) ([]*Purchase, error)

	// MarkAcknowledged and MarkConsumed flip the local flags on the cached
	// record for productID, provided it still carries purchaseToken. They
	// return ErrNotFound otherwise and never clear a flag.
	MarkAcknowledged(ctx context.Context, productID, purchaseToken string) error
	MarkConsumed(ctx context.Context, productID, purchaseToken string) error
}
