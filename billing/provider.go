package billing

import "context"

// Provider is the platform billing client. Every method may block until the
// provider answers, so callers are expected to invoke them off their event
// loop. Non-OK result codes are opaque and must be passed through unchanged.
type Provider interface {

	// Connect establishes the provider connection. It is called once; there is
	// no automatic reconnect.
	Connect(ctx context.Context) ResultCode

	// QueryCatalog returns the catalog entries for the requested product ids.
	// Ids the provider does not recognize are simply absent from the result.
	QueryCatalog(ctx context.Context, ids []string, kind ProductKind) (ResultCode, []*CatalogEntry)

	// QueryOwnedPurchases returns the purchases of the given kind the user
	// currently owns.
	QueryOwnedPurchases(ctx context.Context, kind ProductKind) (ResultCode, []*Purchase)

	// BeginPurchaseFlow launches the provider's purchase UI. The returned code
	// only reports whether the launch succeeded; completion is delivered on
	// PurchaseUpdates.
	BeginPurchaseFlow(ctx context.Context, entry *CatalogEntry) ResultCode

	Acknowledge(ctx context.Context, purchaseToken string) ResultCode

	// Consume returns the consumed purchase token alongside the result code.
	Consume(ctx context.Context, purchaseToken string) (ResultCode, string)

	// ManageSubscriptions opens the provider's subscription management surface.
	ManageSubscriptions(ctx context.Context) ResultCode

	// PurchaseUpdates is the provider's ongoing purchase event stream. The
	// channel is closed when the provider shuts down.
	PurchaseUpdates() <-chan PurchaseUpdate
}
