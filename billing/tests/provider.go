package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/billing-bridge/billing"
)

// ProviderSeeder installs catalog and ownership state on a provider under test.
type ProviderSeeder interface {
	AddProduct(kind billing.ProductKind, entry *billing.CatalogEntry)
	AddOwnedPurchase(kind billing.ProductKind, purchase *billing.Purchase)
}

func RunProviderTests(t *testing.T, p billing.Provider, seed ProviderSeeder, teardown func()) {
	for _, tf := range []func(t *testing.T, p billing.Provider, seed ProviderSeeder){
		testProvider_Connect,
		testProvider_CatalogByKind,
		testProvider_OwnedByKind,
		testProvider_PurchaseFlow,
		testProvider_UnknownToken,
	} {
		tf(t, p, seed)
		teardown()
	}
}

func testProvider_Connect(t *testing.T, p billing.Provider, _ ProviderSeeder) {
	require.Equal(t, billing.ResultOK, p.Connect(context.Background()))
}

func testProvider_CatalogByKind(t *testing.T, p billing.Provider, seed ProviderSeeder) {
	ctx := context.Background()

	seed.AddProduct(billing.KindOneTime, &billing.CatalogEntry{ID: "coins_100", Price: "$0.99"})
	seed.AddProduct(billing.KindSubscription, &billing.CatalogEntry{ID: "premium", Price: "$4.99"})

	code, entries := p.QueryCatalog(ctx, []string{"coins_100", "premium", "missing"}, billing.KindOneTime)
	require.Equal(t, billing.ResultOK, code)
	require.Len(t, entries, 1)
	require.Equal(t, "coins_100", entries[0].ID)

	code, entries = p.QueryCatalog(ctx, []string{"premium"}, billing.KindSubscription)
	require.Equal(t, billing.ResultOK, code)
	require.Len(t, entries, 1)
	require.Equal(t, "$4.99", entries[0].Price)

	code, entries = p.QueryCatalog(ctx, []string{"missing"}, billing.KindOneTime)
	require.Equal(t, billing.ResultOK, code)
	require.Empty(t, entries)
}

func testProvider_OwnedByKind(t *testing.T, p billing.Provider, seed ProviderSeeder) {
	ctx := context.Background()

	seed.AddOwnedPurchase(billing.KindSubscription, &billing.Purchase{
		ProductID:     "premium",
		PurchaseToken: "token-premium",
		State:         billing.StatePurchased,
	})

	code, owned := p.QueryOwnedPurchases(ctx, billing.KindOneTime)
	require.Equal(t, billing.ResultOK, code)
	require.Empty(t, owned)

	code, owned = p.QueryOwnedPurchases(ctx, billing.KindSubscription)
	require.Equal(t, billing.ResultOK, code)
	require.Len(t, owned, 1)
	require.Equal(t, "token-premium", owned[0].PurchaseToken)
}

func testProvider_PurchaseFlow(t *testing.T, p billing.Provider, seed ProviderSeeder) {
	ctx := context.Background()

	entry := &billing.CatalogEntry{ID: "coins_100"}
	seed.AddProduct(billing.KindOneTime, entry)

	require.Equal(t, billing.ResultOK, p.BeginPurchaseFlow(ctx, entry))

	var update billing.PurchaseUpdate
	select {
	case update = <-p.PurchaseUpdates():
	case <-time.After(time.Second):
		require.FailNow(t, "no purchase update published")
	}
	require.Equal(t, billing.ResultOK, update.Code)
	require.Len(t, update.Purchases, 1)

	purchase := update.Purchases[0]
	require.Equal(t, "coins_100", purchase.ProductID)
	require.NotEmpty(t, purchase.PurchaseToken)

	code, owned := p.QueryOwnedPurchases(ctx, billing.KindOneTime)
	require.Equal(t, billing.ResultOK, code)
	require.Len(t, owned, 1)

	require.Equal(t, billing.ResultOK, p.Acknowledge(ctx, purchase.PurchaseToken))

	code, consumed := p.Consume(ctx, purchase.PurchaseToken)
	require.Equal(t, billing.ResultOK, code)
	require.Equal(t, purchase.PurchaseToken, consumed)

	code, _ = p.Consume(ctx, purchase.PurchaseToken)
	require.False(t, code.OK())
}

func testProvider_UnknownToken(t *testing.T, p billing.Provider, _ ProviderSeeder) {
	ctx := context.Background()

	require.False(t, p.Acknowledge(ctx, "missing").OK())

	code, consumed := p.Consume(ctx, "missing")
	require.False(t, code.OK())
	require.Empty(t, consumed)
}
