package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/billing-bridge/billing"
)

// Store is the pair of caches a session needs, usually a single value.
type Store interface {
	billing.CatalogStore
	billing.PurchaseStore
}

func RunStoreTests(t *testing.T, s Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s Store){
		testCatalogStore_HappyPath,
		testCatalogStore_Replace,
		testCatalogStore_Invalid,
		testPurchaseStore_HappyPath,
		testPurchaseStore_LastWriteWins,
		testPurchaseStore_Flags,
	} {
		tf(t, s)
		teardown()
	}
}

func testCatalogStore_HappyPath(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.GetEntry(ctx, "coins_100")
	require.Equal(t, billing.ErrNotFound, err)

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	expected := &billing.CatalogEntry{
		ID:          "coins_100",
		Title:       "100 Coins",
		Description: "A pile of coins",
		Price:       "$0.99",
	}
	require.NoError(t, store.PutEntry(ctx, expected))

	actual, err := store.GetEntry(ctx, "coins_100")
	require.NoError(t, err)
	require.Equal(t, expected, actual)

	// Mutating the returned entry must not leak into the store.
	actual.Title = "mutated"
	actual, err = store.GetEntry(ctx, "coins_100")
	require.NoError(t, err)
	require.Equal(t, "100 Coins", actual.Title)

	require.NoError(t, store.PutEntry(ctx, &billing.CatalogEntry{ID: "coins_500"}))
	entries, err = store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "coins_100", entries[0].ID)
	require.Equal(t, "coins_500", entries[1].ID)
}

func testCatalogStore_Replace(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.PutEntry(ctx, &billing.CatalogEntry{
		ID:                      "premium",
		Price:                   "$4.99",
		IntroductoryPrice:       "$0.99",
		IntroductoryPriceMicros: 990000,
	}))
	require.NoError(t, store.PutEntry(ctx, &billing.CatalogEntry{
		ID:    "premium",
		Price: "$5.99",
	}))

	actual, err := store.GetEntry(ctx, "premium")
	require.NoError(t, err)
	require.Equal(t, "$5.99", actual.Price)
	require.Empty(t, actual.IntroductoryPrice)
	require.Zero(t, actual.IntroductoryPriceMicros)
}

func testCatalogStore_Invalid(t *testing.T, store Store) {
	ctx := context.Background()

	require.ErrorIs(t, store.PutEntry(ctx, &billing.CatalogEntry{Title: "no id"}), billing.ErrInvalid)
	require.ErrorIs(t, store.PutPurchase(ctx, &billing.Purchase{PurchaseToken: "token"}), billing.ErrInvalid)
}

func testPurchaseStore_HappyPath(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.GetPurchase(ctx, "premium")
	require.Equal(t, billing.ErrNotFound, err)

	expected := &billing.Purchase{
		ProductID:     "premium",
		OrderID:       "GPA.1234",
		PackageName:   "com.example.app",
		PurchaseToken: "token-1",
		State:         billing.StatePurchased,
	}
	require.NoError(t, store.PutPurchase(ctx, expected))

	actual, err := store.GetPurchase(ctx, "premium")
	require.NoError(t, err)
	require.Equal(t, expected, actual)

	purchases, err := store.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}

func testPurchaseStore_LastWriteWins(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.PutPurchase(ctx, &billing.Purchase{
		ProductID:     "premium",
		PurchaseToken: "token-1",
		State:         billing.StatePurchased,
	}))
	require.NoError(t, store.PutPurchase(ctx, &billing.Purchase{
		ProductID:     "premium",
		PurchaseToken: "token-2",
		State:         billing.StatePending,
	}))

	actual, err := store.GetPurchase(ctx, "premium")
	require.NoError(t, err)
	require.Equal(t, "token-2", actual.PurchaseToken)
	require.Equal(t, billing.StatePending, actual.State)

	purchases, err := store.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
}

func testPurchaseStore_Flags(t *testing.T, store Store) {
	ctx := context.Background()

	require.Equal(t, billing.ErrNotFound, store.MarkAcknowledged(ctx, "premium", "token-1"))
	require.Equal(t, billing.ErrNotFound, store.MarkConsumed(ctx, "premium", "token-1"))

	require.NoError(t, store.PutPurchase(ctx, &billing.Purchase{
		ProductID:     "premium",
		PurchaseToken: "token-1",
		State:         billing.StatePurchased,
	}))

	// A different purchase of the same product is left untouched.
	require.Equal(t, billing.ErrNotFound, store.MarkAcknowledged(ctx, "premium", "token-0"))
	require.Equal(t, billing.ErrNotFound, store.MarkConsumed(ctx, "premium", "token-0"))
	actual, err := store.GetPurchase(ctx, "premium")
	require.NoError(t, err)
	require.False(t, actual.Acknowledged)
	require.False(t, actual.Consumed)

	require.NoError(t, store.MarkAcknowledged(ctx, "premium", "token-1"))
	actual, err = store.GetPurchase(ctx, "premium")
	require.NoError(t, err)
	require.True(t, actual.Acknowledged)
	require.False(t, actual.Consumed)
	require.Equal(t, billing.LifecycleAcknowledged, actual.Lifecycle())

	require.NoError(t, store.MarkConsumed(ctx, "premium", "token-1"))
	actual, err = store.GetPurchase(ctx, "premium")
	require.NoError(t, err)
	require.True(t, actual.Acknowledged)
	require.True(t, actual.Consumed)
	require.Equal(t, billing.LifecycleConsumed, actual.Lifecycle())
}
