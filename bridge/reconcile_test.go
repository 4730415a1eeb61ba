package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/billing/memory"
	"github.com/code-payments/billing-bridge/bridge"
	"github.com/code-payments/billing-bridge/testutil"
)

func TestRestore_LastMergedWins(t *testing.T) {
	for _, tc := range []struct {
		name     string
		oneTime  *billing.Purchase
		subs     *billing.Purchase
		expected *billing.Purchase
	}{
		{
			name:     "PurchasedThenPending",
			oneTime:  ownedPurchase("A", "token-inapp", billing.StatePurchased),
			subs:     ownedPurchase("A", "token-subs", billing.StatePending),
			expected: ownedPurchase("A", "token-subs", billing.StatePending),
		},
		{
			name:     "PendingThenPurchased",
			oneTime:  ownedPurchase("A", "token-inapp", billing.StatePending),
			subs:     ownedPurchase("A", "token-subs", billing.StatePurchased),
			expected: ownedPurchase("A", "token-subs", billing.StatePurchased),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
				p.AddOwnedPurchase(billing.KindOneTime, tc.oneTime)
				p.AddOwnedPurchase(billing.KindSubscription, tc.subs)
			}))

			updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
			h.Session.SubscribePurchaseUpdated(updated.Handler())

			restore(t, h, updated, 2)

			purchases, err := h.Store.ListPurchases(context.Background())
			require.NoError(t, err)
			require.Len(t, purchases, 1)
			require.Equal(t, tc.expected, purchases[0])

			require.Equal(t, "token-inapp", updated.Values()[0].Receipt.PurchaseToken)
			require.Equal(t, "token-subs", updated.Values()[1].Receipt.PurchaseToken)
		})
	}
}

func TestRestore_DoesNotTouchActionSlot(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
		seedCatalog(p)
		p.SetCompletionState(billing.StateUnspecified)
		p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("A", "token-a", billing.StatePurchased))
	}))
	loadProducts(t, h, billing.KindOneTime, "A")

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())

	action := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.Purchase("A", action.Callback())

	restore(t, h, updated, 1)
	require.Zero(t, action.Len())
}

func TestRestore_PartialFailure(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
		p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("A", "token-a", billing.StatePurchased))
	}))

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())

	h.Provider.SetResult(memory.OpQueryOwned, billing.ResultServiceDisconnected)
	h.Session.Restore()
	require.Eventually(t, func() bool { return h.Provider.Calls(memory.OpQueryOwned) == 2 }, waitFor, tick)
	flush(t, h.Session)
	flush(t, h.Session)
	require.Zero(t, updated.Len())

	h.Provider.SetResult(memory.OpQueryOwned, billing.ResultOK)
	restore(t, h, updated, 1)
}

func TestAcknowledge_UnknownIsDropped(t *testing.T) {
	h := testutil.RunSession(t)

	done := testutil.NewRecorder[struct{}]()
	h.Session.Acknowledge("X", done.Done())
	flush(t, h.Session)

	require.Zero(t, done.Len())
	require.Zero(t, h.Provider.Calls(memory.OpAcknowledge))

	purchases, err := h.Store.ListPurchases(context.Background())
	require.NoError(t, err)
	require.Empty(t, purchases)

	lifecycle, err := h.Session.Lifecycle(context.Background(), "X")
	require.NoError(t, err)
	require.Equal(t, billing.LifecycleUnknown, lifecycle)
}

func TestAcknowledge_UnknownStrict(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithBridgeOptions(bridge.WithStrictMode(true)))

	done := testutil.NewRecorder[struct{}]()
	h.Session.Acknowledge("X", done.Done())
	flush(t, h.Session)

	require.Len(t, done.Errors(), 1)
	require.ErrorIs(t, done.Errors()[0], bridge.ErrUnknownPurchase)
}

func TestAcknowledge_Success(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
		p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("A", "token-a", billing.StatePurchased))
	}))

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())
	restore(t, h, updated, 1)

	done := testutil.NewRecorder[struct{}]()
	h.Session.Acknowledge("A", done.Done())
	require.Eventually(t, func() bool { return done.Len() == 1 }, waitFor, tick)
	require.Empty(t, done.Errors())

	lifecycle, err := h.Session.Lifecycle(context.Background(), "A")
	require.NoError(t, err)
	require.Equal(t, billing.LifecycleAcknowledged, lifecycle)

	// A stale provider record for the same token doesn't revert the flag.
	h.Provider.Publish(billing.ResultOK, ownedPurchase("A", "token-a", billing.StatePurchased))
	require.Eventually(t, func() bool { return updated.Len() == 2 }, waitFor, tick)
	require.True(t, updated.Values()[1].Receipt.Acknowledged)

	cached, err := h.Store.GetPurchase(context.Background(), "A")
	require.NoError(t, err)
	require.True(t, cached.Acknowledged)
}

func TestAcknowledge_ProviderFailure(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
		p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("A", "token-a", billing.StatePurchased))
	}))

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())
	restore(t, h, updated, 1)

	h.Provider.SetResult(memory.OpAcknowledge, billing.ResultServiceUnavailable)

	done := testutil.NewRecorder[struct{}]()
	h.Session.Acknowledge("A", done.Done())
	require.Eventually(t, func() bool { return done.Len() == 1 }, waitFor, tick)
	requireProviderCode(t, done.Errors()[0], billing.ResultServiceUnavailable)

	cached, err := h.Store.GetPurchase(context.Background(), "A")
	require.NoError(t, err)
	require.False(t, cached.Acknowledged)
}

func TestConsume_ProviderFailureLeavesCache(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
		p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("X", "token-x", billing.StatePurchased))
	}))

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())
	restore(t, h, updated, 1)

	before, err := h.Store.GetPurchase(context.Background(), "X")
	require.NoError(t, err)

	h.Provider.SetResult(memory.OpConsume, billing.ResultCode(7))

	consumed := testutil.NewRecorder[string]()
	h.Session.Consume("X", consumed.Callback())
	require.Eventually(t, func() bool { return consumed.Len() == 1 }, waitFor, tick)
	flush(t, h.Session)

	require.Empty(t, consumed.Values())
	requireProviderCode(t, consumed.Errors()[0], billing.ResultCode(7))

	after, err := h.Store.GetPurchase(context.Background(), "X")
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 1, updated.Len())
}

func TestConsume_Success(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
		p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("X", "token-x", billing.StatePurchased))
	}))

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())
	restore(t, h, updated, 1)

	consumed := testutil.NewRecorder[string]()
	h.Session.Consume("X", consumed.Callback())
	require.Eventually(t, func() bool { return consumed.Len() == 1 }, waitFor, tick)
	require.Equal(t, []string{"token-x"}, consumed.Values())

	lifecycle, err := h.Session.Lifecycle(context.Background(), "X")
	require.NoError(t, err)
	require.Equal(t, billing.LifecycleConsumed, lifecycle)

	// Unknown ids stay silent.
	h.Session.Consume("Y", consumed.Callback())
	flush(t, h.Session)
	require.Equal(t, 1, consumed.Len())
}

func TestManage(t *testing.T) {
	h := testutil.RunSession(t)

	done := testutil.NewRecorder[struct{}]()
	h.Session.Manage(done.Done())
	require.Eventually(t, func() bool { return done.Len() == 1 }, waitFor, tick)
	require.Empty(t, done.Errors())

	h.Provider.SetResult(memory.OpManage, billing.ResultFeatureNotSupported)
	h.Session.Manage(done.Done())
	require.Eventually(t, func() bool { return done.Len() == 2 }, waitFor, tick)
	requireProviderCode(t, done.Errors()[0], billing.ResultFeatureNotSupported)
}

func TestLocalFlags_OnlyApplyToHandledToken(t *testing.T) {
	type answer struct {
		token string
		err   error
	}

	for _, tc := range []struct {
		name  string
		call  func(h *testutil.Harness, answers chan<- answer)
		token string
	}{
		{
			name: "Acknowledge",
			call: func(h *testutil.Harness, answers chan<- answer) {
				h.Session.Acknowledge("A", func(err error) { answers <- answer{err: err} })
			},
		},
		{
			name: "Consume",
			call: func(h *testutil.Harness, answers chan<- answer) {
				h.Session.Consume("A", func(token string, err error) { answers <- answer{token: token, err: err} })
			},
			token: "token-a",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := testutil.RunSession(t, testutil.WithProvider(func(p *memory.Provider) {
				p.AddOwnedPurchase(billing.KindOneTime, ownedPurchase("A", "token-a", billing.StatePurchased))
			}))

			updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
			h.Session.SubscribePurchaseUpdated(updated.Handler())
			restore(t, h, updated, 1)

			h.Provider.Hold()

			answers := make(chan answer, 1)
			tc.call(h, answers)
			require.Eventually(t, func() bool {
				return h.Provider.Calls(memory.OpAcknowledge)+h.Provider.Calls(memory.OpConsume) == 1
			}, waitFor, tick)

			// A newer purchase of the same product lands while the call is in flight.
			h.Provider.Publish(billing.ResultOK, ownedPurchase("A", "token-b", billing.StatePurchased))
			require.Eventually(t, func() bool { return updated.Len() == 2 }, waitFor, tick)

			h.Provider.Release()
			select {
			case a := <-answers:
				require.NoError(t, a.err)
				require.Equal(t, tc.token, a.token)
			case <-time.After(waitFor):
				require.FailNow(t, "call was not answered")
			}
			flush(t, h.Session)

			cached, err := h.Store.GetPurchase(context.Background(), "A")
			require.NoError(t, err)
			require.Equal(t, "token-b", cached.PurchaseToken)
			require.False(t, cached.Acknowledged)
			require.False(t, cached.Consumed)

			lifecycle, err := h.Session.Lifecycle(context.Background(), "A")
			require.NoError(t, err)
			require.Equal(t, billing.LifecyclePurchased, lifecycle)
		})
	}
}
