package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-payments/billing-bridge/billing"
	"github.com/code-payments/billing-bridge/billing/memory"
	"github.com/code-payments/billing-bridge/bridge"
	"github.com/code-payments/billing-bridge/testutil"
)

func TestSession_RunOnce(t *testing.T) {
	h := testutil.RunSession(t)
	flush(t, h.Session)

	require.ErrorIs(t, h.Session.Run(context.Background()), bridge.ErrAlreadyRunning)
	require.Eventually(t, func() bool { return h.Provider.Calls(memory.OpConnect) == 1 }, waitFor, tick)
}

func TestSession_Closed(t *testing.T) {
	provider := memory.NewProvider(testutil.TestPackageName)
	defer provider.Close()

	store := memory.NewInMemory()
	session := bridge.NewSession(zap.NewNop(), provider, store, store)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx) }()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), waitFor)
	defer flushCancel()
	require.NoError(t, session.Flush(flushCtx))

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		require.FailNow(t, "session did not stop")
	}

	require.ErrorIs(t, session.Flush(context.Background()), bridge.ErrSessionClosed)

	// Work posted after shutdown is dropped without a response.
	action := testutil.NewRecorder[*bridge.ProductResponse]()
	session.LoadProducts([]string{"A"}, billing.KindOneTime, action.Callback())
	require.Zero(t, action.Len())
}

func TestSession_Unsubscribe(t *testing.T) {
	h := testutil.RunSession(t)

	updated := testutil.NewRecorder[*bridge.PurchaseResponse]()
	h.Session.SubscribePurchaseUpdated(updated.Handler())
	flush(t, h.Session)

	h.Provider.Publish(billing.ResultOK, ownedPurchase("A", "token-a", billing.StatePurchased))
	require.Eventually(t, func() bool { return updated.Len() == 1 }, waitFor, tick)

	h.Session.UnsubscribePurchaseUpdated()
	flush(t, h.Session)

	h.Provider.Publish(billing.ResultOK, ownedPurchase("B", "token-b", billing.StatePurchased))
	require.Eventually(t, func() bool {
		purchases, err := h.Store.ListPurchases(context.Background())
		return err == nil && len(purchases) == 2
	}, waitFor, tick)
	flush(t, h.Session)
	require.Equal(t, 1, updated.Len())
}

func TestSession_ListenerReplaced(t *testing.T) {
	h := testutil.RunSession(t, testutil.WithProvider(seedCatalog))

	first := testutil.NewRecorder[*bridge.ProductResponse]()
	second := testutil.NewRecorder[*bridge.ProductResponse]()
	h.Session.SubscribeProductLoaded(first.Handler())
	h.Session.SubscribeProductLoaded(second.Handler())

	h.Session.LoadProducts([]string{"A", "B"}, billing.KindOneTime, nil)
	require.Eventually(t, func() bool { return second.Len() == 2 }, waitFor, tick)
	flush(t, h.Session)
	require.Zero(t, first.Len())
}
