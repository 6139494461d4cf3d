package checkout

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/events"
	"github.com/irsalhamdi/storefront/lock"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = int64(7)

type harness struct {
	svc     *Service
	store   *memStore
	gateway *fakeGateway
	events  *events.Recorder
	bg      *background.Background
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{
		store:   newMemStore(),
		gateway: newFakeGateway(),
		events:  &events.Recorder{},
		bg:      background.New(log),
		metrics: metrics.New(),
	}
	h.svc = NewService(Config{
		Store:    h.store,
		Gateway:  h.gateway,
		Locker:   lock.NewLocal(),
		Events:   events.NewDispatcher(h.events, h.bg, log),
		Metrics:  h.metrics,
		Log:      log,
		Currency: "usd",
		Timeout:  timeout,
	})
	return h
}

// published waits for background publishing and returns the event types.
func (h *harness) published(t *testing.T) []events.Type {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.bg.Shutdown(ctx))

	return h.events.Types()
}

func (h *harness) fillCart() {
	h.store.add(userID, 1, 500, 2)
	h.store.add(userID, 2, 300, 1)
}

func (h *harness) checkouts(t *testing.T, want string) {
	t.Helper()

	err := testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(want), "storefront_checkouts_total")
	require.NoError(t, err)
}

func request() Request {
	return Request{
		UserID:         userID,
		IdempotencyKey: uuid.NewString(),
		PaymentToken:   "tok_visa",
		Method:         MethodGateway,
	}
}

func TestCheckoutCompletes(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()

	res, err := h.svc.Checkout(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, Completed, res.State)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Charge)
	assert.Equal(t, "ch_1", res.Charge.ReferenceID)

	ord := res.Order
	assert.Equal(t, 1300, ord.TotalPrice)
	assert.Equal(t, ord.TotalPrice, ord.ItemsTotal())
	require.Len(t, ord.Items, 2)
	assert.Equal(t, 500, ord.Items[0].UnitPrice)
	assert.Equal(t, 2, ord.Items[0].Quantity)
	assert.Equal(t, 300, ord.Items[1].UnitPrice)
	assert.Equal(t, 1, ord.Items[1].Quantity)

	assert.Empty(t, h.store.cart(userID))
	require.Len(t, h.store.records, 1)
	assert.Equal(t, "ch_1", h.store.records[0].ReferenceID)
	assert.Equal(t, ord.ID, h.store.records[0].OrderID)

	assert.Equal(t, []events.Type{events.OrderPaid}, h.published(t))
	h.checkouts(t, `
# HELP storefront_checkouts_total Checkout attempts by terminal state.
# TYPE storefront_checkouts_total counter
storefront_checkouts_total{state="completed"} 1
`)
}

func TestCheckoutEmptyCart(t *testing.T) {
	h := newHarness(t, time.Second)

	_, err := h.svc.Checkout(context.Background(), request())
	require.ErrorIs(t, err, ErrEmptyCart)

	assert.Zero(t, h.gateway.callCount())
	assert.Zero(t, h.store.orderCount())
}

func TestCheckoutDeclined(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()
	before := h.store.cart(userID)

	h.gateway.err = &payment.Error{Kind: payment.KindDeclined, Reason: "Your card was declined. (insufficient_funds)"}

	_, err := h.svc.Checkout(context.Background(), request())

	var cerr *ChargeFailedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Your card was declined. (insufficient_funds)", cerr.Reason)
	assert.ErrorIs(t, err, payment.ErrDeclined)

	assert.Zero(t, h.store.orderCount())
	assert.Empty(t, h.store.records)
	assert.Equal(t, before, h.store.cart(userID))
	assert.Equal(t, 1, h.gateway.callCount(), "a declined charge is never retried")
	assert.Empty(t, h.published(t))
}

func TestCheckoutFinalizeFailed(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()
	h.store.finalizeErr = errors.New("connection reset by peer")

	_, err := h.svc.Checkout(context.Background(), request())

	var ferr *FinalizeFailedError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "ch_1", ferr.ReferenceID)
	assert.Equal(t, "fake", ferr.Provider)
	assert.Equal(t, 1300, ferr.Amount)
	assert.ErrorIs(t, err, h.store.finalizeErr)

	assert.Zero(t, h.store.orderCount())
	assert.Equal(t, []events.Type{events.FinalizeFailed}, h.published(t))

	ev := h.events.Events()[0]
	assert.Contains(t, string(ev.Data), `"referenceId":"ch_1"`)

	h.checkouts(t, `
# HELP storefront_checkouts_total Checkout attempts by terminal state.
# TYPE storefront_checkouts_total counter
storefront_checkouts_total{state="finalize_failed"} 1
`)
}

func TestCheckoutReplay(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()
	req := request()

	first, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	h.fillCart()

	second, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, h.store.orderCount())
	assert.Equal(t, 1, h.gateway.callCount())
	assert.Len(t, h.store.cart(userID), 2, "the replay leaves the new cart alone")
}

func TestCheckoutConcurrent(t *testing.T) {
	t.Run("different keys", func(t *testing.T) {
		h := newHarness(t, time.Second)
		h.fillCart()

		errs := runConcurrently(h.svc, request(), request())

		assert.Equal(t, 1, h.store.orderCount())
		assert.Equal(t, 1, h.gateway.charges())

		var failed int
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, ErrEmptyCart)
				failed++
			}
		}
		assert.Equal(t, 1, failed)
	})

	t.Run("same key", func(t *testing.T) {
		h := newHarness(t, time.Second)
		h.fillCart()
		req := request()

		errs := runConcurrently(h.svc, req, req)
		for _, err := range errs {
			assert.NoError(t, err)
		}

		assert.Equal(t, 1, h.store.orderCount())
		assert.Equal(t, 1, h.gateway.callCount())
	})
}

func runConcurrently(svc *Service, reqs ...Request) []error {
	errs := make([]error, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(), req)
		}(i, req)
	}
	wg.Wait()

	return errs
}

func TestCheckoutGatewayTimeout(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.fillCart()
	h.gateway.hang = true
	req := request()

	_, err := h.svc.Checkout(context.Background(), req)

	var terr *GatewayTimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, req.IdempotencyKey, terr.IdempotencyKey)
	assert.Zero(t, h.store.orderCount())
	assert.Len(t, h.store.cart(userID), 2)

	pending, err := h.svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.KindCheckout, pending.Kind)
	assert.Equal(t, 1300, pending.Amount)

	// a new attempt must not charge again while the outcome is unknown
	_, err = h.svc.Checkout(context.Background(), request())
	require.ErrorIs(t, err, ErrReconcileRequired)
	assert.Equal(t, 1, h.gateway.callCount())

	credits := request()
	credits.Method = MethodCredits
	_, err = h.svc.Checkout(context.Background(), credits)
	require.ErrorIs(t, err, ErrReconcileRequired)

	// the retry with the same key is deduplicated by the gateway
	h.gateway.hang = false
	res, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ch_1", res.Charge.ReferenceID)
	assert.Equal(t, 1, h.gateway.charges())

	_, err = h.svc.Reconcile(context.Background(), userID)
	assert.ErrorIs(t, err, reconcile.ErrNotFound)

	assert.ElementsMatch(t, []events.Type{events.ChargeUnresolved, events.OrderPaid}, h.published(t))
}

func TestCheckoutNetworkErrorKeepsChargeUnresolved(t *testing.T) {
	h := newHarness(t, 20*time.Millisecond)
	h.fillCart()
	h.gateway.hang = true
	req := request()

	_, err := h.svc.Checkout(context.Background(), req)
	var terr *GatewayTimeoutError
	require.ErrorAs(t, err, &terr)

	// the retry with the same key cannot reach the provider
	h.gateway.hang = false
	h.gateway.err = &payment.Error{Kind: payment.KindNetwork, Reason: "api_error: service unavailable"}

	_, err = h.svc.Checkout(context.Background(), req)
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, payment.ErrNetwork)

	pending, err := h.svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, req.IdempotencyKey, pending.IdempotencyKey)

	h.gateway.err = nil
	_, err = h.svc.Checkout(context.Background(), request())
	require.ErrorIs(t, err, ErrReconcileRequired)
	assert.Equal(t, 1, h.gateway.charges())
	assert.Zero(t, h.store.orderCount())

	res, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ch_1", res.Charge.ReferenceID)
	assert.Equal(t, 1, h.gateway.charges())
	assert.Equal(t, 1, h.store.orderCount())
}

func TestCheckoutFinalizeFailedBlocksNewCharge(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()
	h.store.finalizeErr = errors.New("connection reset by peer")
	req := request()

	_, err := h.svc.Checkout(context.Background(), req)
	var ferr *FinalizeFailedError
	require.ErrorAs(t, err, &ferr)

	pending, err := h.svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.KindCheckout, pending.Kind)
	assert.Equal(t, req.IdempotencyKey, pending.IdempotencyKey)
	assert.Equal(t, "ch_1", pending.ReferenceID)
	assert.Equal(t, 1300, pending.Amount)

	h.store.finalizeErr = nil

	_, err = h.svc.Checkout(context.Background(), request())
	require.ErrorIs(t, err, ErrReconcileRequired)
	assert.Equal(t, 1, h.gateway.charges())
	assert.Zero(t, h.store.orderCount())

	// a decline on the retry must not settle money already collected
	h.gateway.err = &payment.Error{Kind: payment.KindDeclined, Reason: "card declined"}
	_, err = h.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrDeclined)
	_, err = h.svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)

	h.gateway.err = nil
	res, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ch_1", res.Charge.ReferenceID)
	assert.Equal(t, 1, h.gateway.charges())
	assert.Equal(t, 1, h.store.orderCount())

	_, err = h.svc.Reconcile(context.Background(), userID)
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestCheckoutDeclineSettlesUnresolved(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()
	req := request()

	require.NoError(t, h.store.MarkUnresolved(context.Background(), reconcile.Charge{
		UserID:         userID,
		Kind:           reconcile.KindCheckout,
		IdempotencyKey: req.IdempotencyKey,
		Amount:         1300,
	}))
	h.gateway.err = &payment.Error{Kind: payment.KindInvalidToken, Reason: "No such PaymentMethod"}

	_, err := h.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrInvalidToken)

	_, err = h.svc.Reconcile(context.Background(), userID)
	assert.ErrorIs(t, err, reconcile.ErrNotFound)
}

func TestCheckoutWithCredits(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()
	h.store.credits[userID] = 1000

	req := request()
	req.Method = MethodCredits
	req.PaymentToken = ""

	_, err := h.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Len(t, h.store.cart(userID), 2)
	assert.Zero(t, h.store.orderCount())

	h.store.credits[userID] = 2000

	res, err := h.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Charge)
	assert.Equal(t, 1300, res.Order.TotalPrice)
	assert.Equal(t, 700, h.store.credits[userID])
	assert.Empty(t, h.store.cart(userID))
	assert.Zero(t, h.gateway.callCount())

	require.Len(t, h.store.records, 1)
	assert.Equal(t, creditsProvider, h.store.records[0].Provider)
}

func TestCheckoutRejectsBadRequests(t *testing.T) {
	h := newHarness(t, time.Second)
	h.fillCart()

	req := request()
	req.IdempotencyKey = ""
	_, err := h.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, ErrIdempotencyKey)

	req = request()
	req.Method = "cash"
	_, err = h.svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, ErrMethod)

	assert.Zero(t, h.gateway.callCount())
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		Quoted:         "quoted",
		Charging:       "charging",
		Finalizing:     "finalizing",
		Completed:      "completed",
		ChargeFailed:   "charge_failed",
		GatewayTimeout: "gateway_timeout",
		FinalizeFailed: "finalize_failed",
	}

	for s, want := range states {
		assert.Equal(t, want, s.String())
	}
}
