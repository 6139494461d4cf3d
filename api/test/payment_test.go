package test

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront/api/web"
	mock "github.com/stripe/stripe-mock/param"
)

const declinedCard = "pm_card_chargeDeclined"

// mockStripe confirms payment intents and answers a repeated
// Idempotency-Key with the intent it created the first time.
type mockStripe struct {
	mu      sync.Mutex
	intents map[string]map[string]any
	amounts []int
	gate    *gate
}

// gate holds the next confirmation: entered is closed once the request
// arrives and the answer is sent after release is closed.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newMockStripe() *mockStripe {
	return &mockStripe{intents: make(map[string]map[string]any)}
}

func (m *mockStripe) handle() http.Handler {
	intents := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, http.StatusBadRequest)
			return
		}

		if params["payment_method"] == declinedCard {
			web.Respond(context.Background(), w, map[string]any{
				"error": map[string]any{
					"type":         "card_error",
					"code":         "card_declined",
					"decline_code": "generic_decline",
					"message":      "Your card was declined.",
				},
			}, http.StatusPaymentRequired)
			return
		}

		m.mu.Lock()
		g := m.gate
		m.gate = nil
		m.mu.Unlock()

		if g != nil {
			close(g.entered)
			<-g.release
		}

		amount, err := strconv.Atoi(fmt.Sprint(params["amount"]))
		if err != nil {
			web.Respond(context.Background(), w, nil, http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		key := r.Header.Get("Idempotency-Key")
		pi, ok := m.intents[key]
		if !ok {
			m.amounts = append(m.amounts, amount)
			pi = map[string]any{
				"id":       fmt.Sprintf("pi_%d", len(m.amounts)),
				"object":   "payment_intent",
				"amount":   amount,
				"currency": params["currency"],
				"status":   "succeeded",
			}
			m.intents[key] = pi
		}

		web.Respond(context.Background(), w, pi, http.StatusOK)
	})

	r := mux.NewRouter()
	r.Handle("/v1/payment_intents", intents).Methods("POST")
	return r
}

// charged lists the amounts of every distinct intent, in creation order.
func (m *mockStripe) charged() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.amounts...)
}

func (m *mockStripe) hold() *gate {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gate = &gate{entered: make(chan struct{}), release: make(chan struct{})}
	return m.gate
}
