package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/reconcile"
)

// memStore keeps the checkout tables in memory. finalizeErr makes every
// Finalize fail, as a storage fault after the charge would.
type memStore struct {
	mu          sync.Mutex
	carts       map[int64][]cart.Line
	credits     map[int64]int
	orders      []order.Order
	records     []Record
	unresolved  map[int64]reconcile.Charge
	finalizeErr error
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		carts:      make(map[int64][]cart.Line),
		credits:    make(map[int64]int),
		unresolved: make(map[int64]reconcile.Charge),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) add(userID, productID int64, price, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.carts[userID] = append(m.carts[userID], cart.Line{
		ItemID:    m.id(),
		ProductID: productID,
		Name:      fmt.Sprintf("product %d", productID),
		Price:     price,
		Quantity:  qty,
	})
}

func (m *memStore) cart(userID int64) []cart.Line {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]cart.Line, len(m.carts[userID]))
	copy(out, m.carts[userID])
	return out
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) FindOrder(ctx context.Context, userID int64, key string) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (m *memStore) Quote(ctx context.Context, userID int64) ([]cart.Line, error) {
	return m.cart(userID), nil
}

func (m *memStore) Unresolved(ctx context.Context, userID int64) (reconcile.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.unresolved[userID]
	if !ok {
		return reconcile.Charge{}, reconcile.ErrNotFound
	}
	return c, nil
}

func (m *memStore) MarkUnresolved(ctx context.Context, c reconcile.Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unresolved[c.UserID] = c
	return nil
}

func (m *memStore) ClearUnresolved(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.unresolved, userID)
	return nil
}

func (m *memStore) Finalize(ctx context.Context, f Finalization) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalizeErr != nil {
		return order.Order{}, m.finalizeErr
	}

	for _, o := range m.orders {
		if o.UserID == f.UserID && o.IdempotencyKey == f.IdempotencyKey {
			return order.Order{}, order.ErrDuplicate
		}
	}

	if f.Charge == nil {
		if m.credits[f.UserID] < f.Total {
			return order.Order{}, ErrInsufficientCredits
		}
	}

	// consume on a copy so a failure leaves the cart untouched
	rest := make([]cart.Line, 0, len(m.carts[f.UserID]))
	consumed := 0
	for _, l := range m.carts[f.UserID] {
		for _, q := range f.Lines {
			if q.ItemID != l.ItemID {
				continue
			}
			if l.Quantity < q.Quantity {
				return order.Order{}, cart.ErrChanged
			}
			l.Quantity -= q.Quantity
			consumed++
		}
		if l.Quantity > 0 {
			rest = append(rest, l)
		}
	}
	if consumed != len(f.Lines) {
		return order.Order{}, cart.ErrChanged
	}

	if f.Charge == nil {
		m.credits[f.UserID] -= f.Total
	}
	m.carts[f.UserID] = rest

	ord := order.Order{
		ID:             m.id(),
		UserID:         f.UserID,
		IdempotencyKey: f.IdempotencyKey,
		Status:         order.Paid,
		TotalPrice:     f.Total,
		CreatedAt:      f.At,
		UpdatedAt:      f.At,
	}
	for _, l := range f.Lines {
		ord.Items = append(ord.Items, order.Item{
			ID:        m.id(),
			OrderID:   ord.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.Price,
		})
	}
	m.orders = append(m.orders, ord)

	rec := Record{ID: m.id(), UserID: f.UserID, OrderID: ord.ID, Provider: creditsProvider, Amount: f.Total}
	if f.Charge != nil {
		rec.Provider = f.Charge.Provider
		rec.ReferenceID = f.Charge.ReferenceID
	}
	m.records = append(m.records, rec)

	delete(m.unresolved, f.UserID)
	return ord, nil
}

// fakeGateway charges at most once per idempotency key, like a real
// provider. With hang set it records the charge and then never answers.
type fakeGateway struct {
	mu      sync.Mutex
	err     error
	hang    bool
	calls   int
	charged map[string]payment.Charge
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{charged: make(map[string]payment.Charge)}
}

func (g *fakeGateway) Provider() string { return "fake" }

func (g *fakeGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	g.mu.Lock()
	g.calls++
	if g.err != nil {
		err := g.err
		g.mu.Unlock()
		return payment.Charge{}, err
	}

	ch, ok := g.charged[req.IdempotencyKey]
	if !ok {
		ch = payment.Charge{
			Provider:    g.Provider(),
			ReferenceID: fmt.Sprintf("ch_%d", len(g.charged)+1),
			Amount:      req.Amount,
		}
		g.charged[req.IdempotencyKey] = ch
	}
	hang := g.hang
	g.mu.Unlock()

	if hang {
		select {
		case <-ctx.Done():
			return payment.Charge{}, &payment.Error{Kind: payment.KindTimeout, Reason: ctx.Err().Error(), Err: ctx.Err()}
		case <-time.After(time.Minute):
		}
	}
	return ch, nil
}

func (g *fakeGateway) charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charged)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
