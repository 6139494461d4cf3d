package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/events"
	"github.com/irsalhamdi/storefront/lock"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Store    Store
	Gateway  payment.Gateway
	Locker   lock.Locker
	Events   *events.Dispatcher
	Metrics  *metrics.Metrics
	Log      logrus.FieldLogger
	Currency string
	Timeout  time.Duration
}

type Service struct {
	store    Store
	charger  *Charger
	locker   lock.Locker
	events   *events.Dispatcher
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	currency string
	timeout  time.Duration
	now      func() time.Time
}

func NewService(cfg Config) *Service {
	now := func() time.Time { return time.Now().UTC() }

	return &Service{
		store: cfg.Store,
		charger: &Charger{
			Gateway: cfg.Gateway,
			Ledger:  cfg.Store,
			Events:  cfg.Events,
			Metrics: cfg.Metrics,
			Timeout: cfg.Timeout,
			Now:     now,
		},
		locker:   cfg.Locker,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
		currency: cfg.Currency,
		timeout:  cfg.Timeout,
		now:      now,
	}
}

// GatewayKey is the idempotency key sent to the provider. It is the same for
// every retry of one checkout.
func GatewayKey(userID int64, key string) string {
	return fmt.Sprintf("checkout-%d-%s", userID, key)
}

// Checkout charges the user for the current cart and records the order. A
// request whose idempotency key already produced an order returns that order
// without charging again.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	if req.IdempotencyKey == "" {
		return Result{}, ErrIdempotencyKey
	}
	if req.Method == "" {
		req.Method = MethodGateway
	}
	if req.Method != MethodGateway && req.Method != MethodCredits {
		return Result{}, ErrMethod
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":         req.UserID,
		"idempotency_key": req.IdempotencyKey,
		"method":          req.Method,
	})

	unlock, err := s.locker.Lock(ctx, lock.UserKey(req.UserID))
	if err != nil {
		return Result{}, fmt.Errorf("locking checkout of user[%d]: %w", req.UserID, err)
	}
	defer unlock()

	prev, err := s.store.FindOrder(ctx, req.UserID, req.IdempotencyKey)
	switch {
	case err == nil:
		log.WithField("order_id", prev.ID).Debug("checkout replayed")
		return Result{Order: prev, State: Completed, Replayed: true}, nil
	case !errors.Is(err, order.ErrNotFound):
		return Result{}, fmt.Errorf("looking up previous checkout: %w", err)
	}

	lines, err := s.store.Quote(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("quoting cart: %w", err)
	}
	if len(lines) == 0 {
		return Result{}, ErrEmptyCart
	}
	total := cart.Total(lines)
	log = log.WithField("total", total)
	log.WithField("state", Quoted).Debug("checkout state")

	attempt := Attempt{
		UserID:         req.UserID,
		Kind:           reconcile.KindCheckout,
		IdempotencyKey: req.IdempotencyKey,
		Request: payment.ChargeRequest{
			Amount:         total,
			Currency:       strings.ToUpper(s.currency),
			Token:          req.PaymentToken,
			IdempotencyKey: GatewayKey(req.UserID, req.IdempotencyKey),
			Description:    fmt.Sprintf("checkout of user %d", req.UserID),
			Metadata: map[string]string{
				"user_id":         fmt.Sprint(req.UserID),
				"idempotency_key": req.IdempotencyKey,
			},
		},
	}

	pending, err := s.store.Unresolved(ctx, req.UserID)
	switch {
	case err == nil:
		if !pending.Matches(reconcile.KindCheckout, req.IdempotencyKey, total) || req.Method != MethodGateway {
			return Result{}, ErrReconcileRequired
		}
		attempt.Pending = &pending
	case errors.Is(err, reconcile.ErrNotFound):
	default:
		return Result{}, fmt.Errorf("looking up unresolved charge: %w", err)
	}

	var ch *payment.Charge
	if req.Method == MethodGateway {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		log.WithField("state", Charging).Debug("checkout state")
		c, err := s.charger.Charge(ctx, log, attempt)
		if err != nil {
			return Result{}, err
		}
		ch = &c
	}

	log.WithField("state", Finalizing).Debug("checkout state")

	// Once charged the order must be recorded even if the caller went away.
	fctx := ctx
	if ch != nil {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
	}

	ord, err := s.store.Finalize(fctx, Finalization{
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          lines,
		Total:          total,
		Charge:         ch,
		At:             s.now(),
	})
	if err != nil {
		if ch == nil {
			if errors.Is(err, ErrInsufficientCredits) {
				return Result{}, ErrInsufficientCredits
			}
			return Result{}, err
		}
		return Result{}, s.charger.FinalizeFailed(ctx, log, attempt, *ch, err)
	}

	s.metrics.CheckoutFinished(Completed.String())
	log.WithFields(logrus.Fields{
		"state":    Completed,
		"order_id": ord.ID,
	}).Info("checkout completed")

	s.events.Send(ctx, events.OrderPaid, req.UserID, paidEvent{Order: ord, Charge: ch})

	return Result{Order: ord, Charge: ch, State: Completed}, nil
}

// Reconcile returns the user's charge whose outcome is still unknown, or
// reconcile.ErrNotFound.
func (s *Service) Reconcile(ctx context.Context, userID int64) (reconcile.Charge, error) {
	return s.store.Unresolved(ctx, userID)
}

type paidEvent struct {
	Order  order.Order     `json:"order"`
	Charge *payment.Charge `json:"charge,omitempty"`
}
