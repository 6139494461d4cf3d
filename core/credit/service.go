// Package credit sells store credits through the payment gateway. Credits
// can later pay for a checkout instead of a card.
package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/storefront/core/checkout"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/core/user"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/events"
	"github.com/irsalhamdi/storefront/lock"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DB        *sqlx.DB
	Gateway   payment.Gateway
	Locker    lock.Locker
	Events    *events.Dispatcher
	Metrics   *metrics.Metrics
	Log       logrus.FieldLogger
	Currency  string
	UnitPrice int
	Timeout   time.Duration
}

type Service struct {
	cfg     Config
	charger *checkout.Charger
}

func NewService(cfg Config) *Service {
	return &Service{
		cfg: cfg,
		charger: &checkout.Charger{
			Gateway: cfg.Gateway,
			Ledger:  reconcile.NewLedger(cfg.DB),
			Events:  cfg.Events,
			Metrics: cfg.Metrics,
			Timeout: cfg.Timeout,
		},
	}
}

// Amount is the price of n credits in minor currency units.
func (s *Service) Amount(n int) int {
	return n * s.cfg.UnitPrice
}

func (s *Service) Purchase(ctx context.Context, req Request) (Result, error) {
	if req.IdempotencyKey == "" {
		return Result{}, checkout.ErrIdempotencyKey
	}

	amount := s.Amount(req.Credits)
	log := s.cfg.Log.WithFields(logrus.Fields{
		"user_id":         req.UserID,
		"idempotency_key": req.IdempotencyKey,
		"credits":         req.Credits,
		"amount":          amount,
	})

	unlock, err := s.cfg.Locker.Lock(ctx, lock.UserKey(req.UserID))
	if err != nil {
		return Result{}, fmt.Errorf("locking credit purchase of user[%d]: %w", req.UserID, err)
	}
	defer unlock()

	prev, err := FetchByKey(ctx, s.cfg.DB, req.UserID, req.IdempotencyKey)
	switch {
	case err == nil:
		return s.result(ctx, prev, true)
	case !errors.Is(err, ErrNotFound):
		return Result{}, err
	}

	attempt := checkout.Attempt{
		UserID:         req.UserID,
		Kind:           reconcile.KindCredits,
		IdempotencyKey: req.IdempotencyKey,
		Request: payment.ChargeRequest{
			Amount:         amount,
			Currency:       strings.ToUpper(s.cfg.Currency),
			Token:          req.PaymentToken,
			IdempotencyKey: fmt.Sprintf("credits-%d-%s", req.UserID, req.IdempotencyKey),
			Description:    fmt.Sprintf("%d credits for user %d", req.Credits, req.UserID),
		},
	}

	pending, err := reconcile.Fetch(ctx, s.cfg.DB, req.UserID)
	switch {
	case err == nil:
		if !pending.Matches(reconcile.KindCredits, req.IdempotencyKey, amount) {
			return Result{}, checkout.ErrReconcileRequired
		}
		attempt.Pending = &pending
	case !errors.Is(err, reconcile.ErrNotFound):
		return Result{}, err
	}

	ch, err := s.charger.Charge(ctx, log, attempt)
	if err != nil {
		return Result{}, err
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	p := Purchase{
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Date:           time.Now().UTC(),
		Credits:        req.Credits,
		PurchaseAmount: payment.MajorUnits(amount),
		ReferenceID:    ch.ReferenceID,
	}

	err = database.Transaction(fctx, s.cfg.DB, func(tx sqlx.ExtContext) error {
		if err := user.Lock(fctx, tx, req.UserID); err != nil {
			return err
		}
		if err := Create(fctx, tx, &p); err != nil {
			return err
		}
		if err := user.AddCredits(fctx, tx, req.UserID, req.Credits, p.Date); err != nil {
			return err
		}
		return reconcile.Clear(fctx, tx, req.UserID)
	})
	if err != nil {
		return Result{}, s.charger.FinalizeFailed(ctx, log, attempt, ch, err)
	}

	s.cfg.Metrics.CheckoutFinished("credits_" + checkout.Completed.String())
	log.WithField("reference_id", ch.ReferenceID).Info("credits purchased")
	s.cfg.Events.Send(ctx, events.CreditsPurchased, req.UserID, p)

	return s.result(ctx, p, false)
}

func (s *Service) result(ctx context.Context, p Purchase, replayed bool) (Result, error) {
	u, err := user.Fetch(ctx, s.cfg.DB, p.UserID)
	if err != nil {
		return Result{}, err
	}
	return Result{Purchase: p, Balance: u.Credits, Replayed: replayed}, nil
}
