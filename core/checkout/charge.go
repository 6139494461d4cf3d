package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/events"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/sirupsen/logrus"
)

// Ledger records charges whose outcome is unknown or whose purchase was not
// recorded.
type Ledger interface {
	MarkUnresolved(ctx context.Context, c reconcile.Charge) error
	ClearUnresolved(ctx context.Context, userID int64) error
}

// Charger makes the single gateway call of a checkout or credit purchase and
// keeps the unresolved ledger in step with what is known about the money.
type Charger struct {
	Gateway payment.Gateway
	Ledger  Ledger
	Events  *events.Dispatcher
	Metrics *metrics.Metrics
	Timeout time.Duration
	Now     func() time.Time
}

// Attempt is one charge for the purchase identified by Kind and the caller's
// idempotency key. Pending is the unresolved charge it retries, if any.
type Attempt struct {
	UserID         int64
	Kind           reconcile.Kind
	IdempotencyKey string
	Request        payment.ChargeRequest
	Pending        *reconcile.Charge
}

func (a Attempt) unresolved(at time.Time) reconcile.Charge {
	return reconcile.Charge{
		UserID:         a.UserID,
		Kind:           a.Kind,
		IdempotencyKey: a.IdempotencyKey,
		Amount:         a.Request.Amount,
		CreatedAt:      at,
	}
}

// state is the metrics label of a terminal state.
func (a Attempt) state(s State) string {
	if a.Kind == reconcile.KindCheckout {
		return s.String()
	}
	return string(a.Kind) + "_" + s.String()
}

func (c *Charger) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Charge calls the gateway under its own timeout, detached from the caller.
// Any failure other than a decline or a rejected token leaves the charge
// unresolved, so only a retry with the same key is accepted afterwards.
func (c *Charger) Charge(ctx context.Context, log logrus.FieldLogger, a Attempt) (payment.Charge, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Timeout)
	defer cancel()

	start := time.Now()
	ch, err := c.Gateway.Charge(cctx, a.Request)
	c.Metrics.GatewayCall(c.Gateway.Provider(), outcome(err), time.Since(start))

	if err == nil {
		return ch, nil
	}

	if payment.Ambiguous(err) {
		mark := a.unresolved(c.now())
		if a.Pending != nil {
			mark.ReferenceID = a.Pending.ReferenceID
		}
		c.mark(ctx, log, mark)

		c.Metrics.CheckoutFinished(a.state(GatewayTimeout))
		log.WithFields(logrus.Fields{
			"state": GatewayTimeout,
			"error": err,
		}).Warn("payment outcome unknown")

		c.Events.Send(ctx, events.ChargeUnresolved, a.UserID, mark)
		return payment.Charge{}, &GatewayTimeoutError{IdempotencyKey: a.IdempotencyKey, Err: err}
	}

	// A definitive refusal settles an earlier unknown outcome for this key,
	// but never a charge the provider already confirmed.
	if a.Pending != nil && a.Pending.ReferenceID == "" {
		if cerr := c.Ledger.ClearUnresolved(ctx, a.UserID); cerr != nil {
			log.WithField("error", cerr).Warn("clearing unresolved charge")
		}
	}

	reason := err.Error()
	var perr *payment.Error
	if errors.As(err, &perr) && perr.Reason != "" {
		reason = perr.Reason
	}

	c.Metrics.CheckoutFinished(a.state(ChargeFailed))
	log.WithFields(logrus.Fields{
		"state":  ChargeFailed,
		"reason": reason,
	}).Warn("charge failed")

	return payment.Charge{}, &ChargeFailedError{Reason: reason, Err: err}
}

// FinalizeFailed records a confirmed charge whose purchase could not be
// stored. The charge stays unresolved until a retry with the same key records
// it or an operator resolves it.
func (c *Charger) FinalizeFailed(ctx context.Context, log logrus.FieldLogger, a Attempt, ch payment.Charge, err error) error {
	mark := a.unresolved(c.now())
	mark.ReferenceID = ch.ReferenceID
	c.mark(ctx, log, mark)

	c.Metrics.CheckoutFinished(a.state(FinalizeFailed))
	log.WithFields(logrus.Fields{
		"state":        FinalizeFailed,
		"provider":     ch.Provider,
		"reference_id": ch.ReferenceID,
		"amount":       ch.Amount,
		"error":        err,
	}).Error("charge succeeded but the purchase was not recorded")

	c.Events.Send(ctx, events.FinalizeFailed, a.UserID, finalizeFailedEvent{
		Kind:           a.Kind,
		IdempotencyKey: a.IdempotencyKey,
		Provider:       ch.Provider,
		ReferenceID:    ch.ReferenceID,
		Amount:         ch.Amount,
		Error:          err.Error(),
	})

	return &FinalizeFailedError{
		Provider:    ch.Provider,
		ReferenceID: ch.ReferenceID,
		Amount:      ch.Amount,
		Err:         err,
	}
}

func (c *Charger) mark(ctx context.Context, log logrus.FieldLogger, m reconcile.Charge) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Timeout)
	defer cancel()

	if err := c.Ledger.MarkUnresolved(mctx, m); err != nil {
		log.WithFields(logrus.Fields{
			"error":        err,
			"reference_id": m.ReferenceID,
		}).Error("recording unresolved charge")
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var perr *payment.Error
	if errors.As(err, &perr) {
		return perr.Kind.String()
	}
	return "failure"
}

type finalizeFailedEvent struct {
	Kind           reconcile.Kind `json:"kind"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Provider       string         `json:"provider"`
	ReferenceID    string         `json:"referenceId"`
	Amount         int            `json:"amount"`
	Error          string         `json:"error"`
}
