package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type failedResponse struct {
	Error       string `json:"error"`
	ReferenceID string `json:"referenceId,omitempty"`
}

func HandleCheckout(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		if err := validate.CheckIdempotencyKey(key); err != nil {
			return weberr.Invalid(err)
		}

		var in CheckoutNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(err)
		}

		res, err := svc.Checkout(ctx, Request{
			UserID:         clm.UserID,
			IdempotencyKey: key,
			PaymentToken:   in.Token,
			Method:         in.Method,
		})
		if err != nil {
			return WebError(err)
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		return web.Respond(ctx, w, res, status)
	}
}

// WebError maps checkout and payment failures to HTTP responses.
func WebError(err error) error {
	var (
		charge   *ChargeFailedError
		timeout  *GatewayTimeoutError
		finalize *FinalizeFailedError
	)

	switch {
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrMethod):
		return weberr.Invalid(err)

	case errors.Is(err, ErrInsufficientCredits):
		return weberr.PaymentRequired(err, err.Error())

	case errors.Is(err, ErrReconcileRequired):
		return weberr.Conflict(err)

	case errors.As(err, &charge):
		return weberr.PaymentRequired(err, charge.Reason)

	case errors.As(err, &timeout):
		return weberr.GatewayTimeout(err,
			"the payment outcome is unknown; retry with the same Idempotency-Key",
			weberr.WithFields(logrus.Fields{"idempotency_key": timeout.IdempotencyKey}),
		)

	case errors.As(err, &finalize):
		body := &failedResponse{
			Error:       "the payment was received but the order could not be recorded",
			ReferenceID: finalize.ReferenceID,
		}
		return weberr.Wrap(err,
			weberr.WithResponse(body, http.StatusInternalServerError),
			weberr.WithFields(logrus.Fields{
				"provider":     finalize.Provider,
				"reference_id": finalize.ReferenceID,
			}),
		)

	case errors.Is(err, cart.ErrChanged):
		return weberr.Conflict(err)
	}
	return err
}

// HandleShowUnresolved tells the caller whether a charge of theirs is waiting
// for reconciliation.
func HandleShowUnresolved(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		c, err := svc.Reconcile(ctx, clm.UserID)
		if err != nil {
			if errors.Is(err, reconcile.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

// HandleShowPayment returns the proof of payment behind one of the caller's
// orders.
func HandleShowPayment(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id, err := web.ParamInt64(r, "id")
		if err != nil {
			return weberr.BadRequest(err)
		}

		rec, err := FetchRecord(ctx, db, id)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if !claims.IsUser(ctx, rec.UserID) && !claims.IsAdmin(ctx) {
			return weberr.NotFound(order.ErrNotFound)
		}

		return web.Respond(ctx, w, rec, http.StatusOK)
	}
}
