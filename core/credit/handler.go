package credit

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/checkout"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
)

func HandlePurchase(svc *Service) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		key := r.Header.Get(checkout.IdempotencyKeyHeader)
		if err := validate.CheckIdempotencyKey(key); err != nil {
			return weberr.Invalid(err)
		}

		var in PurchaseNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(err)
		}

		res, err := svc.Purchase(ctx, Request{
			UserID:         clm.UserID,
			IdempotencyKey: key,
			Credits:        in.Credits,
			PaymentToken:   in.Token,
		})
		if err != nil {
			return checkout.WebError(err)
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		return web.Respond(ctx, w, res, status)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ps, err := ListByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ps, http.StatusOK)
	}
}
