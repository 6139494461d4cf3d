package reconcile

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		charges, err := List(ctx, db)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, charges, http.StatusOK)
	}
}

// HandleResolve is used by an operator once the charge was refunded or
// confirmed with the provider.
func HandleResolve(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		userID, err := web.ParamInt64(r, "user_id")
		if err != nil {
			return weberr.BadRequest(err)
		}

		if _, err := Fetch(ctx, db, userID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		if err := Clear(ctx, db, userID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
