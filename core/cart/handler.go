package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/lock"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/jmoiron/sqlx"
)

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		lines, err := List(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, New(lines), http.StatusOK)
	}
}

func HandleCreateItem(db *sqlx.DB, locker lock.Locker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(err)
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(err)
		}

		qty := in.Quantity
		if qty == 0 {
			qty = 1
		}

		var it Item
		err = holding(ctx, locker, clm.UserID, func() error {
			it, err = Add(ctx, db, clm.UserID, in.ProductID, qty)
			return err
		})
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, it, http.StatusOK)
	}
}

func HandleDeleteItem(db *sqlx.DB, locker lock.Locker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		productID, err := web.ParamInt64(r, "product_id")
		if err != nil {
			return weberr.BadRequest(err)
		}

		err = holding(ctx, locker, clm.UserID, func() error {
			return Remove(ctx, db, clm.UserID, productID)
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleDelete(db *sqlx.DB, locker lock.Locker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		err = holding(ctx, locker, clm.UserID, func() error {
			return Clear(ctx, db, clm.UserID)
		})
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// holding runs fn under the lock checkout takes for the user, so the cart
// does not change between the quote of a checkout and its order.
func holding(ctx context.Context, locker lock.Locker, userID int64, fn func() error) error {
	unlock, err := locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return fmt.Errorf("locking cart of user[%d]: %w", userID, err)
	}
	defer unlock()

	return fn()
}
