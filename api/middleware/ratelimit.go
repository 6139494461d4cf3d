package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/rate"
)

// RateLimit throttles requests per authenticated user, falling back to the
// remote address for anonymous callers.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			key := r.RemoteAddr
			if clm, err := claims.Get(ctx); err == nil {
				key = "user:" + strconv.FormatInt(clm.UserID, 10)
			}

			if !lim.Check(key) {
				return weberr.TooManyRequests(errors.New("rate limit exceeded for " + key))
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
