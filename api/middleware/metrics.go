package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/metrics"
)

// Metrics records request counts and latencies labelled by route template.
func Metrics(m *metrics.Metrics) web.Middleware {
	mw := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			start := time.Now()
			err := handler(ctx, w, r)

			code := http.StatusOK
			if err != nil {
				code = weberr.Status(err)
			}

			m.ObserveRequest(r.Method, route, strconv.Itoa(code), time.Since(start))
			return err
		}
		return h
	}
	return mw
}
