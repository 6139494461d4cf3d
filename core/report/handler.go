package report

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
)

type countResponse struct {
	AsOf   time.Time `json:"asOf"`
	Window string    `json:"window"`
	Count  int       `json:"count"`
}

type totalResponse struct {
	Count int `json:"count"`
}

type revenueResponse struct {
	AsOf    time.Time `json:"asOf"`
	Window  string    `json:"window"`
	Revenue int64     `json:"revenue"`
}

func trailing(r *http.Request, def time.Duration) (Trailing, error) {
	window, err := web.QueryWindow(r, "window", def)
	if err != nil {
		return Trailing{}, err
	}

	asOf, err := web.QueryTime(r, "asOf", time.Now().UTC())
	if err != nil {
		return Trailing{}, err
	}

	return Trailing{AsOf: asOf, Window: window}, nil
}

func webError(err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return weberr.Forbidden(err)
	case errors.Is(err, ErrRange):
		return weberr.BadRequest(err)
	case errors.Is(err, ErrUnavailable):
		return weberr.Unavailable(err)
	}
	return err
}

func HandleDashboard(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		asOf, err := web.QueryTime(r, "asOf", time.Now().UTC())
		if err != nil {
			return weberr.BadRequest(err)
		}

		d, err := a.Dashboard(ctx, asOf)
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, d, http.StatusOK)
	}
}

// HandleNewUsers reports signups per week over the weeks covered by
// ?window=, twelve weeks by default.
func HandleNewUsers(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		t, err := trailing(r, 12*7*day)
		if err != nil {
			return weberr.BadRequest(err)
		}

		weeks := int(t.Window / (7 * day))
		if weeks < 1 {
			weeks = 1
		}

		buckets, err := a.NewUsersPerWeek(ctx, LastWeeks(t.AsOf, weeks))
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, buckets, http.StatusOK)
	}
}

func HandleActiveUsers(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		t, err := trailing(r, DefaultActiveWindow)
		if err != nil {
			return weberr.BadRequest(err)
		}

		n, err := a.ActiveUserCount(ctx, t)
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, countResponse{AsOf: t.AsOf, Window: t.Window.String(), Count: n}, http.StatusOK)
	}
}

func HandleTotalUsers(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		n, err := a.TotalUsers(ctx)
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, totalResponse{Count: n}, http.StatusOK)
	}
}

func HandleProductSales(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		t, err := trailing(r, 7*day)
		if err != nil {
			return weberr.BadRequest(err)
		}

		sales, err := a.ProductSales(ctx, t)
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, sales, http.StatusOK)
	}
}

func HandleRevenue(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		t, err := trailing(r, 30*day)
		if err != nil {
			return weberr.BadRequest(err)
		}

		rev, err := a.Revenue(ctx, t)
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, revenueResponse{AsOf: t.AsOf, Window: t.Window.String(), Revenue: rev}, http.StatusOK)
	}
}

func HandleOrdersPerDay(a *Aggregator) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		t, err := trailing(r, 30*day)
		if err != nil {
			return weberr.BadRequest(err)
		}

		buckets, err := a.OrdersPerDay(ctx, t)
		if err != nil {
			return webError(err)
		}

		return web.Respond(ctx, w, buckets, http.StatusOK)
	}
}
