package api

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront/api/middleware"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/auth"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/checkout"
	"github.com/irsalhamdi/storefront/core/credit"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/core/reconcile"
	"github.com/irsalhamdi/storefront/core/report"
	"github.com/irsalhamdi/storefront/core/user"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/lock"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/irsalhamdi/storefront/rate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin  string
	Log         logrus.FieldLogger
	DB          *sqlx.DB
	Session     *scs.SessionManager
	AdminEmails []string
	Checkout    *checkout.Service
	Credits     *credit.Service
	Reports     *report.Aggregator
	Metrics     *metrics.Metrics
	Limiter     *rate.Limiter
	Locker      lock.Locker
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Metrics(cfg.Metrics))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Session)
	admin := auth.Admin(cfg.Session)

	var limit web.Middleware
	if cfg.Limiter != nil {
		limit = middleware.RateLimit(cfg.Limiter)
	}

	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB))
	a.Router.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session, cfg.AdminEmails))
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session))
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/products/{id}", product.HandleShow(cfg.DB))
	a.Handle(http.MethodPost, "/products", product.HandleCreate(cfg.DB), admin)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.DB, cfg.Locker), authen)
	a.Handle(http.MethodPut, "/cart/items", cart.HandleCreateItem(cfg.DB, cfg.Locker), authen)
	a.Handle(http.MethodDelete, "/cart/items/{product_id}", cart.HandleDeleteItem(cfg.DB, cfg.Locker), authen)

	a.Handle(http.MethodPost, "/checkout", checkout.HandleCheckout(cfg.Checkout), authen, limit)
	a.Handle(http.MethodGet, "/checkout/unresolved", checkout.HandleShowUnresolved(cfg.Checkout), authen)

	a.Handle(http.MethodGet, "/orders", order.HandleList(cfg.DB), authen)
	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodGet, "/orders/{id}/payment", checkout.HandleShowPayment(cfg.DB), authen)

	a.Handle(http.MethodPost, "/credits", credit.HandlePurchase(cfg.Credits), authen, limit)
	a.Handle(http.MethodGet, "/credits", credit.HandleList(cfg.DB), authen)

	a.Handle(http.MethodGet, "/admin/unresolved", reconcile.HandleList(cfg.DB), admin)
	a.Handle(http.MethodDelete, "/admin/unresolved/{user_id}", reconcile.HandleResolve(cfg.DB), admin)

	a.Handle(http.MethodGet, "/admin/reports/dashboard", report.HandleDashboard(cfg.Reports), admin)
	a.Handle(http.MethodGet, "/admin/reports/new-users", report.HandleNewUsers(cfg.Reports), admin)
	a.Handle(http.MethodGet, "/admin/reports/active-users", report.HandleActiveUsers(cfg.Reports), admin)
	a.Handle(http.MethodGet, "/admin/reports/total-users", report.HandleTotalUsers(cfg.Reports), admin)
	a.Handle(http.MethodGet, "/admin/reports/product-sales", report.HandleProductSales(cfg.Reports), admin)
	a.Handle(http.MethodGet, "/admin/reports/revenue", report.HandleRevenue(cfg.Reports), admin)
	a.Handle(http.MethodGet, "/admin/reports/orders-per-day", report.HandleOrdersPerDay(cfg.Reports), admin)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := database.StatusCheck(ctx, db); err != nil {
			return weberr.Unavailable(err)
		}

		return web.Respond(ctx, w, struct {
			Status string `json:"status"`
		}{"ok"}, http.StatusOK)
	}
}
