package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/storefront/api"
	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/config"
	"github.com/irsalhamdi/storefront/core/checkout"
	"github.com/irsalhamdi/storefront/core/credit"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/report"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/events"
	"github.com/irsalhamdi/storefront/lock"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/irsalhamdi/storefront/rate"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "STOREFRONT"
	var cfg config.Config
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}
	}

	// Without Redis the lock only serializes checkouts inside this process and
	// dashboards are not cached.
	var (
		locker lock.Locker = lock.NewLocal()
		cache  report.Cache
	)
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		locker = lock.NewRedis(rdb, logger, 2*cfg.Payment.Timeout)
		cache = report.NewRedisCache(rdb)
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	logger.Infof("charging through %s", gateway.Provider())

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Auth.SessionLifetime

	bg := background.New(logger)

	kafka := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	dispatcher := events.NewDispatcher(kafka, bg, logger)

	m := metrics.New()

	limiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, 1/cfg.Rate.Every.Seconds())
	defer limiter.Stop()

	checkoutSvc := checkout.NewService(checkout.Config{
		Store:    checkout.NewPostgres(db),
		Gateway:  gateway,
		Locker:   locker,
		Events:   dispatcher,
		Metrics:  m,
		Log:      logger,
		Currency: cfg.Payment.Currency,
		Timeout:  cfg.Payment.Timeout,
	})

	creditSvc := credit.NewService(credit.Config{
		DB:        db,
		Gateway:   gateway,
		Locker:    locker,
		Events:    dispatcher,
		Metrics:   m,
		Log:       logger,
		Currency:  cfg.Payment.Currency,
		UnitPrice: cfg.Credits.UnitPrice,
		Timeout:   cfg.Payment.Timeout,
	})

	reports := report.NewAggregator(db, cache, cfg.Report.CacheTTL, m, logger)

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:  cfg.Cors.Origin,
		Log:         logger,
		DB:          db,
		Session:     sessionManager,
		AdminEmails: cfg.Auth.AdminEmails,
		Checkout:    checkoutSvc,
		Credits:     creditSvc,
		Reports:     reports,
		Metrics:     m,
		Limiter:     limiter,
		Locker:      locker,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}

		if err := kafka.Close(); err != nil {
			return fmt.Errorf("could not flush events: %w", err)
		}
	}
	return nil
}

func newGateway(cfg config.Config) (payment.Gateway, error) {
	switch cfg.Payment.Provider {
	case "stripe":
		return payment.NewStripe(payment.NewStripeAPI(cfg.Stripe.APISecret, "")), nil

	case "paypal":
		pp, err := paypal.NewClient(cfg.Paypal.ClientID, cfg.Paypal.Secret, cfg.Paypal.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to build the paypal client: %w", err)
		}

		if _, err = pp.GetAccessToken(context.TODO()); err != nil {
			return nil, fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
		return payment.NewPaypal(pp), nil
	}

	return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
}
