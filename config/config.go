package config

import "time"

type Config struct {
	Web     Web
	DB      DB
	Redis   Redis
	Kafka   Kafka
	Stripe  Stripe
	Paypal  Paypal
	Payment Payment
	Auth    Auth
	Rate    Rate
	Report  Report
	Credits Credits
	Cors    struct {
		Origin string `conf:"default:"`
	}
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:40s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:storefront"`
	MaxIdleConns int    `conf:"default:0"`
	MaxOpenConns int    `conf:"default:0"`
	DisableTLS   bool   `conf:"default:true"`
	Migrate      bool   `conf:"default:true"`
}

type Redis struct {
	Address  string `conf:"default:localhost:6379"`
	Password string `conf:"default:,mask"`
	DB       int    `conf:"default:0"`
}

type Kafka struct {
	Brokers []string `conf:"default:localhost:9092"`
	Topic   string   `conf:"default:storefront.events"`
}

type Stripe struct {
	APISecret string `conf:"default:,mask"`
}

type Paypal struct {
	ClientID string `conf:"default:"`
	Secret   string `conf:"default:,mask"`
	URL      string `conf:"default:https://api-m.sandbox.paypal.com"`
}

// Payment selects the gateway used for card checkouts and credit purchases.
type Payment struct {
	Provider string        `conf:"default:stripe"`
	Currency string        `conf:"default:usd"`
	Timeout  time.Duration `conf:"default:15s"`
}

type Auth struct {
	AdminEmails     []string      `conf:"default:"`
	SessionLifetime time.Duration `conf:"default:24h"`
}

// Rate limits checkout and credit purchase attempts per user.
type Rate struct {
	Burst  int           `conf:"default:5"`
	Every  time.Duration `conf:"default:2s"`
	Expiry time.Duration `conf:"default:10m"`
}

type Report struct {
	CacheTTL time.Duration `conf:"default:1m"`
}

type Credits struct {
	// UnitPrice is the price of one credit in minor currency units.
	UnitPrice int `conf:"default:1"`
}
