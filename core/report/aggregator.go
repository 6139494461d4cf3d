package report

import (
	"context"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Aggregator runs every report inside a read only repeatable read
// transaction, so each result reflects a single snapshot. Callers must carry
// administrator claims.
type Aggregator struct {
	db      *sqlx.DB
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	group   singleflight.Group
}

// NewAggregator builds an aggregator. A nil cache disables dashboard caching.
func NewAggregator(db *sqlx.DB, cache Cache, ttl time.Duration, m *metrics.Metrics, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{
		db:      db,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		log:     log,
	}
}

func authorize(ctx context.Context) error {
	if !claims.IsAdmin(ctx) {
		return ErrForbidden
	}
	return nil
}

func (a *Aggregator) snapshot(ctx context.Context, fn func(sqlx.ExtContext) error) error {
	if err := authorize(ctx); err != nil {
		return err
	}

	if err := database.Snapshot(ctx, a.db, fn); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NewUsersPerWeek counts signups per ISO week of rng. Weeks without signups
// are reported with a zero count.
func (a *Aggregator) NewUsersPerWeek(ctx context.Context, rng Range) ([]WeekBucket, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	if !rng.From.Before(rng.To) {
		return nil, ErrRange
	}

	var buckets []WeekBucket
	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		buckets, err = newUsersPerWeek(ctx, tx, rng)
		return err
	})
	return buckets, err
}

func (a *Aggregator) ActiveUserCount(ctx context.Context, t Trailing) (int, error) {
	var n int
	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		n, err = activeUserCount(ctx, tx, t)
		return err
	})
	return n, err
}

func (a *Aggregator) TotalUsers(ctx context.Context) (int, error) {
	var n int
	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		n, err = totalUsers(ctx, tx)
		return err
	})
	return n, err
}

// ProductSales reports, per product, the units sold in all paid orders up to
// t.AsOf and the units sold inside the window.
func (a *Aggregator) ProductSales(ctx context.Context, t Trailing) ([]ProductSales, error) {
	var sales []ProductSales
	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		sales, err = productSales(ctx, tx, t)
		return err
	})
	return sales, err
}

// Revenue sums quantity times the captured unit price of paid orders placed
// inside the window.
func (a *Aggregator) Revenue(ctx context.Context, t Trailing) (int64, error) {
	var rev int64
	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		rev, err = revenue(ctx, tx, t)
		return err
	})
	return rev, err
}

func (a *Aggregator) OrdersPerDay(ctx context.Context, t Trailing) ([]DayBucket, error) {
	var buckets []DayBucket
	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error
		buckets, err = ordersPerDay(ctx, tx, t)
		return err
	})
	return buckets, err
}

// Dashboard bundles the admin overview. asOf is truncated to the cache TTL
// so that every request inside one TTL period shares a cache entry; results
// are at most one TTL old.
func (a *Aggregator) Dashboard(ctx context.Context, asOf time.Time) (Dashboard, error) {
	if err := authorize(ctx); err != nil {
		return Dashboard{}, err
	}

	asOf = asOf.UTC()
	if a.ttl > 0 {
		asOf = asOf.Truncate(a.ttl)
	}
	key := fmt.Sprintf("dashboard:%d", asOf.Unix())

	if a.cache != nil {
		var d Dashboard
		hit, err := a.cache.Get(ctx, key, &d)
		if err != nil {
			a.log.WithField("error", err).Warn("report cache read")
		}
		a.metrics.ReportCache(hit)
		if hit {
			return d, nil
		}
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		d, err := a.dashboard(ctx, asOf)
		if err != nil {
			return Dashboard{}, err
		}

		if a.cache != nil {
			if err := a.cache.Set(ctx, key, d, a.ttl); err != nil {
				a.log.WithField("error", err).Warn("report cache write")
			}
		}
		return d, nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return v.(Dashboard), nil
}

func (a *Aggregator) dashboard(ctx context.Context, asOf time.Time) (Dashboard, error) {
	d := Dashboard{AsOf: asOf}

	err := a.snapshot(ctx, func(tx sqlx.ExtContext) error {
		var err error

		if d.NewUsers, err = newUsersPerWeek(ctx, tx, LastWeeks(asOf, 12)); err != nil {
			return err
		}
		if d.ActiveUsers, err = activeUserCount(ctx, tx, Trailing{AsOf: asOf, Window: DefaultActiveWindow}); err != nil {
			return err
		}
		if d.TotalUsers, err = totalUsers(ctx, tx); err != nil {
			return err
		}

		month := Trailing{AsOf: asOf, Window: 30 * day}
		if d.Revenue, err = revenue(ctx, tx, month); err != nil {
			return err
		}
		if d.OrdersPerDay, err = ordersPerDay(ctx, tx, month); err != nil {
			return err
		}

		d.ProductSales, err = productSales(ctx, tx, Trailing{AsOf: asOf, Window: 7 * day})
		return err
	})
	return d, err
}

func newUsersPerWeek(ctx context.Context, db sqlx.ExtContext, rng Range) ([]WeekBucket, error) {
	const q = `
	SELECT
		date_trunc('week', date_joined AT TIME ZONE 'UTC') AS week,
		COUNT(*) AS count
	FROM users
	WHERE date_joined >= $1 AND date_joined < $2
	GROUP BY week
	ORDER BY week`

	var rows []weekRow
	if err := database.SelectContext(ctx, db, &rows, q, rng.From, rng.To); err != nil {
		return nil, fmt.Errorf("counting new users per week: %w", err)
	}
	return fillWeeks(rng, rows), nil
}

func activeUserCount(ctx context.Context, db sqlx.ExtContext, t Trailing) (int, error) {
	const q = `
	SELECT COUNT(*)
	FROM users
	WHERE last_purchase IS NOT NULL AND last_purchase > $1 AND last_purchase <= $2`

	var n int
	if err := database.GetContext(ctx, db, &n, q, t.Start(), t.AsOf); err != nil {
		return 0, fmt.Errorf("counting active users: %w", err)
	}
	return n, nil
}

func totalUsers(ctx context.Context, db sqlx.ExtContext) (int, error) {
	var n int
	if err := database.GetContext(ctx, db, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func productSales(ctx context.Context, db sqlx.ExtContext, t Trailing) ([]ProductSales, error) {
	const q = `
	SELECT
		p.product_id,
		p.name,
		COALESCE(SUM(s.quantity), 0) AS total_units,
		COALESCE(SUM(s.quantity) FILTER (WHERE s.created_at > $1), 0) AS window_units
	FROM products AS p
	LEFT JOIN (
		SELECT oi.product_id, oi.quantity, o.created_at
		FROM order_items AS oi
		JOIN orders AS o ON o.order_id = oi.order_id
		WHERE o.status = 'paid' AND o.created_at <= $2
	) AS s ON s.product_id = p.product_id
	GROUP BY p.product_id, p.name
	ORDER BY total_units DESC, p.product_id`

	sales := []ProductSales{}
	if err := database.SelectContext(ctx, db, &sales, q, t.Start(), t.AsOf); err != nil {
		return nil, fmt.Errorf("summing product sales: %w", err)
	}
	return sales, nil
}

func revenue(ctx context.Context, db sqlx.ExtContext, t Trailing) (int64, error) {
	const q = `
	SELECT COALESCE(SUM(oi.quantity * oi.unit_price), 0)
	FROM order_items AS oi
	JOIN orders AS o ON o.order_id = oi.order_id
	WHERE o.status = 'paid' AND o.created_at > $1 AND o.created_at <= $2`

	var rev int64
	if err := database.GetContext(ctx, db, &rev, q, t.Start(), t.AsOf); err != nil {
		return 0, fmt.Errorf("summing revenue: %w", err)
	}
	return rev, nil
}

func ordersPerDay(ctx context.Context, db sqlx.ExtContext, t Trailing) ([]DayBucket, error) {
	const q = `
	SELECT
		date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
		COUNT(DISTINCT order_id) AS count
	FROM orders
	WHERE status = 'paid' AND created_at > $1 AND created_at <= $2
	GROUP BY day
	ORDER BY day`

	var rows []dayRow
	if err := database.SelectContext(ctx, db, &rows, q, t.Start(), t.AsOf); err != nil {
		return nil, fmt.Errorf("counting orders per day: %w", err)
	}
	return fillDays(t, rows), nil
}
