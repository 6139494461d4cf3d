// Package report computes business metrics over persisted users and paid
// orders. It never writes.
package report

import (
	"errors"
	"time"
)

const (
	WeekLabel = "01/02/2006"
	DayLabel  = "2006-01-02"

	day = 24 * time.Hour

	DefaultActiveWindow = 90 * day
)

var (
	ErrForbidden   = errors.New("reports require an administrator")
	ErrUnavailable = errors.New("report storage unavailable")
	ErrRange       = errors.New("report range is empty")
)

// Range is the half open interval [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// Trailing is the window (AsOf-Window, AsOf].
type Trailing struct {
	AsOf   time.Time
	Window time.Duration
}

func (t Trailing) Start() time.Time { return t.AsOf.Add(-t.Window) }

type WeekBucket struct {
	Start time.Time `json:"start"`
	Label string    `json:"label"`
	Count int       `json:"count"`
}

type DayBucket struct {
	Day    time.Time `json:"day"`
	Label  string    `json:"label"`
	Orders int       `json:"orders"`
}

type ProductSales struct {
	ProductID   int64  `json:"productId" db:"product_id"`
	Name        string `json:"name" db:"name"`
	TotalUnits  int    `json:"totalUnits" db:"total_units"`
	WindowUnits int    `json:"windowUnits" db:"window_units"`
}

type Dashboard struct {
	AsOf         time.Time      `json:"asOf"`
	NewUsers     []WeekBucket   `json:"newUsersPerWeek"`
	ActiveUsers  int            `json:"activeUsers"`
	TotalUsers   int            `json:"totalUsers"`
	Revenue      int64          `json:"revenue30d"`
	OrdersPerDay []DayBucket    `json:"ordersPerDay30d"`
	ProductSales []ProductSales `json:"productSales7d"`
}

// WeekStart returns midnight UTC of the Monday starting t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = DayStart(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type weekRow struct {
	Week  time.Time `db:"week"`
	Count int       `db:"count"`
}

type dayRow struct {
	Day   time.Time `db:"day"`
	Count int       `db:"count"`
}

// fillWeeks returns one bucket per ISO week touched by rng, oldest first.
// Weeks without a row get a zero count.
func fillWeeks(rng Range, rows []weekRow) []WeekBucket {
	counts := make(map[time.Time]int, len(rows))
	for _, r := range rows {
		counts[WeekStart(r.Week)] += r.Count
	}

	last := WeekStart(rng.To.Add(-time.Nanosecond))
	buckets := []WeekBucket{}
	for w := WeekStart(rng.From); !w.After(last); w = w.AddDate(0, 0, 7) {
		buckets = append(buckets, WeekBucket{
			Start: w,
			Label: w.Format(WeekLabel),
			Count: counts[w],
		})
	}
	return buckets
}

// fillDays returns one bucket per UTC calendar day touched by the trailing
// window, oldest first.
func fillDays(t Trailing, rows []dayRow) []DayBucket {
	counts := make(map[time.Time]int, len(rows))
	for _, r := range rows {
		counts[DayStart(r.Day)] += r.Count
	}

	last := DayStart(t.AsOf)
	buckets := []DayBucket{}
	for d := DayStart(t.Start().Add(time.Nanosecond)); !d.After(last); d = d.AddDate(0, 0, 1) {
		buckets = append(buckets, DayBucket{
			Day:    d,
			Label:  d.Format(DayLabel),
			Orders: counts[d],
		})
	}
	return buckets
}

// LastWeeks is the range covering the n ISO weeks up to and including the
// week of asOf.
func LastWeeks(asOf time.Time, n int) Range {
	start := WeekStart(asOf).AddDate(0, 0, -7*(n-1))
	return Range{From: start, To: asOf.UTC().Add(time.Nanosecond)}
}
