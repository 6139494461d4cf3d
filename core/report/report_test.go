package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/metrics"
	"github.com/sirupsen/logrus"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{date(2024, time.January, 1), date(2024, time.January, 1)},                        // monday
		{date(2024, time.January, 7).Add(23 * time.Hour), date(2024, time.January, 1)},    // sunday night
		{date(2024, time.January, 10).Add(9 * time.Hour), date(2024, time.January, 8)},    // wednesday
		{time.Date(2024, 1, 8, 1, 0, 0, 0, time.FixedZone("", 3*3600)), date(2024, 1, 1)}, // still sunday in UTC
	}

	for _, tt := range tests {
		if got := WeekStart(tt.in); !got.Equal(tt.want) {
			t.Errorf("WeekStart(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFillWeeks(t *testing.T) {
	rng := Range{From: date(2024, time.March, 4), To: date(2024, time.March, 18)}
	rows := []weekRow{
		{Week: date(2024, time.March, 4), Count: 3},
		{Week: date(2024, time.March, 11), Count: 2},
	}

	got := fillWeeks(rng, rows)

	want := []WeekBucket{
		{Start: date(2024, time.March, 4), Label: "03/04/2024", Count: 3},
		{Start: date(2024, time.March, 11), Label: "03/11/2024", Count: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("buckets mismatch (-want +got):\n%s", diff)
	}
}

func TestFillWeeksGaps(t *testing.T) {
	rng := Range{From: date(2024, time.March, 6), To: date(2024, time.March, 26)}
	rows := []weekRow{
		{Week: date(2024, time.March, 4), Count: 1},
		{Week: date(2024, time.March, 25), Count: 4},
	}

	var counts []int
	for _, b := range fillWeeks(rng, rows) {
		counts = append(counts, b.Count)
	}

	if diff := cmp.Diff([]int{1, 0, 0, 4}, counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestFillDays(t *testing.T) {
	asOf := date(2024, time.May, 10).Add(15 * time.Hour)
	tr := Trailing{AsOf: asOf, Window: 3 * day}
	rows := []dayRow{
		{Day: date(2024, time.May, 8), Count: 2},
		{Day: date(2024, time.May, 10), Count: 1},
	}

	got := fillDays(tr, rows)

	want := []DayBucket{
		{Day: date(2024, time.May, 7), Label: "2024-05-07", Orders: 0},
		{Day: date(2024, time.May, 8), Label: "2024-05-08", Orders: 2},
		{Day: date(2024, time.May, 9), Label: "2024-05-09", Orders: 0},
		{Day: date(2024, time.May, 10), Label: "2024-05-10", Orders: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("buckets mismatch (-want +got):\n%s", diff)
	}
}

func TestLastWeeks(t *testing.T) {
	asOf := date(2024, time.March, 20).Add(10 * time.Hour)

	rng := LastWeeks(asOf, 12)

	if want := date(2024, time.January, 1); !rng.From.Equal(want) {
		t.Fatalf("from = %s, want %s", rng.From, want)
	}
	if got := len(fillWeeks(rng, nil)); got != 12 {
		t.Fatalf("weeks = %d, want 12", got)
	}
}

func TestReportsRequireAdmin(t *testing.T) {
	a := NewAggregator(nil, nil, time.Minute, metrics.New(), discard())
	tr := Trailing{AsOf: time.Now(), Window: 30 * day}

	user := claims.Set(context.Background(), claims.Claims{UserID: 1, Role: claims.RoleUser})

	for _, ctx := range []context.Context{context.Background(), user} {
		if _, err := a.Revenue(ctx, tr); err != ErrForbidden {
			t.Errorf("Revenue: got %v, want ErrForbidden", err)
		}
		if _, err := a.NewUsersPerWeek(ctx, Range{}); err != ErrForbidden {
			t.Errorf("NewUsersPerWeek: got %v, want ErrForbidden", err)
		}
		if _, err := a.Dashboard(ctx, time.Now()); err != ErrForbidden {
			t.Errorf("Dashboard: got %v, want ErrForbidden", err)
		}
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func TestDashboardServedFromCache(t *testing.T) {
	asOf := date(2024, time.June, 3).Add(10*time.Hour + 30*time.Second)
	cached := Dashboard{AsOf: asOf.Truncate(time.Minute), TotalUsers: 42, Revenue: 2000}

	cache := &memCache{data: map[string][]byte{}}
	if err := cache.Set(context.Background(), fmt.Sprintf("dashboard:%d", cached.AsOf.Unix()), cached, time.Minute); err != nil {
		t.Fatal(err)
	}

	a := NewAggregator(nil, cache, time.Minute, metrics.New(), discard())
	admin := claims.Set(context.Background(), claims.Claims{UserID: 1, Role: claims.RoleAdmin})

	got, err := a.Dashboard(admin, asOf)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if diff := cmp.Diff(cached, got); diff != "" {
		t.Fatalf("dashboard mismatch (-want +got):\n%s", diff)
	}
}

func discard() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
