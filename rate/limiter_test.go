package rate

import (
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	burst := 1

	interval := 50 * time.Millisecond
	lim := Every(interval)
	r := NewLimiter(burst, time.Hour, lim)
	defer r.Stop()

	tooshort := 1 * time.Millisecond

	client := "user:1"
	expected := []bool{true, false, true, false}
	waits := []time.Duration{tooshort, interval, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterClientsAreIndependent(t *testing.T) {
	r := NewLimiter(1, time.Hour, Every(time.Hour))
	defer r.Stop()

	if !r.Check("user:1") {
		t.Fatal("first request of user:1 should pass")
	}
	if r.Check("user:1") {
		t.Fatal("second request of user:1 should be throttled")
	}
	if !r.Check("user:2") {
		t.Fatal("user:2 must not share the bucket of user:1")
	}
}

func TestLimiterSweep(t *testing.T) {
	r := NewLimiter(1, time.Minute, Every(time.Hour))
	defer r.Stop()

	r.Check("user:1")
	r.sweep(time.Now().Add(2 * time.Minute))

	r.mu.Lock()
	n := len(r.clients)
	r.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle clients to be swept, %d left", n)
	}

	if !r.Check("user:1") {
		t.Fatal("a swept client starts with a full bucket")
	}
}
