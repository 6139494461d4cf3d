package cart

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTotal(t *testing.T) {
	lines := []Line{
		{ProductID: 1, Name: "A", Price: 500, Quantity: 2},
		{ProductID: 2, Name: "B", Price: 300, Quantity: 1},
	}

	if got := Total(lines); got != 1300 {
		t.Fatalf("Total() = %d, want 1300", got)
	}
}

func TestNew(t *testing.T) {
	got := New(nil)
	want := Cart{Lines: []Line{}, Total: 0}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("empty cart mismatch (-want +got):\n%s", diff)
	}

	lines := []Line{{ProductID: 7, Price: 250, Quantity: 4}}
	if got := New(lines); got.Total != 1000 {
		t.Fatalf("cart total = %d, want 1000", got.Total)
	}
}
