package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew(t *testing.T) {
	payload := map[string]any{"orderId": 7, "total": 1300}

	ev, err := New(context.Background(), OrderPaid, 42, payload)
	if err != nil {
		t.Fatal(err)
	}

	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Fatalf("event is missing id or timestamp: %+v", ev)
	}
	if ev.Type != OrderPaid || ev.UserID != 42 {
		t.Fatalf("unexpected header %+v", ev)
	}

	var got map[string]any
	if err := json.Unmarshal(ev.Data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"orderId": float64(7), "total": float64(1300)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder

	for _, typ := range []Type{OrderPaid, FinalizeFailed} {
		ev, err := New(context.Background(), typ, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Publish(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}

	if diff := cmp.Diff([]Type{OrderPaid, FinalizeFailed}, r.Types()); diff != "" {
		t.Fatalf("recorded types mismatch (-want +got):\n%s", diff)
	}
}
