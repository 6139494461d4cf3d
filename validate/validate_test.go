package validate

import (
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	type itemNew struct {
		ProductID int64 `json:"productId" validate:"required,gt=0"`
		Quantity  int   `json:"quantity" validate:"gte=1,lte=1000"`
	}

	tests := []struct {
		name    string
		val     itemNew
		wantErr string
	}{
		{"valid", itemNew{ProductID: 1, Quantity: 2}, ""},
		{"missing product", itemNew{Quantity: 1}, "ProductID is a required field"},
		{"zero quantity", itemNew{ProductID: 1}, "Quantity must be 1 or greater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.val)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Check() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheckIdempotencyKey(t *testing.T) {
	if err := CheckIdempotencyKey(GenerateID()); err != nil {
		t.Fatalf("generated id rejected: %v", err)
	}

	for _, key := range []string{"", "abc", "6F9619FF-8B86-D011-B42D-00C04FC964FF", "{6f9619ff-8b86-d011-b42d-00c04fc964ff}"} {
		if err := CheckIdempotencyKey(key); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}
