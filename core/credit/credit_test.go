package credit

import (
	"testing"

	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/stretchr/testify/assert"
)

func TestAmount(t *testing.T) {
	svc := NewService(Config{UnitPrice: 25})

	assert.Equal(t, 2500, svc.Amount(100))
	assert.Equal(t, "25.00", payment.MajorUnits(svc.Amount(100)).StringFixed(2))
}

func TestPurchaseNewValidation(t *testing.T) {
	tests := []struct {
		in PurchaseNew
		ok bool
	}{
		{PurchaseNew{Credits: 10, Token: "pm_card_visa"}, true},
		{PurchaseNew{Credits: 0, Token: "pm_card_visa"}, false},
		{PurchaseNew{Credits: 10}, false},
		{PurchaseNew{Credits: 100001, Token: "pm_card_visa"}, false},
	}

	for _, tt := range tests {
		err := validate.Check(tt.in)
		assert.Equal(t, tt.ok, err == nil, "%+v: %v", tt.in, err)
	}
}
