package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is the audit row of credits bought through the payment gateway.
type Purchase struct {
	ID             int64           `json:"id" db:"credit_purchase_id"`
	UserID         int64           `json:"userId" db:"user_id"`
	IdempotencyKey string          `json:"idempotencyKey" db:"idempotency_key"`
	Date           time.Time       `json:"date" db:"date"`
	Credits        int             `json:"credits" db:"credits_purchased"`
	PurchaseAmount decimal.Decimal `json:"purchaseAmount" db:"purchase_amount"`
	ReferenceID    string          `json:"referenceId" db:"reference_id"`
}

type PurchaseNew struct {
	Credits int    `json:"credits" validate:"required,gte=1,lte=100000"`
	Token   string `json:"token" validate:"required"`
}

type Request struct {
	UserID         int64
	IdempotencyKey string
	Credits        int
	PaymentToken   string
}

type Result struct {
	Purchase Purchase `json:"purchase"`
	Balance  int      `json:"balance"`
	Replayed bool     `json:"replayed"`
}
