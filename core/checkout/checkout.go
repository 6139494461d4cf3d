// Package checkout turns a user's cart into a paid order. A checkout moves
// through Quoted, Charging and Finalizing to Completed; it leaves early as
// ChargeFailed, GatewayTimeout or FinalizeFailed.
package checkout

import (
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/payment"
)

type State int

const (
	Quoted State = iota + 1
	Charging
	Finalizing
	Completed
	ChargeFailed
	GatewayTimeout
	FinalizeFailed
)

func (s State) String() string {
	switch s {
	case Quoted:
		return "quoted"
	case Charging:
		return "charging"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case ChargeFailed:
		return "charge_failed"
	case GatewayTimeout:
		return "gateway_timeout"
	case FinalizeFailed:
		return "finalize_failed"
	}
	return "unknown"
}

type Method string

const (
	MethodGateway Method = "gateway"
	MethodCredits Method = "credits"
)

type Request struct {
	UserID         int64
	IdempotencyKey string
	PaymentToken   string
	Method         Method
}

type Result struct {
	Order    order.Order     `json:"order"`
	Charge   *payment.Charge `json:"charge,omitempty"`
	State    State           `json:"-"`
	Replayed bool            `json:"replayed"`
}

type CheckoutNew struct {
	Method Method `json:"method" validate:"omitempty,oneof=gateway credits"`
	Token  string `json:"token" validate:"required_unless=Method credits"`
}

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientCredits = errors.New("not enough credits to pay for the cart")
	ErrReconcileRequired   = errors.New("a previous charge has an unknown outcome and must be reconciled first")
	ErrIdempotencyKey      = errors.New("missing idempotency key")
	ErrMethod              = errors.New("unknown payment method")
)

// ChargeFailedError is a definitive refusal by the gateway. Nothing was
// charged and nothing was persisted.
type ChargeFailedError struct {
	Reason string
	Err    error
}

func (e *ChargeFailedError) Error() string {
	return "charge failed: " + e.Reason
}

func (e *ChargeFailedError) Unwrap() error { return e.Err }

// GatewayTimeoutError means the customer may have been charged. Only a retry
// with the same idempotency key is accepted until the charge is reconciled.
type GatewayTimeoutError struct {
	IdempotencyKey string
	Err            error
}

func (e *GatewayTimeoutError) Error() string {
	return fmt.Sprintf("payment gateway outcome unknown for key %s: %v", e.IdempotencyKey, e.Err)
}

func (e *GatewayTimeoutError) Unwrap() error { return e.Err }

// FinalizeFailedError means money was collected but the order could not be
// recorded. ReferenceID identifies the charge at the provider.
type FinalizeFailedError struct {
	Provider    string
	ReferenceID string
	Amount      int
	Err         error
}

func (e *FinalizeFailedError) Error() string {
	return fmt.Sprintf("charge %s/%s succeeded but the order was not recorded: %v", e.Provider, e.ReferenceID, e.Err)
}

func (e *FinalizeFailedError) Unwrap() error { return e.Err }
