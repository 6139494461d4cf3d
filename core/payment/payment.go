// Package payment defines the gateway capability consumed by checkout and
// credit purchases, with adapters for Stripe and PayPal.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/shopspring/decimal"
)

// Gateway executes a single charge. Implementations must forward
// IdempotencyKey to the provider so a repeated call with the same key never
// charges twice.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (Charge, error)
}

type ChargeRequest struct {
	Amount         int // minor currency units
	Currency       string
	Token          string
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

type Charge struct {
	Provider    string `json:"provider"`
	ReferenceID string `json:"referenceId"`
	Amount      int    `json:"amount"`
}

type Kind int

const (
	KindDeclined Kind = iota + 1
	KindInvalidToken
	KindNetwork
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindDeclined:
		return "declined"
	case KindInvalidToken:
		return "invalid_token"
	case KindNetwork:
		return "network_error"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

var (
	ErrDeclined     = errors.New("payment declined")
	ErrInvalidToken = errors.New("invalid payment token")
	ErrNetwork      = errors.New("payment gateway unreachable")
	ErrTimeout      = errors.New("payment gateway timed out")
)

// Error is the typed failure returned by every Gateway. Reason carries the
// provider's message verbatim.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDeclined:
		return e.Kind == KindDeclined
	case ErrInvalidToken:
		return e.Kind == KindInvalidToken
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}

// Ambiguous reports whether the outcome of a failed charge is unknown, meaning
// the customer may have been charged. Only a decline or a rejected token is a
// definitive answer; a timeout, a transport failure or a provider 5xx is not.
func Ambiguous(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDeclined) && !errors.Is(err, ErrInvalidToken)
}

// transportError classifies an error that happened before a provider answer
// was read.
func transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Reason: err.Error(), Err: err}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindTimeout, Reason: err.Error(), Err: err}
	}

	return &Error{Kind: KindNetwork, Reason: err.Error(), Err: err}
}

// MajorUnits renders minor units as a fixed two decimal amount, e.g. 1300 -> "13.00".
func MajorUnits(amount int) decimal.Decimal {
	return decimal.New(int64(amount), -2)
}
