package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

const paypalCompleted = "COMPLETED"

// Paypal captures an order the buyer already approved. The token is the
// PayPal order id; its amount must match the quoted total.
type Paypal struct {
	client *paypal.Client
}

func NewPaypal(client *paypal.Client) *Paypal {
	return &Paypal{client: client}
}

func (p *Paypal) Provider() string { return "paypal" }

// Charge first reads the order back. An order that is already COMPLETED was
// captured by an earlier attempt with the same token, so the earlier capture
// is returned instead of capturing again.
func (p *Paypal) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if req.Token == "" {
		return Charge{}, &Error{Kind: KindInvalidToken, Reason: "missing paypal order id"}
	}

	ord, err := p.client.GetOrder(ctx, req.Token)
	if err != nil {
		return Charge{}, p.classify(ctx, err)
	}

	if err := checkAmount(ord, req); err != nil {
		return Charge{}, err
	}

	if ord.Status == paypalCompleted {
		return Charge{Provider: p.Provider(), ReferenceID: ord.ID, Amount: req.Amount}, nil
	}

	resp, err := p.client.CaptureOrder(ctx, req.Token, paypal.CaptureOrderRequest{})
	if err != nil {
		return Charge{}, p.classify(ctx, err)
	}

	if resp.Status != paypalCompleted {
		return Charge{}, &Error{
			Kind:   KindDeclined,
			Reason: fmt.Sprintf("captured order %s with status %s", req.Token, resp.Status),
		}
	}

	return Charge{Provider: p.Provider(), ReferenceID: resp.ID, Amount: req.Amount}, nil
}

func checkAmount(ord *paypal.Order, req ChargeRequest) error {
	if len(ord.PurchaseUnits) != 1 || ord.PurchaseUnits[0].Amount == nil {
		return &Error{Kind: KindInvalidToken, Reason: fmt.Sprintf("order %s must have exactly one purchase unit", ord.ID)}
	}

	amt := ord.PurchaseUnits[0].Amount
	if !strings.EqualFold(amt.Currency, req.Currency) {
		return &Error{Kind: KindInvalidToken, Reason: fmt.Sprintf("order %s is in %s, expected %s", ord.ID, amt.Currency, req.Currency)}
	}

	value, err := decimal.NewFromString(amt.Value)
	if err != nil {
		return &Error{Kind: KindInvalidToken, Reason: fmt.Sprintf("order %s has malformed amount %q", ord.ID, amt.Value)}
	}

	if want := MajorUnits(req.Amount); !value.Equal(want) {
		return &Error{Kind: KindInvalidToken, Reason: fmt.Sprintf("order %s approved %s, expected %s", ord.ID, value.StringFixed(2), want.StringFixed(2))}
	}
	return nil
}

func (p *Paypal) classify(ctx context.Context, err error) error {
	var perr *paypal.ErrorResponse
	if !errors.As(err, &perr) || perr.Response == nil {
		return transportError(ctx, err)
	}

	reason := perr.Message
	if perr.Name != "" {
		reason = fmt.Sprintf("%s: %s", perr.Name, perr.Message)
	}

	switch code := perr.Response.StatusCode; {
	case code == http.StatusNotFound || code == http.StatusBadRequest:
		return &Error{Kind: KindInvalidToken, Reason: reason, Err: err}
	case code == http.StatusUnprocessableEntity || code == http.StatusPaymentRequired:
		return &Error{Kind: KindDeclined, Reason: reason, Err: err}
	case code >= http.StatusInternalServerError:
		return &Error{Kind: KindNetwork, Reason: reason, Err: err}
	}
	return &Error{Kind: KindDeclined, Reason: reason, Err: err}
}
