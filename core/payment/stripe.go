package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

// Stripe charges through a confirmed PaymentIntent. The token is a Stripe
// PaymentMethod id collected by the storefront.
type Stripe struct {
	api *stripecl.API
}

func NewStripe(api *stripecl.API) *Stripe {
	return &Stripe{api: api}
}

// NewStripeAPI builds a client. A non-empty url points every backend at it,
// which is how tests talk to a local mock.
func NewStripeAPI(secret string, url string) *stripecl.API {
	api := &stripecl.API{}
	if url == "" {
		api.Init(secret, nil)
		return api
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(url),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	api.Init(secret, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return api
}

func (s *Stripe) Provider() string { return "stripe" }

func (s *Stripe) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	if req.Token == "" {
		return Charge{}, &Error{Kind: KindInvalidToken, Reason: "missing payment method"}
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(int64(req.Amount)),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Charge{}, s.classify(ctx, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return Charge{Provider: s.Provider(), ReferenceID: pi.ID, Amount: int(pi.Amount)}, nil
	case stripe.PaymentIntentStatusProcessing:
		return Charge{}, &Error{Kind: KindTimeout, Reason: fmt.Sprintf("payment intent %s still processing", pi.ID)}
	default:
		return Charge{}, &Error{Kind: KindDeclined, Reason: fmt.Sprintf("payment intent %s ended in status %s", pi.ID, pi.Status)}
	}
}

func (s *Stripe) classify(ctx context.Context, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return transportError(ctx, err)
	}

	switch serr.Type {
	case stripe.ErrorTypeCard:
		reason := serr.Msg
		if serr.DeclineCode != "" {
			reason = fmt.Sprintf("%s (%s)", serr.Msg, serr.DeclineCode)
		}
		return &Error{Kind: KindDeclined, Reason: reason, Err: err}
	case stripe.ErrorTypeInvalidRequest:
		return &Error{Kind: KindInvalidToken, Reason: serr.Msg, Err: err}
	}

	if serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == 0 {
		return &Error{Kind: KindNetwork, Reason: serr.Msg, Err: err}
	}
	return &Error{Kind: KindDeclined, Reason: serr.Msg, Err: err}
}
