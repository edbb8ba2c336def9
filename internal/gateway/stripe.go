package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// PaymentIntentCreator is satisfied by the stripe-go payment intent client.
type PaymentIntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeClient creates payment intents.
type StripeClient struct {
	Intents PaymentIntentCreator
}

// NewStripeClient builds a client against the Stripe API. backends may be nil.
func NewStripeClient(secretKey string, backends *stripe.Backends) *StripeClient {
	return &StripeClient{Intents: client.New(secretKey, backends).PaymentIntents}
}

// CreateOrder creates a payment intent and returns its id as the reference.
// The booking id is used as the idempotency key so a retried checkout does
// not open a second intent.
func (c *StripeClient) CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if c.Intents == nil {
		return OrderResponse{}, errors.New("stripe: client not configured")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.BookingID)
	for k, v := range notes(req) {
		params.AddMetadata(k, v)
	}
	intent, err := c.Intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return OrderResponse{}, fmt.Errorf("stripe: %s", stripeErr.Msg)
		}
		return OrderResponse{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return OrderResponse{
		Gateway:      Stripe,
		Reference:    intent.ID,
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
	}, nil
}
