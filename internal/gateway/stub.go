package gateway

import (
	"context"
	"errors"
	"strings"
)

// StubClient returns deterministic references without contacting a gateway.
// It backs local development when no credentials are configured.
type StubClient struct {
	Gateway Name
}

func (s StubClient) CreateOrder(_ context.Context, req OrderRequest) (OrderResponse, error) {
	if req.Mode == ModeLive {
		return OrderResponse{}, ErrLiveModeUnavailable
	}
	booking := strings.TrimSpace(req.BookingID)
	if booking == "" {
		return OrderResponse{}, errors.New("stub: booking id is required")
	}
	switch s.Gateway {
	case Stripe:
		return OrderResponse{
			Gateway:      Stripe,
			Reference:    "pi_" + booking,
			Status:       "requires_payment_method",
			ClientSecret: "pi_" + booking + "_secret_stub",
		}, nil
	default:
		return OrderResponse{Gateway: Razorpay, Reference: "order_" + booking, Status: "created"}, nil
	}
}
