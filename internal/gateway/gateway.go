package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Name identifies a payment gateway.
type Name string

const (
	Razorpay Name = "razorpay"
	Stripe   Name = "stripe"
)

// Mode selects the gateway environment.
type Mode string

const (
	ModeSandbox Mode = "sandbox"
	ModeLive    Mode = "live"
)

var (
	// ErrUnsupportedGateway is returned for gateway names outside Razorpay and Stripe.
	ErrUnsupportedGateway = errors.New("gateway: unsupported gateway")
	// ErrLiveModeUnavailable is returned when live mode is requested from a client that cannot serve it.
	ErrLiveModeUnavailable = errors.New("gateway: live mode not available")
)

// ParseName normalises a gateway name.
func ParseName(raw string) (Name, error) {
	switch Name(strings.ToLower(strings.TrimSpace(raw))) {
	case Razorpay:
		return Razorpay, nil
	case Stripe:
		return Stripe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGateway, raw)
	}
}

// OrderRequest asks a gateway for an order (Razorpay) or payment intent (Stripe).
type OrderRequest struct {
	BookingID    string
	StoreID      string
	FreelancerID string
	ServiceID    string
	Amount       int64
	Currency     string
	Mode         Mode
}

// OrderResponse is the gateway reference to correlate future webhooks with.
type OrderResponse struct {
	Gateway      Name
	Reference    string
	Status       string
	ClientSecret string
}

// Client creates orders with one gateway.
type Client interface {
	CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
}

// Registry resolves the client for a gateway.
type Registry map[Name]Client

// Get returns the client for name.
func (r Registry) Get(name Name) (Client, error) {
	c, ok := r[name]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %s not configured", ErrUnsupportedGateway, name)
	}
	return c, nil
}

func notes(req OrderRequest) map[string]string {
	out := map[string]string{"booking_id": req.BookingID}
	if req.StoreID != "" {
		out["store_id"] = req.StoreID
	}
	if req.FreelancerID != "" {
		out["freelancer_id"] = req.FreelancerID
	}
	if req.ServiceID != "" {
		out["service_id"] = req.ServiceID
	}
	return out
}
