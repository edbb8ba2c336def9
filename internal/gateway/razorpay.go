package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/salon-escrow/internal/resilience"
)

// RazorpayClient creates orders through the Razorpay Orders API.
type RazorpayClient struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	HTTP      resilience.HTTPClient
}

// RazorpayOptions configures NewRazorpayClient.
type RazorpayOptions struct {
	KeyID       string
	KeySecret   string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
}

// NewRazorpayClient builds a client with an instrumented transport, retries
// and a dedicated circuit breaker.
func NewRazorpayClient(opts RazorpayOptions) *RazorpayClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://api.razorpay.com"
	}
	return &RazorpayClient{
		KeyID:     opts.KeyID,
		KeySecret: opts.KeySecret,
		BaseURL:   base,
		HTTP: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     resilience.NewBreaker(resilience.BreakerSettings{Gateway: string(Razorpay), MinRequests: 5, FailureRatio: 0.5, OpenFor: 30 * time.Second}),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: opts.MaxAttempts,
			Jitter:      0.2,
			Timeout:     opts.Timeout,
		},
	}
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID     string `json:"id"`
	Entity string `json:"entity"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder posts to /v1/orders and returns the order id as the reference.
func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if c.KeyID == "" || c.KeySecret == "" {
		return OrderResponse{}, errors.New("razorpay: credentials not configured")
	}
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Receipt:  req.BookingID,
		Notes:    notes(req),
	})
	if err != nil {
		return OrderResponse{}, fmt.Errorf("razorpay: encode order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return OrderResponse{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(c.KeyID, c.KeySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(ctx, httpReq)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OrderResponse{}, fmt.Errorf("razorpay: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr razorpayError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Description != "" {
			return OrderResponse{}, fmt.Errorf("razorpay: %s", apiErr.Error.Description)
		}
		return OrderResponse{}, fmt.Errorf("razorpay: unexpected status %d", resp.StatusCode)
	}
	var order razorpayOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return OrderResponse{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return OrderResponse{}, errors.New("razorpay: order id missing from response")
	}
	return OrderResponse{Gateway: Razorpay, Reference: order.ID, Status: order.Status}, nil
}
