package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/gateway"
	"github.com/noah-isme/salon-escrow/internal/obs"
	"github.com/noah-isme/salon-escrow/internal/split"
)

// Request starts payment for one booking. Gateway, Mode and Currency fall
// back to the configured defaults when empty.
type Request struct {
	Amount       int64  `json:"amount" validate:"gt=0,lte=92233720368547758"`
	Currency     string `json:"currency" validate:"omitempty,len=3,alpha"`
	BookingID    string `json:"bookingId" validate:"required,max=128,startsnotwith=job:"`
	StoreID      string `json:"storeId" validate:"required,max=128"`
	FreelancerID string `json:"freelancerId" validate:"required,max=128"`
	ServiceID    string `json:"serviceId" validate:"omitempty,max=128"`
	Gateway      string `json:"gateway" validate:"omitempty,oneof=razorpay stripe"`
	Mode         string `json:"mode" validate:"omitempty,oneof=sandbox live"`
}

// Result is returned to the booking UI. OrderID is set for Razorpay and
// PaymentIntentID for Stripe.
type Result struct {
	BookingID       string        `json:"bookingId"`
	Gateway         string        `json:"gateway"`
	OrderID         string        `json:"orderId,omitempty"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
	ClientSecret    string        `json:"clientSecret,omitempty"`
	Status          escrow.Status `json:"status"`
	GatewayStatus   string        `json:"gatewayStatus,omitempty"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Split           split.Shares  `json:"split"`
}

// GatewayError reports a failed or timed-out order creation. No ledger state
// exists for the booking when it is returned.
type GatewayError struct {
	Gateway string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("checkout: %s: %s", e.Gateway, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Timeout reports whether the gateway call ran out of time.
func (e *GatewayError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Ledger is the subset of *escrow.Ledger used by checkout.
type Ledger interface {
	FindByBooking(ctx context.Context, bookingID string) (escrow.Record, error)
	CreateEscrow(ctx context.Context, p escrow.CreateParams) (escrow.Record, error)
}

// Options carries the configured defaults.
type Options struct {
	DefaultGateway  gateway.Name
	DefaultMode     gateway.Mode
	DefaultCurrency string
	GatewayTimeout  time.Duration
}

// Service orchestrates checkout: split first, then the gateway, then the
// ledger. Either every step succeeds or nothing is recorded.
type Service struct {
	Ledger   Ledger
	Calc     escrow.SplitCalculator
	Gateways gateway.Registry
	Opts     Options
	Logger   zerolog.Logger

	validate *validator.Validate
}

// NewService wires a checkout service.
func NewService(ledger Ledger, calc escrow.SplitCalculator, gateways gateway.Registry, opts Options, logger zerolog.Logger) *Service {
	return &Service{Ledger: ledger, Calc: calc, Gateways: gateways, Opts: opts, Logger: logger, validate: common.NewValidator()}
}

// InitiateCheckout creates a gateway order for the booking and records its
// escrow.
func (s *Service) InitiateCheckout(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.Ledger == nil || s.Calc == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	req = s.normalize(req)
	if err := s.check(req); err != nil {
		obs.IncCheckout(req.Gateway, req.Mode, "invalid")
		return Result{}, err
	}

	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.booking_id", req.BookingID),
		attribute.String("checkout.gateway", req.Gateway),
		attribute.String("checkout.mode", req.Mode),
	)
	log := s.Logger.With().Str("booking_id", req.BookingID).Str("gateway", req.Gateway).Logger()

	if _, err := s.Ledger.FindByBooking(ctx, req.BookingID); err == nil {
		obs.IncCheckout(req.Gateway, req.Mode, "duplicate")
		return Result{}, fmt.Errorf("%w: %s", escrow.ErrDuplicateBooking, req.BookingID)
	} else if !errors.Is(err, escrow.ErrNotFound) {
		return Result{}, s.fail(span, req, err)
	}

	sp, err := s.Calc.Calculate(ctx, req.Amount, req.ServiceID)
	if err != nil {
		obs.IncCheckout(req.Gateway, req.Mode, "invalid_rule")
		return Result{}, err
	}

	order, err := s.createOrder(ctx, req)
	if err != nil {
		log.Warn().Err(err).Msg("checkout_gateway_failed")
		obs.IncCheckout(req.Gateway, req.Mode, "gateway_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	rec, err := s.Ledger.CreateEscrow(ctx, escrow.CreateParams{
		BookingID:    req.BookingID,
		StoreID:      req.StoreID,
		FreelancerID: req.FreelancerID,
		ServiceID:    req.ServiceID,
		Gateway:      req.Gateway,
		Mode:         req.Mode,
		GatewayRef:   order.Reference,
		Currency:     req.Currency,
		Amount:       req.Amount,
		Split:        &sp,
	})
	if err != nil {
		if errors.Is(err, escrow.ErrDuplicateBooking) {
			obs.IncCheckout(req.Gateway, req.Mode, "duplicate")
			return Result{}, err
		}
		log.Error().Err(err).Str("gateway_ref", order.Reference).Msg("checkout_escrow_create_failed")
		return Result{}, s.fail(span, req, err)
	}

	obs.IncCheckout(req.Gateway, req.Mode, "success")
	log.Info().Str("gateway_ref", order.Reference).Int64("amount", req.Amount).Msg("checkout_initiated")
	return buildResult(rec, order), nil
}

func (s *Service) createOrder(ctx context.Context, req Request) (gateway.OrderResponse, error) {
	name := gateway.Name(req.Gateway)
	client, err := s.Gateways.Get(name)
	if err != nil {
		return gateway.OrderResponse{}, &GatewayError{Gateway: req.Gateway, Message: "gateway not configured", Err: err}
	}
	timeout := s.Opts.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	order, err := client.CreateOrder(callCtx, gateway.OrderRequest{
		BookingID:    req.BookingID,
		StoreID:      req.StoreID,
		FreelancerID: req.FreelancerID,
		ServiceID:    req.ServiceID,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Mode:         gateway.Mode(req.Mode),
	})
	elapsed := obs.DurationMillis(time.Since(start))
	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		obs.ObserveGateway(req.Gateway, "timeout", elapsed)
		return gateway.OrderResponse{}, &GatewayError{Gateway: req.Gateway, Message: "gateway timed out", Err: context.DeadlineExceeded}
	case err != nil:
		obs.ObserveGateway(req.Gateway, "error", elapsed)
		return gateway.OrderResponse{}, &GatewayError{Gateway: req.Gateway, Message: err.Error(), Err: err}
	case strings.TrimSpace(order.Reference) == "":
		obs.ObserveGateway(req.Gateway, "error", elapsed)
		return gateway.OrderResponse{}, &GatewayError{Gateway: req.Gateway, Message: "gateway returned no reference"}
	}
	obs.ObserveGateway(req.Gateway, "success", elapsed)
	return order, nil
}

func (s *Service) normalize(req Request) Request {
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.StoreID = strings.TrimSpace(req.StoreID)
	req.FreelancerID = strings.TrimSpace(req.FreelancerID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Gateway = strings.ToLower(strings.TrimSpace(req.Gateway))
	if req.Gateway == "" {
		req.Gateway = string(s.Opts.DefaultGateway)
	}
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	if req.Mode == "" {
		req.Mode = string(s.Opts.DefaultMode)
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = strings.ToUpper(s.Opts.DefaultCurrency)
	}
	return req
}

func (s *Service) check(req Request) error {
	return common.ValidateStruct(s.validate, req, "invalid checkout request")
}

func (s *Service) fail(span trace.Span, req Request, err error) error {
	obs.IncCheckout(req.Gateway, req.Mode, "error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func buildResult(rec escrow.Record, order gateway.OrderResponse) Result {
	res := Result{
		BookingID:     rec.BookingID,
		Gateway:       rec.Gateway,
		ClientSecret:  order.ClientSecret,
		Status:        rec.Status,
		GatewayStatus: order.Status,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Split:         rec.Split.Shares,
	}
	if rec.Gateway == string(gateway.Stripe) {
		res.PaymentIntentID = order.Reference
	} else {
		res.OrderID = order.Reference
	}
	return res
}
