package webhook

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/salon-escrow/internal/escrow"
)

// Outcome classifies what reconciliation did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

// Result describes a reconciled event.
type Result struct {
	Outcome   Outcome
	BookingID string
	Status    escrow.Status
}

// Ledger is the subset of *escrow.Ledger used by the reconciler.
type Ledger interface {
	FindByGatewayRef(ctx context.Context, gateway, ref string) (escrow.Record, error)
	TransitionWith(ctx context.Context, rec escrow.Record, to escrow.Status, opts escrow.TransitionOpts) (escrow.Record, bool, error)
}

// Reconciler applies verified gateway events to the escrow ledger.
type Reconciler struct {
	Ledger Ledger
	Logger zerolog.Logger
}

// Reconcile maps ev to a ledger transition. Unknown references, unknown
// event types and out-of-order transitions are absorbed; only storage
// failures are returned.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Result, error) {
	if r == nil || r.Ledger == nil {
		return Result{}, errors.New("webhook: reconciler not configured")
	}
	ctx, span := otel.Tracer("webhook").Start(ctx, "webhook.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.gateway", string(ev.GatewayName())),
		attribute.String("webhook.event_type", ev.EventType()),
	)

	var (
		ref  string
		to   escrow.Status
		opts escrow.TransitionOpts
	)
	switch e := ev.(type) {
	case PaymentCaptured:
		ref, to = e.OrderRef, escrow.StatusCaptured
		if e.PaymentID != e.OrderRef {
			opts.PaymentRef = e.PaymentID
		}
	case PaymentRefunded:
		ref, to = e.PaymentRef, escrow.StatusRefunded
	case PaymentFailed:
		ref, to = e.OrderRef, escrow.StatusFailed
	default:
		r.Logger.Debug().Str("gateway", string(ev.GatewayName())).Str("event_type", ev.EventType()).Msg("webhook_event_ignored")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	log := r.Logger.With().Str("gateway", string(ev.GatewayName())).Str("event_type", ev.EventType()).Str("ref", ref).Logger()
	rec, err := r.Ledger.FindByGatewayRef(ctx, string(ev.GatewayName()), ref)
	if err != nil {
		if errors.Is(err, escrow.ErrNotFound) {
			log.Info().Msg("webhook_reference_unmatched")
			return Result{Outcome: OutcomeUnmatched}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	updated, applied, err := r.Ledger.TransitionWith(ctx, rec, to, opts)
	switch {
	case errors.Is(err, escrow.ErrInvalidTransition):
		log.Warn().Err(err).Str("booking_id", rec.BookingID).Msg("webhook_transition_rejected")
		return Result{Outcome: OutcomeRejected, BookingID: rec.BookingID, Status: updated.Status}, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	case applied:
		log.Info().Str("booking_id", rec.BookingID).Str("status", string(updated.Status)).Msg("webhook_reconciled")
		return Result{Outcome: OutcomeApplied, BookingID: rec.BookingID, Status: updated.Status}, nil
	default:
		log.Debug().Str("booking_id", rec.BookingID).Msg("webhook_replay_noop")
		return Result{Outcome: OutcomeNoop, BookingID: rec.BookingID, Status: updated.Status}, nil
	}
}
