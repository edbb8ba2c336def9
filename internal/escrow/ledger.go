package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/salon-escrow/internal/events"
	"github.com/noah-isme/salon-escrow/internal/lock"
	"github.com/noah-isme/salon-escrow/internal/obs"
	"github.com/noah-isme/salon-escrow/internal/split"
)

// maxCASAttempts bounds re-reads when a writer outside this process wins the
// compare-and-set race.
const maxCASAttempts = 3

// SplitCalculator computes the split for a new escrow.
type SplitCalculator interface {
	Calculate(ctx context.Context, amount int64, serviceID string) (split.Split, error)
}

// Emitter announces applied changes.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// CreateParams describes a new escrow entry.
type CreateParams struct {
	BookingID    string
	StoreID      string
	FreelancerID string
	ServiceID    string
	Gateway      string
	Mode         string
	GatewayRef   string
	Currency     string
	Amount       int64
	// Split is used as-is when set; otherwise it is computed from the active rule.
	Split *split.Split
}

// TransitionOpts carries data learned alongside a status change.
type TransitionOpts struct {
	PaymentRef string
}

// Ledger is the single writer for escrow records. Every mutation for a
// booking runs under that booking's lock and re-reads the stored record, so
// callers holding stale copies cannot move a record backwards. Events are
// emitted while the lock is held so their order per booking matches the
// order of changes.
type Ledger struct {
	Store   Store
	Calc    SplitCalculator
	Locks   lock.Guard
	LockTTL time.Duration
	Events  Emitter
	Logger  zerolog.Logger
	Now     func() time.Time
}

// NewLedger wires a ledger with an in-process keyed lock, optionally chained
// with a distributed guard.
func NewLedger(store Store, calc SplitCalculator, distributed lock.Guard, emitter Emitter, logger zerolog.Logger) *Ledger {
	guards := lock.Chain{lock.NewKeyed()}
	if distributed != nil {
		guards = append(guards, distributed)
	}
	return &Ledger{
		Store:  store,
		Calc:   calc,
		Locks:  guards,
		Events: emitter,
		Logger: logger,
	}
}

// CreateEscrow records a new escrow in status created.
func (l *Ledger) CreateEscrow(ctx context.Context, p CreateParams) (Record, error) {
	if err := l.ready(); err != nil {
		return Record{}, err
	}
	if err := validateCreate(p); err != nil {
		return Record{}, err
	}
	sp, err := l.resolveSplit(ctx, p)
	if err != nil {
		return Record{}, err
	}
	now := l.now()
	rec := Record{
		ID:           uuid.New(),
		BookingID:    p.BookingID,
		StoreID:      p.StoreID,
		FreelancerID: p.FreelancerID,
		ServiceID:    p.ServiceID,
		Gateway:      p.Gateway,
		Mode:         p.Mode,
		GatewayRef:   p.GatewayRef,
		Currency:     strings.ToUpper(p.Currency),
		Amount:       p.Amount,
		Status:       StatusCreated,
		Split:        sp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = l.withLock(ctx, p.BookingID, func(ctx context.Context) error {
		if err := l.Store.Insert(ctx, rec); err != nil {
			return err
		}
		l.emit(ctx, events.TopicEscrowCreated, rec)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateBooking) {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicateBooking, p.BookingID)
		}
		return Record{}, err
	}
	l.Logger.Info().Str("booking_id", rec.BookingID).Str("gateway", rec.Gateway).Str("gateway_ref", rec.GatewayRef).
		Int64("amount", rec.Amount).Msg("escrow_created")
	return rec, nil
}

func (l *Ledger) resolveSplit(ctx context.Context, p CreateParams) (split.Split, error) {
	if p.Split != nil {
		if p.Split.Shares.Total() != p.Amount {
			return split.Split{}, fmt.Errorf("escrow: split shares %d do not match amount %d", p.Split.Shares.Total(), p.Amount)
		}
		if err := p.Split.Rule.Validate(); err != nil {
			return split.Split{}, err
		}
		return *p.Split, nil
	}
	if l.Calc == nil {
		return split.Split{}, errors.New("escrow: split calculator not configured")
	}
	return l.Calc.Calculate(ctx, p.Amount, p.ServiceID)
}

func validateCreate(p CreateParams) error {
	switch {
	case strings.TrimSpace(p.BookingID) == "":
		return errors.New("escrow: booking id is required")
	case strings.TrimSpace(p.GatewayRef) == "":
		return errors.New("escrow: gateway reference is required")
	case strings.TrimSpace(p.Gateway) == "":
		return errors.New("escrow: gateway is required")
	case p.Amount <= 0 || p.Amount > split.MaxAmount:
		return split.ErrInvalidAmount
	}
	return nil
}

// FindByGatewayRef returns the record whose gateway or payment reference is ref.
func (l *Ledger) FindByGatewayRef(ctx context.Context, gateway, ref string) (Record, error) {
	if err := l.ready(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(ref) == "" {
		return Record{}, ErrNotFound
	}
	return l.Store.GetByRef(ctx, gateway, ref)
}

// FindByBooking returns the record for a booking.
func (l *Ledger) FindByBooking(ctx context.Context, bookingID string) (Record, error) {
	if err := l.ready(); err != nil {
		return Record{}, err
	}
	return l.Store.GetByBooking(ctx, bookingID)
}

// StoreRevenue totals the store's escrows captured in [from, to).
func (l *Ledger) StoreRevenue(ctx context.Context, storeID string, from, to time.Time) (Revenue, error) {
	if err := l.ready(); err != nil {
		return Revenue{}, err
	}
	return l.Store.CapturedRevenue(ctx, storeID, from, to)
}

// Transition moves rec to status to. It returns the stored record and whether
// a change was applied. Moving to the current status is a no-op.
func (l *Ledger) Transition(ctx context.Context, rec Record, to Status) (Record, bool, error) {
	return l.TransitionWith(ctx, rec, to, TransitionOpts{})
}

// TransitionWith is Transition with extra data recorded on the applied change.
func (l *Ledger) TransitionWith(ctx context.Context, rec Record, to Status, opts TransitionOpts) (Record, bool, error) {
	if err := l.ready(); err != nil {
		return Record{}, false, err
	}
	if !to.Valid() {
		return rec, false, fmt.Errorf("escrow: unknown status %q", to)
	}
	ctx, span := otel.Tracer("escrow").Start(ctx, "escrow.transition")
	defer span.End()
	span.SetAttributes(attribute.String("escrow.booking_id", rec.BookingID), attribute.String("escrow.to", string(to)))

	var (
		result  Record
		prev    Status
		applied bool
	)
	err := l.withLock(ctx, rec.BookingID, func(ctx context.Context) error {
		for attempt := 0; attempt < maxCASAttempts; attempt++ {
			current, err := l.Store.GetByBooking(ctx, rec.BookingID)
			if err != nil {
				return err
			}
			result, prev = current, current.Status
			if current.Status == to {
				return nil
			}
			if !CanTransition(current.Status, to) {
				return &TransitionError{BookingID: current.BookingID, From: current.Status, To: to}
			}
			updated, err := l.Store.UpdateStatus(ctx, StatusUpdate{
				BookingID:  current.BookingID,
				From:       current.Status,
				To:         to,
				PaymentRef: opts.PaymentRef,
				At:         l.now(),
			})
			if errors.Is(err, ErrStaleStatus) {
				continue
			}
			if err != nil {
				return err
			}
			result = updated
			applied = true
			if topic, ok := events.TopicForStatus(string(to)); ok {
				l.emit(ctx, topic, updated)
			}
			return nil
		}
		return ErrStaleStatus
	})

	from := string(prev)
	var transErr *TransitionError
	switch {
	case err == nil && applied:
		obs.IncTransition(from, string(to), "applied")
		l.Logger.Info().Str("booking_id", result.BookingID).Str("from", from).Str("to", string(to)).Msg("escrow_transition_applied")
		return result, true, nil
	case err == nil:
		obs.IncTransition(from, string(to), "noop")
		l.Logger.Debug().Str("booking_id", result.BookingID).Str("status", string(to)).Msg("escrow_transition_noop")
		return result, false, nil
	case errors.As(err, &transErr):
		obs.IncTransition(from, string(to), "rejected")
		l.Logger.Warn().Str("booking_id", transErr.BookingID).Str("from", string(transErr.From)).Str("to", string(to)).
			Msg("escrow_transition_rejected")
		return result, false, err
	default:
		obs.IncTransition(from, string(to), "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return rec, false, err
	}
}

func (l *Ledger) withLock(ctx context.Context, bookingID string, fn func(context.Context) error) error {
	if l.Locks == nil {
		return fn(ctx)
	}
	return l.Locks.WithLock(ctx, "escrow:"+bookingID, l.lockTTL(), fn)
}

func (l *Ledger) emit(ctx context.Context, topic string, rec Record) {
	if l.Events == nil {
		return
	}
	if _, err := l.Events.Emit(ctx, topic, rec.BookingID, rec); err != nil {
		l.Logger.Error().Err(err).Str("booking_id", rec.BookingID).Str("topic", topic).Msg("escrow_event_emit_failed")
	}
}

func (l *Ledger) ready() error {
	if l == nil || l.Store == nil {
		return errors.New("escrow: ledger not configured")
	}
	return nil
}

func (l *Ledger) lockTTL() time.Duration {
	if l.LockTTL > 0 {
		return l.LockTTL
	}
	return 10 * time.Second
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
