package escrow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/salon-escrow/internal/split"
)

var (
	// ErrDuplicateBooking is returned when an escrow already exists for the booking.
	ErrDuplicateBooking = errors.New("escrow: booking already has an escrow")
	// ErrNotFound is returned when no escrow matches the lookup.
	ErrNotFound = errors.New("escrow: not found")
	// ErrInvalidTransition is returned when a status change is not in the transition table.
	ErrInvalidTransition = errors.New("escrow: invalid status transition")
	// ErrStaleStatus reports a compare-and-set update that lost a race.
	ErrStaleStatus = errors.New("escrow: status changed concurrently")
)

// Status is the lifecycle state of an escrow record.
type Status string

const (
	StatusCreated  Status = "created"
	StatusCaptured Status = "captured"
	StatusRefunded Status = "refunded"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusCaptured, StatusRefunded, StatusFailed:
		return true
	default:
		return false
	}
}

var transitions = map[Status][]Status{
	StatusCreated:  {StatusCaptured, StatusFailed},
	StatusCaptured: {StatusRefunded},
}

// CanTransition reports whether from -> to is an allowed forward move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError details a refused status change.
type TransitionError struct {
	BookingID string
	From      Status
	To        Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("escrow: booking %s cannot move from %s to %s", e.BookingID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Record is a pseudo-escrow entry for one booking. Money is never held; the
// record tracks what the gateway reports and how it will be divided.
type Record struct {
	ID           uuid.UUID   `json:"id"`
	BookingID    string      `json:"bookingId"`
	StoreID      string      `json:"storeId"`
	FreelancerID string      `json:"freelancerId"`
	ServiceID    string      `json:"serviceId"`
	Gateway      string      `json:"gateway"`
	Mode         string      `json:"mode"`
	GatewayRef   string      `json:"gatewayRef"`
	PaymentRef   string      `json:"paymentRef,omitempty"`
	Currency     string      `json:"currency"`
	Amount       int64       `json:"amount"`
	Status       Status      `json:"status"`
	Split        split.Split `json:"split"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// MatchesRef reports whether ref correlates with this record.
func (r Record) MatchesRef(gateway, ref string) bool {
	if ref == "" || r.Gateway != gateway {
		return false
	}
	return r.GatewayRef == ref || r.PaymentRef == ref
}
