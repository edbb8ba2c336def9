package earnings

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no earning matches the id.
	ErrNotFound = errors.New("earnings: not found")
	// ErrNotPayable is returned when a payout targets a reversed earning.
	ErrNotPayable = errors.New("earnings: earning is not payable")
	// ErrStaleStatus reports a compare-and-set update that lost a race.
	ErrStaleStatus = errors.New("earnings: status changed concurrently")
)

// Role is the party a share belongs to.
type Role string

const (
	RoleStore      Role = "store"
	RoleFreelancer Role = "freelancer"
	RolePlatform   Role = "platform"
)

// PlatformPartyID is the party id used for the platform's own share.
const PlatformPartyID = "platform"

// Status tracks an earning from capture to payout.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusReversed Status = "reversed"
)

// Earning is one party's share of a captured booking.
type Earning struct {
	ID        uuid.UUID `json:"id"`
	BookingID string    `json:"bookingId"`
	PartyID   string    `json:"partyId"`
	Role      Role      `json:"role"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary totals a party's earnings per status.
type Summary struct {
	Pending  int64 `json:"pending"`
	Paid     int64 `json:"paid"`
	Reversed int64 `json:"reversed"`
}

func summarize(items []Earning) Summary {
	var s Summary
	for _, e := range items {
		switch e.Status {
		case StatusPending:
			s.Pending += e.Amount
		case StatusPaid:
			s.Paid += e.Amount
		case StatusReversed:
			s.Reversed += e.Amount
		}
	}
	return s
}
