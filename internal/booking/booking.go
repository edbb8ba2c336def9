package booking

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no slot booking matches the id.
	ErrNotFound = errors.New("booking: not found")
	// ErrSlotTaken is returned when the salon already has a confirmed
	// booking at that date and time.
	ErrSlotTaken = errors.New("booking: slot already booked")
	// ErrNotOwner is returned when a customer cancels someone else's booking.
	ErrNotOwner = errors.New("booking: booking belongs to another customer")
	// ErrInvalidSlot reports an unparseable date or time.
	ErrInvalidSlot = errors.New("booking: invalid date or time")
	// ErrMissingParty is returned when the salon or customer id is empty.
	ErrMissingParty = errors.New("booking: salon and customer ids are required")
)

// Status of a slot booking. Only confirmed bookings hold their slot.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Location is where the service is performed.
type Location string

const (
	LocationSalon Location = "salon"
	LocationHome  Location = "home"
)

// DateLayout is the wire and storage format of slot dates.
const DateLayout = "2006-01-02"

// Slot is one customer's booking of a salon time slot.
type Slot struct {
	ID         uuid.UUID `json:"id"`
	SalonID    string    `json:"salonId"`
	SalonName  string    `json:"salonName"`
	CustomerID string    `json:"customerId"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Location   Location  `json:"location"`
	Services   []string  `json:"services"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

var timeLayouts = []string{"15:04", "3:04 PM", "3:04PM"}

// NormalizeTime accepts "09:30", "9:30 AM" or "9:30AM" and returns the
// 24-hour "HH:MM" form used as the slot key.
func NormalizeTime(raw string) (string, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", ErrInvalidSlot
}

// ParseDate validates a YYYY-MM-DD slot date.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, ErrInvalidSlot
	}
	return d, nil
}
