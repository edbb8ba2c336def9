package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/events"
	"github.com/noah-isme/salon-escrow/internal/obs"
)

// Emitter announces booking changes.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// BookRequest reserves one slot for a customer.
type BookRequest struct {
	SalonID    string   `json:"salonId" validate:"required,max=128"`
	SalonName  string   `json:"salonName" validate:"max=200"`
	CustomerID string   `json:"-"`
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time       string   `json:"time" validate:"required,max=16"`
	Location   Location `json:"location" validate:"omitempty,oneof=salon home"`
	Services   []string `json:"services" validate:"max=20,dive,required,max=128"`
}

// Service books and cancels salon time slots.
type Service struct {
	Store  Store
	Events Emitter
	Logger zerolog.Logger
	Now    func() time.Time
	// Location decides which calendar day is today. Nil means UTC.
	Location *time.Location

	validate *validator.Validate
}

// NewService wires a slot booking service.
func NewService(store Store, emitter Emitter, logger zerolog.Logger) *Service {
	return &Service{Store: store, Events: emitter, Logger: logger, validate: common.NewValidator()}
}

// BookSlot confirms a slot for the customer. A slot already held by a
// confirmed booking yields ErrSlotTaken; a cancelled one can be rebooked.
func (s *Service) BookSlot(ctx context.Context, req BookRequest) (Slot, error) {
	if err := s.ready(); err != nil {
		return Slot{}, err
	}
	req.SalonID = strings.TrimSpace(req.SalonID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CustomerID == "" {
		return Slot{}, ErrMissingParty
	}
	if err := common.ValidateStruct(s.validate, req, "invalid booking request"); err != nil {
		return Slot{}, err
	}
	slotTime, err := NormalizeTime(req.Time)
	if err != nil {
		return Slot{}, common.NewAppError("VALIDATION_ERROR", "invalid booking request", http.StatusBadRequest, err).
			WithDetails(map[string]string{"time": "time"})
	}
	if req.Date < s.today() {
		return Slot{}, common.NewAppError("VALIDATION_ERROR", "cannot book a past date", http.StatusBadRequest, ErrInvalidSlot).
			WithDetails(map[string]string{"date": "past"})
	}
	if req.Location == "" {
		req.Location = LocationSalon
	}
	services := req.Services
	if services == nil {
		services = []string{}
	}
	now := s.now()
	slot := Slot{
		ID:         uuid.New(),
		SalonID:    req.SalonID,
		SalonName:  strings.TrimSpace(req.SalonName),
		CustomerID: req.CustomerID,
		Date:       req.Date,
		Time:       slotTime,
		Location:   req.Location,
		Services:   services,
		Status:     StatusConfirmed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log := s.Logger.With().Str("salon_id", slot.SalonID).Str("date", slot.Date).Str("time", slot.Time).Logger()
	if err := s.Store.Insert(ctx, slot); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			obs.IncSlotBooking("book", "taken")
			log.Info().Msg("slot_already_booked")
			return Slot{}, fmt.Errorf("%w: %s %s %s", ErrSlotTaken, slot.SalonID, slot.Date, slot.Time)
		}
		obs.IncSlotBooking("book", "error")
		return Slot{}, err
	}
	obs.IncSlotBooking("book", "confirmed")
	log.Info().Str("slot_id", slot.ID.String()).Msg("slot_booked")
	s.emit(ctx, events.TopicSlotBooked, slot)
	return slot, nil
}

// ListBookedSlots returns the times already taken at the salon on date.
func (s *Service) ListBookedSlots(ctx context.Context, salonID, date string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	salonID = strings.TrimSpace(salonID)
	if salonID == "" {
		return nil, ErrMissingParty
	}
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	slots, err := s.Store.ListConfirmed(ctx, salonID, strings.TrimSpace(date))
	if err != nil {
		return nil, err
	}
	times := make([]string, 0, len(slots))
	for _, slot := range slots {
		times = append(times, slot.Time)
	}
	return times, nil
}

// CountToday returns how many confirmed bookings the salon has today.
func (s *Service) CountToday(ctx context.Context, salonID string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	slots, err := s.Store.ListConfirmed(ctx, salonID, s.today())
	if err != nil {
		return 0, err
	}
	return len(slots), nil
}

// CancelSlot frees the booking's slot. A non-empty customerID must own the
// booking; an empty one is an operator cancelling on the customer's behalf.
func (s *Service) CancelSlot(ctx context.Context, id uuid.UUID, customerID string) (Slot, error) {
	if err := s.ready(); err != nil {
		return Slot{}, err
	}
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return Slot{}, err
	}
	if customerID != "" && current.CustomerID != customerID {
		return Slot{}, ErrNotOwner
	}
	if current.Status == StatusCancelled {
		return current, nil
	}
	cancelled, err := s.Store.Cancel(ctx, id, s.now())
	if err != nil {
		obs.IncSlotBooking("cancel", "error")
		return Slot{}, err
	}
	obs.IncSlotBooking("cancel", "cancelled")
	s.Logger.Info().Str("slot_id", id.String()).Str("salon_id", cancelled.SalonID).Str("date", cancelled.Date).
		Str("time", cancelled.Time).Msg("slot_cancelled")
	s.emit(ctx, events.TopicSlotCancelled, cancelled)
	return cancelled, nil
}

// MyBookings returns the customer's bookings, newest first.
func (s *Service) MyBookings(ctx context.Context, customerID string) ([]Slot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrMissingParty
	}
	return s.Store.ListByCustomer(ctx, customerID)
}

func (s *Service) emit(ctx context.Context, topic string, slot Slot) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, slot.ID.String(), slot); err != nil {
		s.Logger.Error().Err(err).Str("slot_id", slot.ID.String()).Str("topic", topic).Msg("booking_event_emit_failed")
	}
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("booking service not configured")
	}
	return nil
}

func (s *Service) today() string {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return s.now().In(loc).Format(DateLayout)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
