package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/salon-escrow/internal/common"
)

// Handler exposes slot booking endpoints. Customer routes expect the
// customerId URL parameter to be authorised upstream.
type Handler struct {
	Svc *Service
}

// Slots lists the booked times of salonId on the date query parameter.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	salonID := strings.TrimSpace(chi.URLParam(r, "salonId"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	times, err := h.Svc.ListBookedSlots(r.Context(), salonID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": times, "salonId": salonID, "date": date})
}

// Book reserves a slot for the customerId URL parameter.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	var payload BookRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.CustomerID = chi.URLParam(r, "customerId")
	slot, err := h.Svc.BookSlot(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": slot})
}

// Mine lists the bookings of the customerId URL parameter.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	items, err := h.Svc.MyBookings(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Cancel frees the slotId booking owned by the customerId URL parameter.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "slotId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid booking id", nil)
		return
	}
	slot, err := h.Svc.CancelSlot(r.Context(), id, chi.URLParam(r, "customerId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": slot})
}

// Routes mounts the customer-scoped booking routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Mine)
	r.Post("/", h.Book)
	r.Delete("/{slotId}", h.Cancel)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotTaken):
		common.JSONError(w, http.StatusConflict, "SLOT_TAKEN", "slot already booked", nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "booking not found", nil)
	case errors.Is(err, ErrNotOwner):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "booking belongs to another customer", nil)
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrMissingParty):
		common.WriteAppError(w, err, http.StatusBadRequest, "BAD_REQUEST")
	default:
		if _, ok := common.AsAppError(err); ok {
			common.WriteAppError(w, err, http.StatusInternalServerError, "INTERNAL")
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "booking request failed", nil)
	}
}
