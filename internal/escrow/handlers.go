package escrow

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/salon-escrow/internal/common"
)

// Handler exposes read-only escrow endpoints.
type Handler struct {
	Ledger *Ledger
}

// Get returns the escrow for the bookingId URL parameter.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Ledger == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "escrow ledger not configured", nil)
		return
	}
	bookingID := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if bookingID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "bookingId is required", nil)
		return
	}
	rec, err := h.Ledger.FindByBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "escrow not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load escrow", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}
