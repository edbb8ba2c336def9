package earnings

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/salon-escrow/internal/common"
)

// Handler exposes earnings endpoints.
type Handler struct {
	Svc *Service
}

// List returns the earnings of the partyId URL parameter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "earnings service not configured", nil)
		return
	}
	partyID := strings.TrimSpace(chi.URLParam(r, "partyId"))
	if partyID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "partyId is required", nil)
		return
	}
	items, summary, err := h.Svc.List(r.Context(), partyID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load earnings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "summary": summary})
}

// Payout marks the earning in the earningId URL parameter as paid.
func (h *Handler) Payout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "earnings service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "earningId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid earning id", nil)
		return
	}
	e, err := h.Svc.Payout(r.Context(), id)
	switch {
	case err == nil:
		common.JSON(w, http.StatusOK, map[string]any{"data": e})
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "earning not found", nil)
	case errors.Is(err, ErrNotPayable):
		common.JSONError(w, http.StatusConflict, "NOT_PAYABLE", "earning was reversed", map[string]any{"status": e.Status})
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to pay out earning", nil)
	}
}
