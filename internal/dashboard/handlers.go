package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/salon-escrow/internal/common"
)

// Handler serves the partyId dashboard.
type Handler struct {
	Svc *Service
}

func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "dashboard service not configured", nil)
		return
	}
	out, err := h.Svc.Today(r.Context(), chi.URLParam(r, "partyId"))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load dashboard", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
