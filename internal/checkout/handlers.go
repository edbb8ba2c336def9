package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/split"
)

type Handler struct {
	Svc *Service
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.InitiateCheckout(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		gwErr   *GatewayError
		ruleErr *split.InvalidRuleError
	)
	switch {
	case errors.As(err, &gwErr):
		status := http.StatusBadGateway
		if gwErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		common.JSONError(w, status, "GATEWAY_ERROR", gwErr.Message, map[string]any{"gateway": gwErr.Gateway})
	case errors.As(err, &ruleErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RULE", ruleErr.Reason, nil)
	case errors.Is(err, escrow.ErrDuplicateBooking):
		common.JSONError(w, http.StatusConflict, "DUPLICATE_BOOKING", "booking already has an escrow", nil)
	case errors.Is(err, split.ErrInvalidAmount):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be positive", nil)
	default:
		common.WriteAppError(w, err, http.StatusInternalServerError, "INTERNAL")
	}
}
