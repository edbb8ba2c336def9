package split

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/salon-escrow/internal/common"
)

// Handler exposes split rule administration endpoints.
type Handler struct {
	Svc *Service
}

// Routes mounts the handler under an admin router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/split", h.Get)
	r.Put("/split/default", h.PutDefault)
	r.Put("/split/services/{serviceId}", h.PutOverride)
	r.Delete("/split/services/{serviceId}", h.DeleteOverride)
}

// Get returns the default rule and all per-service overrides.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "split service not configured", nil)
		return
	}
	snap, err := h.Svc.Rules(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load split rules", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": snap})
}

// PutDefault replaces the default rule.
func (h *Handler) PutDefault(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "split service not configured", nil)
		return
	}
	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.SetDefault(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// PutOverride stores a per-service rule.
func (h *Handler) PutOverride(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "split service not configured", nil)
		return
	}
	serviceID := chi.URLParam(r, "serviceId")
	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Svc.SetOverride(r.Context(), serviceID, rule); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Override{ServiceID: serviceID, Rule: rule}})
}

// DeleteOverride removes a per-service rule.
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "split service not configured", nil)
		return
	}
	if err := h.Svc.DeleteOverride(r.Context(), chi.URLParam(r, "serviceId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	var ruleErr *InvalidRuleError
	switch {
	case errors.As(err, &ruleErr):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_RULE", ruleErr.Reason, map[string]any{
			"storePct":      ruleErr.Rule.StorePct,
			"freelancerPct": ruleErr.Rule.FreelancerPct,
			"platformPct":   ruleErr.Rule.PlatformPct,
		})
	case errors.Is(err, ErrInvalidServiceID):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "serviceId is required", nil)
	case errors.Is(err, ErrRuleNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "split override not found", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save split rule", nil)
	}
}
