package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/earnings"
)

// Handler exposes job endpoints. Store and freelancer routes expect their
// storeId or freelancerId URL parameter to be authorised upstream.
type Handler struct {
	Svc *Service
}

// Open lists open jobs.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	items, err := h.Svc.OpenJobs(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Post publishes a job for the storeId URL parameter.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload PostRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.StoreID = chi.URLParam(r, "storeId")
	j, err := h.Svc.PostJob(r.Context(), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": j})
}

// StoreJobs lists the jobs of the storeId URL parameter.
func (h *Handler) StoreJobs(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	items, err := h.Svc.StoreJobs(r.Context(), chi.URLParam(r, "storeId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Mine lists the jobs of the freelancerId URL parameter.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	items, err := h.Svc.MyJobs(r.Context(), chi.URLParam(r, "freelancerId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

type step func(s *Service, ctx context.Context, id uuid.UUID, freelancerID string) (Job, error)

// act runs a lifecycle step for the jobId and freelancerId URL parameters.
func (h *Handler) act(run step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready(w) {
			return
		}
		id, err := uuid.Parse(chi.URLParam(r, "jobId"))
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid job id", nil)
			return
		}
		j, err := run(h.Svc, r.Context(), id, chi.URLParam(r, "freelancerId"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": j})
	}
}

// FreelancerRoutes mounts the freelancer-scoped routes on r.
func (h *Handler) FreelancerRoutes(r chi.Router) {
	r.Get("/", h.Mine)
	r.Post("/{jobId}/apply", h.act((*Service).ApplyToJob))
	r.Post("/{jobId}/start", h.act((*Service).StartJob))
	r.Post("/{jobId}/complete", h.act((*Service).CompleteJob))
	r.Post("/{jobId}/payout", h.act((*Service).RequestPayout))
}

// StoreRoutes mounts the store-scoped routes on r.
func (h *Handler) StoreRoutes(r chi.Router) {
	r.Get("/", h.StoreJobs)
	r.Post("/", h.Post)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "jobs service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "job not found", nil)
	case errors.Is(err, ErrNotAssignee):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "job is assigned to another freelancer", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, ErrStaleStatus):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "job changed concurrently, retry", nil)
	case errors.Is(err, ErrMissingParty):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, earnings.ErrNotPayable):
		common.JSONError(w, http.StatusConflict, "NOT_PAYABLE", "job earning was reversed", nil)
	default:
		common.WriteAppError(w, err, http.StatusInternalServerError, "INTERNAL")
	}
}
