package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/earnings"
	"github.com/noah-isme/salon-escrow/internal/events"
	"github.com/noah-isme/salon-escrow/internal/obs"
)

const dateLayout = "2006-01-02"

// Earnings is the subset of *earnings.Service that pays for jobs.
type Earnings interface {
	RecordJob(ctx context.Context, share earnings.JobShare) (earnings.Earning, error)
	JobEarning(ctx context.Context, jobID string) (earnings.Earning, error)
	Payout(ctx context.Context, id uuid.UUID) (earnings.Earning, error)
}

// Emitter announces job changes.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// PostRequest describes a shift a store wants filled.
type PostRequest struct {
	StoreID     string `json:"-"`
	StoreName   string `json:"storeName" validate:"max=200"`
	Title       string `json:"title" validate:"required,max=200"`
	Location    string `json:"location" validate:"max=200"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"startTime" validate:"required,datetime=15:04"`
	Hours       int    `json:"hours" validate:"gt=0,lte=24"`
	Rate        int64  `json:"rate" validate:"gt=0,lte=100000000"`
	Currency    string `json:"currency" validate:"omitempty,len=3,alpha"`
	HomeService bool   `json:"homeService"`
}

// Service runs the job lifecycle: a store posts a job, a freelancer applies
// and is assigned, starts, completes (which records their earning) and
// finally requests payout of that earning.
type Service struct {
	Store           Store
	Earnings        Earnings
	Events          Emitter
	Logger          zerolog.Logger
	Now             func() time.Time
	DefaultCurrency string

	validate *validator.Validate
}

// NewService wires a job service.
func NewService(store Store, pay Earnings, emitter Emitter, currency string, logger zerolog.Logger) *Service {
	return &Service{
		Store:           store,
		Earnings:        pay,
		Events:          emitter,
		Logger:          logger,
		DefaultCurrency: strings.ToUpper(currency),
		validate:        common.NewValidator(),
	}
}

// PostJob publishes an open job for the store.
func (s *Service) PostJob(ctx context.Context, req PostRequest) (Job, error) {
	if err := s.ready(); err != nil {
		return Job{}, err
	}
	req.StoreID = strings.TrimSpace(req.StoreID)
	if req.StoreID == "" {
		return Job{}, ErrMissingParty
	}
	if err := common.ValidateStruct(s.validate, req, "invalid job"); err != nil {
		return Job{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.DefaultCurrency
	}
	now := s.now()
	j := Job{
		ID:          uuid.New(),
		StoreID:     req.StoreID,
		StoreName:   strings.TrimSpace(req.StoreName),
		Title:       strings.TrimSpace(req.Title),
		Location:    strings.TrimSpace(req.Location),
		Date:        req.Date,
		StartTime:   req.StartTime,
		Hours:       req.Hours,
		Rate:        req.Rate,
		Currency:    currency,
		HomeService: req.HomeService,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.Insert(ctx, j); err != nil {
		return Job{}, err
	}
	obs.IncJobTransition(string(StatusOpen), "posted")
	s.Logger.Info().Str("job_id", j.ID.String()).Str("store_id", j.StoreID).Int64("pay", j.Pay()).Msg("job_posted")
	s.emit(ctx, j)
	return j, nil
}

// ApplyToJob assigns an open job to the freelancer. Applying again to a job
// already assigned to the same freelancer is a no-op.
func (s *Service) ApplyToJob(ctx context.Context, id uuid.UUID, freelancerID string) (Job, error) {
	return s.advance(ctx, id, freelancerID, StatusAssigned, nil)
}

// StartJob moves an assigned job into progress.
func (s *Service) StartJob(ctx context.Context, id uuid.UUID, freelancerID string) (Job, error) {
	return s.advance(ctx, id, freelancerID, StatusInProgress, nil)
}

// CompleteJob finishes a job in progress and records the freelancer's
// pending earning of rate × hours. Completing a completed job records the
// earning if an earlier attempt failed after the status change.
func (s *Service) CompleteJob(ctx context.Context, id uuid.UUID, freelancerID string) (Job, error) {
	j, err := s.advance(ctx, id, freelancerID, StatusCompleted, nil)
	if err != nil {
		return j, err
	}
	if j.EarningID != nil {
		return j, nil
	}
	e, err := s.Earnings.RecordJob(ctx, earnings.JobShare{
		JobID:        j.ID.String(),
		FreelancerID: j.FreelancerID,
		Amount:       j.Pay(),
		Currency:     j.Currency,
	})
	if err != nil {
		s.Logger.Error().Err(err).Str("job_id", j.ID.String()).Msg("job_earning_record_failed")
		return j, err
	}
	return s.attachEarning(ctx, j, e.ID)
}

// RequestPayout pays out the completed job's earning and marks the job paid.
func (s *Service) RequestPayout(ctx context.Context, id uuid.UUID, freelancerID string) (Job, error) {
	if err := s.ready(); err != nil {
		return Job{}, err
	}
	j, err := s.owned(ctx, id, freelancerID)
	if err != nil {
		return j, err
	}
	switch j.Status {
	case StatusPaid:
		return j, nil
	case StatusCompleted:
	default:
		obs.IncJobTransition(string(StatusPaid), "invalid")
		return j, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusPaid)
	}
	e, err := s.Earnings.JobEarning(ctx, j.ID.String())
	if errors.Is(err, earnings.ErrNotFound) {
		// A completion whose earning write failed; record it now.
		e, err = s.Earnings.RecordJob(ctx, earnings.JobShare{
			JobID: j.ID.String(), FreelancerID: j.FreelancerID, Amount: j.Pay(), Currency: j.Currency,
		})
	}
	if err != nil {
		return j, err
	}
	if _, err := s.Earnings.Payout(ctx, e.ID); err != nil {
		return j, err
	}
	return s.advance(ctx, id, freelancerID, StatusPaid, &e.ID)
}

// OpenJobs lists jobs still looking for a freelancer.
func (s *Service) OpenJobs(ctx context.Context) ([]Job, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Store.ListOpen(ctx)
}

// MyJobs lists the freelancer's jobs, newest first.
func (s *Service) MyJobs(ctx context.Context, freelancerID string) ([]Job, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Store.ListByFreelancer(ctx, strings.TrimSpace(freelancerID))
}

// StoreJobs lists the jobs a store posted, newest first.
func (s *Service) StoreJobs(ctx context.Context, storeID string) ([]Job, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Store.ListByStore(ctx, strings.TrimSpace(storeID))
}

// advance moves the job one step to `to` on behalf of freelancerID. A job
// already at `to` for the same freelancer is returned unchanged.
func (s *Service) advance(ctx context.Context, id uuid.UUID, freelancerID string, to Status, earningID *uuid.UUID) (Job, error) {
	if err := s.ready(); err != nil {
		return Job{}, err
	}
	freelancerID = strings.TrimSpace(freelancerID)
	if freelancerID == "" {
		return Job{}, ErrMissingParty
	}
	for attempt := 0; attempt < 2; attempt++ {
		j, err := s.Store.Get(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if j.Status != StatusOpen && j.FreelancerID != freelancerID {
			if to == StatusAssigned {
				obs.IncJobTransition(string(to), "invalid")
				return j, fmt.Errorf("%w: job already assigned", ErrInvalidTransition)
			}
			obs.IncJobTransition(string(to), "forbidden")
			return j, ErrNotAssignee
		}
		if j.Status == to {
			obs.IncJobTransition(string(to), "noop")
			return j, nil
		}
		if !CanTransition(j.Status, to) {
			obs.IncJobTransition(string(to), "invalid")
			return j, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
		}
		upd := Update{ID: id, From: j.Status, To: to, EarningID: earningID, At: s.now()}
		if to == StatusAssigned {
			upd.FreelancerID = freelancerID
		}
		next, err := s.Store.Update(ctx, upd)
		if errors.Is(err, ErrStaleStatus) {
			continue
		}
		if err != nil {
			obs.IncJobTransition(string(to), "error")
			return j, err
		}
		obs.IncJobTransition(string(to), "applied")
		s.Logger.Info().Str("job_id", id.String()).Str("freelancer_id", freelancerID).
			Str("from", string(j.Status)).Str("to", string(to)).Msg("job_transition")
		s.emit(ctx, next)
		return next, nil
	}
	return Job{}, ErrStaleStatus
}

func (s *Service) attachEarning(ctx context.Context, j Job, earningID uuid.UUID) (Job, error) {
	next, err := s.Store.Update(ctx, Update{ID: j.ID, From: StatusCompleted, To: StatusCompleted, EarningID: &earningID, At: s.now()})
	if errors.Is(err, ErrStaleStatus) {
		// Paid in between; the payout path attached the earning.
		return next, nil
	}
	return next, err
}

func (s *Service) owned(ctx context.Context, id uuid.UUID, freelancerID string) (Job, error) {
	freelancerID = strings.TrimSpace(freelancerID)
	if freelancerID == "" {
		return Job{}, ErrMissingParty
	}
	j, err := s.Store.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if j.FreelancerID != freelancerID {
		return j, ErrNotAssignee
	}
	return j, nil
}

func (s *Service) emit(ctx context.Context, j Job) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, events.TopicJobUpdated, j.ID.String(), j); err != nil {
		s.Logger.Error().Err(err).Str("job_id", j.ID.String()).Msg("job_event_emit_failed")
	}
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Earnings == nil {
		return errors.New("jobs service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
