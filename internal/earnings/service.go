package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/escrow"
	"github.com/noah-isme/salon-escrow/internal/events"
)

// Service keeps the earnings ledger in step with escrow events. Events may
// arrive more than once and in any order: a refund seen before its capture
// records the shares as reversed, and the late capture is then a no-op.
type Service struct {
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time
}

// Apply routes an escrow event to Record or Reverse. Other topics are ignored.
func (s *Service) Apply(ctx context.Context, ev events.Event) error {
	switch ev.Topic {
	case events.TopicEscrowCaptured, events.TopicEscrowRefunded:
	default:
		return nil
	}
	var rec escrow.Record
	if err := json.Unmarshal(ev.Payload, &rec); err != nil {
		return fmt.Errorf("earnings: decode %s payload: %w", ev.Topic, err)
	}
	if rec.BookingID == "" {
		rec.BookingID = ev.AggregateID
	}
	if ev.Topic == events.TopicEscrowCaptured {
		_, err := s.Record(ctx, rec)
		return err
	}
	_, err := s.Reverse(ctx, rec)
	return err
}

// Record creates pending earnings for each non-zero share of a captured
// escrow. Existing earnings for the booking are left untouched.
func (s *Service) Record(ctx context.Context, rec escrow.Record) ([]Earning, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	created, err := s.insertShares(ctx, rec, StatusPending)
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		s.Logger.Info().Str("booking_id", rec.BookingID).Int("count", len(created)).Msg("earnings_recorded")
	}
	return created, nil
}

// Reverse marks every pending earning of a refunded booking as reversed and
// returns how many changed. Earnings already paid out stay paid.
func (s *Service) Reverse(ctx context.Context, rec escrow.Record) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	inserted, err := s.insertShares(ctx, rec, StatusReversed)
	if err != nil {
		return 0, err
	}
	existing, err := s.Store.ListByBooking(ctx, rec.BookingID)
	if err != nil {
		return 0, err
	}
	changed := len(inserted)
	for _, e := range existing {
		switch e.Status {
		case StatusPending:
			if _, err := s.Store.UpdateStatus(ctx, e.ID, StatusPending, StatusReversed, s.now()); err != nil {
				if errors.Is(err, ErrStaleStatus) {
					continue
				}
				return changed, err
			}
			changed++
		case StatusPaid:
			s.Logger.Warn().Str("booking_id", rec.BookingID).Str("earning_id", e.ID.String()).
				Int64("amount", e.Amount).Msg("earnings_refund_after_payout")
		}
	}
	if changed > 0 {
		s.Logger.Info().Str("booking_id", rec.BookingID).Int("count", changed).Msg("earnings_reversed")
	}
	return changed, nil
}

// JobShare is a freelancer's pay for a completed marketplace job.
type JobShare struct {
	JobID        string
	FreelancerID string
	Amount       int64
	Currency     string
}

// JobReference is the booking reference under which job pay is recorded.
func JobReference(jobID string) string {
	return "job:" + jobID
}

// RecordJob records a pending freelancer earning for a completed job. It is
// idempotent: recording the same job again returns the existing earning.
func (s *Service) RecordJob(ctx context.Context, share JobShare) (Earning, error) {
	if err := s.ready(); err != nil {
		return Earning{}, err
	}
	if strings.TrimSpace(share.JobID) == "" || strings.TrimSpace(share.FreelancerID) == "" {
		return Earning{}, errors.New("earnings: job and freelancer ids are required")
	}
	if share.Amount <= 0 {
		return Earning{}, fmt.Errorf("earnings: job %s amount must be positive", share.JobID)
	}
	now := s.now()
	e := Earning{
		ID:        uuid.New(),
		BookingID: JobReference(share.JobID),
		PartyID:   share.FreelancerID,
		Role:      RoleFreelancer,
		Amount:    share.Amount,
		Currency:  share.Currency,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := s.Store.InsertIfAbsent(ctx, e)
	if err != nil {
		return Earning{}, err
	}
	if !inserted {
		return s.JobEarning(ctx, share.JobID)
	}
	s.Logger.Info().Str("job_id", share.JobID).Str("party_id", share.FreelancerID).Int64("amount", share.Amount).Msg("job_earning_recorded")
	return e, nil
}

// JobEarning returns the earning recorded for a job.
func (s *Service) JobEarning(ctx context.Context, jobID string) (Earning, error) {
	if err := s.ready(); err != nil {
		return Earning{}, err
	}
	items, err := s.Store.ListByBooking(ctx, JobReference(jobID))
	if err != nil {
		return Earning{}, err
	}
	for _, e := range items {
		if e.Role == RoleFreelancer {
			return e, nil
		}
	}
	return Earning{}, ErrNotFound
}

// TotalSince sums the party's non-reversed earnings created on or after since.
func (s *Service) TotalSince(ctx context.Context, partyID string, since time.Time) (int64, error) {
	items, _, err := s.List(ctx, partyID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range items {
		if e.Status != StatusReversed && !e.CreatedAt.Before(since) {
			total += e.Amount
		}
	}
	return total, nil
}

// List returns a party's earnings, newest first, with per-status totals.
func (s *Service) List(ctx context.Context, partyID string) ([]Earning, Summary, error) {
	if err := s.ready(); err != nil {
		return nil, Summary{}, err
	}
	partyID = strings.TrimSpace(partyID)
	if partyID == "" {
		return nil, Summary{}, errors.New("earnings: party id is required")
	}
	items, err := s.Store.ListByParty(ctx, partyID)
	if err != nil {
		return nil, Summary{}, err
	}
	return items, summarize(items), nil
}

// Payout marks a pending earning as paid. Paying an already paid earning
// returns it unchanged; a reversed earning yields ErrNotPayable.
func (s *Service) Payout(ctx context.Context, id uuid.UUID) (Earning, error) {
	if err := s.ready(); err != nil {
		return Earning{}, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		e, err := s.Store.Get(ctx, id)
		if err != nil {
			return Earning{}, err
		}
		switch e.Status {
		case StatusPaid:
			return e, nil
		case StatusReversed:
			return e, fmt.Errorf("%w: %s is %s", ErrNotPayable, id, e.Status)
		}
		paid, err := s.Store.UpdateStatus(ctx, id, StatusPending, StatusPaid, s.now())
		if errors.Is(err, ErrStaleStatus) {
			continue
		}
		if err != nil {
			return Earning{}, err
		}
		s.Logger.Info().Str("earning_id", id.String()).Str("party_id", paid.PartyID).Int64("amount", paid.Amount).Msg("earnings_paid_out")
		return paid, nil
	}
	return Earning{}, ErrStaleStatus
}

func (s *Service) insertShares(ctx context.Context, rec escrow.Record, status Status) ([]Earning, error) {
	if strings.TrimSpace(rec.BookingID) == "" {
		return nil, errors.New("earnings: booking id is required")
	}
	now := s.now()
	shares := []struct {
		role  Role
		party string
		amt   int64
	}{
		{RoleStore, rec.StoreID, rec.Split.Shares.Store},
		{RoleFreelancer, rec.FreelancerID, rec.Split.Shares.Freelancer},
		{RolePlatform, PlatformPartyID, rec.Split.Shares.Platform},
	}
	var created []Earning
	for _, sh := range shares {
		if sh.amt <= 0 || sh.party == "" {
			continue
		}
		e := Earning{
			ID:        uuid.New(),
			BookingID: rec.BookingID,
			PartyID:   sh.party,
			Role:      sh.role,
			Amount:    sh.amt,
			Currency:  rec.Currency,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		ok, err := s.Store.InsertIfAbsent(ctx, e)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, e)
		}
	}
	return created, nil
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("earnings service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
