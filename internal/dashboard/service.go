// Package dashboard computes the per-party figures shown on the store and
// freelancer home screens.
package dashboard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/salon-escrow/internal/escrow"
)

// EarningsSource totals a party's earnings.
type EarningsSource interface {
	TotalSince(ctx context.Context, partyID string, since time.Time) (int64, error)
}

// RevenueSource totals a store's captured payments.
type RevenueSource interface {
	StoreRevenue(ctx context.Context, storeID string, from, to time.Time) (escrow.Revenue, error)
}

// BookingSource counts a salon's confirmed slot bookings.
type BookingSource interface {
	CountToday(ctx context.Context, salonID string) (int, error)
}

// Today is one party's figures for the current business day. A store sees
// revenue and bookings; every party sees earnings.
type Today struct {
	PartyID        string `json:"partyId"`
	Date           string `json:"date"`
	TodaysEarnings int64  `json:"todaysEarnings"`
	TodaysRevenue  int64  `json:"todaysRevenue"`
	PaymentsToday  int    `json:"paymentsToday"`
	BookingsToday  int    `json:"bookingsToday"`
}

// Service aggregates today's figures from the earnings ledger, the escrow
// ledger and the slot booking store.
type Service struct {
	Earnings EarningsSource
	Revenue  RevenueSource
	Bookings BookingSource
	Logger   zerolog.Logger
	Now      func() time.Time
	// Location sets the business day boundaries. Nil means UTC.
	Location *time.Location
}

// Today returns the party's figures since local midnight.
func (s *Service) Today(ctx context.Context, partyID string) (Today, error) {
	if s == nil || s.Earnings == nil || s.Revenue == nil || s.Bookings == nil {
		return Today{}, errors.New("dashboard service not configured")
	}
	partyID = strings.TrimSpace(partyID)
	if partyID == "" {
		return Today{}, errors.New("dashboard: party id is required")
	}
	start, end := s.day()
	out := Today{PartyID: partyID, Date: start.Format("2006-01-02")}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.Earnings.TotalSince(gctx, partyID, start.UTC())
		out.TodaysEarnings = total
		return err
	})
	g.Go(func() error {
		rev, err := s.Revenue.StoreRevenue(gctx, partyID, start.UTC(), end.UTC())
		out.TodaysRevenue, out.PaymentsToday = rev.Amount, rev.Count
		return err
	})
	g.Go(func() error {
		n, err := s.Bookings.CountToday(gctx, partyID)
		out.BookingsToday = n
		return err
	})
	if err := g.Wait(); err != nil {
		s.Logger.Error().Err(err).Str("party_id", partyID).Msg("dashboard_aggregate_failed")
		return Today{}, err
	}
	return out, nil
}

func (s *Service) day() (time.Time, time.Time) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
