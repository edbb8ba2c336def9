package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/booking"
	"github.com/noah-isme/salon-escrow/internal/common"
	"github.com/noah-isme/salon-escrow/internal/events"
)

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

func (r *recordingEmitter) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

var fixedNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newService() (*booking.Service, *recordingEmitter) {
	emitter := &recordingEmitter{}
	svc := booking.NewService(booking.NewMemoryStore(), emitter, zerolog.Nop())
	svc.Now = func() time.Time { return fixedNow }
	return svc, emitter
}

func bookReq(customer, date, at string) booking.BookRequest {
	return booking.BookRequest{
		SalonID:    "s-1",
		SalonName:  "Elite Men's Grooming",
		CustomerID: customer,
		Date:       date,
		Time:       at,
		Services:   []string{"haircut"},
	}
}

func TestBookSlotHoldsSlotUntilCancelled(t *testing.T) {
	svc, emitter := newService()
	ctx := context.Background()

	first, err := svc.BookSlot(ctx, bookReq("c-1", "2026-03-12", "9:30 AM"))
	require.NoError(t, err)
	require.Equal(t, "09:30", first.Time)
	require.Equal(t, booking.StatusConfirmed, first.Status)
	require.Equal(t, booking.LocationSalon, first.Location)

	_, err = svc.BookSlot(ctx, bookReq("c-2", "2026-03-12", "09:30"))
	require.ErrorIs(t, err, booking.ErrSlotTaken)

	other, err := svc.BookSlot(ctx, bookReq("c-2", "2026-03-12", "2:00 PM"))
	require.NoError(t, err)

	times, err := svc.ListBookedSlots(ctx, "s-1", "2026-03-12")
	require.NoError(t, err)
	require.Equal(t, []string{"09:30", "14:00"}, times)

	cancelled, err := svc.CancelSlot(ctx, first.ID, "c-1")
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, cancelled.Status)

	times, err = svc.ListBookedSlots(ctx, "s-1", "2026-03-12")
	require.NoError(t, err)
	require.Equal(t, []string{"14:00"}, times)

	rebooked, err := svc.BookSlot(ctx, bookReq("c-2", "2026-03-12", "9:30AM"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, rebooked.ID)

	mine, err := svc.MyBookings(ctx, "c-2")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.ElementsMatch(t, []string{other.ID.String(), rebooked.ID.String()}, []string{mine[0].ID.String(), mine[1].ID.String()})

	require.Equal(t, []string{
		events.TopicSlotBooked, events.TopicSlotBooked, events.TopicSlotCancelled, events.TopicSlotBooked,
	}, emitter.Topics())
}

func TestBookSlotConcurrentRequestsConfirmOne(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.BookSlot(ctx, bookReq("c-1", "2026-03-12", "11:00")); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
}

func TestBookSlotValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	cases := []struct {
		name  string
		req   booking.BookRequest
		field string
	}{
		{"bad date", bookReq("c-1", "12/03/2026", "10:00"), "date"},
		{"bad time", bookReq("c-1", "2026-03-12", "quarter past"), "time"},
		{"past date", bookReq("c-1", "2026-03-09", "10:00"), "date"},
		{"bad location", func() booking.BookRequest {
			r := bookReq("c-1", "2026-03-12", "10:00")
			r.Location = "moon"
			return r
		}(), "location"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.BookSlot(ctx, tc.req)
			appErr, ok := common.AsAppError(err)
			require.True(t, ok, "got %v", err)
			require.Equal(t, "VALIDATION_ERROR", appErr.Code)
			require.Contains(t, appErr.Details, tc.field)
		})
	}

	_, err := svc.BookSlot(ctx, bookReq("", "2026-03-12", "10:00"))
	require.ErrorIs(t, err, booking.ErrMissingParty)

	today, err := svc.BookSlot(ctx, bookReq("c-1", "2026-03-10", "18:00"))
	require.NoError(t, err)
	require.Equal(t, "2026-03-10", today.Date)
}

func TestCancelSlotChecksOwner(t *testing.T) {
	svc, emitter := newService()
	ctx := context.Background()

	slot, err := svc.BookSlot(ctx, bookReq("c-1", "2026-03-12", "10:00"))
	require.NoError(t, err)

	_, err = svc.CancelSlot(ctx, slot.ID, "c-2")
	require.ErrorIs(t, err, booking.ErrNotOwner)

	_, err = svc.CancelSlot(ctx, slot.ID, "")
	require.NoError(t, err)

	again, err := svc.CancelSlot(ctx, slot.ID, "c-1")
	require.NoError(t, err)
	require.Equal(t, booking.StatusCancelled, again.Status)
	require.Equal(t, []string{events.TopicSlotBooked, events.TopicSlotCancelled}, emitter.Topics())
}

func TestCountTodayUsesLocation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.BookSlot(ctx, bookReq("c-1", "2026-03-10", "17:00"))
	require.NoError(t, err)
	_, err = svc.BookSlot(ctx, bookReq("c-1", "2026-03-11", "09:00"))
	require.NoError(t, err)

	n, err := svc.CountToday(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	svc.Now = func() time.Time { return time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC) }
	svc.Location = time.FixedZone("IST", 5*3600+1800)
	n, err = svc.CountToday(ctx, "s-1")
	require.NoError(t, err)
	require.Equal(t, 1, n, "20:00 UTC is already the 11th in IST")
}

func TestNormalizeTime(t *testing.T) {
	for in, want := range map[string]string{"9:30 AM": "09:30", "12:00 pm": "12:00", "12:15 AM": "00:15", "17:45": "17:45", " 7:05PM ": "19:05"} {
		got, err := booking.NormalizeTime(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := booking.NormalizeTime("25:00")
	require.ErrorIs(t, err, booking.ErrInvalidSlot)
}
