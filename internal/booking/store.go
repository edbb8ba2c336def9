package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists slot bookings. At most one confirmed booking may exist per
// (salon, date, time).
type Store interface {
	// Insert stores a confirmed slot or returns ErrSlotTaken.
	Insert(ctx context.Context, s Slot) error
	Get(ctx context.Context, id uuid.UUID) (Slot, error)
	// ListConfirmed returns the salon's confirmed bookings on date, by time.
	ListConfirmed(ctx context.Context, salonID, date string) ([]Slot, error)
	// ListByCustomer returns a customer's bookings, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]Slot, error)
	// Cancel marks a confirmed booking cancelled. Cancelling a cancelled
	// booking returns it unchanged.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (Slot, error)
}

type slotKey struct {
	salon, date, time string
}

// MemoryStore keeps slot bookings in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]Slot
	taken map[slotKey]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[uuid.UUID]Slot{}, taken: map[slotKey]uuid.UUID{}}
}

func (m *MemoryStore) Insert(_ context.Context, s Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKey{s.SalonID, s.Date, s.Time}
	if _, ok := m.taken[key]; ok {
		return ErrSlotTaken
	}
	m.byID[s.ID] = s
	m.taken[key] = s.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return Slot{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListConfirmed(_ context.Context, salonID, date string) ([]Slot, error) {
	out := m.filter(func(s Slot) bool {
		return s.SalonID == salonID && s.Date == date && s.Status == StatusConfirmed
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *MemoryStore) ListByCustomer(_ context.Context, customerID string) ([]Slot, error) {
	out := m.filter(func(s Slot) bool { return s.CustomerID == customerID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Cancel(_ context.Context, id uuid.UUID, at time.Time) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return Slot{}, ErrNotFound
	}
	if s.Status == StatusCancelled {
		return s, nil
	}
	s.Status = StatusCancelled
	s.UpdatedAt = at
	m.byID[id] = s
	delete(m.taken, slotKey{s.SalonID, s.Date, s.Time})
	return s, nil
}

func (m *MemoryStore) filter(keep func(Slot) bool) []Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Slot, 0)
	for _, s := range m.byID {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
