package earnings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists earnings. (BookingID, Role) is unique.
type Store interface {
	// InsertIfAbsent stores e unless an earning for its booking and role
	// exists, reporting whether it was inserted.
	InsertIfAbsent(ctx context.Context, e Earning) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (Earning, error)
	ListByParty(ctx context.Context, partyID string) ([]Earning, error)
	ListByBooking(ctx context.Context, bookingID string) ([]Earning, error)
	// UpdateStatus moves an earning from one status to another and returns
	// ErrStaleStatus when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (Earning, error)
}

type bookingRole struct {
	booking string
	role    Role
}

// MemoryStore keeps earnings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Earning
	byPair map[bookingRole]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[uuid.UUID]Earning{}, byPair: map[bookingRole]uuid.UUID{}}
}

func (m *MemoryStore) InsertIfAbsent(_ context.Context, e Earning) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bookingRole{e.BookingID, e.Role}
	if _, ok := m.byPair[key]; ok {
		return false, nil
	}
	m.byID[e.ID] = e
	m.byPair[key] = e.ID
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Earning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok {
		return Earning{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) ListByParty(_ context.Context, partyID string) ([]Earning, error) {
	return m.filter(func(e Earning) bool { return e.PartyID == partyID }), nil
}

func (m *MemoryStore) ListByBooking(_ context.Context, bookingID string) ([]Earning, error) {
	return m.filter(func(e Earning) bool { return e.BookingID == bookingID }), nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, at time.Time) (Earning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return Earning{}, ErrNotFound
	}
	if e.Status != from {
		return e, ErrStaleStatus
	}
	e.Status = to
	e.UpdatedAt = at
	m.byID[id] = e
	return e, nil
}

// filter returns matches newest first.
func (m *MemoryStore) filter(keep func(Earning) bool) []Earning {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Earning, 0)
	for _, e := range m.byID {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Role < out[j].Role
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
