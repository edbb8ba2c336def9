package escrow

import (
	"context"
	"sync"
	"time"
)

// StatusUpdate is a compare-and-set status write.
type StatusUpdate struct {
	BookingID string
	From      Status
	To        Status
	// PaymentRef is stored when non-empty and the record has none yet.
	PaymentRef string
	At         time.Time
}

// Store persists escrow records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	GetByBooking(ctx context.Context, bookingID string) (Record, error)
	GetByRef(ctx context.Context, gateway, ref string) (Record, error)
	UpdateStatus(ctx context.Context, upd StatusUpdate) (Record, error)
	// CapturedRevenue totals the store's escrows captured in [from, to) that
	// are still captured.
	CapturedRevenue(ctx context.Context, storeID string, from, to time.Time) (Revenue, error)
}

// Revenue totals captured escrows.
type Revenue struct {
	Count  int   `json:"count"`
	Amount int64 `json:"amount"`
}

// MemoryStore keeps records in process memory. It backs tests and local
// development without DATABASE_URL.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]Record)
	}
	if _, exists := m.records[rec.BookingID]; exists {
		return ErrDuplicateBooking
	}
	for _, existing := range m.records {
		if existing.Gateway == rec.Gateway && existing.GatewayRef == rec.GatewayRef {
			return ErrDuplicateBooking
		}
	}
	m.records[rec.BookingID] = rec
	return nil
}

func (m *MemoryStore) GetByBooking(_ context.Context, bookingID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[bookingID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) GetByRef(_ context.Context, gateway, ref string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.Gateway == gateway && rec.GatewayRef == ref {
			return rec, nil
		}
	}
	for _, rec := range m.records {
		if rec.MatchesRef(gateway, ref) {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *MemoryStore) UpdateStatus(_ context.Context, upd StatusUpdate) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[upd.BookingID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if rec.Status != upd.From {
		return Record{}, ErrStaleStatus
	}
	rec.Status = upd.To
	if upd.PaymentRef != "" && rec.PaymentRef == "" {
		rec.PaymentRef = upd.PaymentRef
	}
	rec.UpdatedAt = upd.At
	m.records[upd.BookingID] = rec
	return rec, nil
}

func (m *MemoryStore) CapturedRevenue(_ context.Context, storeID string, from, to time.Time) (Revenue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rev Revenue
	for _, rec := range m.records {
		if rec.StoreID != storeID || rec.Status != StatusCaptured {
			continue
		}
		if rec.UpdatedAt.Before(from) || !rec.UpdatedAt.Before(to) {
			continue
		}
		rev.Count++
		rev.Amount += rec.Amount
	}
	return rev, nil
}

// Len reports how many records are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
