package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Update is a compare-and-set status write.
type Update struct {
	ID   uuid.UUID
	From Status
	To   Status
	// FreelancerID is stored when non-empty.
	FreelancerID string
	// EarningID is stored when non-nil.
	EarningID *uuid.UUID
	At        time.Time
}

// Store persists jobs.
type Store interface {
	Insert(ctx context.Context, j Job) error
	Get(ctx context.Context, id uuid.UUID) (Job, error)
	// ListOpen returns open jobs ordered by date and start time.
	ListOpen(ctx context.Context) ([]Job, error)
	// ListByStore and ListByFreelancer return jobs newest first.
	ListByStore(ctx context.Context, storeID string) ([]Job, error)
	ListByFreelancer(ctx context.Context, freelancerID string) ([]Job, error)
	// Update applies upd and returns ErrStaleStatus when the stored status is
	// no longer upd.From.
	Update(ctx context.Context, upd Update) (Job, error)
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[uuid.UUID]Job{}}
}

func (m *MemoryStore) Insert(_ context.Context, j Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (m *MemoryStore) ListOpen(_ context.Context) ([]Job, error) {
	out := m.filter(func(j Job) bool { return j.Status == StatusOpen })
	sort.Slice(out, func(i, k int) bool {
		if out[i].Date != out[k].Date {
			return out[i].Date < out[k].Date
		}
		return out[i].StartTime < out[k].StartTime
	})
	return out, nil
}

func (m *MemoryStore) ListByStore(_ context.Context, storeID string) ([]Job, error) {
	return newestFirst(m.filter(func(j Job) bool { return j.StoreID == storeID })), nil
}

func (m *MemoryStore) ListByFreelancer(_ context.Context, freelancerID string) ([]Job, error) {
	return newestFirst(m.filter(func(j Job) bool { return j.FreelancerID == freelancerID })), nil
}

func (m *MemoryStore) Update(_ context.Context, upd Update) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[upd.ID]
	if !ok {
		return Job{}, ErrNotFound
	}
	if j.Status != upd.From {
		return j, ErrStaleStatus
	}
	j.Status = upd.To
	if upd.FreelancerID != "" {
		j.FreelancerID = upd.FreelancerID
	}
	if upd.EarningID != nil {
		id := *upd.EarningID
		j.EarningID = &id
	}
	j.UpdatedAt = upd.At
	m.jobs[upd.ID] = j
	return j, nil
}

func (m *MemoryStore) filter(keep func(Job) bool) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0)
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	return out
}

func newestFirst(items []Job) []Job {
	sort.Slice(items, func(i, k int) bool { return items[i].CreatedAt.After(items[k].CreatedAt) })
	return items
}
