package split

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// RuleStore persists the global default rule and per-service overrides.
type RuleStore interface {
	Default(ctx context.Context) (Rule, error)
	Override(ctx context.Context, serviceID string) (Rule, error)
	Overrides(ctx context.Context) (map[string]Rule, error)
	SaveDefault(ctx context.Context, rule Rule) error
	SaveOverride(ctx context.Context, serviceID string, rule Rule) error
	DeleteOverride(ctx context.Context, serviceID string) error
}

// MemoryRuleStore keeps rules in process memory.
type MemoryRuleStore struct {
	mu        sync.RWMutex
	def       *Rule
	overrides map[string]Rule
}

// NewMemoryRuleStore returns an empty store.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{overrides: make(map[string]Rule)}
}

func (m *MemoryRuleStore) Default(_ context.Context) (Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.def == nil {
		return Rule{}, ErrRuleNotFound
	}
	return *m.def, nil
}

func (m *MemoryRuleStore) Override(_ context.Context, serviceID string) (Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.overrides[strings.TrimSpace(serviceID)]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (m *MemoryRuleStore) Overrides(_ context.Context) (map[string]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Rule, len(m.overrides))
	for k, v := range m.overrides {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryRuleStore) SaveDefault(_ context.Context, rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.def = &rule
	return nil
}

func (m *MemoryRuleStore) SaveOverride(_ context.Context, serviceID string, rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overrides == nil {
		m.overrides = make(map[string]Rule)
	}
	m.overrides[strings.TrimSpace(serviceID)] = rule
	return nil
}

func (m *MemoryRuleStore) DeleteOverride(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimSpace(serviceID)
	if _, ok := m.overrides[key]; !ok {
		return ErrRuleNotFound
	}
	delete(m.overrides, key)
	return nil
}

// sortedServiceIDs returns override keys in a stable order for responses.
func sortedServiceIDs(overrides map[string]Rule) []string {
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
