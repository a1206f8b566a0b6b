package subscription

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory subscription store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byOrg map[string]*Subscription
	byID  map[string]*Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byOrg: make(map[string]*Subscription),
		byID:  make(map[string]*Subscription),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byOrg[s.OrgID] = &cp
	m.byID[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByOrg(ctx context.Context, orgID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byOrg[orgID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, s *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[s.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	cp := *s
	m.byOrg[s.OrgID] = &cp
	m.byID[s.ID] = &cp
	return nil
}
