package lease

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	leases      map[string]*Lease
	invitations map[string]*TenantInvitation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases:      make(map[string]*Lease),
		invitations: make(map[string]*TenantInvitation),
	}
}

func (s *MemoryStore) CreateLease(_ context.Context, l *Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.leases[l.ID] = &cp
	return nil
}

func (s *MemoryStore) GetLease(_ context.Context, id string) (*Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leases[id]
	if !ok {
		return nil, ErrLeaseNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) UpdateLease(_ context.Context, l *Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leases[l.ID]; !ok {
		return ErrLeaseNotFound
	}
	cp := *l
	s.leases[l.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteLease(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leases[id]; !ok {
		return ErrLeaseNotFound
	}
	delete(s.leases, id)
	return nil
}

func (s *MemoryStore) ListLeases(_ context.Context, orgID string, f ListFilter) ([]*Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Lease
	for _, l := range s.leases {
		if l.OrgID != orgID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.UnitID != "" && l.UnitID != f.UnitID {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListLeasesByTenant(_ context.Context, tenantID string, status Status) ([]*Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Lease
	for _, l := range s.leases {
		if l.TenantID != tenantID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateInvitation(_ context.Context, inv *TenantInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invitations[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInvitationByToken(_ context.Context, token string) (*TenantInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvitationNotFound
}

func (s *MemoryStore) GetInvitationByLease(_ context.Context, leaseID string) (*TenantInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.LeaseID == leaseID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvitationNotFound
}

func (s *MemoryStore) UpdateInvitation(_ context.Context, inv *TenantInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.ID]; !ok {
		return ErrInvitationNotFound
	}
	cp := *inv
	s.invitations[inv.ID] = &cp
	return nil
}
