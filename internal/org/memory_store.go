package org

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory org store for development mode and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	orgs        map[string]*Organization
	bySlug      map[string]string
	memberships map[string]*Membership
	invitations map[string]*Invitation
	byToken     map[string]string
}

// NewMemoryStore creates a new in-memory org store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:        make(map[string]*Organization),
		bySlug:      make(map[string]string),
		memberships: make(map[string]*Membership),
		invitations: make(map[string]*Invitation),
		byToken:     make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, o *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bySlug[o.Slug]; ok {
		return ErrSlugTaken
	}
	cp := *o
	m.orgs[o.ID] = &cp
	m.bySlug[o.Slug] = o.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrOrgNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySlug[slug]
	if !ok {
		return nil, ErrOrgNotFound
	}
	cp := *m.orgs[id]
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, o *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[o.ID]; !ok {
		return ErrOrgNotFound
	}
	cp := *o
	m.orgs[o.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByPrincipal(ctx context.Context, principalID string) ([]*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Organization
	for _, o := range m.orgs {
		if o.OwnerID == principalID {
			cp := *o
			result = append(result, &cp)
			continue
		}
		for _, mem := range m.memberships {
			if mem.OrgID == o.ID && mem.PrincipalID == principalID && mem.Active {
				cp := *o
				result = append(result, &cp)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) CreateMembership(ctx context.Context, mem *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.memberships {
		if existing.OrgID == mem.OrgID && existing.PrincipalID == mem.PrincipalID {
			return ErrMemberExists
		}
	}
	cp := *mem
	m.memberships[mem.ID] = &cp
	return nil
}

func (m *MemoryStore) GetMembership(ctx context.Context, orgID, principalID string) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mem := range m.memberships {
		if mem.OrgID == orgID && mem.PrincipalID == principalID {
			cp := *mem
			return &cp, nil
		}
	}
	return nil, ErrMemberNotFound
}

func (m *MemoryStore) GetMembershipByID(ctx context.Context, id string) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mem, ok := m.memberships[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *MemoryStore) UpdateMembership(ctx context.Context, mem *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memberships[mem.ID]; !ok {
		return ErrMemberNotFound
	}
	cp := *mem
	m.memberships[mem.ID] = &cp
	return nil
}

func (m *MemoryStore) DeleteMembership(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memberships[id]; !ok {
		return ErrMemberNotFound
	}
	delete(m.memberships, id)
	return nil
}

func (m *MemoryStore) ListMemberships(ctx context.Context, orgID string) ([]*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Membership
	for _, mem := range m.memberships {
		if mem.OrgID == orgID {
			cp := *mem
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryStore) CountMemberships(ctx context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, mem := range m.memberships {
		if mem.OrgID == orgID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *inv
	m.invitations[inv.ID] = &cp
	m.byToken[inv.Token] = inv.ID
	return nil
}

func (m *MemoryStore) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	cp := *m.invitations[id]
	return &cp, nil
}

func (m *MemoryStore) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invitations[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryStore) UpdateInvitation(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invitations[inv.ID]; !ok {
		return ErrInvitationNotFound
	}
	cp := *inv
	m.invitations[inv.ID] = &cp
	return nil
}

func (m *MemoryStore) ListInvitations(ctx context.Context, orgID string) ([]*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Invitation
	for _, inv := range m.invitations {
		if inv.OrgID == orgID {
			cp := *inv
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
