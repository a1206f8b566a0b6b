package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory identity store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal
	byEmail    map[string]string
	tokens     map[string]*Token
}

// NewMemoryStore creates a new in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]*Principal),
		byEmail:    make(map[string]string),
		tokens:     make(map[string]*Token),
	}
}

func (m *MemoryStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(p.Email)
	if _, ok := m.byEmail[email]; ok {
		return ErrPrincipalExists
	}
	cp := *p
	m.principals[p.ID] = &cp
	m.byEmail[email] = p.ID
	return nil
}

func (m *MemoryStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *m.principals[id]
	return &cp, nil
}

func (m *MemoryStore) CreateToken(ctx context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.tokens[t.Hash] = &cp
	return nil
}

func (m *MemoryStore) GetToken(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[hash]
	if !ok {
		return nil, ErrInvalidToken
	}
	cp := *t
	return &cp, nil
}
