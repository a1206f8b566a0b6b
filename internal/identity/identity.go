// Package identity supplies the authenticated-principal abstraction.
//
// The platform treats authentication mechanics as an external collaborator:
// a bearer token is exchanged for a Principal with a stable ID, an email,
// a display name, and a global account role. Everything finer-grained
// (per-organization roles) lives in the org package.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrNoToken           = errors.New("identity: token required")
	ErrInvalidToken      = errors.New("identity: invalid or expired token")
	ErrPrincipalExists   = errors.New("identity: email already registered")
	ErrPrincipalNotFound = errors.New("identity: principal not found")
)

// GlobalRole is the account type, distinct from any per-organization role.
type GlobalRole string

const (
	RoleCompanyOwner GlobalRole = "company_owner"
	RoleManager      GlobalRole = "manager"
	RoleTenant       GlobalRole = "tenant"
)

// Principal is an authenticated account.
type Principal struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	GlobalRole GlobalRole `json:"globalRole"`
	Superuser  bool       `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Token is an opaque bearer credential bound to a principal.
// Only its SHA-256 hash is stored.
type Token struct {
	Hash        string
	PrincipalID string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Revoked     bool
}

// Store persists principals and their tokens.
type Store interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)
	CreateToken(ctx context.Context, t *Token) error
	GetToken(ctx context.Context, hash string) (*Token, error)
}

// Provider resolves bearer tokens to principals.
type Provider struct {
	store Store
}

// NewProvider creates a token-based identity provider.
func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// Issue mints a bearer token for a principal. The raw token is shown once.
func (p *Provider) Issue(ctx context.Context, principalID string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := "nmt_" + hex.EncodeToString(b)

	t := &Token{
		Hash:        hashToken(raw),
		PrincipalID: principalID,
		CreatedAt:   time.Now(),
	}
	if err := p.store.CreateToken(ctx, t); err != nil {
		return "", err
	}
	return raw, nil
}

// Resolve validates a raw bearer token and returns its principal.
func (p *Provider) Resolve(ctx context.Context, raw string) (*Principal, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, ErrNoToken
	}
	if !strings.HasPrefix(raw, "nmt_") {
		return nil, ErrInvalidToken
	}

	t, err := p.store.GetToken(ctx, hashToken(raw))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if t.Revoked {
		return nil, ErrInvalidToken
	}
	if t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	principal, err := p.store.GetPrincipal(ctx, t.PrincipalID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return principal, nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
