package org

import (
	"context"

	"github.com/kalvisk/namura/internal/identity"
)

// Access is the resolved (principal, organization) pair every core operation
// receives explicitly. No ambient request-global state is involved.
type Access struct {
	Org       *Organization
	Principal *identity.Principal // nil for anonymous requests
	Role      Role                // "" when owner or not a member
	IsOwner   bool
}

// IsAdmin reports owner-or-ADMIN. The owner implicitly satisfies every role
// check.
func (a *Access) IsAdmin() bool {
	return a.IsOwner || a.Role == RoleAdmin
}

// IsManager reports owner-or-ADMIN-or-MANAGER.
func (a *Access) IsManager() bool {
	return a.IsAdmin() || a.Role == RoleManager
}

// CanManageOrg gates settings, member management and tax management:
// owner or ADMIN only.
func (a *Access) CanManageOrg() bool {
	return a.Principal != nil && a.IsAdmin()
}

// CanOperate gates day-to-day operations (issues, leases, invoices, meters):
// owner, ADMIN or MANAGER.
func (a *Access) CanOperate() bool {
	return a.Principal != nil && a.IsManager()
}

// IsTenantOf reports whether the caller is the bound tenant of the given
// lease-holder principal ID. Tenant principals act only on resources
// reachable through their own lease.
func (a *Access) IsTenantOf(leaseTenantID string) bool {
	return a.Principal != nil && leaseTenantID != "" && a.Principal.ID == leaseTenantID
}

// Resolver establishes the organization context for a request.
type Resolver struct {
	store Store
}

// NewResolver creates a tenant resolver over the org store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks up the organization by slug and derives the principal's role.
//
// Fail-closed: an authenticated principal that is neither the owner nor a
// member (and not a superuser) gets ErrNotMember, which callers surface
// identically to ErrOrgNotFound so organization existence does not leak.
// Anonymous requests resolve the organization with no role flags; handlers
// that need identity reject independently.
func (r *Resolver) Resolve(ctx context.Context, slug string, principal *identity.Principal) (*Access, error) {
	o, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	a := &Access{Org: o, Principal: principal}
	if principal == nil {
		return a, nil
	}

	if o.OwnerID == principal.ID {
		a.IsOwner = true
		return a, nil
	}

	m, err := r.store.GetMembership(ctx, o.ID, principal.ID)
	if err == nil && m.Active {
		a.Role = m.Role
		return a, nil
	}
	if principal.Superuser {
		return a, nil
	}
	return nil, ErrNotMember
}
