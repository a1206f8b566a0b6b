package lease

import "context"

// ListFilter narrows lease listings.
type ListFilter struct {
	Status Status // empty matches all
	UnitID string // empty matches all
}

// Store persists leases and tenant invitations.
type Store interface {
	CreateLease(ctx context.Context, l *Lease) error
	GetLease(ctx context.Context, id string) (*Lease, error)
	UpdateLease(ctx context.Context, l *Lease) error
	DeleteLease(ctx context.Context, id string) error
	ListLeases(ctx context.Context, orgID string, f ListFilter) ([]*Lease, error)
	ListLeasesByTenant(ctx context.Context, tenantID string, status Status) ([]*Lease, error)

	CreateInvitation(ctx context.Context, inv *TenantInvitation) error
	GetInvitationByToken(ctx context.Context, token string) (*TenantInvitation, error)
	GetInvitationByLease(ctx context.Context, leaseID string) (*TenantInvitation, error)
	UpdateInvitation(ctx context.Context, inv *TenantInvitation) error
}
