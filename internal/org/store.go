package org

import "context"

// Store persists organizations, memberships and invitations.
type Store interface {
	Create(ctx context.Context, o *Organization) error
	Get(ctx context.Context, id string) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	ListByPrincipal(ctx context.Context, principalID string) ([]*Organization, error)

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, orgID, principalID string) (*Membership, error)
	GetMembershipByID(ctx context.Context, id string) (*Membership, error)
	UpdateMembership(ctx context.Context, m *Membership) error
	DeleteMembership(ctx context.Context, id string) error
	ListMemberships(ctx context.Context, orgID string) ([]*Membership, error)
	CountMemberships(ctx context.Context, orgID string) (int, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	UpdateInvitation(ctx context.Context, inv *Invitation) error
	ListInvitations(ctx context.Context, orgID string) ([]*Invitation, error)
}
