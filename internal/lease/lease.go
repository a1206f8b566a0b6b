// Package lease provides rental agreements, their tenant invitations, and
// the tenant-facing portal built on top of active leases.
//
// A lease is created as a draft against an available unit, which reserves
// the unit. The invited tenant accepts by token, activating the lease and
// renting the unit. Termination or draft deletion releases the unit.
package lease

import (
	"errors"
	"time"

	"github.com/kalvisk/namura/internal/money"
)

// Errors
var (
	ErrLeaseNotFound      = errors.New("lease: not found")
	ErrUnitUnavailable    = errors.New("lease: unit is not available")
	ErrNotDraft           = errors.New("lease: only draft leases allow this operation")
	ErrNotActive          = errors.New("lease: lease is not active")
	ErrAlreadyAccepted    = errors.New("lease: lease already has a tenant")
	ErrInvitationNotFound = errors.New("lease: invitation not found")
	ErrInvitationExpired  = errors.New("lease: invitation has expired")
	ErrInvitationClosed   = errors.New("lease: invitation is no longer pending")
)

// Status is a lease's lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusExpired    Status = "expired"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusTerminated || s == StatusExpired
}

// Lease is a rental agreement for one unit. TenantID stays empty while the
// lease is a draft awaiting invitation acceptance.
type Lease struct {
	ID              string      `json:"id"`
	OrgID           string      `json:"orgId"`
	UnitID          string      `json:"unitId"`
	TenantID        string      `json:"tenantId,omitempty"`
	StartDate       time.Time   `json:"startDate"`
	EndDate         time.Time   `json:"endDate"`
	RentAmount      money.Cents `json:"rentAmount"`
	SecurityDeposit money.Cents `json:"securityDeposit"`
	Status          Status      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// InvitationStatus tracks a tenant invitation. Transitions are monotonic:
// pending moves to accepted or expired and never back.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// TenantInvitation binds a draft lease to the email address that may
// accept it. One invitation per lease.
type TenantInvitation struct {
	ID        string           `json:"id"`
	OrgID     string           `json:"orgId"`
	LeaseID   string           `json:"leaseId"`
	Email     string           `json:"email"`
	Token     string           `json:"-"`
	Status    InvitationStatus `json:"status"`
	ExpiresAt time.Time        `json:"expiresAt"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// IsExpired reports whether the invitation's deadline has passed.
func (i *TenantInvitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}
