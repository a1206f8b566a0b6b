// Package org provides multi-tenant organizations, memberships, and the
// access rules gating every organization-scoped operation.
//
// An Organization is the isolation boundary for all domain data. A request
// resolves its organization from the URL slug, derives the caller's role,
// and every mutating handler consults the access policy before reading or
// writing anything tenant-scoped.
package org

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Errors
var (
	ErrOrgNotFound        = errors.New("org: not found")
	ErrSlugTaken          = errors.New("org: slug already taken")
	ErrInvalidSlug        = errors.New("org: invalid slug")
	ErrNotMember          = errors.New("org: principal is not a member")
	ErrMemberExists       = errors.New("org: principal is already a member")
	ErrMemberNotFound     = errors.New("org: member not found")
	ErrOwnerImmutable     = errors.New("org: the owner's role cannot be changed or removed")
	ErrInvitationNotFound = errors.New("org: invitation not found")
	ErrInvitationExpired  = errors.New("org: invitation has expired")
	ErrInvitationClosed   = errors.New("org: invitation is no longer pending")
)

// Role is a principal's permission level within one organization.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleMember     Role = "MEMBER"
	RoleTechnician Role = "TECHNICIAN"
)

// ValidRole reports whether r is a recognised membership role.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember, RoleTechnician:
		return true
	}
	return false
}

// Organization is a company using the platform.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"ownerId"`
	Address   string    `json:"address,omitempty"`
	RegNumber string    `json:"registrationNumber,omitempty"`
	VATNumber string    `json:"vatNumber,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	LogoKey   string    `json:"logoKey,omitempty"` // asset-store key, storage itself is external
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Membership links a principal to an organization with a role.
// The owner is implicitly a super-member and has no Membership row.
type Membership struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId"`
	PrincipalID string    `json:"principalId"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InvitationStatus tracks the monotonic pending -> accepted|expired flow.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is a pending offer to join an organization as a member.
type Invitation struct {
	ID        string           `json:"id"`
	OrgID     string           `json:"orgId"`
	Email     string           `json:"email"`
	Token     string           `json:"-"`
	Role      Role             `json:"role"`
	Status    InvitationStatus `json:"status"`
	ExpiresAt time.Time        `json:"expiresAt"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// IsExpired reports whether the invitation's deadline has passed.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

var (
	validSlug    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)
	slugStrip    = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// ValidSlug reports whether s is an acceptable organization slug.
func ValidSlug(s string) bool {
	return validSlug.MatchString(s)
}

// Slugify derives a URL slug from an organization name.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
