package org

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalvisk/namura/internal/idgen"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/logging"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/validation"
)

// MemberGate is the subscription check consulted before adding a member.
// The count passed in excludes the implicit owner seat; the gate accounts
// for it.
type MemberGate interface {
	CanAddMember(ctx context.Context, orgID string, memberCount int) error
}

// Service implements organization and membership business logic.
type Service struct {
	store      Store
	gate       MemberGate
	dispatcher notify.Dispatcher
	siteURL    string
	invTTL     time.Duration
	now        func() time.Time
}

// NewService creates an org service.
func NewService(store Store, gate MemberGate, dispatcher notify.Dispatcher, siteURL string, invitationTTL time.Duration) *Service {
	return &Service{
		store:      store,
		gate:       gate,
		dispatcher: dispatcher,
		siteURL:    siteURL,
		invTTL:     invitationTTL,
		now:        time.Now,
	}
}

// CreateRequest carries the fields for creating an organization.
type CreateRequest struct {
	Name      string `json:"name" binding:"required"`
	Slug      string `json:"slug"`
	Address   string `json:"address"`
	RegNumber string `json:"registrationNumber"`
	VATNumber string `json:"vatNumber"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Create registers a new organization owned by the caller. The slug is
// derived from the name when absent and must be globally unique.
func (s *Service) Create(ctx context.Context, owner *identity.Principal, req CreateRequest) (*Organization, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		slug = Slugify(req.Name)
	}
	if !ValidSlug(slug) {
		return nil, ErrInvalidSlug
	}

	now := s.now()
	o := &Organization{
		ID:        idgen.WithPrefix("org_"),
		Name:      validation.SanitizeString(req.Name, 255),
		Slug:      slug,
		OwnerID:   owner.ID,
		Address:   validation.SanitizeString(req.Address, 255),
		RegNumber: validation.SanitizeString(req.RegNumber, 50),
		VATNumber: validation.SanitizeString(req.VATNumber, 50),
		Email:     validation.SanitizeString(req.Email, 255),
		Phone:     validation.SanitizeString(req.Phone, 50),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateRequest carries optional organization settings changes.
type UpdateRequest struct {
	Name      *string `json:"name"`
	Address   *string `json:"address"`
	RegNumber *string `json:"registrationNumber"`
	VATNumber *string `json:"vatNumber"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	LogoKey   *string `json:"logoKey"`
}

// Update edits organization settings. The slug never changes after creation.
func (s *Service) Update(ctx context.Context, a *Access, req UpdateRequest) (*Organization, error) {
	o := a.Org
	if req.Name != nil {
		o.Name = validation.SanitizeString(*req.Name, 255)
	}
	if req.Address != nil {
		o.Address = validation.SanitizeString(*req.Address, 255)
	}
	if req.RegNumber != nil {
		o.RegNumber = validation.SanitizeString(*req.RegNumber, 50)
	}
	if req.VATNumber != nil {
		o.VATNumber = validation.SanitizeString(*req.VATNumber, 50)
	}
	if req.Email != nil {
		o.Email = validation.SanitizeString(*req.Email, 255)
	}
	if req.Phone != nil {
		o.Phone = validation.SanitizeString(*req.Phone, 50)
	}
	if req.LogoKey != nil {
		o.LogoKey = *req.LogoKey
	}
	o.UpdatedAt = s.now()

	if err := s.store.Update(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Invite creates a pending member invitation and dispatches the email after
// the invitation is stored. Dispatch failure is reported but does not undo
// the invitation.
func (s *Service) Invite(ctx context.Context, a *Access, email string, role Role) (*Invitation, error) {
	if !ValidRole(role) {
		role = RoleMember
	}

	count, err := s.store.CountMemberships(ctx, a.Org.ID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanAddMember(ctx, a.Org.ID, count); err != nil {
		return nil, err
	}

	now := s.now()
	inv := &Invitation{
		ID:        idgen.WithPrefix("invt_"),
		OrgID:     a.Org.ID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Token:     idgen.Token(),
		Role:      role,
		Status:    InvitationPending,
		ExpiresAt: now.Add(s.invTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Send(ctx, notify.TemplateMemberInvitation, inv.Email, map[string]string{
		"org":  a.Org.Name,
		"link": fmt.Sprintf("%s/invitations/%s", s.siteURL, inv.Token),
	}); err != nil {
		logging.L(ctx).Warn("member invitation email failed", "org_id", a.Org.ID, "error", err)
		return inv, notify.ErrDispatchFailed
	}
	return inv, nil
}

// AcceptInvitation turns a pending invitation into an active membership for
// the accepting principal. Expiry is applied lazily here; status moves are
// monotonic and never reversed.
func (s *Service) AcceptInvitation(ctx context.Context, token string, principal *identity.Principal) (*Membership, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != InvitationPending {
		return nil, ErrInvitationClosed
	}

	now := s.now()
	if inv.IsExpired(now) {
		inv.Status = InvitationExpired
		inv.UpdatedAt = now
		_ = s.store.UpdateInvitation(ctx, inv)
		return nil, ErrInvitationExpired
	}
	if !strings.EqualFold(inv.Email, principal.Email) {
		return nil, ErrInvitationNotFound
	}

	m := &Membership{
		ID:          idgen.WithPrefix("mem_"),
		OrgID:       inv.OrgID,
		PrincipalID: principal.ID,
		Role:        inv.Role,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}

	inv.Status = InvitationAccepted
	inv.UpdatedAt = now
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return m, nil
}

// ChangeMemberRole reassigns a member's role. The owner has no membership
// row; any attempt to grant or touch the owner through this path fails.
func (s *Service) ChangeMemberRole(ctx context.Context, a *Access, membershipID string, role Role) (*Membership, error) {
	if !ValidRole(role) {
		return nil, ErrMemberNotFound
	}
	m, err := s.store.GetMembershipByID(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.OrgID != a.Org.ID {
		return nil, ErrMemberNotFound
	}
	if m.PrincipalID == a.Org.OwnerID {
		return nil, ErrOwnerImmutable
	}

	m.Role = role
	m.UpdatedAt = s.now()
	if err := s.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember deletes a membership. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, a *Access, membershipID string) error {
	m, err := s.store.GetMembershipByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.OrgID != a.Org.ID {
		return ErrMemberNotFound
	}
	if m.PrincipalID == a.Org.OwnerID {
		return ErrOwnerImmutable
	}
	return s.store.DeleteMembership(ctx, m.ID)
}

// CancelInvitation expires a pending invitation early.
func (s *Service) CancelInvitation(ctx context.Context, a *Access, invitationID string) error {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv.OrgID != a.Org.ID {
		return ErrInvitationNotFound
	}
	if inv.Status != InvitationPending {
		return ErrInvitationClosed
	}
	inv.Status = InvitationExpired
	inv.UpdatedAt = s.now()
	return s.store.UpdateInvitation(ctx, inv)
}
