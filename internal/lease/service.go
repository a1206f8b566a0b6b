package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/idgen"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/logging"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/property"
	"github.com/kalvisk/namura/internal/validation"
)

// UnitService is the slice of the property service the lease lifecycle
// drives: reading a unit and moving it between occupancy states.
type UnitService interface {
	GetUnit(ctx context.Context, orgID, id string) (*property.Unit, error)
	SetUnitStatus(ctx context.Context, orgID, id string, status property.UnitStatus) (*property.Unit, error)
}

// Service implements the lease lifecycle and tenant invitations.
type Service struct {
	store      Store
	units      UnitService
	dispatcher notify.Dispatcher
	siteURL    string
	invTTL     time.Duration
	now        func() time.Time
}

func NewService(store Store, units UnitService, dispatcher notify.Dispatcher, siteURL string, invitationTTL time.Duration) *Service {
	return &Service{
		store:      store,
		units:      units,
		dispatcher: dispatcher,
		siteURL:    siteURL,
		invTTL:     invitationTTL,
		now:        time.Now,
	}
}

// Request carries the fields for creating or updating a lease. Amounts are
// decimal strings, dates use the wire date format.
type Request struct {
	TenantEmail     string `json:"tenantEmail" binding:"required"`
	StartDate       string `json:"startDate" binding:"required"`
	EndDate         string `json:"endDate" binding:"required"`
	RentAmount      string `json:"rentAmount" binding:"required"`
	SecurityDeposit string `json:"securityDeposit"`
}

type parsedRequest struct {
	email   string
	start   time.Time
	end     time.Time
	rent    money.Cents
	deposit money.Cents
}

func (s *Service) parseRequest(req Request) (*parsedRequest, error) {
	errs := validation.Validate(
		validation.ValidEmail("tenantEmail", req.TenantEmail),
		validation.ValidDate("startDate", req.StartDate),
		validation.ValidDate("endDate", req.EndDate),
		validation.NonNegativeAmount("rentAmount", req.RentAmount),
		validation.NonNegativeAmount("securityDeposit", req.SecurityDeposit),
	)
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid lease", errs)
	}

	start, _ := time.Parse(validation.DateFormat, req.StartDate)
	end, _ := time.Parse(validation.DateFormat, req.EndDate)
	if end.Before(start) {
		errs.Add("endDate", "must not be before startDate")
		return nil, apperr.Validation("invalid lease", errs)
	}
	rent := money.MustParse(req.RentAmount)
	var deposit money.Cents
	if req.SecurityDeposit != "" {
		deposit = money.MustParse(req.SecurityDeposit)
	}
	return &parsedRequest{
		email:   strings.ToLower(strings.TrimSpace(req.TenantEmail)),
		start:   start,
		end:     end,
		rent:    rent,
		deposit: deposit,
	}, nil
}

// Create opens a draft lease on an available unit, reserves the unit, and
// invites the tenant by email. The lease and invitation are committed before
// the email is dispatched; a dispatch failure is returned alongside them.
func (s *Service) Create(ctx context.Context, orgID, unitID string, req Request) (*Lease, *TenantInvitation, error) {
	p, err := s.parseRequest(req)
	if err != nil {
		return nil, nil, err
	}

	unit, err := s.units.GetUnit(ctx, orgID, unitID)
	if err != nil {
		return nil, nil, err
	}
	if unit.Status != property.UnitAvailable {
		return nil, nil, ErrUnitUnavailable
	}

	now := s.now()
	l := &Lease{
		ID:              idgen.WithPrefix("lease_"),
		OrgID:           orgID,
		UnitID:          unit.ID,
		StartDate:       p.start,
		EndDate:         p.end,
		RentAmount:      p.rent,
		SecurityDeposit: p.deposit,
		Status:          StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateLease(ctx, l); err != nil {
		return nil, nil, err
	}
	if _, err := s.units.SetUnitStatus(ctx, orgID, unit.ID, property.UnitReserved); err != nil {
		return nil, nil, err
	}

	inv := &TenantInvitation{
		ID:        idgen.WithPrefix("tinv_"),
		OrgID:     orgID,
		LeaseID:   l.ID,
		Email:     p.email,
		Token:     idgen.Token(),
		Status:    InvitationPending,
		ExpiresAt: now.Add(s.invTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, nil, err
	}

	if err := s.dispatcher.Send(ctx, notify.TemplateLeaseInvitation, inv.Email, map[string]string{
		"unit": unit.UnitNumber,
		"link": fmt.Sprintf("%s/lease-invitations/%s", s.siteURL, inv.Token),
	}); err != nil {
		logging.L(ctx).Warn("lease invitation email failed", "lease_id", l.ID, "error", err)
		return l, inv, notify.ErrDispatchFailed
	}
	return l, inv, nil
}

// UpdateDraft edits the terms of a lease that has not been accepted yet.
// The invited email is immutable; re-invite by deleting the draft.
func (s *Service) UpdateDraft(ctx context.Context, orgID, id string, req Request) (*Lease, error) {
	p, err := s.parseRequest(req)
	if err != nil {
		return nil, err
	}
	l, err := s.getOrgLease(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if l.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	l.StartDate = p.start
	l.EndDate = p.end
	l.RentAmount = p.rent
	l.SecurityDeposit = p.deposit
	l.UpdatedAt = s.now()
	if err := s.store.UpdateLease(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Accept activates a draft lease for the invited principal. The invitation
// must be pending, unexpired (expiry is applied lazily here), and addressed
// to the accepting principal's email.
func (s *Service) Accept(ctx context.Context, token string, principal *identity.Principal) (*Lease, error) {
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

	l, err := s.store.GetLease(ctx, inv.LeaseID)
	if err != nil {
		return nil, err
	}
	if l.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	if l.TenantID != "" {
		return nil, ErrAlreadyAccepted
	}

	l.TenantID = principal.ID
	l.Status = StatusActive
	l.UpdatedAt = now
	if err := s.store.UpdateLease(ctx, l); err != nil {
		return nil, err
	}
	if _, err := s.units.SetUnitStatus(ctx, l.OrgID, l.UnitID, property.UnitRented); err != nil {
		return nil, err
	}

	inv.Status = InvitationAccepted
	inv.UpdatedAt = now
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("lease activated", "lease_id", l.ID, "tenant_id", principal.ID)
	return l, nil
}

// Terminate ends an active lease and releases the unit into the given
// state, which must be available or maintenance.
func (s *Service) Terminate(ctx context.Context, orgID, id string, unitStatus property.UnitStatus) (*Lease, error) {
	if unitStatus != property.UnitAvailable && unitStatus != property.UnitMaintenance {
		var errs validation.FieldErrors
		errs.Add("unitStatus", "must be available or maintenance")
		return nil, apperr.Validation("invalid termination", errs)
	}
	l, err := s.getOrgLease(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if l.Status != StatusActive {
		return nil, ErrNotActive
	}
	l.Status = StatusTerminated
	l.UpdatedAt = s.now()
	if err := s.store.UpdateLease(ctx, l); err != nil {
		return nil, err
	}
	if _, err := s.units.SetUnitStatus(ctx, orgID, l.UnitID, unitStatus); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteDraft removes an unaccepted lease, expiring its invitation and
// returning the unit to the market.
func (s *Service) DeleteDraft(ctx context.Context, orgID, id string) error {
	l, err := s.getOrgLease(ctx, orgID, id)
	if err != nil {
		return err
	}
	if l.Status != StatusDraft {
		return ErrNotDraft
	}
	if inv, err := s.store.GetInvitationByLease(ctx, l.ID); err == nil && inv.Status == InvitationPending {
		inv.Status = InvitationExpired
		inv.UpdatedAt = s.now()
		_ = s.store.UpdateInvitation(ctx, inv)
	}
	if err := s.store.DeleteLease(ctx, l.ID); err != nil {
		return err
	}
	_, err = s.units.SetUnitStatus(ctx, orgID, l.UnitID, property.UnitAvailable)
	return err
}

// Get returns a lease scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Lease, error) {
	return s.getOrgLease(ctx, orgID, id)
}

// List returns the organization's leases, newest first.
func (s *Service) List(ctx context.Context, orgID string, f ListFilter) ([]*Lease, error) {
	return s.store.ListLeases(ctx, orgID, f)
}

// Invitation returns the invitation attached to a lease.
func (s *Service) Invitation(ctx context.Context, orgID, leaseID string) (*TenantInvitation, error) {
	if _, err := s.getOrgLease(ctx, orgID, leaseID); err != nil {
		return nil, err
	}
	return s.store.GetInvitationByLease(ctx, leaseID)
}

// ListByTenant returns leases where the principal is the tenant.
func (s *Service) ListByTenant(ctx context.Context, tenantID string, status Status) ([]*Lease, error) {
	return s.store.ListLeasesByTenant(ctx, tenantID, status)
}

// TenantLease returns a lease if the principal is its tenant. Anyone
// else's lease reads as absent.
func (s *Service) TenantLease(ctx context.Context, tenantID, leaseID string) (*Lease, error) {
	l, err := s.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if l.TenantID == "" || l.TenantID != tenantID {
		return nil, ErrLeaseNotFound
	}
	return l, nil
}

// ActiveTenantLease returns the principal's active lease on a unit, or
// ErrLeaseNotFound. Portal routes use it to verify tenancy before touching
// unit resources.
func (s *Service) ActiveTenantLease(ctx context.Context, tenantID, unitID string) (*Lease, error) {
	leases, err := s.store.ListLeasesByTenant(ctx, tenantID, StatusActive)
	if err != nil {
		return nil, err
	}
	for _, l := range leases {
		if l.UnitID == unitID {
			return l, nil
		}
	}
	return nil, ErrLeaseNotFound
}

func (s *Service) getOrgLease(ctx context.Context, orgID, id string) (*Lease, error) {
	l, err := s.store.GetLease(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OrgID != orgID {
		return nil, ErrLeaseNotFound
	}
	return l, nil
}
