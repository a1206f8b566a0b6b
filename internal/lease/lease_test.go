package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/property"
)

type allowAll struct{}

func (allowAll) CanAddProperty(context.Context, string, int) error { return nil }
func (allowAll) CanAddUnit(context.Context, string, int) error     { return nil }

type fixture struct {
	svc   *Service
	store *MemoryStore
	props *property.Service
	rec   *notify.Recorder
	unit  *property.Unit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	propStore := property.NewMemoryStore()
	props := property.NewService(propStore, allowAll{})

	now := time.Now()
	prop := &property.Property{
		ID:        "prop_1",
		OrgID:     "org_1",
		Address:   "Elm Street 4",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, propStore.CreateProperty(context.Background(), prop))
	unit := &property.Unit{
		ID:         "unit_1",
		PropertyID: prop.ID,
		OrgID:      "org_1",
		UnitNumber: "12",
		Status:     property.UnitAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, propStore.CreateUnit(context.Background(), unit))

	store := NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewService(store, props, rec, "https://app.namura.test", 7*24*time.Hour)
	return &fixture{svc: svc, store: store, props: props, rec: rec, unit: unit}
}

func validRequest() Request {
	return Request{
		TenantEmail: "tenant@example.com",
		StartDate:   "2026-09-01",
		EndDate:     "2027-08-31",
		RentAmount:  "650.00",
	}
}

func tenant() *identity.Principal {
	return &identity.Principal{ID: "usr_t1", Email: "Tenant@Example.com", GlobalRole: identity.RoleTenant}
}

func (f *fixture) unitStatus(t *testing.T) property.UnitStatus {
	t.Helper()
	u, err := f.props.GetUnit(context.Background(), "org_1", f.unit.ID)
	require.NoError(t, err)
	return u.Status
}

func TestService_CreateDraftReservesUnit(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, l.Status)
	assert.Empty(t, l.TenantID)
	assert.Equal(t, money.MustParse("650.00"), l.RentAmount)
	assert.Equal(t, property.UnitReserved, f.unitStatus(t))

	assert.Equal(t, InvitationPending, inv.Status)
	assert.Equal(t, "tenant@example.com", inv.Email)
	require.Len(t, f.rec.Sent, 1)
	assert.Equal(t, notify.TemplateLeaseInvitation, f.rec.Sent[0].TemplateID)
	assert.Equal(t, "tenant@example.com", f.rec.Sent[0].Recipient)
}

func TestService_CreateOnUnavailableUnit(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	// unit is now reserved; a second draft must be refused
	_, _, err = f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	assert.ErrorIs(t, err, ErrUnitUnavailable)
}

func TestService_CreateInvalidDates(t *testing.T) {
	f := newFixture(t)

	req := validRequest()
	req.EndDate = "2026-08-01" // before start
	_, _, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, req)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, property.UnitAvailable, f.unitStatus(t))
}

func TestService_CreateDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.rec.Fail = true

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	assert.ErrorIs(t, err, notify.ErrDispatchFailed)

	// state committed before dispatch: lease, invitation and reservation stand
	require.NotNil(t, l)
	require.NotNil(t, inv)
	got, err2 := f.store.GetLease(context.Background(), l.ID)
	require.NoError(t, err2)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, property.UnitReserved, f.unitStatus(t))
}

func TestService_AcceptActivates(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	// email match is case-insensitive
	accepted, err := f.svc.Accept(context.Background(), inv.Token, tenant())
	require.NoError(t, err)
	assert.Equal(t, l.ID, accepted.ID)
	assert.Equal(t, StatusActive, accepted.Status)
	assert.Equal(t, "usr_t1", accepted.TenantID)
	assert.Equal(t, property.UnitRented, f.unitStatus(t))

	// a second accept finds the invitation closed
	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	assert.ErrorIs(t, err, ErrInvitationClosed)
}

func TestService_AcceptWrongEmail(t *testing.T) {
	f := newFixture(t)

	_, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	other := &identity.Principal{ID: "usr_x", Email: "someone.else@example.com"}
	_, err = f.svc.Accept(context.Background(), inv.Token, other)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestService_AcceptExpiredInvitation(t *testing.T) {
	f := newFixture(t)

	_, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	assert.ErrorIs(t, err, ErrInvitationExpired)

	// expiry is persisted lazily
	stored, err := f.store.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationExpired, stored.Status)
}

func TestService_TerminateReleasesUnit(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	require.NoError(t, err)

	got, err := f.svc.Terminate(context.Background(), "org_1", l.ID, property.UnitMaintenance)
	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, got.Status)
	assert.Equal(t, property.UnitMaintenance, f.unitStatus(t))

	// terminal leases cannot be terminated again
	_, err = f.svc.Terminate(context.Background(), "org_1", l.ID, property.UnitAvailable)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestService_TerminateRejectsBadUnitStatus(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	require.NoError(t, err)

	_, err = f.svc.Terminate(context.Background(), "org_1", l.ID, property.UnitRented)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
}

func TestService_TerminateDraft(t *testing.T) {
	f := newFixture(t)

	l, _, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	_, err = f.svc.Terminate(context.Background(), "org_1", l.ID, property.UnitAvailable)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestService_DeleteDraft(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDraft(context.Background(), "org_1", l.ID))
	assert.Equal(t, property.UnitAvailable, f.unitStatus(t))

	_, err = f.store.GetLease(context.Background(), l.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)
	stored, err := f.store.GetInvitationByToken(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationExpired, stored.Status)
}

func TestService_DeleteActiveLease(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	require.NoError(t, err)

	err = f.svc.DeleteDraft(context.Background(), "org_1", l.ID)
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestService_UpdateDraftOnly(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.RentAmount = "700.00"
	updated, err := f.svc.UpdateDraft(context.Background(), "org_1", l.ID, req)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("700.00"), updated.RentAmount)

	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	require.NoError(t, err)
	_, err = f.svc.UpdateDraft(context.Background(), "org_1", l.ID, req)
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestService_OrgScoping(t *testing.T) {
	f := newFixture(t)

	l, _, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), "org_2", l.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)
}

func TestService_ActiveTenantLease(t *testing.T) {
	f := newFixture(t)

	l, inv, err := f.svc.Create(context.Background(), "org_1", f.unit.ID, validRequest())
	require.NoError(t, err)

	// draft lease grants no tenancy
	_, err = f.svc.ActiveTenantLease(context.Background(), "usr_t1", f.unit.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)

	_, err = f.svc.Accept(context.Background(), inv.Token, tenant())
	require.NoError(t, err)

	got, err := f.svc.ActiveTenantLease(context.Background(), "usr_t1", f.unit.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)

	// termination revokes tenancy
	_, err = f.svc.Terminate(context.Background(), "org_1", l.ID, property.UnitAvailable)
	require.NoError(t, err)
	_, err = f.svc.ActiveTenantLease(context.Background(), "usr_t1", f.unit.ID)
	assert.ErrorIs(t, err, ErrLeaseNotFound)
}
