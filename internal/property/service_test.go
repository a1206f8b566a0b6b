package property

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/money"
)

type allowAll struct{}

func (allowAll) CanAddProperty(ctx context.Context, orgID string, n int) error { return nil }
func (allowAll) CanAddUnit(ctx context.Context, orgID string, n int) error     { return nil }

type denyAll struct{ err error }

func (d denyAll) CanAddProperty(ctx context.Context, orgID string, n int) error { return d.err }
func (d denyAll) CanAddUnit(ctx context.Context, orgID string, n int) error     { return d.err }

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewService(store, allowAll{}), store
}

func mustProperty(t *testing.T, svc *Service, orgID, address string) *Property {
	t.Helper()
	p, err := svc.CreateProperty(context.Background(), orgID, PropertyRequest{
		Address:      address,
		TotalArea:    420.5,
		BuildingType: BuildingApartment,
		FloorCount:   5,
	})
	require.NoError(t, err)
	return p
}

func mustUnit(t *testing.T, svc *Service, orgID, propertyID, number string) *Unit {
	t.Helper()
	u, err := svc.CreateUnit(context.Background(), orgID, propertyID, UnitRequest{
		UnitNumber: number,
		Floor:      2,
		Area:       54.3,
		Rooms:      2,
		UnitType:   UnitApartment,
	})
	require.NoError(t, err)
	return u
}

func TestService_PropertyUniqueness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustProperty(t, svc, "org_1", "Brivibas iela 1")
	_, err := svc.CreateProperty(ctx, "org_1", PropertyRequest{Address: "Brivibas iela 1"})
	assert.ErrorIs(t, err, ErrAddressTaken)

	// The same address is fine in another organization.
	_, err = svc.CreateProperty(ctx, "org_2", PropertyRequest{Address: "Brivibas iela 1"})
	assert.NoError(t, err)
}

func TestService_GateDeniesCreation(t *testing.T) {
	store := NewMemoryStore()
	denied := apperr.LimitExceeded("plan limit")
	svc := NewService(store, denyAll{err: denied})
	ctx := context.Background()

	_, err := svc.CreateProperty(ctx, "org_1", PropertyRequest{Address: "Brivibas iela 1"})
	assert.ErrorIs(t, err, denied)

	count, _ := store.CountProperties(ctx, "org_1")
	assert.Zero(t, count)
}

func TestService_UnitNumberUniquePerProperty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p1 := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	p2 := mustProperty(t, svc, "org_1", "Terbatas iela 2")
	mustUnit(t, svc, "org_1", p1.ID, "12")

	_, err := svc.CreateUnit(ctx, "org_1", p1.ID, UnitRequest{UnitNumber: "12"})
	assert.ErrorIs(t, err, ErrUnitNumberTaken)

	// Same number in a different property is allowed.
	_, err = svc.CreateUnit(ctx, "org_1", p2.ID, UnitRequest{UnitNumber: "12"})
	assert.NoError(t, err)
}

func TestService_OrgScoping(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")

	// Another org cannot see the property, even by ID.
	_, err := svc.GetProperty(ctx, "org_2", p.ID)
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestService_SingleActiveMeterPerType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")

	m1, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-001",
	})
	require.NoError(t, err)
	assert.Equal(t, MeterActive, m1.Status)

	// Second active cold-water meter is rejected.
	_, err = svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-002",
	})
	assert.ErrorIs(t, err, ErrActiveMeterExists)

	// A different type coexists.
	_, err = svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterGas, Number: "G-001",
	})
	assert.NoError(t, err)
}

func TestService_SupersedeMeter(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")
	old, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-001",
	})
	require.NoError(t, err)

	replacement, err := svc.SupersedeMeter(ctx, "org_1", old.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-002",
	})
	require.NoError(t, err)
	assert.Equal(t, MeterActive, replacement.Status)
	assert.Equal(t, old.Type, replacement.Type)

	stored, err := store.GetMeter(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, MeterExpired, stored.Status)

	// Only active meters can be superseded.
	_, err = svc.SupersedeMeter(ctx, "org_1", old.ID, MeterRequest{Number: "WC-003"})
	assert.ErrorIs(t, err, ErrMeterNotActive)
}

// meterInstallFails simulates the replacement insert failing mid-supersede.
type meterInstallFails struct {
	*MemoryStore
}

func (meterInstallFails) CreateMeter(ctx context.Context, m *UnitMeter) error {
	return errors.New("insert failed")
}

func (meterInstallFails) SupersedeMeter(ctx context.Context, old, replacement *UnitMeter) error {
	return errors.New("insert failed")
}

func TestService_SupersedeMeterFailureLeavesOldActive(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, allowAll{})
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")
	old, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-001",
	})
	require.NoError(t, err)

	broken := NewService(meterInstallFails{store}, allowAll{})
	_, err = broken.SupersedeMeter(ctx, "org_1", old.ID, MeterRequest{Number: "WC-002"})
	require.Error(t, err)

	// A failed supersede must not leave the unit without an active meter.
	got, err := store.GetMeter(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, MeterActive, got.Status)
}

func TestService_UpdateMeter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")
	m, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-001",
	})
	require.NoError(t, err)

	got, err := svc.UpdateMeter(ctx, "org_1", m.ID, MeterUpdateRequest{
		Number: "WC-001-R", Tariff: "1.35",
	})
	require.NoError(t, err)
	assert.Equal(t, "WC-001-R", got.Number)
	assert.Equal(t, money.Cents(135), got.Tariff)
	assert.Equal(t, MeterActive, got.Status)

	_, err = svc.UpdateMeter(ctx, "org_1", m.ID, MeterUpdateRequest{Tariff: "-1"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)

	_, err = svc.UpdateMeter(ctx, "org_2", m.ID, MeterUpdateRequest{Number: "X"})
	assert.ErrorIs(t, err, ErrMeterNotFound)
}

func TestService_MeterLazyExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")

	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	m, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterGas, Number: "G-001", ExpireDate: yesterday,
	})
	require.NoError(t, err)

	got, err := svc.GetMeter(ctx, "org_1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, MeterExpired, got.Status)
}

func TestService_SubmitReading(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")
	m, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-001",
	})
	require.NoError(t, err)

	r1, err := svc.SubmitReading(ctx, "org_1", m.ID, "prn_t", ReadingRequest{
		Reading: "100.00", ReadingDate: "2026-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), r1.Value)

	_, err = svc.SubmitReading(ctx, "org_1", m.ID, "prn_t", ReadingRequest{
		Reading: "150.00", ReadingDate: "2026-02-10",
	})
	require.NoError(t, err)

	// Backdated reading above the nearest later reading is a field error.
	_, err = svc.SubmitReading(ctx, "org_1", m.ID, "prn_t", ReadingRequest{
		Reading: "200.00", ReadingDate: "2026-01-20",
	})
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	require.Len(t, ae.Fields, 1)
	assert.Equal(t, "reading", ae.Fields[0].Field)

	// Inside the window the correction is accepted.
	_, err = svc.SubmitReading(ctx, "org_1", m.ID, "prn_t", ReadingRequest{
		Reading: "120.00", ReadingDate: "2026-01-20",
	})
	assert.NoError(t, err)

	// Readings only land on active meters.
	_, err = svc.DeactivateMeter(ctx, "org_1", m.ID)
	require.NoError(t, err)
	_, err = svc.SubmitReading(ctx, "org_1", m.ID, "prn_t", ReadingRequest{
		Reading: "160.00", ReadingDate: "2026-03-10",
	})
	assert.ErrorIs(t, err, ErrMeterNotActive)
}

func TestService_VerifyReading(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := mustProperty(t, svc, "org_1", "Brivibas iela 1")
	u := mustUnit(t, svc, "org_1", p.ID, "12")
	m, err := svc.InstallMeter(ctx, "org_1", u.ID, MeterRequest{
		Type: MeterWaterCold, Number: "WC-001",
	})
	require.NoError(t, err)
	r, err := svc.SubmitReading(ctx, "org_1", m.ID, "prn_t", ReadingRequest{
		Reading: "100.00", ReadingDate: "2026-01-10",
	})
	require.NoError(t, err)

	verified, err := svc.VerifyReading(ctx, "org_1", r.ID, "prn_mgr")
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, "prn_mgr", verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)

	// Verification is idempotent and keeps the first verifier.
	again, err := svc.VerifyReading(ctx, "org_1", r.ID, "prn_other")
	require.NoError(t, err)
	assert.Equal(t, "prn_mgr", again.VerifiedBy)
}
