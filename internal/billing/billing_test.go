package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/lease"
	"github.com/kalvisk/namura/internal/maintenance"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/property"
)

type allowAll struct{}

func (allowAll) CanAddProperty(context.Context, string, int) error { return nil }
func (allowAll) CanAddUnit(context.Context, string, int) error     { return nil }

type fixture struct {
	svc        *Service
	store      *MemoryStore
	props      *property.Service
	leases     *lease.Service
	leaseStore *lease.MemoryStore
	work       *maintenance.MemoryStore
	rec        *notify.Recorder
	unit       *property.Unit
	lease      *lease.Lease
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	propStore := property.NewMemoryStore()
	props := property.NewService(propStore, allowAll{})
	prop := &property.Property{
		ID: "prop_1", OrgID: "org_1", Address: "Elm Street 4",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, propStore.CreateProperty(ctx, prop))
	unit := &property.Unit{
		ID: "unit_1", PropertyID: prop.ID, OrgID: "org_1", UnitNumber: "12",
		Status: property.UnitRented, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, propStore.CreateUnit(ctx, unit))

	principals := identity.NewMemoryStore()
	require.NoError(t, principals.CreatePrincipal(ctx, &identity.Principal{
		ID: "usr_t1", Email: "tenant@example.com", GlobalRole: identity.RoleTenant,
	}))

	leaseStore := lease.NewMemoryStore()
	leases := lease.NewService(leaseStore, props, &notify.Recorder{}, "https://app.namura.test", 7*24*time.Hour)
	l := &lease.Lease{
		ID: "lease_1", OrgID: "org_1", UnitID: unit.ID, TenantID: "usr_t1",
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		RentAmount: money.MustParse("650.00"),
		Status:     lease.StatusActive,
		CreatedAt:  now, UpdatedAt: now,
	}
	require.NoError(t, leaseStore.CreateLease(ctx, l))

	workStore := maintenance.NewMemoryStore()
	maintSvc := maintenance.NewService(workStore, props)

	store := NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewService(store, leases, props, maintSvc, principals, rec, "https://app.namura.test", 14)
	return &fixture{
		svc: svc, store: store, props: props, leases: leases, leaseStore: leaseStore,
		work: workStore, rec: rec, unit: unit, lease: l,
	}
}

// month returns the current month in the wire format, matching the
// default window the service applies.
func month() string {
	return time.Now().UTC().Format(monthFormat)
}

func (f *fixture) defaultTax(t *testing.T) *Tax {
	t.Helper()
	tax, err := f.svc.CreateTax(context.Background(), "org_1", TaxRequest{
		Name: "VAT", Rate: "21", IsDefault: true,
	})
	require.NoError(t, err)
	return tax
}

func (f *fixture) createInvoice(t *testing.T) (*Invoice, []*InvoiceItem) {
	t.Helper()
	inv, items, err := f.svc.CreateInvoice(context.Background(), "org_1", f.lease.ID, CreateRequest{
		Month: month(), Selected: []int{0},
	})
	require.NoError(t, err)
	return inv, items
}

func TestApplyTax_Amounts(t *testing.T) {
	vat := &Tax{ID: "tax_1", RateBP: 2100}

	taxed := &InvoiceItem{Quantity: 200, UnitPrice: money.MustParse("100.00")}
	ApplyTax(taxed, vat)
	assert.Equal(t, money.MustParse("200.00"), taxed.Amount)
	assert.Equal(t, money.MustParse("42.00"), taxed.TaxAmount)

	// re-applying must not compound
	ApplyTax(taxed, vat)
	assert.Equal(t, money.MustParse("200.00"), taxed.Amount)
	assert.Equal(t, money.MustParse("42.00"), taxed.TaxAmount)

	untaxed := &InvoiceItem{Quantity: 100, UnitPrice: money.MustParse("50.00")}
	ApplyTax(untaxed, nil)
	assert.Equal(t, money.MustParse("50.00"), untaxed.Amount)
	assert.Zero(t, untaxed.TaxAmount)

	subtotal, taxTotal, total := Aggregate([]*InvoiceItem{taxed, untaxed})
	assert.Equal(t, money.MustParse("250.00"), subtotal)
	assert.Equal(t, money.MustParse("42.00"), taxTotal)
	assert.Equal(t, money.MustParse("292.00"), total)
}

func TestService_SingleDefaultTax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.defaultTax(t)
	second, err := f.svc.CreateTax(ctx, "org_1", TaxRequest{Name: "Reduced", Rate: "9"})
	require.NoError(t, err)
	assert.Equal(t, int64(900), second.RateBP)

	_, err = f.svc.SetDefaultTax(ctx, "org_1", second.ID)
	require.NoError(t, err)

	taxes, err := f.svc.ListTaxes(ctx, "org_1")
	require.NoError(t, err)
	var defaults []string
	for _, tax := range taxes {
		if tax.IsDefault {
			defaults = append(defaults, tax.ID)
		}
	}
	assert.Equal(t, []string{second.ID}, defaults)
}

func TestService_TaxRateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTax(context.Background(), "org_1", TaxRequest{Name: "Bad", Rate: "-5"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)

	_, err = f.svc.CreateTax(context.Background(), "org_1", TaxRequest{Name: "Bad", Rate: "21.555"})
	require.ErrorAs(t, err, &appErr)
}

func TestService_DeleteTaxInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tax := f.defaultTax(t)
	_, items := f.createInvoice(t)
	require.Equal(t, tax.ID, items[0].TaxID)

	err := f.svc.DeleteTax(ctx, "org_1", tax.ID, false)
	assert.ErrorIs(t, err, ErrTaxInUse)

	require.NoError(t, f.svc.DeleteTax(ctx, "org_1", tax.ID, true))

	// the recorded tax amount on the item survives the deletion
	kept, err := f.store.ListItems(ctx, items[0].InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("136.50"), kept[0].TaxAmount)
}

func TestService_AssembleCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// active meter with two readings and positive consumption
	water, err := f.props.InstallMeter(ctx, "org_1", f.unit.ID, property.MeterRequest{
		Type: property.MeterWaterCold, Number: "WC-001", Tariff: "2.50",
	})
	require.NoError(t, err)
	_, err = f.props.SubmitReading(ctx, "org_1", water.ID, "usr_t1", property.ReadingRequest{
		Reading: "100.00", ReadingDate: "2026-07-28",
	})
	require.NoError(t, err)
	_, err = f.props.SubmitReading(ctx, "org_1", water.ID, "usr_t1", property.ReadingRequest{
		Reading: "112.50", ReadingDate: "2026-08-27",
	})
	require.NoError(t, err)

	// single reading: no consumption can be derived
	gas, err := f.props.InstallMeter(ctx, "org_1", f.unit.ID, property.MeterRequest{
		Type: property.MeterGas, Number: "G-001",
	})
	require.NoError(t, err)
	_, err = f.props.SubmitReading(ctx, "org_1", gas.ID, "usr_t1", property.ReadingRequest{
		Reading: "40.00", ReadingDate: "2026-08-27",
	})
	require.NoError(t, err)

	// flat meter: identical newest readings
	power, err := f.props.InstallMeter(ctx, "org_1", f.unit.ID, property.MeterRequest{
		Type: property.MeterElectricity, Number: "E-001",
	})
	require.NoError(t, err)
	for _, d := range []string{"2026-07-28", "2026-08-27"} {
		_, err = f.props.SubmitReading(ctx, "org_1", power.ID, "usr_t1", property.ReadingRequest{
			Reading: "500.00", ReadingDate: d,
		})
		require.NoError(t, err)
	}

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	completed := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.work.CreateWork(ctx, &maintenance.Work{
		ID: "wrk_1", OrgID: "org_1", IssueID: "iss_1", UnitID: f.unit.ID,
		AssignedTo: "Plumber", Description: "Replaced valve",
		Cost: money.MustParse("85.50"), Status: maintenance.WorkCompleted,
		CompletedDate: &completed, ScheduledDate: completed,
	}))

	lines, err := f.svc.Assemble(ctx, f.lease, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, ItemRent, lines[0].Type)
	assert.Equal(t, money.MustParse("650.00"), lines[0].UnitPrice)
	assert.Equal(t, money.Cents(100), lines[0].Quantity)

	assert.Equal(t, ItemUtility, lines[1].Type)
	assert.Equal(t, money.MustParse("12.50"), lines[1].Quantity)
	assert.Equal(t, money.MustParse("2.50"), lines[1].UnitPrice)

	assert.Equal(t, ItemMaintenance, lines[2].Type)
	assert.Equal(t, money.MustParse("85.50"), lines[2].UnitPrice)
}

func TestService_CreateInvoiceAppliesDefaultTax(t *testing.T) {
	f := newFixture(t)
	f.defaultTax(t)

	inv, items, err := f.svc.CreateInvoice(context.Background(), "org_1", f.lease.ID, CreateRequest{
		Month: month(), Selected: []int{0, 0, 99},
	})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, money.MustParse("650.00"), items[0].Amount)
	assert.Equal(t, money.MustParse("136.50"), items[0].TaxAmount)
	assert.Equal(t, money.MustParse("650.00"), inv.Subtotal)
	assert.Equal(t, money.MustParse("136.50"), inv.TaxTotal)
	assert.Equal(t, money.MustParse("786.50"), inv.Total)
	assert.Equal(t, InvoiceDraft, inv.Status)
	assert.Equal(t, inv.IssueDate.AddDate(0, 0, 14), inv.DueDate)
}

func TestService_CreateInvoiceNumbering(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	first, _ := f.createInvoice(t)
	assert.Equal(t, fmt.Sprintf("%d-%02d-0001", now.Year(), int(now.Month())), first.Number)

	// drafts do not block the month, and the sequence keeps counting
	second, _ := f.createInvoice(t)
	assert.Equal(t, fmt.Sprintf("%d-%02d-0002", now.Year(), int(now.Month())), second.Number)
}

func TestService_CreateInvoiceRejectsEmptySelection(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.CreateInvoice(context.Background(), "org_1", f.lease.ID, CreateRequest{
		Month: month(), Selected: []int{99},
	})
	assert.ErrorIs(t, err, ErrNoLines)
}

func TestService_SentInvoiceBlocksMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _ := f.createInvoice(t)
	_, err := f.svc.Send(ctx, "org_1", inv.ID)
	require.NoError(t, err)

	_, existing, err := f.svc.PreviewCandidates(ctx, "org_1", f.lease.ID, month())
	assert.ErrorIs(t, err, ErrInvoiceExists)
	require.NotNil(t, existing)
	assert.Equal(t, inv.ID, existing.ID)

	got, _, err := f.svc.CreateInvoice(ctx, "org_1", f.lease.ID, CreateRequest{
		Month: month(), Selected: []int{0},
	})
	assert.ErrorIs(t, err, ErrInvoiceExists)
	assert.Equal(t, inv.ID, got.ID)
}

func TestService_SendLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)

	sent, err := f.svc.Send(ctx, "org_1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceSent, sent.Status)
	assert.True(t, sent.IsSent)
	require.NotNil(t, sent.SentDate)
	firstSent := *sent.SentDate

	require.Len(t, f.rec.Sent, 1)
	assert.Equal(t, notify.TemplateInvoiceSent, f.rec.Sent[0].TemplateID)
	assert.Equal(t, "tenant@example.com", f.rec.Sent[0].Recipient)

	// re-send keeps the original sent date
	again, err := f.svc.Send(ctx, "org_1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, firstSent, *again.SentDate)
	assert.Len(t, f.rec.Sent, 2)

	paid, err := f.svc.MarkPaid(ctx, "org_1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaidDate)

	_, err = f.svc.Send(ctx, "org_1", inv.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Cancel(ctx, "org_1", inv.ID, true)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestService_OnlyActiveLeasesAreInvoiceable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := *f.lease
	draft.ID = "lease_draft"
	draft.Status = lease.StatusDraft
	require.NoError(t, f.leaseStore.CreateLease(ctx, &draft))

	terminated := *f.lease
	terminated.ID = "lease_term"
	terminated.Status = lease.StatusTerminated
	require.NoError(t, f.leaseStore.CreateLease(ctx, &terminated))

	for _, id := range []string{draft.ID, terminated.ID} {
		_, _, err := f.svc.PreviewCandidates(ctx, "org_1", id, month())
		assert.ErrorIs(t, err, lease.ErrLeaseNotFound)

		_, _, err = f.svc.CreateInvoice(ctx, "org_1", id, CreateRequest{
			Month: month(), Selected: []int{0},
		})
		assert.ErrorIs(t, err, lease.ErrLeaseNotFound)
	}
}

func TestService_SendWithoutTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bare := *f.lease
	bare.ID = "lease_2"
	bare.TenantID = ""
	bare.Status = lease.StatusDraft
	require.NoError(t, f.leaseStore.CreateLease(ctx, &bare))
	require.NoError(t, f.store.CreateInvoice(ctx, &Invoice{
		ID: "inv_bare", OrgID: "org_1", LeaseID: bare.ID, Number: "2026-08-9999",
		Status: InvoiceDraft, IssueDate: time.Now(), DueDate: time.Now(),
	}, nil))

	_, err := f.svc.Send(ctx, "org_1", "inv_bare")
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestService_SendStateCommitsOnDispatchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)

	f.rec.Fail = true
	sent, err := f.svc.Send(ctx, "org_1", inv.ID)
	assert.ErrorIs(t, err, notify.ErrDispatchFailed)
	require.NotNil(t, sent)
	assert.Equal(t, InvoiceSent, sent.Status)

	stored, _, err := f.svc.Get(ctx, "org_1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceSent, stored.Status)
}

func TestService_MarkPaidFromDraft(t *testing.T) {
	f := newFixture(t)
	inv, _ := f.createInvoice(t)

	_, err := f.svc.MarkPaid(context.Background(), "org_1", inv.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestService_CancelNeedsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)

	_, err := f.svc.Cancel(ctx, "org_1", inv.ID, false)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)

	cancelled, err := f.svc.Cancel(ctx, "org_1", inv.ID, true)
	require.NoError(t, err)
	assert.Equal(t, InvoiceCancelled, cancelled.Status)
}

func TestService_OverdueRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)
	_, err := f.svc.Send(ctx, "org_1", inv.ID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 20) }

	got, _, err := f.svc.Get(ctx, "org_1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceOverdue, got.Status)

	// the flip is persisted, not just reported
	stored, err := f.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceOverdue, stored.Status)

	// an overdue invoice can still be settled
	paid, err := f.svc.MarkPaid(ctx, "org_1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, paid.Status)
}

func TestService_UpdateItemsRecomputesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tax := f.defaultTax(t)
	inv, items := f.createInvoice(t)

	updated, newItems, err := f.svc.UpdateItems(ctx, "org_1", inv.ID, []ItemRequest{
		{ID: items[0].ID, Description: "Rent", Quantity: "1.00", UnitPrice: "650.00", TaxID: tax.ID},
		{Description: "Late fee", Quantity: "1.00", UnitPrice: "25.00", Type: "fee"},
	})
	require.NoError(t, err)
	require.Len(t, newItems, 2)
	assert.Equal(t, items[0].ID, newItems[0].ID)
	assert.NotEmpty(t, newItems[1].ID)
	assert.Equal(t, money.MustParse("675.00"), updated.Subtotal)
	assert.Equal(t, money.MustParse("136.50"), updated.TaxTotal)
	assert.Equal(t, money.MustParse("811.50"), updated.Total)
}

func TestService_UpdateItemsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)

	_, _, err := f.svc.UpdateItems(ctx, "org_1", inv.ID, nil)
	assert.ErrorIs(t, err, ErrNoLines)

	_, _, err = f.svc.UpdateItems(ctx, "org_1", inv.ID, []ItemRequest{
		{Description: "Rent", Quantity: "-1", UnitPrice: "650.00"},
	})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)

	_, _, err = f.svc.UpdateItems(ctx, "org_1", inv.ID, []ItemRequest{
		{Description: "Rent", Quantity: "1.00", UnitPrice: "650.00", TaxID: "tax_nope"},
	})
	require.ErrorAs(t, err, &appErr)
}

func TestService_UpdateItemsDraftOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, items := f.createInvoice(t)
	_, err := f.svc.Send(ctx, "org_1", inv.ID)
	require.NoError(t, err)

	_, _, err = f.svc.UpdateItems(ctx, "org_1", inv.ID, []ItemRequest{
		{ID: items[0].ID, Description: "Rent", Quantity: "1.00", UnitPrice: "1.00"},
	})
	assert.ErrorIs(t, err, ErrInvoiceNotDraft)
}

func TestService_TenantVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)

	// drafts are invisible to the tenant
	_, _, err := f.svc.TenantInvoice(ctx, "usr_t1", inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
	invoices, err := f.svc.TenantInvoices(ctx, "usr_t1")
	require.NoError(t, err)
	assert.Empty(t, invoices)

	_, err = f.svc.Send(ctx, "org_1", inv.ID)
	require.NoError(t, err)

	got, items, err := f.svc.TenantInvoice(ctx, "usr_t1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	require.Len(t, items, 1)

	invoices, err = f.svc.TenantInvoices(ctx, "usr_t1")
	require.NoError(t, err)
	require.Len(t, invoices, 1)

	// someone else's invoice reads as absent
	_, _, err = f.svc.TenantInvoice(ctx, "usr_other", inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestService_OrgScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.createInvoice(t)

	_, _, err := f.svc.Get(ctx, "org_other", inv.ID)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	tax := f.defaultTax(t)
	_, err = f.svc.UpdateTax(ctx, "org_other", tax.ID, TaxRequest{Name: "VAT", Rate: "21"})
	assert.ErrorIs(t, err, ErrTaxNotFound)
}
