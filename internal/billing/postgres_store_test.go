package billing

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/testutil"
)

// seedLease satisfies the foreign key chain an invoice hangs off:
// principal -> organization -> property -> unit -> lease.
func seedLease(t *testing.T, db *sql.DB) (orgID, leaseID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	exec := func(q string, args ...any) {
		t.Helper()
		_, err := db.ExecContext(ctx, q, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO principals (id, email, name, global_role) VALUES ($1, $2, $3, $4)`,
		"usr_pg1", "owner@example.com", "Owner", "company_owner")
	exec(`INSERT INTO organizations (id, name, slug, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		"org_pg1", "Pagma", "pagma", "usr_pg1", now)
	exec(`INSERT INTO properties (id, org_id, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		"prop_pg1", "org_pg1", "Dock Street 9", now)
	exec(`INSERT INTO units (id, property_id, org_id, unit_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		"unit_pg1", "prop_pg1", "org_pg1", "3A", "rented", now)
	exec(`INSERT INTO leases (id, org_id, unit_id, start_date, end_date, rent_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		"lease_pg1", "org_pg1", "unit_pg1",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		int64(65000), "active", now)

	return "org_pg1", "lease_pg1"
}

func testInvoice(orgID, leaseID, id, number string) *Invoice {
	now := time.Now()
	issue := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return &Invoice{
		ID:          id,
		OrgID:       orgID,
		LeaseID:     leaseID,
		Number:      number,
		IssueDate:   issue,
		DueDate:     issue.AddDate(0, 0, 14),
		PeriodStart: issue,
		PeriodEnd:   issue.AddDate(0, 1, -1),
		Status:      InvoiceDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgres_InvoiceNumberConflict(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	orgID, leaseID := seedLease(t, db)
	ctx := context.Background()

	first := testInvoice(orgID, leaseID, "inv_pg1", "2026-08-0001")
	require.NoError(t, store.CreateInvoice(ctx, first, []*InvoiceItem{{
		ID: "itm_pg1", OrgID: orgID, InvoiceID: first.ID,
		Description: "Rent", Quantity: 100, UnitPrice: 65000, Amount: 65000,
		Type: ItemRent, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}}))

	dup := testInvoice(orgID, leaseID, "inv_pg2", "2026-08-0001")
	err := store.CreateInvoice(ctx, dup, nil)
	assert.ErrorIs(t, err, errNumberTaken)

	// the losing transaction must leave nothing behind
	_, err = store.GetInvoice(ctx, "inv_pg2")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	n, err := store.CountInvoicesInMonth(ctx, orgID, 2026, time.August)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgres_SetDefaultTaxIsExclusive(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	seedLease(t, db)
	ctx := context.Background()
	now := time.Now()

	for _, tax := range []*Tax{
		{ID: "tax_pg1", OrgID: "org_pg1", Name: "VAT", RateBP: 2100, IsDefault: true, CreatedAt: now, UpdatedAt: now},
		{ID: "tax_pg2", OrgID: "org_pg1", Name: "Reduced", RateBP: 900, CreatedAt: now.Add(time.Second), UpdatedAt: now},
	} {
		require.NoError(t, store.CreateTax(ctx, tax))
	}

	require.NoError(t, store.SetDefaultTax(ctx, "org_pg1", "tax_pg2"))

	taxes, err := store.ListTaxes(ctx, "org_pg1")
	require.NoError(t, err)
	require.Len(t, taxes, 2)
	assert.False(t, taxes[0].IsDefault)
	assert.True(t, taxes[1].IsDefault)
}

func TestPostgres_ReplaceItemsPersistsTotals(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	orgID, leaseID := seedLease(t, db)
	ctx := context.Background()
	now := time.Now()

	inv := testInvoice(orgID, leaseID, "inv_pg1", "2026-08-0001")
	require.NoError(t, store.CreateInvoice(ctx, inv, []*InvoiceItem{{
		ID: "itm_pg1", OrgID: orgID, InvoiceID: inv.ID,
		Description: "Rent", Quantity: 100, UnitPrice: 65000, Amount: 65000,
		Type: ItemRent, CreatedAt: now, UpdatedAt: now,
	}}))

	items := []*InvoiceItem{
		{ID: "itm_pg1", OrgID: orgID, InvoiceID: inv.ID, Description: "Rent",
			Quantity: 100, UnitPrice: 65000, Amount: 65000, Type: ItemRent,
			CreatedAt: now, UpdatedAt: now},
		{ID: "itm_pg2", OrgID: orgID, InvoiceID: inv.ID, Description: "Late fee",
			Quantity: 100, UnitPrice: 2500, Amount: 2500, Type: ItemFee,
			CreatedAt: now, UpdatedAt: now},
	}
	inv.Subtotal, inv.TaxTotal, inv.Total = Aggregate(items)
	require.NoError(t, store.ReplaceItems(ctx, inv, items))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("675.00"), got.Subtotal)
	assert.Equal(t, money.MustParse("675.00"), got.Total)

	stored, err := store.ListItems(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPostgres_TaxReferenceCount(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	orgID, leaseID := seedLease(t, db)
	ctx := context.Background()
	now := time.Now()

	tax := &Tax{ID: "tax_pg1", OrgID: orgID, Name: "VAT", RateBP: 2100, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.CreateTax(ctx, tax))

	inv := testInvoice(orgID, leaseID, "inv_pg1", "2026-08-0001")
	require.NoError(t, store.CreateInvoice(ctx, inv, []*InvoiceItem{{
		ID: "itm_pg1", OrgID: orgID, InvoiceID: inv.ID,
		Description: "Rent", Quantity: 100, UnitPrice: 65000, Amount: 65000,
		TaxID: tax.ID, TaxAmount: 13650, Type: ItemRent,
		CreatedAt: now, UpdatedAt: now,
	}}))

	n, err := store.TaxReferenceCount(ctx, tax.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
