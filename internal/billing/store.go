package billing

import (
	"context"
	"time"
)

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Status  InvoiceStatus
	LeaseID string
	From    time.Time // issue date lower bound, inclusive
	To      time.Time // issue date upper bound, exclusive
}

// Store persists taxes, invoices and their items. CreateInvoice and
// ReplaceItems are atomic: either everything in the call lands or
// nothing does.
type Store interface {
	CreateTax(ctx context.Context, t *Tax) error
	GetTax(ctx context.Context, id string) (*Tax, error)
	UpdateTax(ctx context.Context, t *Tax) error
	DeleteTax(ctx context.Context, id string) error
	ListTaxes(ctx context.Context, orgID string) ([]*Tax, error)
	// SetDefaultTax marks one tax as the organization's default and clears
	// the flag on every other tax in the same write.
	SetDefaultTax(ctx context.Context, orgID, taxID string) error
	// TaxReferenceCount counts invoice items referencing a tax.
	TaxReferenceCount(ctx context.Context, taxID string) (int, error)

	// CountInvoicesInMonth counts the organization's invoices issued in the
	// given calendar month, any status.
	CountInvoicesInMonth(ctx context.Context, orgID string, year int, month time.Month) (int, error)
	// CreateInvoice inserts the invoice and its items in one transaction.
	// A duplicate (org, number) pair returns errNumberTaken.
	CreateInvoice(ctx context.Context, inv *Invoice, items []*InvoiceItem) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	ListInvoices(ctx context.Context, orgID string, f InvoiceFilter) ([]*Invoice, error)
	ListInvoicesByLease(ctx context.Context, leaseID string) ([]*Invoice, error)
	// NonDraftForMonth finds a sent, paid or overdue invoice of the lease
	// whose issue date falls in [from, to).
	NonDraftForMonth(ctx context.Context, leaseID string, from, to time.Time) (*Invoice, error)

	ListItems(ctx context.Context, invoiceID string) ([]*InvoiceItem, error)
	// ReplaceItems swaps the invoice's full item set and persists the
	// invoice's recomputed totals in the same transaction.
	ReplaceItems(ctx context.Context, inv *Invoice, items []*InvoiceItem) error
}
