// Package billing holds taxes, invoices and the machinery that turns a
// lease's month into invoice lines: the candidate assembler, the tax
// engine, and the invoice lifecycle.
package billing

import (
	"errors"
	"time"

	"github.com/kalvisk/namura/internal/money"
)

// Errors
var (
	ErrTaxNotFound     = errors.New("billing: tax not found")
	ErrTaxInUse        = errors.New("billing: tax is referenced by invoice items")
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
	ErrInvoiceNotDraft = errors.New("billing: only draft invoices can be edited")
	ErrInvalidState    = errors.New("billing: transition invalid for current status")
	ErrNoTenant        = errors.New("billing: lease has no bound tenant")
	ErrInvoiceExists   = errors.New("billing: a non-draft invoice already covers this month")
	ErrNoLines         = errors.New("billing: at least one line must be selected")

	// errNumberTaken signals a lost numbering race; creation recomputes the
	// sequence and retries.
	errNumberTaken = errors.New("billing: invoice number already used")
)

// Tax is an organization-scoped percentage applied to invoice lines.
// At most one tax per organization is the default.
type Tax struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"orgId"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	RateBP    int64     `json:"rateBp"` // 21% == 2100
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InvoiceStatus is an invoice's lifecycle state. Paid and cancelled are
// terminal.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Invoice bills a lease for one period. Subtotal, TaxTotal and Total are
// derived from the items; recomputeTotals is their only writer.
type Invoice struct {
	ID          string        `json:"id"`
	OrgID       string        `json:"orgId"`
	LeaseID     string        `json:"leaseId"`
	Number      string        `json:"number"`
	IssueDate   time.Time     `json:"issueDate"`
	DueDate     time.Time     `json:"dueDate"`
	PeriodStart time.Time     `json:"periodStart"`
	PeriodEnd   time.Time     `json:"periodEnd"`
	Subtotal    money.Cents   `json:"subtotal"`
	TaxTotal    money.Cents   `json:"taxTotal"`
	Total       money.Cents   `json:"total"`
	Status      InvoiceStatus `json:"status"`
	IsSent      bool          `json:"isSent"`
	SentDate    *time.Time    `json:"sentDate,omitempty"`
	PaidDate    *time.Time    `json:"paidDate,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ItemType tags what an invoice line bills.
type ItemType string

const (
	ItemRent        ItemType = "rent"
	ItemUtility     ItemType = "utility"
	ItemMaintenance ItemType = "maintenance"
	ItemFee         ItemType = "fee"
	ItemDiscount    ItemType = "discount"
	ItemStandard    ItemType = "standard"
	ItemOther       ItemType = "other"
)

// ValidItemType reports whether t is a recognised item type.
func ValidItemType(t ItemType) bool {
	switch t {
	case ItemRent, ItemUtility, ItemMaintenance, ItemFee, ItemDiscount, ItemStandard, ItemOther:
		return true
	}
	return false
}

// InvoiceItem is one line of an invoice. Quantity is in hundredths so
// metered consumption keeps its two decimal places.
type InvoiceItem struct {
	ID          string      `json:"id"`
	OrgID       string      `json:"orgId"`
	InvoiceID   string      `json:"invoiceId"`
	Description string      `json:"description"`
	Quantity    money.Cents `json:"quantity"`
	UnitPrice   money.Cents `json:"unitPrice"`
	Amount      money.Cents `json:"amount"`
	TaxID       string      `json:"taxId,omitempty"`
	TaxAmount   money.Cents `json:"taxAmount"`
	Type        ItemType    `json:"type"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
