package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/idgen"
	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/lease"
	"github.com/kalvisk/namura/internal/logging"
	"github.com/kalvisk/namura/internal/maintenance"
	"github.com/kalvisk/namura/internal/metrics"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/notify"
	"github.com/kalvisk/namura/internal/property"
	"github.com/kalvisk/namura/internal/validation"
)

// numberAttempts bounds the retry loop when two invoices race for the
// same per-month sequence number.
const numberAttempts = 3

// LeaseSource resolves leases for invoicing.
type LeaseSource interface {
	Get(ctx context.Context, orgID, id string) (*lease.Lease, error)
	TenantLease(ctx context.Context, tenantID, leaseID string) (*lease.Lease, error)
	ListByTenant(ctx context.Context, tenantID string, status lease.Status) ([]*lease.Lease, error)
}

// MeterSource supplies meters and their reading history for utility lines.
type MeterSource interface {
	ListMeters(ctx context.Context, orgID, unitID string) ([]*property.UnitMeter, error)
	ReadingHistory(ctx context.Context, orgID, meterID string) ([]property.ConsumptionRow, error)
}

// WorkSource supplies billable completed repair work.
type WorkSource interface {
	CompletedForUnit(ctx context.Context, unitID string, from, to time.Time) ([]*maintenance.Work, error)
}

// PrincipalDirectory resolves principals so invoice mail reaches the
// tenant's address.
type PrincipalDirectory interface {
	GetPrincipal(ctx context.Context, id string) (*identity.Principal, error)
}

// Service manages taxes and the invoice lifecycle.
type Service struct {
	store      Store
	leases     LeaseSource
	meters     MeterSource
	work       WorkSource
	principals PrincipalDirectory
	dispatcher notify.Dispatcher
	siteURL    string
	dueDays    int
	now        func() time.Time
}

func NewService(store Store, leases LeaseSource, meters MeterSource, work WorkSource,
	principals PrincipalDirectory, dispatcher notify.Dispatcher, siteURL string, dueDays int) *Service {
	return &Service{
		store:      store,
		leases:     leases,
		meters:     meters,
		work:       work,
		principals: principals,
		dispatcher: dispatcher,
		siteURL:    siteURL,
		dueDays:    dueDays,
		now:        time.Now,
	}
}

// TaxRequest carries the fields for creating or updating a tax. Rate is a
// percent string like "21" or "21.5".
type TaxRequest struct {
	Name      string `json:"name" binding:"required"`
	Rate      string `json:"rate" binding:"required"`
	Category  string `json:"category"`
	IsDefault bool   `json:"isDefault"`
}

func parseTaxRate(rate string) (int64, error) {
	bp, err := money.PercentToBP(rate)
	if err != nil || bp < 0 {
		var errs validation.FieldErrors
		errs.Add("rate", "must be a non-negative percent with at most two decimal places")
		return 0, apperr.Validation("invalid tax", errs)
	}
	return bp, nil
}

// CreateTax adds a tax. Creating it as the default clears any previous
// default in the same write.
func (s *Service) CreateTax(ctx context.Context, orgID string, req TaxRequest) (*Tax, error) {
	bp, err := parseTaxRate(req.Rate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	t := &Tax{
		ID:        idgen.WithPrefix("tax_"),
		OrgID:     orgID,
		Name:      validation.SanitizeString(req.Name, 120),
		Category:  validation.SanitizeString(req.Category, 120),
		RateBP:    bp,
		IsDefault: req.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTax(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTax edits a tax in place. Existing invoice items keep the tax
// amounts they were computed with.
func (s *Service) UpdateTax(ctx context.Context, orgID, id string, req TaxRequest) (*Tax, error) {
	bp, err := parseTaxRate(req.Rate)
	if err != nil {
		return nil, err
	}
	t, err := s.getOrgTax(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	t.Name = validation.SanitizeString(req.Name, 120)
	t.Category = validation.SanitizeString(req.Category, 120)
	t.RateBP = bp
	if req.IsDefault {
		t.IsDefault = true
	}
	t.UpdatedAt = s.now()
	if err := s.store.UpdateTax(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTax removes a tax. A tax referenced by invoice items is only
// removed when force is set; the items keep their recorded tax amounts.
func (s *Service) DeleteTax(ctx context.Context, orgID, id string, force bool) error {
	t, err := s.getOrgTax(ctx, orgID, id)
	if err != nil {
		return err
	}
	refs, err := s.store.TaxReferenceCount(ctx, t.ID)
	if err != nil {
		return err
	}
	if refs > 0 && !force {
		return ErrTaxInUse
	}
	return s.store.DeleteTax(ctx, t.ID)
}

// SetDefaultTax makes one tax the organization's default, atomically
// clearing the flag everywhere else.
func (s *Service) SetDefaultTax(ctx context.Context, orgID, id string) (*Tax, error) {
	if err := s.store.SetDefaultTax(ctx, orgID, id); err != nil {
		return nil, err
	}
	return s.store.GetTax(ctx, id)
}

// ListTaxes returns the organization's taxes, oldest first.
func (s *Service) ListTaxes(ctx context.Context, orgID string) ([]*Tax, error) {
	return s.store.ListTaxes(ctx, orgID)
}

func (s *Service) getOrgTax(ctx context.Context, orgID, id string) (*Tax, error) {
	t, err := s.store.GetTax(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OrgID != orgID {
		return nil, ErrTaxNotFound
	}
	return t, nil
}

func (s *Service) defaultTax(ctx context.Context, orgID string) (*Tax, error) {
	taxes, err := s.store.ListTaxes(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, t := range taxes {
		if t.IsDefault {
			return t, nil
		}
	}
	return nil, nil
}

// monthWindow resolves an optional "2006-01" month string into [from, to).
// Empty selects the month containing today.
func (s *Service) monthWindow(month string) (time.Time, time.Time, error) {
	if month == "" {
		now := s.now()
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), nil
	}
	from, err := time.Parse(monthFormat, month)
	if err != nil {
		var errs validation.FieldErrors
		errs.Add("month", "must be a month in YYYY-MM format")
		return time.Time{}, time.Time{}, apperr.Validation("invalid month", errs)
	}
	return from, from.AddDate(0, 1, 0), nil
}

// activeLease resolves a lease for invoicing. Only active leases are
// invoiceable; draft and terminated leases read as not found.
func (s *Service) activeLease(ctx context.Context, orgID, leaseID string) (*lease.Lease, error) {
	l, err := s.leases.Get(ctx, orgID, leaseID)
	if err != nil {
		return nil, err
	}
	if l.Status != lease.StatusActive {
		return nil, lease.ErrLeaseNotFound
	}
	return l, nil
}

// PreviewCandidates assembles the candidate lines for a lease and month.
// When a sent, paid or overdue invoice already covers that month, the
// existing invoice is surfaced instead of a fresh line set.
func (s *Service) PreviewCandidates(ctx context.Context, orgID, leaseID, month string) ([]CandidateLine, *Invoice, error) {
	l, err := s.activeLease(ctx, orgID, leaseID)
	if err != nil {
		return nil, nil, err
	}
	from, to, err := s.monthWindow(month)
	if err != nil {
		return nil, nil, err
	}
	existing, err := s.store.NonDraftForMonth(ctx, l.ID, from, to)
	if err == nil {
		return nil, existing, ErrInvoiceExists
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, nil, err
	}
	lines, err := s.Assemble(ctx, l, from, to)
	if err != nil {
		return nil, nil, err
	}
	return lines, nil, nil
}

// CreateRequest materializes selected candidate lines into an invoice.
type CreateRequest struct {
	Month    string `json:"month"`
	Selected []int  `json:"selected" binding:"required"`
	DueDate  string `json:"dueDate"`
	Notes    string `json:"notes"`
}

// CreateInvoice builds a draft invoice from the candidate lines the caller
// picked. The number is assigned inside the creation transaction; a lost
// numbering race recomputes the sequence and retries.
func (s *Service) CreateInvoice(ctx context.Context, orgID, leaseID string, req CreateRequest) (*Invoice, []*InvoiceItem, error) {
	if e := validation.ValidDate("dueDate", req.DueDate)(); e != nil {
		var errs validation.FieldErrors
		errs.Add(e.Field, e.Message)
		return nil, nil, apperr.Validation("invalid invoice", errs)
	}

	l, err := s.activeLease(ctx, orgID, leaseID)
	if err != nil {
		return nil, nil, err
	}
	from, to, err := s.monthWindow(req.Month)
	if err != nil {
		return nil, nil, err
	}
	existing, err := s.store.NonDraftForMonth(ctx, l.ID, from, to)
	if err == nil {
		return existing, nil, ErrInvoiceExists
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, nil, err
	}

	candidates, err := s.Assemble(ctx, l, from, to)
	if err != nil {
		return nil, nil, err
	}
	var picked []CandidateLine
	seen := make(map[int]bool)
	for _, idx := range req.Selected {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, candidates[idx])
	}
	if len(picked) == 0 {
		return nil, nil, ErrNoLines
	}

	tax, err := s.defaultTax(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	issueDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dueDate := issueDate.AddDate(0, 0, s.dueDays)
	if req.DueDate != "" {
		dueDate, _ = time.Parse(validation.DateFormat, req.DueDate)
	}

	inv := &Invoice{
		ID:          idgen.WithPrefix("inv_"),
		OrgID:       orgID,
		LeaseID:     l.ID,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		PeriodStart: from,
		PeriodEnd:   to.AddDate(0, 0, -1),
		Status:      InvoiceDraft,
		Notes:       validation.SanitizeString(req.Notes, 4000),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	items := make([]*InvoiceItem, 0, len(picked))
	for _, line := range picked {
		it := &InvoiceItem{
			ID:          idgen.WithPrefix("itm_"),
			OrgID:       orgID,
			InvoiceID:   inv.ID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Type:        line.Type,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		ApplyTax(it, tax)
		items = append(items, it)
	}
	inv.Subtotal, inv.TaxTotal, inv.Total = Aggregate(items)

	for attempt := 0; attempt < numberAttempts; attempt++ {
		seq, err := s.store.CountInvoicesInMonth(ctx, orgID, issueDate.Year(), issueDate.Month())
		if err != nil {
			return nil, nil, err
		}
		inv.Number = fmt.Sprintf("%d-%02d-%04d", issueDate.Year(), int(issueDate.Month()), seq+1)
		err = s.store.CreateInvoice(ctx, inv, items)
		if err == nil {
			metrics.InvoicesTotal.WithLabelValues(string(InvoiceDraft)).Inc()
			logging.L(ctx).Info("invoice created", "invoice_id", inv.ID, "number", inv.Number)
			return inv, items, nil
		}
		if !errors.Is(err, errNumberTaken) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("billing: could not allocate invoice number after %d attempts", numberAttempts)
}

// Get returns an invoice with its items, refreshing overdue status lazily.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Invoice, []*InvoiceItem, error) {
	inv, err := s.getOrgInvoice(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.refreshOverdue(ctx, inv); err != nil {
		return nil, nil, err
	}
	items, err := s.store.ListItems(ctx, inv.ID)
	if err != nil {
		return nil, nil, err
	}
	return inv, items, nil
}

// List returns the organization's invoices, refreshing overdue status on
// the way out.
func (s *Service) List(ctx context.Context, orgID string, f InvoiceFilter) ([]*Invoice, error) {
	invoices, err := s.store.ListInvoices(ctx, orgID, f)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if err := s.refreshOverdue(ctx, inv); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// ItemRequest is one line of a draft invoice edit. Existing lines carry
// their ID; lines without one are created; lines left out are deleted.
type ItemRequest struct {
	ID          string `json:"id"`
	Description string `json:"description" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unitPrice" binding:"required"`
	Amount      string `json:"amount"`
	TaxID       string `json:"taxId"`
	Type        string `json:"type"`
}

// UpdateItems replaces a draft invoice's full item set atomically. Totals
// are recomputed in the same transaction; any invalid line rejects the
// whole update.
func (s *Service) UpdateItems(ctx context.Context, orgID, invoiceID string, reqs []ItemRequest) (*Invoice, []*InvoiceItem, error) {
	inv, err := s.getOrgInvoice(ctx, orgID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != InvoiceDraft {
		return nil, nil, ErrInvoiceNotDraft
	}
	if len(reqs) == 0 {
		return nil, nil, ErrNoLines
	}

	existing, err := s.store.ListItems(ctx, inv.ID)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]*InvoiceItem, len(existing))
	for _, it := range existing {
		byID[it.ID] = it
	}
	taxes := make(map[string]*Tax)

	now := s.now()
	var errs validation.FieldErrors
	items := make([]*InvoiceItem, 0, len(reqs))
	for i, req := range reqs {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

		qty, err := money.Parse(req.Quantity)
		if err != nil || qty <= 0 {
			errs.Add(field("quantity"), "must be a positive decimal")
		}
		unitPrice, err := money.Parse(req.UnitPrice)
		if err != nil {
			errs.Add(field("unitPrice"), "must be a decimal amount")
		}
		var amount money.Cents
		if req.Amount != "" {
			if amount, err = money.Parse(req.Amount); err != nil {
				errs.Add(field("amount"), "must be a decimal amount")
			}
		}
		itemType := ItemType(req.Type)
		if itemType == "" {
			itemType = ItemStandard
		}
		if !ValidItemType(itemType) {
			errs.Add(field("type"), "must be a recognised item type")
		}

		var tax *Tax
		if req.TaxID != "" {
			t, ok := taxes[req.TaxID]
			if !ok {
				if t, err = s.getOrgTax(ctx, orgID, req.TaxID); err != nil {
					errs.Add(field("taxId"), "unknown tax")
				} else {
					taxes[req.TaxID] = t
				}
			}
			tax = t
		}

		it := &InvoiceItem{
			ID:          req.ID,
			OrgID:       orgID,
			InvoiceID:   inv.ID,
			Description: validation.SanitizeString(req.Description, 255),
			Quantity:    qty,
			UnitPrice:   unitPrice,
			Amount:      amount,
			Type:        itemType,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if prev, ok := byID[it.ID]; ok {
			it.CreatedAt = prev.CreatedAt
		} else {
			it.ID = idgen.WithPrefix("itm_")
		}
		ApplyTax(it, tax)
		items = append(items, it)
	}
	if len(errs) > 0 {
		return nil, nil, apperr.Validation("invalid invoice items", errs)
	}

	s.recomputeTotals(inv, items)
	if err := s.store.ReplaceItems(ctx, inv, items); err != nil {
		return nil, nil, err
	}
	return inv, items, nil
}

// Send dispatches the invoice to the lease's tenant. State commits before
// dispatch; re-sending is allowed while sent or overdue and keeps the
// first sent date.
func (s *Service) Send(ctx context.Context, orgID, id string) (*Invoice, error) {
	inv, err := s.getOrgInvoice(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.refreshOverdue(ctx, inv); err != nil {
		return nil, err
	}
	if inv.Status != InvoiceDraft && inv.Status != InvoiceSent && inv.Status != InvoiceOverdue {
		return nil, ErrInvalidState
	}

	l, err := s.leases.Get(ctx, orgID, inv.LeaseID)
	if err != nil {
		return nil, err
	}
	if l.TenantID == "" {
		return nil, ErrNoTenant
	}
	tenant, err := s.principals.GetPrincipal(ctx, l.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !inv.IsSent {
		inv.IsSent = true
		inv.SentDate = &now
	}
	if inv.Status == InvoiceDraft {
		inv.Status = InvoiceSent
		metrics.InvoicesTotal.WithLabelValues(string(InvoiceSent)).Inc()
	}
	inv.UpdatedAt = now
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Send(ctx, notify.TemplateInvoiceSent, tenant.Email, map[string]string{
		"number": inv.Number,
		"total":  inv.Total.String(),
		"due":    inv.DueDate.Format(validation.DateFormat),
		"link":   fmt.Sprintf("%s/portal/invoices/%s", s.siteURL, inv.ID),
	}); err != nil {
		logging.L(ctx).Warn("invoice email failed", "invoice_id", inv.ID, "error", err)
		return inv, notify.ErrDispatchFailed
	}
	return inv, nil
}

// MarkPaid settles a sent or overdue invoice.
func (s *Service) MarkPaid(ctx context.Context, orgID, id string) (*Invoice, error) {
	inv, err := s.getOrgInvoice(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.refreshOverdue(ctx, inv); err != nil {
		return nil, err
	}
	if inv.Status != InvoiceSent && inv.Status != InvoiceOverdue {
		return nil, ErrInvalidState
	}
	now := s.now()
	inv.Status = InvoicePaid
	inv.PaidDate = &now
	inv.UpdatedAt = now
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	metrics.InvoicesTotal.WithLabelValues(string(InvoicePaid)).Inc()
	return inv, nil
}

// Cancel voids an invoice from any state but paid. The caller must
// confirm explicitly; cancellation is terminal.
func (s *Service) Cancel(ctx context.Context, orgID, id string, confirm bool) (*Invoice, error) {
	if !confirm {
		var errs validation.FieldErrors
		errs.Add("confirm", "cancellation must be confirmed")
		return nil, apperr.Validation("confirmation required", errs)
	}
	inv, err := s.getOrgInvoice(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoicePaid {
		return nil, ErrInvalidState
	}
	if inv.Status == InvoiceCancelled {
		return inv, nil
	}
	now := s.now()
	inv.Status = InvoiceCancelled
	inv.UpdatedAt = now
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	metrics.InvoicesTotal.WithLabelValues(string(InvoiceCancelled)).Inc()
	return inv, nil
}

// TenantInvoices returns a tenant's non-draft invoices across all leases.
func (s *Service) TenantInvoices(ctx context.Context, tenantID string) ([]*Invoice, error) {
	leases, err := s.leases.ListByTenant(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	var out []*Invoice
	for _, l := range leases {
		invoices, err := s.store.ListInvoicesByLease(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		for _, inv := range invoices {
			if inv.Status == InvoiceDraft || inv.Status == InvoiceCancelled {
				continue
			}
			if err := s.refreshOverdue(ctx, inv); err != nil {
				return nil, err
			}
			out = append(out, inv)
		}
	}
	return out, nil
}

// TenantInvoice returns one of the tenant's invoices with items. Drafts
// and other tenants' invoices read as absent.
func (s *Service) TenantInvoice(ctx context.Context, tenantID, invoiceID string) (*Invoice, []*InvoiceItem, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.leases.TenantLease(ctx, tenantID, inv.LeaseID); err != nil {
		return nil, nil, ErrInvoiceNotFound
	}
	if inv.Status == InvoiceDraft {
		return nil, nil, ErrInvoiceNotFound
	}
	if err := s.refreshOverdue(ctx, inv); err != nil {
		return nil, nil, err
	}
	items, err := s.store.ListItems(ctx, inv.ID)
	if err != nil {
		return nil, nil, err
	}
	return inv, items, nil
}

// recomputeTotals is the sole writer of the invoice's derived totals.
func (s *Service) recomputeTotals(inv *Invoice, items []*InvoiceItem) {
	inv.Subtotal, inv.TaxTotal, inv.Total = Aggregate(items)
	inv.UpdatedAt = s.now()
}

// refreshOverdue applies the lazy due date sweep: a sent invoice past its
// due date becomes overdue on access.
func (s *Service) refreshOverdue(ctx context.Context, inv *Invoice) error {
	if inv.Status != InvoiceSent {
		return nil
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !inv.DueDate.Before(today) {
		return nil
	}
	inv.Status = InvoiceOverdue
	inv.UpdatedAt = now
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return err
	}
	metrics.InvoicesTotal.WithLabelValues(string(InvoiceOverdue)).Inc()
	return nil
}

func (s *Service) getOrgInvoice(ctx context.Context, orgID, id string) (*Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.OrgID != orgID {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}
