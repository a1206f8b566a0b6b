package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	taxes    map[string]*Tax
	invoices map[string]*Invoice
	items    map[string]*InvoiceItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		taxes:    make(map[string]*Tax),
		invoices: make(map[string]*Invoice),
		items:    make(map[string]*InvoiceItem),
	}
}

func (s *MemoryStore) CreateTax(_ context.Context, t *Tax) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.IsDefault {
		s.clearDefaultLocked(t.OrgID)
	}
	cp := *t
	s.taxes[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTax(_ context.Context, id string) (*Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.taxes[id]
	if !ok {
		return nil, ErrTaxNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpdateTax(_ context.Context, t *Tax) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxes[t.ID]; !ok {
		return ErrTaxNotFound
	}
	if t.IsDefault {
		s.clearDefaultLocked(t.OrgID)
	}
	cp := *t
	s.taxes[t.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTax(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxes[id]; !ok {
		return ErrTaxNotFound
	}
	delete(s.taxes, id)
	return nil
}

func (s *MemoryStore) ListTaxes(_ context.Context, orgID string) ([]*Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Tax
	for _, t := range s.taxes {
		if t.OrgID != orgID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetDefaultTax(_ context.Context, orgID, taxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.taxes[taxID]
	if !ok || t.OrgID != orgID {
		return ErrTaxNotFound
	}
	s.clearDefaultLocked(orgID)
	t.IsDefault = true
	return nil
}

func (s *MemoryStore) TaxReferenceCount(_ context.Context, taxID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if it.TaxID == taxID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) clearDefaultLocked(orgID string) {
	for _, t := range s.taxes {
		if t.OrgID == orgID && t.IsDefault {
			t.IsDefault = false
		}
	}
}

func (s *MemoryStore) CountInvoicesInMonth(_ context.Context, orgID string, year int, month time.Month) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, inv := range s.invoices {
		if inv.OrgID == orgID && inv.IssueDate.Year() == year && inv.IssueDate.Month() == month {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateInvoice(_ context.Context, inv *Invoice, items []*InvoiceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.invoices {
		if other.OrgID == inv.OrgID && other.Number == inv.Number {
			return errNumberTaken
		}
	}
	cp := *inv
	s.invoices[inv.ID] = &cp
	for _, it := range items {
		icp := *it
		s.items[it.ID] = &icp
	}
	return nil
}

func (s *MemoryStore) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) UpdateInvoice(_ context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; !ok {
		return ErrInvoiceNotFound
	}
	cp := *inv
	s.invoices[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) ListInvoices(_ context.Context, orgID string, f InvoiceFilter) ([]*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Invoice
	for _, inv := range s.invoices {
		if inv.OrgID != orgID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.LeaseID != "" && inv.LeaseID != f.LeaseID {
			continue
		}
		if !f.From.IsZero() && inv.IssueDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !inv.IssueDate.Before(f.To) {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sortInvoices(out)
	return out, nil
}

func (s *MemoryStore) ListInvoicesByLease(_ context.Context, leaseID string) ([]*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Invoice
	for _, inv := range s.invoices {
		if inv.LeaseID != leaseID {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sortInvoices(out)
	return out, nil
}

func (s *MemoryStore) NonDraftForMonth(_ context.Context, leaseID string, from, to time.Time) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.LeaseID != leaseID {
			continue
		}
		if inv.Status != InvoiceSent && inv.Status != InvoicePaid && inv.Status != InvoiceOverdue {
			continue
		}
		if inv.IssueDate.Before(from) || !inv.IssueDate.Before(to) {
			continue
		}
		cp := *inv
		return &cp, nil
	}
	return nil, ErrInvoiceNotFound
}

func (s *MemoryStore) ListItems(_ context.Context, invoiceID string) ([]*InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*InvoiceItem
	for _, it := range s.items {
		if it.InvoiceID != invoiceID {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ReplaceItems(_ context.Context, inv *Invoice, items []*InvoiceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; !ok {
		return ErrInvoiceNotFound
	}
	for id, it := range s.items {
		if it.InvoiceID == inv.ID {
			delete(s.items, id)
		}
	}
	for _, it := range items {
		cp := *it
		s.items[it.ID] = &cp
	}
	icp := *inv
	s.invoices[inv.ID] = &icp
	return nil
}

func sortInvoices(invoices []*Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].IssueDate.After(invoices[j].IssueDate)
	})
}
