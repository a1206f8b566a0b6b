package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kalvisk/namura/internal/money"
)

// PostgresStore persists taxes, invoices and items in Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const taxColumns = `id, org_id, name, category, rate_bp, is_default, created_at, updated_at`

const invoiceColumns = `id, org_id, lease_id, number, issue_date, due_date,
	period_start, period_end, subtotal, tax_total, total, status,
	is_sent, sent_date, paid_date, notes, created_at, updated_at`

const itemColumns = `id, org_id, invoice_id, description, quantity, unit_price,
	amount, tax_id, tax_amount, item_type, created_at, updated_at`

func (s *PostgresStore) CreateTax(ctx context.Context, t *Tax) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if t.IsDefault {
			if err := clearDefaultTax(ctx, tx, t.OrgID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO taxes (`+taxColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.OrgID, t.Name, t.Category, t.RateBP, t.IsDefault, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert tax: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetTax(ctx context.Context, id string) (*Tax, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taxColumns+` FROM taxes WHERE id = $1`, id)
	return scanTax(row)
}

func (s *PostgresStore) UpdateTax(ctx context.Context, t *Tax) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if t.IsDefault {
			if err := clearDefaultTax(ctx, tx, t.OrgID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE taxes
			SET name = $2, category = $3, rate_bp = $4, is_default = $5, updated_at = $6
			WHERE id = $1`,
			t.ID, t.Name, t.Category, t.RateBP, t.IsDefault, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update tax: %w", err)
		}
		return affected(res, ErrTaxNotFound)
	})
}

func (s *PostgresStore) DeleteTax(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM taxes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tax: %w", err)
	}
	return affected(res, ErrTaxNotFound)
}

func (s *PostgresStore) ListTaxes(ctx context.Context, orgID string) ([]*Tax, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taxColumns+` FROM taxes WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list taxes: %w", err)
	}
	defer rows.Close()

	var out []*Tax
	for rows.Next() {
		var t Tax
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.Category, &t.RateBP,
			&t.IsDefault, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tax: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetDefaultTax(ctx context.Context, orgID, taxID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := clearDefaultTax(ctx, tx, orgID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE taxes SET is_default = TRUE, updated_at = NOW()
			WHERE id = $1 AND org_id = $2`, taxID, orgID)
		if err != nil {
			return fmt.Errorf("set default tax: %w", err)
		}
		return affected(res, ErrTaxNotFound)
	})
}

func (s *PostgresStore) TaxReferenceCount(ctx context.Context, taxID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoice_items WHERE tax_id = $1`, taxID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tax references: %w", err)
	}
	return n, nil
}

func clearDefaultTax(ctx context.Context, tx *sql.Tx, orgID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE taxes SET is_default = FALSE, updated_at = NOW()
		WHERE org_id = $1 AND is_default`, orgID)
	if err != nil {
		return fmt.Errorf("clear default tax: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountInvoicesInMonth(ctx context.Context, orgID string, year int, month time.Month) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices
		WHERE org_id = $1
		  AND EXTRACT(YEAR FROM issue_date) = $2
		  AND EXTRACT(MONTH FROM issue_date) = $3`,
		orgID, year, int(month)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateInvoice(ctx context.Context, inv *Invoice, items []*InvoiceItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			inv.ID, inv.OrgID, inv.LeaseID, inv.Number, inv.IssueDate, inv.DueDate,
			inv.PeriodStart, inv.PeriodEnd, int64(inv.Subtotal), int64(inv.TaxTotal),
			int64(inv.Total), inv.Status, inv.IsSent, nullTime(inv.SentDate),
			nullTime(inv.PaidDate), inv.Notes, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			if isUnique(err, "invoices_org_number_key") {
				return errNumberTaken
			}
			return fmt.Errorf("insert invoice: %w", err)
		}
		return insertItems(ctx, tx, items)
	})
}

func (s *PostgresStore) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

func (s *PostgresStore) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET issue_date = $2, due_date = $3, period_start = $4, period_end = $5,
		    subtotal = $6, tax_total = $7, total = $8, status = $9, is_sent = $10,
		    sent_date = $11, paid_date = $12, notes = $13, updated_at = $14
		WHERE id = $1`,
		inv.ID, inv.IssueDate, inv.DueDate, inv.PeriodStart, inv.PeriodEnd,
		int64(inv.Subtotal), int64(inv.TaxTotal), int64(inv.Total), inv.Status,
		inv.IsSent, nullTime(inv.SentDate), nullTime(inv.PaidDate), inv.Notes,
		inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return affected(res, ErrInvoiceNotFound)
}

func (s *PostgresStore) ListInvoices(ctx context.Context, orgID string, f InvoiceFilter) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE org_id = $1`
	args := []any{orgID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.LeaseID != "" {
		args = append(args, f.LeaseID)
		query += fmt.Sprintf(" AND lease_id = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND issue_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND issue_date < $%d", len(args))
	}
	query += ` ORDER BY issue_date DESC, created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoiceRows(rows)
}

func (s *PostgresStore) ListInvoicesByLease(ctx context.Context, leaseID string) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE lease_id = $1
		ORDER BY issue_date DESC, created_at DESC`, leaseID)
	if err != nil {
		return nil, fmt.Errorf("list lease invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoiceRows(rows)
}

func (s *PostgresStore) NonDraftForMonth(ctx context.Context, leaseID string, from, to time.Time) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE lease_id = $1 AND status IN ('sent', 'paid', 'overdue')
		  AND issue_date >= $2 AND issue_date < $3
		ORDER BY issue_date
		LIMIT 1`, leaseID, from, to)
	return scanInvoice(row)
}

func (s *PostgresStore) ListItems(ctx context.Context, invoiceID string) ([]*InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY created_at, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	defer rows.Close()

	var out []*InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		var qty, unitPrice, amount, taxAmount int64
		var taxID sql.NullString
		if err := rows.Scan(&it.ID, &it.OrgID, &it.InvoiceID, &it.Description,
			&qty, &unitPrice, &amount, &taxID, &taxAmount, &it.Type,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		it.Quantity = money.Cents(qty)
		it.UnitPrice = money.Cents(unitPrice)
		it.Amount = money.Cents(amount)
		it.TaxAmount = money.Cents(taxAmount)
		it.TaxID = taxID.String
		out = append(out, &it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceItems(ctx context.Context, inv *Invoice, items []*InvoiceItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("clear invoice items: %w", err)
		}
		if err := insertItems(ctx, tx, items); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE invoices
			SET subtotal = $2, tax_total = $3, total = $4, updated_at = $5
			WHERE id = $1`,
			inv.ID, int64(inv.Subtotal), int64(inv.TaxTotal), int64(inv.Total), inv.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update invoice totals: %w", err)
		}
		return affected(res, ErrInvoiceNotFound)
	})
}

func insertItems(ctx context.Context, tx *sql.Tx, items []*InvoiceItem) error {
	for _, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			it.ID, it.OrgID, it.InvoiceID, it.Description, int64(it.Quantity),
			int64(it.UnitPrice), int64(it.Amount), nullString(it.TaxID),
			int64(it.TaxAmount), it.Type, it.CreatedAt, it.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanTax(row *sql.Row) (*Tax, error) {
	var t Tax
	err := row.Scan(&t.ID, &t.OrgID, &t.Name, &t.Category, &t.RateBP,
		&t.IsDefault, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tax: %w", err)
	}
	return &t, nil
}

func scanInvoice(row *sql.Row) (*Invoice, error) {
	var inv Invoice
	var subtotal, taxTotal, total int64
	var sent, paid sql.NullTime
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.LeaseID, &inv.Number, &inv.IssueDate,
		&inv.DueDate, &inv.PeriodStart, &inv.PeriodEnd, &subtotal, &taxTotal,
		&total, &inv.Status, &inv.IsSent, &sent, &paid, &inv.Notes,
		&inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	applyInvoiceNulls(&inv, subtotal, taxTotal, total, sent, paid)
	return &inv, nil
}

func scanInvoiceRows(rows *sql.Rows) ([]*Invoice, error) {
	var out []*Invoice
	for rows.Next() {
		var inv Invoice
		var subtotal, taxTotal, total int64
		var sent, paid sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.OrgID, &inv.LeaseID, &inv.Number,
			&inv.IssueDate, &inv.DueDate, &inv.PeriodStart, &inv.PeriodEnd,
			&subtotal, &taxTotal, &total, &inv.Status, &inv.IsSent, &sent, &paid,
			&inv.Notes, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		applyInvoiceNulls(&inv, subtotal, taxTotal, total, sent, paid)
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func applyInvoiceNulls(inv *Invoice, subtotal, taxTotal, total int64, sent, paid sql.NullTime) {
	inv.Subtotal = money.Cents(subtotal)
	inv.TaxTotal = money.Cents(taxTotal)
	inv.Total = money.Cents(total)
	if sent.Valid {
		inv.SentDate = &sent.Time
	}
	if paid.Valid {
		inv.PaidDate = &paid.Time
	}
}

func isUnique(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint == constraint || constraint == ""
	}
	return false
}

func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
