package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kalvisk/namura/internal/money"
)

// PostgresStore persists leases and tenant invitations in Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const leaseColumns = `id, org_id, unit_id, tenant_id, start_date, end_date,
	rent_amount, security_deposit, status, created_at, updated_at`

const invitationColumns = `id, org_id, lease_id, email, token, status, expires_at, created_at, updated_at`

func (s *PostgresStore) CreateLease(ctx context.Context, l *Lease) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (`+leaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.OrgID, l.UnitID, nullString(l.TenantID), l.StartDate, l.EndDate,
		int64(l.RentAmount), int64(l.SecurityDeposit), l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert lease: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLease(ctx context.Context, id string) (*Lease, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+leaseColumns+` FROM leases WHERE id = $1`, id)
	return scanLease(row)
}

func (s *PostgresStore) UpdateLease(ctx context.Context, l *Lease) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leases
		SET tenant_id = $2, start_date = $3, end_date = $4, rent_amount = $5,
		    security_deposit = $6, status = $7, updated_at = $8
		WHERE id = $1`,
		l.ID, nullString(l.TenantID), l.StartDate, l.EndDate,
		int64(l.RentAmount), int64(l.SecurityDeposit), l.Status, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update lease: %w", err)
	}
	return affected(res, ErrLeaseNotFound)
}

func (s *PostgresStore) DeleteLease(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	return affected(res, ErrLeaseNotFound)
}

func (s *PostgresStore) ListLeases(ctx context.Context, orgID string, f ListFilter) ([]*Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE org_id = $1`
	args := []any{orgID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.UnitID != "" {
		args = append(args, f.UnitID)
		query += fmt.Sprintf(" AND unit_id = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	defer rows.Close()
	return scanLeaseRows(rows)
}

func (s *PostgresStore) ListLeasesByTenant(ctx context.Context, tenantID string, status Status) ([]*Lease, error) {
	query := `SELECT ` + leaseColumns + ` FROM leases WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $2`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenant leases: %w", err)
	}
	defer rows.Close()
	return scanLeaseRows(rows)
}

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *TenantInvitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.OrgID, inv.LeaseID, inv.Email, inv.Token, inv.Status,
		inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tenant invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (*TenantInvitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM tenant_invitations WHERE token = $1`, token)
	return scanInvitation(row)
}

func (s *PostgresStore) GetInvitationByLease(ctx context.Context, leaseID string) (*TenantInvitation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM tenant_invitations
		WHERE lease_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, leaseID)
	return scanInvitation(row)
}

func (s *PostgresStore) UpdateInvitation(ctx context.Context, inv *TenantInvitation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenant_invitations
		SET status = $2, expires_at = $3, updated_at = $4
		WHERE id = $1`,
		inv.ID, inv.Status, inv.ExpiresAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant invitation: %w", err)
	}
	return affected(res, ErrInvitationNotFound)
}

func scanLease(row *sql.Row) (*Lease, error) {
	var l Lease
	var tenantID sql.NullString
	var rent, deposit int64
	err := row.Scan(&l.ID, &l.OrgID, &l.UnitID, &tenantID, &l.StartDate, &l.EndDate,
		&rent, &deposit, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLeaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lease: %w", err)
	}
	l.TenantID = tenantID.String
	l.RentAmount = money.Cents(rent)
	l.SecurityDeposit = money.Cents(deposit)
	return &l, nil
}

func scanLeaseRows(rows *sql.Rows) ([]*Lease, error) {
	var out []*Lease
	for rows.Next() {
		var l Lease
		var tenantID sql.NullString
		var rent, deposit int64
		if err := rows.Scan(&l.ID, &l.OrgID, &l.UnitID, &tenantID, &l.StartDate, &l.EndDate,
			&rent, &deposit, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		l.TenantID = tenantID.String
		l.RentAmount = money.Cents(rent)
		l.SecurityDeposit = money.Cents(deposit)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func scanInvitation(row *sql.Row) (*TenantInvitation, error) {
	var inv TenantInvitation
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.LeaseID, &inv.Email, &inv.Token,
		&inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant invitation: %w", err)
	}
	return &inv, nil
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
