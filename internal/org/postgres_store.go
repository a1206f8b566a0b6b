package org

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists org data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed org store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, slug, owner_id, address, reg_number, vat_number,
		email, phone, logo_key, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, o *Organization) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO organizations (`+orgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.Name, o.Slug, o.OwnerID, o.Address, o.RegNumber, o.VATNumber,
		o.Email, o.Phone, o.LogoKey, o.CreatedAt, o.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrSlugTaken
	}
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Organization, error) {
	return scanOrg(p.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return scanOrg(p.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
}

func (p *PostgresStore) Update(ctx context.Context, o *Organization) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE organizations SET
			name = $1, address = $2, reg_number = $3, vat_number = $4,
			email = $5, phone = $6, logo_key = $7, updated_at = $8
		WHERE id = $9`,
		o.Name, o.Address, o.RegNumber, o.VATNumber,
		o.Email, o.Phone, o.LogoKey, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrOrgNotFound)
}

func (p *PostgresStore) ListByPrincipal(ctx context.Context, principalID string) ([]*Organization, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orgColumns+` FROM organizations o
		WHERE o.owner_id = $1
		   OR EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.org_id = o.id AND m.principal_id = $1 AND m.active
		   )
		ORDER BY o.created_at`, principalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.OwnerID, &o.Address, &o.RegNumber,
			&o.VATNumber, &o.Email, &o.Phone, &o.LogoKey, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &o)
	}
	return result, rows.Err()
}

func scanOrg(row *sql.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.OwnerID, &o.Address, &o.RegNumber,
		&o.VATNumber, &o.Email, &o.Phone, &o.LogoKey, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const membershipColumns = `id, org_id, principal_id, role, active, created_at, updated_at`

func (p *PostgresStore) CreateMembership(ctx context.Context, m *Membership) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.OrgID, m.PrincipalID, string(m.Role), m.Active, m.CreatedAt, m.UpdatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrMemberExists
	}
	return err
}

func (p *PostgresStore) GetMembership(ctx context.Context, orgID, principalID string) (*Membership, error) {
	return scanMembership(p.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM memberships
		WHERE org_id = $1 AND principal_id = $2`, orgID, principalID))
}

func (p *PostgresStore) GetMembershipByID(ctx context.Context, id string) (*Membership, error) {
	return scanMembership(p.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+` FROM memberships WHERE id = $1`, id))
}

func (p *PostgresStore) UpdateMembership(ctx context.Context, m *Membership) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE memberships SET role = $1, active = $2, updated_at = $3
		WHERE id = $4`,
		string(m.Role), m.Active, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrMemberNotFound)
}

func (p *PostgresStore) DeleteMembership(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result, ErrMemberNotFound)
}

func (p *PostgresStore) ListMemberships(ctx context.Context, orgID string) ([]*Membership, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+membershipColumns+` FROM memberships
		WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Membership
	for rows.Next() {
		m, err := scanMembershipRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountMemberships(ctx context.Context, orgID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships WHERE org_id = $1`, orgID).Scan(&count)
	return count, err
}

func scanMembership(row *sql.Row) (*Membership, error) {
	var m Membership
	var role string
	err := row.Scan(&m.ID, &m.OrgID, &m.PrincipalID, &role, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Role = Role(role)
	return &m, nil
}

func scanMembershipRows(rows *sql.Rows) (*Membership, error) {
	var m Membership
	var role string
	if err := rows.Scan(&m.ID, &m.OrgID, &m.PrincipalID, &role, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = Role(role)
	return &m, nil
}

const invitationColumns = `id, org_id, email, token, role, status, expires_at, created_at, updated_at`

func (p *PostgresStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO org_invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.OrgID, inv.Email, inv.Token, string(inv.Role), string(inv.Status),
		inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	return scanInvitation(p.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM org_invitations WHERE token = $1`, token))
}

func (p *PostgresStore) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	return scanInvitation(p.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM org_invitations WHERE id = $1`, id))
}

func (p *PostgresStore) UpdateInvitation(ctx context.Context, inv *Invitation) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE org_invitations SET status = $1, updated_at = $2 WHERE id = $3`,
		string(inv.Status), inv.UpdatedAt, inv.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrInvitationNotFound)
}

func (p *PostgresStore) ListInvitations(ctx context.Context, orgID string) ([]*Invitation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+invitationColumns+` FROM org_invitations
		WHERE org_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Invitation
	for rows.Next() {
		var inv Invitation
		var role, status string
		if err := rows.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Token, &role, &status,
			&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		inv.Role = Role(role)
		inv.Status = InvitationStatus(status)
		result = append(result, &inv)
	}
	return result, rows.Err()
}

func scanInvitation(row *sql.Row) (*Invitation, error) {
	var inv Invitation
	var role, status string
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Token, &role, &status,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Role = Role(role)
	inv.Status = InvitationStatus(status)
	return &inv, nil
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
