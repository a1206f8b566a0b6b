package identity

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists principals and tokens in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreatePrincipal(ctx context.Context, pr *Principal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO principals (id, email, name, global_role, superuser, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		pr.ID, strings.ToLower(pr.Email), pr.Name, string(pr.GlobalRole), pr.Superuser, pr.CreatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrPrincipalExists
	}
	return err
}

func (p *PostgresStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	return p.scanPrincipal(p.db.QueryRowContext(ctx, `
		SELECT id, email, name, global_role, superuser, created_at
		FROM principals WHERE id = $1`, id))
}

func (p *PostgresStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	return p.scanPrincipal(p.db.QueryRowContext(ctx, `
		SELECT id, email, name, global_role, superuser, created_at
		FROM principals WHERE email = $1`, strings.ToLower(email)))
}

func (p *PostgresStore) scanPrincipal(row *sql.Row) (*Principal, error) {
	var pr Principal
	var role string
	err := row.Scan(&pr.ID, &pr.Email, &pr.Name, &role, &pr.Superuser, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}
	pr.GlobalRole = GlobalRole(role)
	return &pr, nil
}

func (p *PostgresStore) CreateToken(ctx context.Context, t *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO identity_tokens (hash, principal_id, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5)`,
		t.Hash, t.PrincipalID, t.CreatedAt, nullTime(t.ExpiresAt), t.Revoked,
	)
	return err
}

func (p *PostgresStore) GetToken(ctx context.Context, hash string) (*Token, error) {
	var t Token
	var expires sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT hash, principal_id, created_at, expires_at, revoked
		FROM identity_tokens WHERE hash = $1`, hash,
	).Scan(&t.Hash, &t.PrincipalID, &t.CreatedAt, &expires, &t.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		t.ExpiresAt = &expires.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
