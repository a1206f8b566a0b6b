package subscription

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists subscriptions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, org_id, plan, status, start_date, end_date,
		last_payment_date, next_payment_date, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, s *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.OrgID, string(s.Plan), string(s.Status), s.StartDate, s.EndDate,
		nullTime(s.LastPaymentDate), nullTime(s.NextPaymentDate), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetByOrg(ctx context.Context, orgID string) (*Subscription, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE org_id = $1`, orgID)

	var s Subscription
	var plan, status string
	var lastPayment, nextPayment sql.NullTime
	err := row.Scan(&s.ID, &s.OrgID, &plan, &status, &s.StartDate, &s.EndDate,
		&lastPayment, &nextPayment, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Plan = PlanCode(plan)
	s.Status = Status(status)
	if lastPayment.Valid {
		s.LastPaymentDate = &lastPayment.Time
	}
	if nextPayment.Valid {
		s.NextPaymentDate = &nextPayment.Time
	}
	return &s, nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Subscription) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			plan = $1, status = $2, start_date = $3, end_date = $4,
			last_payment_date = $5, next_payment_date = $6, updated_at = $7
		WHERE id = $8`,
		string(s.Plan), string(s.Status), s.StartDate, s.EndDate,
		nullTime(s.LastPaymentDate), nullTime(s.NextPaymentDate), s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
