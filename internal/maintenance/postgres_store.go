package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kalvisk/namura/internal/money"
)

// PostgresStore persists issues and repair work in Postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const issueColumns = `id, org_id, unit_id, reported_by, issue_type, priority, status,
	description, expected_completion, resolved_date, resolved_by,
	estimated_cost, show_estimated_cost, created_at, updated_at`

const workColumns = `id, org_id, issue_id, unit_id, assigned_to, scheduled_date,
	completed_date, description, cost, status, notes, created_at, updated_at`

func (s *PostgresStore) CreateIssue(ctx context.Context, i *Issue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		i.ID, i.OrgID, i.UnitID, i.ReportedBy, i.Type, i.Priority, i.Status,
		i.Description, nullTime(i.ExpectedCompletion), nullTime(i.ResolvedDate),
		nullString(i.ResolvedBy), int64(i.EstimatedCost), i.ShowEstimatedCost,
		i.CreatedAt, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, id string) (*Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	return scanIssue(row)
}

func (s *PostgresStore) UpdateIssue(ctx context.Context, i *Issue) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE issues
		SET issue_type = $2, priority = $3, status = $4, description = $5,
		    expected_completion = $6, resolved_date = $7, resolved_by = $8,
		    estimated_cost = $9, show_estimated_cost = $10, updated_at = $11
		WHERE id = $1`,
		i.ID, i.Type, i.Priority, i.Status, i.Description,
		nullTime(i.ExpectedCompletion), nullTime(i.ResolvedDate),
		nullString(i.ResolvedBy), int64(i.EstimatedCost), i.ShowEstimatedCost,
		i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return affected(res, ErrIssueNotFound)
}

func (s *PostgresStore) ListIssues(ctx context.Context, orgID string, f IssueFilter) ([]*Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE org_id = $1`
	args := []any{orgID}
	add := func(col string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND %s = $%d", col, len(args))
	}
	if f.UnitID != "" {
		add("unit_id", f.UnitID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.Priority != "" {
		add("priority", f.Priority)
	}
	if f.Type != "" {
		add("issue_type", f.Type)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()
	return scanIssueRows(rows)
}

func (s *PostgresStore) ListIssuesByReporter(ctx context.Context, reporterID string) ([]*Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+issueColumns+` FROM issues
		WHERE reported_by = $1
		ORDER BY created_at DESC`, reporterID)
	if err != nil {
		return nil, fmt.Errorf("list reported issues: %w", err)
	}
	defer rows.Close()
	return scanIssueRows(rows)
}

func (s *PostgresStore) CreateWork(ctx context.Context, w *Work) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_work (`+workColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.OrgID, w.IssueID, w.UnitID, w.AssignedTo, w.ScheduledDate,
		nullTime(w.CompletedDate), w.Description, int64(w.Cost), w.Status,
		w.Notes, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert maintenance work: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWork(ctx context.Context, id string) (*Work, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workColumns+` FROM maintenance_work WHERE id = $1`, id)
	return scanWork(row)
}

func (s *PostgresStore) UpdateWork(ctx context.Context, w *Work) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_work
		SET assigned_to = $2, scheduled_date = $3, completed_date = $4,
		    description = $5, cost = $6, status = $7, notes = $8, updated_at = $9
		WHERE id = $1`,
		w.ID, w.AssignedTo, w.ScheduledDate, nullTime(w.CompletedDate),
		w.Description, int64(w.Cost), w.Status, w.Notes, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update maintenance work: %w", err)
	}
	return affected(res, ErrMaintenanceNotFound)
}

func (s *PostgresStore) ListWorkByIssue(ctx context.Context, issueID string) ([]*Work, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workColumns+` FROM maintenance_work
		WHERE issue_id = $1
		ORDER BY created_at`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list work: %w", err)
	}
	defer rows.Close()
	return scanWorkRows(rows)
}

func (s *PostgresStore) ListCompletedWork(ctx context.Context, unitID string, from, to time.Time) ([]*Work, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workColumns+` FROM maintenance_work
		WHERE unit_id = $1 AND status = 'completed' AND cost > 0
		  AND completed_date >= $2 AND completed_date < $3
		ORDER BY completed_date`, unitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list completed work: %w", err)
	}
	defer rows.Close()
	return scanWorkRows(rows)
}

func scanIssue(row *sql.Row) (*Issue, error) {
	var i Issue
	var expected, resolved sql.NullTime
	var resolvedBy sql.NullString
	var cost int64
	err := row.Scan(&i.ID, &i.OrgID, &i.UnitID, &i.ReportedBy, &i.Type, &i.Priority,
		&i.Status, &i.Description, &expected, &resolved, &resolvedBy,
		&cost, &i.ShowEstimatedCost, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan issue: %w", err)
	}
	applyIssueNulls(&i, expected, resolved, resolvedBy, cost)
	return &i, nil
}

func scanIssueRows(rows *sql.Rows) ([]*Issue, error) {
	var out []*Issue
	for rows.Next() {
		var i Issue
		var expected, resolved sql.NullTime
		var resolvedBy sql.NullString
		var cost int64
		if err := rows.Scan(&i.ID, &i.OrgID, &i.UnitID, &i.ReportedBy, &i.Type,
			&i.Priority, &i.Status, &i.Description, &expected, &resolved,
			&resolvedBy, &cost, &i.ShowEstimatedCost, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		applyIssueNulls(&i, expected, resolved, resolvedBy, cost)
		out = append(out, &i)
	}
	return out, rows.Err()
}

func applyIssueNulls(i *Issue, expected, resolved sql.NullTime, resolvedBy sql.NullString, cost int64) {
	if expected.Valid {
		i.ExpectedCompletion = &expected.Time
	}
	if resolved.Valid {
		i.ResolvedDate = &resolved.Time
	}
	i.ResolvedBy = resolvedBy.String
	i.EstimatedCost = money.Cents(cost)
}

func scanWork(row *sql.Row) (*Work, error) {
	var w Work
	var completed sql.NullTime
	var cost int64
	err := row.Scan(&w.ID, &w.OrgID, &w.IssueID, &w.UnitID, &w.AssignedTo,
		&w.ScheduledDate, &completed, &w.Description, &cost, &w.Status,
		&w.Notes, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMaintenanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan maintenance work: %w", err)
	}
	if completed.Valid {
		w.CompletedDate = &completed.Time
	}
	w.Cost = money.Cents(cost)
	return &w, nil
}

func scanWorkRows(rows *sql.Rows) ([]*Work, error) {
	var out []*Work
	for rows.Next() {
		var w Work
		var completed sql.NullTime
		var cost int64
		if err := rows.Scan(&w.ID, &w.OrgID, &w.IssueID, &w.UnitID, &w.AssignedTo,
			&w.ScheduledDate, &completed, &w.Description, &cost, &w.Status,
			&w.Notes, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan maintenance work: %w", err)
		}
		if completed.Valid {
			w.CompletedDate = &completed.Time
		}
		w.Cost = money.Cents(cost)
		out = append(out, &w)
	}
	return out, rows.Err()
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
