package maintenance

import (
	"context"
	"time"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/idgen"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/property"
	"github.com/kalvisk/namura/internal/validation"
)

// UnitService resolves units for org scoping. Reported issues must target
// a unit the organization owns.
type UnitService interface {
	GetUnit(ctx context.Context, orgID, id string) (*property.Unit, error)
}

// Service manages issues and the repair work scheduled against them.
type Service struct {
	store Store
	units UnitService
	now   func() time.Time
}

func NewService(store Store, units UnitService) *Service {
	return &Service{store: store, units: units, now: time.Now}
}

// IssueRequest carries the fields for reporting an issue.
type IssueRequest struct {
	Type               IssueType `json:"type" binding:"required"`
	Priority           Priority  `json:"priority" binding:"required"`
	Description        string    `json:"description" binding:"required"`
	ExpectedCompletion string    `json:"expectedCompletion"`
	EstimatedCost      string    `json:"estimatedCost"`
	ShowEstimatedCost  *bool     `json:"showEstimatedCost"`
}

// Report files a new issue against a unit. Both managers and the unit's
// tenant report through here; the caller decides who may.
func (s *Service) Report(ctx context.Context, orgID, unitID, reporterID string, req IssueRequest) (*Issue, error) {
	var errs validation.FieldErrors
	if !ValidIssueType(req.Type) {
		errs.Add("type", "must be a recognised issue type")
	}
	if !ValidPriority(req.Priority) {
		errs.Add("priority", "must be low, medium, high or critical")
	}
	if e := validation.ValidDate("expectedCompletion", req.ExpectedCompletion)(); e != nil {
		errs.Add(e.Field, e.Message)
	}
	if e := validation.NonNegativeAmount("estimatedCost", req.EstimatedCost)(); e != nil {
		errs.Add(e.Field, e.Message)
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid issue", errs)
	}

	if _, err := s.units.GetUnit(ctx, orgID, unitID); err != nil {
		return nil, err
	}

	now := s.now()
	issue := &Issue{
		ID:                idgen.WithPrefix("iss_"),
		OrgID:             orgID,
		UnitID:            unitID,
		ReportedBy:        reporterID,
		Type:              req.Type,
		Priority:          req.Priority,
		Status:            IssueReported,
		Description:       validation.SanitizeString(req.Description, 4000),
		ShowEstimatedCost: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.ExpectedCompletion != "" {
		d, _ := time.Parse(validation.DateFormat, req.ExpectedCompletion)
		issue.ExpectedCompletion = &d
	}
	if req.EstimatedCost != "" {
		issue.EstimatedCost = money.MustParse(req.EstimatedCost)
	}
	if req.ShowEstimatedCost != nil {
		issue.ShowEstimatedCost = *req.ShowEstimatedCost
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// Get returns an issue scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Issue, error) {
	return s.getOrgIssue(ctx, orgID, id)
}

// List returns the organization's issues, newest first.
func (s *Service) List(ctx context.Context, orgID string, f IssueFilter) ([]*Issue, error) {
	return s.store.ListIssues(ctx, orgID, f)
}

// ListReported returns all issues a principal has filed, across leases.
func (s *Service) ListReported(ctx context.Context, reporterID string) ([]*Issue, error) {
	return s.store.ListIssuesByReporter(ctx, reporterID)
}

// AssignRequest schedules repair work for an issue.
type AssignRequest struct {
	AssignedTo    string `json:"assignedTo" binding:"required"`
	ScheduledDate string `json:"scheduledDate" binding:"required"`
	Description   string `json:"description"`
}

// Assign creates a scheduled work record and moves the issue to assigned.
// Resolved and closed issues take no further work.
func (s *Service) Assign(ctx context.Context, orgID, issueID string, req AssignRequest) (*Work, error) {
	errs := validation.Validate(
		validation.ValidDate("scheduledDate", req.ScheduledDate),
	)
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid assignment", errs)
	}

	issue, err := s.getOrgIssue(ctx, orgID, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Status == IssueResolved || issue.Status == IssueClosed {
		return nil, ErrInvalidTransition
	}

	scheduled, _ := time.Parse(validation.DateFormat, req.ScheduledDate)
	now := s.now()
	desc := req.Description
	if desc == "" {
		desc = issue.Description
	}
	w := &Work{
		ID:            idgen.WithPrefix("wrk_"),
		OrgID:         orgID,
		IssueID:       issue.ID,
		UnitID:        issue.UnitID,
		AssignedTo:    req.AssignedTo,
		ScheduledDate: scheduled,
		Description:   validation.SanitizeString(desc, 4000),
		Status:        WorkScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateWork(ctx, w); err != nil {
		return nil, err
	}

	if issue.Status == IssueReported {
		issue.Status = IssueAssigned
		issue.UpdatedAt = now
		if err := s.store.UpdateIssue(ctx, issue); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// UpdateStatus advances an issue along its chain. Resolving or closing
// completes any open work record with the same timestamp.
func (s *Service) UpdateStatus(ctx context.Context, orgID, issueID string, next IssueStatus, actorID string) (*Issue, error) {
	issue, err := s.getOrgIssue(ctx, orgID, issueID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(issue.Status, next) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	issue.Status = next
	issue.UpdatedAt = now
	if next == IssueResolved || next == IssueClosed {
		issue.ResolvedBy = actorID
		issue.ResolvedDate = &now
	}
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, err
	}

	work, err := s.store.ListWorkByIssue(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	for _, w := range work {
		switch {
		case next == IssueInProgress && w.Status == WorkScheduled:
			w.Status = WorkInProgress
		case (next == IssueResolved || next == IssueClosed) &&
			(w.Status == WorkScheduled || w.Status == WorkInProgress):
			w.Status = WorkCompleted
			w.CompletedDate = &now
		default:
			continue
		}
		w.UpdatedAt = now
		if err := s.store.UpdateWork(ctx, w); err != nil {
			return nil, err
		}
	}
	return issue, nil
}

// WorkForIssue lists the repair records of an issue, oldest first.
func (s *Service) WorkForIssue(ctx context.Context, orgID, issueID string) ([]*Work, error) {
	if _, err := s.getOrgIssue(ctx, orgID, issueID); err != nil {
		return nil, err
	}
	return s.store.ListWorkByIssue(ctx, issueID)
}

// CompleteRequest records the outcome of scheduled work.
type CompleteRequest struct {
	Cost          string `json:"cost" binding:"required"`
	CompletedDate string `json:"completedDate"`
	Notes         string `json:"notes"`
}

// CompleteWork closes a work record with its final cost. Work completed
// with a positive cost becomes a billing candidate for the month the
// completion date falls in.
func (s *Service) CompleteWork(ctx context.Context, orgID, workID string, req CompleteRequest) (*Work, error) {
	errs := validation.Validate(
		validation.NonNegativeAmount("cost", req.Cost),
		validation.ValidDate("completedDate", req.CompletedDate),
	)
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid completion", errs)
	}

	w, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if w.OrgID != orgID {
		return nil, ErrMaintenanceNotFound
	}
	if w.Status != WorkScheduled && w.Status != WorkInProgress {
		return nil, ErrNotCompletable
	}

	now := s.now()
	completed := now
	if req.CompletedDate != "" {
		completed, _ = time.Parse(validation.DateFormat, req.CompletedDate)
	}
	w.Status = WorkCompleted
	w.CompletedDate = &completed
	w.Cost = money.MustParse(req.Cost)
	w.Notes = validation.SanitizeString(req.Notes, 4000)
	w.UpdatedAt = now
	if err := s.store.UpdateWork(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// CompletedForUnit returns billable completed work on a unit in [from, to).
func (s *Service) CompletedForUnit(ctx context.Context, unitID string, from, to time.Time) ([]*Work, error) {
	return s.store.ListCompletedWork(ctx, unitID, from, to)
}

func (s *Service) getOrgIssue(ctx context.Context, orgID, id string) (*Issue, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.OrgID != orgID {
		return nil, ErrIssueNotFound
	}
	return issue, nil
}
