package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/money"
	"github.com/kalvisk/namura/internal/property"
)

type allowAll struct{}

func (allowAll) CanAddProperty(context.Context, string, int) error { return nil }
func (allowAll) CanAddUnit(context.Context, string, int) error     { return nil }

func newTestService(t *testing.T) (*Service, *property.Unit) {
	t.Helper()
	propStore := property.NewMemoryStore()
	props := property.NewService(propStore, allowAll{})

	now := time.Now()
	require.NoError(t, propStore.CreateProperty(context.Background(), &property.Property{
		ID: "prop_1", OrgID: "org_1", Address: "Oak Lane 2", CreatedAt: now, UpdatedAt: now,
	}))
	unit := &property.Unit{
		ID: "unit_1", PropertyID: "prop_1", OrgID: "org_1", UnitNumber: "3",
		Status: property.UnitRented, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, propStore.CreateUnit(context.Background(), unit))

	return NewService(NewMemoryStore(), props), unit
}

func validIssue() IssueRequest {
	return IssueRequest{
		Type:        IssuePlumbing,
		Priority:    PriorityHigh,
		Description: "Kitchen sink leaking",
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(IssueReported, IssueAssigned))
	assert.True(t, CanTransition(IssueReported, IssueClosed)) // skipping forward is fine
	assert.True(t, CanTransition(IssueInProgress, IssueResolved))
	assert.False(t, CanTransition(IssueResolved, IssueInProgress))
	assert.False(t, CanTransition(IssueClosed, IssueClosed))
	assert.False(t, CanTransition(IssueStatus("bogus"), IssueClosed))
}

func TestService_ReportAndFilter(t *testing.T) {
	svc, unit := newTestService(t)

	issue, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", validIssue())
	require.NoError(t, err)
	assert.Equal(t, IssueReported, issue.Status)
	assert.True(t, issue.ShowEstimatedCost)

	req := validIssue()
	req.Type = IssueElectrical
	req.Priority = PriorityLow
	_, err = svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", req)
	require.NoError(t, err)

	all, err := svc.List(context.Background(), "org_1", IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	plumbing, err := svc.List(context.Background(), "org_1", IssueFilter{Type: IssuePlumbing})
	require.NoError(t, err)
	require.Len(t, plumbing, 1)
	assert.Equal(t, issue.ID, plumbing[0].ID)
}

func TestService_ReportValidation(t *testing.T) {
	svc, unit := newTestService(t)

	req := validIssue()
	req.Type = "leaky"
	_, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", req)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
}

func TestService_ReportUnknownUnit(t *testing.T) {
	svc, unit := newTestService(t)

	// wrong org reads as absent
	_, err := svc.Report(context.Background(), "org_2", unit.ID, "usr_m1", validIssue())
	assert.ErrorIs(t, err, property.ErrUnitNotFound)
}

func TestService_AssignSchedulesWork(t *testing.T) {
	svc, unit := newTestService(t)

	issue, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", validIssue())
	require.NoError(t, err)

	w, err := svc.Assign(context.Background(), "org_1", issue.ID, AssignRequest{
		AssignedTo:    "usr_w1",
		ScheduledDate: "2026-09-05",
	})
	require.NoError(t, err)
	assert.Equal(t, WorkScheduled, w.Status)
	assert.Equal(t, unit.ID, w.UnitID)
	// description falls back to the issue's
	assert.Equal(t, "Kitchen sink leaking", w.Description)

	got, err := svc.Get(context.Background(), "org_1", issue.ID)
	require.NoError(t, err)
	assert.Equal(t, IssueAssigned, got.Status)
}

func TestService_AssignClosedIssue(t *testing.T) {
	svc, unit := newTestService(t)

	issue, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", validIssue())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), "org_1", issue.ID, IssueClosed, "usr_m1")
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), "org_1", issue.ID, AssignRequest{
		AssignedTo:    "usr_w1",
		ScheduledDate: "2026-09-05",
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_ResolveCompletesOpenWork(t *testing.T) {
	svc, unit := newTestService(t)

	issue, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", validIssue())
	require.NoError(t, err)
	w, err := svc.Assign(context.Background(), "org_1", issue.ID, AssignRequest{
		AssignedTo:    "usr_w1",
		ScheduledDate: "2026-09-05",
	})
	require.NoError(t, err)

	resolved, err := svc.UpdateStatus(context.Background(), "org_1", issue.ID, IssueResolved, "usr_m2")
	require.NoError(t, err)
	assert.Equal(t, "usr_m2", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedDate)

	work, err := svc.WorkForIssue(context.Background(), "org_1", issue.ID)
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, w.ID, work[0].ID)
	assert.Equal(t, WorkCompleted, work[0].Status)
	require.NotNil(t, work[0].CompletedDate)

	// no moving backwards afterwards
	_, err = svc.UpdateStatus(context.Background(), "org_1", issue.ID, IssueInProgress, "usr_m2")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_CompleteWorkFeedsBilling(t *testing.T) {
	svc, unit := newTestService(t)

	issue, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", validIssue())
	require.NoError(t, err)
	w, err := svc.Assign(context.Background(), "org_1", issue.ID, AssignRequest{
		AssignedTo:    "usr_w1",
		ScheduledDate: "2026-09-05",
	})
	require.NoError(t, err)

	done, err := svc.CompleteWork(context.Background(), "org_1", w.ID, CompleteRequest{
		Cost:          "85.50",
		CompletedDate: "2026-09-07",
		Notes:         "Replaced the trap",
	})
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("85.50"), done.Cost)

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	billable, err := svc.CompletedForUnit(context.Background(), unit.ID, from, to)
	require.NoError(t, err)
	require.Len(t, billable, 1)
	assert.Equal(t, done.ID, billable[0].ID)

	// outside the window
	later, err := svc.CompletedForUnit(context.Background(), unit.ID, to, to.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, later)

	// already completed
	_, err = svc.CompleteWork(context.Background(), "org_1", w.ID, CompleteRequest{Cost: "1.00"})
	assert.ErrorIs(t, err, ErrNotCompletable)
}

func TestService_ZeroCostWorkNotBillable(t *testing.T) {
	svc, unit := newTestService(t)

	issue, err := svc.Report(context.Background(), "org_1", unit.ID, "usr_m1", validIssue())
	require.NoError(t, err)
	w, err := svc.Assign(context.Background(), "org_1", issue.ID, AssignRequest{
		AssignedTo:    "usr_w1",
		ScheduledDate: "2026-09-05",
	})
	require.NoError(t, err)

	_, err = svc.CompleteWork(context.Background(), "org_1", w.ID, CompleteRequest{
		Cost:          "0.00",
		CompletedDate: "2026-09-07",
	})
	require.NoError(t, err)

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	billable, err := svc.CompletedForUnit(context.Background(), unit.ID, from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, billable)
}
