package maintenance

import (
	"context"
	"time"
)

// IssueFilter narrows issue listings.
type IssueFilter struct {
	UnitID   string
	Status   IssueStatus
	Priority Priority
	Type     IssueType
}

// Store persists issues and repair work.
type Store interface {
	CreateIssue(ctx context.Context, i *Issue) error
	GetIssue(ctx context.Context, id string) (*Issue, error)
	UpdateIssue(ctx context.Context, i *Issue) error
	ListIssues(ctx context.Context, orgID string, f IssueFilter) ([]*Issue, error)
	ListIssuesByReporter(ctx context.Context, reporterID string) ([]*Issue, error)

	CreateWork(ctx context.Context, w *Work) error
	GetWork(ctx context.Context, id string) (*Work, error)
	UpdateWork(ctx context.Context, w *Work) error
	ListWorkByIssue(ctx context.Context, issueID string) ([]*Work, error)
	// ListCompletedWork returns completed work on a unit with positive cost
	// whose completion date falls in [from, to).
	ListCompletedWork(ctx context.Context, unitID string, from, to time.Time) ([]*Work, error)
}
