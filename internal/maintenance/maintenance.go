// Package maintenance tracks reported unit issues and the repair work
// scheduled against them. Completed work with a positive cost becomes a
// billing candidate for the month it finished in.
package maintenance

import (
	"errors"
	"time"

	"github.com/kalvisk/namura/internal/money"
)

// Errors
var (
	ErrIssueNotFound       = errors.New("maintenance: issue not found")
	ErrMaintenanceNotFound = errors.New("maintenance: work record not found")
	ErrInvalidTransition   = errors.New("maintenance: invalid status transition")
	ErrNotCompletable      = errors.New("maintenance: work is not open")
)

// IssueType categorizes what broke.
type IssueType string

const (
	IssuePlumbing    IssueType = "plumbing"
	IssueElectrical  IssueType = "electrical"
	IssueStructural  IssueType = "structural"
	IssueAppliance   IssueType = "appliance"
	IssueHeating     IssueType = "heating"
	IssueWater       IssueType = "water"
	IssueVentilation IssueType = "ventilation"
	IssueSecurity    IssueType = "security"
	IssueOther       IssueType = "other"
)

// ValidIssueType reports whether t is a recognised issue type.
func ValidIssueType(t IssueType) bool {
	switch t {
	case IssuePlumbing, IssueElectrical, IssueStructural, IssueAppliance,
		IssueHeating, IssueWater, IssueVentilation, IssueSecurity, IssueOther:
		return true
	}
	return false
}

// Priority ranks urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// IssueStatus follows the chain reported → assigned → in_progress →
// resolved → closed. Transitions only move forward.
type IssueStatus string

const (
	IssueReported   IssueStatus = "reported"
	IssueAssigned   IssueStatus = "assigned"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
	IssueClosed     IssueStatus = "closed"
)

var issueStatusRank = map[IssueStatus]int{
	IssueReported:   0,
	IssueAssigned:   1,
	IssueInProgress: 2,
	IssueResolved:   3,
	IssueClosed:     4,
}

// CanTransition reports whether an issue may move from to next. Skipping
// forward is allowed (an issue may close without repair); moving back is not.
func CanTransition(from, next IssueStatus) bool {
	a, ok1 := issueStatusRank[from]
	b, ok2 := issueStatusRank[next]
	return ok1 && ok2 && b > a
}

// Issue is a reported problem on a unit.
type Issue struct {
	ID                 string      `json:"id"`
	OrgID              string      `json:"orgId"`
	UnitID             string      `json:"unitId"`
	ReportedBy         string      `json:"reportedBy"`
	Type               IssueType   `json:"type"`
	Priority           Priority    `json:"priority"`
	Status             IssueStatus `json:"status"`
	Description        string      `json:"description"`
	ExpectedCompletion *time.Time  `json:"expectedCompletion,omitempty"`
	ResolvedDate       *time.Time  `json:"resolvedDate,omitempty"`
	ResolvedBy         string      `json:"resolvedBy,omitempty"`
	EstimatedCost      money.Cents `json:"estimatedCost"`
	ShowEstimatedCost  bool        `json:"showEstimatedCost"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// WorkStatus tracks a scheduled repair.
type WorkStatus string

const (
	WorkScheduled  WorkStatus = "scheduled"
	WorkInProgress WorkStatus = "in_progress"
	WorkCompleted  WorkStatus = "completed"
	WorkCancelled  WorkStatus = "cancelled"
)

// Work is a repair assignment against an issue. Cost is recorded at
// completion and picked up by invoicing for the completion month.
type Work struct {
	ID            string      `json:"id"`
	OrgID         string      `json:"orgId"`
	IssueID       string      `json:"issueId"`
	UnitID        string      `json:"unitId"`
	AssignedTo    string      `json:"assignedTo"`
	ScheduledDate time.Time   `json:"scheduledDate"`
	CompletedDate *time.Time  `json:"completedDate,omitempty"`
	Description   string      `json:"description"`
	Cost          money.Cents `json:"cost"`
	Status        WorkStatus  `json:"status"`
	Notes         string      `json:"notes,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}
