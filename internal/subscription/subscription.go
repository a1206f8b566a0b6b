// Package subscription provides the plan catalogue, per-organization
// subscriptions, and the resource gate that enforces plan limits.
package subscription

import (
	"errors"
	"time"

	"github.com/kalvisk/namura/internal/money"
)

// Errors
var (
	ErrPlanNotFound         = errors.New("subscription: plan not found")
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	ErrNoActiveSubscription = errors.New("subscription: no active subscription")
	ErrLimitReached         = errors.New("subscription: plan limit reached")
)

// Status represents a subscription's billing state. Only StatusActive
// satisfies the gate; a trial or past-due subscription admits nothing.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusTrialing Status = "trialing"
)

// BillingPeriod determines how far each payment extends the subscription.
type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

// PlanCode identifies a pricing tier.
type PlanCode string

const (
	PlanStarter   PlanCode = "starter"
	PlanGrowth    PlanCode = "growth"
	PlanPortfolio PlanCode = "portfolio"
)

// Plan defines a tier's price and resource limits. A zero limit means
// unlimited.
type Plan struct {
	Code          PlanCode      `json:"code"`
	Name          string        `json:"name"`
	Price         money.Cents   `json:"price"`
	BillingPeriod BillingPeriod `json:"billingPeriod"`
	MaxProperties int           `json:"maxProperties"`
	MaxUnits      int           `json:"maxUnits"`
	MaxUsers      int           `json:"maxUsers"`

	EnableInvoicing       bool `json:"enableInvoicing"`
	EnableReports         bool `json:"enableReports"`
	EnableTenantPortal    bool `json:"enableTenantPortal"`
	EnableDocumentStorage bool `json:"enableDocumentStorage"`
}

// Plans is the hardcoded plan catalogue.
var Plans = map[PlanCode]Plan{
	PlanStarter: {
		Code:            PlanStarter,
		Name:            "Starter",
		Price:           1900,
		BillingPeriod:   BillingMonthly,
		MaxProperties:   5,
		MaxUnits:        50,
		MaxUsers:        3,
		EnableInvoicing: true,
	},
	PlanGrowth: {
		Code:               PlanGrowth,
		Name:               "Growth",
		Price:              4900,
		BillingPeriod:      BillingMonthly,
		MaxProperties:      20,
		MaxUnits:           200,
		MaxUsers:           10,
		EnableInvoicing:    true,
		EnableReports:      true,
		EnableTenantPortal: true,
	},
	PlanPortfolio: {
		Code:                  PlanPortfolio,
		Name:                  "Portfolio",
		Price:                 49900,
		BillingPeriod:         BillingYearly,
		MaxProperties:         0,
		MaxUnits:              0,
		MaxUsers:              0,
		EnableInvoicing:       true,
		EnableReports:         true,
		EnableTenantPortal:    true,
		EnableDocumentStorage: true,
	},
}

// ValidPlan reports whether code is a recognised plan.
func ValidPlan(code PlanCode) bool {
	_, ok := Plans[code]
	return ok
}

// Subscription binds one organization to a plan for a dated period.
type Subscription struct {
	ID              string     `json:"id"`
	OrgID           string     `json:"orgId"`
	Plan            PlanCode   `json:"plan"`
	Status          Status     `json:"status"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         time.Time  `json:"endDate"`
	LastPaymentDate *time.Time `json:"lastPaymentDate,omitempty"`
	NextPaymentDate *time.Time `json:"nextPaymentDate,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// IsActive reports whether the subscription admits gated operations on the
// given day: status must be active and the paid period must not have ended.
func (s *Subscription) IsActive(today time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	end := s.EndDate.Truncate(24 * time.Hour)
	day := today.Truncate(24 * time.Hour)
	return !end.Before(day)
}

// PeriodEnd returns the end date a payment on day start buys for the plan.
func PeriodEnd(p Plan, start time.Time) time.Time {
	if p.BillingPeriod == BillingYearly {
		return start.AddDate(0, 0, 365)
	}
	return start.AddDate(0, 0, 30)
}
