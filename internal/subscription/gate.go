package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/kalvisk/namura/internal/apperr"
	"github.com/kalvisk/namura/internal/metrics"
)

// Gate enforces plan limits before resource creation. Every check is
// deny-closed: without a stored, active subscription nothing may be added.
//
// Counts are supplied by the caller from its own store; the gate compares
// them against the plan with strict less-than, so a count already at the
// limit is denied.
type Gate struct {
	store Store
	now   func() time.Time
}

// NewGate creates a gate over the subscription store.
func NewGate(store Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

// CanAddProperty reports whether the organization may register one more
// property given its current property count.
func (g *Gate) CanAddProperty(ctx context.Context, orgID string, propertyCount int) error {
	return g.check(ctx, orgID, "properties", propertyCount, func(p Plan) int { return p.MaxProperties })
}

// CanAddUnit reports whether the organization may register one more unit
// given its current unit count across all properties.
func (g *Gate) CanAddUnit(ctx context.Context, orgID string, unitCount int) error {
	return g.check(ctx, orgID, "units", unitCount, func(p Plan) int { return p.MaxUnits })
}

// CanAddMember reports whether the organization may take one more member.
// The owner holds a seat without a membership row, so the occupied seat
// count is memberCount plus one.
func (g *Gate) CanAddMember(ctx context.Context, orgID string, memberCount int) error {
	return g.check(ctx, orgID, "members", memberCount+1, func(p Plan) int { return p.MaxUsers })
}

func (g *Gate) check(ctx context.Context, orgID, resource string, used int, limit func(Plan) int) error {
	sub, err := g.store.GetByOrg(ctx, orgID)
	if err == ErrSubscriptionNotFound {
		metrics.GateDenialsTotal.WithLabelValues(resource).Inc()
		return &apperr.Error{
			Kind:    apperr.KindLimitExceeded,
			Message: "No active subscription",
			Err:     ErrNoActiveSubscription,
		}
	}
	if err != nil {
		return err
	}
	if !sub.IsActive(g.now()) {
		metrics.GateDenialsTotal.WithLabelValues(resource).Inc()
		return &apperr.Error{
			Kind:    apperr.KindLimitExceeded,
			Message: "No active subscription",
			Err:     ErrNoActiveSubscription,
		}
	}

	plan, ok := Plans[sub.Plan]
	if !ok {
		return fmt.Errorf("subscription %s references unknown plan %q", sub.ID, sub.Plan)
	}

	max := limit(plan)
	if max > 0 && used >= max {
		metrics.GateDenialsTotal.WithLabelValues(resource).Inc()
		return &apperr.Error{
			Kind:    apperr.KindLimitExceeded,
			Message: fmt.Sprintf("Plan %s allows at most %d %s", plan.Name, max, resource),
			Err:     ErrLimitReached,
		}
	}
	return nil
}
