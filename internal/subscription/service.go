package subscription

import (
	"context"
	"time"

	"github.com/kalvisk/namura/internal/idgen"
	"github.com/kalvisk/namura/internal/logging"
)

// Service manages an organization's subscription lifecycle.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a subscription service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Current returns the organization's subscription, flipping an active
// subscription whose period has lapsed to past_due on read.
func (s *Service) Current(ctx context.Context, orgID string) (*Subscription, error) {
	sub, err := s.store.GetByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusActive && !sub.IsActive(s.now()) {
		sub.Status = StatusPastDue
		sub.UpdatedAt = s.now()
		if err := s.store.Update(ctx, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// Checkout activates the given plan for the organization, creating the
// subscription on first purchase and renewing it otherwise. Payment capture
// is out of scope; the caller has already verified the caller is the owner.
func (s *Service) Checkout(ctx context.Context, orgID string, code PlanCode) (*Subscription, error) {
	plan, ok := Plans[code]
	if !ok {
		return nil, ErrPlanNotFound
	}

	now := s.now()
	today := now.Truncate(24 * time.Hour)
	end := PeriodEnd(plan, today)

	sub, err := s.store.GetByOrg(ctx, orgID)
	if err == ErrSubscriptionNotFound {
		sub = &Subscription{
			ID:        idgen.WithPrefix("sub_"),
			OrgID:     orgID,
			Plan:      code,
			Status:    StatusActive,
			StartDate: today,
			EndDate:   end,
			CreatedAt: now,
			UpdatedAt: now,
		}
		sub.LastPaymentDate = &today
		sub.NextPaymentDate = &end
		if err := s.store.Create(ctx, sub); err != nil {
			return nil, err
		}
		logging.L(ctx).Info("subscription activated", "org_id", orgID, "plan", code)
		return sub, nil
	}
	if err != nil {
		return nil, err
	}

	sub.Plan = code
	sub.Status = StatusActive
	sub.StartDate = today
	sub.EndDate = end
	sub.LastPaymentDate = &today
	sub.NextPaymentDate = &end
	sub.UpdatedAt = now
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("subscription renewed", "org_id", orgID, "plan", code)
	return sub, nil
}

// Cancel marks the subscription canceled. The gate denies new resources from
// that point; existing data stays readable.
func (s *Service) Cancel(ctx context.Context, orgID string) (*Subscription, error) {
	sub, err := s.store.GetByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	sub.Status = StatusCanceled
	sub.UpdatedAt = s.now()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	logging.L(ctx).Info("subscription canceled", "org_id", orgID)
	return sub, nil
}
