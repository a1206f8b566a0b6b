package subscription

import "context"

// Store persists subscriptions, one per organization.
type Store interface {
	Create(ctx context.Context, s *Subscription) error
	GetByOrg(ctx context.Context, orgID string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}
