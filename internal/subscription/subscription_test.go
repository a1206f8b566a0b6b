package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSub(orgID string, plan PlanCode) *Subscription {
	today := time.Now().Truncate(24 * time.Hour)
	return &Subscription{
		ID: "sub_1", OrgID: orgID, Plan: plan, Status: StatusActive,
		StartDate: today, EndDate: today.AddDate(0, 0, 30),
	}
}

func TestGate_DenyClosed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gate := NewGate(store)

	// No subscription at all.
	err := gate.CanAddProperty(ctx, "org_1", 0)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	// Trialing is not active.
	sub := activeSub("org_1", PlanStarter)
	sub.Status = StatusTrialing
	require.NoError(t, store.Create(ctx, sub))
	err = gate.CanAddProperty(ctx, "org_1", 0)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	// An active subscription past its end date is not active either.
	sub.Status = StatusActive
	sub.EndDate = time.Now().AddDate(0, 0, -1)
	require.NoError(t, store.Update(ctx, sub))
	err = gate.CanAddUnit(ctx, "org_1", 0)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestGate_StrictLimits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gate := NewGate(store)
	require.NoError(t, store.Create(ctx, activeSub("org_1", PlanStarter)))

	// Starter allows 5 properties: 4 existing is fine, 5 is not.
	assert.NoError(t, gate.CanAddProperty(ctx, "org_1", 4))
	assert.ErrorIs(t, gate.CanAddProperty(ctx, "org_1", 5), ErrLimitReached)

	assert.NoError(t, gate.CanAddUnit(ctx, "org_1", 49))
	assert.ErrorIs(t, gate.CanAddUnit(ctx, "org_1", 50), ErrLimitReached)
}

func TestGate_MemberSeatsIncludeOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gate := NewGate(store)
	require.NoError(t, store.Create(ctx, activeSub("org_1", PlanStarter)))

	// Starter has 3 seats; the owner occupies one without a membership row,
	// so only 2 member rows fit.
	assert.NoError(t, gate.CanAddMember(ctx, "org_1", 1))
	assert.ErrorIs(t, gate.CanAddMember(ctx, "org_1", 2), ErrLimitReached)
}

func TestGate_UnlimitedPlan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	gate := NewGate(store)
	require.NoError(t, store.Create(ctx, activeSub("org_1", PlanPortfolio)))

	assert.NoError(t, gate.CanAddProperty(ctx, "org_1", 10000))
	assert.NoError(t, gate.CanAddUnit(ctx, "org_1", 10000))
	assert.NoError(t, gate.CanAddMember(ctx, "org_1", 10000))
}

func TestService_CheckoutAndRenew(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)

	sub, err := svc.Checkout(ctx, "org_1", PlanStarter)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, PlanStarter, sub.Plan)
	assert.Equal(t, 30, int(sub.EndDate.Sub(sub.StartDate).Hours()/24))

	// Renewal keeps the same row and moves the period.
	renewed, err := svc.Checkout(ctx, "org_1", PlanPortfolio)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, renewed.ID)
	assert.Equal(t, PlanPortfolio, renewed.Plan)
	assert.Equal(t, 365, int(renewed.EndDate.Sub(renewed.StartDate).Hours()/24))

	_, err = svc.Checkout(ctx, "org_1", PlanCode("gold"))
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)
	gate := NewGate(store)

	_, err := svc.Checkout(ctx, "org_1", PlanStarter)
	require.NoError(t, err)
	require.NoError(t, gate.CanAddProperty(ctx, "org_1", 0))

	sub, err := svc.Cancel(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, sub.Status)

	// Canceling closes the gate immediately.
	assert.ErrorIs(t, gate.CanAddProperty(ctx, "org_1", 0), ErrNoActiveSubscription)
}

func TestService_CurrentFlipsLapsedToPastDue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)

	sub := activeSub("org_1", PlanStarter)
	sub.EndDate = time.Now().AddDate(0, 0, -2)
	require.NoError(t, store.Create(ctx, sub))

	got, err := svc.Current(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, got.Status)

	stored, err := store.GetByOrg(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, StatusPastDue, stored.Status)
}
