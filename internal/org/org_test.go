package org

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalvisk/namura/internal/identity"
	"github.com/kalvisk/namura/internal/notify"
)

// openGate admits everything.
type openGate struct{}

func (openGate) CanAddMember(ctx context.Context, orgID string, memberCount int) error { return nil }

// closedGate denies everything with a fixed error.
type closedGate struct{ err error }

func (g closedGate) CanAddMember(ctx context.Context, orgID string, memberCount int) error {
	return g.err
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *notify.Recorder) {
	t.Helper()
	store := NewMemoryStore()
	rec := &notify.Recorder{}
	svc := NewService(store, openGate{}, rec, "https://app.namura.test", 7*24*time.Hour)
	return svc, store, rec
}

func ownerPrincipal() *identity.Principal {
	return &identity.Principal{ID: "prn_owner", Email: "owner@acme.lv", Name: "Owner"}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "acme-nami", Slugify("Acme Nami"))
	assert.Equal(t, "sia-berzi-2", Slugify("SIA  Berzi 2"))
	assert.True(t, ValidSlug("acme-nami"))
	assert.False(t, ValidSlug("Acme"))
	assert.False(t, ValidSlug("-leading"))
	assert.False(t, ValidSlug("a"))
}

func TestService_Create(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, ownerPrincipal(), CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)
	assert.Equal(t, "acme-nami", o.Slug)
	assert.Equal(t, "prn_owner", o.OwnerID)

	// Duplicate slug is rejected.
	_, err = svc.Create(ctx, ownerPrincipal(), CreateRequest{Name: "Other", Slug: "acme-nami"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	// Explicit bad slug is rejected before the store sees it.
	_, err = svc.Create(ctx, ownerPrincipal(), CreateRequest{Name: "Other", Slug: "Not A Slug"})
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestResolver_OwnerAndMembers(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	resolver := NewResolver(store)

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)

	// Owner resolves with no membership row.
	a, err := resolver.Resolve(ctx, o.Slug, owner)
	require.NoError(t, err)
	assert.True(t, a.IsOwner)
	assert.True(t, a.IsAdmin())
	assert.True(t, a.CanManageOrg())

	// An active member resolves with their role.
	member := &identity.Principal{ID: "prn_mgr", Email: "mgr@acme.lv"}
	require.NoError(t, store.CreateMembership(ctx, &Membership{
		ID: "mem_1", OrgID: o.ID, PrincipalID: member.ID, Role: RoleManager, Active: true,
	}))
	a, err = resolver.Resolve(ctx, o.Slug, member)
	require.NoError(t, err)
	assert.False(t, a.IsOwner)
	assert.True(t, a.CanOperate())
	assert.False(t, a.CanManageOrg())

	// A deactivated member is an outsider.
	m, _ := store.GetMembershipByID(ctx, "mem_1")
	m.Active = false
	require.NoError(t, store.UpdateMembership(ctx, m))
	_, err = resolver.Resolve(ctx, o.Slug, member)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestResolver_FailClosed(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	resolver := NewResolver(store)

	o, err := svc.Create(ctx, ownerPrincipal(), CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)

	// Unknown slug and non-member get distinguishable errors internally,
	// but handlers surface both as 404.
	_, err = resolver.Resolve(ctx, "no-such-org", ownerPrincipal())
	assert.ErrorIs(t, err, ErrOrgNotFound)

	outsider := &identity.Principal{ID: "prn_out", Email: "out@other.lv"}
	_, err = resolver.Resolve(ctx, o.Slug, outsider)
	assert.ErrorIs(t, err, ErrNotMember)

	// Superuser bypasses membership.
	su := &identity.Principal{ID: "prn_su", Email: "su@namura.test", Superuser: true}
	a, err := resolver.Resolve(ctx, o.Slug, su)
	require.NoError(t, err)
	assert.False(t, a.IsOwner)
	assert.Equal(t, Role(""), a.Role)
}

func TestService_InviteAndAccept(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)
	access := &Access{Org: o, Principal: owner, IsOwner: true}

	inv, err := svc.Invite(ctx, access, "New.Member@acme.lv", RoleMember)
	require.NoError(t, err)
	assert.Equal(t, "new.member@acme.lv", inv.Email)
	assert.Equal(t, InvitationPending, inv.Status)
	require.Len(t, rec.Sent, 1)
	assert.Equal(t, notify.TemplateMemberInvitation, rec.Sent[0].TemplateID)

	// Acceptance is bound to the invited email, case-insensitively.
	wrong := &identity.Principal{ID: "prn_x", Email: "someone@else.lv"}
	_, err = svc.AcceptInvitation(ctx, inv.Token, wrong)
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	invited := &identity.Principal{ID: "prn_new", Email: "NEW.MEMBER@acme.lv"}
	m, err := svc.AcceptInvitation(ctx, inv.Token, invited)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, m.Role)
	assert.True(t, m.Active)

	// A second accept finds the invitation closed.
	_, err = svc.AcceptInvitation(ctx, inv.Token, invited)
	assert.ErrorIs(t, err, ErrInvitationClosed)
}

func TestService_InviteDispatchFailure(t *testing.T) {
	store := NewMemoryStore()
	rec := &notify.Recorder{Fail: true}
	svc := NewService(store, openGate{}, rec, "https://app.namura.test", 7*24*time.Hour)
	ctx := context.Background()

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)

	inv, err := svc.Invite(ctx, &Access{Org: o, Principal: owner, IsOwner: true}, "m@acme.lv", RoleMember)
	assert.ErrorIs(t, err, notify.ErrDispatchFailed)
	// The invitation is still stored and usable.
	require.NotNil(t, inv)
	stored, err := store.GetInvitationByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, InvitationPending, stored.Status)
}

func TestService_InviteGateDenied(t *testing.T) {
	store := NewMemoryStore()
	denied := assert.AnError
	svc := NewService(store, closedGate{err: denied}, &notify.Recorder{}, "https://app.namura.test", 7*24*time.Hour)
	ctx := context.Background()

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)

	_, err = svc.Invite(ctx, &Access{Org: o, Principal: owner, IsOwner: true}, "m@acme.lv", RoleMember)
	assert.ErrorIs(t, err, denied)

	invs, _ := store.ListInvitations(ctx, o.ID)
	assert.Empty(t, invs)
}

func TestService_AcceptExpiredInvitation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)

	access := &Access{Org: o, IsOwner: true}
	inv, err := svc.Invite(ctx, access, "late@acme.lv", RoleMember)
	require.NoError(t, err)

	// Jump past the invitation TTL.
	svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	late := &identity.Principal{ID: "prn_late", Email: "late@acme.lv"}
	_, err = svc.AcceptInvitation(ctx, inv.Token, late)
	assert.ErrorIs(t, err, ErrInvitationExpired)

	// Expiry is recorded on first touch.
	stored, err := store.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvitationExpired, stored.Status)
}

func TestService_OwnerImmutable(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)
	access := &Access{Org: o, Principal: owner, IsOwner: true}

	// A membership row for the owner should never exist, but if one were
	// created it still cannot be changed or removed.
	require.NoError(t, store.CreateMembership(ctx, &Membership{
		ID: "mem_owner", OrgID: o.ID, PrincipalID: owner.ID, Role: RoleAdmin, Active: true,
	}))

	_, err = svc.ChangeMemberRole(ctx, access, "mem_owner", RoleMember)
	assert.ErrorIs(t, err, ErrOwnerImmutable)
	err = svc.RemoveMember(ctx, access, "mem_owner")
	assert.ErrorIs(t, err, ErrOwnerImmutable)
}

func TestService_CancelInvitation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	owner := ownerPrincipal()
	o, err := svc.Create(ctx, owner, CreateRequest{Name: "Acme Nami"})
	require.NoError(t, err)
	access := &Access{Org: o, Principal: owner, IsOwner: true}

	inv, err := svc.Invite(ctx, access, "m@acme.lv", RoleMember)
	require.NoError(t, err)

	require.NoError(t, svc.CancelInvitation(ctx, access, inv.ID))
	stored, _ := store.GetInvitation(ctx, inv.ID)
	assert.Equal(t, InvitationExpired, stored.Status)

	// Cancelled invitations cannot be accepted.
	invited := &identity.Principal{ID: "prn_m", Email: "m@acme.lv"}
	_, err = svc.AcceptInvitation(ctx, inv.Token, invited)
	assert.ErrorIs(t, err, ErrInvitationClosed)
}
