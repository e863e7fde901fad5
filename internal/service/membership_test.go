package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
)

func TestCreateTenantSeedsFirstAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")

	tenant := env.createTenant(t, owner, "Acme", model.PlanFree)

	admin, err := env.members.IsAdmin(ctx, tenant.ID, owner.UserID)
	require.NoError(t, err)
	assert.True(t, admin)

	role, err := env.members.RoleOf(ctx, tenant.ID, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, role)

	stored, err := env.store.TenantByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MemberCount)
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	_, err := env.members.AddMember(ctx, 99, tenant.ID, "bob@example.com", model.RoleMember)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	m, err := env.members.AddMember(ctx, owner.UserID, tenant.ID, "Bob@Example.com", model.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", m.Email)
	assert.Equal(t, model.MembershipStatusPending, m.Status)
	assert.Nil(t, m.UserID)
}

func TestAddMemberRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	_, err := env.members.AddMember(context.Background(), owner.UserID, tenant.ID, "bob@example.com", "owner")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAddFirstAdminSeedsActiveAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	// Orphan the tenant through the store so the seeding path is the only
	// way back to an administered roster.
	roster, err := env.members.ListMembers(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.NoError(t, env.store.DeleteMembership(ctx, roster[0].ID))

	// No admin guard applies: there is nobody left to pass it.
	m, err := env.members.AddFirstAdmin(ctx, tenant.ID, 7, "Root@Example.com")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, m.Role)
	assert.Equal(t, model.MembershipStatusActive, m.Status)
	assert.Equal(t, "root@example.com", m.Email)
	require.NotNil(t, m.UserID)
	assert.Equal(t, uint(7), *m.UserID)
	assert.NotNil(t, m.JoinedAt)

	admin, err := env.members.IsAdmin(ctx, tenant.ID, 7)
	require.NoError(t, err)
	assert.True(t, admin)

	stored, err := env.store.TenantByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MemberCount)
}

func TestChangeRoleRejectsDemotingSoleAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	roster, err := env.members.ListMembers(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)

	err = env.members.ChangeRole(ctx, owner.UserID, roster[0].ID, model.RoleMember)
	assert.ErrorIs(t, err, apperr.ErrInvariant)

	// The failed demotion must leave the roster untouched.
	after, err := env.members.ListMembers(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, model.RoleAdmin, after[0].Role)
	assert.Equal(t, model.MembershipStatusActive, after[0].Status)
}

func TestChangeRoleAllowsDemotionWithSecondAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	_, err := env.members.AddMember(ctx, owner.UserID, tenant.ID, "bob@example.com", model.RoleAdmin)
	require.NoError(t, err)
	activated, err := env.members.ConfirmMembership(ctx, "bob@example.com", 2)
	require.NoError(t, err)
	require.Len(t, activated, 1)

	roster, err := env.members.ListMembers(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	var ownerMembership *model.Membership
	for i := range roster {
		if roster[i].UserID != nil && *roster[i].UserID == owner.UserID {
			ownerMembership = &roster[i]
		}
	}
	require.NotNil(t, ownerMembership)

	require.NoError(t, env.members.ChangeRole(ctx, owner.UserID, ownerMembership.ID, model.RoleMember))

	role, err := env.members.RoleOf(ctx, tenant.ID, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, role)
}

func TestRemoveMemberRejectsSoleAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	roster, err := env.members.ListMembers(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)

	err = env.members.RemoveMember(ctx, owner.UserID, roster[0].ID)
	assert.ErrorIs(t, err, apperr.ErrInvariant)

	// Still an admin afterwards.
	admin, err := env.members.IsAdmin(ctx, tenant.ID, owner.UserID)
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestRemoveMemberUpdatesCachedCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	_, err := env.members.AddMember(ctx, owner.UserID, tenant.ID, "bob@example.com", model.RoleMember)
	require.NoError(t, err)
	_, err = env.members.ConfirmMembership(ctx, "bob@example.com", 2)
	require.NoError(t, err)

	stored, err := env.store.TenantByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MemberCount)

	roster, err := env.members.ListMembers(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	var bob *model.Membership
	for i := range roster {
		if roster[i].Email == "bob@example.com" {
			bob = &roster[i]
		}
	}
	require.NotNil(t, bob)

	require.NoError(t, env.members.RemoveMember(ctx, owner.UserID, bob.ID))

	stored, err = env.store.TenantByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MemberCount)
}

func TestConfirmMembershipActivatesAcrossTenants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := ownerIdentity(1, "alice@example.com")
	carol := ownerIdentity(2, "carol@example.com")
	acme := env.createTenant(t, alice, "Acme", model.PlanBasic)
	globex := env.createTenant(t, carol, "Globex", model.PlanBasic)

	_, err := env.members.AddMember(ctx, alice.UserID, acme.ID, "eve@example.com", model.RoleMember)
	require.NoError(t, err)
	_, err = env.members.AddMember(ctx, carol.UserID, globex.ID, "eve@example.com", model.RoleMember)
	require.NoError(t, err)

	activated, err := env.members.ConfirmMembership(ctx, "Eve@Example.com", 9)
	require.NoError(t, err)
	require.Len(t, activated, 2)
	for _, m := range activated {
		require.NotNil(t, m.UserID)
		assert.Equal(t, uint(9), *m.UserID)
		assert.Equal(t, model.MembershipStatusActive, m.Status)
		assert.NotNil(t, m.JoinedAt)
	}

	for _, tenantID := range []uint{acme.ID, globex.ID} {
		member, err := env.members.IsMember(ctx, tenantID, 9)
		require.NoError(t, err)
		assert.True(t, member)

		stored, err := env.store.TenantByID(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.MemberCount)
	}
}

func TestConfirmMembershipNoPendingIsNoop(t *testing.T) {
	env := newTestEnv(t)

	activated, err := env.members.ConfirmMembership(context.Background(), "nobody@example.com", 42)
	require.NoError(t, err)
	assert.Empty(t, activated)
}

func TestListMembersRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanFree)

	_, err := env.members.ListMembers(context.Background(), 99, tenant.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
