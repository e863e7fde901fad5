package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
)

func TestCreateInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "Bob@Example.com", model.RoleMember, "welcome aboard")
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusPending, inv.Status)
	assert.Equal(t, "bob@example.com", inv.Email)
	assert.Equal(t, tenant.Name, inv.TenantName)
	assert.Len(t, inv.Token, 32)
	assert.True(t, inv.ExpiresAt.After(time.Now()))
}

func TestCreateInvitationRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	stranger := ownerIdentity(99, "mallory@example.com")
	_, err := env.invites.Create(context.Background(), stranger, tenant.ID, "bob@example.com", model.RoleMember, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCreateInvitationPendingUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	first, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)

	_, err = env.invites.Create(ctx, owner, tenant.ID, "BOB@example.com", model.RoleMember, "")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Once the pending invitation reaches a terminal state a new one may be
	// issued for the same address.
	_, err = env.invites.Reject(ctx, first.Token)
	require.NoError(t, err)

	_, err = env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	assert.NoError(t, err)
}

func TestGetByTokenMarksLapsedExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)
	env.backdateInvitation(t, inv.ID)

	got, err := env.invites.GetByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusExpired, got.Status)

	// The transition is persisted, not just reflected in the response.
	stored, err := env.store.InvitationByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusExpired, stored.Status)
}

func TestGetByTokenUnissuedTokensResolveNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	_, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)

	// Sampling check: well-formed tokens that were never issued must not
	// resolve to the real invitation.
	for i := 0; i < 64; i++ {
		guess, err := newInviteToken()
		require.NoError(t, err)
		_, err = env.invites.GetByToken(ctx, guess)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
}

func TestAcceptUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.invites.Accept(context.Background(), "no-such-token", 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAcceptLapsedThenTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)
	env.backdateInvitation(t, inv.ID)

	// First attempt transitions the invitation to expired and reports it.
	_, err = env.invites.Accept(ctx, inv.Token, 2)
	assert.ErrorIs(t, err, apperr.ErrExpired)

	// Once terminal, further attempts are a state violation, not expiry.
	_, err = env.invites.Accept(ctx, inv.Token, 2)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAcceptTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)

	accepted, err := env.invites.Accept(ctx, inv.Token, 2)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedBy)
	assert.Equal(t, uint(2), *accepted.AcceptedBy)
	assert.NotNil(t, accepted.AcceptedAt)

	_, err = env.invites.Accept(ctx, inv.Token, 2)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestRejectNonPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)

	_, err = env.invites.Accept(ctx, inv.Token, 2)
	require.NoError(t, err)

	_, err = env.invites.Reject(ctx, inv.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestResendResurrectsTerminalInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)
	oldToken := inv.Token

	_, err = env.invites.Reject(ctx, oldToken)
	require.NoError(t, err)

	renewed, err := env.invites.Resend(ctx, owner.UserID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusPending, renewed.Status)
	assert.NotEqual(t, oldToken, renewed.Token)
	assert.True(t, renewed.ExpiresAt.After(time.Now()))

	// The old token is dead; the fresh one works.
	_, err = env.invites.Accept(ctx, oldToken, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	accepted, err := env.invites.Accept(ctx, renewed.Token, 2)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusAccepted, accepted.Status)
}

func TestResendAcceptedInvitationStaysTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)
	accepted, err := env.invites.Accept(ctx, inv.Token, 2)
	require.NoError(t, err)

	_, err = env.invites.Resend(ctx, owner.UserID, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	// The consumed invitation keeps its token and audit stamps.
	stored, err := env.store.InvitationByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusAccepted, stored.Status)
	assert.Equal(t, accepted.Token, stored.Token)
	require.NotNil(t, stored.AcceptedBy)
	assert.Equal(t, uint(2), *stored.AcceptedBy)
	assert.NotNil(t, stored.AcceptedAt)
}

func TestCancelInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)

	err = env.invites.Cancel(ctx, 99, inv.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, env.invites.Cancel(ctx, owner.UserID, inv.ID))

	_, err = env.invites.GetByToken(ctx, inv.Token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanPremium)

	lapsed1, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)
	lapsed2, err := env.invites.Create(ctx, owner, tenant.ID, "carol@example.com", model.RoleMember, "")
	require.NoError(t, err)
	fresh, err := env.invites.Create(ctx, owner, tenant.ID, "dave@example.com", model.RoleMember, "")
	require.NoError(t, err)

	env.backdateInvitation(t, lapsed1.ID)
	env.backdateInvitation(t, lapsed2.ID)

	swept, err := env.invites.SweepExpired(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	stored, err := env.store.InvitationByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationStatusPending, stored.Status)

	// Idempotent.
	swept, err = env.invites.SweepExpired(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestListByTenantSweepsFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")
	tenant := env.createTenant(t, owner, "Acme", model.PlanBasic)

	inv, err := env.invites.Create(ctx, owner, tenant.ID, "bob@example.com", model.RoleMember, "")
	require.NoError(t, err)
	env.backdateInvitation(t, inv.ID)

	invs, err := env.invites.ListByTenant(ctx, owner.UserID, tenant.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, model.InvitationStatusExpired, invs[0].Status)
}
