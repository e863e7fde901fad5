package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"membership-service/internal/model"
	"membership-service/internal/store"
)

// testEnv wires every service around one in-memory store.
type testEnv struct {
	store   *store.MemoryStore
	members *MembershipService
	invites *InvitationService
	quota   *QuotaService
	tenants *TenantService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	log := zap.NewNop()
	members := NewMembershipService(st, log)
	invites := NewInvitationService(st, members, 7*24*time.Hour, log)
	quota := NewQuotaService(st, model.PlanFree, log)
	tenants := NewTenantService(st, members, invites, quota, log)
	return &testEnv{
		store:   st,
		members: members,
		invites: invites,
		quota:   quota,
		tenants: tenants,
	}
}

func (e *testEnv) createTenant(t *testing.T, owner Identity, name, plan string) *model.Tenant {
	t.Helper()
	tenant, err := e.tenants.CreateTenant(context.Background(), owner, name, "", plan)
	require.NoError(t, err)
	return tenant
}

// backdateInvitation pushes the invitation's expiry into the past so lazy
// expiry paths can be exercised without sleeping.
func (e *testEnv) backdateInvitation(t *testing.T, id uint) {
	t.Helper()
	inv, err := e.store.InvitationByID(context.Background(), id)
	require.NoError(t, err)
	inv.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, e.store.UpdateInvitation(context.Background(), inv))
}

func ownerIdentity(userID uint, email string) Identity {
	return Identity{UserID: userID, Email: email, Name: "Test User"}
}
