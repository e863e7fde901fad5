package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
)

func TestProvisionSnapshotsPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ledger, err := env.quota.Provision(ctx, 1, model.PlanPremium)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPremium, ledger.PlanCode)
	assert.Equal(t, int64(3), ledger.MaxCompanies)
	assert.Equal(t, int64(10), ledger.MaxUsers)
	assert.Equal(t, int64(1000), ledger.MaxDocuments)
	assert.True(t, ledger.Features.APIAccess)
	assert.Zero(t, ledger.CurrentUsers)
	assert.NotNil(t, ledger.NextPaymentAt)
}

func TestProvisionUnknownPlanFallsBackToFree(t *testing.T) {
	env := newTestEnv(t)

	ledger, err := env.quota.Provision(context.Background(), 1, "gold-tier")
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, ledger.PlanCode)
	assert.Equal(t, int64(1), ledger.MaxUsers)
	assert.Nil(t, ledger.NextPaymentAt)
}

func TestProvisionPrefersCatalogOverDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	catalog := []model.Plan{{
		Code:     model.PlanBasic,
		Name:     "Basic (regional)",
		MaxUsers: 7,
		Active:   true,
	}}
	require.NoError(t, env.store.SeedPlans(ctx, catalog))

	ledger, err := env.quota.Provision(ctx, 1, model.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ledger.MaxUsers)
}

func TestIsExceededUnlimitedSentinel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.quota.Provision(ctx, 1, model.PlanEnterprise)
	require.NoError(t, err)

	for _, current := range []int64{0, 1, 1_000_000} {
		if current > 0 {
			require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceUsers, current))
		}
		exceeded, err := env.quota.IsExceeded(ctx, 1, model.ResourceUsers)
		require.NoError(t, err)
		assert.False(t, exceeded, "unlimited plans are never exceeded")
	}
}

func TestIsExceededAtLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.quota.Provision(ctx, 1, model.PlanFree)
	require.NoError(t, err)

	exceeded, err := env.quota.IsExceeded(ctx, 1, model.ResourceUsers)
	require.NoError(t, err)
	assert.False(t, exceeded)

	require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceUsers, 1))

	// current == max counts as exceeded
	exceeded, err = env.quota.IsExceeded(ctx, 1, model.ResourceUsers)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestIsExceededMissingLedger(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.quota.IsExceeded(context.Background(), 404, model.ResourceUsers)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentIncrementsLoseNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.quota.Provision(ctx, 1, model.PlanEnterprise)
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = env.quota.Increment(ctx, 1, model.ResourceDocuments, 1)
		}()
	}
	wg.Wait()

	ledger, err := env.quota.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(n), ledger.CurrentDocuments)
}

func TestDecrementClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.quota.Provision(ctx, 1, model.PlanBasic)
	require.NoError(t, err)

	require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceDocuments, 2))
	require.NoError(t, env.quota.Decrement(ctx, 1, model.ResourceDocuments, 5))

	ledger, err := env.quota.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, ledger.CurrentDocuments)
}

func TestChangePlanKeepsCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.quota.Provision(ctx, 1, model.PlanPremium)
	require.NoError(t, err)
	require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceDocuments, 42))
	require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceUsers, 5))

	ledger, err := env.quota.ChangePlan(ctx, 1, model.PlanFree)
	require.NoError(t, err)

	// Limits and features follow the new plan; usage survives the downgrade.
	assert.Equal(t, model.PlanFree, ledger.PlanCode)
	assert.Equal(t, int64(10), ledger.MaxDocuments)
	assert.Equal(t, int64(1), ledger.MaxUsers)
	assert.False(t, ledger.Features.APIAccess)
	assert.Equal(t, int64(42), ledger.CurrentDocuments)
	assert.Equal(t, int64(5), ledger.CurrentUsers)

	// The downgraded tenant now sits over quota and that is reported as is.
	exceeded, err := env.quota.IsExceeded(ctx, 1, model.ResourceDocuments)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestResetPeriodCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.quota.Provision(ctx, 1, model.PlanBasic)
	require.NoError(t, err)
	require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceDocuments, 30))
	require.NoError(t, env.quota.Increment(ctx, 1, model.ResourceUsers, 2))

	require.NoError(t, env.quota.ResetPeriodCounter(ctx, 1))

	ledger, err := env.quota.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, ledger.CurrentDocuments)
	// Only the period-scoped counter resets.
	assert.Equal(t, int64(2), ledger.CurrentUsers)
}

func TestCanCreateTenantBootstrap(t *testing.T) {
	env := newTestEnv(t)

	allowance, err := env.quota.CanCreateTenant(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, allowance.Allowed)
}

func TestCanCreateTenantFirstPlanAuthoritative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")

	// Premium allows three companies, counted against the first tenant's ledger.
	env.createTenant(t, owner, "First", model.PlanPremium)
	env.createTenant(t, owner, "Second", model.PlanFree)
	env.createTenant(t, owner, "Third", model.PlanFree)

	allowance, err := env.quota.CanCreateTenant(ctx, owner.UserID)
	require.NoError(t, err)
	assert.False(t, allowance.Allowed)
	assert.Equal(t, model.PlanPremium, allowance.Plan)
	assert.Equal(t, int64(3), allowance.Current)
	assert.Equal(t, int64(3), allowance.Max)
	assert.NotEmpty(t, allowance.Reason)

	_, err = env.tenants.CreateTenant(ctx, owner, "Fourth", "", model.PlanFree)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCanCreateTenantFreePlanSingleCompany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := ownerIdentity(1, "alice@example.com")

	env.createTenant(t, owner, "Only", model.PlanFree)

	allowance, err := env.quota.CanCreateTenant(ctx, owner.UserID)
	require.NoError(t, err)
	assert.False(t, allowance.Allowed)
}

func TestEnsureCatalogSeedsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.quota.EnsureCatalog(ctx))
	plans, err := env.quota.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, len(model.DefaultPlans))
	assert.Equal(t, model.PlanFree, plans[0].Code)

	// A second call must not duplicate or overwrite.
	require.NoError(t, env.quota.EnsureCatalog(ctx))
	again, err := env.quota.ListPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, again, len(plans))
}
