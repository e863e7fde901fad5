// Package store defines the persistence interface for the membership,
// invitation and quota collections, with a postgres implementation backed by
// gorm and an in-memory implementation used by tests and local development.
package store

import (
	"context"
	"time"

	"membership-service/internal/model"
)

// TenantStore manages tenant records and the cached member count.
type TenantStore interface {
	// CreateTenantSetup persists the tenant, its first admin membership and
	// its quota ledger as a single all-or-nothing write.
	CreateTenantSetup(ctx context.Context, tenant *model.Tenant, admin *model.Membership, ledger *model.QuotaLedger) error

	TenantByID(ctx context.Context, id uint) (*model.Tenant, error)

	// FirstTenantByOwner returns the oldest existing tenant owned by the
	// given user, or ErrNotFound if they own none.
	FirstTenantByOwner(ctx context.Context, ownerID uint) (*model.Tenant, error)

	UpdateTenant(ctx context.Context, tenant *model.Tenant) error

	// SetMemberCount stores the cached active-member count.
	SetMemberCount(ctx context.Context, tenantID uint, count int64) error
}

// MembershipStore manages the per-tenant roster.
type MembershipStore interface {
	CreateMembership(ctx context.Context, m *model.Membership) error
	MembershipByID(ctx context.Context, id uint) (*model.Membership, error)

	// MembershipsByTenant returns the roster ordered by creation time,
	// newest first.
	MembershipsByTenant(ctx context.Context, tenantID uint) ([]model.Membership, error)

	// MembershipsByUser returns the user's memberships with the Tenant
	// relation populated.
	MembershipsByUser(ctx context.Context, userID uint) ([]model.Membership, error)

	// HasActiveMembership reports whether the user holds an active
	// membership in the tenant; role narrows the check when non-empty.
	HasActiveMembership(ctx context.Context, tenantID, userID uint, role string) (bool, error)

	// ActiveAdminCount counts memberships with role=admin and status=active.
	ActiveAdminCount(ctx context.Context, tenantID uint) (int64, error)

	// ActiveMemberCount counts memberships with status=active.
	ActiveMemberCount(ctx context.Context, tenantID uint) (int64, error)

	UpdateMembership(ctx context.Context, m *model.Membership) error
	DeleteMembership(ctx context.Context, id uint) error

	// ActivatePendingByEmail binds every pending membership for the email to
	// the user and activates them in one all-or-nothing batch, returning the
	// affected memberships.
	ActivatePendingByEmail(ctx context.Context, email string, userID uint) ([]model.Membership, error)
}

// InvitationStore manages token-addressed invitations.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *model.Invitation) error
	InvitationByID(ctx context.Context, id uint) (*model.Invitation, error)
	InvitationByToken(ctx context.Context, token string) (*model.Invitation, error)
	InvitationsByTenant(ctx context.Context, tenantID uint) ([]model.Invitation, error)

	// PendingInvitationExists reports whether a pending invitation already
	// exists for the (tenant, email) pair.
	PendingInvitationExists(ctx context.Context, tenantID uint, email string) (bool, error)

	UpdateInvitation(ctx context.Context, inv *model.Invitation) error
	DeleteInvitation(ctx context.Context, id uint) error

	// ExpirePending transitions every pending invitation past its expiry to
	// expired. A tenantID of zero sweeps all tenants. Returns the number of
	// invitations transitioned.
	ExpirePending(ctx context.Context, tenantID uint, now time.Time) (int64, error)
}

// QuotaStore manages per-tenant usage ledgers.
type QuotaStore interface {
	CreateLedger(ctx context.Context, ledger *model.QuotaLedger) error
	LedgerByTenant(ctx context.Context, tenantID uint) (*model.QuotaLedger, error)
	UpdateLedger(ctx context.Context, ledger *model.QuotaLedger) error

	// AdjustUsage applies delta to the resource's current counter as a single
	// atomic update, clamping the result at zero. Implementations must not
	// read-then-write; concurrent adjustments for the same tenant must never
	// lose updates.
	AdjustUsage(ctx context.Context, tenantID uint, resource model.Resource, delta int64) error

	// ResetDocuments zeroes the documents counter and advances the reset
	// date. A tenantID of zero resets every ledger whose reset date has
	// passed.
	ResetDocuments(ctx context.Context, tenantID uint, now time.Time) (int64, error)
}

// PlanStore reads the editable plan catalog.
type PlanStore interface {
	PlanByCode(ctx context.Context, code string) (*model.Plan, error)
	ListPlans(ctx context.Context) ([]model.Plan, error)

	// SeedPlans inserts the given plans when the catalog is empty.
	SeedPlans(ctx context.Context, plans []model.Plan) error
}

// Store aggregates every collection behind one interface.
type Store interface {
	TenantStore
	MembershipStore
	InvitationStore
	QuotaStore
	PlanStore
}
