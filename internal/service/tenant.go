package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
	"membership-service/internal/store"
	"membership-service/prometheus"
)

// Identity is the identity provider's view of the authenticated caller. The
// service never issues or validates credentials itself.
type Identity struct {
	UserID uint
	Email  string
	Name   string
}

// TenantService composes the membership, invitation and quota services at the
// operation boundary: tenant creation seeds the first admin and provisions
// quota in one write, and invitation acceptance is paired with membership
// activation and the users counter.
type TenantService struct {
	store   store.Store
	members *MembershipService
	invites *InvitationService
	quota   *QuotaService
	log     *zap.Logger
}

func NewTenantService(st store.Store, members *MembershipService, invites *InvitationService, quota *QuotaService, log *zap.Logger) *TenantService {
	return &TenantService{store: st, members: members, invites: invites, quota: quota, log: log}
}

// CreateTenant creates a tenant with the caller as its first active admin and
// a quota ledger snapshotted from the chosen plan, all in one write. The
// caller's allowance is checked against the companies limit of their first
// tenant's ledger; the very first tenant is always allowed.
func (s *TenantService) CreateTenant(ctx context.Context, owner Identity, name, address, planCode string) (*model.Tenant, error) {
	allowance, err := s.quota.CanCreateTenant(ctx, owner.UserID)
	if err != nil {
		return nil, err
	}
	if !allowance.Allowed {
		return nil, fmt.Errorf("%s: %w", allowance.Reason, apperr.ErrForbidden)
	}

	tenant := &model.Tenant{
		Name:        name,
		Address:     address,
		OwnerID:     owner.UserID,
		MemberCount: 1,
		Active:      true,
	}
	admin := newFirstAdmin(owner.UserID, owner.Email)
	ledger := s.quota.BuildLedger(ctx, planCode)

	if err := s.store.CreateTenantSetup(ctx, tenant, admin, ledger); err != nil {
		return nil, err
	}
	prometheus.RecordTenantOperation("create")

	// Counter upkeep after the primary write succeeds; failures degrade the
	// counters, not the creation.
	if err := s.quota.Increment(ctx, tenant.ID, model.ResourceUsers, 1); err != nil {
		s.log.Warn("Failed to count first admin against users quota",
			zap.Uint("tenant_id", tenant.ID),
			zap.Error(err))
	}
	if first, err := s.store.FirstTenantByOwner(ctx, owner.UserID); err != nil {
		s.log.Warn("Failed to locate authoritative tenant for companies counter",
			zap.Uint("owner_id", owner.UserID),
			zap.Error(err))
	} else if err := s.quota.Increment(ctx, first.ID, model.ResourceCompanies, 1); err != nil {
		s.log.Warn("Failed to increment companies counter",
			zap.Uint("tenant_id", first.ID),
			zap.Error(err))
	}

	s.log.Info("Tenant created",
		zap.Uint("tenant_id", tenant.ID),
		zap.String("name", tenant.Name),
		zap.Uint("owner_id", owner.UserID))
	return tenant, nil
}

// AcceptInvitation consumes the invitation addressed by token and activates
// the corresponding membership as one logical unit. The authenticating
// identity's email must match the invitation's email; a mismatch is a
// Forbidden, never a silent success.
func (s *TenantService) AcceptInvitation(ctx context.Context, token string, user Identity) (*model.Invitation, *model.Membership, error) {
	inv, err := s.store.InvitationByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if normalizeEmail(user.Email) != inv.Email {
		return nil, nil, fmt.Errorf("invitation was issued for a different email address: %w", apperr.ErrForbidden)
	}

	if exceeded, err := s.quota.IsExceeded(ctx, inv.TenantID, model.ResourceUsers); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, nil, err
		}
	} else if exceeded {
		return nil, nil, fmt.Errorf("tenant %d has reached its user limit: %w", inv.TenantID, apperr.ErrForbidden)
	}

	inv, err = s.invites.Accept(ctx, token, user.UserID)
	if err != nil {
		return nil, nil, err
	}

	membership, err := s.activateOrCreateMembership(ctx, inv, user.UserID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.quota.Increment(ctx, inv.TenantID, model.ResourceUsers, 1); err != nil {
		s.log.Warn("Failed to increment users counter after invitation acceptance",
			zap.Uint("tenant_id", inv.TenantID),
			zap.Error(err))
	}
	s.members.refreshCountBestEffort(ctx, inv.TenantID)
	return inv, membership, nil
}

// activateOrCreateMembership activates the pending membership matching the
// invitation's email if one exists, otherwise creates an active membership
// with the invited role.
func (s *TenantService) activateOrCreateMembership(ctx context.Context, inv *model.Invitation, userID uint) (*model.Membership, error) {
	members, err := s.store.MembershipsByTenant(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		m := members[i]
		if m.Email == inv.Email && m.Status == model.MembershipStatusPending {
			m.Activate(userID)
			if err := s.store.UpdateMembership(ctx, &m); err != nil {
				return nil, err
			}
			return &m, nil
		}
	}
	m := &model.Membership{
		TenantID:  inv.TenantID,
		Email:     inv.Email,
		Role:      inv.Role,
		InvitedBy: inv.CreatedBy,
	}
	m.Activate(userID)
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetTenant returns the tenant if the caller is a member or its owner.
func (s *TenantService) GetTenant(ctx context.Context, callerID, tenantID uint) (*model.Tenant, error) {
	tenant, err := s.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	member, err := s.members.IsMember(ctx, tenantID, callerID)
	if err != nil {
		return nil, err
	}
	if !member && tenant.OwnerID != callerID {
		return nil, fmt.Errorf("user %d has no access to tenant %d: %w", callerID, tenantID, apperr.ErrForbidden)
	}
	return tenant, nil
}

// ListUserTenants returns the caller's active memberships with their tenants.
func (s *TenantService) ListUserTenants(ctx context.Context, userID uint) ([]model.Membership, error) {
	return s.store.MembershipsByUser(ctx, userID)
}

// UpdateTenant edits the tenant's display name and address.
func (s *TenantService) UpdateTenant(ctx context.Context, callerID, tenantID uint, name, address string) (*model.Tenant, error) {
	if err := s.members.requireAdmin(ctx, tenantID, callerID); err != nil {
		return nil, err
	}
	tenant, err := s.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		tenant.Name = name
	}
	if address != "" {
		tenant.Address = address
	}
	if err := s.store.UpdateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	prometheus.RecordTenantOperation("update")
	return tenant, nil
}
