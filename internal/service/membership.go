package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
	"membership-service/internal/store"
	"membership-service/prometheus"
)

// MembershipService owns the per-tenant roster: role enforcement, the
// at-least-one-active-admin invariant, and activation of pending memberships
// when an invited user first authenticates.
type MembershipService struct {
	store store.Store
	log   *zap.Logger
}

func NewMembershipService(st store.Store, log *zap.Logger) *MembershipService {
	return &MembershipService{store: st, log: log}
}

// IsAdmin reports whether the user holds an active admin membership in the
// tenant. Side-effect free; this is the authorization guard for every
// privileged operation.
func (s *MembershipService) IsAdmin(ctx context.Context, tenantID, userID uint) (bool, error) {
	return s.store.HasActiveMembership(ctx, tenantID, userID, model.RoleAdmin)
}

// IsMember reports whether the user holds any active membership in the tenant.
func (s *MembershipService) IsMember(ctx context.Context, tenantID, userID uint) (bool, error) {
	return s.store.HasActiveMembership(ctx, tenantID, userID, "")
}

// RoleOf returns the user's active role in the tenant.
func (s *MembershipService) RoleOf(ctx context.Context, tenantID, userID uint) (string, error) {
	members, err := s.store.MembershipsByTenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if m.UserID != nil && *m.UserID == userID && m.Status == model.MembershipStatusActive {
			return m.Role, nil
		}
	}
	return "", apperr.ErrNotFound
}

// requireAdmin rejects callers without an active admin membership. Every
// mutating operation re-derives authorization here instead of trusting a
// caller-supplied flag.
func (s *MembershipService) requireAdmin(ctx context.Context, tenantID, callerID uint) error {
	ok, err := s.IsAdmin(ctx, tenantID, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %d is not an admin of tenant %d: %w", callerID, tenantID, apperr.ErrForbidden)
	}
	return nil
}

// ListMembers returns the tenant roster, newest first.
func (s *MembershipService) ListMembers(ctx context.Context, callerID, tenantID uint) ([]model.Membership, error) {
	ok, err := s.IsMember(ctx, tenantID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user %d is not a member of tenant %d: %w", callerID, tenantID, apperr.ErrForbidden)
	}
	return s.store.MembershipsByTenant(ctx, tenantID)
}

// AddMember creates a pending membership for an email address. The membership
// has no user attached until that email authenticates and ConfirmMembership
// binds it.
func (s *MembershipService) AddMember(ctx context.Context, callerID, tenantID uint, email, role string) (*model.Membership, error) {
	if err := s.requireAdmin(ctx, tenantID, callerID); err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}
	m := &model.Membership{
		TenantID:  tenantID,
		Email:     normalizeEmail(email),
		Role:      role,
		Status:    model.MembershipStatusPending,
		InvitedBy: callerID,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	prometheus.RecordMembershipOperation("add")
	s.log.Info("Pending membership created",
		zap.Uint("tenant_id", tenantID),
		zap.String("email", m.Email),
		zap.String("role", role))
	return m, nil
}

// AddFirstAdmin seeds the first active admin membership of a tenant. It
// deliberately bypasses the admin guard; the general AddMember path can never
// reach it.
func (s *MembershipService) AddFirstAdmin(ctx context.Context, tenantID, userID uint, email string) (*model.Membership, error) {
	m := newFirstAdmin(userID, email)
	m.TenantID = tenantID
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	s.refreshCountBestEffort(ctx, tenantID)
	return m, nil
}

// newFirstAdmin builds the active admin membership seeded at tenant creation.
func newFirstAdmin(userID uint, email string) *model.Membership {
	now := time.Now()
	return &model.Membership{
		UserID:    &userID,
		Email:     normalizeEmail(email),
		Role:      model.RoleAdmin,
		Status:    model.MembershipStatusActive,
		JoinedAt:  &now,
		InvitedBy: userID,
	}
}

// ChangeRole updates a membership's role. Demoting the last active admin is
// rejected so the tenant never ends up without one.
func (s *MembershipService) ChangeRole(ctx context.Context, callerID, membershipID uint, newRole string) error {
	m, err := s.store.MembershipByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, m.TenantID, callerID); err != nil {
		return err
	}
	if err := validateRole(newRole); err != nil {
		return err
	}
	if m.Role == newRole {
		return nil
	}
	if m.IsActiveAdmin() {
		count, err := s.store.ActiveAdminCount(ctx, m.TenantID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("cannot demote the sole admin of tenant %d: %w", m.TenantID, apperr.ErrInvariant)
		}
	}
	m.Role = newRole
	if err := s.store.UpdateMembership(ctx, m); err != nil {
		return err
	}
	prometheus.RecordMembershipOperation("change_role")
	s.log.Info("Membership role changed",
		zap.Uint("membership_id", membershipID),
		zap.Uint("tenant_id", m.TenantID),
		zap.String("role", newRole))
	return nil
}

// RemoveMember hard-deletes a membership. Removing the last active admin is
// rejected regardless of whether the target is the caller.
func (s *MembershipService) RemoveMember(ctx context.Context, callerID, membershipID uint) error {
	m, err := s.store.MembershipByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, m.TenantID, callerID); err != nil {
		return err
	}
	if m.IsActiveAdmin() {
		count, err := s.store.ActiveAdminCount(ctx, m.TenantID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return fmt.Errorf("cannot remove the sole admin of tenant %d: %w", m.TenantID, apperr.ErrInvariant)
		}
	}
	if err := s.store.DeleteMembership(ctx, membershipID); err != nil {
		return err
	}
	prometheus.RecordMembershipOperation("remove")
	s.refreshCountBestEffort(ctx, m.TenantID)
	s.log.Info("Membership removed",
		zap.Uint("membership_id", membershipID),
		zap.Uint("tenant_id", m.TenantID))
	return nil
}

// ConfirmMembership binds every pending membership for the email to the user
// and activates them, across all tenants, as one all-or-nothing batch. Called
// once, when an identity first authenticates with a matching email.
func (s *MembershipService) ConfirmMembership(ctx context.Context, email string, userID uint) ([]model.Membership, error) {
	activated, err := s.store.ActivatePendingByEmail(ctx, normalizeEmail(email), userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]bool)
	for _, m := range activated {
		if !seen[m.TenantID] {
			seen[m.TenantID] = true
			s.refreshCountBestEffort(ctx, m.TenantID)
		}
	}
	if len(activated) > 0 {
		prometheus.RecordMembershipOperation("confirm")
		s.log.Info("Pending memberships confirmed",
			zap.String("email", normalizeEmail(email)),
			zap.Uint("user_id", userID),
			zap.Int("count", len(activated)))
	}
	return activated, nil
}

// RefreshMemberCount recomputes and stores the tenant's cached active-member
// count from the roster.
func (s *MembershipService) RefreshMemberCount(ctx context.Context, tenantID uint) error {
	count, err := s.store.ActiveMemberCount(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.store.SetMemberCount(ctx, tenantID, count); err != nil {
		return err
	}
	prometheus.UpdateMembersPerTenant(tenantID, count)
	return nil
}

// refreshCountBestEffort refreshes the cached count without failing the
// primary operation.
func (s *MembershipService) refreshCountBestEffort(ctx context.Context, tenantID uint) {
	if err := s.RefreshMemberCount(ctx, tenantID); err != nil {
		s.log.Warn("Failed to refresh member count",
			zap.Uint("tenant_id", tenantID),
			zap.Error(err))
	}
}

func validateRole(role string) error {
	switch role {
	case model.RoleAdmin, model.RoleMember:
		return nil
	default:
		return fmt.Errorf("unsupported role %q: %w", role, apperr.ErrInvalidState)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
