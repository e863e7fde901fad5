package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
	"membership-service/internal/store"
	"membership-service/prometheus"
)

// InvitationService owns the time-boxed invitation workflow. Invitations are
// addressed from outside the tenant only by their opaque token; expiry is
// evaluated lazily on read and accept rather than by a background sweep,
// though SweepExpired keeps listing views accurate.
type InvitationService struct {
	store   store.Store
	members *MembershipService
	ttl     time.Duration
	log     *zap.Logger
}

func NewInvitationService(st store.Store, members *MembershipService, ttl time.Duration, log *zap.Logger) *InvitationService {
	return &InvitationService{store: st, members: members, ttl: ttl, log: log}
}

// Create issues a pending invitation for an email to join the tenant with the
// given role. At most one pending invitation may exist per (tenant, email).
func (s *InvitationService) Create(ctx context.Context, caller Identity, tenantID uint, email, role, message string) (*model.Invitation, error) {
	if err := s.members.requireAdmin(ctx, tenantID, caller.UserID); err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	exists, err := s.store.PendingInvitationExists(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("a pending invitation for %s already exists in tenant %d: %w", email, tenantID, apperr.ErrConflict)
	}
	tenant, err := s.store.TenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}
	inv := &model.Invitation{
		TenantID:       tenantID,
		TenantName:     tenant.Name,
		Email:          email,
		Role:           role,
		Status:         model.InvitationStatusPending,
		Token:          token,
		Message:        message,
		CreatedBy:      caller.UserID,
		CreatedByName:  caller.Name,
		CreatedByEmail: normalizeEmail(caller.Email),
		ExpiresAt:      time.Now().Add(s.ttl),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	prometheus.RecordInvitationOperation("create")
	s.log.Info("Invitation created",
		zap.Uint("tenant_id", tenantID),
		zap.String("email", email),
		zap.String("role", role))
	return inv, nil
}

// GetByToken is the only lookup path available to an unauthenticated invitee
// following a link. A lapsed pending invitation is transitioned to expired
// before being returned.
func (s *InvitationService) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	inv, err := s.store.InvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvitationStatusPending && inv.IsExpired() {
		inv.MarkExpired()
		if err := s.store.UpdateInvitation(ctx, inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Accept consumes a pending invitation. A lapsed invitation is first
// transitioned to expired and the call fails with ErrExpired; once terminal,
// further attempts fail with ErrInvalidState. Accept does not itself touch
// the membership roster; callers compose the two at the boundary.
func (s *InvitationService) Accept(ctx context.Context, token string, userID uint) (*model.Invitation, error) {
	inv, err := s.store.InvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvitationStatusPending {
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, apperr.ErrInvalidState)
	}
	if inv.IsExpired() {
		inv.MarkExpired()
		if err := s.store.UpdateInvitation(ctx, inv); err != nil {
			return nil, err
		}
		prometheus.RecordInvitationOperation("expire")
		return nil, fmt.Errorf("invitation for %s lapsed at %s: %w", inv.Email, inv.ExpiresAt.Format(time.RFC3339), apperr.ErrExpired)
	}
	inv.Accept(userID)
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	prometheus.RecordInvitationOperation("accept")
	s.log.Info("Invitation accepted",
		zap.Uint("invitation_id", inv.ID),
		zap.Uint("tenant_id", inv.TenantID),
		zap.Uint("user_id", userID))
	return inv, nil
}

// Reject declines a pending invitation, with the same state checks as Accept.
func (s *InvitationService) Reject(ctx context.Context, token string) (*model.Invitation, error) {
	inv, err := s.store.InvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvitationStatusPending {
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, apperr.ErrInvalidState)
	}
	if inv.IsExpired() {
		inv.MarkExpired()
		if err := s.store.UpdateInvitation(ctx, inv); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("invitation for %s lapsed at %s: %w", inv.Email, inv.ExpiresAt.Format(time.RFC3339), apperr.ErrExpired)
	}
	inv.Reject()
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	prometheus.RecordInvitationOperation("reject")
	return inv, nil
}

// Cancel hard-deletes an invitation regardless of its current status.
func (s *InvitationService) Cancel(ctx context.Context, callerID, invitationID uint) error {
	inv, err := s.store.InvitationByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if err := s.members.requireAdmin(ctx, inv.TenantID, callerID); err != nil {
		return err
	}
	if err := s.store.DeleteInvitation(ctx, invitationID); err != nil {
		return err
	}
	prometheus.RecordInvitationOperation("cancel")
	s.log.Info("Invitation cancelled",
		zap.Uint("invitation_id", invitationID),
		zap.Uint("tenant_id", inv.TenantID))
	return nil
}

// Resend issues a fresh token and expiry and forces the invitation back to
// pending. This intentionally resurrects expired and rejected invitations
// instead of requiring re-creation. Accepted invitations stay terminal: they
// were already consumed by a membership, and reviving one would let the same
// offer be redeemed twice.
func (s *InvitationService) Resend(ctx context.Context, callerID, invitationID uint) (*model.Invitation, error) {
	inv, err := s.store.InvitationByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if err := s.members.requireAdmin(ctx, inv.TenantID, callerID); err != nil {
		return nil, err
	}
	if inv.Status == model.InvitationStatusAccepted {
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, apperr.ErrInvalidState)
	}
	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}
	inv.Renew(token, time.Now().Add(s.ttl))
	if err := s.store.UpdateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	prometheus.RecordInvitationOperation("resend")
	s.log.Info("Invitation resent",
		zap.Uint("invitation_id", invitationID),
		zap.Uint("tenant_id", inv.TenantID))
	return inv, nil
}

// SweepExpired batch-transitions every lapsed pending invitation to expired.
// Not required for correctness (Accept and GetByToken check lazily) but keeps
// listing views accurate. A tenantID of zero sweeps all tenants.
func (s *InvitationService) SweepExpired(ctx context.Context, tenantID uint) (int64, error) {
	swept, err := s.store.ExpirePending(ctx, tenantID, time.Now())
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		prometheus.RecordInvitationOperation("sweep")
		s.log.Info("Expired invitations swept",
			zap.Uint("tenant_id", tenantID),
			zap.Int64("count", swept))
	}
	return swept, nil
}

// ListByTenant returns the tenant's invitations for admins, sweeping lapsed
// ones first so the listing reflects reality.
func (s *InvitationService) ListByTenant(ctx context.Context, callerID, tenantID uint) ([]model.Invitation, error) {
	if err := s.members.requireAdmin(ctx, tenantID, callerID); err != nil {
		return nil, err
	}
	if _, err := s.SweepExpired(ctx, tenantID); err != nil {
		s.log.Warn("Failed to sweep expired invitations before listing",
			zap.Uint("tenant_id", tenantID),
			zap.Error(err))
	}
	return s.store.InvitationsByTenant(ctx, tenantID)
}
