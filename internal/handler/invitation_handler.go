package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"membership-service/pkg/logger"
	"membership-service/prometheus"
)

// CreateInvitation issues a pending invitation for an email to join a tenant
func (h *Handler) CreateInvitation(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_invitation_create")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenantID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Email   string `json:"email"`
		Role    string `json:"role,omitempty"`
		Message string `json:"message,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse invitation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" {
		prometheus.RecordAuthError("incomplete_invitation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	if req.Role == "" {
		req.Role = "member"
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	inv, err := h.invites.Create(c.Request().Context(), caller, tenantID, req.Email, req.Role, req.Message)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":    "Invitation created successfully",
		"invitation": inv,
	})
}

// GetInvitationByToken is the public lookup path for an invitee following a
// link; no authentication required.
func (h *Handler) GetInvitationByToken(c echo.Context) error {
	log := logger.FromContext(c)

	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	inv, err := h.invites.GetByToken(c.Request().Context(), token)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, inv)
}

// AcceptInvitation consumes the invitation and activates the membership as
// one logical unit. The caller's email must match the invitation's email.
func (h *Handler) AcceptInvitation(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_invitation_accept")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse accept request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	inv, membership, err := h.tenants.AcceptInvitation(c.Request().Context(), req.Token, caller)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	log.Info("Invitation accepted",
		zap.Uint("invitation_id", inv.ID),
		zap.Uint("tenant_id", inv.TenantID),
		zap.Uint("user_id", caller.UserID))

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "Invitation accepted",
		"invitation": inv,
		"membership": membership,
	})
}

// RejectInvitation declines a pending invitation; addressed by token so the
// invitee needs no account.
func (h *Handler) RejectInvitation(c echo.Context) error {
	log := logger.FromContext(c)

	token := c.Param("token")
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	inv, err := h.invites.Reject(c.Request().Context(), token)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":    "Invitation rejected",
		"invitation": inv,
	})
}

// CancelInvitation hard-deletes an invitation regardless of status
func (h *Handler) CancelInvitation(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	invitationID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid invitation ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invitation ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := h.invites.Cancel(c.Request().Context(), caller.UserID, invitationID); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Invitation cancelled"})
}

// ResendInvitation issues a fresh token and expiry and forces the invitation
// back to pending
func (h *Handler) ResendInvitation(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	invitationID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid invitation ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invitation ID"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	inv, err := h.invites.Resend(c.Request().Context(), caller.UserID, invitationID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":    "Invitation resent",
		"invitation": inv,
	})
}

// ListInvitations returns the tenant's invitations for admins, sweeping
// lapsed ones first
func (h *Handler) ListInvitations(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenantID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	invs, err := h.invites.ListByTenant(c.Request().Context(), caller.UserID, tenantID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, invs)
}

// SweepInvitations batch-expires the tenant's lapsed pending invitations
func (h *Handler) SweepInvitations(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenantID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	ctx := c.Request().Context()
	admin, err := h.members.IsAdmin(ctx, tenantID, caller.UserID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	if !admin {
		prometheus.RecordAuthError("tenant_permission_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	swept, err := h.invites.SweepExpired(ctx, tenantID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Expired invitations swept",
		"count":   swept,
	})
}
