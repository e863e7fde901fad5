package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"membership-service/pkg/logger"
	"membership-service/prometheus"
)

// ListMembers returns the tenant roster, newest first
func (h *Handler) ListMembers(c echo.Context) error {
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

	members, err := h.members.ListMembers(c.Request().Context(), caller.UserID, tenantID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, members)
}

// AddMember creates a pending membership for an email address
func (h *Handler) AddMember(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_member_add")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	tenantID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse add member request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" {
		prometheus.RecordAuthError("incomplete_member_add")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	if req.Role == "" {
		req.Role = "member"
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	membership, err := h.members.AddMember(c.Request().Context(), caller.UserID, tenantID, req.Email, req.Role)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":    "Member added, pending confirmation",
		"membership": membership,
	})
}

// ChangeRole updates a membership's role
func (h *Handler) ChangeRole(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	membershipID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid membership ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid membership ID"})
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse role change request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := h.members.ChangeRole(c.Request().Context(), caller.UserID, membershipID, req.Role); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Role updated successfully"})
}

// RemoveMember hard-deletes a membership
func (h *Handler) RemoveMember(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	membershipID, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid membership ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid membership ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := h.members.RemoveMember(c.Request().Context(), caller.UserID, membershipID); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Member removed successfully"})
}

// ConfirmIdentity activates every pending membership matching the caller's
// email, across all tenants. Invoked once, when an identity first
// authenticates.
func (h *Handler) ConfirmIdentity(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	activated, err := h.members.ConfirmMembership(c.Request().Context(), caller.Email, caller.UserID)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Memberships confirmed",
		"memberships": activated,
	})
}

// RefreshMemberCount recomputes the tenant's cached active-member count
func (h *Handler) RefreshMemberCount(c echo.Context) error {
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
	member, err := h.members.IsMember(ctx, tenantID, caller.UserID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	if !member {
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := h.members.RefreshMemberCount(ctx, tenantID); err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Member count refreshed"})
}
