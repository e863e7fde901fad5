package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"membership-service/pkg/jwtutil"
	"membership-service/pkg/logger"
	"membership-service/prometheus"
)

// CreateTenant handles tenant creation. The caller becomes the first active
// admin and the tenant's quota ledger is provisioned from the chosen plan.
func (h *Handler) CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_tenant_creation")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// Parse request
	var req struct {
		Name    string `json:"name"`
		Address string `json:"address,omitempty"`
		Plan    string `json:"plan,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		log.Error("Invalid tenant data", zap.String("name", req.Name))
		prometheus.RecordAuthError("incomplete_tenant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	tenant, err := h.tenants.CreateTenant(c.Request().Context(), caller, req.Name, req.Address, req.Plan)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.Uint("id", tenant.ID),
		zap.Uint("owner_id", tenant.OwnerID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant created successfully",
		"tenant":  tenant,
	})
}

// GetTenant retrieves tenant details for members and the owner
func (h *Handler) GetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("access")

	caller, ok := callerIdentity(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_tenant_access")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	tenant, err := h.tenants.GetTenant(c.Request().Context(), caller.UserID, id)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	return c.JSON(http.StatusOK, tenant)
}

// UpdateTenant edits the tenant's display name and address
func (h *Handler) UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := pathID(c, "id")
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Name    string `json:"name,omitempty"`
		Address string `json:"address,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant update request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	tenant, err := h.tenants.UpdateTenant(c.Request().Context(), caller.UserID, id, req.Name, req.Address)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Tenant updated successfully",
		"tenant":  tenant,
	})
}

// ListUserTenants retrieves all tenants associated with the authenticated user
func (h *Handler) ListUserTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	caller, ok := callerIdentity(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_tenant_listing")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	memberships, err := h.tenants.ListUserTenants(c.Request().Context(), caller.UserID)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	// Format response
	type TenantResponse struct {
		ID        uint      `json:"id"`
		Name      string    `json:"name"`
		Address   string    `json:"address"`
		Role      string    `json:"role"`
		JoinedAt  time.Time `json:"joined_at"`
		CreatedAt time.Time `json:"created_at"`
	}

	response := make([]TenantResponse, 0, len(memberships))
	for _, m := range memberships {
		item := TenantResponse{
			ID:        m.TenantID,
			Name:      m.Tenant.Name,
			Address:   m.Tenant.Address,
			Role:      m.Role,
			CreatedAt: m.Tenant.CreatedAt,
		}
		if m.JoinedAt != nil {
			item.JoinedAt = *m.JoinedAt
		}
		response = append(response, item)
	}

	return c.JSON(http.StatusOK, response)
}

// SwitchTenant generates a new token with a different tenant context
func (h *Handler) SwitchTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("switch")

	caller, ok := callerIdentity(c)
	if !ok {
		prometheus.RecordAuthError("unauthorized_tenant_switch")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		TenantID uint `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant switch request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.TenantID == 0 {
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	ctx := c.Request().Context()
	role, err := h.members.RoleOf(ctx, req.TenantID, caller.UserID)
	if err != nil {
		log.Warn("Unauthorized tenant switch attempt",
			zap.Uint("user_id", caller.UserID),
			zap.Uint("tenant_id", req.TenantID))
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
	}

	tenant, err := h.tenants.GetTenant(ctx, caller.UserID, req.TenantID)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	tenantID := req.TenantID
	token, err := jwtutil.GenerateTokenWithTenant(caller.Email, caller.Name, caller.UserID, &tenantID, tenant.Name, role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User switched tenant",
		zap.String("email", caller.Email),
		zap.Uint("user_id", caller.UserID),
		zap.Uint("tenant_id", req.TenantID))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"tenant": map[string]interface{}{
			"id":   tenant.ID,
			"name": tenant.Name,
			"role": role,
		},
	})
}

// TenantAllowance reports whether the caller may create another tenant
func (h *Handler) TenantAllowance(c echo.Context) error {
	log := logger.FromContext(c)

	caller, ok := callerIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	allowance, err := h.quota.CanCreateTenant(c.Request().Context(), caller.UserID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, allowance)
}
