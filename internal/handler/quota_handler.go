package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"membership-service/internal/model"
	"membership-service/pkg/logger"
	"membership-service/prometheus"
)

// requireTenantMember resolves the tenant ID path parameter and checks the
// caller is an active member. On failure the response is already written and
// ok is false. Quota reads are member-visible; writes are gated separately.
func (h *Handler) requireTenantMember(c echo.Context) (tenantID, userID uint, ok bool) {
	caller, authed := callerIdentity(c)
	if !authed {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		return 0, 0, false
	}
	tenantID, err := pathID(c, "id")
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
		return 0, 0, false
	}
	member, err := h.members.IsMember(c.Request().Context(), tenantID, caller.UserID)
	if err != nil {
		_ = writeServiceError(c, logger.FromContext(c), err)
		return 0, 0, false
	}
	if !member {
		prometheus.RecordAuthError("tenant_access_denied")
		_ = c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		return 0, 0, false
	}
	return tenantID, caller.UserID, true
}

// requireTenantAdmin is requireTenantMember with the role bar raised.
func (h *Handler) requireTenantAdmin(c echo.Context) (tenantID, userID uint, ok bool) {
	caller, authed := callerIdentity(c)
	if !authed {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		return 0, 0, false
	}
	tenantID, err := pathID(c, "id")
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
		return 0, 0, false
	}
	admin, err := h.members.IsAdmin(c.Request().Context(), tenantID, caller.UserID)
	if err != nil {
		_ = writeServiceError(c, logger.FromContext(c), err)
		return 0, 0, false
	}
	if !admin {
		prometheus.RecordAuthError("tenant_permission_denied")
		_ = c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
		return 0, 0, false
	}
	return tenantID, caller.UserID, true
}

// GetQuota returns the tenant's full usage ledger
func (h *Handler) GetQuota(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, _, ok := h.requireTenantMember(c)
	if !ok {
		return nil
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	ledger, err := h.quota.Get(c.Request().Context(), tenantID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, ledger)
}

// CheckQuota reports whether a single resource is at or over its limit
func (h *Handler) CheckQuota(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, _, ok := h.requireTenantMember(c)
	if !ok {
		return nil
	}

	resource := model.Resource(c.Param("resource"))
	if !resource.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown resource"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	exceeded, err := h.quota.IsExceeded(c.Request().Context(), tenantID, resource)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"resource": resource,
		"exceeded": exceeded,
	})
}

// IncrementQuota raises a resource counter; called by sibling services when
// they create a billable object
func (h *Handler) IncrementQuota(c echo.Context) error {
	return h.adjustQuota(c, false)
}

// DecrementQuota lowers a resource counter, clamped at zero. Admin-only:
// lowering a counter can un-exceed the tenant's own quota.
func (h *Handler) DecrementQuota(c echo.Context) error {
	return h.adjustQuota(c, true)
}

func (h *Handler) adjustQuota(c echo.Context, down bool) error {
	log := logger.FromContext(c)

	var tenantID uint
	var ok bool
	if down {
		tenantID, _, ok = h.requireTenantAdmin(c)
	} else {
		tenantID, _, ok = h.requireTenantMember(c)
	}
	if !ok {
		return nil
	}

	var req struct {
		Resource string `json:"resource"`
		Amount   int64  `json:"amount,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse quota adjustment", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	resource := model.Resource(req.Resource)
	if !resource.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown resource"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	ctx := c.Request().Context()
	var err error
	if down {
		err = h.quota.Decrement(ctx, tenantID, resource, req.Amount)
	} else {
		err = h.quota.Increment(ctx, tenantID, resource, req.Amount)
	}
	if err != nil {
		return writeServiceError(c, log, err)
	}

	ledger, err := h.quota.Get(ctx, tenantID)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, ledger)
}

// ProvisionQuota creates a ledger for a tenant that has none, typically after
// a migration or manual repair
func (h *Handler) ProvisionQuota(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, _, ok := h.requireTenantAdmin(c)
	if !ok {
		return nil
	}

	var req struct {
		Plan string `json:"plan,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse provision request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	ledger, err := h.quota.Provision(c.Request().Context(), tenantID, req.Plan)
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Quota provisioned",
		"quota":   ledger,
	})
}

// ChangePlan swaps the tenant onto a different plan. Limits and features are
// replaced; usage counters are preserved.
func (h *Handler) ChangePlan(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, userID, ok := h.requireTenantAdmin(c)
	if !ok {
		return nil
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse plan change request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Plan == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	ledger, err := h.quota.ChangePlan(c.Request().Context(), tenantID, req.Plan)
	if err != nil {
		return writeServiceError(c, log, err)
	}

	log.Info("Plan changed",
		zap.Uint("tenant_id", tenantID),
		zap.Uint("user_id", userID),
		zap.String("plan", ledger.PlanCode))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Plan changed successfully",
		"quota":   ledger,
	})
}

// ListPlans is the public plan catalog
func (h *Handler) ListPlans(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	plans, err := h.quota.ListPlans(c.Request().Context())
	if err != nil {
		return writeServiceError(c, log, err)
	}
	return c.JSON(http.StatusOK, plans)
}
