package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"membership-service/internal/apperr"
	"membership-service/internal/service"
	"membership-service/prometheus"
)

// Handler carries the domain services consumed by the HTTP surface.
type Handler struct {
	tenants *service.TenantService
	members *service.MembershipService
	invites *service.InvitationService
	quota   *service.QuotaService
}

func New(tenants *service.TenantService, members *service.MembershipService, invites *service.InvitationService, quota *service.QuotaService) *Handler {
	return &Handler{tenants: tenants, members: members, invites: invites, quota: quota}
}

// MetricsHandler serves the Prometheus metrics endpoint
func MetricsHandler(c echo.Context) error {
	prometheus.GetPrometheusHandler().ServeHTTP(c.Response(), c.Request())
	return nil
}

// callerIdentity extracts the authenticated identity seeded by AuthMiddleware.
func callerIdentity(c echo.Context) (service.Identity, bool) {
	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return service.Identity{}, false
	}
	email, _ := c.Get("email").(string)
	name, _ := c.Get("name").(string)
	return service.Identity{UserID: userID, Email: email, Name: name}, true
}

// writeServiceError maps domain errors to HTTP responses. Authorization and
// state-machine violations surface as typed statuses so the presentation
// layer can decide the user-facing message.
func writeServiceError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		prometheus.RecordAuthError("forbidden")
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvariant):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidState):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
	default:
		log.Error("Internal error", zap.Error(err))
		prometheus.RecordAuthError("internal_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
