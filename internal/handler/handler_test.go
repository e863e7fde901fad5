package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
	"membership-service/internal/service"
	"membership-service/internal/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	st := store.NewMemoryStore()
	log := zap.NewNop()
	members := service.NewMembershipService(st, log)
	invites := service.NewInvitationService(st, members, 7*24*time.Hour, log)
	quota := service.NewQuotaService(st, model.PlanFree, log)
	tenants := service.NewTenantService(st, members, invites, quota, log)
	return New(tenants, members, invites, quota)
}

func newJSONContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func authenticate(c echo.Context, userID uint, email string) {
	c.Set("user_id", userID)
	c.Set("email", email)
	c.Set("name", "Test User")
}

func TestHealthCheck(t *testing.T) {
	c, rec := newJSONContext(http.MethodGet, "/health", "")
	require.NoError(t, HealthCheck(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "membership-service")
}

func TestCreateTenantRequiresAuth(t *testing.T) {
	h := newTestHandler(t)
	c, rec := newJSONContext(http.MethodPost, "/api/tenants", `{"name":"Acme"}`)

	require.NoError(t, h.CreateTenant(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTenantValidatesName(t *testing.T) {
	h := newTestHandler(t)
	c, rec := newJSONContext(http.MethodPost, "/api/tenants", `{}`)
	authenticate(c, 1, "alice@example.com")

	require.NoError(t, h.CreateTenant(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTenantSuccess(t *testing.T) {
	h := newTestHandler(t)
	c, rec := newJSONContext(http.MethodPost, "/api/tenants", `{"name":"Acme","plan":"basic"}`)
	authenticate(c, 1, "alice@example.com")

	require.NoError(t, h.CreateTenant(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Acme"`)
}

func TestCreateTenantForbiddenWhenLimitReached(t *testing.T) {
	h := newTestHandler(t)

	c, rec := newJSONContext(http.MethodPost, "/api/tenants", `{"name":"First","plan":"free"}`)
	authenticate(c, 1, "alice@example.com")
	require.NoError(t, h.CreateTenant(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Free allows one company, so the second attempt is rejected.
	c, rec = newJSONContext(http.MethodPost, "/api/tenants", `{"name":"Second","plan":"free"}`)
	authenticate(c, 1, "alice@example.com")
	require.NoError(t, h.CreateTenant(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDecrementQuotaRequiresAdmin(t *testing.T) {
	h := newTestHandler(t)
	ctx := context.Background()

	alice := service.Identity{UserID: 1, Email: "alice@example.com", Name: "Alice"}
	tenant, err := h.tenants.CreateTenant(ctx, alice, "Acme", "", model.PlanBasic)
	require.NoError(t, err)
	_, err = h.members.AddMember(ctx, alice.UserID, tenant.ID, "bob@example.com", model.RoleMember)
	require.NoError(t, err)
	_, err = h.members.ConfirmMembership(ctx, "bob@example.com", 2)
	require.NoError(t, err)

	id := strconv.FormatUint(uint64(tenant.ID), 10)

	// A plain member may report usage up but not down.
	c, rec := newJSONContext(http.MethodPost, "/api/tenants/"+id+"/quota/increment", `{"resource":"documents"}`)
	authenticate(c, 2, "bob@example.com")
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.IncrementQuota(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newJSONContext(http.MethodPost, "/api/tenants/"+id+"/quota/decrement", `{"resource":"documents"}`)
	authenticate(c, 2, "bob@example.com")
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.DecrementQuota(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newJSONContext(http.MethodPost, "/api/tenants/"+id+"/quota/decrement", `{"resource":"documents"}`)
	authenticate(c, 1, "alice@example.com")
	c.SetParamNames("id")
	c.SetParamValues(id)
	require.NoError(t, h.DecrementQuota(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", apperr.ErrForbidden, http.StatusForbidden},
		{"not found", apperr.ErrNotFound, http.StatusNotFound},
		{"conflict", apperr.ErrConflict, http.StatusConflict},
		{"invariant", apperr.ErrInvariant, http.StatusConflict},
		{"invalid state", apperr.ErrInvalidState, http.StatusUnprocessableEntity},
		{"expired", apperr.ErrExpired, http.StatusGone},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newJSONContext(http.MethodGet, "/", "")
			require.NoError(t, writeServiceError(c, zap.NewNop(), tt.err))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetInvitationByTokenNotFound(t *testing.T) {
	h := newTestHandler(t)
	c, rec := newJSONContext(http.MethodGet, "/invitations/deadbeef", "")
	c.SetParamNames("token")
	c.SetParamValues("deadbeef")

	require.NoError(t, h.GetInvitationByToken(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPlans(t *testing.T) {
	h := newTestHandler(t)

	// Catalog starts empty; an empty list is a valid response, not an error.
	c, rec := newJSONContext(http.MethodGet, "/plans", "")
	require.NoError(t, h.ListPlans(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
