package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
	"membership-service/internal/store"
	"membership-service/prometheus"
)

// TenantAllowance is the answer to "may this identity create another tenant".
type TenantAllowance struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Current int64  `json:"current"`
	Max     int64  `json:"max"`
	Plan    string `json:"plan,omitempty"`
}

// QuotaService owns per-tenant usage counters and limits. Limits are
// snapshots of the plan catalog taken at provisioning time; counter updates
// go through the store's atomic adjust so concurrent requests never lose
// increments.
type QuotaService struct {
	store       store.Store
	defaultPlan string
	log         *zap.Logger
}

func NewQuotaService(st store.Store, defaultPlan string, log *zap.Logger) *QuotaService {
	return &QuotaService{store: st, defaultPlan: defaultPlan, log: log}
}

// resolvePlan looks the code up in the live catalog and falls back to the
// compiled-in default table, preferring availability over strict failure so
// onboarding keeps working even when catalog data is absent.
func (s *QuotaService) resolvePlan(ctx context.Context, code string) *model.Plan {
	if code == "" {
		code = s.defaultPlan
	}
	if plan, err := s.store.PlanByCode(ctx, code); err == nil {
		return plan
	} else if !errors.Is(err, apperr.ErrNotFound) {
		s.log.Warn("Plan catalog lookup failed, using built-in defaults",
			zap.String("plan", code),
			zap.Error(err))
	}
	if plan, ok := model.DefaultPlan(code); ok {
		return &plan
	}
	s.log.Warn("Unknown plan code, falling back to free defaults", zap.String("plan", code))
	fallback, _ := model.DefaultPlan(model.PlanFree)
	return &fallback
}

// BuildLedger snapshots the plan's limits and feature bundle into a fresh
// ledger with all counters at zero.
func (s *QuotaService) BuildLedger(ctx context.Context, planCode string) *model.QuotaLedger {
	plan := s.resolvePlan(ctx, planCode)
	now := time.Now()
	ledger := &model.QuotaLedger{
		Status:           model.QuotaStatusActive,
		DocumentsResetAt: model.NextPeriodStart(now),
	}
	ledger.ApplyPlan(plan)
	if plan.Price > 0 {
		next := now.AddDate(0, 1, 0)
		ledger.NextPaymentAt = &next
	}
	return ledger
}

// Provision creates the tenant's ledger from the named plan.
func (s *QuotaService) Provision(ctx context.Context, tenantID uint, planCode string) (*model.QuotaLedger, error) {
	ledger := s.BuildLedger(ctx, planCode)
	ledger.TenantID = tenantID
	if err := s.store.CreateLedger(ctx, ledger); err != nil {
		return nil, err
	}
	prometheus.RecordQuotaOperation("provision")
	s.log.Info("Quota ledger provisioned",
		zap.Uint("tenant_id", tenantID),
		zap.String("plan", ledger.PlanCode))
	return ledger, nil
}

// Get returns the tenant's ledger.
func (s *QuotaService) Get(ctx context.Context, tenantID uint) (*model.QuotaLedger, error) {
	return s.store.LedgerByTenant(ctx, tenantID)
}

// IsExceeded reports whether the resource is at or over its limit. A max of
// -1 is unlimited and never exceeded.
func (s *QuotaService) IsExceeded(ctx context.Context, tenantID uint, resource model.Resource) (bool, error) {
	ledger, err := s.store.LedgerByTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	exceeded := ledger.IsExceeded(resource)
	if exceeded {
		prometheus.RecordQuotaExceeded(tenantID, string(resource))
	}
	return exceeded, nil
}

// Increment raises the resource counter by amount (default 1).
func (s *QuotaService) Increment(ctx context.Context, tenantID uint, resource model.Resource, amount int64) error {
	if amount <= 0 {
		amount = 1
	}
	if err := s.store.AdjustUsage(ctx, tenantID, resource, amount); err != nil {
		return err
	}
	prometheus.RecordQuotaOperation("increment")
	return nil
}

// Decrement lowers the resource counter by amount (default 1), clamped at
// zero by the store.
func (s *QuotaService) Decrement(ctx context.Context, tenantID uint, resource model.Resource, amount int64) error {
	if amount <= 0 {
		amount = 1
	}
	if err := s.store.AdjustUsage(ctx, tenantID, resource, -amount); err != nil {
		return err
	}
	prometheus.RecordQuotaOperation("decrement")
	return nil
}

// ChangePlan replaces every limit and the feature bundle from the new plan's
// defaults. Current counters are never reset, so a downgraded tenant can end
// up over quota immediately; IsExceeded reports that truthfully and it is the
// caller's job to react.
func (s *QuotaService) ChangePlan(ctx context.Context, tenantID uint, newPlan string) (*model.QuotaLedger, error) {
	ledger, err := s.store.LedgerByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plan := s.resolvePlan(ctx, newPlan)
	ledger.ApplyPlan(plan)
	if plan.Price > 0 && ledger.NextPaymentAt == nil {
		next := time.Now().AddDate(0, 1, 0)
		ledger.NextPaymentAt = &next
	}
	if err := s.store.UpdateLedger(ctx, ledger); err != nil {
		return nil, err
	}
	prometheus.RecordQuotaOperation("change_plan")
	s.log.Info("Tenant plan changed",
		zap.Uint("tenant_id", tenantID),
		zap.String("plan", plan.Code))
	return ledger, nil
}

// ResetPeriodCounter zeroes the documents counter and advances the reset date
// to the first of the next period. Intended for an external scheduler, not
// user action.
func (s *QuotaService) ResetPeriodCounter(ctx context.Context, tenantID uint) error {
	if _, err := s.store.ResetDocuments(ctx, tenantID, time.Now()); err != nil {
		return err
	}
	prometheus.RecordQuotaOperation("reset_period")
	return nil
}

// SweepDueResets resets the documents counter on every ledger whose period
// has rolled over. Idempotent; safe to run concurrently with normal traffic.
func (s *QuotaService) SweepDueResets(ctx context.Context) (int64, error) {
	return s.store.ResetDocuments(ctx, 0, time.Now())
}

// ListPlans returns the purchasable plan catalog.
func (s *QuotaService) ListPlans(ctx context.Context) ([]model.Plan, error) {
	return s.store.ListPlans(ctx)
}

// EnsureCatalog seeds the plan catalog with the built-in defaults when the
// corresponding codes are missing. Called once at startup.
func (s *QuotaService) EnsureCatalog(ctx context.Context) error {
	if err := s.store.SeedPlans(ctx, model.DefaultPlans); err != nil {
		return err
	}
	s.log.Info("Plan catalog ready", zap.Int("plans", len(model.DefaultPlans)))
	return nil
}

// CanCreateTenant decides whether the identity may create another tenant.
// The very first tenant is always allowed, even before any ledger exists.
// Subsequent creations are checked against the companies limit of the owner's
// oldest existing tenant's ledger: the first tenant's plan is authoritative
// for how many tenants the owner may hold.
func (s *QuotaService) CanCreateTenant(ctx context.Context, ownerID uint) (*TenantAllowance, error) {
	first, err := s.store.FirstTenantByOwner(ctx, ownerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &TenantAllowance{Allowed: true, Current: 0, Max: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.LedgerByTenant(ctx, first.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		// No ledger for the authoritative tenant; allow rather than block
		// onboarding on missing quota data.
		s.log.Warn("Authoritative tenant has no quota ledger, allowing tenant creation",
			zap.Uint("owner_id", ownerID),
			zap.Uint("tenant_id", first.ID))
		return &TenantAllowance{Allowed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	current, max, err := ledger.Usage(model.ResourceCompanies)
	if err != nil {
		return nil, err
	}
	allowance := &TenantAllowance{
		Current: current,
		Max:     max,
		Plan:    ledger.PlanCode,
	}
	if max == model.Unlimited || current < max {
		allowance.Allowed = true
		return allowance, nil
	}
	allowance.Reason = fmt.Sprintf("company limit reached for plan %s (%d of %d)", ledger.PlanCode, current, max)
	prometheus.RecordQuotaExceeded(first.ID, string(model.ResourceCompanies))
	return allowance, nil
}
