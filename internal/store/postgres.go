package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
)

// usageColumns maps a resource to its current-counter column. AdjustUsage
// builds a single conditional UPDATE from it so increments stay atomic on the
// server side.
var usageColumns = map[model.Resource]string{
	model.ResourceCompanies: "current_companies",
	model.ResourceUsers:     "current_users",
	model.ResourceDocuments: "current_documents",
	model.ResourceLogos:     "current_logos",
	model.ResourceStorage:   "current_storage_mb",
}

// PostgresStore implements Store on top of a gorm postgres connection.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an initialized gorm connection.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return err
}

// --- tenants ---

func (s *PostgresStore) CreateTenantSetup(ctx context.Context, tenant *model.Tenant, admin *model.Membership, ledger *model.QuotaLedger) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		admin.TenantID = tenant.ID
		if err := tx.Create(admin).Error; err != nil {
			return err
		}
		ledger.TenantID = tenant.ID
		return tx.Create(ledger).Error
	})
}

func (s *PostgresStore) TenantByID(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &tenant, nil
}

func (s *PostgresStore) FirstTenantByOwner(ctx context.Context, ownerID uint) (*model.Tenant, error) {
	var tenant model.Tenant
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		First(&tenant).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &tenant, nil
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, tenant *model.Tenant) error {
	return s.db.WithContext(ctx).Save(tenant).Error
}

func (s *PostgresStore) SetMemberCount(ctx context.Context, tenantID uint, count int64) error {
	return s.db.WithContext(ctx).
		Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Update("member_count", count).Error
}

// --- memberships ---

func (s *PostgresStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *PostgresStore) MembershipByID(ctx context.Context, id uint) (*model.Membership, error) {
	var m model.Membership
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &m, nil
}

func (s *PostgresStore) MembershipsByTenant(ctx context.Context, tenantID uint) ([]model.Membership, error) {
	var members []model.Membership
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&members).Error
	return members, err
}

func (s *PostgresStore) MembershipsByUser(ctx context.Context, userID uint) ([]model.Membership, error) {
	var members []model.Membership
	err := s.db.WithContext(ctx).
		Preload("Tenant").
		Where("user_id = ? AND status = ?", userID, model.MembershipStatusActive).
		Find(&members).Error
	return members, err
}

func (s *PostgresStore) HasActiveMembership(ctx context.Context, tenantID, userID uint, role string) (bool, error) {
	q := s.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("tenant_id = ? AND user_id = ? AND status = ?", tenantID, userID, model.MembershipStatusActive)
	if role != "" {
		q = q.Where("role = ?", role)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostgresStore) ActiveAdminCount(ctx context.Context, tenantID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("tenant_id = ? AND role = ? AND status = ?", tenantID, model.RoleAdmin, model.MembershipStatusActive).
		Count(&count).Error
	return count, err
}

func (s *PostgresStore) ActiveMemberCount(ctx context.Context, tenantID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Membership{}).
		Where("tenant_id = ? AND status = ?", tenantID, model.MembershipStatusActive).
		Count(&count).Error
	return count, err
}

func (s *PostgresStore) UpdateMembership(ctx context.Context, m *model.Membership) error {
	return s.db.WithContext(ctx).Save(m).Error
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Membership{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActivatePendingByEmail(ctx context.Context, email string, userID uint) ([]model.Membership, error) {
	var activated []model.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []model.Membership
		if err := tx.Where("email = ? AND status = ?", email, model.MembershipStatusPending).
			Find(&pending).Error; err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		now := time.Now()
		ids := make([]uint, 0, len(pending))
		for i := range pending {
			ids = append(ids, pending[i].ID)
		}
		err := tx.Model(&model.Membership{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"user_id":   userID,
				"status":    model.MembershipStatusActive,
				"joined_at": now,
			}).Error
		if err != nil {
			return err
		}
		for i := range pending {
			pending[i].Activate(userID)
		}
		activated = pending
		return nil
	})
	return activated, err
}

// --- invitations ---

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	return s.db.WithContext(ctx).Create(inv).Error
}

func (s *PostgresStore) InvitationByID(ctx context.Context, id uint) (*model.Invitation, error) {
	var inv model.Invitation
	if err := s.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &inv, nil
}

func (s *PostgresStore) InvitationByToken(ctx context.Context, token string) (*model.Invitation, error) {
	var inv model.Invitation
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, translateErr(err)
	}
	return &inv, nil
}

func (s *PostgresStore) InvitationsByTenant(ctx context.Context, tenantID uint) ([]model.Invitation, error) {
	var invs []model.Invitation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

func (s *PostgresStore) PendingInvitationExists(ctx context.Context, tenantID uint, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("tenant_id = ? AND email = ? AND status = ?", tenantID, email, model.InvitationStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostgresStore) UpdateInvitation(ctx context.Context, inv *model.Invitation) error {
	return s.db.WithContext(ctx).Save(inv).Error
}

func (s *PostgresStore) DeleteInvitation(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Invitation{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ExpirePending(ctx context.Context, tenantID uint, now time.Time) (int64, error) {
	q := s.db.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("status = ? AND expires_at < ?", model.InvitationStatusPending, now)
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	res := q.Update("status", model.InvitationStatusExpired)
	return res.RowsAffected, res.Error
}

// --- quota ledgers ---

func (s *PostgresStore) CreateLedger(ctx context.Context, ledger *model.QuotaLedger) error {
	return s.db.WithContext(ctx).Create(ledger).Error
}

func (s *PostgresStore) LedgerByTenant(ctx context.Context, tenantID uint) (*model.QuotaLedger, error) {
	var ledger model.QuotaLedger
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&ledger).Error; err != nil {
		return nil, translateErr(err)
	}
	return &ledger, nil
}

func (s *PostgresStore) UpdateLedger(ctx context.Context, ledger *model.QuotaLedger) error {
	return s.db.WithContext(ctx).Save(ledger).Error
}

func (s *PostgresStore) AdjustUsage(ctx context.Context, tenantID uint, resource model.Resource, delta int64) error {
	col, ok := usageColumns[resource]
	if !ok {
		return fmt.Errorf("unknown quota resource %q", resource)
	}
	// Single conditional UPDATE so concurrent adjustments never lose writes.
	res := s.db.WithContext(ctx).
		Model(&model.QuotaLedger{}).
		Where("tenant_id = ?", tenantID).
		Update(col, gorm.Expr("GREATEST("+col+" + ?, 0)", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetDocuments(ctx context.Context, tenantID uint, now time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&model.QuotaLedger{})
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	} else {
		q = q.Where("documents_reset_at <= ?", now)
	}
	res := q.Updates(map[string]interface{}{
		"current_documents":  0,
		"documents_reset_at": model.NextPeriodStart(now),
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if tenantID != 0 && res.RowsAffected == 0 {
		return 0, apperr.ErrNotFound
	}
	return res.RowsAffected, nil
}

// --- plan catalog ---

func (s *PostgresStore) PlanByCode(ctx context.Context, code string) (*model.Plan, error) {
	var plan model.Plan
	if err := s.db.WithContext(ctx).Where("code = ? AND active = ?", code, true).First(&plan).Error; err != nil {
		return nil, translateErr(err)
	}
	return &plan, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("sort_order ASC").
		Find(&plans).Error
	return plans, err
}

func (s *PostgresStore) SeedPlans(ctx context.Context, plans []model.Plan) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Plan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&plans).Error
}
