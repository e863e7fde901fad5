package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"membership-service/internal/apperr"
	"membership-service/internal/model"
)

// MemoryStore is an in-memory Store used by tests and local development. All
// operations are guarded by one mutex, which also makes counter adjustments
// atomic.
type MemoryStore struct {
	mu sync.Mutex

	tenants     map[uint]model.Tenant
	memberships map[uint]model.Membership
	invitations map[uint]model.Invitation
	ledgers     map[uint]model.QuotaLedger // keyed by tenant ID
	plans       map[string]model.Plan

	nextTenantID     uint
	nextMembershipID uint
	nextInvitationID uint
	nextLedgerID     uint
	nextPlanID       uint
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[uint]model.Tenant),
		memberships: make(map[uint]model.Membership),
		invitations: make(map[uint]model.Invitation),
		ledgers:     make(map[uint]model.QuotaLedger),
		plans:       make(map[string]model.Plan),
	}
}

// --- tenants ---

func (s *MemoryStore) CreateTenantSetup(ctx context.Context, tenant *model.Tenant, admin *model.Membership, ledger *model.QuotaLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.nextTenantID++
	tenant.ID = s.nextTenantID
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	s.tenants[tenant.ID] = *tenant

	s.nextMembershipID++
	admin.ID = s.nextMembershipID
	admin.TenantID = tenant.ID
	admin.CreatedAt = now
	admin.UpdatedAt = now
	s.memberships[admin.ID] = *admin

	s.nextLedgerID++
	ledger.ID = s.nextLedgerID
	ledger.TenantID = tenant.ID
	ledger.CreatedAt = now
	ledger.UpdatedAt = now
	s.ledgers[tenant.ID] = *ledger
	return nil
}

func (s *MemoryStore) TenantByID(ctx context.Context, id uint) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &tenant, nil
}

func (s *MemoryStore) FirstTenantByOwner(ctx context.Context, ownerID uint) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first *model.Tenant
	for id := range s.tenants {
		tenant := s.tenants[id]
		if tenant.OwnerID != ownerID {
			continue
		}
		if first == nil || tenant.ID < first.ID {
			t := tenant
			first = &t
		}
	}
	if first == nil {
		return nil, apperr.ErrNotFound
	}
	return first, nil
}

func (s *MemoryStore) UpdateTenant(ctx context.Context, tenant *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenant.ID]; !ok {
		return apperr.ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	s.tenants[tenant.ID] = *tenant
	return nil
}

func (s *MemoryStore) SetMemberCount(ctx context.Context, tenantID uint, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return apperr.ErrNotFound
	}
	tenant.MemberCount = int(count)
	s.tenants[tenantID] = tenant
	return nil
}

// --- memberships ---

func (s *MemoryStore) CreateMembership(ctx context.Context, m *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMembershipID++
	m.ID = s.nextMembershipID
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	s.memberships[m.ID] = *m
	return nil
}

func (s *MemoryStore) MembershipByID(ctx context.Context, id uint) (*model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) MembershipsByTenant(ctx context.Context, tenantID uint) ([]model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []model.Membership
	for _, m := range s.memberships {
		if m.TenantID == tenantID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID > members[j].ID
		}
		return members[i].CreatedAt.After(members[j].CreatedAt)
	})
	return members, nil
}

func (s *MemoryStore) MembershipsByUser(ctx context.Context, userID uint) ([]model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []model.Membership
	for _, m := range s.memberships {
		if m.UserID != nil && *m.UserID == userID && m.Status == model.MembershipStatusActive {
			if tenant, ok := s.tenants[m.TenantID]; ok {
				m.Tenant = tenant
			}
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (s *MemoryStore) HasActiveMembership(ctx context.Context, tenantID, userID uint, role string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.TenantID != tenantID || m.UserID == nil || *m.UserID != userID {
			continue
		}
		if m.Status != model.MembershipStatusActive {
			continue
		}
		if role != "" && m.Role != role {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) ActiveAdminCount(ctx context.Context, tenantID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.memberships {
		if m.TenantID == tenantID && m.IsActiveAdmin() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ActiveMemberCount(ctx context.Context, tenantID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, m := range s.memberships {
		if m.TenantID == tenantID && m.Status == model.MembershipStatusActive {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) UpdateMembership(ctx context.Context, m *model.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[m.ID]; !ok {
		return apperr.ErrNotFound
	}
	m.UpdatedAt = time.Now()
	s.memberships[m.ID] = *m
	return nil
}

func (s *MemoryStore) DeleteMembership(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.memberships, id)
	return nil
}

func (s *MemoryStore) ActivatePendingByEmail(ctx context.Context, email string, userID uint) ([]model.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var activated []model.Membership
	for id, m := range s.memberships {
		if m.Email != email || m.Status != model.MembershipStatusPending {
			continue
		}
		m.Activate(userID)
		m.UpdatedAt = time.Now()
		s.memberships[id] = m
		activated = append(activated, m)
	}
	sort.Slice(activated, func(i, j int) bool { return activated[i].ID < activated[j].ID })
	return activated, nil
}

// --- invitations ---

func (s *MemoryStore) CreateInvitation(ctx context.Context, inv *model.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextInvitationID++
	inv.ID = s.nextInvitationID
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	s.invitations[inv.ID] = *inv
	return nil
}

func (s *MemoryStore) InvitationByID(ctx context.Context, id uint) (*model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &inv, nil
}

func (s *MemoryStore) InvitationByToken(ctx context.Context, token string) (*model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.Token == token {
			found := inv
			return &found, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *MemoryStore) InvitationsByTenant(ctx context.Context, tenantID uint) ([]model.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var invs []model.Invitation
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID {
			invs = append(invs, inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].ID > invs[j].ID })
	return invs, nil
}

func (s *MemoryStore) PendingInvitationExists(ctx context.Context, tenantID uint, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID && inv.Email == email && inv.Status == model.InvitationStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateInvitation(ctx context.Context, inv *model.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.ID]; !ok {
		return apperr.ErrNotFound
	}
	inv.UpdatedAt = time.Now()
	s.invitations[inv.ID] = *inv
	return nil
}

func (s *MemoryStore) DeleteInvitation(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.invitations, id)
	return nil
}

func (s *MemoryStore) ExpirePending(ctx context.Context, tenantID uint, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var swept int64
	for id, inv := range s.invitations {
		if tenantID != 0 && inv.TenantID != tenantID {
			continue
		}
		if inv.Status != model.InvitationStatusPending || !now.After(inv.ExpiresAt) {
			continue
		}
		inv.MarkExpired()
		inv.UpdatedAt = now
		s.invitations[id] = inv
		swept++
	}
	return swept, nil
}

// --- quota ledgers ---

func (s *MemoryStore) CreateLedger(ctx context.Context, ledger *model.QuotaLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLedgerID++
	ledger.ID = s.nextLedgerID
	now := time.Now()
	ledger.CreatedAt = now
	ledger.UpdatedAt = now
	s.ledgers[ledger.TenantID] = *ledger
	return nil
}

func (s *MemoryStore) LedgerByTenant(ctx context.Context, tenantID uint) (*model.QuotaLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[tenantID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &ledger, nil
}

func (s *MemoryStore) UpdateLedger(ctx context.Context, ledger *model.QuotaLedger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[ledger.TenantID]; !ok {
		return apperr.ErrNotFound
	}
	ledger.UpdatedAt = time.Now()
	s.ledgers[ledger.TenantID] = *ledger
	return nil
}

func (s *MemoryStore) AdjustUsage(ctx context.Context, tenantID uint, resource model.Resource, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[tenantID]
	if !ok {
		return apperr.ErrNotFound
	}
	apply := func(current *int64) {
		*current += delta
		if *current < 0 {
			*current = 0
		}
	}
	switch resource {
	case model.ResourceCompanies:
		apply(&ledger.CurrentCompanies)
	case model.ResourceUsers:
		apply(&ledger.CurrentUsers)
	case model.ResourceDocuments:
		apply(&ledger.CurrentDocuments)
	case model.ResourceLogos:
		apply(&ledger.CurrentLogos)
	case model.ResourceStorage:
		apply(&ledger.CurrentStorageMB)
	default:
		return fmt.Errorf("unknown quota resource %q", resource)
	}
	ledger.UpdatedAt = time.Now()
	s.ledgers[tenantID] = ledger
	return nil
}

func (s *MemoryStore) ResetDocuments(ctx context.Context, tenantID uint, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reset int64
	for id, ledger := range s.ledgers {
		if tenantID != 0 && id != tenantID {
			continue
		}
		if tenantID == 0 && ledger.DocumentsResetAt.After(now) {
			continue
		}
		ledger.CurrentDocuments = 0
		ledger.DocumentsResetAt = model.NextPeriodStart(now)
		ledger.UpdatedAt = now
		s.ledgers[id] = ledger
		reset++
	}
	if tenantID != 0 && reset == 0 {
		return 0, apperr.ErrNotFound
	}
	return reset, nil
}

// --- plan catalog ---

func (s *MemoryStore) PlanByCode(ctx context.Context, code string) (*model.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[code]
	if !ok || !plan.Active {
		return nil, apperr.ErrNotFound
	}
	return &plan, nil
}

func (s *MemoryStore) ListPlans(ctx context.Context) ([]model.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var plans []model.Plan
	for _, plan := range s.plans {
		if plan.Active {
			plans = append(plans, plan)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].SortOrder < plans[j].SortOrder })
	return plans, nil
}

func (s *MemoryStore) SeedPlans(ctx context.Context, plans []model.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.plans) > 0 {
		return nil
	}
	for _, plan := range plans {
		s.nextPlanID++
		plan.ID = s.nextPlanID
		s.plans[plan.Code] = plan
	}
	return nil
}
