package model

import (
	"time"
)

// Membership roles within a tenant
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership statuses
const (
	MembershipStatusPending  = "pending"
	MembershipStatusActive   = "active"
	MembershipStatusInactive = "inactive"
)

// Membership represents the association between users and tenants.
// A membership starts out pending with no user attached; it is bound to a
// user and activated when that user first authenticates with the matching
// email (see ConfirmMembership).
type Membership struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	TenantID  uint       `json:"tenant_id" gorm:"index;not null"`
	UserID    *uint      `json:"user_id,omitempty" gorm:"index"` // nil until confirmed
	Email     string     `json:"email" gorm:"type:varchar(100);index;not null"`
	Role      string     `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Status    string     `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"` // set on activation
	InvitedBy uint       `json:"invited_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Relations
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// IsActiveAdmin reports whether this membership grants admin rights right now.
func (m *Membership) IsActiveAdmin() bool {
	return m.Role == RoleAdmin && m.Status == MembershipStatusActive
}

// Activate binds the membership to a user and marks it active.
func (m *Membership) Activate(userID uint) {
	now := time.Now()
	m.UserID = &userID
	m.Status = MembershipStatusActive
	m.JoinedAt = &now
}
