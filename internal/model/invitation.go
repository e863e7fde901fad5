package model

import (
	"time"
)

// Invitation statuses. Everything except pending is terminal; Resend is the
// one escape hatch that moves a record back to pending with a fresh token.
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusRejected = "rejected"
	InvitationStatusExpired  = "expired"
)

// Invitation represents a time-boxed, token-addressed offer for an email
// address to join a tenant with a given role. The token is the only way to
// address an invitation from outside the tenant, so it is treated as a
// bearer credential.
type Invitation struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	TenantID       uint       `json:"tenant_id" gorm:"index;not null"`
	TenantName     string     `json:"tenant_name" gorm:"type:varchar(100)"`
	Email          string     `json:"email" gorm:"type:varchar(100);index;not null"`
	Role           string     `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Status         string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Token          string     `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"`
	Message        string     `json:"message,omitempty" gorm:"type:varchar(500)"`
	CreatedBy      uint       `json:"created_by" gorm:"not null"`
	CreatedByName  string     `json:"created_by_name" gorm:"type:varchar(100)"`
	CreatedByEmail string     `json:"created_by_email" gorm:"type:varchar(100)"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"not null"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy     *uint      `json:"accepted_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsExpired reports whether the invitation window has lapsed, regardless of
// the stored status. Expiry is evaluated lazily at read/accept time.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// Accept marks the invitation consumed by the given user.
func (i *Invitation) Accept(userID uint) {
	now := time.Now()
	i.Status = InvitationStatusAccepted
	i.AcceptedAt = &now
	i.AcceptedBy = &userID
}

// Reject marks the invitation declined.
func (i *Invitation) Reject() {
	i.Status = InvitationStatusRejected
}

// MarkExpired transitions the invitation to the expired terminal state.
func (i *Invitation) MarkExpired() {
	i.Status = InvitationStatusExpired
}

// Renew issues a fresh token and expiry and forces the invitation back to
// pending, resurrecting expired or rejected invitations in place.
func (i *Invitation) Renew(token string, expiresAt time.Time) {
	i.Token = token
	i.ExpiresAt = expiresAt
	i.Status = InvitationStatusPending
	i.AcceptedAt = nil
	i.AcceptedBy = nil
}
