package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents the tenant (company) model stored in the database
// This is the core of our multi-tenant architecture
type Tenant struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Address     string         `json:"address" gorm:"type:text"`
	OwnerID     uint           `json:"owner_id" gorm:"index;not null"`
	MemberCount int            `json:"member_count" gorm:"default:0"` // cached count of active memberships
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}
