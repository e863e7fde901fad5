package model

import (
	"time"
)

// Unlimited is the sentinel limit value meaning "no ceiling". Comparison
// logic must short-circuit on it and never treat it as a real maximum.
const Unlimited int64 = -1

// Well-known plan codes
const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

// PlanFeatures is the boolean capability bundle gated by plan. It is embedded
// both in the catalog entry and in the per-tenant quota snapshot.
type PlanFeatures struct {
	CustomBranding  bool `json:"custom_branding"`
	APIAccess       bool `json:"api_access"`
	PrioritySupport bool `json:"priority_support"`
	MultiCompany    bool `json:"multi_company"`
}

// Plan represents an editable subscription tier in the catalog. Quota ledgers
// snapshot its limits at provisioning time; editing a plan affects only
// tenants provisioned afterwards.
type Plan struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	Code         string       `json:"code" gorm:"type:varchar(50);uniqueIndex;not null"`
	Name         string       `json:"name" gorm:"type:varchar(100);not null"`
	Description  string       `json:"description" gorm:"type:text"`
	MaxCompanies int64        `json:"max_companies" gorm:"default:1"`
	MaxUsers     int64        `json:"max_users" gorm:"default:1"`
	MaxDocuments int64        `json:"max_documents" gorm:"default:0"` // per billing period
	MaxLogos     int64        `json:"max_logos" gorm:"default:0"`
	MaxStorageMB int64        `json:"max_storage_mb" gorm:"default:0"`
	Features     PlanFeatures `json:"features" gorm:"embedded;embeddedPrefix:feature_"`
	Price        float64      `json:"price" gorm:"default:0"`
	Currency     string       `json:"currency" gorm:"type:varchar(10);default:'EUR'"`
	SortOrder    int          `json:"sort_order" gorm:"default:0"`
	Active       bool         `json:"active" gorm:"default:true"`
	Popular      bool         `json:"popular" gorm:"default:false"`
	Color        string       `json:"color" gorm:"type:varchar(20)"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DefaultPlans is the compiled-in fallback catalog. Provisioning consults the
// live catalog first and falls back here, so tenant onboarding keeps working
// even when catalog data is absent.
var DefaultPlans = []Plan{
	{
		Code:         PlanFree,
		Name:         "Free",
		Description:  "Get started with a single company",
		MaxCompanies: 1,
		MaxUsers:     1,
		MaxDocuments: 10,
		MaxLogos:     1,
		MaxStorageMB: 100,
		Price:        0,
		Currency:     "EUR",
		SortOrder:    1,
		Active:       true,
		Color:        "gray",
	},
	{
		Code:         PlanBasic,
		Name:         "Basic",
		Description:  "For small teams",
		MaxCompanies: 1,
		MaxUsers:     3,
		MaxDocuments: 100,
		MaxLogos:     3,
		MaxStorageMB: 1024,
		Features:     PlanFeatures{CustomBranding: true},
		Price:        9.90,
		Currency:     "EUR",
		SortOrder:    2,
		Active:       true,
		Color:        "blue",
	},
	{
		Code:         PlanPremium,
		Name:         "Premium",
		Description:  "For growing businesses",
		MaxCompanies: 3,
		MaxUsers:     10,
		MaxDocuments: 1000,
		MaxLogos:     10,
		MaxStorageMB: 10240,
		Features:     PlanFeatures{CustomBranding: true, APIAccess: true, MultiCompany: true},
		Price:        29.90,
		Currency:     "EUR",
		SortOrder:    3,
		Active:       true,
		Popular:      true,
		Color:        "purple",
	},
	{
		Code:         PlanEnterprise,
		Name:         "Enterprise",
		Description:  "Unlimited usage for large organizations",
		MaxCompanies: Unlimited,
		MaxUsers:     Unlimited,
		MaxDocuments: Unlimited,
		MaxLogos:     Unlimited,
		MaxStorageMB: Unlimited,
		Features:     PlanFeatures{CustomBranding: true, APIAccess: true, PrioritySupport: true, MultiCompany: true},
		Price:        99.90,
		Currency:     "EUR",
		SortOrder:    4,
		Active:       true,
		Color:        "gold",
	},
}

// DefaultPlan returns the compiled-in plan for the given code.
func DefaultPlan(code string) (Plan, bool) {
	for _, p := range DefaultPlans {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}
