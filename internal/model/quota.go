package model

import (
	"fmt"
	"time"
)

// Resource identifies a countable resource tracked by the quota ledger.
type Resource string

const (
	ResourceCompanies Resource = "companies"
	ResourceUsers     Resource = "users"
	ResourceDocuments Resource = "documents"
	ResourceLogos     Resource = "logos"
	ResourceStorage   Resource = "storage"
)

// Resources lists every tracked resource kind.
var Resources = []Resource{
	ResourceCompanies,
	ResourceUsers,
	ResourceDocuments,
	ResourceLogos,
	ResourceStorage,
}

// Valid reports whether r names a tracked resource.
func (r Resource) Valid() bool {
	for _, known := range Resources {
		if r == known {
			return true
		}
	}
	return false
}

// Quota ledger statuses
const (
	QuotaStatusActive    = "active"
	QuotaStatusTrial     = "trial"
	QuotaStatusExpired   = "expired"
	QuotaStatusSuspended = "suspended"
)

// QuotaLedger is the per-tenant usage and limit snapshot. Limits and the
// feature bundle are copied from the plan catalog at provisioning time and
// replaced wholesale on plan changes; current counters are never reset by a
// plan change, so a downgraded tenant can legitimately sit over quota.
type QuotaLedger struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	TenantID uint   `json:"tenant_id" gorm:"uniqueIndex;not null"`
	PlanCode string `json:"plan_code" gorm:"type:varchar(50);not null"`
	Status   string `json:"status" gorm:"type:varchar(20);not null;default:'active'"`

	CurrentCompanies int64 `json:"current_companies" gorm:"default:0"`
	MaxCompanies     int64 `json:"max_companies" gorm:"default:1"`
	CurrentUsers     int64 `json:"current_users" gorm:"default:0"`
	MaxUsers         int64 `json:"max_users" gorm:"default:1"`
	CurrentDocuments int64 `json:"current_documents" gorm:"default:0"`
	MaxDocuments     int64 `json:"max_documents" gorm:"default:0"`
	CurrentLogos     int64 `json:"current_logos" gorm:"default:0"`
	MaxLogos         int64 `json:"max_logos" gorm:"default:0"`
	CurrentStorageMB int64 `json:"current_storage_mb" gorm:"default:0"`
	MaxStorageMB     int64 `json:"max_storage_mb" gorm:"default:0"`

	DocumentsResetAt time.Time    `json:"documents_reset_at"` // start of the next counting period
	Features         PlanFeatures `json:"features" gorm:"embedded;embeddedPrefix:feature_"`

	// Billing metadata, carried as data only; enforcement never reads it.
	PaymentAmount float64    `json:"payment_amount" gorm:"default:0"`
	Currency      string     `json:"currency" gorm:"type:varchar(10);default:'EUR'"`
	NextPaymentAt *time.Time `json:"next_payment_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Usage returns the (current, max) counter pair for a resource.
func (q *QuotaLedger) Usage(resource Resource) (current, max int64, err error) {
	switch resource {
	case ResourceCompanies:
		return q.CurrentCompanies, q.MaxCompanies, nil
	case ResourceUsers:
		return q.CurrentUsers, q.MaxUsers, nil
	case ResourceDocuments:
		return q.CurrentDocuments, q.MaxDocuments, nil
	case ResourceLogos:
		return q.CurrentLogos, q.MaxLogos, nil
	case ResourceStorage:
		return q.CurrentStorageMB, q.MaxStorageMB, nil
	default:
		return 0, 0, fmt.Errorf("unknown quota resource %q", resource)
	}
}

// IsExceeded reports whether the resource is at or over its limit. A max of
// Unlimited (-1) never counts as exceeded no matter how large current is.
func (q *QuotaLedger) IsExceeded(resource Resource) bool {
	current, max, err := q.Usage(resource)
	if err != nil {
		return false
	}
	if max == Unlimited {
		return false
	}
	return current >= max
}

// ApplyPlan replaces every limit and the feature bundle from the given plan.
// Current counters are deliberately left untouched.
func (q *QuotaLedger) ApplyPlan(plan *Plan) {
	q.PlanCode = plan.Code
	q.MaxCompanies = plan.MaxCompanies
	q.MaxUsers = plan.MaxUsers
	q.MaxDocuments = plan.MaxDocuments
	q.MaxLogos = plan.MaxLogos
	q.MaxStorageMB = plan.MaxStorageMB
	q.Features = plan.Features
	q.PaymentAmount = plan.Price
	q.Currency = plan.Currency
}

// NextPeriodStart returns the first day of the month following t, which is
// when the documents counter rolls over.
func NextPeriodStart(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
}
