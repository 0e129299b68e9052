package model

import (
	"time"

	"gorm.io/datatypes"
)

// Subscription tiers and statuses. Tier/status transitions are owned by the
// payment webhook handler; the pipeline only reads capacity and increments usage.
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"

	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// QuotaForTier maps a subscription tier to its monthly lead quota.
func QuotaForTier(tier string) int {
	switch tier {
	case TierEnterprise:
		return 200
	case TierProfessional:
		return 50
	default:
		return 10
	}
}

// LawFirm is the subscribing firm. The intake pipeline treats it as a
// collaborator entity: it reads quota state to gate claims and increments
// the usage counter on a successful claim.
type LawFirm struct {
	ID   string `json:"id" gorm:"primaryKey;column:id"`
	Name string `json:"name" gorm:"column:name" validate:"required"`
	// PracticeAreas is a JSONB array of taxonomy strings the firm accepts.
	PracticeAreas datatypes.JSON `json:"practice_areas,omitempty" gorm:"type:jsonb;column:practice_areas"`
	Location      string         `json:"location,omitempty" gorm:"column:location"`
	// PaymentCustomerID is the payments-vendor customer reference.
	PaymentCustomerID  string    `json:"payment_customer_id,omitempty" gorm:"column:payment_customer_id;index"`
	SubscriptionTier   string    `json:"subscription_tier" gorm:"column:subscription_tier;default:starter"`
	SubscriptionStatus string    `json:"subscription_status" gorm:"column:subscription_status;default:active"`
	MonthlyLeadQuota   int       `json:"monthly_lead_quota" gorm:"column:monthly_lead_quota"`
	LeadsUsedThisMonth int       `json:"leads_used_this_month" gorm:"column:leads_used_this_month"`
	CreatedAt          time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (LawFirm) TableName() string {
	return "law_firms"
}

// HasCapacity reports whether the firm may claim another lead this month.
func (f *LawFirm) HasCapacity() bool {
	return f.SubscriptionStatus == SubscriptionActive && f.LeadsUsedThisMonth < f.MonthlyLeadQuota
}

// FirmUser links a dashboard user to a firm. Identity itself is owned by the
// managed auth provider; this table only carries the firm membership and the
// email address used for notification fan-out.
type FirmUser struct {
	ID     string `json:"id" gorm:"primaryKey;column:id"`
	FirmID string `json:"firm_id" gorm:"column:firm_id;index" validate:"required"`
	UserID string `json:"user_id" gorm:"column:user_id;uniqueIndex" validate:"required"`
	Email  string `json:"email" gorm:"column:email" validate:"required,email"`
	// Role is "admin" or "member"; only admins receive match notifications.
	Role      string    `json:"role" gorm:"column:role;default:member"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (FirmUser) TableName() string {
	return "firm_users"
}
