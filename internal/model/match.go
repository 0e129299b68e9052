package model

import (
	"time"
)

// Match lifecycle statuses
const (
	MatchStatusPending  = "pending"
	MatchStatusAccepted = "accepted"
	MatchStatusRejected = "rejected"
	MatchStatusExpired  = "expired"
)

// Match is a scored candidate pairing between a Lead and a law firm.
// For a given Lead at most one Match ever reaches accepted, and it does so
// only together with the Lead's claim; claiming expires every other pending
// Match for that Lead.
type Match struct {
	ID     string `json:"id" gorm:"primaryKey;column:id"`
	LeadID string `json:"lead_id" gorm:"column:lead_id;index:idx_matches_lead_status" validate:"required"`
	FirmID string `json:"firm_id" gorm:"column:firm_id;index" validate:"required"`
	// Score is in [0,1].
	Score float64 `json:"score" gorm:"column:score" validate:"gte=0,lte=1"`
	// Status: pending -> accepted/rejected/expired.
	Status    string    `json:"status" gorm:"column:status;index:idx_matches_lead_status;default:pending"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Match) TableName() string {
	return "matches"
}
