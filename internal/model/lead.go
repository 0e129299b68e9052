package model

import (
	"time"
)

// Lead lifecycle statuses
const (
	LeadStatusNew       = "new"
	LeadStatusMatched   = "matched"
	LeadStatusClaimed   = "claimed"
	LeadStatusExpired   = "expired"
	LeadStatusConverted = "converted"
	LeadStatusClosed    = "closed"
)

// PracticeAreas is the closed taxonomy the extractor classifies into. The
// extraction prompt enumerates exactly this set; anything else maps to "other".
var PracticeAreas = []string{
	"personal_injury",
	"family_law",
	"criminal_defense",
	"immigration",
	"employment",
	"bankruptcy",
	"estate_planning",
	"real_estate",
	"business_law",
	"medical_malpractice",
	"other",
}

// IsKnownPracticeArea reports whether area belongs to the closed taxonomy.
func IsKnownPracticeArea(area string) bool {
	for _, a := range PracticeAreas {
		if a == area {
			return true
		}
	}
	return false
}

// Lead is the actionable case derived from a Conversation, eligible for
// matching to firms and for a single exclusive claim.
type Lead struct {
	ID string `json:"id" gorm:"primaryKey;column:id"`
	// ConversationID references exactly one Conversation.
	ConversationID string `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex" validate:"required"`
	// PracticeArea is the extracted case category from the closed taxonomy.
	PracticeArea *string `json:"practice_area,omitempty" gorm:"column:practice_area;index" validate:"omitempty,practice_area"`
	// Location is the client's stated location, used for firm matching.
	Location string `json:"location,omitempty" gorm:"column:location"`
	// UrgencyScore is 1-10 as extracted.
	UrgencyScore int `json:"urgency_score,omitempty" gorm:"column:urgency_score"`
	// Summary is the extractor's short case summary shown to firms pre-claim.
	Summary string `json:"summary,omitempty" gorm:"column:summary;type:text"`
	// Status: new -> matched -> claimed/expired -> converted/closed.
	Status string `json:"status" gorm:"column:status;index;default:new"`
	// Claim metadata. Invariant: ClaimedAt is non-nil iff ClaimedByFirmID is non-nil.
	ClaimedByFirmID *string    `json:"claimed_by_firm_id,omitempty" gorm:"column:claimed_by_firm_id;index"`
	ClaimedByUserID *string    `json:"claimed_by_user_id,omitempty" gorm:"column:claimed_by_user_id"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty" gorm:"column:claimed_at"`
	CreatedAt       time.Time  `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Lead) TableName() string {
	return "leads"
}
