package model

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation lifecycle statuses
const (
	ConversationStatusNew       = "new"
	ConversationStatusProcessed = "processed"
)

// Conversation represents one AI-driven client intake session. It is created
// when the visitor starts the video conversation and enriched exactly once by
// the webhook-triggered pipeline (transcript, then extracted fields).
type Conversation struct {
	// ID is the internal identifier.
	ID string `json:"id" gorm:"primaryKey;column:id"`
	// ExternalID is the conversation identifier assigned by the conversational-AI vendor.
	ExternalID string `json:"external_id" gorm:"column:external_id;uniqueIndex" validate:"required"`
	// UserID links the session to a registered user, when known.
	UserID *string `json:"user_id,omitempty" gorm:"column:user_id;index"`
	// ContactName/Email/Phone are best-effort contact fields extracted from the transcript.
	ContactName  *string `json:"contact_name,omitempty" gorm:"column:contact_name"`
	ContactEmail *string `json:"contact_email,omitempty" gorm:"column:contact_email"`
	ContactPhone *string `json:"contact_phone,omitempty" gorm:"column:contact_phone"`
	// CaseDescription is the extracted free-text summary of the visitor's legal matter.
	CaseDescription string `json:"case_description,omitempty" gorm:"column:case_description;type:text"`
	// UrgencyScore is 1-10; 0 means not yet extracted.
	UrgencyScore int `json:"urgency_score,omitempty" gorm:"column:urgency_score"`
	// Status is the lifecycle status: new -> processed.
	Status string `json:"status" gorm:"column:status;index;default:new"`
	// Transcript is the full conversation text fetched from the vendor.
	Transcript string `json:"transcript,omitempty" gorm:"column:transcript;type:text"`
	// ExtractedData holds the raw structured-extraction result for operability.
	ExtractedData datatypes.JSON `json:"extracted_data,omitempty" gorm:"type:jsonb;column:extracted_data"`
	CreatedAt     time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Conversation) TableName() string {
	return "conversations"
}
