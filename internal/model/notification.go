package model

import (
	"time"
)

// Notification types emitted by the pipeline
const (
	NotificationTypeNewMatch        = "new_match"
	NotificationTypeLeadUnavailable = "lead_unavailable"
	NotificationTypePaymentSuccess  = "payment_success"
	NotificationTypePaymentFailed   = "payment_failed"
	NotificationTypeSubscription    = "subscription_updated"
)

// Notification is an in-app message targeting a user or a whole firm.
// Rows are immutable after creation except for the read flag.
type Notification struct {
	ID     string  `json:"id" gorm:"primaryKey;column:id"`
	UserID *string `json:"user_id,omitempty" gorm:"column:user_id;index"`
	FirmID *string `json:"firm_id,omitempty" gorm:"column:firm_id;index"`
	// Type is one of the NotificationType* tags.
	Type    string `json:"type" gorm:"column:type" validate:"required"`
	Title   string `json:"title" gorm:"column:title"`
	Message string `json:"message" gorm:"column:message;type:text"`
	// Link is a dashboard deep link (e.g. /leads/{id}).
	Link      string    `json:"link,omitempty" gorm:"column:link"`
	Read      bool      `json:"read" gorm:"column:read;default:false"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
