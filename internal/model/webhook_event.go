package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is the processed-event ledger for the payments webhook.
// Duplicate suppression is best effort and time windowed: rows older than the
// configured dedup window are ignored by the lookup and swept opportunistically.
type WebhookEvent struct {
	ID int64 `json:"-" gorm:"primaryKey;autoIncrement"`
	// EventID is the payments vendor's event identifier.
	EventID   string         `json:"event_id" gorm:"column:event_id;index" validate:"required"`
	EventType string         `json:"event_type" gorm:"column:event_type"`
	Payload   datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb;column:payload"`
	CreatedAt time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
