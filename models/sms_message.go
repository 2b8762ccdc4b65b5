package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SmsMessage is an immutable record of one inbound SMS tied to an activation.
// Rows are append-only; nothing in the system updates or deletes them.
type SmsMessage struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	ActivationID uint `gorm:"not null;index;uniqueIndex:idx_sms_dedup,priority:1" json:"activation_id"`

	Sender string `gorm:"type:varchar(64);uniqueIndex:idx_sms_dedup,priority:2" json:"sender"`
	Body   string `gorm:"type:text;uniqueIndex:idx_sms_dedup,priority:3" json:"body"`
	Code   string `gorm:"type:varchar(32)" json:"code"`

	ReceivedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"received_at"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	// Relationships
	Activation Activation `gorm:"foreignKey:ActivationID;constraint:OnDelete:CASCADE" json:"activation,omitempty"`
}

func (SmsMessage) TableName() string {
	return "sms_messages"
}

// BeforeCreate ensures UUID is set
func (m *SmsMessage) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	return nil
}

// SmsMessageFilter represents filter criteria for SMS message queries
type SmsMessageFilter struct {
	ID             *uint      `json:"id,omitempty"`
	ActivationID   *uint      `json:"activation_id,omitempty"`
	Sender         *string    `json:"sender,omitempty"`
	ReceivedAfter  *time.Time `json:"received_after,omitempty"`
	ReceivedBefore *time.Time `json:"received_before,omitempty"`
}
