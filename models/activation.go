package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActivationStatus represents the lifecycle state of a purchased number
type ActivationStatus string

const (
	ActivationStatusPending   ActivationStatus = "pending"   // funds reserved, provider purchase in flight
	ActivationStatusActive    ActivationStatus = "active"    // provider accepted, waiting for SMS
	ActivationStatusReceived  ActivationStatus = "received"  // at least one SMS persisted
	ActivationStatusCompleted ActivationStatus = "completed" // confirmed done
	ActivationStatusCancelled ActivationStatus = "cancelled" // user cancelled before an SMS arrived
	ActivationStatusExpired   ActivationStatus = "expired"   // TTL passed without completion
	ActivationStatusFailed    ActivationStatus = "failed"    // purchase never went through
	ActivationStatusRefunded  ActivationStatus = "refunded"  // funds returned after a terminal failure
)

// activationTransitions encodes the allowed lifecycle graph. A failure
// terminal either gets refunded or, when an SMS was already delivered, is
// reclassified as completed; the entitlement was consumed.
var activationTransitions = map[ActivationStatus][]ActivationStatus{
	ActivationStatusPending:   {ActivationStatusActive, ActivationStatusCancelled, ActivationStatusExpired, ActivationStatusFailed},
	ActivationStatusActive:    {ActivationStatusReceived, ActivationStatusCancelled, ActivationStatusExpired, ActivationStatusFailed},
	ActivationStatusReceived:  {ActivationStatusCompleted, ActivationStatusExpired},
	ActivationStatusCancelled: {ActivationStatusRefunded, ActivationStatusCompleted},
	ActivationStatusExpired:   {ActivationStatusRefunded, ActivationStatusCompleted},
	ActivationStatusFailed:    {ActivationStatusRefunded, ActivationStatusCompleted},
}

// Activation represents one purchased virtual-number session awaiting an SMS code
type Activation struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	CustomerID uint `gorm:"not null;index" json:"customer_id"`
	ProviderID uint `gorm:"not null;index" json:"provider_id"`

	// Provider-side identity
	ExternalID  string `gorm:"type:varchar(100);index" json:"external_id"`
	PhoneNumber string `gorm:"type:varchar(32)" json:"phone_number"`
	Country     string `gorm:"type:varchar(10);not null" json:"country"`
	Service     string `gorm:"type:varchar(30);not null" json:"service"`

	Price  decimal.Decimal  `gorm:"type:numeric(18,6);not null" json:"price"`
	Status ActivationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Polling bookkeeping
	PollCount  int        `gorm:"not null;default:0" json:"poll_count"`
	NextPollAt *time.Time `gorm:"index" json:"next_poll_at,omitempty"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`

	// Financial bookkeeping
	ReservationRef uuid.UUID  `gorm:"type:uuid;index;not null" json:"reservation_ref"`
	CaptureTxID    *uuid.UUID `gorm:"type:uuid" json:"capture_tx_id,omitempty"`
	RefundTxID     *uuid.UUID `gorm:"type:uuid" json:"refund_tx_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Provider Provider     `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Messages []SmsMessage `gorm:"foreignKey:ActivationID" json:"messages,omitempty"`
}

func (Activation) TableName() string {
	return "activations"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (a *Activation) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.CorrelationID == uuid.Nil {
		a.CorrelationID = uuid.New()
	}
	return nil
}

// CanTransitionTo reports whether moving to the target status is legal
func (a *Activation) CanTransitionTo(target ActivationStatus) bool {
	return CanTransition(a.Status, target)
}

// CanTransition reports whether the lifecycle graph allows from -> to
func CanTransition(from, to ActivationStatus) bool {
	for _, next := range activationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true once no further lifecycle transition except refund
// bookkeeping can happen
func (s ActivationStatus) IsTerminal() bool {
	switch s {
	case ActivationStatusCompleted, ActivationStatusCancelled, ActivationStatusExpired,
		ActivationStatusFailed, ActivationStatusRefunded:
		return true
	}
	return false
}

// IsRefundable returns true for the failure-terminal states that may still owe
// the customer money
func (s ActivationStatus) IsRefundable() bool {
	switch s {
	case ActivationStatusCancelled, ActivationStatusExpired, ActivationStatusFailed:
		return true
	}
	return false
}

// IsPollable returns true while the polling scheduler should keep checking
func (s ActivationStatus) IsPollable() bool {
	return s == ActivationStatusActive || s == ActivationStatusReceived
}

// ActivationFilter represents filter criteria for activation queries
type ActivationFilter struct {
	ID            *uint             `json:"id,omitempty"`
	UUID          *uuid.UUID        `json:"uuid,omitempty"`
	CustomerID    *uint             `json:"customer_id,omitempty"`
	ProviderID    *uint             `json:"provider_id,omitempty"`
	ExternalID    *string           `json:"external_id,omitempty"`
	Status        *ActivationStatus `json:"status,omitempty"`
	Country       *string           `json:"country,omitempty"`
	Service       *string           `json:"service,omitempty"`
	CreatedAfter  *time.Time        `json:"created_after,omitempty"`
	CreatedBefore *time.Time        `json:"created_before,omitempty"`
}
