package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletTransactionType represents the type of ledger entry
type WalletTransactionType string

const (
	WalletTransactionTypeDeposit    WalletTransactionType = "deposit"    // external top-up
	WalletTransactionTypePurchase   WalletTransactionType = "purchase"   // committed number purchase
	WalletTransactionTypeRefund     WalletTransactionType = "refund"     // money returned after a failed order
	WalletTransactionTypeAdjustment WalletTransactionType = "adjustment" // manual correction
)

// WalletTransaction is an immutable ledger entry. The system-wide invariant is
// that for every wallet the signed sum of its transactions equals the current
// balance; nothing may write a balance change without the matching entry.
type WalletTransaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	Type   WalletTransactionType `gorm:"type:varchar(20);not null;index" json:"type"`
	Amount decimal.Decimal       `gorm:"type:numeric(18,6);not null" json:"amount"` // signed: credits positive, debits negative

	WalletID   uint `gorm:"not null;index" json:"wallet_id"`
	CustomerID uint `gorm:"not null;index" json:"customer_id"`

	// Balance before and after, written in the same transaction as the wallet update
	BalanceBefore decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(18,6);not null" json:"balance_after"`

	// ReferenceID links the entry to the activation/reservation that caused it
	ReferenceID uuid.UUID       `gorm:"type:uuid;index;not null" json:"reference_id"`
	Description string          `gorm:"type:text" json:"description"`
	Metadata    json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	// Relationships
	Wallet Wallet `gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE" json:"wallet,omitempty"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}

// IsCredit reports whether the entry increases the balance
func (t *WalletTransaction) IsCredit() bool {
	return t.Amount.GreaterThan(decimal.Zero)
}

// WalletTransactionFilter represents filter criteria for ledger queries
type WalletTransactionFilter struct {
	ID            *uint                  `json:"id,omitempty"`
	UUID          *uuid.UUID             `json:"uuid,omitempty"`
	CorrelationID *uuid.UUID             `json:"correlation_id,omitempty"`
	Type          *WalletTransactionType `json:"type,omitempty"`
	WalletID      *uint                  `json:"wallet_id,omitempty"`
	CustomerID    *uint                  `json:"customer_id,omitempty"`
	ReferenceID   *uuid.UUID             `json:"reference_id,omitempty"`
	CreatedAfter  *time.Time             `json:"created_after,omitempty"`
	CreatedBefore *time.Time             `json:"created_before,omitempty"`
}
