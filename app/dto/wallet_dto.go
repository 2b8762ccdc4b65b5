package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositRequest tops up a customer wallet
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// WalletBalanceDTO is the customer-facing wallet view
type WalletBalanceDTO struct {
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
	Currency  string          `json:"currency"`
}

// WalletTransactionDTO is one ledger entry in API responses
type WalletTransactionDTO struct {
	UUID          string          `json:"uuid"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ReferenceID   string          `json:"reference_id"`
	Description   string          `json:"description,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
