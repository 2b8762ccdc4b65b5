// Package businessflow contains the core business logic for number purchase,
// wallet accounting and activation lifecycle management
package businessflow

import (
	"errors"
)

// Business flow error constants
var (
	// Wallet-related errors
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAmountNotPositive = errors.New("amount must be positive")
	ErrLedgerIntegrity   = errors.New("ledger sum does not match wallet balance")

	// Activation-related errors
	ErrActivationNotFound       = errors.New("activation not found")
	ErrActivationAccessDenied   = errors.New("activation access denied")
	ErrInvalidStateTransition   = errors.New("invalid activation state transition")
	ErrActivationNotCancelable  = errors.New("activation can no longer be cancelled")
	ErrActivationNotCompletable = errors.New("activation is not awaiting completion")
	ErrRefundNotOwed            = errors.New("activation does not owe a refund")

	// Purchase errors
	ErrNoProvidersAvailable = errors.New("no providers available")
	ErrAllProvidersFailed   = errors.New("all candidate providers failed")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

func IsWalletNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsAmountNotPositive(err error) bool {
	return errors.Is(err, ErrAmountNotPositive)
}

func IsActivationNotFound(err error) bool {
	return errors.Is(err, ErrActivationNotFound)
}

func IsActivationAccessDenied(err error) bool {
	return errors.Is(err, ErrActivationAccessDenied)
}

func IsActivationNotCancelable(err error) bool {
	return errors.Is(err, ErrActivationNotCancelable)
}

func IsActivationNotCompletable(err error) bool {
	return errors.Is(err, ErrActivationNotCompletable)
}

func IsNoProvidersAvailable(err error) bool {
	return errors.Is(err, ErrNoProvidersAvailable)
}

func IsAllProvidersFailed(err error) bool {
	return errors.Is(err, ErrAllProvidersFailed)
}
