// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Uwabami/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// ProviderRepository defines operations for provider configurations
type ProviderRepository interface {
	Repository[models.Provider, models.ProviderFilter]
	ByName(ctx context.Context, name string) (*models.Provider, error)
	ByUUID(ctx context.Context, uuid string) (*models.Provider, error)
	ListActive(ctx context.Context) ([]*models.Provider, error)
	Update(ctx context.Context, provider *models.Provider) error
	UpdateBalance(ctx context.Context, providerID uint, balance decimal.Decimal) error
}

// ActivationRepository defines operations for purchased numbers
type ActivationRepository interface {
	Repository[models.Activation, models.ActivationFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Activation, error)
	ByExternalID(ctx context.Context, providerID uint, externalID string) (*models.Activation, error)
	ListDueForPoll(ctx context.Context, now time.Time, limit int) ([]*models.Activation, error)
	ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Activation, error)
	ListRefundOwed(ctx context.Context, limit int) ([]*models.Activation, error)
	Update(ctx context.Context, activation *models.Activation) error
	// UpdateStatusCAS transitions status only when the row still holds the
	// expected state; reports whether the transition was applied. Extra column
	// updates ride along in the same statement.
	UpdateStatusCAS(ctx context.Context, id uint, from, to models.ActivationStatus, updates map[string]any) (bool, error)
	SchedulePoll(ctx context.Context, id uint, nextPollAt time.Time, pollCount int) error
}

// SmsMessageRepository defines operations for inbound SMS records
type SmsMessageRepository interface {
	Repository[models.SmsMessage, models.SmsMessageFilter]
	ListByActivation(ctx context.Context, activationID uint) ([]*models.SmsMessage, error)
	CountByActivation(ctx context.Context, activationID uint) (int64, error)
	// SaveIgnoreDuplicate appends a message, silently skipping rows that hit
	// the (activation, sender, body) dedup index. Reports whether a new row
	// was written.
	SaveIgnoreDuplicate(ctx context.Context, message *models.SmsMessage) (bool, error)
}

// WalletRepository defines operations for wallets
type WalletRepository interface {
	Repository[models.Wallet, models.WalletFilter]
	ByCustomerID(ctx context.Context, customerID uint) (*models.Wallet, error)
	// ByCustomerIDForUpdate loads the wallet row under FOR UPDATE; must be
	// called inside a transaction carried by the context.
	ByCustomerIDForUpdate(ctx context.Context, customerID uint) (*models.Wallet, error)
	Update(ctx context.Context, wallet *models.Wallet) error
}

// WalletTransactionRepository defines operations for the immutable ledger
type WalletTransactionRepository interface {
	Repository[models.WalletTransaction, models.WalletTransactionFilter]
	ByReference(ctx context.Context, referenceID uuid.UUID, txType models.WalletTransactionType) (*models.WalletTransaction, error)
	ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.WalletTransaction, error)
	SumByWallet(ctx context.Context, walletID uint) (decimal.Decimal, error)
}
