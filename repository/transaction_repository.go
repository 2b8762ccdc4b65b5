package repository

import (
	"context"
	"errors"

	"github.com/amirphl/Uwabami/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletTransactionRepositoryImpl implements WalletTransactionRepository interface
type WalletTransactionRepositoryImpl struct {
	*BaseRepository[models.WalletTransaction, models.WalletTransactionFilter]
}

// NewWalletTransactionRepository creates a new ledger repository
func NewWalletTransactionRepository(db *gorm.DB) WalletTransactionRepository {
	return &WalletTransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WalletTransaction, models.WalletTransactionFilter](db),
	}
}

// ByReference finds a ledger entry by reference id and type. Used by the
// refund path to detect an already-issued refund.
func (r *WalletTransactionRepositoryImpl) ByReference(ctx context.Context, referenceID uuid.UUID, txType models.WalletTransactionType) (*models.WalletTransaction, error) {
	db := r.getDB(ctx)
	var tx models.WalletTransaction
	err := db.Where("reference_id = ? AND type = ?", referenceID, txType).Last(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// ListByCustomer returns a customer's ledger entries, newest first
func (r *WalletTransactionRepositoryImpl) ListByCustomer(ctx context.Context, customerID uint, limit, offset int) ([]*models.WalletTransaction, error) {
	db := r.getDB(ctx)
	var txs []*models.WalletTransaction
	query := db.Where("customer_id = ?", customerID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// SumByWallet returns the signed sum of all ledger entries for a wallet.
// The auditable core invariant is that this equals the wallet's balance.
func (r *WalletTransactionRepositoryImpl) SumByWallet(ctx context.Context, walletID uint) (decimal.Decimal, error) {
	db := r.getDB(ctx)
	var sum decimal.NullDecimal
	err := db.Model(&models.WalletTransaction{}).
		Where("wallet_id = ?", walletID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ByFilter retrieves ledger entries based on filter criteria
func (r *WalletTransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.WalletTransactionFilter, orderBy string, limit, offset int) ([]*models.WalletTransaction, error) {
	db := r.getDB(ctx)
	var txs []*models.WalletTransaction

	query := r.applyFilter(db.Model(&models.WalletTransaction{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// Count returns the number of ledger entries matching the filter
func (r *WalletTransactionRepositoryImpl) Count(ctx context.Context, filter models.WalletTransactionFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := r.applyFilter(db.Model(&models.WalletTransaction{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *WalletTransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.WalletTransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CorrelationID != nil {
		query = query.Where("correlation_id = ?", *filter.CorrelationID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.WalletID != nil {
		query = query.Where("wallet_id = ?", *filter.WalletID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
