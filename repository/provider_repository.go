package repository

import (
	"context"
	"errors"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProviderRepositoryImpl implements ProviderRepository interface
type ProviderRepositoryImpl struct {
	*BaseRepository[models.Provider, models.ProviderFilter]
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &ProviderRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Provider, models.ProviderFilter](db),
	}
}

// ByName finds a provider by its unique name
func (r *ProviderRepositoryImpl) ByName(ctx context.Context, name string) (*models.Provider, error) {
	db := r.getDB(ctx)
	var provider models.Provider
	err := db.Where("name = ?", name).Last(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

// ByUUID finds a provider by UUID
func (r *ProviderRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Provider, error) {
	db := r.getDB(ctx)
	var provider models.Provider
	err := db.Where("uuid = ?", uuid).Last(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &provider, nil
}

// ListActive returns all providers eligible for ranking
func (r *ProviderRepositoryImpl) ListActive(ctx context.Context) ([]*models.Provider, error) {
	db := r.getDB(ctx)
	var providers []*models.Provider
	err := db.Where("is_active = ?", true).Order("priority ASC, id ASC").Find(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

// Update persists changes to an existing provider
func (r *ProviderRepositoryImpl) Update(ctx context.Context, provider *models.Provider) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	provider.UpdatedAt = utils.UTCNow()
	err = db.Save(provider).Error
	return err
}

// UpdateBalance stores the last known upstream balance
func (r *ProviderRepositoryImpl) UpdateBalance(ctx context.Context, providerID uint, balance decimal.Decimal) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Provider{}).
		Where("id = ?", providerID).
		Updates(map[string]any{"balance": balance, "updated_at": utils.UTCNow()}).Error
	return err
}

// ByFilter retrieves providers based on filter criteria
func (r *ProviderRepositoryImpl) ByFilter(ctx context.Context, filter models.ProviderFilter, orderBy string, limit, offset int) ([]*models.Provider, error) {
	db := r.getDB(ctx)
	var providers []*models.Provider

	query := r.applyFilter(db.Model(&models.Provider{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

// Count returns the number of providers matching the filter
func (r *ProviderRepositoryImpl) Count(ctx context.Context, filter models.ProviderFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := r.applyFilter(db.Model(&models.Provider{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *ProviderRepositoryImpl) applyFilter(query *gorm.DB, filter models.ProviderFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
