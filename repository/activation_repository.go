package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
	"gorm.io/gorm"
)

// ActivationRepositoryImpl implements ActivationRepository interface
type ActivationRepositoryImpl struct {
	*BaseRepository[models.Activation, models.ActivationFilter]
}

// NewActivationRepository creates a new activation repository
func NewActivationRepository(db *gorm.DB) ActivationRepository {
	return &ActivationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Activation, models.ActivationFilter](db),
	}
}

// ByUUID finds an activation by UUID
func (r *ActivationRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Activation, error) {
	db := r.getDB(ctx)
	var activation models.Activation
	err := db.Where("uuid = ?", uuid).Last(&activation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &activation, nil
}

// ByExternalID finds an activation by the provider's opaque activation id
func (r *ActivationRepositoryImpl) ByExternalID(ctx context.Context, providerID uint, externalID string) (*models.Activation, error) {
	db := r.getDB(ctx)
	var activation models.Activation
	err := db.Where("provider_id = ? AND external_id = ?", providerID, externalID).Last(&activation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &activation, nil
}

// ListDueForPoll returns pollable activations whose next poll is due
func (r *ActivationRepositoryImpl) ListDueForPoll(ctx context.Context, now time.Time, limit int) ([]*models.Activation, error) {
	db := r.getDB(ctx)
	var activations []*models.Activation
	err := db.Where("status IN ? AND next_poll_at <= ?",
		[]models.ActivationStatus{models.ActivationStatusActive, models.ActivationStatusReceived}, now).
		Order("next_poll_at ASC").
		Limit(limit).
		Find(&activations).Error
	if err != nil {
		return nil, err
	}
	return activations, nil
}

// ListStuckPending returns pending activations older than the given cutoff
func (r *ActivationRepositoryImpl) ListStuckPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Activation, error) {
	db := r.getDB(ctx)
	var activations []*models.Activation
	err := db.Where("status = ? AND created_at < ?", models.ActivationStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&activations).Error
	if err != nil {
		return nil, err
	}
	return activations, nil
}

// ListRefundOwed returns terminal activations with captured funds and no refund yet
func (r *ActivationRepositoryImpl) ListRefundOwed(ctx context.Context, limit int) ([]*models.Activation, error) {
	db := r.getDB(ctx)
	var activations []*models.Activation
	err := db.Where("status IN ? AND capture_tx_id IS NOT NULL AND refund_tx_id IS NULL",
		[]models.ActivationStatus{
			models.ActivationStatusExpired,
			models.ActivationStatusFailed,
			models.ActivationStatusCancelled,
		}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&activations).Error
	if err != nil {
		return nil, err
	}
	return activations, nil
}

// Update persists changes to an existing activation
func (r *ActivationRepositoryImpl) Update(ctx context.Context, activation *models.Activation) error {
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

	activation.UpdatedAt = utils.UTCNow()
	err = db.Save(activation).Error
	return err
}

// UpdateStatusCAS applies a compare-and-set state transition. Two pollers
// racing on the same row cannot both win: the WHERE clause pins the expected
// current status and the loser sees zero rows affected.
func (r *ActivationRepositoryImpl) UpdateStatusCAS(ctx context.Context, id uint, from, to models.ActivationStatus, updates map[string]any) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	values := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range updates {
		values[k] = v
	}

	res := db.Model(&models.Activation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		err = res.Error
		return false, err
	}

	return res.RowsAffected == 1, nil
}

// SchedulePoll stores the next poll time and poll count for an activation
func (r *ActivationRepositoryImpl) SchedulePoll(ctx context.Context, id uint, nextPollAt time.Time, pollCount int) error {
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

	err = db.Model(&models.Activation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"next_poll_at": nextPollAt,
			"poll_count":   pollCount,
			"updated_at":   utils.UTCNow(),
		}).Error
	return err
}

// ByFilter retrieves activations based on filter criteria
func (r *ActivationRepositoryImpl) ByFilter(ctx context.Context, filter models.ActivationFilter, orderBy string, limit, offset int) ([]*models.Activation, error) {
	db := r.getDB(ctx)
	var activations []*models.Activation

	query := r.applyFilter(db.Model(&models.Activation{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&activations).Error
	if err != nil {
		return nil, err
	}
	return activations, nil
}

// Count returns the number of activations matching the filter
func (r *ActivationRepositoryImpl) Count(ctx context.Context, filter models.ActivationFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := r.applyFilter(db.Model(&models.Activation{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *ActivationRepositoryImpl) applyFilter(query *gorm.DB, filter models.ActivationFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.ExternalID != nil {
		query = query.Where("external_id = ?", *filter.ExternalID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Country != nil {
		query = query.Where("country = ?", *filter.Country)
	}
	if filter.Service != nil {
		query = query.Where("service = ?", *filter.Service)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
