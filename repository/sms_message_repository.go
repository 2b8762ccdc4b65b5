package repository

import (
	"github.com/amirphl/Uwabami/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"context"
)

// SmsMessageRepositoryImpl implements SmsMessageRepository interface
type SmsMessageRepositoryImpl struct {
	*BaseRepository[models.SmsMessage, models.SmsMessageFilter]
}

// NewSmsMessageRepository creates a new SMS message repository
func NewSmsMessageRepository(db *gorm.DB) SmsMessageRepository {
	return &SmsMessageRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SmsMessage, models.SmsMessageFilter](db),
	}
}

// ListByActivation returns all messages for an activation, oldest first
func (r *SmsMessageRepositoryImpl) ListByActivation(ctx context.Context, activationID uint) ([]*models.SmsMessage, error) {
	db := r.getDB(ctx)
	var messages []*models.SmsMessage
	err := db.Where("activation_id = ?", activationID).
		Order("received_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CountByActivation returns the number of messages persisted for an activation
func (r *SmsMessageRepositoryImpl) CountByActivation(ctx context.Context, activationID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.SmsMessage{}).
		Where("activation_id = ?", activationID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SaveIgnoreDuplicate appends a message, skipping rows that collide with the
// (activation, sender, body) dedup index. Providers re-deliver the same SMS
// on every status poll, so duplicates are the common case here.
func (r *SmsMessageRepositoryImpl) SaveIgnoreDuplicate(ctx context.Context, message *models.SmsMessage) (bool, error) {
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

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(message)
	if res.Error != nil {
		err = res.Error
		return false, err
	}

	return res.RowsAffected == 1, nil
}

// ByFilter retrieves messages based on filter criteria
func (r *SmsMessageRepositoryImpl) ByFilter(ctx context.Context, filter models.SmsMessageFilter, orderBy string, limit, offset int) ([]*models.SmsMessage, error) {
	db := r.getDB(ctx)
	var messages []*models.SmsMessage

	query := r.applyFilter(db.Model(&models.SmsMessage{}), filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Count returns the number of messages matching the filter
func (r *SmsMessageRepositoryImpl) Count(ctx context.Context, filter models.SmsMessageFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := r.applyFilter(db.Model(&models.SmsMessage{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *SmsMessageRepositoryImpl) applyFilter(query *gorm.DB, filter models.SmsMessageFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.ActivationID != nil {
		query = query.Where("activation_id = ?", *filter.ActivationID)
	}
	if filter.Sender != nil {
		query = query.Where("sender = ?", *filter.Sender)
	}
	if filter.ReceivedAfter != nil {
		query = query.Where("received_at > ?", *filter.ReceivedAfter)
	}
	if filter.ReceivedBefore != nil {
		query = query.Where("received_at < ?", *filter.ReceivedBefore)
	}
	return query
}
