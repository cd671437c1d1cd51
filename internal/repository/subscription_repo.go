package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wholesale-market/walletd/internal/model"

	"gorm.io/gorm"
)

type gormSubscriptionRepo struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &gormSubscriptionRepo{db: db}
}

func (r *gormSubscriptionRepo) Create(ctx context.Context, sub *model.UserSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *gormSubscriptionRepo) GetByID(ctx context.Context, subID int64) (*model.UserSubscription, error) {
	var sub model.UserSubscription
	err := r.db.WithContext(ctx).Where("id = ?", subID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormSubscriptionRepo) UpdateStatus(ctx context.Context, subID int64, fromStatus, toStatus string) error {
	result := r.db.WithContext(ctx).
		Model(&model.UserSubscription{}).
		Where("id = ? AND status = ?", subID, fromStatus).
		Update("status", toStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *gormSubscriptionRepo) FindActive(ctx context.Context, userID int64, now time.Time) (*model.UserSubscription, error) {
	var sub model.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND end_date >= ?", userID, model.SubscriptionStatusActive, now).
		Order("end_date DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormSubscriptionRepo) LapseStale(ctx context.Context, userID int64, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.UserSubscription{}).
		Where("user_id = ? AND status = ? AND end_date < ?", userID, model.SubscriptionStatusActive, now).
		Update("status", model.SubscriptionStatusInactive)
	return result.RowsAffected, result.Error
}

func (r *gormSubscriptionRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.UserSubscription, error) {
	var subs []*model.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date DESC").
		Find(&subs).Error
	return subs, err
}
