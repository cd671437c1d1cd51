package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wholesale-market/walletd/internal/model"

	"gorm.io/gorm"
)

type gormBoostRepo struct {
	db *gorm.DB
}

func NewBoostRepository(db *gorm.DB) BoostRepository {
	return &gormBoostRepo{db: db}
}

func (r *gormBoostRepo) Create(ctx context.Context, boost *model.ProductBoost) error {
	return r.db.WithContext(ctx).Create(boost).Error
}

func (r *gormBoostRepo) GetByID(ctx context.Context, boostID int64) (*model.ProductBoost, error) {
	var boost model.ProductBoost
	err := r.db.WithContext(ctx).Where("id = ?", boostID).First(&boost).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoostNotFound
		}
		return nil, err
	}
	return &boost, nil
}

func (r *gormBoostRepo) FindActive(ctx context.Context, productID int64, now time.Time) (*model.ProductBoost, error) {
	var boost model.ProductBoost
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			productID, model.BoostStatusActive, now, now).
		Order("end_date DESC").
		First(&boost).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoostNotFound
		}
		return nil, err
	}
	return &boost, nil
}

func (r *gormBoostRepo) FindActiveForProducts(ctx context.Context, productIDs []int64, now time.Time) ([]*model.ProductBoost, error) {
	var boosts []*model.ProductBoost
	if len(productIDs) == 0 {
		return boosts, nil
	}
	err := r.db.WithContext(ctx).
		Where("product_id IN ? AND status = ? AND start_date <= ? AND end_date >= ?",
			productIDs, model.BoostStatusActive, now, now).
		Find(&boosts).Error
	return boosts, err
}

func (r *gormBoostRepo) UpdateStatus(ctx context.Context, boostID int64, fromStatus, toStatus string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ProductBoost{}).
		Where("id = ? AND status = ?", boostID, fromStatus).
		Update("status", toStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *gormBoostRepo) ListBySupplier(ctx context.Context, supplierID int64) ([]*model.ProductBoost, error) {
	var boosts []*model.ProductBoost
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("start_date DESC").
		Find(&boosts).Error
	return boosts, err
}
