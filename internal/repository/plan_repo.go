package repository

import (
	"context"
	"errors"

	"github.com/wholesale-market/walletd/internal/model"

	"gorm.io/gorm"
)

type gormPlanRepo struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &gormPlanRepo{db: db}
}

func (r *gormPlanRepo) GetByID(ctx context.Context, planID int64) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("id = ?", planID).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *gormPlanRepo) List(ctx context.Context, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	var plans []*model.SubscriptionPlan
	query := r.db.WithContext(ctx).Model(&model.SubscriptionPlan{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("price ASC").Find(&plans).Error
	return plans, err
}
