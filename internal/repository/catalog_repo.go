package repository

import (
	"context"
	"errors"

	"github.com/wholesale-market/walletd/internal/model"

	"gorm.io/gorm"
)

type gormCatalogRepo struct {
	db *gorm.DB
}

// NewCatalogRepository reads the profiles and products tables maintained by
// the account and catalog layers.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &gormCatalogRepo{db: db}
}

func (r *gormCatalogRepo) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *gormCatalogRepo) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}
