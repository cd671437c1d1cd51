package repository

import (
	"context"
	"errors"

	"github.com/wholesale-market/walletd/internal/model"

	"gorm.io/gorm"
)

type gormTransactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &gormTransactionRepo{db: db}
}

func (r *gormTransactionRepo) Create(ctx context.Context, trans *model.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(trans).Error
}

func (r *gormTransactionRepo) GetByID(ctx context.Context, id int64) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *gormTransactionRepo) GetRefundOf(ctx context.Context, chargeID int64) (*model.WalletTransaction, error) {
	var trans model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("refund_of_id = ? AND type = ?", chargeID, model.TransactionTypeRefund).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}

func (r *gormTransactionRepo) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var transactions []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}
