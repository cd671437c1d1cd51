package repository

import (
	"context"
	"errors"

	"github.com/wholesale-market/walletd/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormAccountRepo struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &gormAccountRepo{db: db}
}

func (r *gormAccountRepo) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *gormAccountRepo) Ensure(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.Account{UserID: userID, Balance: decimal.Zero}).Error
}

// Increase carries the column bound in its WHERE clause so a non-strict
// MySQL never clamps the balance.
func (r *gormAccountRepo) Increase(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	headroom := MaxBalance.Sub(amount)
	if headroom.IsNegative() {
		return decimal.Zero, ErrBalanceOverflow
	}
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND balance <= CAST(? AS DECIMAL(20,4))", userID, headroom.String()).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + CAST(? AS DECIMAL(20,4))", amount.String()),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByUserID(ctx, userID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, ErrBalanceOverflow
	}
	return r.currentBalance(ctx, userID)
}

// Deduct guards and mutates in a single UPDATE. Two concurrent deductions
// cannot both pass a stale check because the guard is evaluated against the
// row the UPDATE locks.
func (r *gormAccountRepo) Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND balance >= CAST(? AS DECIMAL(20,4))", userID, amount.String()).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - CAST(? AS DECIMAL(20,4))", amount.String()),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrBalanceNotEnough
	}
	return r.currentBalance(ctx, userID)
}

// currentBalance reads the row just written; inside a transaction InnoDB
// still holds the row lock from the UPDATE.
func (r *gormAccountRepo) currentBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

