package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a supplier wallet. A user without a row has a zero balance.
// Balance is only ever changed through the conditional updates in
// repository.AccountRepository; there is no "set balance" path.
type Account struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	Version   int64           `gorm:"not null;default:0" json:"version"` // bumped on every mutation
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "wallet_account"
}
