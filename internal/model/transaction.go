package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType tells the direction of a ledger row. Amount is always a
// positive magnitude.
type TransactionType string

const (
	TransactionTypeTopUp              TransactionType = "topup"
	TransactionTypeSubscriptionCharge TransactionType = "subscription_charge"
	TransactionTypeBoostCharge        TransactionType = "boost_charge"
	TransactionTypeRefund             TransactionType = "refund"
	TransactionTypeAdminCredit        TransactionType = "admin_credit"
)

// IsCredit reports whether the type increases a balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeTopUp, TransactionTypeRefund, TransactionTypeAdminCredit:
		return true
	}
	return false
}

// IsDebit reports whether the type decreases a balance.
func (t TransactionType) IsDebit() bool {
	return t == TransactionTypeSubscriptionCharge || t == TransactionTypeBoostCharge
}

type EntitlementKind string

const (
	EntitlementKindSubscription EntitlementKind = "subscription"
	EntitlementKindBoost        EntitlementKind = "boost"
)

// WalletTransaction is the append-only ledger row. It is written in the same
// DB transaction as the balance change it describes and never updated or
// deleted afterwards.
type WalletTransaction struct {
	ID                     int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TransactionNo          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID                 int64           `gorm:"index:idx_wallet_tx_user_created,priority:1;not null" json:"user_id"`
	Type                   TransactionType `gorm:"type:varchar(32);not null" json:"type"`
	Amount                 decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency               string          `gorm:"type:varchar(8);not null" json:"currency"`
	BalanceBefore          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_before"`
	BalanceAfter           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Description            string          `gorm:"type:varchar(256)" json:"description"`
	RelatedEntitlementID   *int64          `gorm:"index" json:"related_entitlement_id,omitempty"`
	RelatedEntitlementKind EntitlementKind `gorm:"type:varchar(16)" json:"related_entitlement_kind,omitempty"`
	RefundOfID             *int64          `gorm:"uniqueIndex" json:"refund_of_id,omitempty"` // one refund per charge
	CreatedAt              time.Time       `gorm:"index:idx_wallet_tx_user_created,priority:2;not null" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}
