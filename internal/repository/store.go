package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wholesale-market/walletd/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrBalanceNotEnough     = errors.New("balance not enough")
	ErrBalanceOverflow      = errors.New("balance out of range")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrBoostNotFound        = errors.New("boost not found")
	ErrStatusConflict       = errors.New("status changed concurrently")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProductNotFound      = errors.New("product not found")
)

// MaxBalance is the largest value the DECIMAL(20,4) balance column holds.
var MaxBalance = decimal.RequireFromString("9999999999999999.9999")

// Store groups the wallet repositories. Repositories obtained from the tx
// argument of Transaction share one atomic unit: either every write inside
// fn commits or none does.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	Accounts() AccountRepository
	Transactions() TransactionRepository
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
	Boosts() BoostRepository
	Outbox() OutboxRepository
}

type AccountRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*model.Account, error)
	// Ensure creates a zero-balance account if none exists.
	Ensure(ctx context.Context, userID int64) error
	// Increase adds amount and returns the balance after the update. It
	// returns ErrBalanceOverflow and changes nothing if the result would
	// exceed MaxBalance.
	Increase(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	// Deduct subtracts amount only if the balance covers it, as one
	// conditional write. Returns ErrBalanceNotEnough and changes nothing
	// otherwise.
	Deduct(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
}

// TransactionRepository has no update or delete: ledger rows are immutable.
type TransactionRepository interface {
	Create(ctx context.Context, trans *model.WalletTransaction) error
	GetByID(ctx context.Context, id int64) (*model.WalletTransaction, error)
	// GetRefundOf returns the refund row for a charge, or nil if there is none.
	GetRefundOf(ctx context.Context, chargeID int64) (*model.WalletTransaction, error)
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error)
}

type PlanRepository interface {
	GetByID(ctx context.Context, planID int64) (*model.SubscriptionPlan, error)
	List(ctx context.Context, activeOnly bool) ([]*model.SubscriptionPlan, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.UserSubscription) error
	GetByID(ctx context.Context, subID int64) (*model.UserSubscription, error)
	// UpdateStatus writes toStatus only if the row is still in fromStatus.
	UpdateStatus(ctx context.Context, subID int64, fromStatus, toStatus string) error
	// FindActive returns the stored-active row with the latest end date that
	// has not passed at now.
	FindActive(ctx context.Context, userID int64, now time.Time) (*model.UserSubscription, error)
	// LapseStale flips stored-active rows whose end date passed before now
	// to inactive.
	LapseStale(ctx context.Context, userID int64, now time.Time) (int64, error)
	ListByUserID(ctx context.Context, userID int64) ([]*model.UserSubscription, error)
}

type BoostRepository interface {
	Create(ctx context.Context, boost *model.ProductBoost) error
	GetByID(ctx context.Context, boostID int64) (*model.ProductBoost, error)
	FindActive(ctx context.Context, productID int64, now time.Time) (*model.ProductBoost, error)
	FindActiveForProducts(ctx context.Context, productIDs []int64, now time.Time) ([]*model.ProductBoost, error)
	// UpdateStatus writes toStatus only if the row is still in fromStatus.
	UpdateStatus(ctx context.Context, boostID int64, fromStatus, toStatus string) error
	ListBySupplier(ctx context.Context, supplierID int64) ([]*model.ProductBoost, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// CatalogRepository reads tables owned by other layers.
type CatalogRepository interface {
	GetProfile(ctx context.Context, userID int64) (*model.Profile, error)
	GetProduct(ctx context.Context, productID int64) (*model.Product, error)
}
