package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
	"github.com/wholesale-market/walletd/pkg/idgen"

	"github.com/shopspring/decimal"
)

// DefaultCurrency labels transactions of users without a profile row.
const DefaultCurrency = "USD"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ProfileLookup is the account layer's profile store.
type ProfileLookup interface {
	GetProfile(ctx context.Context, userID int64) (*model.Profile, error)
}

// EntitlementRef links a charge to the entitlement it paid for.
type EntitlementRef struct {
	ID   int64
	Kind model.EntitlementKind
}

// ledgerEntry is one balance mutation plus the ledger row describing it.
type ledgerEntry struct {
	userID      int64
	amount      decimal.Decimal
	txType      model.TransactionType
	description string
	currency    string
	related     *EntitlementRef
	refundOf    *int64
}

// WalletService owns balance reads and is the only code path that changes a
// balance. Every change is a conditional update plus one ledger row in the
// same DB transaction.
type WalletService struct {
	store    repository.Store
	profiles ProfileLookup
	events   eventWriter
	now      func() time.Time
	logger   *slog.Logger
}

func NewWalletService(store repository.Store, profiles ProfileLookup, opts ...Option) *WalletService {
	o := buildOptions("wallet", opts)
	return &WalletService{
		store:    store,
		profiles: profiles,
		events:   eventWriter{topic: o.eventTopic},
		now:      o.now,
		logger:   o.logger,
	}
}

// GetBalance returns 0 for users that never had a wallet row.
func (s *WalletService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := s.store.Accounts().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get account %d: %w", userID, err)
	}
	return account.Balance, nil
}

// TransactionPage is one page of a user's ledger. Page and PageSize are the
// values actually applied.
type TransactionPage struct {
	List     []*model.WalletTransaction
	Total    int64
	Page     int
	PageSize int
}

// ListTransactions returns the user's ledger newest first. page and pageSize
// are clamped to 1 and 1..100.
func (s *WalletService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	list, total, err := s.store.Transactions().ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list transactions %d: %w", userID, err)
	}
	return &TransactionPage{List: list, Total: total, Page: page, PageSize: pageSize}, nil
}

// TopUp credits the wallet. Settlement with the payment provider happens
// before this call and is not modeled here.
func (s *WalletService) TopUp(ctx context.Context, userID int64, amount decimal.Decimal) (*model.WalletTransaction, error) {
	return s.Credit(ctx, userID, amount, model.TransactionTypeTopUp, "wallet top-up")
}

// Credit increases the balance by amount and appends one ledger row.
func (s *WalletService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, txType model.TransactionType, description string) (*model.WalletTransaction, error) {
	if !txType.IsCredit() {
		return nil, fmt.Errorf("credit with %s: %w", txType, ErrInvalidAmount)
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	entry := ledgerEntry{
		userID:      userID,
		amount:      amount,
		txType:      txType,
		description: description,
		currency:    s.currencyOf(ctx, userID),
	}

	var trans *model.WalletTransaction
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		trans, err = s.credit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet credited",
		"user_id", userID, "type", txType, "amount", amount.String(),
		"balance", trans.BalanceAfter.String(), "transaction_no", trans.TransactionNo)
	return trans, nil
}

// Debit decreases the balance only if it covers amount. On
// ErrInsufficientFunds nothing is written.
func (s *WalletService) Debit(ctx context.Context, userID int64, amount decimal.Decimal, txType model.TransactionType, description string, related *EntitlementRef) (*model.WalletTransaction, error) {
	if !txType.IsDebit() {
		return nil, fmt.Errorf("debit with %s: %w", txType, ErrInvalidAmount)
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	entry := ledgerEntry{
		userID:      userID,
		amount:      amount,
		txType:      txType,
		description: description,
		currency:    s.currencyOf(ctx, userID),
		related:     related,
	}

	var trans *model.WalletTransaction
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		trans, err = s.debit(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet debited",
		"user_id", userID, "type", txType, "amount", amount.String(),
		"balance", trans.BalanceAfter.String(), "transaction_no", trans.TransactionNo)
	return trans, nil
}

// credit runs inside the caller's transaction.
func (s *WalletService) credit(ctx context.Context, tx repository.Store, e ledgerEntry) (*model.WalletTransaction, error) {
	if err := tx.Accounts().Ensure(ctx, e.userID); err != nil {
		return nil, fmt.Errorf("ensure account %d: %w", e.userID, err)
	}
	after, err := tx.Accounts().Increase(ctx, e.userID, e.amount)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceOverflow) {
			return nil, fmt.Errorf("credit %s to user %d: %w", e.amount.String(), e.userID, ErrInvalidAmount)
		}
		return nil, fmt.Errorf("increase balance %d: %w", e.userID, err)
	}
	return s.record(ctx, tx, e, after.Sub(e.amount), after, model.EventWalletCredited)
}

// debit runs inside the caller's transaction.
func (s *WalletService) debit(ctx context.Context, tx repository.Store, e ledgerEntry) (*model.WalletTransaction, error) {
	after, err := tx.Accounts().Deduct(ctx, e.userID, e.amount)
	if err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			return nil, fmt.Errorf("debit %s from user %d: %w", e.amount.String(), e.userID, ErrInsufficientFunds)
		}
		return nil, fmt.Errorf("deduct balance %d: %w", e.userID, err)
	}
	return s.record(ctx, tx, e, after.Add(e.amount), after, model.EventWalletDebited)
}

func (s *WalletService) record(ctx context.Context, tx repository.Store, e ledgerEntry, before, after decimal.Decimal, eventType string) (*model.WalletTransaction, error) {
	id := idgen.NextID()
	trans := &model.WalletTransaction{
		ID:            id,
		TransactionNo: idgen.GenerateTransactionNo(id),
		UserID:        e.userID,
		Type:          e.txType,
		Amount:        e.amount,
		Currency:      e.currency,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   e.description,
		RefundOfID:    e.refundOf,
		CreatedAt:     s.now(),
	}
	if e.related != nil {
		relatedID := e.related.ID
		trans.RelatedEntitlementID = &relatedID
		trans.RelatedEntitlementKind = e.related.Kind
	}
	if err := tx.Transactions().Create(ctx, trans); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	if err := s.events.write(ctx, tx, eventType, trans.TransactionNo, trans.CreatedAt, trans); err != nil {
		return nil, err
	}
	return trans, nil
}

// currencyOf labels a user's transactions. Lookup failures fall back to
// DefaultCurrency; the profile store is not authoritative for the ledger.
func (s *WalletService) currencyOf(ctx context.Context, userID int64) string {
	if s.profiles == nil {
		return DefaultCurrency
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrProfileNotFound) {
			s.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
		}
		return DefaultCurrency
	}
	if profile.Currency == "" {
		return DefaultCurrency
	}
	return profile.Currency
}
