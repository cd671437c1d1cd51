package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wholesale-market/walletd/internal/infrastructure/lock"
	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
	"github.com/wholesale-market/walletd/pkg/idgen"

	"github.com/shopspring/decimal"
)

// AdminService is the back-office path. Its subscription grant is free and
// shares no code with the paid activation beyond the row insert.
type AdminService struct {
	store  repository.Store
	wallet *WalletService
	locker lock.Locker
	events eventWriter
	now    func() time.Time
	logger *slog.Logger
}

func NewAdminService(store repository.Store, wallet *WalletService, locker lock.Locker, opts ...Option) *AdminService {
	o := buildOptions("admin", opts)
	return &AdminService{
		store:  store,
		wallet: wallet,
		locker: locker,
		events: eventWriter{topic: o.eventTopic},
		now:    o.now,
		logger: o.logger,
	}
}

// AdminCredit adds funds to a wallet outside the payment flow.
func (s *AdminService) AdminCredit(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*model.WalletTransaction, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		description = "admin credit"
	}
	return s.wallet.Credit(ctx, userID, amount, model.TransactionTypeAdminCredit, description)
}

// AdminAssignSubscription grants planID without charging the wallet and
// without writing a ledger row. durationDays overrides the plan duration
// when set.
func (s *AdminService) AdminAssignSubscription(ctx context.Context, userID, planID int64, durationDays *int) (*model.UserSubscription, error) {
	plan, err := loadPlan(ctx, s.store, planID)
	if err != nil {
		return nil, err
	}
	days := plan.DurationDays
	if durationDays != nil {
		days = *durationDays
	}
	if err := validateDuration(days); err != nil {
		return nil, fmt.Errorf("assign plan %d: %w", planID, err)
	}

	release, err := acquire(ctx, s.locker, lock.UserSubscriptionKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	var sub *model.UserSubscription
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		now := s.now()
		if err := ensureNoActiveSubscription(ctx, tx, userID, now); err != nil {
			return err
		}
		var err error
		sub, err = grantSubscription(ctx, tx, s.events, subscriptionGrant{
			id:        idgen.NextID(),
			userID:    userID,
			planID:    plan.ID,
			days:      days,
			grantedBy: model.GrantedByAdmin,
			now:       now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription assigned", "user_id", userID, "plan_id", planID,
		"subscription_id", sub.ID, "days", days)
	return sub, nil
}

// AdminRefund credits back a subscription or boost charge and revokes the
// entitlement it paid for. A charge is refunded at most once.
func (s *AdminService) AdminRefund(ctx context.Context, transactionID int64, reason string) (*model.WalletTransaction, error) {
	charge, err := s.store.Transactions().GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", transactionID, ErrNotFound)
		}
		return nil, fmt.Errorf("get transaction %d: %w", transactionID, err)
	}
	if !charge.Type.IsDebit() {
		return nil, fmt.Errorf("transaction %d is %s: %w", transactionID, charge.Type, ErrNotRefundable)
	}

	key, err := s.refundKey(ctx, charge)
	if err != nil {
		return nil, err
	}
	release, err := acquire(ctx, s.locker, key)
	if err != nil {
		return nil, err
	}
	defer release()

	description := fmt.Sprintf("refund of %s", charge.TransactionNo)
	if reason = strings.TrimSpace(reason); reason != "" {
		description += ": " + reason
	}

	var refund *model.WalletTransaction
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		existing, err := tx.Transactions().GetRefundOf(ctx, charge.ID)
		if err != nil {
			return fmt.Errorf("find refund of %d: %w", charge.ID, err)
		}
		if existing != nil {
			return fmt.Errorf("transaction %d refunded by %s: %w", charge.ID, existing.TransactionNo, ErrAlreadyRefunded)
		}

		chargeID := charge.ID
		refund, err = s.wallet.credit(ctx, tx, ledgerEntry{
			userID:      charge.UserID,
			amount:      charge.Amount,
			txType:      model.TransactionTypeRefund,
			description: description,
			currency:    charge.Currency,
			related:     relatedOf(charge),
			refundOf:    &chargeID,
		})
		if err != nil {
			return err
		}
		return s.revoke(ctx, tx, charge)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("charge refunded", "transaction_id", charge.ID, "refund_no", refund.TransactionNo,
		"user_id", charge.UserID, "amount", charge.Amount.String())
	return refund, nil
}

// revoke ends the entitlement a refunded charge paid for. Entitlements that
// already ended are left alone.
func (s *AdminService) revoke(ctx context.Context, tx repository.Store, charge *model.WalletTransaction) error {
	if charge.RelatedEntitlementID == nil {
		return nil
	}
	id := *charge.RelatedEntitlementID
	now := s.now()

	switch charge.RelatedEntitlementKind {
	case model.EntitlementKindBoost:
		boost, err := tx.Boosts().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrBoostNotFound) {
				return nil
			}
			return fmt.Errorf("get boost %d: %w", id, err)
		}
		if boost.Status == model.BoostStatusExpired {
			return nil
		}
		if err := tx.Boosts().UpdateStatus(ctx, id, boost.Status, model.BoostStatusExpired); err != nil {
			return fmt.Errorf("revoke boost %d: %w", id, err)
		}
		return s.events.write(ctx, tx, model.EventBoostStatusChanged, fmt.Sprint(id), now, map[string]interface{}{
			"boost_id":   id,
			"product_id": boost.ProductID,
			"from":       boost.Status,
			"to":         model.BoostStatusExpired,
		})
	case model.EntitlementKindSubscription:
		sub, err := tx.Subscriptions().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrSubscriptionNotFound) {
				return nil
			}
			return fmt.Errorf("get subscription %d: %w", id, err)
		}
		if sub.Status != model.SubscriptionStatusActive {
			return nil
		}
		if err := tx.Subscriptions().UpdateStatus(ctx, id, sub.Status, model.SubscriptionStatusCancelled); err != nil {
			return fmt.Errorf("revoke subscription %d: %w", id, err)
		}
	}
	return nil
}

func relatedOf(charge *model.WalletTransaction) *EntitlementRef {
	if charge.RelatedEntitlementID == nil {
		return nil
	}
	return &EntitlementRef{ID: *charge.RelatedEntitlementID, Kind: charge.RelatedEntitlementKind}
}

// refundKey locks the entitlement a charge paid for, so a refund cannot
// interleave with an activation or status change on the same resource.
func (s *AdminService) refundKey(ctx context.Context, charge *model.WalletTransaction) (string, error) {
	if charge.RelatedEntitlementID != nil && charge.RelatedEntitlementKind == model.EntitlementKindBoost {
		boost, err := s.store.Boosts().GetByID(ctx, *charge.RelatedEntitlementID)
		switch {
		case err == nil:
			return lock.ProductBoostKey(boost.ProductID), nil
		case !errors.Is(err, repository.ErrBoostNotFound):
			return "", fmt.Errorf("get boost %d: %w", *charge.RelatedEntitlementID, err)
		}
	}
	return lock.UserSubscriptionKey(charge.UserID), nil
}
