package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wholesale-market/walletd/internal/infrastructure/lock"
	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
	"github.com/wholesale-market/walletd/pkg/idgen"
)

// ProductCatalog is the catalog layer's product store.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID int64) (*model.Product, error)
}

// EntitlementService turns wallet debits into subscriptions and boosts.
// Each activation runs check, charge and grant in one DB transaction while
// holding an advisory lock on the resource, so two concurrent requests can
// neither both pass the check nor leave a charge without a grant.
type EntitlementService struct {
	store   repository.Store
	wallet  *WalletService
	prices  *PriceTable
	catalog ProductCatalog
	locker  lock.Locker
	events  eventWriter
	now     func() time.Time
	logger  *slog.Logger
}

func NewEntitlementService(store repository.Store, wallet *WalletService, prices *PriceTable, catalog ProductCatalog, locker lock.Locker, opts ...Option) *EntitlementService {
	o := buildOptions("entitlement", opts)
	return &EntitlementService{
		store:   store,
		wallet:  wallet,
		prices:  prices,
		catalog: catalog,
		locker:  locker,
		events:  eventWriter{topic: o.eventTopic},
		now:     o.now,
		logger:  o.logger,
	}
}

// SubscriptionActivation is the result of a paid subscription.
type SubscriptionActivation struct {
	Subscription *model.UserSubscription  `json:"subscription"`
	Transaction  *model.WalletTransaction `json:"transaction"`
}

// BoostActivation is the result of a paid boost.
type BoostActivation struct {
	Boost       *model.ProductBoost      `json:"boost"`
	Transaction *model.WalletTransaction `json:"transaction"`
}

// ActivateSubscription charges the plan price and grants the plan for its
// duration. It fails with ErrAlreadyActive, before any charge, while another
// subscription of the user is active.
func (s *EntitlementService) ActivateSubscription(ctx context.Context, userID, planID int64) (*SubscriptionActivation, error) {
	plan, err := loadPlan(ctx, s.store, planID)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(plan.Price); err != nil {
		return nil, fmt.Errorf("plan %d price: %w", planID, err)
	}
	if err := validateDuration(plan.DurationDays); err != nil {
		return nil, fmt.Errorf("plan %d: %w", planID, err)
	}
	currency := s.wallet.currencyOf(ctx, userID)

	release, err := acquire(ctx, s.locker, lock.UserSubscriptionKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	result := &SubscriptionActivation{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		now := s.now()
		if err := ensureNoActiveSubscription(ctx, tx, userID, now); err != nil {
			return err
		}

		subID := idgen.NextID()
		trans, err := s.wallet.debit(ctx, tx, ledgerEntry{
			userID:      userID,
			amount:      plan.Price,
			txType:      model.TransactionTypeSubscriptionCharge,
			description: fmt.Sprintf("Subscription: %s (%d days)", plan.Name, plan.DurationDays),
			currency:    currency,
			related:     &EntitlementRef{ID: subID, Kind: model.EntitlementKindSubscription},
		})
		if err != nil {
			return err
		}

		sub, err := grantSubscription(ctx, tx, s.events, subscriptionGrant{
			id:        subID,
			userID:    userID,
			planID:    plan.ID,
			days:      plan.DurationDays,
			grantedBy: model.GrantedByPurchase,
			now:       now,
		})
		if err != nil {
			return err
		}
		result.Subscription = sub
		result.Transaction = trans
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription activated",
		"user_id", userID, "plan_id", planID, "subscription_id", result.Subscription.ID,
		"end_date", result.Subscription.EndDate, "balance", result.Transaction.BalanceAfter.String())
	return result, nil
}

// ActivateBoost charges the tier price and boosts the supplier's product for
// durationDays. It fails with ErrAlreadyActive, before any charge, while the
// product has another active boost.
func (s *EntitlementService) ActivateBoost(ctx context.Context, supplierID, productID int64, level string, durationDays int) (*BoostActivation, error) {
	product, err := s.ownedProduct(ctx, supplierID, productID)
	if err != nil {
		return nil, err
	}
	price, err := s.prices.Price(level, durationDays)
	if err != nil {
		return nil, err
	}
	currency := s.wallet.currencyOf(ctx, supplierID)

	release, err := acquire(ctx, s.locker, lock.ProductBoostKey(productID))
	if err != nil {
		return nil, err
	}
	defer release()

	result := &BoostActivation{}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		now := s.now()
		active, err := activeBoost(ctx, tx, productID, now)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("product %d boosted until %s: %w", productID, active.EndDate.Format(time.RFC3339), ErrAlreadyActive)
		}

		boostID := idgen.NextID()
		trans, err := s.wallet.debit(ctx, tx, ledgerEntry{
			userID:      supplierID,
			amount:      price,
			txType:      model.TransactionTypeBoostCharge,
			description: fmt.Sprintf("Boost %s %d days: %s", level, durationDays, product.Name),
			currency:    currency,
			related:     &EntitlementRef{ID: boostID, Kind: model.EntitlementKindBoost},
		})
		if err != nil {
			return err
		}

		boost := &model.ProductBoost{
			ID:           boostID,
			ProductID:    productID,
			SupplierID:   supplierID,
			BoostLevel:   level,
			DurationDays: durationDays,
			Price:        price,
			Status:       model.BoostStatusActive,
			StartDate:    now,
			EndDate:      endDate(now, durationDays),
		}
		if err := tx.Boosts().Create(ctx, boost); err != nil {
			return fmt.Errorf("create boost: %w", err)
		}
		if err := s.events.write(ctx, tx, model.EventBoostActivated, fmt.Sprint(boost.ID), now, boost); err != nil {
			return err
		}
		result.Boost = boost
		result.Transaction = trans
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("boost activated",
		"supplier_id", supplierID, "product_id", productID, "boost_id", result.Boost.ID,
		"level", level, "days", durationDays, "balance", result.Transaction.BalanceAfter.String())
	return result, nil
}

// PauseBoost stops a boost from counting toward ranking. The end date is
// not moved: paused time is lost.
func (s *EntitlementService) PauseBoost(ctx context.Context, supplierID, boostID int64) (*model.ProductBoost, error) {
	return s.transitionBoost(ctx, supplierID, boostID, model.BoostStatusPaused)
}

// ResumeBoost reactivates a paused boost that has not reached its end date.
func (s *EntitlementService) ResumeBoost(ctx context.Context, supplierID, boostID int64) (*model.ProductBoost, error) {
	return s.transitionBoost(ctx, supplierID, boostID, model.BoostStatusActive)
}

// StopBoost ends a boost for good. There is no refund.
func (s *EntitlementService) StopBoost(ctx context.Context, supplierID, boostID int64) (*model.ProductBoost, error) {
	return s.transitionBoost(ctx, supplierID, boostID, model.BoostStatusExpired)
}

func (s *EntitlementService) transitionBoost(ctx context.Context, supplierID, boostID int64, target string) (*model.ProductBoost, error) {
	boost, err := s.loadOwnedBoost(ctx, s.store, supplierID, boostID)
	if err != nil {
		return nil, err
	}

	release, err := acquire(ctx, s.locker, lock.ProductBoostKey(boost.ProductID))
	if err != nil {
		return nil, err
	}
	defer release()

	var from string
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		// re-read under the lock
		current, err := s.loadOwnedBoost(ctx, tx, supplierID, boostID)
		if err != nil {
			return err
		}
		from = current.Status
		if !model.CanBoostTransitionTo(current.Status, target) {
			return fmt.Errorf("boost %d %s -> %s: %w", boostID, current.Status, target, ErrInvalidTransition)
		}

		now := s.now()
		if target != model.BoostStatusExpired && now.After(current.EndDate) {
			return fmt.Errorf("boost %d ended at %s: %w", boostID, current.EndDate.Format(time.RFC3339), ErrInvalidTransition)
		}
		if target == model.BoostStatusActive {
			other, err := activeBoost(ctx, tx, current.ProductID, now)
			if err != nil {
				return err
			}
			if other != nil && other.ID != current.ID {
				return fmt.Errorf("product %d has boost %d active: %w", current.ProductID, other.ID, ErrAlreadyActive)
			}
		}

		if err := tx.Boosts().UpdateStatus(ctx, boostID, current.Status, target); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				return fmt.Errorf("boost %d: %w", boostID, ErrInvalidTransition)
			}
			return fmt.Errorf("update boost %d: %w", boostID, err)
		}
		current.Status = target
		boost = current
		return s.events.write(ctx, tx, model.EventBoostStatusChanged, fmt.Sprint(boostID), now, map[string]interface{}{
			"boost_id":   boostID,
			"product_id": current.ProductID,
			"from":       from,
			"to":         target,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("boost status changed", "boost_id", boostID, "from", from, "to", target)
	return boost, nil
}

func (s *EntitlementService) ownedProduct(ctx context.Context, supplierID, productID int64) (*model.Product, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, fmt.Errorf("get product %d: %w", productID, err)
	}
	if product.SupplierID != supplierID {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNotAuthorized)
	}
	return product, nil
}

func (s *EntitlementService) loadOwnedBoost(ctx context.Context, store repository.Store, supplierID, boostID int64) (*model.ProductBoost, error) {
	boost, err := store.Boosts().GetByID(ctx, boostID)
	if err != nil {
		if errors.Is(err, repository.ErrBoostNotFound) {
			return nil, fmt.Errorf("boost %d: %w", boostID, ErrNotFound)
		}
		return nil, fmt.Errorf("get boost %d: %w", boostID, err)
	}
	if boost.SupplierID != supplierID {
		return nil, fmt.Errorf("boost %d: %w", boostID, ErrNotAuthorized)
	}
	return boost, nil
}

func loadPlan(ctx context.Context, store repository.Store, planID int64) (*model.SubscriptionPlan, error) {
	plan, err := store.Plans().GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, fmt.Errorf("plan %d: %w", planID, ErrNotFound)
		}
		return nil, fmt.Errorf("get plan %d: %w", planID, err)
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("plan %d is retired: %w", planID, ErrNotFound)
	}
	return plan, nil
}

// ensureNoActiveSubscription is the activation precondition. Rows still
// stored active but past their end date are lapsed to inactive so at most
// one stored-active row exists per user.
func ensureNoActiveSubscription(ctx context.Context, tx repository.Store, userID int64, now time.Time) error {
	active, err := activeSubscription(ctx, tx, userID, now)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("user %d subscribed until %s: %w", userID, active.EndDate.Format(time.RFC3339), ErrAlreadyActive)
	}
	if _, err := tx.Subscriptions().LapseStale(ctx, userID, now); err != nil {
		return fmt.Errorf("lapse stale subscriptions of user %d: %w", userID, err)
	}
	return nil
}

type subscriptionGrant struct {
	id        int64
	userID    int64
	planID    int64
	days      int
	grantedBy string
	now       time.Time
}

// grantSubscription inserts the active row. It never touches the wallet.
func grantSubscription(ctx context.Context, tx repository.Store, events eventWriter, g subscriptionGrant) (*model.UserSubscription, error) {
	sub := &model.UserSubscription{
		ID:        g.id,
		UserID:    g.userID,
		PlanID:    g.planID,
		Status:    model.SubscriptionStatusActive,
		StartDate: g.now,
		EndDate:   endDate(g.now, g.days),
		AutoRenew: false,
		GrantedBy: g.grantedBy,
	}
	if err := tx.Subscriptions().Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := events.write(ctx, tx, model.EventSubscriptionActivated, fmt.Sprint(sub.ID), g.now, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// acquire maps lock contention to ErrLockBusy and keeps context errors as is.
func acquire(ctx context.Context, locker lock.Locker, key string) (lock.Release, error) {
	release, err := locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrLockBusy, err)
	}
	return release, nil
}
