package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
)

// Ranking weights used by catalog listings.
const (
	WeightNone     = 0
	WeightStandard = 1
	WeightPremium  = 2
)

// QueryService answers "is it active now". Expiry is evaluated against the
// clock on every read; nothing is ever written here.
type QueryService struct {
	store repository.Store
	now   func() time.Time
}

func NewQueryService(store repository.Store, opts ...Option) *QueryService {
	o := buildOptions("query", opts)
	return &QueryService{store: store, now: o.now}
}

// IsSubscriptionActive reports whether userID has a subscription granting
// access right now, and returns it when so.
func (s *QueryService) IsSubscriptionActive(ctx context.Context, userID int64) (bool, *model.UserSubscription, error) {
	sub, err := activeSubscription(ctx, s.store, userID, s.now())
	if err != nil {
		return false, nil, err
	}
	return sub != nil, sub, nil
}

// GetActiveBoost returns the boost counting toward the product's ranking
// now, or nil if there is none.
func (s *QueryService) GetActiveBoost(ctx context.Context, productID int64) (*model.ProductBoost, error) {
	return activeBoost(ctx, s.store, productID, s.now())
}

func (s *QueryService) RankingWeight(ctx context.Context, productID int64) (int, error) {
	boost, err := s.GetActiveBoost(ctx, productID)
	if err != nil {
		return WeightNone, err
	}
	return WeightOf(boost), nil
}

// RankedProduct pairs a product id with its current ranking weight.
type RankedProduct struct {
	ProductID int64  `json:"product_id"`
	Weight    int    `json:"weight"`
	Level     string `json:"boost_level,omitempty"`
}

// RankProducts orders productIDs by weight, highest first. Products with the
// same weight keep their input order.
func (s *QueryService) RankProducts(ctx context.Context, productIDs []int64) ([]RankedProduct, error) {
	if len(productIDs) == 0 {
		return []RankedProduct{}, nil
	}
	boosts, err := s.store.Boosts().FindActiveForProducts(ctx, productIDs, s.now())
	if err != nil {
		return nil, fmt.Errorf("find active boosts: %w", err)
	}
	best := make(map[int64]*model.ProductBoost, len(boosts))
	for _, b := range boosts {
		if cur, ok := best[b.ProductID]; !ok || WeightOf(b) > WeightOf(cur) {
			best[b.ProductID] = b
		}
	}

	ranked := make([]RankedProduct, 0, len(productIDs))
	for _, id := range productIDs {
		r := RankedProduct{ProductID: id}
		if b, ok := best[id]; ok {
			r.Weight = WeightOf(b)
			r.Level = b.BoostLevel
		}
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Weight > ranked[j].Weight })
	return ranked, nil
}

// ListPlans returns the plans a user can subscribe to.
func (s *QueryService) ListPlans(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	plans, err := s.store.Plans().List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// ListSubscriptions returns every subscription of userID, newest first.
func (s *QueryService) ListSubscriptions(ctx context.Context, userID int64) ([]*model.UserSubscription, error) {
	subs, err := s.store.Subscriptions().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of user %d: %w", userID, err)
	}
	return subs, nil
}

// BoostView is a boost with the status a reader should see now. A stored
// active boost past its end date is reported expired.
type BoostView struct {
	*model.ProductBoost
	EffectiveStatus string `json:"effective_status"`
}

func (s *QueryService) ListSupplierBoosts(ctx context.Context, supplierID int64) ([]BoostView, error) {
	boosts, err := s.store.Boosts().ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list boosts of supplier %d: %w", supplierID, err)
	}
	now := s.now()
	views := make([]BoostView, 0, len(boosts))
	for _, b := range boosts {
		views = append(views, BoostView{ProductBoost: b, EffectiveStatus: effectiveBoostStatus(b, now)})
	}
	return views, nil
}

func effectiveBoostStatus(b *model.ProductBoost, now time.Time) string {
	if b.Status != model.BoostStatusExpired && now.After(b.EndDate) {
		return model.BoostStatusExpired
	}
	return b.Status
}

// WeightOf is the ranking weight b contributes; nil counts as WeightNone.
func WeightOf(b *model.ProductBoost) int {
	if b == nil {
		return WeightNone
	}
	switch b.BoostLevel {
	case model.BoostLevelPremium:
		return WeightPremium
	case model.BoostLevelStandard:
		return WeightStandard
	}
	return WeightNone
}

// activeSubscription is the one definition of "subscription active at now",
// shared by reads and by the activation precondition.
func activeSubscription(ctx context.Context, store repository.Store, userID int64, now time.Time) (*model.UserSubscription, error) {
	sub, err := store.Subscriptions().FindActive(ctx, userID, now)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active subscription of user %d: %w", userID, err)
	}
	return sub, nil
}

// activeBoost is the one definition of "boost active at now".
func activeBoost(ctx context.Context, store repository.Store, productID int64, now time.Time) (*model.ProductBoost, error) {
	boost, err := store.Boosts().FindActive(ctx, productID, now)
	if err != nil {
		if errors.Is(err, repository.ErrBoostNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active boost of product %d: %w", productID, err)
	}
	return boost, nil
}
