package service

import (
	"fmt"
	"sort"

	"github.com/wholesale-market/walletd/internal/config"
	"github.com/wholesale-market/walletd/internal/model"

	"github.com/shopspring/decimal"
)

// BoostTier is one priced (level, duration) combination.
type BoostTier struct {
	Level string          `json:"level"`
	Days  int             `json:"days"`
	Price decimal.Decimal `json:"price"`
}

type tierKey struct {
	level string
	days  int
}

// PriceTable is the finite boost price matrix. It is validated once at
// construction; lookups for anything not in it fail with ErrInvalidBoostTier.
type PriceTable struct {
	prices map[tierKey]decimal.Decimal
	tiers  []BoostTier
}

func DefaultBoostTiers() []BoostTier {
	return []BoostTier{
		{Level: model.BoostLevelStandard, Days: 7, Price: decimal.NewFromInt(5000)},
		{Level: model.BoostLevelStandard, Days: 14, Price: decimal.NewFromInt(9000)},
		{Level: model.BoostLevelStandard, Days: 30, Price: decimal.NewFromInt(18000)},
		{Level: model.BoostLevelPremium, Days: 7, Price: decimal.NewFromInt(10000)},
		{Level: model.BoostLevelPremium, Days: 14, Price: decimal.NewFromInt(18000)},
		{Level: model.BoostLevelPremium, Days: 30, Price: decimal.NewFromInt(35000)},
	}
}

func NewPriceTable(tiers []BoostTier) (*PriceTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("boost price table is empty")
	}
	t := &PriceTable{prices: make(map[tierKey]decimal.Decimal, len(tiers))}
	levels := map[string]bool{}
	for _, tier := range tiers {
		if tier.Level != model.BoostLevelStandard && tier.Level != model.BoostLevelPremium {
			return nil, fmt.Errorf("boost tier %s/%dd: unknown level", tier.Level, tier.Days)
		}
		if err := validateDuration(tier.Days); err != nil {
			return nil, fmt.Errorf("boost tier %s: %w", tier.Level, err)
		}
		if err := validateAmount(tier.Price); err != nil {
			return nil, fmt.Errorf("boost tier %s/%dd: %w", tier.Level, tier.Days, err)
		}
		key := tierKey{tier.Level, tier.Days}
		if _, dup := t.prices[key]; dup {
			return nil, fmt.Errorf("boost tier %s/%dd: duplicate", tier.Level, tier.Days)
		}
		t.prices[key] = tier.Price
		t.tiers = append(t.tiers, tier)
		levels[tier.Level] = true
	}
	for _, level := range []string{model.BoostLevelStandard, model.BoostLevelPremium} {
		if !levels[level] {
			return nil, fmt.Errorf("boost level %s has no priced duration", level)
		}
	}
	sort.Slice(t.tiers, func(i, j int) bool {
		if t.tiers[i].Level != t.tiers[j].Level {
			return t.tiers[i].Level > t.tiers[j].Level // standard before premium
		}
		return t.tiers[i].Days < t.tiers[j].Days
	})
	return t, nil
}

// PriceTableFromConfig builds the table from config, falling back to the
// defaults when none is configured.
func PriceTableFromConfig(cfg config.BoostConfig) (*PriceTable, error) {
	if len(cfg.Prices) == 0 {
		return NewPriceTable(DefaultBoostTiers())
	}
	tiers := make([]BoostTier, 0, len(cfg.Prices))
	for _, p := range cfg.Prices {
		price, err := ParseAmount(p.Price)
		if err != nil {
			return nil, fmt.Errorf("boost tier %s/%dd: price: %w", p.Level, p.Days, err)
		}
		tiers = append(tiers, BoostTier{Level: p.Level, Days: p.Days, Price: price})
	}
	return NewPriceTable(tiers)
}

func (t *PriceTable) Price(level string, days int) (decimal.Decimal, error) {
	price, ok := t.prices[tierKey{level, days}]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s for %d days: %w", level, days, ErrInvalidBoostTier)
	}
	return price, nil
}

// Tiers returns every offered tier, standard first, shortest first.
func (t *PriceTable) Tiers() []BoostTier {
	out := make([]BoostTier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
