package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/wholesale-market/walletd/internal/repository"

	"github.com/shopspring/decimal"
)

// amountScale matches the DECIMAL(20,4) ledger columns.
const amountScale = 4

// MaxAmount is the largest value a DECIMAL(20,4) column holds.
var MaxAmount = repository.MaxBalance

// MaxDurationDays bounds plan, boost and admin-assigned durations.
const MaxDurationDays = 3650

// ParseAmount parses a decimal string such as "10000" or "49.90".
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q: %w", raw, ErrInvalidAmount)
	}
	if err := validateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%s must be positive: %w", amount.String(), ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(amountScale)) {
		return fmt.Errorf("%s has more than %d decimal places: %w", amount.String(), amountScale, ErrInvalidAmount)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("%s exceeds %s: %w", amount.String(), MaxAmount.String(), ErrInvalidAmount)
	}
	return nil
}

func validateDuration(days int) error {
	if days <= 0 || days > MaxDurationDays {
		return fmt.Errorf("%d days, want 1..%d: %w", days, MaxDurationDays, ErrInvalidDuration)
	}
	return nil
}

// endDate is start plus days calendar days.
func endDate(start time.Time, days int) time.Time {
	return start.AddDate(0, 0, days)
}
