package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BoostLevelStandard = "standard"
	BoostLevelPremium  = "premium"
)

const (
	BoostStatusActive  = "active"
	BoostStatusPaused  = "paused"
	BoostStatusExpired = "expired"
)

// ValidBoostTransitions lists the status writes a supplier may perform.
// Passive expiry (EndDate passing) is never written.
var ValidBoostTransitions = map[string][]string{
	BoostStatusActive: {BoostStatusPaused, BoostStatusExpired},
	BoostStatusPaused: {BoostStatusActive, BoostStatusExpired},
}

func CanBoostTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidBoostTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ProductBoost is a paid, time-limited ranking promotion for one product.
// Pausing does not stop the clock: EndDate is fixed at activation.
type ProductBoost struct {
	ID           int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ProductID    int64           `gorm:"index:idx_boost_product_status,priority:1;not null" json:"product_id"`
	SupplierID   int64           `gorm:"index;not null" json:"supplier_id"`
	BoostLevel   string          `gorm:"type:varchar(16);not null" json:"boost_level"`
	DurationDays int             `gorm:"not null" json:"duration_days"`
	Price        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Status       string          `gorm:"type:varchar(16);index:idx_boost_product_status,priority:2;not null" json:"status"`
	StartDate    time.Time       `gorm:"not null" json:"start_date"`
	EndDate      time.Time       `gorm:"not null" json:"end_date"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProductBoost) TableName() string {
	return "product_boost"
}

// ActiveAt reports whether the boost counts toward ranking at t.
func (b *ProductBoost) ActiveAt(t time.Time) bool {
	return b.Status == BoostStatusActive && !t.Before(b.StartDate) && !t.After(b.EndDate)
}
