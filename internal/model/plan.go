package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SubscriptionPlan is admin-managed catalog data; the wallet core only
// reads it.
type SubscriptionPlan struct {
	ID           int64                       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string                      `gorm:"type:varchar(128);not null" json:"name"`
	Price        decimal.Decimal             `gorm:"type:decimal(20,4);not null" json:"price"`
	DurationDays int                         `gorm:"not null" json:"duration_days"`
	Features     datatypes.JSONSlice[string] `gorm:"type:json" json:"features"`
	IsActive     bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plan"
}
