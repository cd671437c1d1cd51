package model

import (
	"time"
)

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusInactive  = "inactive"
	SubscriptionStatusCancelled = "cancelled"
)

const (
	GrantedByPurchase = "purchase"
	GrantedByAdmin    = "admin"
)

// UserSubscription is a time-bounded plan entitlement. A stored active
// status is not enough: the row only counts while EndDate has not passed.
type UserSubscription struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID    int64     `gorm:"index:idx_user_sub_status,priority:1;not null" json:"user_id"`
	PlanID    int64     `gorm:"index;not null" json:"plan_id"`
	Status    string    `gorm:"type:varchar(16);index:idx_user_sub_status,priority:2;not null" json:"status"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	AutoRenew bool      `gorm:"not null;default:false" json:"auto_renew"`
	GrantedBy string    `gorm:"type:varchar(16);not null" json:"granted_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserSubscription) TableName() string {
	return "user_subscription"
}

// ActiveAt reports whether the subscription grants access at t.
func (s *UserSubscription) ActiveAt(t time.Time) bool {
	return s.Status == SubscriptionStatusActive && !s.EndDate.Before(t)
}
