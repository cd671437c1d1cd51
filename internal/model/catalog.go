package model

import "github.com/shopspring/decimal"

const (
	RoleShopOwner = "shop_owner"
	RoleSupplier  = "supplier"
	RoleAdmin     = "admin"
)

// Profile is owned by the account layer; the wallet reads role and currency.
type Profile struct {
	UserID   int64  `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Role     string `gorm:"type:varchar(16);not null" json:"role"`
	Currency string `gorm:"type:varchar(8);not null;default:USD" json:"currency"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Product is owned by the catalog layer and read here for boost checks.
type Product struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	SupplierID int64           `gorm:"index;not null" json:"supplier_id"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
}

func (Product) TableName() string {
	return "products"
}
