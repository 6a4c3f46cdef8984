package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalogue listing. Only price, discount, stock and sold are
// read or written by the order lifecycle.
type Product struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID  uuid.UUID        `gorm:"column:seller_id;type:uuid;not null"`
	Name      string           `gorm:"column:name;not null"`
	Price     decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	Discount  *decimal.Decimal `gorm:"column:discount;type:numeric(5,2)"`
	Stock     int              `gorm:"column:stock;not null;default:0"`
	Sold      int              `gorm:"column:sold;not null;default:0"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// UnitPrice applies the optional percentage discount to the list price.
func (p Product) UnitPrice() decimal.Decimal {
	if p.Discount == nil || p.Discount.IsZero() {
		return p.Price
	}
	off := p.Price.Mul(*p.Discount).Div(decimal.NewFromInt(100))
	return p.Price.Sub(off)
}
