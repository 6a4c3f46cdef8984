package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderItem is one seller-owned product line within an order.
type OrderItem struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID                `gorm:"column:order_id;type:uuid;not null"`
	ProductID         uuid.UUID                `gorm:"column:product_id;type:uuid;not null"`
	SellerID          uuid.UUID                `gorm:"column:seller_id;type:uuid;not null"`
	ProductName       string                   `gorm:"column:product_name;not null"`
	Quantity          int                      `gorm:"column:quantity;not null"`
	Price             decimal.Decimal          `gorm:"column:price;type:numeric(12,2);not null"`
	Status            enums.OrderItemStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	TrackingNumber    *string                  `gorm:"column:tracking_number"`
	DeliveredAt       *time.Time               `gorm:"column:delivered_at"`
	CancelledAt       *time.Time               `gorm:"column:cancelled_at"`
	CancelledBy       *enums.CancellationActor `gorm:"column:cancelled_by;type:text"`
	RefundStatus      *enums.RefundStatus      `gorm:"column:refund_status;type:text"`
	RefundAmount      *decimal.Decimal         `gorm:"column:refund_amount;type:numeric(12,2)"`
	RefundedAmount    *decimal.Decimal         `gorm:"column:refunded_amount;type:numeric(12,2)"`
	RefundProcessedAt *time.Time               `gorm:"column:refund_processed_at"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
