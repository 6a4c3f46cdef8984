package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderPlacedEvent carries what the confirmation email needs.
type OrderPlacedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	UserID           uuid.UUID       `json:"user_id"`
	BuyerName        string          `json:"buyer_name"`
	BuyerEmail       string          `json:"buyer_email"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         enums.Currency  `json:"currency"`
	ItemCount        int             `json:"item_count"`
	PaymentSessionID string          `json:"payment_session_id"`
}

// OrderPaidEvent is emitted once per order when payment settles.
type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	UserID        uuid.UUID `json:"user_id"`
	PaymentMethod string    `json:"payment_method"`
	Source        string    `json:"source"`
	PaidAt        time.Time `json:"paid_at"`
}

// OrderPaymentFailedEvent is emitted once per order when payment fails.
type OrderPaymentFailedEvent struct {
	OrderID          uuid.UUID   `json:"order_id"`
	UserID           uuid.UUID   `json:"user_id"`
	Source           string      `json:"source"`
	CancelledItemIDs []uuid.UUID `json:"cancelled_item_ids"`
	FailedAt         time.Time   `json:"failed_at"`
}

// OrderItemCancelledEvent reports a single cancelled line.
type OrderItemCancelledEvent struct {
	OrderID      uuid.UUID               `json:"order_id"`
	ItemID       uuid.UUID               `json:"item_id"`
	UserID       uuid.UUID               `json:"user_id"`
	SellerID     uuid.UUID               `json:"seller_id"`
	BuyerName    string                  `json:"buyer_name"`
	BuyerEmail   string                  `json:"buyer_email"`
	ProductName  string                  `json:"product_name"`
	Quantity     int                     `json:"quantity"`
	CancelledBy  enums.CancellationActor `json:"cancelled_by"`
	RefundAmount *decimal.Decimal        `json:"refund_amount,omitempty"`
	Currency     enums.Currency          `json:"currency"`
	CancelledAt  time.Time               `json:"cancelled_at"`
}

// OrderItemStatusChangedEvent reports seller fulfillment progress.
type OrderItemStatusChangedEvent struct {
	OrderID        uuid.UUID             `json:"order_id"`
	ItemID         uuid.UUID             `json:"item_id"`
	SellerID       uuid.UUID             `json:"seller_id"`
	FromStatus     enums.OrderItemStatus `json:"from_status"`
	ToStatus       enums.OrderItemStatus `json:"to_status"`
	TrackingNumber *string               `json:"tracking_number,omitempty"`
}

// RefundRequestedEvent asks the refunds worker to call the gateway.
// RefundID equals the order item id.
type RefundRequestedEvent struct {
	OrderID  uuid.UUID       `json:"order_id"`
	RefundID uuid.UUID       `json:"refund_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency enums.Currency  `json:"currency"`
	Note     string          `json:"note"`
}

// RefundUpdatedEvent reports a gateway refund outcome for one item.
type RefundUpdatedEvent struct {
	OrderID        uuid.UUID          `json:"order_id"`
	ItemID         uuid.UUID          `json:"item_id"`
	BuyerName      string             `json:"buyer_name"`
	BuyerEmail     string             `json:"buyer_email"`
	ProductName    string             `json:"product_name"`
	RefundStatus   enums.RefundStatus `json:"refund_status"`
	RefundedAmount decimal.Decimal    `json:"refunded_amount"`
	Currency       enums.Currency     `json:"currency"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
}
