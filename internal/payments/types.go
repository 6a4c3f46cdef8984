package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the gateway's view of a payment order.
type OrderStatus string

const (
	OrderStatusActive     OrderStatus = "ACTIVE"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusExpired    OrderStatus = "EXPIRED"
	OrderStatusTerminated OrderStatus = "TERMINATED"
)

// PaymentStatus is reported by payment webhooks.
type PaymentStatus string

const (
	PaymentStatusSuccess     PaymentStatus = "SUCCESS"
	PaymentStatusFailed      PaymentStatus = "FAILED"
	PaymentStatusExpired     PaymentStatus = "EXPIRED"
	PaymentStatusUserDropped PaymentStatus = "USER_DROPPED"
)

// Settles reports whether the status resolves the order's payment.
func (s PaymentStatus) Settles() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusUserDropped:
		return true
	}
	return false
}

// Customer identifies the payer to the gateway.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// CreateOrderRequest opens a hosted payment for one order.
type CreateOrderRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	Customer  Customer
	ReturnURL string
	NotifyURL string
	ExpiresAt time.Time
}

// PaymentOrder is the handle the client uses to complete payment.
type PaymentOrder struct {
	OrderID          string
	GatewayOrderID   string
	PaymentSessionID string
	Status           OrderStatus
}

// PaymentDetails describes how an order was paid.
type PaymentDetails struct {
	Status       PaymentStatus
	PaymentGroup string
}

// RefundRequest issues a refund. RefundID doubles as the correlation key the
// refund webhook echoes back.
type RefundRequest struct {
	RefundID string
	Amount   decimal.Decimal
	Note     string
}

// Refund is the gateway's record of a refund.
type Refund struct {
	RefundID     string
	OrderID      string
	Amount       decimal.Decimal
	RefundStatus string
}
