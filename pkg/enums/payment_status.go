package enums

import "fmt"

// PaymentStatus tracks settlement of an order's payment. An order is created
// pending and settles exactly once, to paid or failed.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Settled is true once the gateway outcome has been applied.
func (p PaymentStatus) Settled() bool {
	return p.IsValid() && p != PaymentStatusPending
}

// CanSettleTo reports whether settlement may move p to next.
func (p PaymentStatus) CanSettleTo(next PaymentStatus) bool {
	return p == PaymentStatusPending && (next == PaymentStatusPaid || next == PaymentStatusFailed)
}

// Charged is true when money was captured and refunds apply.
func (p PaymentStatus) Charged() bool {
	return p == PaymentStatusPaid
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	if p := PaymentStatus(value); p.IsValid() {
		return p, nil
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
