package enums

import "fmt"

// OrderItemStatus tracks fulfillment of a single order line.
type OrderItemStatus string

const (
	OrderItemStatusPending    OrderItemStatus = "pending"
	OrderItemStatusProcessing OrderItemStatus = "processing"
	OrderItemStatusShipped    OrderItemStatus = "shipped"
	OrderItemStatusDelivered  OrderItemStatus = "delivered"
	OrderItemStatusCancelled  OrderItemStatus = "cancelled"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusPending,
	OrderItemStatusProcessing,
	OrderItemStatusShipped,
	OrderItemStatusDelivered,
	OrderItemStatusCancelled,
}

// fulfillment rank; cancelled sits outside the forward chain.
var orderItemRank = map[OrderItemStatus]int{
	OrderItemStatusPending:    0,
	OrderItemStatusProcessing: 1,
	OrderItemStatusShipped:    2,
	OrderItemStatusDelivered:  3,
}

// String implements fmt.Stringer.
func (s OrderItemStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderItemStatus.
func (s OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further mutation is permitted.
func (s OrderItemStatus) IsTerminal() bool {
	return s == OrderItemStatusDelivered || s == OrderItemStatusCancelled
}

// IsFulfillment reports whether a seller may set the status directly.
func (s OrderItemStatus) IsFulfillment() bool {
	_, ok := orderItemRank[s]
	return ok
}

// CanAdvanceTo reports whether a seller status update from s to next keeps
// the item moving forward. Repeating the current status is allowed.
func (s OrderItemStatus) CanAdvanceTo(next OrderItemStatus) bool {
	if s.IsTerminal() {
		return false
	}
	from, ok := orderItemRank[s]
	if !ok {
		return false
	}
	to, ok := orderItemRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// ParseOrderItemStatus converts raw input into an OrderItemStatus.
func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	for _, candidate := range validOrderItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item status %q", value)
}

// CancellationActor identifies who cancelled an order item.
type CancellationActor string

const (
	CancelledByBuyer  CancellationActor = "buyer"
	CancelledBySeller CancellationActor = "seller"
	CancelledBySystem CancellationActor = "system"
)

var cancellableFrom = map[CancellationActor][]OrderItemStatus{
	CancelledByBuyer:  {OrderItemStatusPending, OrderItemStatusProcessing},
	CancelledBySeller: {OrderItemStatusPending, OrderItemStatusProcessing, OrderItemStatusShipped},
	CancelledBySystem: {OrderItemStatusPending, OrderItemStatusProcessing, OrderItemStatusShipped, OrderItemStatusDelivered},
}

// CancellableFrom lists the source states the actor may cancel from.
func (a CancellationActor) CancellableFrom() []OrderItemStatus {
	states := cancellableFrom[a]
	out := make([]OrderItemStatus, len(states))
	copy(out, states)
	return out
}

// CanCancel reports whether the actor may cancel an item in status s.
func (a CancellationActor) CanCancel(s OrderItemStatus) bool {
	for _, candidate := range cancellableFrom[a] {
		if candidate == s {
			return true
		}
	}
	return false
}
