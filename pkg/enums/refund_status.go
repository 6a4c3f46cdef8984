package enums

import (
	"fmt"
	"strings"
)

// RefundStatus tracks a refund issued for a single order item.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSuccess   RefundStatus = "success"
	RefundStatusCancelled RefundStatus = "cancelled"
	RefundStatusOnHold    RefundStatus = "onhold"
	RefundStatusFailed    RefundStatus = "failed"
)

var validRefundStatuses = []RefundStatus{
	RefundStatusPending,
	RefundStatusSuccess,
	RefundStatusCancelled,
	RefundStatusOnHold,
	RefundStatusFailed,
}

// String implements fmt.Stringer.
func (r RefundStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundStatus.
func (r RefundStatus) IsValid() bool {
	for _, candidate := range validRefundStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundStatus converts raw input into a RefundStatus. Gateway payloads
// report upper-case values, so matching is case-insensitive.
func ParseRefundStatus(value string) (RefundStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRefundStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund status %q", value)
}
