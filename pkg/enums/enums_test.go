package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderItemStatusCanAdvanceTo(t *testing.T) {
	cases := []struct {
		from OrderItemStatus
		to   OrderItemStatus
		want bool
	}{
		{OrderItemStatusPending, OrderItemStatusProcessing, true},
		{OrderItemStatusPending, OrderItemStatusDelivered, true},
		{OrderItemStatusShipped, OrderItemStatusShipped, true},
		{OrderItemStatusShipped, OrderItemStatusProcessing, false},
		{OrderItemStatusProcessing, OrderItemStatusCancelled, false},
		{OrderItemStatusDelivered, OrderItemStatusDelivered, false},
		{OrderItemStatusCancelled, OrderItemStatusProcessing, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, tc.from.CanAdvanceTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCancellationActorCanCancel(t *testing.T) {
	assert.True(t, CancelledByBuyer.CanCancel(OrderItemStatusPending))
	assert.True(t, CancelledByBuyer.CanCancel(OrderItemStatusProcessing))
	assert.False(t, CancelledByBuyer.CanCancel(OrderItemStatusShipped))
	assert.True(t, CancelledBySeller.CanCancel(OrderItemStatusShipped))

	for _, actor := range []CancellationActor{CancelledByBuyer, CancelledBySeller} {
		assert.False(t, actor.CanCancel(OrderItemStatusDelivered))
	}
	for _, actor := range []CancellationActor{CancelledByBuyer, CancelledBySeller, CancelledBySystem} {
		assert.False(t, actor.CanCancel(OrderItemStatusCancelled))
	}
	// a failed payment cancels everything still standing
	assert.True(t, CancelledBySystem.CanCancel(OrderItemStatusShipped))
	assert.True(t, CancelledBySystem.CanCancel(OrderItemStatusDelivered))
}

func TestCancellableFromReturnsCopy(t *testing.T) {
	states := CancelledByBuyer.CancellableFrom()
	states[0] = OrderItemStatusDelivered
	assert.True(t, CancelledByBuyer.CanCancel(OrderItemStatusPending))
}

func TestParseRefundStatusIsCaseInsensitive(t *testing.T) {
	status, err := ParseRefundStatus("SUCCESS")
	require.NoError(t, err)
	assert.Equal(t, RefundStatusSuccess, status)

	_, err = ParseRefundStatus("bogus")
	assert.Error(t, err)
}

func TestParseBuyTypeDefaultsToBuyNow(t *testing.T) {
	bt, err := ParseBuyType("")
	require.NoError(t, err)
	assert.Equal(t, BuyTypeBuyNow, bt)

	bt, err = ParseBuyType("cart-checkout")
	require.NoError(t, err)
	assert.Equal(t, BuyTypeCartCheckout, bt)

	_, err = ParseBuyType("wishlist")
	assert.Error(t, err)
}

func TestParseCurrencyNormalizes(t *testing.T) {
	c, err := ParseCurrency(" inr ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyINR, c)
}

func TestPaymentStatusSettlement(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanSettleTo(PaymentStatusPaid))
	assert.True(t, PaymentStatusPending.CanSettleTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusPending.CanSettleTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusPaid.CanSettleTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusFailed.CanSettleTo(PaymentStatusPaid))

	assert.False(t, PaymentStatusPending.Settled())
	assert.True(t, PaymentStatusFailed.Settled())
	assert.False(t, PaymentStatus("bogus").Settled())

	assert.True(t, PaymentStatusPaid.Charged())
	assert.False(t, PaymentStatusRefunded.Charged())

	_, err := ParsePaymentStatus("PAID")
	require.Error(t, err)
	got, err := ParsePaymentStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, got)
}

func TestDLQReasonFor(t *testing.T) {
	reason, terminal := DLQReasonFor(false, 1, 10)
	assert.True(t, terminal)
	assert.Equal(t, OutboxDLQReasonNonRetryable, reason)

	reason, terminal = DLQReasonFor(true, 10, 10)
	assert.True(t, terminal)
	assert.Equal(t, OutboxDLQReasonMaxAttempts, reason)

	_, terminal = DLQReasonFor(true, 3, 10)
	assert.False(t, terminal)

	_, terminal = DLQReasonFor(true, 99, 0)
	assert.False(t, terminal)
	assert.True(t, reason.IsValid())
	assert.False(t, OutboxDLQErrorReason("other").IsValid())
}
