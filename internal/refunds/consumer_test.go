package refunds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

type stubGateway struct {
	calls []payments.RefundRequest
	order []string
	err   error
}

func (g *stubGateway) CreateRefund(_ context.Context, orderID string, req payments.RefundRequest) (*payments.Refund, error) {
	g.calls = append(g.calls, req)
	g.order = append(g.order, orderID)
	if g.err != nil {
		return nil, g.err
	}
	return &payments.Refund{RefundID: req.RefundID, OrderID: orderID, Amount: req.Amount, RefundStatus: "PENDING"}, nil
}

func newTestConsumer(t *testing.T, gw Gateway) *Consumer {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	manager, err := idempotency.NewManager(redis.Wrap(raw), time.Hour)
	require.NoError(t, err)
	return &Consumer{
		idempotency: manager,
		gateway:     gw,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
	}
}

func refundMessage(t *testing.T, evt payloads.RefundRequestedEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: data})
	require.NoError(t, err)
	return &pubsub.Message{ID: uuid.NewString(), Data: body, Attributes: map[string]string{"event_type": string(enums.EventRefundRequested)}}
}

func TestProcessIssuesRefundKeyedByItem(t *testing.T) {
	gw := &stubGateway{}
	c := newTestConsumer(t, gw)
	evt := payloads.RefundRequestedEvent{
		OrderID:  uuid.New(),
		RefundID: uuid.New(),
		Amount:   decimal.RequireFromString("72"),
		Currency: enums.CurrencyINR,
		Note:     "item cancelled by seller",
	}
	msg := refundMessage(t, evt)

	assert.True(t, c.process(context.Background(), msg))
	assert.True(t, c.process(context.Background(), msg), "redelivery is acked")

	require.Len(t, gw.calls, 1)
	assert.Equal(t, evt.OrderID.String(), gw.order[0])
	assert.Equal(t, evt.RefundID.String(), gw.calls[0].RefundID)
	assert.True(t, evt.Amount.Equal(gw.calls[0].Amount))
}

func TestProcessNacksGatewayFailureAndRetries(t *testing.T) {
	gw := &stubGateway{err: errors.New("gateway down")}
	c := newTestConsumer(t, gw)
	msg := refundMessage(t, payloads.RefundRequestedEvent{OrderID: uuid.New(), RefundID: uuid.New(), Amount: decimal.NewFromInt(10)})

	assert.False(t, c.process(context.Background(), msg))

	gw.err = nil
	assert.True(t, c.process(context.Background(), msg))
	assert.Len(t, gw.calls, 2)
}

func TestProcessAcksInvalidRefund(t *testing.T) {
	gw := &stubGateway{}
	c := newTestConsumer(t, gw)

	assert.True(t, c.process(context.Background(), refundMessage(t, payloads.RefundRequestedEvent{OrderID: uuid.New()})))
	assert.Empty(t, gw.calls)

	other := &pubsub.Message{Attributes: map[string]string{"event_type": string(enums.EventOrderPaid)}}
	assert.True(t, c.process(context.Background(), other))
}

func TestProcessTreatsDuplicateRefundAsIssued(t *testing.T) {
	duplicate := &payments.UpstreamError{Status: http.StatusConflict, Err: errors.New("refund with refund_id already exists")}
	gw := &stubGateway{err: pkgerrors.Wrap(pkgerrors.CodeUpstream, duplicate, "payment gateway request failed")}

	c := newTestConsumer(t, gw)
	msg := refundMessage(t, payloads.RefundRequestedEvent{OrderID: uuid.New(), RefundID: uuid.New(), Amount: decimal.NewFromInt(10)})
	assert.True(t, c.process(context.Background(), msg))
	assert.Len(t, gw.calls, 1)
}
