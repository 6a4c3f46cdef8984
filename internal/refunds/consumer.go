// Package refunds issues gateway refunds for cancelled order items. Refund
// intents are committed with the cancellation and delivered here through the
// outbox, so a gateway outage delays a refund instead of losing it.
package refunds

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const refundIssuerConsumer = "refund-issuer"

// Gateway is the refund half of the payment provider.
type Gateway interface {
	CreateRefund(ctx context.Context, orderID string, req payments.RefundRequest) (*payments.Refund, error)
}

// Consumer calls the gateway for every refund_requested event.
type Consumer struct {
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	gateway      Gateway
	metrics      *metrics.OrderMetrics
	logg         *logger.Logger
}

// NewConsumer builds a refund issuing consumer.
func NewConsumer(subscription *pubsub.Subscriber, manager *idempotency.Manager, gateway Gateway, m *metrics.OrderMetrics, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("refunds subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		idempotency:  manager,
		gateway:      gateway,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})
	if eventType != enums.EventRefundRequested {
		c.logg.Info(logCtx, "skipping non-refund event")
		return true
	}

	envelope, eventID, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable event", err)
		return true
	}
	var payload payloads.RefundRequestedEvent
	if err := envelope.Decode(&payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return true
	}
	ctx = envelope.Link(ctx)
	logCtx = c.logg.WithOrderID(envelope.Link(logCtx), payload.OrderID.String())
	logCtx = c.logg.WithEventID(logCtx, eventID.String())
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"refund_id": payload.RefundID.String(),
		"amount":    payload.Amount.StringFixed(2),
	})

	state, err := c.idempotency.Begin(ctx, refundIssuerConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	switch state {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return true
	case idempotency.InFlight:
		c.logg.Info(logCtx, "refund being issued elsewhere")
		return false
	}

	if err := c.issue(ctx, payload); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			c.logg.Error(logCtx, "refund rejected", err)
			c.metrics.IncRefund("rejected")
			_ = c.idempotency.Complete(ctx, refundIssuerConsumer, eventID)
			return true
		}
		c.logg.Error(logCtx, "refund issuance failed", err)
		c.metrics.IncRefund("failed")
		if abandonErr := c.idempotency.Abandon(ctx, refundIssuerConsumer, eventID); abandonErr != nil {
			c.logg.Error(logCtx, "idempotency release failed", abandonErr)
		}
		return false
	}
	if err := c.idempotency.Complete(ctx, refundIssuerConsumer, eventID); err != nil {
		c.logg.Error(logCtx, "idempotency completion failed", err)
	}
	c.metrics.IncRefund("issued")
	c.logg.Info(logCtx, "refund.issued")
	return true
}

func (c *Consumer) issue(ctx context.Context, payload payloads.RefundRequestedEvent) error {
	if payload.OrderID == uuid.Nil || payload.RefundID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and refund id required")
	}
	_, err := c.gateway.CreateRefund(ctx, payload.OrderID.String(), payments.RefundRequest{
		RefundID: payload.RefundID.String(),
		Amount:   payload.Amount,
		Note:     payload.Note,
	})
	if err != nil && payments.IsDuplicate(err) {
		return nil
	}
	return err
}
