package notifications

import (
	"context"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/registry"
)

const orderNotificationConsumer = "order-notifications"

// Consumer turns order lifecycle events into buyer emails.
type Consumer struct {
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	mailer       Mailer
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(subscription *pubsub.Subscriber, manager *idempotency.Manager, mailer Mailer, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		idempotency:  manager,
		decoders:     Decoders(),
		mailer:       mailer,
		logg:         logg,
	}, nil
}

// Decoders registers the payloads this consumer understands.
func Decoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	registry.Handle[payloads.OrderPlacedEvent](reg, enums.EventOrderPlaced, 1)
	registry.Handle[payloads.OrderItemCancelledEvent](reg, enums.EventOrderItemCancelled, 1)
	registry.Handle[payloads.RefundUpdatedEvent](reg, enums.EventRefundUpdated, 1)
	return reg
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	switch eventType {
	case enums.EventOrderPlaced, enums.EventOrderItemCancelled, enums.EventRefundUpdated:
	default:
		c.logg.Info(logCtx, "skipping event without notification")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable event", err)
		return processResult{ack: true}
	}
	ctx = envelope.Link(ctx)
	logCtx = c.logg.WithEventID(envelope.Link(logCtx), eventID.String())

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	state, err := c.idempotency.Begin(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch state {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case idempotency.InFlight:
		c.logg.Info(logCtx, "event being processed elsewhere")
		return processResult{nack: true}
	}

	if err := c.dispatch(logCtx, payload); err != nil {
		c.logg.Error(logCtx, "notification delivery failed", err)
		if abandonErr := c.idempotency.Abandon(ctx, orderNotificationConsumer, eventID); abandonErr != nil {
			c.logg.Error(logCtx, "idempotency release failed", abandonErr)
		}
		return processResult{nack: true}
	}
	if err := c.idempotency.Complete(ctx, orderNotificationConsumer, eventID); err != nil {
		c.logg.Error(logCtx, "idempotency completion failed", err)
	}
	return processResult{ack: true}
}

func (c *Consumer) dispatch(ctx context.Context, payload any) error {
	var msg Message
	switch evt := payload.(type) {
	case payloads.OrderPlacedEvent:
		ctx = c.logg.WithOrderID(ctx, evt.OrderID.String())
		msg = orderPlacedMessage(evt)
	case payloads.OrderItemCancelledEvent:
		ctx = c.logg.WithOrderID(ctx, evt.OrderID.String())
		msg = itemCancelledMessage(evt)
	case payloads.RefundUpdatedEvent:
		ctx = c.logg.WithOrderID(ctx, evt.OrderID.String())
		var ok bool
		if msg, ok = refundUpdatedMessage(evt); !ok {
			c.logg.Info(ctx, "refund status not notified")
			return nil
		}
	default:
		return fmt.Errorf("unexpected payload %T", payload)
	}

	if strings.TrimSpace(msg.ToEmail) == "" {
		c.logg.Warn(ctx, "buyer email missing, notification dropped")
		return nil
	}
	if err := c.mailer.Send(ctx, msg); err != nil {
		return err
	}
	c.logg.Info(c.logg.WithField(ctx, "category", msg.Category), "notification.sent")
	return nil
}
