package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// StatusUpdateInput is a seller fulfillment update for one item.
type StatusUpdateInput struct {
	ItemID         uuid.UUID
	Status         enums.OrderItemStatus
	TrackingNumber *string
}

func itemNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
}

// UpdateItemStatus advances a seller-owned item. Terminal items and
// backwards moves are rejected.
func (s *Service) UpdateItemStatus(ctx context.Context, actor Actor, orderID uuid.UUID, in StatusUpdateInput) (_ *models.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.update_item_status", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("item.id", in.ItemID.String()),
		attribute.String("item.status", string(in.Status)),
	))
	defer endSpan(span, &err)

	if in.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if !in.Status.IsFulfillment() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", in.Status))
	}
	if in.TrackingNumber != nil {
		trimmed := strings.TrimSpace(*in.TrackingNumber)
		if trimmed == "" {
			in.TrackingNumber = nil
		} else {
			in.TrackingNumber = &trimmed
		}
	}

	now := s.now()
	var from enums.OrderItemStatus
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		item, ok := order.Item(in.ItemID)
		if !ok || item.SellerID != actor.UserID {
			return itemNotFound()
		}
		from = item.Status
		if item.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("item is already %s", item.Status))
		}
		if !item.Status.CanAdvanceTo(in.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move item from %s to %s", item.Status, in.Status))
		}

		updated, err := repo.UpdateItemStatus(ctx, ItemStatusChange{
			OrderID:        orderID,
			ItemID:         item.ID,
			SellerID:       actor.UserID,
			From:           item.Status,
			To:             in.Status,
			TrackingNumber: in.TrackingNumber,
			At:             now,
		})
		if err != nil {
			return err
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item changed concurrently")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderItemStatusChanged,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   item.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderItemStatusChangedEvent{
				OrderID:        orderID,
				ItemID:         item.ID,
				SellerID:       actor.UserID,
				FromStatus:     item.Status,
				ToStatus:       in.Status,
				TrackingNumber: in.TrackingNumber,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, "order_item.status_changed", map[string]any{
		"order_id": orderID.String(),
		"item_id":  in.ItemID.String(),
		"from":     from,
		"to":       in.Status,
	})
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = order.ItemsForSeller(actor.UserID)
	return order, nil
}

// CancelResult reports a cancellation and the refund it queued, if any.
type CancelResult struct {
	Order        *models.Order
	CancelledBy  enums.CancellationActor
	RefundAmount *decimal.Decimal
}

// CancelItem cancels one item on behalf of the buyer who owns the order or
// the seller who owns the item. Stock is restored in the same transaction,
// and a refund is queued when the order was already paid.
func (s *Service) CancelItem(ctx context.Context, actor Actor, orderID, itemID uuid.UUID) (_ *CancelResult, err error) {
	ctx, span := tracer.Start(ctx, "orders.cancel_item", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
		attribute.String("item.id", itemID.String()),
	))
	defer endSpan(span, &err)

	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}

	now := s.now()
	result := &CancelResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		item, ok := order.Item(itemID)
		if !ok {
			return itemNotFound()
		}
		who, ok := cancellationActor(actor, order, item)
		if !ok {
			return itemNotFound()
		}
		result.CancelledBy = who
		if !who.CanCancel(item.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("item cannot be cancelled while %s", item.Status)).
				WithDetails(map[string]any{"status": item.Status, "cancelledBy": who})
		}

		cancelled, err := repo.CancelItem(ctx, orderID, itemID, who.CancellableFrom(), who, now)
		if err != nil {
			return err
		}
		if !cancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "item changed concurrently")
		}
		if err := s.ledger.WithTx(tx).Restock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}

		if order.PaymentStatus.Charged() {
			item.Status = enums.OrderItemStatusCancelled
			requested, err := s.requestRefund(ctx, tx, order, *item, fmt.Sprintf("item cancelled by %s", who), now)
			if err != nil {
				return err
			}
			if requested {
				amount := item.LineTotal()
				result.RefundAmount = &amount
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderItemCancelled,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   item.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderItemCancelledEvent{
				OrderID:      order.ID,
				ItemID:       item.ID,
				UserID:       order.UserID,
				SellerID:     item.SellerID,
				BuyerName:    order.UserSnapshot.Name,
				BuyerEmail:   order.UserSnapshot.Email,
				ProductName:  item.ProductName,
				Quantity:     item.Quantity,
				CancelledBy:  who,
				RefundAmount: result.RefundAmount,
				Currency:     order.Currency,
				CancelledAt:  now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCancellation(string(result.CancelledBy))
	if result.RefundAmount != nil {
		s.metrics.IncRefund("requested")
	}
	s.logInfo(ctx, "order_item.cancelled", map[string]any{
		"order_id":     orderID.String(),
		"item_id":      itemID.String(),
		"cancelled_by": result.CancelledBy,
		"refund":       result.RefundAmount != nil,
	})

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if result.CancelledBy == enums.CancelledBySeller {
		order.Items = order.ItemsForSeller(actor.UserID)
	}
	result.Order = order
	return result, nil
}

// cancellationActor decides whether the caller cancels as the item's seller
// or the order's buyer. Sellers get the wider set of source states.
func cancellationActor(actor Actor, order *models.Order, item *models.OrderItem) (enums.CancellationActor, bool) {
	if actor.UserID == uuid.Nil {
		return "", false
	}
	if item.SellerID == actor.UserID && actor.Role == enums.UserRoleSeller {
		return enums.CancelledBySeller, true
	}
	if order.UserID == actor.UserID {
		return enums.CancelledByBuyer, true
	}
	return "", false
}
