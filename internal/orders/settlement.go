package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const unknownPaymentMethod = "unknown"

// SettlementSource names the path that resolved a payment.
type SettlementSource string

const (
	SourceVerify     SettlementSource = "verify"
	SourceWebhook    SettlementSource = "webhook"
	SourceReconcile  SettlementSource = "reconcile"
	SourceInitiation SettlementSource = "initiation"
)

// Settlement reports the effect of a settlement attempt. Applied is false
// when the order had already left pending.
type Settlement struct {
	OrderID uuid.UUID
	Outcome enums.PaymentStatus
	Applied bool
}

func (s *Service) settlePaid(ctx context.Context, orderID uuid.UUID, method string, source SettlementSource) (*Settlement, error) {
	if method == "" {
		method = unknownPaymentMethod
	}
	now := s.now()
	result := &Settlement{OrderID: orderID, Outcome: enums.PaymentStatusPaid}
	refunds := 0

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		applied, err := repo.MarkPaid(ctx, orderID, method, now)
		if err != nil {
			return err
		}
		if !applied {
			_, err := repo.FindByID(ctx, orderID)
			return err
		}
		result.Applied = true

		if _, err := repo.StartProcessing(ctx, orderID, now); err != nil {
			return err
		}
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if item.Status != enums.OrderItemStatusCancelled || item.RefundStatus != nil {
				continue
			}
			requested, err := s.requestRefund(ctx, tx, order, item, "item cancelled before payment was captured", now)
			if err != nil {
				return err
			}
			if requested {
				refunds++
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderPaidEvent{
				OrderID:       orderID,
				UserID:        order.UserID,
				PaymentMethod: method,
				Source:        string(source),
				PaidAt:        now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		s.metrics.IncSettlement(string(enums.PaymentStatusPaid), string(source))
		for i := 0; i < refunds; i++ {
			s.metrics.IncRefund("requested")
		}
		s.logInfo(ctx, "order.settled", map[string]any{
			"order_id": orderID.String(),
			"outcome":  enums.PaymentStatusPaid,
			"source":   source,
			"refunds":  refunds,
		})
	}
	return result, nil
}

func (s *Service) settleFailed(ctx context.Context, orderID uuid.UUID, source SettlementSource) (*Settlement, error) {
	now := s.now()
	result := &Settlement{OrderID: orderID, Outcome: enums.PaymentStatusFailed}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		applied, err := repo.MarkFailed(ctx, orderID, now)
		if err != nil {
			return err
		}
		if !applied {
			_, err := repo.FindByID(ctx, orderID)
			return err
		}
		result.Applied = true

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		ledger := s.ledger.WithTx(tx)
		cancelled := make([]uuid.UUID, 0, len(order.Items))
		for _, item := range order.Items {
			if item.Status == enums.OrderItemStatusCancelled {
				continue
			}
			ok, err := repo.CancelItem(ctx, orderID, item.ID, enums.CancelledBySystem.CancellableFrom(), enums.CancelledBySystem, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := ledger.Restock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
			cancelled = append(cancelled, item.ID)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderPaymentFailedEvent{
				OrderID:          orderID,
				UserID:           order.UserID,
				Source:           string(source),
				CancelledItemIDs: cancelled,
				FailedAt:         now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		s.metrics.IncSettlement(string(enums.PaymentStatusFailed), string(source))
		s.logInfo(ctx, "order.settled", map[string]any{
			"order_id": orderID.String(),
			"outcome":  enums.PaymentStatusFailed,
			"source":   source,
		})
	}
	return result, nil
}

// requestRefund records the refund intent and queues it for the refunds
// worker. The refund id is the item id.
func (s *Service) requestRefund(ctx context.Context, tx *gorm.DB, order *models.Order, item models.OrderItem, note string, now time.Time) (bool, error) {
	amount := item.LineTotal()
	ok, err := s.orders.WithTx(tx).RequestRefund(ctx, order.ID, item.ID, amount, now)
	if err != nil || !ok {
		return false, err
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventRefundRequested,
		AggregateType: enums.AggregateOrderItem,
		AggregateID:   item.ID,
		Data: payloads.RefundRequestedEvent{
			OrderID:  order.ID,
			RefundID: item.ID,
			Amount:   amount,
			Currency: order.Currency,
			Note:     note,
		},
	})
	return err == nil, err
}

// VerifyOutcome summarises a verification poll.
type VerifyOutcome string

const (
	VerifyAlreadySettled VerifyOutcome = "already_settled"
	VerifyPaid           VerifyOutcome = "paid"
	VerifyFailed         VerifyOutcome = "failed"
	VerifyProcessing     VerifyOutcome = "processing"
)

// VerifyResult is returned to the polling client.
type VerifyResult struct {
	Outcome VerifyOutcome
	Message string
	Order   *models.Order
}

// Verify asks the gateway for the payment state of a pending order and
// settles it when the gateway reports a terminal state.
func (s *Service) Verify(ctx context.Context, actor Actor, orderID uuid.UUID) (_ *VerifyResult, err error) {
	ctx, span := tracer.Start(ctx, "orders.verify", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer endSpan(span, &err)

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != actor.UserID && actor.Role != enums.UserRoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.PaymentStatus.Settled() {
		return &VerifyResult{Outcome: VerifyAlreadySettled, Message: "Payment already processed", Order: order}, nil
	}

	status, err := s.gateway.FetchOrderStatus(ctx, orderID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "verification failed")
	}
	span.SetAttributes(attribute.String("gateway.status", string(status)))

	var result *VerifyResult
	switch status {
	case payments.OrderStatusPaid:
		if _, err := s.settlePaid(ctx, orderID, s.paymentMethod(ctx, orderID), SourceVerify); err != nil {
			return nil, err
		}
		result = &VerifyResult{Outcome: VerifyPaid, Message: "Payment successful"}
	case payments.OrderStatusExpired, payments.OrderStatusTerminated:
		if _, err := s.settleFailed(ctx, orderID, SourceVerify); err != nil {
			return nil, err
		}
		result = &VerifyResult{Outcome: VerifyFailed, Message: "Payment failed or expired"}
	case payments.OrderStatusActive:
		return &VerifyResult{Outcome: VerifyProcessing, Message: "Payment is still processing", Order: order}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment verification failed").
			WithDetails(map[string]any{"gatewayStatus": status})
	}

	result.Order, err = s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) paymentMethod(ctx context.Context, orderID uuid.UUID) string {
	details, err := s.gateway.FetchPaymentDetails(ctx, orderID.String())
	if err != nil {
		s.logError(ctx, "order.payment_details_unavailable", err)
		return unknownPaymentMethod
	}
	if details.PaymentGroup == "" {
		return unknownPaymentMethod
	}
	return details.PaymentGroup
}

// HandlePaymentEvent applies a verified payment webhook.
func (s *Service) HandlePaymentEvent(ctx context.Context, event *payments.PaymentEvent) (_ *Settlement, err error) {
	ctx, span := tracer.Start(ctx, "orders.payment_webhook", trace.WithAttributes(
		attribute.String("order.id", event.OrderID.String()),
		attribute.String("payment.status", string(event.PaymentStatus)),
	))
	defer endSpan(span, &err)

	switch event.PaymentStatus {
	case payments.PaymentStatusSuccess:
		return s.settlePaid(ctx, event.OrderID, event.PaymentGroup, SourceWebhook)
	case payments.PaymentStatusFailed, payments.PaymentStatusExpired, payments.PaymentStatusUserDropped:
		return s.settleFailed(ctx, event.OrderID, SourceWebhook)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unhandled payment status").
			WithDetails(map[string]any{"paymentStatus": event.PaymentStatus})
	}
}

// HandleRefundEvent records a gateway refund outcome on the item the refund
// was issued for. Only cancelled items carry refunds. Replaying the same
// outcome changes nothing.
func (s *Service) HandleRefundEvent(ctx context.Context, event *payments.RefundEvent) (changed bool, err error) {
	ctx, span := tracer.Start(ctx, "orders.refund_webhook", trace.WithAttributes(
		attribute.String("order.id", event.OrderID.String()),
		attribute.String("item.id", event.ItemID.String()),
	))
	defer endSpan(span, &err)

	status, err := enums.ParseRefundStatus(event.RefundStatus)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown refund status")
	}
	now := s.now()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, event.OrderID)
		if err != nil {
			return err
		}
		item, ok := order.Item(event.ItemID)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		if item.Status != enums.OrderItemStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refunds apply to cancelled items only").
				WithDetails(map[string]any{"itemStatus": item.Status})
		}
		if sameRefund(item, status, event) {
			return nil
		}
		if err := repo.RecordRefund(ctx, RefundOutcome{
			OrderID:     order.ID,
			ItemID:      item.ID,
			Status:      status,
			Amount:      event.Amount,
			ProcessedAt: event.ProcessedAt,
			At:          now,
		}); err != nil {
			return err
		}
		changed = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundUpdated,
			AggregateType: enums.AggregateOrderItem,
			AggregateID:   item.ID,
			Data: payloads.RefundUpdatedEvent{
				OrderID:        order.ID,
				ItemID:         item.ID,
				BuyerName:      order.UserSnapshot.Name,
				BuyerEmail:     order.UserSnapshot.Email,
				ProductName:    item.ProductName,
				RefundStatus:   status,
				RefundedAmount: event.Amount,
				Currency:       order.Currency,
				ProcessedAt:    event.ProcessedAt,
			},
		})
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.metrics.IncRefund(string(status))
	}
	return changed, nil
}

func sameRefund(item *models.OrderItem, status enums.RefundStatus, event *payments.RefundEvent) bool {
	if item.RefundStatus == nil || *item.RefundStatus != status {
		return false
	}
	if item.RefundedAmount == nil || !item.RefundedAmount.Equal(event.Amount) {
		return false
	}
	switch {
	case item.RefundProcessedAt == nil && event.ProcessedAt == nil:
		return true
	case item.RefundProcessedAt == nil || event.ProcessedAt == nil:
		return false
	default:
		return item.RefundProcessedAt.Equal(*event.ProcessedAt)
	}
}

// ReconcileReport summarises a pending payment sweep.
type ReconcileReport struct {
	Checked int
	Paid    int
	Failed  int
	Skipped int
}

// ReconcilePending settles orders left pending since before cutoff. The
// gateway is asked first so a late payment is settled as paid.
func (s *Service) ReconcilePending(ctx context.Context, cutoff time.Time, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	pending, err := s.orders.FindPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return report, err
	}
	var errs error
	for _, order := range pending {
		report.Checked++
		if !order.PaymentStatus.CanSettleTo(enums.PaymentStatusFailed) {
			report.Skipped++
			continue
		}
		outcome, err := s.reconcileOne(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			report.Skipped++
			continue
		}
		switch outcome {
		case enums.PaymentStatusPaid:
			report.Paid++
		case enums.PaymentStatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	return report, errs
}

func (s *Service) reconcileOne(ctx context.Context, order models.Order) (enums.PaymentStatus, error) {
	if order.PaymentSessionID == nil || *order.PaymentSessionID == "" {
		if _, err := s.settleFailed(ctx, order.ID, SourceReconcile); err != nil {
			return "", err
		}
		return enums.PaymentStatusFailed, nil
	}
	status, err := s.gateway.FetchOrderStatus(ctx, order.ID.String())
	if err != nil {
		return "", err
	}
	switch status {
	case payments.OrderStatusPaid:
		if _, err := s.settlePaid(ctx, order.ID, s.paymentMethod(ctx, order.ID), SourceReconcile); err != nil {
			return "", err
		}
		return enums.PaymentStatusPaid, nil
	case payments.OrderStatusActive:
		return enums.PaymentStatusPending, nil
	default:
		if _, err := s.settleFailed(ctx, order.ID, SourceReconcile); err != nil {
			return "", err
		}
		return enums.PaymentStatusFailed, nil
	}
}
