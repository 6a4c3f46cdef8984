package payments

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	maxWebhookBody      = 1 << 20
	paymentWebhookScope = "payment"
	refundWebhookScope  = "refund"
)

// Settler applies verified payment outcomes to orders.
type Settler interface {
	Verify(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.VerifyResult, error)
	HandlePaymentEvent(ctx context.Context, event *payments.PaymentEvent) (*internalorders.Settlement, error)
	HandleRefundEvent(ctx context.Context, event *payments.RefundEvent) (bool, error)
}

type signatureVerifier interface {
	Verify(signature, timestamp string, rawBody []byte) error
}

type webhookGuard interface {
	Claim(ctx context.Context, scope string, body []byte) (bool, error)
	Release(ctx context.Context, scope string, body []byte) error
}

// Verify polls the gateway for a pending order and settles it when resolved.
func Verify(svc Settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, role, err := middleware.Caller(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), internalorders.Actor{UserID: userID, Role: role}, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, result.Message, map[string]any{
			"status":        result.Outcome,
			"orderId":       result.Order.ID,
			"paymentStatus": result.Order.PaymentStatus,
		})
	}
}

// Webhook applies signed payment notifications from the gateway.
func Webhook(svc Settler, signer signatureVerifier, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, ok := verifiedBody(w, r, svc, signer, guard, logg)
		if !ok {
			return
		}

		event, err := payments.ParsePaymentEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, event.OrderID.String())
			ctx = logg.WithField(ctx, "payment_status", string(event.PaymentStatus))
		}
		if !event.PaymentStatus.Settles() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unhandled payment status").
				WithDetails(map[string]any{"paymentStatus": event.PaymentStatus}))
			return
		}

		claimed, err := guard.Claim(ctx, paymentWebhookScope, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if !claimed {
			responses.WriteMessage(w, http.StatusOK, "Webhook already processed", nil)
			return
		}

		settlement, err := svc.HandlePaymentEvent(ctx, event)
		if err != nil {
			_ = guard.Release(ctx, paymentWebhookScope, payload)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "applied", settlement.Applied)
			logg.Info(ctx, "payment.webhook_processed")
		}
		responses.WriteMessage(w, http.StatusOK, "Webhook processed", nil)
	}
}

// RefundWebhook records refund outcomes reported by the gateway.
func RefundWebhook(svc Settler, signer signatureVerifier, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, ok := verifiedBody(w, r, svc, signer, guard, logg)
		if !ok {
			return
		}

		event, err := payments.ParseRefundEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, event.OrderID.String())
			ctx = logg.WithFields(ctx, map[string]any{
				"item_id":       event.ItemID.String(),
				"refund_status": event.RefundStatus,
			})
		}

		claimed, err := guard.Claim(ctx, refundWebhookScope, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if !claimed {
			responses.WriteMessage(w, http.StatusOK, "Webhook already processed", nil)
			return
		}

		changed, err := svc.HandleRefundEvent(ctx, event)
		if err != nil {
			_ = guard.Release(ctx, refundWebhookScope, payload)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "changed", changed)
			logg.Info(ctx, "refund.webhook_processed")
		}
		responses.WriteMessage(w, http.StatusOK, "Refund webhook processed", nil)
	}
}

// verifiedBody reads the raw body and rejects it unless the signature matches.
func verifiedBody(w http.ResponseWriter, r *http.Request, svc Settler, signer signatureVerifier, guard webhookGuard, logg *logger.Logger) ([]byte, bool) {
	ctx := r.Context()
	if svc == nil || signer == nil || guard == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handling unavailable"))
		return nil, false
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return nil, false
	}
	signature := r.Header.Get(payments.HeaderWebhookSignature)
	timestamp := r.Header.Get(payments.HeaderWebhookTimestamp)
	if err := signer.Verify(signature, timestamp, payload); err != nil {
		responses.WriteError(ctx, logg, w, err)
		return nil, false
	}
	return payload, true
}
