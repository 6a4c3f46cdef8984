package payments

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cashfree "github.com/cashfree/cashfree-pg/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const (
	HeaderWebhookSignature = "x-webhook-signature"
	HeaderWebhookTimestamp = "x-webhook-timestamp"
)

// Signer checks webhook signatures through the gateway SDK using the shared
// client secret.
type Signer struct {
	secret string
}

// NewSigner builds a signer for the given secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

// Verify rejects a payload whose signature does not match.
func (s *Signer) Verify(signature, timestamp string, rawBody []byte) error {
	if s.secret == "" {
		return pkgerrors.New(pkgerrors.CodeSignature, "webhook secret not configured")
	}
	if strings.TrimSpace(signature) == "" || strings.TrimSpace(timestamp) == "" {
		return pkgerrors.New(pkgerrors.CodeSignature, "missing webhook signature headers")
	}
	if err := s.verify(signature, timestamp, rawBody); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeSignature, err, "webhook signature mismatch")
	}
	return nil
}

func (s *Signer) verify(signature, timestamp string, rawBody []byte) (err error) {
	credentialsMu.Lock()
	defer credentialsMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable webhook payload: %v", r)
		}
	}()
	if cashfree.XClientSecret == nil || *cashfree.XClientSecret != s.secret {
		secret := s.secret
		cashfree.XClientSecret = &secret
	}
	_, err = cashfree.PGVerifyWebhookSignature(signature, string(rawBody), timestamp)
	return err
}

// PaymentEvent is the verified content of a payment webhook.
type PaymentEvent struct {
	Type          string
	OrderID       uuid.UUID
	PaymentStatus PaymentStatus
	PaymentGroup  string
}

type paymentWebhook struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			PaymentStatus string `json:"payment_status"`
			PaymentGroup  string `json:"payment_group"`
		} `json:"payment"`
	} `json:"data"`
}

// ParsePaymentEvent extracts the order id and payment outcome.
func ParsePaymentEvent(raw []byte) (*PaymentEvent, error) {
	var payload paymentWebhook
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	orderID, err := uuid.Parse(strings.TrimSpace(payload.Data.Order.OrderID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook order id is not a valid id")
	}
	status := PaymentStatus(strings.ToUpper(strings.TrimSpace(payload.Data.Payment.PaymentStatus)))
	if status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payment status missing")
	}
	return &PaymentEvent{
		Type:          payload.Type,
		OrderID:       orderID,
		PaymentStatus: status,
		PaymentGroup:  payload.Data.Payment.PaymentGroup,
	}, nil
}

// RefundEvent is the verified content of a refund webhook.
type RefundEvent struct {
	OrderID      uuid.UUID
	ItemID       uuid.UUID
	RefundStatus string
	Amount       decimal.Decimal
	ProcessedAt  *time.Time
}

type refundWebhook struct {
	Data struct {
		Refund struct {
			RefundID     string          `json:"refund_id"`
			OrderID      string          `json:"order_id"`
			RefundAmount decimal.Decimal `json:"refund_amount"`
			RefundStatus string          `json:"refund_status"`
			ProcessedAt  string          `json:"processed_at"`
		} `json:"refund"`
	} `json:"data"`
}

// ParseRefundEvent extracts the refunded order item. The refund id is the item id.
func ParseRefundEvent(raw []byte) (*RefundEvent, error) {
	var payload refundWebhook
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund webhook payload")
	}
	refund := payload.Data.Refund
	orderID, err := uuid.Parse(strings.TrimSpace(refund.OrderID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund webhook order id is not a valid id")
	}
	itemID, err := uuid.Parse(strings.TrimSpace(refund.RefundID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund webhook refund id is not a valid id")
	}
	if strings.TrimSpace(refund.RefundStatus) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund webhook status missing")
	}
	event := &RefundEvent{
		OrderID:      orderID,
		ItemID:       itemID,
		RefundStatus: refund.RefundStatus,
		Amount:       refund.RefundAmount,
	}
	if ts := strings.TrimSpace(refund.ProcessedAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			utc := parsed.UTC()
			event.ProcessedAt = &utc
		}
	}
	return event, nil
}
