package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/payments/paymentstest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

const (
	timestamp     = "1700000000"
	webhookSecret = "secret"
)

type stubSettler struct {
	paymentEvents []*payments.PaymentEvent
	refundEvents  []*payments.RefundEvent
	err           error
	verifyActor   internalorders.Actor
}

func (s *stubSettler) Verify(_ context.Context, actor internalorders.Actor, orderID uuid.UUID) (*internalorders.VerifyResult, error) {
	s.verifyActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.VerifyResult{
		Outcome: internalorders.VerifyPaid,
		Message: "Payment successful",
		Order:   &models.Order{ID: orderID, PaymentStatus: enums.PaymentStatusPaid},
	}, nil
}

func (s *stubSettler) HandlePaymentEvent(_ context.Context, event *payments.PaymentEvent) (*internalorders.Settlement, error) {
	s.paymentEvents = append(s.paymentEvents, event)
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.Settlement{OrderID: event.OrderID, Applied: true}, nil
}

func (s *stubSettler) HandleRefundEvent(_ context.Context, event *payments.RefundEvent) (bool, error) {
	s.refundEvents = append(s.refundEvents, event)
	return s.err == nil, s.err
}

func newGuard(t *testing.T) *payments.IdempotencyGuard {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	guard, err := payments.NewIdempotencyGuard(redis.Wrap(raw), time.Hour)
	require.NoError(t, err)
	return guard
}

func signedRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(payments.HeaderWebhookTimestamp, timestamp)
	req.Header.Set(payments.HeaderWebhookSignature, paymentstest.Sign(webhookSecret, timestamp, []byte(body)))
	return req
}

func paymentBody(orderID uuid.UUID, status string) string {
	return `{"type":"PAYMENT_WEBHOOK","data":{"order":{"order_id":"` + orderID.String() + `"},"payment":{"payment_status":"` + status + `","payment_group":"upi"}}}`
}

func refundBody(orderID, itemID uuid.UUID, status string) string {
	return `{"type":"REFUND_STATUS_WEBHOOK","data":{"refund":{"refund_id":"` + itemID.String() + `","order_id":"` + orderID.String() + `","refund_amount":72,"refund_status":"` + status + `","processed_at":"2026-03-01T10:00:00Z"}}}`
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	svc := &stubSettler{}
	signer := payments.NewSigner(webhookSecret)
	body := paymentBody(uuid.New(), "SUCCESS")
	req := signedRequest("/payments/webhook", body)
	req.Body = io.NopCloser(strings.NewReader(strings.Replace(body, "SUCCESS", "FAILED", 1)))
	resp := httptest.NewRecorder()

	Webhook(svc, signer, newGuard(t), nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.paymentEvents)
}

func TestWebhookSettlesOnce(t *testing.T) {
	svc := &stubSettler{}
	signer := payments.NewSigner(webhookSecret)
	guard := newGuard(t)
	orderID := uuid.New()
	body := paymentBody(orderID, "success")

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		Webhook(svc, signer, guard, nil).ServeHTTP(resp, signedRequest("/payments/webhook", body))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
	require.Len(t, svc.paymentEvents, 1)
	assert.Equal(t, orderID, svc.paymentEvents[0].OrderID)
	assert.Equal(t, payments.PaymentStatusSuccess, svc.paymentEvents[0].PaymentStatus)
	assert.Equal(t, "upi", svc.paymentEvents[0].PaymentGroup)
}

func TestWebhookRetriesAfterFailure(t *testing.T) {
	svc := &stubSettler{err: errors.New("database unavailable")}
	signer := payments.NewSigner(webhookSecret)
	guard := newGuard(t)
	body := paymentBody(uuid.New(), "FAILED")

	resp := httptest.NewRecorder()
	Webhook(svc, signer, guard, nil).ServeHTTP(resp, signedRequest("/payments/webhook", body))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	svc.err = nil
	resp = httptest.NewRecorder()
	Webhook(svc, signer, guard, nil).ServeHTTP(resp, signedRequest("/payments/webhook", body))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, svc.paymentEvents, 2)
}

func TestWebhookRejectsUnhandledStatus(t *testing.T) {
	for _, status := range []string{"PENDING", "BOGUS_STATUS"} {
		t.Run(status, func(t *testing.T) {
			svc := &stubSettler{}
			signer := payments.NewSigner(webhookSecret)
			guard := newGuard(t)
			body := paymentBody(uuid.New(), status)
			resp := httptest.NewRecorder()

			Webhook(svc, signer, guard, nil).ServeHTTP(resp, signedRequest("/payments/webhook", body))

			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Contains(t, resp.Body.String(), "unhandled payment status")
			assert.Empty(t, svc.paymentEvents)

			claimed, err := guard.Claim(context.Background(), paymentWebhookScope, []byte(body))
			require.NoError(t, err)
			assert.True(t, claimed, "rejected payloads must not hold the idempotency key")
		})
	}
}

func TestWebhookRejectsMalformedOrderID(t *testing.T) {
	svc := &stubSettler{}
	signer := payments.NewSigner(webhookSecret)
	body := `{"type":"PAYMENT_WEBHOOK","data":{"order":{"order_id":"order-1"},"payment":{"payment_status":"SUCCESS"}}}`
	resp := httptest.NewRecorder()

	Webhook(svc, signer, newGuard(t), nil).ServeHTTP(resp, signedRequest("/payments/webhook", body))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRefundWebhookKeyedByItem(t *testing.T) {
	svc := &stubSettler{}
	signer := payments.NewSigner(webhookSecret)
	orderID, itemID := uuid.New(), uuid.New()
	resp := httptest.NewRecorder()

	RefundWebhook(svc, signer, newGuard(t), nil).ServeHTTP(resp, signedRequest("/payments/webhook/refund", refundBody(orderID, itemID, "SUCCESS")))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, svc.refundEvents, 1)
	assert.Equal(t, itemID, svc.refundEvents[0].ItemID)
	assert.Equal(t, orderID, svc.refundEvents[0].OrderID)
	assert.Equal(t, "72", svc.refundEvents[0].Amount.String())
}

func TestVerifyUsesCaller(t *testing.T) {
	svc := &stubSettler{}
	orderID := uuid.New()
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/verify/"+orderID.String(), nil)
	ctx := middleware.WithRole(middleware.WithUserID(req.Context(), userID.String()), enums.UserRoleUser)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
	resp := httptest.NewRecorder()

	Verify(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, svc.verifyActor.UserID)
	assert.Contains(t, resp.Body.String(), `"paymentStatus":"paid"`)
	assert.Contains(t, resp.Body.String(), `"message":"Payment successful"`)
}

func TestVerifyMapsUpstreamError(t *testing.T) {
	svc := &stubSettler{err: pkgerrors.New(pkgerrors.CodeUpstream, "verification failed")}
	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/payments/verify/"+orderID.String(), nil)
	ctx := middleware.WithRole(middleware.WithUserID(req.Context(), uuid.NewString()), enums.UserRoleUser)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rc))
	resp := httptest.NewRecorder()

	Verify(svc, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "verification failed")
}
