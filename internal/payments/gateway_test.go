package payments

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	cashfree "github.com/cashfree/cashfree-pg/v4"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// fakeAPI stands in for the SDK. Each hook returns the entity plus the status
// the gateway would have answered with.
type fakeAPI struct {
	calls map[string]int

	createOrder   func(*cashfree.CreateOrderRequest, string) (*cashfree.OrderEntity, int)
	fetchOrder    func(string) (*cashfree.OrderEntity, int)
	fetchPayments func(string) ([]cashfree.PaymentEntity, int)
	createRefund  func(string, *cashfree.OrderCreateRefundRequest, string) (*cashfree.RefundEntity, int)
}

func (f *fakeAPI) hit(op string) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

func reply(status int) (*http.Response, error) {
	resp := &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
	if status >= http.StatusMultipleChoices {
		return resp, errors.New(http.StatusText(status))
	}
	return resp, nil
}

func (f *fakeAPI) CreateOrder(_ *http.Client, req *cashfree.CreateOrderRequest, key string) (*cashfree.OrderEntity, *http.Response, error) {
	f.hit("create_order")
	entity, status := f.createOrder(req, key)
	resp, err := reply(status)
	return entity, resp, err
}

func (f *fakeAPI) FetchOrder(_ *http.Client, orderID string) (*cashfree.OrderEntity, *http.Response, error) {
	f.hit("fetch_order")
	entity, status := f.fetchOrder(orderID)
	resp, err := reply(status)
	return entity, resp, err
}

func (f *fakeAPI) FetchPayments(_ *http.Client, orderID string) ([]cashfree.PaymentEntity, *http.Response, error) {
	f.hit("fetch_payments")
	entities, status := f.fetchPayments(orderID)
	resp, err := reply(status)
	return entities, resp, err
}

func (f *fakeAPI) CreateRefund(_ *http.Client, orderID string, req *cashfree.OrderCreateRefundRequest, key string) (*cashfree.RefundEntity, *http.Response, error) {
	f.hit("create_refund")
	entity, status := f.createRefund(orderID, req, key)
	resp, err := reply(status)
	return entity, resp, err
}

func str(s string) *string { return &s }

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIVersion:   "2023-08-01",
		MaxRetries:   2,
		Timeout:      time.Second,
	}
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{withAPI(api), WithBackoff(func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	})}, opts...)
	client, err := NewClient(testGatewayConfig(), opts...)
	require.NoError(t, err)
	return client
}

func TestCreatePaymentOrderMapsRequest(t *testing.T) {
	var got *cashfree.CreateOrderRequest
	var key string
	api := &fakeAPI{createOrder: func(req *cashfree.CreateOrderRequest, idem string) (*cashfree.OrderEntity, int) {
		got, key = req, idem
		return &cashfree.OrderEntity{
			OrderId:          str("o-1"),
			CfOrderId:        str("cf-9"),
			PaymentSessionId: str("session_abc"),
			OrderStatus:      str("ACTIVE"),
		}, http.StatusOK
	}}
	client := newTestClient(t, api)

	out, err := client.CreatePaymentOrder(context.Background(), CreateOrderRequest{
		OrderID:   "o-1",
		Amount:    decimal.RequireFromString("450.505"),
		Currency:  "INR",
		Customer:  Customer{ID: "u-1", Name: "Asha", Email: "asha@example.com", Phone: "9999999999"},
		ReturnURL: "https://shop.example.com/orders/{order_id}/return",
		NotifyURL: "https://api.example.com/payments/webhook",
		ExpiresAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "session_abc", out.PaymentSessionID)
	assert.Equal(t, "cf-9", out.GatewayOrderID)
	assert.Equal(t, OrderStatusActive, out.Status)

	require.NotNil(t, got)
	assert.Equal(t, "o-1", key)
	assert.Equal(t, "o-1", *got.OrderId)
	assert.Equal(t, 450.51, got.OrderAmount)
	assert.Equal(t, "u-1", got.CustomerDetails.CustomerId)
	assert.Equal(t, "Asha", *got.CustomerDetails.CustomerName)
	assert.Equal(t, "https://shop.example.com/orders/o-1/return", *got.OrderMeta.ReturnUrl)
	assert.Equal(t, "https://api.example.com/payments/webhook", *got.OrderMeta.NotifyUrl)
	assert.Equal(t, "2026-03-01T10:00:00Z", *got.OrderExpiryTime)
}

func TestCreatePaymentOrderValidates(t *testing.T) {
	client := newTestClient(t, &fakeAPI{})
	cases := map[string]CreateOrderRequest{
		"missing order":  {Amount: decimal.NewFromInt(10), Customer: Customer{ID: "u", Phone: "1"}},
		"zero amount":    {OrderID: "o", Customer: Customer{ID: "u", Phone: "1"}},
		"missing phone":  {OrderID: "o", Amount: decimal.NewFromInt(10), Customer: Customer{ID: "u"}},
		"missing custid": {OrderID: "o", Amount: decimal.NewFromInt(10), Customer: Customer{Phone: "1"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := client.CreatePaymentOrder(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestCreatePaymentOrderRequiresSessionHandle(t *testing.T) {
	api := &fakeAPI{createOrder: func(*cashfree.CreateOrderRequest, string) (*cashfree.OrderEntity, int) {
		return &cashfree.OrderEntity{OrderId: str("o-1"), OrderStatus: str("ACTIVE")}, http.StatusOK
	}}
	client := newTestClient(t, api)

	_, err := client.CreatePaymentOrder(context.Background(), CreateOrderRequest{
		OrderID: "o-1", Amount: decimal.NewFromInt(10), Currency: "INR",
		Customer: Customer{ID: "u", Phone: "1"},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUpstream, pkgerrors.As(err).Code())
}

func TestCreatePaymentOrderIsNotRetried(t *testing.T) {
	api := &fakeAPI{createOrder: func(*cashfree.CreateOrderRequest, string) (*cashfree.OrderEntity, int) {
		return nil, http.StatusBadGateway
	}}
	client := newTestClient(t, api)

	_, err := client.CreatePaymentOrder(context.Background(), CreateOrderRequest{
		OrderID: "o-1", Amount: decimal.NewFromInt(10), Currency: "INR",
		Customer: Customer{ID: "u", Phone: "1"},
	})
	require.Error(t, err)
	assert.Equal(t, 1, api.calls["create_order"])
}

func TestFetchOrderStatusRetriesServerErrors(t *testing.T) {
	api := &fakeAPI{}
	api.fetchOrder = func(orderID string) (*cashfree.OrderEntity, int) {
		if api.calls["fetch_order"] < 3 {
			return nil, http.StatusServiceUnavailable
		}
		assert.Equal(t, "o-7", orderID)
		return &cashfree.OrderEntity{OrderId: str("o-7"), OrderStatus: str("PAID")}, http.StatusOK
	}
	client := newTestClient(t, api)

	status, err := client.FetchOrderStatus(context.Background(), "o-7")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, status)
	assert.Equal(t, 3, api.calls["fetch_order"])
}

func TestFetchOrderStatusDoesNotRetryClientErrors(t *testing.T) {
	api := &fakeAPI{fetchOrder: func(string) (*cashfree.OrderEntity, int) {
		return nil, http.StatusNotFound
	}}
	client := newTestClient(t, api)

	_, err := client.FetchOrderStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUpstream, pkgerrors.As(err).Code())
	assert.Equal(t, 1, api.calls["fetch_order"])

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.UpstreamStatus())
}

func TestFetchPaymentDetailsPrefersSuccessfulAttempt(t *testing.T) {
	api := &fakeAPI{fetchPayments: func(orderID string) ([]cashfree.PaymentEntity, int) {
		assert.Equal(t, "o-2", orderID)
		return []cashfree.PaymentEntity{
			{PaymentStatus: str("FAILED"), PaymentGroup: str("credit_card")},
			{PaymentStatus: str("success"), PaymentGroup: str("upi")},
		}, http.StatusOK
	}}
	client := newTestClient(t, api)

	details, err := client.FetchPaymentDetails(context.Background(), "o-2")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSuccess, details.Status)
	assert.Equal(t, "upi", details.PaymentGroup)
}

func TestFetchPaymentDetailsRequiresAttempts(t *testing.T) {
	api := &fakeAPI{fetchPayments: func(string) ([]cashfree.PaymentEntity, int) {
		return nil, http.StatusOK
	}}
	client := newTestClient(t, api)

	_, err := client.FetchPaymentDetails(context.Background(), "o-2")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUpstream, pkgerrors.As(err).Code())
}

func TestCreateRefundIsKeyedByRefundID(t *testing.T) {
	var got *cashfree.OrderCreateRefundRequest
	var key, order string
	api := &fakeAPI{createRefund: func(orderID string, req *cashfree.OrderCreateRefundRequest, idem string) (*cashfree.RefundEntity, int) {
		got, key, order = req, idem, orderID
		return &cashfree.RefundEntity{RefundId: str("item-1"), OrderId: str("o-3"), RefundStatus: str("PENDING")}, http.StatusOK
	}}
	client := newTestClient(t, api)

	refund, err := client.CreateRefund(context.Background(), "o-3", RefundRequest{
		RefundID: "item-1",
		Amount:   decimal.NewFromInt(200),
		Note:     "cancelled by seller",
	})
	require.NoError(t, err)
	assert.Equal(t, "o-3", order)
	assert.Equal(t, "item-1", key)
	assert.Equal(t, "item-1", got.RefundId)
	assert.Equal(t, float64(200), got.RefundAmount)
	assert.Equal(t, "cancelled by seller", *got.RefundNote)
	assert.Equal(t, "PENDING", refund.RefundStatus)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(200)))
}

func TestCreateRefundDuplicateIsDetectable(t *testing.T) {
	api := &fakeAPI{createRefund: func(string, *cashfree.OrderCreateRefundRequest, string) (*cashfree.RefundEntity, int) {
		return nil, http.StatusConflict
	}}
	client := newTestClient(t, api)

	_, err := client.CreateRefund(context.Background(), "o-3", RefundRequest{RefundID: "item-1", Amount: decimal.NewFromInt(5)})
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.Equal(t, 1, api.calls["create_refund"])
}

type recordingMetrics struct {
	ops []string
}

func (r *recordingMetrics) ObserveGateway(op string, _ error, _ time.Duration) {
	r.ops = append(r.ops, op)
}

func TestClientRecordsMetrics(t *testing.T) {
	rec := &recordingMetrics{}
	api := &fakeAPI{fetchOrder: func(string) (*cashfree.OrderEntity, int) {
		return &cashfree.OrderEntity{OrderStatus: str("ACTIVE")}, http.StatusOK
	}}
	client := newTestClient(t, api, WithMetrics(rec))

	_, err := client.FetchOrderStatus(context.Background(), "o")
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch_order"}, rec.ops)
}

type ctxKey struct{}

type recordingTransport struct {
	seen context.Context
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.seen = req.Context()
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Request: req}, nil
}

// sendingAPI issues a real request through the client it is handed so the
// transport chain can be observed.
type sendingAPI struct{ fakeAPI }

func (s *sendingAPI) FetchOrder(hc *http.Client, _ string) (*cashfree.OrderEntity, *http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, "https://sandbox.example.com/pg/orders/o", nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	_ = resp.Body.Close()
	return &cashfree.OrderEntity{OrderStatus: str("PAID")}, resp, nil
}

func TestClientSendsThroughCallerContext(t *testing.T) {
	rt := &recordingTransport{}
	client, err := NewClient(testGatewayConfig(), withAPI(&sendingAPI{}), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), ctxKey{}, "checkout-42")
	status, err := client.FetchOrderStatus(ctx, "o")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, status)

	require.NotNil(t, rt.seen)
	assert.Equal(t, "checkout-42", rt.seen.Value(ctxKey{}))
	_, hasDeadline := rt.seen.Deadline()
	assert.True(t, hasDeadline)
}

func TestNewClientBindsCredentials(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.Env = "Production"
	_, err := NewClient(cfg, withAPI(&fakeAPI{}))
	require.NoError(t, err)

	credentialsMu.Lock()
	defer credentialsMu.Unlock()
	require.NotNil(t, cashfree.XClientId)
	assert.Equal(t, "client-id", *cashfree.XClientId)
	assert.Equal(t, "client-secret", *cashfree.XClientSecret)
	assert.EqualValues(t, cashfree.PRODUCTION, cashfree.XEnvironment)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.GatewayConfig{APIVersion: "2023-08-01"})
	require.Error(t, err)

	_, err = NewClient(config.GatewayConfig{ClientID: "a", ClientSecret: "b"})
	require.Error(t, err)
}
