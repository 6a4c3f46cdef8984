package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	cashfree "github.com/cashfree/cashfree-pg/v4"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const defaultTimeout = 15 * time.Second

var tracer = otel.Tracer("payments/gateway")

type gatewayMetrics interface {
	ObserveGateway(operation string, err error, duration time.Duration)
}

// Client wraps the Cashfree PG SDK with retries, tracing and metrics.
type Client struct {
	api       pgAPI
	transport http.RoundTripper
	timeout   time.Duration
	backoff   func() retry.Backoff
	metrics   gatewayMetrics
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient takes the transport requests go out on. It is still wrapped
// for tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil && hc.Transport != nil {
			c.transport = hc.Transport
		}
	}
}

// WithMetrics records call latency and outcome.
func WithMetrics(m gatewayMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithBackoff overrides the retry schedule for idempotent calls.
func WithBackoff(fn func() retry.Backoff) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

func withAPI(api pgAPI) ClientOption {
	return func(c *Client) {
		c.api = api
	}
}

// NewClient builds a gateway client and points the SDK at the configured
// merchant account.
func NewClient(cfg config.GatewayConfig, opts ...ClientOption) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("gateway credentials required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		return nil, fmt.Errorf("gateway api version required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	c := &Client{
		api:       sdkAPI{version: cfg.APIVersion},
		transport: http.DefaultTransport,
		timeout:   timeout,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(maxRetries, retry.NewExponential(200*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport = otelhttp.NewTransport(c.transport)
	bindCredentials(cfg.ClientID, cfg.ClientSecret, cfg.Environment())
	return c, nil
}

// CreatePaymentOrder opens a payment order keyed by the marketplace order id.
// It fails unless the gateway hands back a payment session id.
func (c *Client) CreatePaymentOrder(ctx context.Context, req CreateOrderRequest) (*PaymentOrder, error) {
	if req.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}
	if req.Customer.ID == "" || req.Customer.Phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id and phone required")
	}

	body := &cashfree.CreateOrderRequest{
		OrderId:       optional(req.OrderID),
		OrderAmount:   req.Amount.Round(2).InexactFloat64(),
		OrderCurrency: req.Currency,
		CustomerDetails: cashfree.CustomerDetails{
			CustomerId:    req.Customer.ID,
			CustomerPhone: req.Customer.Phone,
			CustomerName:  optional(req.Customer.Name),
			CustomerEmail: optional(req.Customer.Email),
		},
		OrderMeta: &cashfree.OrderMeta{
			ReturnUrl: optional(strings.ReplaceAll(req.ReturnURL, "{order_id}", url.PathEscape(req.OrderID))),
			NotifyUrl: optional(req.NotifyURL),
		},
	}
	if !req.ExpiresAt.IsZero() {
		body.OrderExpiryTime = optional(req.ExpiresAt.UTC().Format(time.RFC3339))
	}

	var entity *cashfree.OrderEntity
	err := c.call(ctx, "create_order", false, func(hc *http.Client) (resp *http.Response, err error) {
		entity, resp, err = c.api.CreateOrder(hc, body, req.OrderID)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := paymentOrderFrom(entity)
	if out.PaymentSessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "gateway returned no payment session")
	}
	return out, nil
}

// FetchOrderStatus reads the gateway's order status.
func (c *Client) FetchOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var entity *cashfree.OrderEntity
	err := c.call(ctx, "fetch_order", true, func(hc *http.Client) (resp *http.Response, err error) {
		entity, resp, err = c.api.FetchOrder(hc, orderID)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return paymentOrderFrom(entity).Status, nil
}

// FetchPaymentDetails returns the successful payment attempt for an order,
// or the latest attempt when none succeeded.
func (c *Client) FetchPaymentDetails(ctx context.Context, orderID string) (*PaymentDetails, error) {
	var entities []cashfree.PaymentEntity
	err := c.call(ctx, "fetch_payments", true, func(hc *http.Client) (resp *http.Response, err error) {
		entities, resp, err = c.api.FetchPayments(hc, orderID)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "gateway returned no payments")
	}
	attempts := make([]PaymentDetails, 0, len(entities))
	for _, entity := range entities {
		attempts = append(attempts, PaymentDetails{
			Status:       PaymentStatus(strings.ToUpper(deref(entity.PaymentStatus))),
			PaymentGroup: deref(entity.PaymentGroup),
		})
	}
	for i := range attempts {
		if attempts[i].Status == PaymentStatusSuccess {
			return &attempts[i], nil
		}
	}
	return &attempts[0], nil
}

// CreateRefund issues a refund. The refund id doubles as the idempotency key,
// so retries never refund twice.
func (c *Client) CreateRefund(ctx context.Context, orderID string, req RefundRequest) (*Refund, error) {
	if req.RefundID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund id required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	body := &cashfree.OrderCreateRefundRequest{
		RefundAmount: req.Amount.Round(2).InexactFloat64(),
		RefundId:     req.RefundID,
		RefundNote:   optional(req.Note),
	}

	var entity *cashfree.RefundEntity
	err := c.call(ctx, "create_refund", true, func(hc *http.Client) (resp *http.Response, err error) {
		entity, resp, err = c.api.CreateRefund(hc, orderID, body, req.RefundID)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := &Refund{RefundID: req.RefundID, OrderID: orderID, Amount: req.Amount}
	if entity != nil {
		out.RefundStatus = deref(entity.RefundStatus)
		if id := deref(entity.RefundId); id != "" {
			out.RefundID = id
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, operation string, retryable bool, fn func(*http.Client) (*http.Response, error)) (err error) {
	ctx, span := tracer.Start(ctx, "gateway."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("gateway.operation", operation)),
	)
	started := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveGateway(operation, err, time.Since(started))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	attempt := func(ctx context.Context) error {
		callErr := c.once(ctx, fn)
		if callErr != nil && retryable && isTransient(callErr) {
			return retry.RetryableError(callErr)
		}
		return callErr
	}
	if !retryable {
		return attempt(ctx)
	}
	return retry.Do(ctx, c.backoff(), attempt)
}

func (c *Client) once(ctx context.Context, fn func(*http.Client) (*http.Response, error)) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := fn(&http.Client{Transport: boundTransport{ctx: ctx, base: c.transport}})
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if err == nil && (status == 0 || status < http.StatusMultipleChoices) {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("unexpected status %d", status)
	}
	wrapped := pkgerrors.Wrap(pkgerrors.CodeUpstream, &UpstreamError{Status: status, Err: err}, "payment gateway request failed")
	if status > 0 {
		wrapped = wrapped.WithDetails(map[string]any{"status": status})
	}
	return wrapped
}

// UpstreamError carries the gateway's HTTP status. Status is zero when no
// response arrived.
type UpstreamError struct {
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("gateway unreachable: %v", e.Err)
	}
	return fmt.Sprintf("gateway responded %d: %v", e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) UpstreamStatus() int { return e.Status }

func isTransient(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Status == 0 || ue.Status == http.StatusTooManyRequests || ue.Status >= http.StatusInternalServerError
}

// IsDuplicate reports whether the gateway rejected a create because a
// resource with the same id already exists.
func IsDuplicate(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusConflict
}

func paymentOrderFrom(entity *cashfree.OrderEntity) *PaymentOrder {
	if entity == nil {
		return &PaymentOrder{}
	}
	return &PaymentOrder{
		OrderID:          deref(entity.OrderId),
		GatewayOrderID:   deref(entity.CfOrderId),
		PaymentSessionID: deref(entity.PaymentSessionId),
		Status:           OrderStatus(deref(entity.OrderStatus)),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
