package payments

import (
	"context"
	"net/http"
	"sync"

	cashfree "github.com/cashfree/cashfree-pg/v4"
)

// pgAPI is the slice of the Cashfree PG SDK the client uses. Every call takes
// the HTTP client to send through so each request carries its caller's
// context.
type pgAPI interface {
	CreateOrder(hc *http.Client, req *cashfree.CreateOrderRequest, idempotencyKey string) (*cashfree.OrderEntity, *http.Response, error)
	FetchOrder(hc *http.Client, orderID string) (*cashfree.OrderEntity, *http.Response, error)
	FetchPayments(hc *http.Client, orderID string) ([]cashfree.PaymentEntity, *http.Response, error)
	CreateRefund(hc *http.Client, orderID string, req *cashfree.OrderCreateRefundRequest, idempotencyKey string) (*cashfree.RefundEntity, *http.Response, error)
}

type sdkAPI struct {
	version string
}

func (a sdkAPI) CreateOrder(hc *http.Client, req *cashfree.CreateOrderRequest, idempotencyKey string) (*cashfree.OrderEntity, *http.Response, error) {
	return cashfree.PGCreateOrder(&a.version, req, nil, &idempotencyKey, hc)
}

func (a sdkAPI) FetchOrder(hc *http.Client, orderID string) (*cashfree.OrderEntity, *http.Response, error) {
	return cashfree.PGFetchOrder(&a.version, orderID, nil, nil, hc)
}

func (a sdkAPI) FetchPayments(hc *http.Client, orderID string) ([]cashfree.PaymentEntity, *http.Response, error) {
	return cashfree.PGOrderFetchPayments(&a.version, orderID, nil, nil, hc)
}

func (a sdkAPI) CreateRefund(hc *http.Client, orderID string, req *cashfree.OrderCreateRefundRequest, idempotencyKey string) (*cashfree.RefundEntity, *http.Response, error) {
	return cashfree.PGOrderCreateRefund(&a.version, orderID, req, nil, &idempotencyKey, hc)
}

// The SDK keeps credentials in package state, so a process talks to a single
// merchant account.
var credentialsMu sync.Mutex

func bindCredentials(clientID, clientSecret, environment string) {
	credentialsMu.Lock()
	defer credentialsMu.Unlock()
	id, secret := clientID, clientSecret
	cashfree.XClientId = &id
	cashfree.XClientSecret = &secret
	if environment == "production" {
		cashfree.XEnvironment = cashfree.PRODUCTION
	} else {
		cashfree.XEnvironment = cashfree.SANDBOX
	}
}

// boundTransport sends every request under ctx so cancellation, deadlines
// and the active span reach the SDK's requests.
type boundTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
