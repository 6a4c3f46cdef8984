package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

var tracer = otel.Tracer("orders/lifecycle")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentGateway is the subset of the payment provider the lifecycle drives.
type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, req payments.CreateOrderRequest) (*payments.PaymentOrder, error)
	FetchOrderStatus(ctx context.Context, orderID string) (payments.OrderStatus, error)
	FetchPaymentDetails(ctx context.Context, orderID string) (*payments.PaymentDetails, error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// Options tunes order creation.
type Options struct {
	Limits          checkout.Limits
	DefaultCurrency enums.Currency
	ReturnURL       string
	NotifyURL       string
	PaymentExpiry   time.Duration
	Clock           func() time.Time
}

// ServiceParams wires the lifecycle service.
type ServiceParams struct {
	Tx       txRunner
	Orders   *Repository
	Sessions *checkout.Repository
	Ledger   *inventory.Ledger
	Carts    *cart.Repository
	Users    *users.Repository
	Gateway  PaymentGateway
	Outbox   outbox.Emitter
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
	Options  Options
}

// Service orchestrates the order lifecycle: creation from a checkout
// session, payment settlement, fulfillment updates and cancellation.
type Service struct {
	tx       txRunner
	orders   *Repository
	sessions *checkout.Repository
	ledger   *inventory.Ledger
	carts    *cart.Repository
	users    *users.Repository
	gateway  PaymentGateway
	outbox   outbox.Emitter
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	opts     Options
	now      func() time.Time
}

// NewService validates dependencies and builds the service.
func NewService(p ServiceParams) (*Service, error) {
	if p.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Sessions == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if p.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if p.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	opts := p.Options
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = enums.CurrencyINR
	}
	if opts.PaymentExpiry <= 0 {
		opts.PaymentExpiry = 30 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Limits.MaxItems <= 0 || opts.Limits.MaxQuantity <= 0 {
		opts.Limits = checkout.DefaultLimits()
	}
	return &Service{
		tx:       p.Tx,
		orders:   p.Orders,
		sessions: p.Sessions,
		ledger:   p.Ledger,
		carts:    p.Carts,
		users:    p.Users,
		gateway:  p.Gateway,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
		logg:     p.Logger,
		opts:     opts,
		now:      func() time.Time { return opts.Clock().UTC() },
	}, nil
}

// CreateInput is the order creation request.
type CreateInput struct {
	SessionID       uuid.UUID
	ShippingAddress types.ShippingAddress
	Currency        string
}

// CreateResult carries the order and the handle the client pays with.
type CreateResult struct {
	Order            *models.Order
	PaymentSessionID string
}

// Create converts a checkout session into a pending order, reserves stock
// and opens a payment with the gateway. Validation and persistence are one
// transaction; the gateway call happens after commit and a failure there is
// compensated by settling the order as failed.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (_ *CreateResult, err error) {
	ctx, span := tracer.Start(ctx, "orders.create", trace.WithAttributes(attribute.String("session.id", in.SessionID.String())))
	defer endSpan(span, &err)

	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if in.SessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if err := validateAddress(in.ShippingAddress); err != nil {
		return nil, err
	}
	currency := s.opts.DefaultCurrency
	if strings.TrimSpace(in.Currency) != "" {
		parsed, perr := enums.ParseCurrency(in.Currency)
		if perr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, perr, "unsupported currency")
		}
		currency = parsed
	}

	now := s.now()
	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		session, err := s.sessions.WithTx(tx).Consume(ctx, in.SessionID, actor.UserID, now)
		if err != nil {
			return err
		}
		if err := checkout.ValidateItems(session.Items, s.opts.Limits); err != nil {
			return err
		}
		ledger := s.ledger.WithTx(tx)
		products, err := ledger.CheckAvailability(ctx, checkout.ToLines(session.Items))
		if err != nil {
			return err
		}
		snapshot, err := s.users.WithTx(tx).Snapshot(ctx, actor.UserID)
		if err != nil {
			return err
		}

		order = buildOrder(actor.UserID, snapshot, in.ShippingAddress, currency, session.Items, products, now)
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if session.BuyType == enums.BuyTypeCartCheckout {
			if _, err := s.carts.WithTx(tx).Clear(ctx, actor.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(logCtx, "order.created")
	}
	s.metrics.IncCreated()

	handle, gwErr := s.gateway.CreatePaymentOrder(ctx, s.paymentRequest(order, in.ShippingAddress, now))
	if gwErr != nil {
		s.logError(logCtx, "order.payment_initiation_failed", gwErr)
		if _, serr := s.settleFailed(ctx, order.ID, SourceInitiation); serr != nil {
			s.logError(logCtx, "order.compensation_failed", serr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, gwErr, "payment initiation failed")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.orders.WithTx(tx).SetPaymentSession(ctx, order.ID, handle.PaymentSessionID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderPlacedEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				BuyerName:        order.UserSnapshot.Name,
				BuyerEmail:       order.UserSnapshot.Email,
				TotalAmount:      order.TotalAmount,
				Currency:         order.Currency,
				ItemCount:        len(order.Items),
				PaymentSessionID: handle.PaymentSessionID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	order.PaymentSessionID = &handle.PaymentSessionID

	return &CreateResult{Order: order, PaymentSessionID: handle.PaymentSessionID}, nil
}

func buildOrder(userID uuid.UUID, snapshot types.BuyerSnapshot, address types.ShippingAddress, currency enums.Currency, items types.SessionItems, products map[uuid.UUID]models.Product, now time.Time) *models.Order {
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		UserSnapshot:    snapshot,
		ShippingAddress: address,
		Currency:        currency,
		PaymentStatus:   enums.PaymentStatusPending,
		TotalAmount:     decimal.Zero,
		Items:           make([]models.OrderItem, 0, len(items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range items {
		product := products[line.ProductID]
		item := models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			SellerID:    product.SellerID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.UnitPrice().Round(2),
			Status:      enums.OrderItemStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		order.Items = append(order.Items, item)
		order.TotalAmount = order.TotalAmount.Add(item.LineTotal())
	}
	return order
}

func (s *Service) paymentRequest(order *models.Order, address types.ShippingAddress, now time.Time) payments.CreateOrderRequest {
	phone := order.UserSnapshot.Phone
	if phone == "" {
		phone = address.Phone
	}
	return payments.CreateOrderRequest{
		OrderID:  order.ID.String(),
		Amount:   order.TotalAmount,
		Currency: string(order.Currency),
		Customer: payments.Customer{
			ID:    order.UserID.String(),
			Name:  order.UserSnapshot.Name,
			Email: order.UserSnapshot.Email,
			Phone: phone,
		},
		ReturnURL: s.opts.ReturnURL,
		NotifyURL: s.opts.NotifyURL,
		ExpiresAt: now.Add(s.opts.PaymentExpiry),
	}
}

func validateAddress(a types.ShippingAddress) error {
	missing := []string{}
	for field, value := range map[string]string{
		"fullName":   a.FullName,
		"phone":      a.Phone,
		"line1":      a.Line1,
		"city":       a.City,
		"state":      a.State,
		"postalCode": a.PostalCode,
		"country":    a.Country,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	if len(fields) > 0 {
		ctx = s.logg.WithFields(ctx, fields)
	}
	s.logg.Info(ctx, msg)
}

func endSpan(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}
