package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const defaultSessionTTL = 30 * time.Minute

// Options tunes the checkout service.
type Options struct {
	SessionTTL time.Duration
	Limits     Limits
	Clock      func() time.Time
}

// Service stages validated product selections as checkout sessions.
type Service struct {
	repo   *Repository
	ledger *inventory.Ledger
	logg   *logger.Logger
	ttl    time.Duration
	limits Limits
	now    func() time.Time
}

// NewService builds the checkout service.
func NewService(repo *Repository, ledger *inventory.Ledger, logg *logger.Logger, opts Options) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Service{
		repo:   repo,
		ledger: ledger,
		logg:   logg,
		ttl:    opts.SessionTTL,
		limits: opts.Limits.normalized(),
		now:    opts.Clock,
	}, nil
}

// Create validates the selection against live stock and persists a session.
// Prices are not frozen here.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, items []types.SessionItem, buyType enums.BuyType) (*models.CheckoutSession, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	if buyType == "" {
		buyType = enums.BuyTypeBuyNow
	}
	if !buyType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid buy type %q", buyType))
	}
	if err := ValidateItems(items, s.limits); err != nil {
		return nil, err
	}
	if _, err := s.ledger.CheckAvailability(ctx, ToLines(items)); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.CheckoutSession{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     types.SessionItems(items),
		BuyType:   buyType,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"session_id": session.ID.String(),
			"items":      len(items),
			"buy_type":   buyType,
		})
		s.logg.Info(logCtx, "checkout.session_created")
	}
	return session, nil
}

// SessionLine is a session item joined with the current product listing.
type SessionLine struct {
	ProductID uuid.UUID        `json:"productId"`
	SellerID  uuid.UUID        `json:"sellerId"`
	Name      string           `json:"name"`
	Quantity  int              `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
	UnitPrice decimal.Decimal  `json:"unitPrice"`
	Stock     int              `json:"stock"`
	Available bool             `json:"available"`
}

// SessionView is the populated session returned for display.
type SessionView struct {
	ID        uuid.UUID       `json:"id"`
	BuyType   enums.BuyType   `json:"buyType"`
	Items     []SessionLine   `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Get returns the caller's live session with current product details.
// Products removed since the session was created are omitted.
func (s *Service) Get(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	session, err := s.repo.FindActive(ctx, sessionID, userID, s.now())
	if err != nil {
		return nil, err
	}
	products, err := s.ledger.FindProducts(ctx, session.Items.ProductIDs())
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		ID:        session.ID,
		BuyType:   session.BuyType,
		Items:     make([]SessionLine, 0, len(session.Items)),
		Subtotal:  decimal.Zero,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}
	for _, item := range session.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		unit := product.UnitPrice()
		view.Items = append(view.Items, SessionLine{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Price:     product.Price,
			Discount:  product.Discount,
			UnitPrice: unit,
			Stock:     product.Stock,
			Available: product.Stock >= item.Quantity,
		})
		view.Subtotal = view.Subtotal.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return view, nil
}

// SweepExpired deletes sessions past their TTL.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// Limits exposes the configured checkout bounds.
func (s *Service) Limits() Limits {
	return s.limits
}

// ToLines converts session items into inventory lines.
func ToLines(items []types.SessionItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
