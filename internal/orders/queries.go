package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// ListParams are the listing filters accepted from the API.
type ListParams struct {
	Limit         int
	Cursor        string
	Sort          string
	Search        string
	PaymentStatus string
	Status        string
}

// ListResult is one page of orders.
type ListResult struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// Get returns an order as the actor is allowed to see it. Sellers only see
// their own lines; anyone else without access gets NotFound.
func (s *Service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Role == enums.UserRoleAdmin:
		return order, nil
	case order.UserID == actor.UserID:
		return order, nil
	case actor.Role == enums.UserRoleSeller:
		mine := order.ItemsForSeller(actor.UserID)
		if len(mine) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		order.Items = mine
		return order, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
}

// ListMine pages through the buyer's own orders.
func (s *Service) ListMine(ctx context.Context, actor Actor, params ListParams) (*ListResult, error) {
	userID := actor.UserID
	q, err := buildListQuery(params)
	if err != nil {
		return nil, err
	}
	q.UserID = &userID
	return s.list(ctx, q, nil)
}

// ListSeller pages through orders containing the seller's items. With
// activeOnly set, only paid orders with open fulfillment are returned.
func (s *Service) ListSeller(ctx context.Context, actor Actor, params ListParams, activeOnly bool) (*ListResult, error) {
	sellerID := actor.UserID
	q, err := buildListQuery(params)
	if err != nil {
		return nil, err
	}
	q.SellerID = &sellerID
	q.ActiveOnly = activeOnly
	return s.list(ctx, q, &sellerID)
}

// ListAll is the admin listing.
func (s *Service) ListAll(ctx context.Context, params ListParams) (*ListResult, error) {
	q, err := buildListQuery(params)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, q, nil)
}

func (s *Service) list(ctx context.Context, q ListQuery, sellerID *uuid.UUID) (*ListResult, error) {
	rows, next, err := s.orders.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if sellerID != nil {
		for i := range rows {
			rows[i].Items = rows[i].ItemsForSeller(*sellerID)
		}
	}
	result := &ListResult{Orders: rows}
	if result.Orders == nil {
		result.Orders = []models.Order{}
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func buildListQuery(params ListParams) (ListQuery, error) {
	q := ListQuery{
		Limit:  params.Limit,
		Search: strings.TrimSpace(params.Search),
	}
	if params.Limit < 0 {
		return q, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return q, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	q.Cursor = cursor
	direction, err := pagination.ParseDirection(params.Sort)
	if err != nil {
		return q, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	q.Direction = direction
	if raw := strings.TrimSpace(params.PaymentStatus); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return q, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment status")
		}
		q.PaymentStatus = &status
	}
	if raw := strings.TrimSpace(params.Status); raw != "" {
		status, err := enums.ParseOrderItemStatus(raw)
		if err != nil {
			return q, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		q.ItemStatus = &status
	}
	return q, nil
}
